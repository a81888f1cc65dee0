package config

import (
	"bytes"
	"fmt"

	gotoml "github.com/pelletier/go-toml/v2"
)

const redacted = "<redacted>"

// fileConfig is the on-disk TOML layout. Durations are strings like "10s".
type fileConfig struct {
	Listen fileListen `toml:"listen"`
	Router fileRouter `toml:"router"`
	Tunnel fileTunnel `toml:"tunnel"`
	Shell  fileShell  `toml:"shell"`
	Probe  fileProbe  `toml:"probe"`
	HTTP   fileHTTP   `toml:"http"`
	Log    fileLog    `toml:"log"`
}

type fileListen struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type fileRouter struct {
	Host            string `toml:"host"`
	User            string `toml:"user"`
	Password        string `toml:"password"`
	Transport       string `toml:"transport"`
	Proto           string `toml:"proto"`
	Port            int    `toml:"port"`
	TLSInsecure     bool   `toml:"tls_insecure"`
	SSHPort         int    `toml:"ssh_port"`
	KnownHosts      string `toml:"known_hosts"`
	HostKeyInsecure bool   `toml:"host_key_insecure"`
	Timeout         string `toml:"timeout"`
}

type fileTunnel struct {
	Token   string `toml:"token"`
	Binary  string `toml:"binary"`
	LogPath string `toml:"log_path"`
}

type fileShell struct {
	Path      string `toml:"path"`
	Timeout   string `toml:"timeout"`
	MaxOutput int    `toml:"max_output"`
}

type fileProbe struct {
	WifiIface    string `toml:"wifi_iface"`
	DefaultIface string `toml:"default_iface"`
	RouteTarget  string `toml:"route_target"`
}

type fileHTTP struct {
	CorsOrigins []string `toml:"cors_origins"`
	StaticDir   string   `toml:"static_dir"`
}

type fileLog struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

func toFile(cfg Config) fileConfig {
	return fileConfig{
		Listen: fileListen{Host: cfg.Listen.Host, Port: cfg.Listen.Port},
		Router: fileRouter{
			Host:            cfg.Router.Host,
			User:            cfg.Router.User,
			Password:        cfg.Router.Password,
			Transport:       cfg.Router.Transport,
			Proto:           cfg.Router.Proto,
			Port:            cfg.Router.Port,
			TLSInsecure:     cfg.Router.TLSInsecure,
			SSHPort:         cfg.Router.SSHPort,
			KnownHosts:      cfg.Router.KnownHosts,
			HostKeyInsecure: cfg.Router.HostKeyInsecure,
			Timeout:         cfg.Router.Timeout.String(),
		},
		Tunnel: fileTunnel{Token: cfg.Tunnel.Token, Binary: cfg.Tunnel.Binary, LogPath: cfg.Tunnel.LogPath},
		Shell: fileShell{
			Path:      cfg.Shell.Path,
			Timeout:   cfg.Shell.Timeout.String(),
			MaxOutput: cfg.Shell.MaxOutput,
		},
		Probe: fileProbe{
			WifiIface:    cfg.Probe.WifiIface,
			DefaultIface: cfg.Probe.DefaultIface,
			RouteTarget:  cfg.Probe.RouteTarget,
		},
		HTTP: fileHTTP{CorsOrigins: cfg.HTTP.CorsOrigins, StaticDir: cfg.HTTP.StaticDir},
		Log:  fileLog{Level: cfg.Log.Level, JSON: cfg.Log.JSON},
	}
}

// Render encodes cfg as TOML. Secrets are replaced unless showSecrets is set.
func Render(cfg Config, showSecrets bool) ([]byte, error) {
	f := toFile(cfg)
	if !showSecrets {
		if f.Router.Password != "" {
			f.Router.Password = redacted
		}
		if f.Tunnel.Token != "" {
			f.Tunnel.Token = redacted
		}
	}
	var buf bytes.Buffer
	enc := gotoml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(f); err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	return buf.Bytes(), nil
}
