package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/edgedash/internal/probe"
	"github.com/danmuck/edgedash/internal/tunnel"
	"github.com/joho/godotenv"
)

const DefaultEnvFile = ".env"

var ErrInvalidConfig = errors.New("invalid config")

// Config is the immutable runtime configuration shared by every component.
type Config struct {
	Listen ListenConfig
	Router RouterConfig
	Tunnel TunnelConfig
	Shell  ShellConfig
	Probe  ProbeConfig
	HTTP   HTTPConfig
	Log    LogConfig
}

type ListenConfig struct {
	Host string
	Port int
}

type RouterConfig struct {
	Host            string
	User            string
	Password        string
	Transport       string
	Proto           string
	Port            int
	TLSInsecure     bool
	SSHPort         int
	KnownHosts      string
	HostKeyInsecure bool
	Timeout         time.Duration
}

type TunnelConfig struct {
	Token   string
	Binary  string
	LogPath string
}

type ShellConfig struct {
	Path      string
	Timeout   time.Duration
	MaxOutput int
}

type ProbeConfig struct {
	WifiIface    string
	DefaultIface string
	RouteTarget  string
}

type HTTPConfig struct {
	CorsOrigins []string
	StaticDir   string
}

type LogConfig struct {
	Level string
	JSON  bool
}

// Default returns the built-in configuration. Router credentials have no
// default.
func Default() Config {
	return Config{
		Listen: ListenConfig{Host: "0.0.0.0", Port: 3000},
		Router: RouterConfig{
			Host:      "192.168.88.1",
			Transport: "rest",
			Proto:     "http",
			SSHPort:   22,
			Timeout:   10 * time.Second,
		},
		Tunnel: TunnelConfig{Binary: "cloudflared"},
		Shell: ShellConfig{
			Path:      "/bin/bash",
			Timeout:   60 * time.Second,
			MaxOutput: 16 << 20,
		},
		Probe: ProbeConfig{
			WifiIface:    "wlan0",
			DefaultIface: "wlan0",
			RouteTarget:  "1.1.1.1",
		},
		HTTP: HTTPConfig{CorsOrigins: []string{"*"}},
		Log:  LogConfig{Level: "info"},
	}
}

// Options select the layered sources. Precedence is defaults, then the TOML
// file, then the .env file, then the process environment.
type Options struct {
	ConfigPath string
	// EnvFile is read when set; otherwise DefaultEnvFile is read if present.
	EnvFile string
	Getenv  func(string) string
	// FileOnly skips the .env and process environment layers.
	FileOnly bool
}

func Load(opts Options) (Config, error) {
	cfg := Default()
	portSet := false

	if path := strings.TrimSpace(opts.ConfigPath); path != "" {
		set, err := overlayFile(&cfg, path)
		if err != nil {
			return Config{}, err
		}
		portSet = set
	}

	if !opts.FileOnly {
		dotenv, err := readEnvFile(opts.EnvFile)
		if err != nil {
			return Config{}, err
		}
		getenv := opts.Getenv
		if getenv == nil {
			getenv = os.Getenv
		}
		lookup := func(key string) string {
			if v := getenv(key); v != "" {
				return v
			}
			return dotenv[key]
		}

		set, err := overlayEnv(&cfg, lookup)
		if err != nil {
			return Config{}, err
		}
		portSet = portSet || set
	}

	cfg.normalize(portSet)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readEnvFile(path string) (map[string]string, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultEnvFile
		if _, err := os.Stat(path); err != nil {
			return map[string]string{}, nil
		}
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("load env file (%s): %w", path, err)
	}
	return values, nil
}

func overlayFile(cfg *Config, path string) (bool, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return false, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return false, fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, undecoded[0].String())
	}

	if meta.IsDefined("listen", "host") {
		cfg.Listen.Host = strings.TrimSpace(raw.Listen.Host)
	}
	if meta.IsDefined("listen", "port") {
		cfg.Listen.Port = raw.Listen.Port
	}

	if meta.IsDefined("router", "host") {
		cfg.Router.Host = strings.TrimSpace(raw.Router.Host)
	}
	if meta.IsDefined("router", "user") {
		cfg.Router.User = strings.TrimSpace(raw.Router.User)
	}
	if meta.IsDefined("router", "password") {
		cfg.Router.Password = raw.Router.Password
	}
	if meta.IsDefined("router", "transport") {
		cfg.Router.Transport = strings.TrimSpace(raw.Router.Transport)
	}
	if meta.IsDefined("router", "proto") {
		cfg.Router.Proto = strings.TrimSpace(raw.Router.Proto)
	}
	if meta.IsDefined("router", "port") {
		cfg.Router.Port = raw.Router.Port
	}
	if meta.IsDefined("router", "tls_insecure") {
		cfg.Router.TLSInsecure = raw.Router.TLSInsecure
	}
	if meta.IsDefined("router", "ssh_port") {
		cfg.Router.SSHPort = raw.Router.SSHPort
	}
	if meta.IsDefined("router", "known_hosts") {
		cfg.Router.KnownHosts = strings.TrimSpace(raw.Router.KnownHosts)
	}
	if meta.IsDefined("router", "host_key_insecure") {
		cfg.Router.HostKeyInsecure = raw.Router.HostKeyInsecure
	}
	if meta.IsDefined("router", "timeout") {
		d, err := parseDuration("router.timeout", raw.Router.Timeout)
		if err != nil {
			return false, err
		}
		cfg.Router.Timeout = d
	}

	if meta.IsDefined("tunnel", "token") {
		cfg.Tunnel.Token = strings.TrimSpace(raw.Tunnel.Token)
	}
	if meta.IsDefined("tunnel", "binary") {
		cfg.Tunnel.Binary = strings.TrimSpace(raw.Tunnel.Binary)
	}
	if meta.IsDefined("tunnel", "log_path") {
		cfg.Tunnel.LogPath = strings.TrimSpace(raw.Tunnel.LogPath)
	}

	if meta.IsDefined("shell", "path") {
		cfg.Shell.Path = strings.TrimSpace(raw.Shell.Path)
	}
	if meta.IsDefined("shell", "timeout") {
		d, err := parseDuration("shell.timeout", raw.Shell.Timeout)
		if err != nil {
			return false, err
		}
		cfg.Shell.Timeout = d
	}
	if meta.IsDefined("shell", "max_output") {
		cfg.Shell.MaxOutput = raw.Shell.MaxOutput
	}

	if meta.IsDefined("probe", "wifi_iface") {
		cfg.Probe.WifiIface = strings.TrimSpace(raw.Probe.WifiIface)
	}
	if meta.IsDefined("probe", "default_iface") {
		cfg.Probe.DefaultIface = strings.TrimSpace(raw.Probe.DefaultIface)
	}
	if meta.IsDefined("probe", "route_target") {
		cfg.Probe.RouteTarget = strings.TrimSpace(raw.Probe.RouteTarget)
	}

	if meta.IsDefined("http", "cors_origins") {
		cfg.HTTP.CorsOrigins = raw.HTTP.CorsOrigins
	}
	if meta.IsDefined("http", "static_dir") {
		cfg.HTTP.StaticDir = strings.TrimSpace(raw.HTTP.StaticDir)
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "json") {
		cfg.Log.JSON = raw.Log.JSON
	}
	return meta.IsDefined("router", "port"), nil
}

// overlayEnv applies the environment variable names the dashboard has always
// honored. It reports whether the router port was set.
func overlayEnv(cfg *Config, lookup func(string) string) (bool, error) {
	var err error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(lookup(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) bool {
		v := strings.TrimSpace(lookup(key))
		if v == "" || err != nil {
			return false
		}
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			err = fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, key, v)
			return false
		}
		*dst = n
		return true
	}
	flag := func(key string, dst *bool) {
		if v := strings.TrimSpace(lookup(key)); v != "" {
			*dst = parseFlag(v)
		}
	}

	str("HOST", &cfg.Listen.Host)
	num("PORT", &cfg.Listen.Port)

	str("MT_HOST", &cfg.Router.Host)
	str("MT_USER", &cfg.Router.User)
	if v := lookup("MT_PASS"); v != "" {
		cfg.Router.Password = v
	}
	if v := strings.TrimSpace(lookup("MT_USE_REST")); v != "" {
		if parseFlag(v) {
			cfg.Router.Transport = "rest"
		} else {
			cfg.Router.Transport = "ssh"
		}
	}
	str("MT_REST_PROTO", &cfg.Router.Proto)
	portSet := num("MT_REST_PORT", &cfg.Router.Port)
	flag("MT_TLS_INSECURE", &cfg.Router.TLSInsecure)

	str("CLOUDFLARED_TOKEN", &cfg.Tunnel.Token)

	str("EDGEDASH_LOG_LEVEL", &cfg.Log.Level)
	flag("EDGEDASH_LOG_JSON", &cfg.Log.JSON)
	return portSet, err
}

func (c *Config) normalize(routerPortSet bool) {
	c.Router.Transport = strings.ToLower(c.Router.Transport)
	c.Router.Proto = strings.ToLower(c.Router.Proto)
	if !routerPortSet || c.Router.Port == 0 {
		c.Router.Port = 80
		if c.Router.Proto == "https" {
			c.Router.Port = 443
		}
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Listen.Host, strconv.Itoa(c.Listen.Port))
}

func Validate(cfg Config) error {
	var problems []string
	if cfg.Listen.Port <= 0 || cfg.Listen.Port > 65535 {
		problems = append(problems, fmt.Sprintf("listen.port %d out of range", cfg.Listen.Port))
	}
	if strings.TrimSpace(cfg.Router.Host) == "" {
		problems = append(problems, "router.host is required")
	}
	switch cfg.Router.Transport {
	case "rest", "ssh":
	default:
		problems = append(problems, fmt.Sprintf("router.transport %q must be rest or ssh", cfg.Router.Transport))
	}
	switch cfg.Router.Proto {
	case "http", "https":
	default:
		problems = append(problems, fmt.Sprintf("router.proto %q must be http or https", cfg.Router.Proto))
	}
	if cfg.Router.Port <= 0 || cfg.Router.Port > 65535 {
		problems = append(problems, fmt.Sprintf("router.port %d out of range", cfg.Router.Port))
	}
	if cfg.Router.SSHPort <= 0 || cfg.Router.SSHPort > 65535 {
		problems = append(problems, fmt.Sprintf("router.ssh_port %d out of range", cfg.Router.SSHPort))
	}
	if cfg.Router.Timeout <= 0 {
		problems = append(problems, "router.timeout must be positive")
	}
	if strings.TrimSpace(cfg.Shell.Path) == "" {
		problems = append(problems, "shell.path is required")
	}
	if cfg.Shell.Timeout <= 0 {
		problems = append(problems, "shell.timeout must be positive")
	}
	if cfg.Shell.MaxOutput <= 0 {
		problems = append(problems, "shell.max_output must be positive")
	}
	if b := strings.TrimSpace(cfg.Tunnel.Binary); b == "" {
		problems = append(problems, "tunnel.binary is required")
	} else if !tunnel.ValidBinary(b) {
		problems = append(problems, fmt.Sprintf("tunnel.binary %q must be an executable name, not a path", b))
	}
	if v := strings.TrimSpace(cfg.Probe.WifiIface); v != "" && !probe.ValidInterface(v) {
		problems = append(problems, fmt.Sprintf("probe.wifi_iface %q is not a valid interface name", v))
	}
	if v := strings.TrimSpace(cfg.Probe.DefaultIface); v != "" && !probe.ValidInterface(v) {
		problems = append(problems, fmt.Sprintf("probe.default_iface %q is not a valid interface name", v))
	}
	if t := strings.TrimSpace(cfg.Probe.RouteTarget); t != "" && net.ParseIP(t) == nil {
		problems = append(problems, fmt.Sprintf("probe.route_target %q is not an IP address", t))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, raw, err)
	}
	return d, nil
}

func parseFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
