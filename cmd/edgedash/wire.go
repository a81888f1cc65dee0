package main

import (
	"github.com/danmuck/edgedash/internal/commands"
	"github.com/danmuck/edgedash/internal/config"
	"github.com/danmuck/edgedash/internal/dashboard"
	"github.com/danmuck/edgedash/internal/probe"
	"github.com/danmuck/edgedash/internal/routeros"
	"github.com/danmuck/edgedash/internal/tools"
	"github.com/danmuck/edgedash/internal/tunnel"
)

// build assembles every component from one immutable config.
func build(cfg config.Config) (*dashboard.Server, error) {
	shell := tools.Shell{
		Path:      cfg.Shell.Path,
		Timeout:   cfg.Shell.Timeout,
		MaxOutput: cfg.Shell.MaxOutput,
	}

	prober := probe.NewProber(shell, probe.Options{
		WifiIface:    cfg.Probe.WifiIface,
		DefaultIface: cfg.Probe.DefaultIface,
		RouteTarget:  cfg.Probe.RouteTarget,
	})

	monitor := tunnel.NewMonitor(shell, cfg.Tunnel.Binary)
	gateway, err := commands.NewGateway(shell, monitor, commands.Config{
		TunnelToken:   cfg.Tunnel.Token,
		TunnelLogPath: cfg.Tunnel.LogPath,
	})
	if err != nil {
		return nil, err
	}

	router, err := routeros.NewClient(routeros.Config{
		Host:            cfg.Router.Host,
		User:            cfg.Router.User,
		Password:        cfg.Router.Password,
		Transport:       cfg.Router.Transport,
		Proto:           cfg.Router.Proto,
		Port:            cfg.Router.Port,
		TLSInsecure:     cfg.Router.TLSInsecure,
		SSHPort:         cfg.Router.SSHPort,
		KnownHostsPath:  cfg.Router.KnownHosts,
		HostKeyInsecure: cfg.Router.HostKeyInsecure,
		Timeout:         cfg.Router.Timeout,
	})
	if err != nil {
		return nil, err
	}

	return dashboard.New(dashboard.Deps{
		Telemetry: prober,
		Leases:    router,
		Commands:  gateway,
		Tunnel:    monitor,
	}, dashboard.Options{
		Addr:        cfg.Addr(),
		CorsOrigins: cfg.HTTP.CorsOrigins,
		StaticDir:   cfg.HTTP.StaticDir,
	}), nil
}
