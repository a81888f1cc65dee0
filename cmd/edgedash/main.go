package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/edgedash/internal/config"
	"github.com/danmuck/edgedash/internal/logging"
	"github.com/danmuck/edgedash/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "edgedash: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	logging.ConfigureRuntime()

	flags := pflag.NewFlagSet("edgedash", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to TOML config file")
	envFile := flags.String("env-file", "", "path to .env file (default ./.env when present)")
	printConfig := flags.Bool("print-config", false, "print the effective config and exit")
	showSecrets := flags.Bool("show-secrets", false, "include secrets in --print-config output")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(config.Options{ConfigPath: *configPath, EnvFile: *envFile})
	if err != nil {
		return err
	}
	if *printConfig {
		out, err := config.Render(cfg, *showSecrets)
		if err != nil {
			return err
		}
		_, err = stdout.Write(out)
		return err
	}

	logger := observability.InitLogger("edgedash", loggerConfig(cfg))
	gin.SetMode(gin.ReleaseMode)

	app, err := build(cfg)
	if err != nil {
		return err
	}

	logger.Info().
		Str("addr", cfg.Addr()).
		Str("router_host", cfg.Router.Host).
		Str("router_transport", cfg.Router.Transport).
		Str("router_proto", cfg.Router.Proto).
		Int("router_port", cfg.Router.Port).
		Bool("router_tls_insecure", cfg.Router.TLSInsecure).
		Bool("router_configured", cfg.Router.User != "").
		Bool("tunnel_token_set", cfg.Tunnel.Token != "").
		Msg("edgedash_start")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.Serve(ctx)
}

func loggerConfig(cfg config.Config) logging.Config {
	logCfg := logging.DefaultConfig(logging.ProfileRuntime)
	if level, ok := logging.ParseLevel(cfg.Log.Level); ok {
		logCfg.Level = level
	}
	logCfg.JSON = cfg.Log.JSON
	logging.ApplyEnvOverrides(&logCfg, os.Getenv)
	return logCfg
}
