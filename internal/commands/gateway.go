// Package commands is the whitelisted command gateway.
//
// Ownership boundary:
// - resolves caller-supplied ids against a closed registry
// - refuses secret-dependent commands before any execution
// - runs accepted scripts through a tools.Executor
//
// Callers never supply script text.
package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/edgedash/internal/observability"
	"github.com/danmuck/edgedash/internal/tools"
	"github.com/danmuck/edgedash/internal/tunnel"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Config carries runtime values the whitelist depends on.
type Config struct {
	TunnelToken   string
	TunnelLogPath string
}

// Gateway runs whitelisted commands.
type Gateway struct {
	registry *Registry
	exec     tools.Executor
	monitor  *tunnel.Monitor
	cfg      Config
	flight   singleflight.Group
	log      zerolog.Logger
}

func NewGateway(exec tools.Executor, monitor *tunnel.Monitor, cfg Config) (*Gateway, error) {
	registry, err := NewRegistry(DefaultDefinitions(monitor)...)
	if err != nil {
		return nil, err
	}
	return &Gateway{
		registry: registry,
		exec:     exec,
		monitor:  monitor,
		cfg:      cfg,
		log:      log.With().Str("component", "commands").Logger(),
	}, nil
}

func (g *Gateway) List() []Metadata {
	return g.registry.List()
}

// Run executes the command registered under id. Rejections are returned as
// errors and never reach the executor. Execution failures are returned as a
// Result with OK=false.
func (g *Gateway) Run(ctx context.Context, id string) (Result, error) {
	id = strings.TrimSpace(id)
	def, ok := g.registry.Resolve(id)
	if !ok {
		observability.RecordCommand("unknown", observability.CommandRejected)
		g.log.Warn().Str("command", id).Msg("command_rejected")
		return Result{}, fmt.Errorf("%w: %q", ErrCommandNotAllowed, id)
	}
	if def.RequiresSecret && strings.TrimSpace(g.cfg.TunnelToken) == "" {
		observability.RecordCommand(def.ID, observability.CommandRejected)
		g.log.Warn().Str("command", def.ID).Msg("command_secret_missing")
		return Result{}, ErrSecretNotConfigured
	}

	if def.ID == TunnelStart {
		return g.startTunnel(ctx, def), nil
	}
	return g.execute(ctx, def), nil
}

// startTunnel shares one in-flight launch between concurrent callers and
// skips the launch when a client is already running. The launch outlives the
// first caller's request; the shell timeout still bounds it.
func (g *Gateway) startTunnel(ctx context.Context, def Definition) Result {
	ctx = context.WithoutCancel(ctx)
	v, _, shared := g.flight.Do(def.ID, func() (any, error) {
		if g.monitor.Status(ctx) == tunnel.StatusRunning {
			observability.RecordCommand(def.ID, observability.CommandOK)
			return Result{OK: true, Stdout: "already running\n"}, nil
		}
		return g.execute(ctx, def), nil
	})
	if shared {
		g.log.Debug().Str("command", def.ID).Msg("command_shared")
	}
	return v.(Result)
}

func (g *Gateway) execute(ctx context.Context, def Definition) Result {
	cmd := tools.Script(def.Script)
	if def.RequiresSecret {
		cmd.Env = []string{
			tunnel.EnvToken + "=" + g.cfg.TunnelToken,
			tunnel.EnvLogPath + "=" + g.cfg.TunnelLogPath,
		}
	}

	started := time.Now()
	r := g.exec.Run(ctx, cmd)
	res := Result{OK: r.OK, Stdout: r.Stdout, Stderr: r.Stderr}
	switch {
	case r.TimedOut:
		res.Code = CodeTimeout
	case def.ID == TunnelStart && r.ExitCode == tunnel.NotFoundExitCode:
		res.Code = CodeTunnelClientNotFound
	}
	if res.Stderr == "" && r.Error != "" && !r.OK {
		res.Stderr = r.Error
	}

	outcome := observability.CommandOK
	if !res.OK {
		outcome = observability.CommandFailed
	}
	observability.RecordCommand(def.ID, outcome)

	event := g.log.Info().
		Str("command", def.ID).
		Bool("ok", res.OK).
		Int32("exit_code", r.ExitCode).
		Dur("duration", time.Since(started))
	if res.Code != "" {
		event = event.Str("code", res.Code)
	}
	event.Msg("command_run")
	return res
}
