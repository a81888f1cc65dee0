package probe

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/edgedash/internal/observability"
	"github.com/danmuck/edgedash/internal/tools"
	"github.com/rs/zerolog/log"
)

var (
	ErrSourceUnavailable = errors.New("probe: source unavailable")
	ErrToolMissing       = errors.New("probe: tool not installed")
	ErrProbeFailed       = errors.New("probe: command failed")
	ErrNoData            = errors.New("probe: no usable data")
)

// UnavailableError reports that every source in a domain's chain failed.
type UnavailableError struct {
	Domain string
	Code   string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: no source succeeded", e.Code)
}

func (e *UnavailableError) Unwrap() error {
	return ErrSourceUnavailable
}

// Source is one (existence-check, prober, parser) step of a fallback chain.
// Tool is checked before probing when set. An empty Command skips execution
// and hands Parse an empty string.
type Source[T any] struct {
	Name     string
	Tool     string
	Command  string
	Parse    func(stdout string) (T, error)
	Complete func(ctx context.Context, x tools.Executor, v T) (T, error)
}

// Chain tries its sources in order and commits to the first one that probes
// and parses.
type Chain[T any] struct {
	Domain  string
	Code    string
	Sources []Source[T]
}

// Resolve returns the first valid sample and the name of the source that
// produced it.
func (c Chain[T]) Resolve(ctx context.Context, x tools.Executor) (T, string, error) {
	var zero T
	for _, src := range c.Sources {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}
		v, err := src.attempt(ctx, x)
		if err != nil {
			log.Debug().
				Str("domain", c.Domain).
				Str("source", src.Name).
				Err(err).
				Msg("probe_miss")
			observability.RecordProbe(c.Domain, src.Name, observability.ProbeMiss)
			continue
		}
		observability.RecordProbe(c.Domain, src.Name, observability.ProbeHit)
		return v, src.Name, nil
	}

	observability.RecordProbe(c.Domain, "none", observability.ProbeUnavailable)
	code := c.Code
	if code == "" {
		code = c.Domain + "-unavailable"
	}
	return zero, "", &UnavailableError{Domain: c.Domain, Code: code}
}

func (s Source[T]) attempt(ctx context.Context, x tools.Executor) (T, error) {
	var zero T
	if s.Tool != "" && !x.Which(ctx, s.Tool) {
		return zero, fmt.Errorf("%w: %s", ErrToolMissing, s.Tool)
	}

	stdout := ""
	if s.Command != "" {
		r := x.Run(ctx, tools.Script(s.Command))
		if !r.OK {
			return zero, fmt.Errorf("%w: %s", ErrProbeFailed, r.Error)
		}
		stdout = r.Stdout
	}

	v, err := s.Parse(stdout)
	if err != nil {
		return zero, err
	}
	if s.Complete != nil {
		return s.Complete(ctx, x, v)
	}
	return v, nil
}
