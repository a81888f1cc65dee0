package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

const (
	DefaultShell     = "/bin/bash"
	DefaultTimeout   = 60 * time.Second
	DefaultMaxOutput = 16 * 1024 * 1024

	whichTimeout = 5 * time.Second
	waitDelay    = 2 * time.Second
)

var (
	ErrOutputLimit = errors.New("output limit exceeded")

	toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9._+-]+$`)
)

// ExecResult is the envelope returned for every executed pipeline.
type ExecResult struct {
	OK       bool   `json:"ok"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Error    string `json:"error,omitempty"`
	ExitCode int32  `json:"exit_code"`
	TimedOut bool   `json:"-"`
}

// Command is one script plus its execution overrides.
type Command struct {
	Script  string
	Env     []string
	Timeout time.Duration
}

// Script wraps a script with default execution settings.
func Script(script string) Command {
	return Command{Script: script}
}

// Executor abstracts shell execution for probes, commands and monitors.
type Executor interface {
	Run(ctx context.Context, cmd Command) ExecResult
	Which(ctx context.Context, name string) bool
}

// Shell executes scripts through a local shell.
type Shell struct {
	Path      string
	Timeout   time.Duration
	MaxOutput int
}

var _ Executor = Shell{}

func (s Shell) Run(ctx context.Context, command Command) ExecResult {
	timeout := command.Timeout
	if timeout <= 0 {
		timeout = s.timeout()
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout := newLimitedBuffer(s.maxOutput(), cancel)
	stderr := newLimitedBuffer(s.maxOutput(), cancel)

	cmd := exec.CommandContext(runCtx, s.path(), "-c", command.Script)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// negative pid signals the whole process group
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = waitDelay
	if len(command.Env) > 0 {
		cmd.Env = append(os.Environ(), command.Env...)
	}

	start := time.Now()
	err := cmd.Run()

	result := ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	switch {
	case stdout.Overflowed() || stderr.Overflowed():
		result.Error = ErrOutputLimit.Error()
		result.ExitCode = exitCode(err)
	case err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		result.Error = fmt.Sprintf("command timed out after %s", timeout)
		result.ExitCode = exitCode(err)
		result.TimedOut = true
	case err != nil && ctx.Err() != nil:
		result.Error = fmt.Sprintf("command canceled: %v", ctx.Err())
		result.ExitCode = exitCode(err)
	case err != nil:
		result.Error = err.Error()
		result.ExitCode = exitCode(err)
	default:
		result.OK = true
	}

	event := log.Debug()
	if !result.OK {
		event = event.Str("error", result.Error)
	}
	event.
		Str("script", summarize(command.Script)).
		Bool("ok", result.OK).
		Int32("exit_code", result.ExitCode).
		Dur("duration", time.Since(start)).
		Msg("shell_run")
	return result
}

// Which reports whether a named external tool is resolvable on the search path.
func (s Shell) Which(ctx context.Context, name string) bool {
	name = strings.TrimSpace(name)
	if !toolNamePattern.MatchString(name) {
		return false
	}
	r := s.Run(ctx, Command{
		Script:  fmt.Sprintf("command -v %s >/dev/null 2>&1 && echo 1 || echo 0", name),
		Timeout: whichTimeout,
	})
	return r.OK && strings.TrimSpace(r.Stdout) == "1"
}

func (s Shell) path() string {
	if strings.TrimSpace(s.Path) == "" {
		return DefaultShell
	}
	return s.Path
}

func (s Shell) timeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultTimeout
	}
	return s.Timeout
}

func (s Shell) maxOutput() int {
	if s.MaxOutput <= 0 {
		return DefaultMaxOutput
	}
	return s.MaxOutput
}

func exitCode(err error) int32 {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return int32(exitErr.ExitCode())
	}
	var execErr *exec.Error
	var pathErr *fs.PathError
	if errors.As(err, &execErr) || errors.As(err, &pathErr) {
		return 127
	}
	return 1
}

func summarize(script string) string {
	script = strings.TrimSpace(script)
	if i := strings.IndexByte(script, '\n'); i >= 0 {
		script = script[:i] + " ..."
	}
	if len(script) > 120 {
		script = script[:120] + "..."
	}
	return script
}
