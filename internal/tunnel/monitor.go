// Package tunnel owns the remote-access tunnel client process checks and the
// scripts used to start and stop it.
package tunnel

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/danmuck/edgedash/internal/tools"
)

const (
	StatusRunning = "running"
	StatusStopped = "stopped"
	StatusUnknown = "unknown"

	DefaultBinary = "cloudflared"

	EnvToken   = "EDGEDASH_TUNNEL_TOKEN"
	EnvLogPath = "EDGEDASH_TUNNEL_LOG"

	// NotFoundExitCode is returned by the start script when no executable
	// client binary is found.
	NotFoundExitCode = 127
)

var binaryPattern = regexp.MustCompile(`^[A-Za-z0-9._+-]{1,64}$`)

// Monitor checks tunnel client process presence.
type Monitor struct {
	exec   tools.Executor
	binary string
}

// ValidBinary reports whether name is a bare executable name safe to
// interpolate into the process scripts. Paths are not accepted.
func ValidBinary(name string) bool {
	return binaryPattern.MatchString(name)
}

func NewMonitor(exec tools.Executor, binary string) *Monitor {
	binary = strings.TrimSpace(binary)
	if !ValidBinary(binary) {
		binary = DefaultBinary
	}
	return &Monitor{exec: exec, binary: binary}
}

func (m *Monitor) Binary() string {
	return m.binary
}

// Status reports running or stopped, and unknown only when the check itself
// could not execute.
func (m *Monitor) Status(ctx context.Context) string {
	r := m.exec.Run(ctx, tools.Script(m.StatusScript()))
	if !r.OK {
		return StatusUnknown
	}
	switch out := strings.TrimSpace(r.Stdout); out {
	case StatusRunning, StatusStopped:
		return out
	default:
		return StatusUnknown
	}
}

func (m *Monitor) StatusScript() string {
	return fmt.Sprintf("pgrep %s >/dev/null 2>&1 && echo %s || echo %s", m.binary, StatusRunning, StatusStopped)
}

// StopScript succeeds whether or not a client is running.
func (m *Monitor) StopScript() string {
	return fmt.Sprintf("pkill %s || true", m.binary)
}

// StartScript locates the client binary on the search path, then under
// $PREFIX/bin and $HOME, and launches it detached. The token and log path are
// read from EnvToken and EnvLogPath.
func (m *Monitor) StartScript() string {
	return fmt.Sprintf(`BIN_NAME=%[1]q
CF_BIN=""
for candidate in "$(command -v "$BIN_NAME" 2>/dev/null)" "${PREFIX:-/usr}/bin/$BIN_NAME" "$HOME/$BIN_NAME"; do
  if [ -n "$candidate" ] && [ -x "$candidate" ]; then
    CF_BIN="$candidate"
    break
  fi
done
if [ -z "$CF_BIN" ]; then
  echo "$BIN_NAME not found"
  exit %[2]d
fi
termux-wake-lock >/dev/null 2>&1 || true
LOG_PATH="${%[3]s:-$HOME/$BIN_NAME.log}"
if command -v setsid >/dev/null 2>&1; then
  nohup setsid "$CF_BIN" tunnel run --token "$%[4]s" > "$LOG_PATH" 2>&1 < /dev/null &
else
  nohup "$CF_BIN" tunnel run --token "$%[4]s" > "$LOG_PATH" 2>&1 < /dev/null &
fi
echo "started"
`, m.binary, NotFoundExitCode, EnvLogPath, EnvToken)
}
