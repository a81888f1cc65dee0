package tunnel

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/edgedash/internal/testutil/fakeexec"
	"github.com/danmuck/edgedash/internal/testutil/testlog"
	"github.com/danmuck/edgedash/internal/tools"
)

func TestMonitorStatus(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name   string
		result tools.ExecResult
		want   string
	}{
		{name: "running", result: fakeexec.OK("running\n"), want: StatusRunning},
		{name: "stopped", result: fakeexec.OK("stopped\n"), want: StatusStopped},
		{name: "check failed", result: fakeexec.Fail(127, "bash: not found"), want: StatusUnknown},
		{name: "garbage", result: fakeexec.OK("maybe\n"), want: StatusUnknown},
	}
	for _, tc := range cases {
		x := fakeexec.New().On("pgrep cloudflared", tc.result)
		if got := NewMonitor(x, "").Status(context.Background()); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestMonitorRejectsUnsafeBinary(t *testing.T) {
	m := NewMonitor(fakeexec.New(), "cloudflared; reboot")
	if m.Binary() != DefaultBinary {
		t.Fatalf("expected default binary, got %q", m.Binary())
	}
	if !strings.Contains(m.StopScript(), "pkill cloudflared || true") {
		t.Fatalf("unexpected stop script: %q", m.StopScript())
	}
}

func TestValidBinary(t *testing.T) {
	for _, name := range []string{"cloudflared", "cloudflared-2024.1", "cf_tunnel"} {
		if !ValidBinary(name) {
			t.Fatalf("%q should be valid", name)
		}
	}
	for _, name := range []string{"", "/data/data/com.termux/files/home/bin/cloudflared", "bin/cloudflared", "cf $(id)"} {
		if ValidBinary(name) {
			t.Fatalf("%q should be rejected", name)
		}
	}
}

func TestStartScriptNotFound(t *testing.T) {
	testlog.Start(t)
	bash, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not available")
	}
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("PREFIX", dir)

	m := NewMonitor(tools.Shell{Path: bash}, "edgedash-missing-tunnel")
	r := tools.Shell{Path: bash}.Run(context.Background(), tools.Command{
		Script: m.StartScript(),
		Env:    []string{EnvToken + "=token"},
	})
	if r.OK {
		t.Fatalf("expected failure, got %+v", r)
	}
	if r.ExitCode != NotFoundExitCode {
		t.Fatalf("expected exit %d, got %d", NotFoundExitCode, r.ExitCode)
	}
	if strings.TrimSpace(r.Stdout) != "edgedash-missing-tunnel not found" {
		t.Fatalf("unexpected stdout: %q", r.Stdout)
	}
}

func TestStartScriptLaunchesDetached(t *testing.T) {
	testlog.Start(t)
	bash, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not available")
	}
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("PREFIX", filepath.Join(dir, "prefix"))

	// a stand-in client that records its arguments
	client := filepath.Join(dir, "edgedash-fake-tunnel")
	script := "#!/bin/sh\necho \"$@\"\n"
	if err := os.WriteFile(client, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake client: %v", err)
	}
	logPath := filepath.Join(dir, "tunnel.log")

	m := NewMonitor(tools.Shell{Path: bash}, "edgedash-fake-tunnel")
	r := tools.Shell{Path: bash}.Run(context.Background(), tools.Command{
		Script: m.StartScript(),
		Env:    []string{EnvToken + "=tok-123", EnvLogPath + "=" + logPath},
	})
	if !r.OK || strings.TrimSpace(r.Stdout) != "started" {
		t.Fatalf("unexpected result: %+v", r)
	}

	var logged []byte
	for i := 0; i < 50; i++ {
		logged, _ = os.ReadFile(logPath)
		if len(logged) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if strings.TrimSpace(string(logged)) != "tunnel run --token tok-123" {
		t.Fatalf("unexpected client args: %q", logged)
	}
}
