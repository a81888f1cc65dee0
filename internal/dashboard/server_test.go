package dashboard

import (
	stdgzip "compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/edgedash/internal/commands"
	"github.com/danmuck/edgedash/internal/probe"
	"github.com/danmuck/edgedash/internal/routeros"
	"github.com/danmuck/edgedash/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubTelemetry struct {
	battery    probe.Battery
	batteryErr error
	wifiErr    error
	network    probe.NetworkStats
	networkErr error
}

func (s stubTelemetry) Battery(context.Context) (probe.Battery, error) {
	return s.battery, s.batteryErr
}

func (s stubTelemetry) Wifi(context.Context) (probe.Wifi, error) {
	return probe.Wifi{Source: probe.SourceProc}, s.wifiErr
}

func (s stubTelemetry) System(context.Context) (probe.SystemInfo, error) {
	return probe.SystemInfo{LoadAvg: []string{}}, nil
}

func (s stubTelemetry) Network(context.Context) (probe.NetworkStats, error) {
	return s.network, s.networkErr
}

type stubLeases struct {
	leases []routeros.Lease
	err    error
}

func (s stubLeases) Leases(context.Context) ([]routeros.Lease, error) {
	return s.leases, s.err
}

type stubCommands struct {
	ran []string
}

func (s *stubCommands) Run(_ context.Context, id string) (commands.Result, error) {
	switch id {
	case commands.Update:
		s.ran = append(s.ran, id)
		return commands.Result{OK: false, Stderr: "E: offline"}, nil
	case commands.TunnelStart:
		return commands.Result{}, commands.ErrSecretNotConfigured
	default:
		return commands.Result{}, fmt.Errorf("%w: %q", commands.ErrCommandNotAllowed, id)
	}
}

func (s *stubCommands) List() []commands.Metadata {
	return []commands.Metadata{{ID: commands.Update, Description: "update"}}
}

type stubTunnel string

func (s stubTunnel) Status(context.Context) string { return string(s) }

func newTestServer(deps Deps, opts Options) *Server {
	if deps.Telemetry == nil {
		deps.Telemetry = stubTelemetry{}
	}
	if deps.Leases == nil {
		deps.Leases = stubLeases{leases: []routeros.Lease{}}
	}
	if deps.Commands == nil {
		deps.Commands = &stubCommands{}
	}
	if deps.Tunnel == nil {
		deps.Tunnel = stubTunnel("stopped")
	}
	return New(deps, opts)
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	var decoded map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rr.Body.Bytes(), &decoded)
	}
	return rr, decoded
}

func TestHealth(t *testing.T) {
	testlog.Start(t)
	rr, body := do(t, newTestServer(Deps{}, Options{}), http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("unexpected health response %d %s", rr.Code, rr.Body.String())
	}
}

func TestJSONIsGzipped(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(Deps{}, Options{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoding, headers=%v", rr.Header())
	}
	zr, err := stdgzip.NewReader(rr.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil || body["ok"] != true {
		t.Fatalf("unexpected body %q err=%v", raw, err)
	}

	rr, _ = do(t, s, http.MethodGet, "/health", "")
	if rr.Header().Get("Content-Encoding") != "" {
		t.Fatalf("plain client got encoded body")
	}
}

func TestBatteryUnavailableIs503(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(Deps{Telemetry: stubTelemetry{
		batteryErr: &probe.UnavailableError{Domain: "battery", Code: "battery-unavailable"},
	}}, Options{})

	rr, body := do(t, s, http.MethodGet, "/api/battery", "")
	if rr.Code != http.StatusServiceUnavailable || body["error"] != "battery-unavailable" {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
}

func TestBatteryShape(t *testing.T) {
	testlog.Start(t)
	pct := 81
	s := newTestServer(Deps{Telemetry: stubTelemetry{
		battery: probe.Battery{Percentage: &pct, Status: probe.StatusCharging},
	}}, Options{})

	rr, body := do(t, s, http.MethodGet, "/api/battery", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if body["percentage"] != float64(81) || body["status"] != "CHARGING" {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
	if v, ok := body["temperature"]; !ok || v != nil {
		t.Fatalf("temperature should be present and null: %s", rr.Body.String())
	}
}

func TestNetworkStatsErrorIs500WithDetail(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(Deps{Telemetry: stubTelemetry{
		networkErr: &probe.StatsError{Code: probe.CodeLinkParse, Iface: "wlan0", Detail: "no counters"},
	}}, Options{})

	rr, body := do(t, s, http.MethodGet, "/api/network", "")
	if rr.Code != http.StatusInternalServerError || body["error"] != probe.CodeLinkParse || body["detail"] != "no counters" {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
}

func TestLanErrorMapping(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		err    error
		status int
		want   string
	}{
		{err: routeros.ErrCredentialsMissing, status: http.StatusServiceUnavailable, want: CodeRouterNotConfigured},
		{err: routeros.ErrUnauthorized, status: http.StatusInternalServerError, want: "401 Unauthorized"},
		{
			err:    &routeros.ProtocolError{Transport: routeros.TransportREST, Status: 500, Detail: "Internal Server Error"},
			status: http.StatusInternalServerError,
			want:   "REST error 500",
		},
	}
	for _, tc := range cases {
		s := newTestServer(Deps{Leases: stubLeases{err: tc.err}}, Options{})
		rr, body := do(t, s, http.MethodGet, "/api/lan", "")
		msg, _ := body["error"].(string)
		if rr.Code != tc.status || !strings.Contains(msg, tc.want) {
			t.Fatalf("%v: unexpected response %d %s", tc.err, rr.Code, rr.Body.String())
		}
	}
}

func TestLanEmptyIsArray(t *testing.T) {
	testlog.Start(t)
	rr, _ := do(t, newTestServer(Deps{}, Options{}), http.MethodGet, "/api/lan", "")
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
}

func TestRunMapping(t *testing.T) {
	testlog.Start(t)
	cmds := &stubCommands{}
	s := newTestServer(Deps{Commands: cmds}, Options{})

	rr, body := do(t, s, http.MethodPost, "/api/run", `{"cmd":"rm -rf /"}`)
	if rr.Code != http.StatusBadRequest || body["error"] != "Command not allowed" {
		t.Fatalf("unexpected rejection %d %s", rr.Code, rr.Body.String())
	}
	rr, _ = do(t, s, http.MethodPost, "/api/run", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing cmd should be 400, got %d", rr.Code)
	}
	rr, _ = do(t, s, http.MethodPost, "/api/run", `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed body should be 400, got %d", rr.Code)
	}
	rr, body = do(t, s, http.MethodPost, "/api/run", `{"cmd":"tunnel-start"}`)
	if rr.Code != http.StatusBadRequest || !strings.Contains(fmt.Sprint(body["error"]), "CLOUDFLARED_TOKEN") {
		t.Fatalf("unexpected secret response %d %s", rr.Code, rr.Body.String())
	}

	rr, body = do(t, s, http.MethodPost, "/api/run", `{"cmd":"update"}`)
	if rr.Code != http.StatusOK || body["ok"] != false || body["stderr"] != "E: offline" {
		t.Fatalf("execution failure should be 200 ok=false: %d %s", rr.Code, rr.Body.String())
	}
	if len(cmds.ran) != 1 {
		t.Fatalf("expected one run, got %v", cmds.ran)
	}
}

func TestTunnelAndCommands(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(Deps{Tunnel: stubTunnel("running")}, Options{})

	rr, body := do(t, s, http.MethodGet, "/api/tunnel", "")
	if rr.Code != http.StatusOK || body["status"] != "running" {
		t.Fatalf("unexpected tunnel response %d %s", rr.Code, rr.Body.String())
	}
	rr, body = do(t, s, http.MethodGet, "/api/commands", "")
	list, _ := body["commands"].([]any)
	if rr.Code != http.StatusOK || len(list) != 1 {
		t.Fatalf("unexpected commands response %d %s", rr.Code, rr.Body.String())
	}
}

func TestUnknownRoutesAreJSON(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(Deps{}, Options{})

	rr, body := do(t, s, http.MethodGet, "/api/nope", "")
	if rr.Code != http.StatusNotFound || body["error"] != "not found" {
		t.Fatalf("unexpected 404 %d %s", rr.Code, rr.Body.String())
	}
	rr, body = do(t, s, http.MethodDelete, "/api/battery", "")
	if rr.Code != http.StatusMethodNotAllowed || body["error"] == nil {
		t.Fatalf("unexpected 405 %d %s", rr.Code, rr.Body.String())
	}
}

func TestStaticDir(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>dash</h1>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	s := newTestServer(Deps{}, Options{StaticDir: dir})

	rr, _ := do(t, s, http.MethodGet, "/", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "dash") {
		t.Fatalf("index not served: %d %s", rr.Code, rr.Body.String())
	}
	rr, _ = do(t, s, http.MethodGet, "/../../etc/passwd", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("path escape not rejected: %d", rr.Code)
	}
	rr, _ = do(t, s, http.MethodGet, "/api/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("api paths must not fall through to static: %d", rr.Code)
	}
}

func TestCORSAllowsDashboardOrigin(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(Deps{}, Options{CorsOrigins: []string{"http://phone.lan:3000"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://phone.lan:3000")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "http://phone.lan:3000" {
		t.Fatalf("missing CORS header: %v", rr.Header())
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(Deps{}, Options{Addr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	cancel()
	if err := <-done; err != nil && !errors.Is(err, http.ErrServerClosed) {
		t.Fatalf("serve: %v", err)
	}
}
