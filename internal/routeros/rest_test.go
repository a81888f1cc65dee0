package routeros

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/edgedash/internal/testutil/testlog"
	"github.com/danmuck/edgedash/internal/testutil/tlstest"
)

func configFor(t *testing.T, rawURL string) Config {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split host: %v", err)
	}
	p, _ := strconv.Atoi(port)
	return Config{
		Host:     host,
		Port:     p,
		Proto:    u.Scheme,
		User:     "admin",
		Password: "pw",
		Timeout:  2 * time.Second,
	}
}

func leaseHandler(t *testing.T, status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != leasePath {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "pw" {
			t.Errorf("missing basic auth: %q %q %v", user, pass, ok)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("unexpected accept header %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func TestRESTLeasesNormalized(t *testing.T) {
	testlog.Start(t)
	body := `[
		{".id":"*1","address":"192.168.88.10","mac-address":"AA:BB:CC:DD:EE:01","host-name":"phone","status":"bound"},
		{".id":"*2","address":"192.168.88.11","mac-address":"AA:BB:CC:DD:EE:02","status":"waiting"}
	]`
	srv := httptest.NewServer(leaseHandler(t, http.StatusOK, body))
	defer srv.Close()

	client, err := NewClient(configFor(t, srv.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	leases, err := client.Leases(context.Background())
	if err != nil {
		t.Fatalf("leases: %v", err)
	}
	want := []Lease{
		{IP: "192.168.88.10", MAC: "AA:BB:CC:DD:EE:01", Hostname: "phone", Status: "bound"},
		{IP: "192.168.88.11", MAC: "AA:BB:CC:DD:EE:02", Hostname: "", Status: "waiting"},
	}
	if len(leases) != len(want) {
		t.Fatalf("expected %d leases, got %d", len(want), len(leases))
	}
	for i := range want {
		if leases[i] != want[i] {
			t.Fatalf("lease %d: want %+v got %+v", i, want[i], leases[i])
		}
	}
}

func TestRESTEmptyArray(t *testing.T) {
	testlog.Start(t)
	srv := httptest.NewServer(leaseHandler(t, http.StatusOK, `[]`))
	defer srv.Close()

	client, _ := NewClient(configFor(t, srv.URL))
	leases, err := client.Leases(context.Background())
	if err != nil || leases == nil || len(leases) != 0 {
		t.Fatalf("expected empty non-nil leases, got %v err=%v", leases, err)
	}
}

func TestRESTUnauthorized(t *testing.T) {
	testlog.Start(t)
	srv := httptest.NewServer(leaseHandler(t, http.StatusUnauthorized, `{"error":401}`))
	defer srv.Close()

	client, _ := NewClient(configFor(t, srv.URL))
	_, err := client.Leases(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if !strings.Contains(err.Error(), "401 Unauthorized") {
		t.Fatalf("message should mention 401 Unauthorized: %q", err.Error())
	}
}

func TestRESTServerError(t *testing.T) {
	testlog.Start(t)
	srv := httptest.NewServer(leaseHandler(t, http.StatusInternalServerError, `oops`))
	defer srv.Close()

	client, _ := NewClient(configFor(t, srv.URL))
	_, err := client.Leases(context.Background())
	var perr *ProtocolError
	if !errors.As(err, &perr) || perr.Status != http.StatusInternalServerError {
		t.Fatalf("expected protocol error with status 500, got %v", err)
	}
	if err.Error() != "REST error 500 Internal Server Error" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestRESTMalformedPayload(t *testing.T) {
	testlog.Start(t)
	for _, body := range []string{`not json`, `{"address":"x"}`, `null`} {
		srv := httptest.NewServer(leaseHandler(t, http.StatusOK, body))
		client, _ := NewClient(configFor(t, srv.URL))
		_, err := client.Leases(context.Background())
		srv.Close()

		var perr *ProtocolError
		if !errors.As(err, &perr) {
			t.Fatalf("%q: expected protocol error, got %v", body, err)
		}
		if errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%q: malformed payload reported as unauthorized", body)
		}
	}
}

func TestCredentialsMissingSkipsRequest(t *testing.T) {
	testlog.Start(t)
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits++ }))
	defer srv.Close()

	cfg := configFor(t, srv.URL)
	cfg.User = ""
	client, _ := NewClient(cfg)
	if _, err := client.Leases(context.Background()); !errors.Is(err, ErrCredentialsMissing) {
		t.Fatalf("expected ErrCredentialsMissing, got %v", err)
	}
	if hits != 0 {
		t.Fatalf("router contacted without credentials")
	}
}

func TestRESTTLSVerification(t *testing.T) {
	testlog.Start(t)
	srv := tlstest.NewServer(t, leaseHandler(t, http.StatusOK, `[]`))

	strict, _ := NewClient(configFor(t, srv.URL))
	_, err := strict.Leases(context.Background())
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected certificate failure, got %v", err)
	}

	cfg := configFor(t, srv.URL)
	cfg.TLSInsecure = true
	insecure, _ := NewClient(cfg)
	if _, err := insecure.Leases(context.Background()); err != nil {
		t.Fatalf("insecure fetch: %v", err)
	}
}

func TestPortDefaultsByProto(t *testing.T) {
	cases := []struct {
		proto string
		port  int
		want  string
	}{
		{proto: "http", want: "http://10.0.0.1:80" + leasePath},
		{proto: "https", want: "https://10.0.0.1:443" + leasePath},
		{proto: "HTTPS", port: 8443, want: "https://10.0.0.1:8443" + leasePath},
		{proto: "gopher", want: "http://10.0.0.1:80" + leasePath},
	}
	for _, tc := range cases {
		r, err := NewREST(Config{Host: "10.0.0.1", Proto: tc.proto, Port: tc.port})
		if err != nil {
			t.Fatalf("new rest: %v", err)
		}
		if r.URL() != tc.want {
			t.Fatalf("%s/%d: want %s got %s", tc.proto, tc.port, tc.want, r.URL())
		}
	}
}

func TestUnknownTransport(t *testing.T) {
	if _, err := NewClient(Config{Transport: "telnet"}); !errors.Is(err, ErrUnknownTransport) {
		t.Fatalf("expected ErrUnknownTransport, got %v", err)
	}
}
