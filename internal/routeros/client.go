// Package routeros fetches DHCP leases from a MikroTik RouterOS device.
//
// Two transports produce the same raw records:
// - REST over HTTP or HTTPS with Basic auth
// - an SSH session running the terse lease print
//
// Both are normalized into Lease. Nothing is retried.
package routeros

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/edgedash/internal/observability"
	"github.com/rs/zerolog/log"
)

const (
	TransportREST = "rest"
	TransportSSH  = "ssh"

	DefaultHost    = "192.168.88.1"
	DefaultTimeout = 10 * time.Second
	DefaultSSHPort = 22
)

// Config describes how to reach the router.
type Config struct {
	Host            string
	User            string
	Password        string
	Transport       string
	Proto           string
	Port            int
	TLSInsecure     bool
	SSHPort         int
	KnownHostsPath  string
	HostKeyInsecure bool
	Timeout         time.Duration
}

// Transport fetches raw lease records.
type Transport interface {
	Name() string
	Fetch(ctx context.Context) ([]Record, error)
}

type Client struct {
	transport Transport
	user      string
}

// NewClient builds the configured transport. Missing credentials are
// reported by Leases so the rest of the dashboard can run unconfigured.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	var t Transport
	switch cfg.Transport {
	case TransportREST:
		rt, err := NewREST(cfg)
		if err != nil {
			return nil, err
		}
		t = rt
	case TransportSSH:
		t = NewSSH(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, cfg.Transport)
	}
	return &Client{transport: t, user: cfg.User}, nil
}

// NewClientWithTransport wraps an existing transport.
func NewClientWithTransport(t Transport, user string) *Client {
	return &Client{transport: t, user: user}
}

func (c *Client) Transport() string {
	return c.transport.Name()
}

func (c *Client) Leases(ctx context.Context) ([]Lease, error) {
	if strings.TrimSpace(c.user) == "" {
		return nil, ErrCredentialsMissing
	}
	started := time.Now()
	records, err := c.transport.Fetch(ctx)
	elapsed := time.Since(started)
	observability.RecordRouterFetch(c.transport.Name(), err == nil, elapsed)
	if err != nil {
		log.Warn().Err(err).Str("transport", c.transport.Name()).Dur("duration", elapsed).Msg("router_fetch_failed")
		return nil, err
	}
	leases := Normalize(records)
	log.Debug().Str("transport", c.transport.Name()).Int("leases", len(leases)).Dur("duration", elapsed).Msg("router_fetch")
	return leases, nil
}

func (c Config) withDefaults() Config {
	c.Host = strings.TrimSpace(c.Host)
	if c.Host == "" {
		c.Host = DefaultHost
	}
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	if c.Transport == "" {
		c.Transport = TransportREST
	}
	c.Proto = strings.ToLower(strings.TrimSpace(c.Proto))
	if c.Proto != "https" {
		c.Proto = "http"
	}
	if c.Port <= 0 {
		c.Port = 80
		if c.Proto == "https" {
			c.Port = 443
		}
	}
	if c.SSHPort <= 0 {
		c.SSHPort = DefaultSSHPort
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}
