package routeros

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
)

const (
	leasePath    = "/rest/ip/dhcp-server/lease"
	maxBodyBytes = 8 << 20
)

// REST fetches leases from the RouterOS REST API.
type REST struct {
	url      string
	user     string
	password string
	client   *http.Client
}

func NewREST(cfg Config) (*REST, error) {
	cfg = cfg.withDefaults()
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proto == "https" && cfg.TLSInsecure {
		// LAN routers commonly serve self-signed certificates.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	host := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	return &REST{
		url:      fmt.Sprintf("%s://%s%s", cfg.Proto, host, leasePath),
		user:     cfg.User,
		password: cfg.Password,
		client:   &http.Client{Transport: transport, Timeout: cfg.Timeout},
	}, nil
}

func (r *REST) Name() string {
	return TransportREST
}

func (r *REST) URL() string {
	return r.url
}

func (r *REST) Fetch(ctx context.Context) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, &ProtocolError{Transport: TransportREST, Detail: "build request", Err: err}
	}
	req.SetBasicAuth(r.user, r.password)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &ProtocolError{Transport: TransportREST, Detail: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProtocolError{
			Transport: TransportREST,
			Status:    resp.StatusCode,
			Detail:    http.StatusText(resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &ProtocolError{Transport: TransportREST, Detail: "read body", Err: err}
	}
	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, &ProtocolError{Transport: TransportREST, Detail: "malformed lease payload", Err: err}
	}
	if records == nil {
		return nil, &ProtocolError{Transport: TransportREST, Detail: "lease payload is not an array"}
	}
	return records, nil
}
