package routeros

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const leasePrintCommand = "/ip dhcp-server lease print terse without-paging"

// SSH fetches leases over an interactive RouterOS SSH session.
type SSH struct {
	Host                        string
	Port                        int
	User                        string
	Password                    string
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	Timeout                     time.Duration
}

func NewSSH(cfg Config) *SSH {
	cfg = cfg.withDefaults()
	return &SSH{
		Host:                        cfg.Host,
		Port:                        cfg.SSHPort,
		User:                        cfg.User,
		Password:                    cfg.Password,
		KnownHostsPath:              cfg.KnownHostsPath,
		InsecureSkipHostKeyChecking: cfg.HostKeyInsecure,
		Timeout:                     cfg.Timeout,
	}
}

func (s *SSH) Name() string {
	return TransportSSH
}

func (s *SSH) Fetch(ctx context.Context) ([]Record, error) {
	client, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, &ProtocolError{Transport: TransportSSH, Detail: "open session", Err: err}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(leasePrintCommand) }()

	var timeout <-chan time.Time
	if s.Timeout > 0 {
		timer := time.NewTimer(s.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err = <-done:
	case <-ctx.Done():
		client.Close()
		return nil, &ProtocolError{Transport: TransportSSH, Detail: "lease print canceled", Err: ctx.Err()}
	case <-timeout:
		client.Close()
		return nil, &ProtocolError{Transport: TransportSSH, Detail: "lease print timed out", Err: context.DeadlineExceeded}
	}
	if err != nil {
		detail := "lease print failed"
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			detail = fmt.Sprintf("%s: %s", detail, msg)
		}
		return nil, &ProtocolError{Transport: TransportSSH, Detail: detail, Err: err}
	}
	return ParseTerse(stdout.String()), nil
}

func (s *SSH) dial(ctx context.Context) (*ssh.Client, error) {
	address, err := s.address()
	if err != nil {
		return nil, err
	}
	config, err := s.clientConfig()
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: s.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &ProtocolError{Transport: TransportSSH, Detail: "dial", Err: err}
	}
	if s.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.Timeout))
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()
		if isAuthFailure(err) {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return nil, &ProtocolError{Transport: TransportSSH, Detail: "handshake", Err: err}
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(clientConn, chans, reqs), nil
}

func (s *SSH) address() (string, error) {
	host := strings.TrimSpace(s.Host)
	if host == "" {
		return "", &ProtocolError{Transport: TransportSSH, Detail: "host is required"}
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}
	port := s.Port
	if port <= 0 {
		port = DefaultSSHPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

func (s *SSH) clientConfig() (*ssh.ClientConfig, error) {
	if s.User == "" {
		return nil, ErrCredentialsMissing
	}

	var hostKeyCallback ssh.HostKeyCallback
	if s.InsecureSkipHostKeyChecking {
		hostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec
	} else {
		callback, err := s.knownHostsCallback()
		if err != nil {
			return nil, &ProtocolError{Transport: TransportSSH, Detail: "known hosts", Err: err}
		}
		hostKeyCallback = callback
	}

	password := s.Password
	return &ssh.ClientConfig{
		User: s.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         s.Timeout,
	}, nil
}

func (s *SSH) knownHostsCallback() (ssh.HostKeyCallback, error) {
	path := strings.TrimSpace(s.KnownHostsPath)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("known hosts path not set and home dir unavailable")
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	return knownhosts.New(path)
}

func isAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}
