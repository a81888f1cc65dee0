package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/danmuck/edgedash/internal/tools"
)

const (
	CodeLinkFailed = "ip-link-failed"
	CodeLinkParse  = "ip-link-parse"
)

var (
	ErrInvalidInterface = errors.New("probe: invalid interface name")

	ifacePattern = regexp.MustCompile(`^[A-Za-z0-9._@-]{1,32}$`)
	routeDevRe   = regexp.MustCompile(`\bdev\s+(\S+)`)
)

// StatsError is a structured network stats failure. It never carries a
// partial sample.
type StatsError struct {
	Code   string
	Iface  string
	Detail string
}

func (e *StatsError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Iface, e.Detail)
}

// ValidInterface reports whether name is safe to place in a script.
func ValidInterface(name string) bool {
	return ifacePattern.MatchString(name)
}

func ifaceChain(routeTarget, fallback string) Chain[string] {
	return Chain[string]{
		Domain: "iface",
		Sources: []Source[string]{
			{
				Name:    "route",
				Command: fmt.Sprintf("ip route get %s 2>/dev/null", routeTarget),
				Parse:   ParseRouteDevice,
			},
			{
				Name:    "link",
				Command: "ip -o link show",
				Parse:   ParseFirstUpLink,
			},
			{
				Name: "default",
				Parse: func(string) (string, error) {
					return fallback, nil
				},
			},
		},
	}
}

// ParseRouteDevice extracts the interface after "dev" in `ip route get` output.
func ParseRouteDevice(stdout string) (string, error) {
	m := routeDevRe.FindStringSubmatch(stdout)
	if len(m) != 2 {
		return "", fmt.Errorf("%w: no dev in route output", ErrNoData)
	}
	if !ValidInterface(m[1]) {
		return "", fmt.Errorf("%w: %q", ErrInvalidInterface, m[1])
	}
	return m[1], nil
}

// ParseFirstUpLink returns the first non-loopback interface whose flags
// include UP in `ip -o link show` output.
func ParseFirstUpLink(stdout string) (string, error) {
	for _, line := range strings.Split(stdout, "\n") {
		parts := strings.SplitN(line, ": ", 3)
		if len(parts) < 3 {
			continue
		}
		name := strings.TrimSpace(parts[1])
		if i := strings.IndexByte(name, '@'); i > 0 {
			name = name[:i]
		}
		if name == "lo" || !ValidInterface(name) {
			continue
		}
		if !linkIsUp(parts[2]) {
			continue
		}
		return name, nil
	}
	return "", fmt.Errorf("%w: no non-loopback interface up", ErrNoData)
}

func linkIsUp(rest string) bool {
	start := strings.IndexByte(rest, '<')
	end := strings.IndexByte(rest, '>')
	if start >= 0 && end > start {
		for _, flag := range strings.Split(rest[start+1:end], ",") {
			if flag == "UP" {
				return true
			}
		}
	}
	return strings.Contains(rest, "state UP")
}

type ipLink struct {
	IfName  string   `json:"ifname"`
	Stats64 *ipStats `json:"stats64"`
	Stats   *ipStats `json:"stats"`
}

type ipStats struct {
	RX      *ipCounters `json:"rx"`
	TX      *ipCounters `json:"tx"`
	RXBytes *uint64     `json:"rx_bytes"`
	TXBytes *uint64     `json:"tx_bytes"`
}

type ipCounters struct {
	Bytes *uint64 `json:"bytes"`
}

// ParseLinkStats reads byte counters from `ip -s -j link show` output,
// preferring 64-bit stats and accepting nested or flat counter names.
func ParseLinkStats(stdout string) (iface string, rx, tx uint64, err error) {
	var links []ipLink
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &links); err != nil {
		return "", 0, 0, fmt.Errorf("decode ip link json: %w", err)
	}
	if len(links) == 0 {
		return "", 0, 0, errors.New("ip link returned no interfaces")
	}
	first := links[0]
	stats := first.Stats64
	if stats == nil {
		stats = first.Stats
	}
	if stats == nil {
		return "", 0, 0, errors.New("ip link output has no stats")
	}
	rxBytes := counter(stats.RX, stats.RXBytes)
	txBytes := counter(stats.TX, stats.TXBytes)
	if rxBytes == nil || txBytes == nil {
		return "", 0, 0, errors.New("ip link stats missing byte counters")
	}
	return first.IfName, *rxBytes, *txBytes, nil
}

func counter(nested *ipCounters, flat *uint64) *uint64 {
	if nested != nil && nested.Bytes != nil {
		return nested.Bytes
	}
	return flat
}

// Network resolves the active interface and reads its byte counters.
func (p *Prober) Network(ctx context.Context) (NetworkStats, error) {
	iface, source, err := p.iface.Resolve(ctx, p.exec)
	if err != nil {
		// the chain ends in a literal default, so only cancellation lands here
		return NetworkStats{}, err
	}

	r := p.exec.Run(ctx, tools.Script(fmt.Sprintf("ip -s -j link show dev %s", iface)))
	if !r.OK {
		return NetworkStats{}, &StatsError{Code: CodeLinkFailed, Iface: iface, Detail: r.Error}
	}
	name, rx, tx, err := ParseLinkStats(r.Stdout)
	if err != nil {
		return NetworkStats{}, &StatsError{Code: CodeLinkParse, Iface: iface, Detail: err.Error()}
	}
	if name == "" {
		name = iface
	}
	p.log.Debug().Str("iface", name).Str("resolved_by", source).Msg("network_stats")
	return NetworkStats{
		Iface: name,
		RX:    rx,
		TX:    tx,
		TS:    p.now().UnixMilli(),
	}, nil
}
