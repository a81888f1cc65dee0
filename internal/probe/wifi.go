package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/danmuck/edgedash/internal/tools"
)

const unknownSSID = "<unknown ssid>"

var (
	wifiSSIDRe  = regexp.MustCompile(`\bSSID:\s*"?([^",\r\n]*)"?`)
	wifiBSSIDRe = regexp.MustCompile(`\bBSSID:\s*([0-9A-Fa-f]{2}(?::[0-9A-Fa-f]{2}){5})`)
	wifiRSSIRe  = regexp.MustCompile(`RSSI:\s*(-?\d+)`)
	wifiLinkRe  = regexp.MustCompile(`(?i)Link speed:\s*([0-9]+)\s*Mbps`)
	inetAddrRe  = regexp.MustCompile(`\binet\s+(\d{1,3}(?:\.\d{1,3}){3})/`)
)

func wifiChain(iface string) Chain[Wifi] {
	return Chain[Wifi]{
		Domain: "wifi",
		Code:   "wifi-info-unavailable",
		Sources: []Source[Wifi]{
			{
				Name:    SourceTermuxAPI,
				Tool:    "termux-wifi-connectioninfo",
				Command: "termux-wifi-connectioninfo",
				Parse:   ParseTermuxWifi,
			},
			{
				Name:     SourceDumpsys,
				Command:  "dumpsys wifi | sed -n '1,160p'",
				Parse:    ParseDumpsysWifi,
				Complete: wifiAddress(iface),
			},
			{
				Name:    SourceProc,
				Command: "cat /proc/net/wireless",
				Parse:   ParseProcWireless,
			},
		},
	}
}

func ParseTermuxWifi(stdout string) (Wifi, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &raw); err != nil {
		return Wifi{}, fmt.Errorf("termux wifi json: %w", err)
	}
	if raw == nil {
		return Wifi{}, fmt.Errorf("%w: termux wifi returned null", ErrNoData)
	}

	out := Wifi{
		SSID:      stringField(raw, "ssid", "SSID"),
		RSSI:      intField(raw, "rssi", "RSSI"),
		IP:        stringField(raw, "ip", "ip_address"),
		LinkSpeed: intField(raw, "link_speed", "linkSpeed", "link_speed_mbps"),
		BSSID:     stringField(raw, "bssid"),
		Source:    SourceTermuxAPI,
	}
	if out.SSID != nil && *out.SSID == unknownSSID {
		out.SSID = nil
	}
	return out, nil
}

// ParseDumpsysWifi scrapes the connection summary. It never fails on its own;
// the address lookup in the completion step decides whether the source holds.
func ParseDumpsysWifi(stdout string) (Wifi, error) {
	out := Wifi{Source: SourceDumpsys}
	if m := wifiSSIDRe.FindStringSubmatch(stdout); len(m) == 2 {
		ssid := strings.TrimSpace(m[1])
		if ssid != "" && ssid != unknownSSID {
			out.SSID = ptr(ssid)
		}
	}
	if m := wifiBSSIDRe.FindStringSubmatch(stdout); len(m) == 2 {
		out.BSSID = ptr(strings.ToLower(m[1]))
	}
	if v, ok := matchInt(wifiRSSIRe, stdout); ok {
		out.RSSI = ptr(v)
	}
	if v, ok := matchInt(wifiLinkRe, stdout); ok {
		out.LinkSpeed = ptr(v)
	}
	return out, nil
}

// ParseInetAddress returns the first IPv4 address in `ip -4 -o addr` output.
func ParseInetAddress(stdout string) (string, bool) {
	m := inetAddrRe.FindStringSubmatch(stdout)
	if len(m) != 2 {
		return "", false
	}
	return m[1], true
}

func wifiAddress(iface string) func(context.Context, tools.Executor, Wifi) (Wifi, error) {
	return func(ctx context.Context, x tools.Executor, w Wifi) (Wifi, error) {
		r := x.Run(ctx, tools.Script(fmt.Sprintf("ip -4 -o addr show dev %s 2>/dev/null", iface)))
		if r.OK {
			if ip, ok := ParseInetAddress(r.Stdout); ok {
				w.IP = ptr(ip)
			}
		}
		if w.empty() {
			return Wifi{}, fmt.Errorf("%w: dumpsys wifi", ErrNoData)
		}
		return w, nil
	}
}

// ParseProcWireless reads the link level of the first interface listed in
// /proc/net/wireless (third line, fourth column).
func ParseProcWireless(stdout string) (Wifi, error) {
	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	if len(lines) < 3 {
		return Wifi{}, fmt.Errorf("%w: no wireless interface listed", ErrNoData)
	}
	fields := strings.Fields(lines[2])
	if len(fields) < 4 {
		return Wifi{}, fmt.Errorf("%w: short wireless line", ErrNoData)
	}
	level, err := strconv.Atoi(strings.ReplaceAll(fields[3], ".", ""))
	if err != nil {
		return Wifi{}, fmt.Errorf("%w: wireless level %q", ErrNoData, fields[3])
	}
	return Wifi{RSSI: ptr(level), Source: SourceProc}, nil
}

func stringField(m map[string]any, keys ...string) *string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch x := v.(type) {
		case string:
			return ptr(x)
		case float64:
			return ptr(strconv.FormatFloat(x, 'f', -1, 64))
		}
	}
	return nil
}

func intField(m map[string]any, keys ...string) *int {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch x := v.(type) {
		case float64:
			return ptr(int(math.Round(x)))
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
				return ptr(n)
			}
		}
	}
	return nil
}
