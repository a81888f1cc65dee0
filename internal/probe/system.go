package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/danmuck/edgedash/internal/tools"
	"golang.org/x/sync/errgroup"
)

const thermalZoneScript = `for f in /sys/class/thermal/thermal_zone*/temp; do [ -r "$f" ] && cat "$f"; done | head -n1`

func thermalChain() Chain[[]ThermalReading] {
	return Chain[[]ThermalReading]{
		Domain: "thermal",
		Sources: []Source[[]ThermalReading]{
			{
				Name:    SourceTermuxAPI,
				Command: "termux-thermal-sensor",
				Parse:   ParseTermuxThermal,
			},
			{
				Name:    "sysfs",
				Command: thermalZoneScript,
				Parse:   ParseThermalZone,
			},
		},
	}
}

// System gathers the four system sub-probes concurrently. It never fails as
// a whole; each field is independently nullable.
func (p *Prober) System(ctx context.Context) (SystemInfo, error) {
	out := SystemInfo{LoadAvg: []string{}}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r := p.exec.Run(gctx, tools.Script("termux-mem-info"))
		if r.OK {
			out.Mem = ParseMemInfo(r.Stdout)
		}
		return nil
	})
	g.Go(func() error {
		r := p.exec.Run(gctx, tools.Script("uptime -p"))
		if r.OK {
			out.Uptime = ParseUptime(r.Stdout)
		}
		return nil
	})
	g.Go(func() error {
		r := p.exec.Run(gctx, tools.Script("cat /proc/loadavg"))
		if r.OK {
			out.LoadAvg = ParseLoadAvg(r.Stdout)
		}
		return nil
	})
	g.Go(func() error {
		readings, _, err := p.thermal.Resolve(gctx, p.exec)
		if err == nil {
			out.Thermal = readings
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return SystemInfo{}, err
	}
	return out, nil
}

// ParseMemInfo accepts a JSON object and returns nil for anything else.
func ParseMemInfo(stdout string) map[string]any {
	var mem map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &mem); err != nil {
		return nil
	}
	return mem
}

func ParseUptime(stdout string) *string {
	up := strings.TrimSpace(stdout)
	if up == "" {
		return nil
	}
	return ptr(up)
}

// ParseLoadAvg returns the first three whitespace-delimited tokens, or an
// empty slice when fewer are present.
func ParseLoadAvg(stdout string) []string {
	fields := strings.Fields(stdout)
	if len(fields) < 3 {
		return []string{}
	}
	return fields[:3]
}

// ParseTermuxThermal accepts either a list of {type|name, temperature|temp|value}
// objects or an object mapping sensor names to readings.
func ParseTermuxThermal(stdout string) ([]ThermalReading, error) {
	var raw any
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &raw); err != nil {
		return nil, fmt.Errorf("termux thermal json: %w", err)
	}

	var out []ThermalReading
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name := stringField(obj, "type", "name")
			temp := celsiusField(obj, "temperature", "temp", "value")
			if name == nil || temp == "" {
				continue
			}
			out = append(out, ThermalReading{Type: *name, Temperature: temp})
		}
	case map[string]any:
		names := make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if temp := celsiusField(v, name); temp != "" {
				out = append(out, ThermalReading{Type: name, Temperature: temp})
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: termux thermal", ErrNoData)
	}
	return out, nil
}

// ParseThermalZone converts a kernel thermal-zone millidegree reading.
func ParseThermalZone(stdout string) ([]ThermalReading, error) {
	line := strings.TrimSpace(stdout)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	milli, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return nil, fmt.Errorf("%w: thermal zone %q", ErrNoData, line)
	}
	return []ThermalReading{{
		Type:        "cpu",
		Temperature: strconv.FormatFloat(float64(milli)/1000, 'f', 1, 64),
	}}, nil
}

func celsiusField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch x := m[k].(type) {
		case float64:
			return strconv.FormatFloat(x, 'f', 1, 64)
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
				return strconv.FormatFloat(f, 'f', 1, 64)
			}
		}
	}
	return ""
}
