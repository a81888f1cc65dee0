package probe

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	dumpsysLevelRe  = regexp.MustCompile(`(?m)^\s*level:\s*(\d+)`)
	dumpsysTempRe   = regexp.MustCompile(`(?m)^\s*temperature:\s*(-?\d+)`)
	dumpsysStatusRe = regexp.MustCompile(`(?m)^\s*status:\s*(\d+)`)
)

func batteryChain() Chain[Battery] {
	return Chain[Battery]{
		Domain: "battery",
		Code:   "battery-unavailable",
		Sources: []Source[Battery]{
			{
				Name:    SourceTermuxAPI,
				Tool:    "termux-battery-status",
				Command: "termux-battery-status",
				Parse:   ParseTermuxBattery,
			},
			{
				Name:    SourceDumpsys,
				Command: "dumpsys battery",
				Parse:   ParseDumpsysBattery,
			},
		},
	}
}

// ChargingStatus maps an Android BatteryManager status code to the
// dashboard status. 2 (charging) and 5 (full) count as charging.
func ChargingStatus(code int) string {
	switch code {
	case 2, 5:
		return StatusCharging
	default:
		return StatusDischarging
	}
}

// TenthsToCelsius renders a tenths-of-a-degree reading with one decimal.
func TenthsToCelsius(tenths int) string {
	return strconv.FormatFloat(float64(tenths)/10, 'f', 1, 64)
}

type termuxBattery struct {
	Percentage  *float64 `json:"percentage"`
	Temperature *float64 `json:"temperature"`
	Status      string   `json:"status"`
}

func ParseTermuxBattery(stdout string) (Battery, error) {
	var raw termuxBattery
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &raw); err != nil {
		return Battery{}, fmt.Errorf("termux battery json: %w", err)
	}
	if raw.Percentage == nil && raw.Status == "" {
		return Battery{}, fmt.Errorf("%w: termux battery has no percentage or status", ErrNoData)
	}

	out := Battery{Status: StatusDischarging}
	if raw.Percentage != nil {
		out.Percentage = ptr(int(math.Round(*raw.Percentage)))
	}
	if raw.Temperature != nil {
		out.Temperature = ptr(strconv.FormatFloat(*raw.Temperature, 'f', 1, 64))
	}
	switch strings.ToUpper(strings.TrimSpace(raw.Status)) {
	case "CHARGING", "FULL":
		out.Status = StatusCharging
	}
	return out, nil
}

func ParseDumpsysBattery(stdout string) (Battery, error) {
	level, hasLevel := matchInt(dumpsysLevelRe, stdout)
	temp, hasTemp := matchInt(dumpsysTempRe, stdout)
	status, hasStatus := matchInt(dumpsysStatusRe, stdout)
	if !hasLevel && !hasTemp && !hasStatus {
		return Battery{}, fmt.Errorf("%w: dumpsys battery", ErrNoData)
	}

	out := Battery{Status: ChargingStatus(status)}
	if hasLevel {
		out.Percentage = ptr(level)
	}
	if hasTemp {
		out.Temperature = ptr(TenthsToCelsius(temp))
	}
	return out, nil
}

func matchInt(re *regexp.Regexp, s string) (int, bool) {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return v, true
}
