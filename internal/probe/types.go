package probe

const (
	StatusCharging    = "CHARGING"
	StatusDischarging = "DISCHARGING"

	SourceTermuxAPI = "termux-api"
	SourceDumpsys   = "dumpsys"
	SourceProc      = "proc"
)

type Battery struct {
	Percentage  *int    `json:"percentage"`
	Temperature *string `json:"temperature"`
	Status      string  `json:"status"`
}

type Wifi struct {
	SSID      *string `json:"ssid"`
	RSSI      *int    `json:"rssi"`
	IP        *string `json:"ip"`
	LinkSpeed *int    `json:"link_speed"`
	BSSID     *string `json:"bssid"`
	Source    string  `json:"source"`
}

func (w Wifi) empty() bool {
	return w.SSID == nil && w.RSSI == nil && w.IP == nil && w.LinkSpeed == nil && w.BSSID == nil
}

type ThermalReading struct {
	Type        string `json:"type"`
	Temperature string `json:"temperature"`
}

type SystemInfo struct {
	Mem     map[string]any   `json:"mem"`
	Uptime  *string          `json:"uptime"`
	LoadAvg []string         `json:"loadavg"`
	Thermal []ThermalReading `json:"thermal"`
}

type NetworkStats struct {
	Iface string `json:"iface"`
	RX    uint64 `json:"rx"`
	TX    uint64 `json:"tx"`
	TS    int64  `json:"ts"`
}

func ptr[T any](v T) *T {
	return &v
}
