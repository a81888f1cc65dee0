package probe

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/danmuck/edgedash/internal/tools"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultInterface   = "wlan0"
	DefaultRouteTarget = "1.1.1.1"
)

// Options tune interface names and the routing probe target.
type Options struct {
	WifiIface    string
	DefaultIface string
	RouteTarget  string
}

// Prober owns the fallback chains for every telemetry domain.
type Prober struct {
	exec    tools.Executor
	now     func() time.Time
	log     zerolog.Logger
	battery Chain[Battery]
	wifi    Chain[Wifi]
	thermal Chain[[]ThermalReading]
	iface   Chain[string]
}

func NewProber(exec tools.Executor, opts Options) *Prober {
	opts = opts.withDefaults()
	return &Prober{
		exec:    exec,
		now:     time.Now,
		log:     log.With().Str("component", "probe").Logger(),
		battery: batteryChain(),
		wifi:    wifiChain(opts.WifiIface),
		thermal: thermalChain(),
		iface:   ifaceChain(opts.RouteTarget, opts.DefaultIface),
	}
}

// WithClock replaces the timestamp source used for network samples.
func (p *Prober) WithClock(now func() time.Time) *Prober {
	p.now = now
	return p
}

func (p *Prober) Battery(ctx context.Context) (Battery, error) {
	b, source, err := p.battery.Resolve(ctx, p.exec)
	if err != nil {
		return Battery{}, err
	}
	p.log.Debug().Str("source", source).Msg("battery_probe")
	return b, nil
}

func (p *Prober) Wifi(ctx context.Context) (Wifi, error) {
	w, _, err := p.wifi.Resolve(ctx, p.exec)
	if err != nil {
		return Wifi{}, err
	}
	return w, nil
}

func (o Options) withDefaults() Options {
	o.WifiIface = strings.TrimSpace(o.WifiIface)
	if !ValidInterface(o.WifiIface) {
		o.WifiIface = DefaultInterface
	}
	o.DefaultIface = strings.TrimSpace(o.DefaultIface)
	if !ValidInterface(o.DefaultIface) {
		o.DefaultIface = DefaultInterface
	}
	if net.ParseIP(strings.TrimSpace(o.RouteTarget)) == nil {
		o.RouteTarget = DefaultRouteTarget
	} else {
		o.RouteTarget = strings.TrimSpace(o.RouteTarget)
	}
	return o
}
