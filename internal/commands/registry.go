package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/danmuck/edgedash/internal/tunnel"
)

// Registry stores command definitions by stable identifier. It is filled once by
// NewRegistry and never mutated afterwards.
type Registry struct {
	items map[string]Definition
}

// NewRegistry validates and indexes definitions.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{items: make(map[string]Definition, len(defs))}
	for _, def := range defs {
		if err := ValidateDefinition(def); err != nil {
			return nil, err
		}
		if _, ok := r.items[def.ID]; ok {
			return nil, fmt.Errorf("%w: %q", ErrCommandExists, def.ID)
		}
		r.items[def.ID] = def
	}
	return r, nil
}

// ValidateDefinition checks required fields and id format.
func ValidateDefinition(def Definition) error {
	id := strings.TrimSpace(def.ID)
	if id == "" || strings.TrimSpace(def.Description) == "" || strings.TrimSpace(def.Script) == "" {
		return fmt.Errorf("%w: id, description, and script are required", ErrInvalidDefinition)
	}
	if id != def.ID || !isValidID(id) {
		return fmt.Errorf("%w: invalid id format %q", ErrInvalidDefinition, def.ID)
	}
	return nil
}

func (r *Registry) Resolve(id string) (Definition, bool) {
	def, ok := r.items[id]
	return def, ok
}

// List returns metadata ordered by id.
func (r *Registry) List() []Metadata {
	list := make([]Metadata, 0, len(r.items))
	for _, def := range r.items {
		list = append(list, def.Metadata())
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list
}

// DefaultDefinitions is the complete command whitelist.
func DefaultDefinitions(monitor *tunnel.Monitor) []Definition {
	return []Definition{
		{
			ID:          Update,
			Description: "Update and upgrade installed packages",
			Script:      "pkg update -y && pkg upgrade -y",
		},
		{
			ID:          WifiScan,
			Description: "Scan nearby wifi networks",
			Script: "if command -v termux-wifi-scaninfo >/dev/null 2>&1; then termux-wifi-scaninfo; " +
				"else dumpsys wifi | sed -n '1,200p'; fi",
			Idempotent: true,
		},
		{
			ID:             TunnelStart,
			Description:    "Start the remote access tunnel",
			Script:         monitor.StartScript(),
			Idempotent:     true,
			RequiresSecret: true,
		},
		{
			ID:          TunnelStop,
			Description: "Stop the remote access tunnel",
			Script:      monitor.StopScript(),
			Idempotent:  true,
		},
		{
			ID:          TunnelStatus,
			Description: "Report whether the tunnel client is running",
			Script:      monitor.StatusScript(),
			Idempotent:  true,
		},
	}
}

func isValidID(id string) bool {
	if id == "" {
		return false
	}
	lastSep := false
	for i := 0; i < len(id); i++ {
		c := id[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSep := c == '.' || c == '-' || c == '_'
		if !(isLower || isDigit || isSep) {
			return false
		}
		if (i == 0 || i == len(id)-1) && isSep {
			return false
		}
		if isSep && lastSep {
			return false
		}
		lastSep = isSep
	}
	return true
}
