package routeros

import (
	"fmt"
	"strings"
)

// Lease is the canonical DHCP lease shape. Missing router fields are "".
type Lease struct {
	IP       string `json:"ip"`
	MAC      string `json:"mac"`
	Hostname string `json:"hostname"`
	Status   string `json:"status"`
}

// Record is one raw lease as reported by the router.
type Record map[string]any

// Normalize maps router field names onto Lease in input order.
func Normalize(records []Record) []Lease {
	leases := make([]Lease, 0, len(records))
	for _, r := range records {
		leases = append(leases, Lease{
			IP:       r.field("address"),
			MAC:      r.field("mac-address"),
			Hostname: r.field("host-name"),
			Status:   r.field("status"),
		})
	}
	return leases
}

func (r Record) field(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// ParseTerse parses `print terse` output into records. Each non-empty line is
// one record of key=value pairs; leading index and flag columns are dropped
// and unkeyed tokens extend the previous value.
func ParseTerse(out string) []Record {
	var records []Record
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "Flags:") || strings.HasPrefix(line, "#") {
			continue
		}
		rec := Record{}
		key := ""
		for _, tok := range strings.Fields(line) {
			if k, v, ok := splitPair(tok); ok {
				key = k
				rec[key] = v
				continue
			}
			if key != "" {
				rec[key] = rec[key].(string) + " " + tok
			}
		}
		if len(rec) == 0 {
			continue
		}
		for k, v := range rec {
			rec[k] = unquote(v.(string))
		}
		records = append(records, rec)
	}
	return records
}

func splitPair(tok string) (string, string, bool) {
	k, v, ok := strings.Cut(tok, "=")
	if !ok || k == "" {
		return "", "", false
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' || c == '.') {
			return "", "", false
		}
	}
	return k, v, true
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1]
	}
	return v
}
