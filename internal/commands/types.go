package commands

import "errors"

const (
	Update       = "update"
	WifiScan     = "wifi-scan"
	TunnelStart  = "tunnel-start"
	TunnelStop   = "tunnel-stop"
	TunnelStatus = "tunnel-status"

	CodeTunnelClientNotFound = "tunnel-client-not-found"
	CodeTimeout              = "timeout"
)

var (
	ErrCommandNotAllowed   = errors.New("command not allowed")
	ErrSecretNotConfigured = errors.New("tunnel token not configured")
	ErrCommandExists       = errors.New("command already registered")
	ErrInvalidDefinition   = errors.New("invalid command definition")
)

// Definition is one whitelisted command.
type Definition struct {
	ID             string
	Description    string
	Script         string
	Idempotent     bool
	RequiresSecret bool
}

// Metadata is the public view of a Definition. Scripts are not exposed.
type Metadata struct {
	ID             string `json:"id"`
	Description    string `json:"description"`
	Idempotent     bool   `json:"idempotent"`
	RequiresSecret bool   `json:"requires_secret"`
}

// Result is the outcome of a command run. OK=false is an operational state,
// not a gateway error.
type Result struct {
	OK     bool   `json:"ok"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Code   string `json:"code,omitempty"`
}

func (d Definition) Metadata() Metadata {
	return Metadata{
		ID:             d.ID,
		Description:    d.Description,
		Idempotent:     d.Idempotent,
		RequiresSecret: d.RequiresSecret,
	}
}
