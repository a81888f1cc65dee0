package routeros

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized       = errors.New("router rejected credentials: 401 Unauthorized")
	ErrCredentialsMissing = errors.New("router credentials not configured")
	ErrUnknownTransport   = errors.New("unknown router transport")
)

// ProtocolError is any router failure other than rejected credentials.
type ProtocolError struct {
	Transport string
	Status    int
	Detail    string
	Err       error
}

func (e *ProtocolError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("REST error %d %s", e.Status, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Transport, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Transport, e.Detail)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
