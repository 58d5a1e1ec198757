package profile

import (
	"context"
	"strings"
)

// UnknownContact is the placeholder the row store uses when no address was captured.
const UnknownContact = "unknown"

// Profile is the personalization context fetched once per session.
type Profile struct {
	Name           string `json:"name"`
	ContactAddress string `json:"contactAddress"`
	Notes          string `json:"notes,omitempty"`
}

// HasContact reports whether ContactAddress can be used as a delivery target.
func (p *Profile) HasContact() bool {
	if p == nil {
		return false
	}
	addr := strings.TrimSpace(p.ContactAddress)
	return addr != "" && !strings.EqualFold(addr, UnknownContact)
}

// Lookup fetches the most recently created profile. A nil profile with a nil
// error means the store has no rows.
type Lookup interface {
	MostRecent(ctx context.Context) (*Profile, error)
}
