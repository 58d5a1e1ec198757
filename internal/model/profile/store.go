package profile

import "context"

// StaticLookup implements Lookup with a fixed profile, used when no row store is configured.
type StaticLookup struct {
	item *Profile
}

// NewStaticLookup returns a lookup that always yields p. A nil p behaves like an empty store.
func NewStaticLookup(p *Profile) *StaticLookup {
	if p == nil {
		return &StaticLookup{}
	}
	copied := *p
	return &StaticLookup{item: &copied}
}

// MostRecent returns a copy of the configured profile.
func (s *StaticLookup) MostRecent(context.Context) (*Profile, error) {
	if s.item == nil {
		return nil, nil
	}
	copied := *s.item
	return &copied, nil
}
