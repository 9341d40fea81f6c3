package event

import "time"

// Filter selects events for relay Subscribe/Fetch calls. A zero-value
// field means "no constraint on this dimension".
type Filter struct {
	Kinds   []Kind
	Authors []string // pubkeys
	IDs     []string
	Tags    map[string][]string // tag name -> accepted values (OR'd)
	Since   time.Time
	Until   time.Time
	Limit   int
}

// Matches reports whether ev satisfies every constraint in f.
func (f Filter) Matches(ev *Event) bool {
	if len(f.Kinds) > 0 && !containsKind(f.Kinds, ev.Kind) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, ev.PubKey) {
		return false
	}
	if len(f.IDs) > 0 && !containsString(f.IDs, ev.ID) {
		return false
	}
	if !f.Since.IsZero() && ev.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && ev.CreatedAt.After(f.Until) {
		return false
	}
	for name, accepted := range f.Tags {
		values := ev.Values(name)
		if !anyIntersect(values, accepted) {
			return false
		}
	}
	return true
}

func containsKind(ks []Kind, k Kind) bool {
	for _, x := range ks {
		if x == k {
			return true
		}
	}
	return false
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func anyIntersect(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}
