package target

import "strings"

// Blacklist filters out units that are never worth a cast. Names compare
// case-insensitively.
type Blacklist struct {
	names      map[string]struct{}
	substrings []string
}

func NewBlacklist(names, substrings []string) *Blacklist {
	b := &Blacklist{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			b.names[n] = struct{}{}
		}
	}
	for _, s := range substrings {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			b.substrings = append(b.substrings, s)
		}
	}
	return b
}

// IsBlacklisted reports whether name is listed or contains a listed
// substring. The empty name is never blacklisted.
func (b *Blacklist) IsBlacklisted(name string) bool {
	if b == nil || name == "" {
		return false
	}
	lower := strings.ToLower(name)
	if _, ok := b.names[lower]; ok {
		return true
	}
	for _, s := range b.substrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
