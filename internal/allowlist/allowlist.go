// Package allowlist holds the process-wide set of wallet addresses authorized to sign in.
package allowlist

import (
	"sort"
	"strings"
)

// List is an immutable set of authorized wallet addresses. An empty list means public mode.
type List struct {
	addrs map[string]string // normalized -> address as configured
}

// Parse builds a List from a comma-separated value (e.g. ALLOWED_WALLETS).
// Entries are trimmed; empties and duplicates are dropped.
func Parse(raw string) *List {
	l := &List{addrs: make(map[string]string)}
	for _, p := range strings.Split(raw, ",") {
		a := strings.TrimSpace(p)
		if a == "" {
			continue
		}
		key := normalize(a)
		if _, ok := l.addrs[key]; !ok {
			l.addrs[key] = a
		}
	}
	return l
}

// Addresses returns the configured addresses in sorted order. The slice is a copy.
func (l *List) Addresses() []string {
	if l == nil {
		return nil
	}
	out := make([]string, 0, len(l.addrs))
	for _, a := range l.addrs {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of configured addresses.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.addrs)
}

// IsPublicMode reports whether no allow-list is configured, in which case every address is allowed.
func (l *List) IsPublicMode() bool {
	return l.Len() == 0
}

// IsAllowed reports whether address may sign in. Empty addresses are never allowed, even in
// public mode: no wallet signs for an empty address.
// Comparison ignores case so checksummed and lowercase hex forms match.
func (l *List) IsAllowed(address string) bool {
	address = strings.TrimSpace(address)
	if address == "" {
		return false
	}
	if l.IsPublicMode() {
		return true
	}
	_, ok := l.addrs[normalize(address)]
	return ok
}

func normalize(address string) string {
	return strings.ToLower(address)
}
