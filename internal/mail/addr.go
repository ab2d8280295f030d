package mail

import (
	"regexp"
	"strings"
)

var reAddrSep = regexp.MustCompile(`[;,\s]+`)

// NormalizeAddresses flattens heterogeneous recipient input into a
// deduplicated ordered list. A string is split on runs of comma, semicolon
// or whitespace; a slice has each element split the same way. Empty and
// already-seen fragments are dropped, first-seen order is preserved.
//
// Accepted input types: string, []string, []any (string elements). Anything
// else yields nil.
func NormalizeAddresses(value any) []string {
	var parts []string
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		parts = reAddrSep.Split(strings.TrimSpace(v), -1)
	case []string:
		for _, s := range v {
			if s == "" {
				continue
			}
			parts = append(parts, reAddrSep.Split(strings.TrimSpace(s), -1)...)
		}
	case []any:
		for _, e := range v {
			s, ok := e.(string)
			if !ok || s == "" {
				continue
			}
			parts = append(parts, reAddrSep.Split(strings.TrimSpace(s), -1)...)
		}
	default:
		return nil
	}

	seen := make(map[string]struct{}, len(parts))
	var out []string
	for _, p := range parts {
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// DomainAllowed reports whether addr's domain matches the allow-list,
// case-insensitively, either exactly or as a dot-suffix ("mail@sub.x.com"
// matches an allow-listed "x.com"). An empty allow-list admits everything;
// an address without "@" fails when a list is configured.
func DomainAllowed(addr string, allow []string) bool {
	if len(allow) == 0 {
		return true
	}
	i := strings.Index(addr, "@")
	if i < 0 || i == len(addr)-1 {
		return false
	}
	domain := strings.ToLower(addr[i+1:])
	for _, d := range allow {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}
