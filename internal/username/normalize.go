// Package username holds the canonicalization rules for chat usernames.
//
// A display name is what a creator typed ("DJ Nova"); its canonical key is
// the registry primary key derived from it ("djnova"). Two key rules have
// existed over the life of the registry. V1 stripped whitespace, lowercased
// and kept everything else, hyphens included. V2, the current rule, keeps
// only ASCII letters and digits. Any stored key that V2 would change is
// non-canonical.
package username

import (
	"regexp"
	"strings"
)

// Version identifies a normalization rule.
type Version int

const (
	V1 Version = 1
	V2 Version = 2

	Current = V2
)

const (
	MinDisplayLength = 2
	MaxDisplayLength = 20
)

var displayPattern = regexp.MustCompile(`^[A-Za-z0-9]+(?:\s+[A-Za-z0-9]+)*$`)

// Normalize maps a display name to its canonical key using the current rule.
// It is total: an input with no letters or digits yields "".
func Normalize(display string) string {
	return NormalizeWith(Current, display)
}

// NormalizeWith applies a specific rule version.
func NormalizeWith(v Version, display string) string {
	switch v {
	case V1:
		var b strings.Builder
		for _, r := range display {
			if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\v' {
				continue
			}
			b.WriteRune(r)
		}
		return strings.ToLower(b.String())
	default:
		var b strings.Builder
		b.Grow(len(display))
		for i := 0; i < len(display); i++ {
			c := display[i]
			switch {
			case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
				b.WriteByte(c)
			case c >= 'A' && c <= 'Z':
				b.WriteByte(c + ('a' - 'A'))
			}
		}
		return b.String()
	}
}

// IsCanonicalKey reports whether key is already in current canonical form.
func IsCanonicalKey(key string) bool {
	return key != "" && Normalize(key) == key
}

// IsLegacyID reports whether a document id came from the hyphenated id scheme.
func IsLegacyID(id string) bool {
	return strings.Contains(id, "-")
}

// ValidDisplayName reports whether display is acceptable as a chat username:
// whitespace-separated groups of ASCII letters and digits, 2 to 20 bytes.
func ValidDisplayName(display string) bool {
	if len(display) < MinDisplayLength || len(display) > MaxDisplayLength {
		return false
	}
	return displayPattern.MatchString(display)
}

// Derive computes the display name and canonical key a profile should carry,
// given whatever fields it currently has. The first non-blank source wins in
// the order chatUsername, chatUsernameNormalized, displayName, id. When that
// source is not a valid display name its normalized form stands in for it.
//
// Derive never consults the stored normalized value as a key, only as a
// display source, so repeated application after partial repairs yields the
// same result.
func Derive(chatUsername, normalized, displayName, id string) (display, key string) {
	candidate := firstNonBlank(chatUsername, normalized, displayName, id)
	key = Normalize(candidate)
	if ValidDisplayName(candidate) {
		return candidate, key
	}
	return key, key
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
