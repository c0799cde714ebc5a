package username

import (
	"net/url"
	"strings"
)

// InstagramHandle reduces an Instagram link field to a bare handle.
// Full profile URLs ("https://www.instagram.com/djnova/?hl=en"), scheme-less
// URLs ("instagram.com/djnova") and "@djnova" all become "djnova". A value
// that is already a bare handle is returned unchanged, as is anything that
// points somewhere other than instagram.com or at a post, reel or other
// non-profile page.
func InstagramHandle(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	lower := strings.ToLower(trimmed)
	if !strings.Contains(lower, "instagram.com") {
		return strings.TrimLeft(trimmed, "@")
	}

	raw := trimmed
	if !strings.Contains(lower, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return trimmed
	}
	host := strings.ToLower(parsed.Hostname())
	if host != "instagram.com" && !strings.HasSuffix(host, ".instagram.com") {
		return trimmed
	}

	for _, segment := range strings.Split(parsed.Path, "/") {
		segment = strings.TrimLeft(strings.TrimSpace(segment), "@")
		if segment == "" {
			continue
		}
		if _, reserved := instagramPages[strings.ToLower(segment)]; reserved {
			return trimmed
		}
		return segment
	}
	return trimmed
}

// instagramPages are first path segments that never name a profile.
var instagramPages = map[string]struct{}{
	"p":        {},
	"reel":     {},
	"reels":    {},
	"tv":       {},
	"stories":  {},
	"explore":  {},
	"accounts": {},
	"direct":   {},
	"s":        {},
}
