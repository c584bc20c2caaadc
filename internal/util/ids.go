package util

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxSlugRunes = 48

// NewDocumentID derives a document identity from a normalized title plus a
// timestamp and a random fragment. Two topics with the same title in the same
// run (or on the same day) must never collide.
func NewDocumentID(title string, now time.Time) string {
	slug := Slugify(title)
	if slug == "" {
		slug = "doc"
	}
	return slug + "-" + now.UTC().Format("20060102150405") + "-" + uuid.NewString()[:8]
}

// Slugify lowercases s and collapses every non-alphanumeric run into a single
// hyphen, capped at maxSlugRunes.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastHyphen := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	runes := []rune(out)
	if len(runes) > maxSlugRunes {
		out = strings.Trim(string(runes[:maxSlugRunes]), "-")
	}
	return out
}
