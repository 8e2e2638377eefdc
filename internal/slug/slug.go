package slug

import (
	"errors"
	"strings"
)

// maxTaskSlugLength bounds slugs destined for task identifiers so the
// resulting filenames stay manageable.
const maxTaskSlugLength = 48

// ErrEmptySlug is returned when a title reduces to nothing.
var ErrEmptySlug = errors.New("title produces an empty slug")

// ForTaskID converts a task title into the slug component of a task id,
// truncating at a hyphen boundary when the title is long.
func ForTaskID(title string) (string, error) {
	s := Slugify(title)
	if s == "" {
		return "", ErrEmptySlug
	}
	if len(s) > maxTaskSlugLength {
		s = s[:maxTaskSlugLength]
		if cut := strings.LastIndexByte(s, '-'); cut > 0 {
			s = s[:cut]
		}
		s = strings.Trim(s, "-")
	}
	return s, nil
}

// Slugify converts the provided text to a lowercase ASCII slug with hyphens.
func Slugify(text string) string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return ""
	}

	var builder strings.Builder
	builder.Grow(len(clean))
	prevHyphen := false
	for _, r := range strings.ToLower(clean) {
		switch {
		case r >= 'a' && r <= 'z':
			builder.WriteRune(r)
			prevHyphen = false
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
			prevHyphen = false
		default:
			if !prevHyphen {
				builder.WriteRune('-')
				prevHyphen = true
			}
		}
	}

	return strings.Trim(builder.String(), "-")
}
