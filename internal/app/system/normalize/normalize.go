// Package normalize canonicalizes user-supplied strings before they are
// validated or stored.
package normalize

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// strict removes every tag; activity text is displayed as plain text.
var strict = bluemonday.StrictPolicy()

// maxStripPasses bounds how many layers of entity encoding StripMarkup
// peels off.
const maxStripPasses = 4

// StripMarkup removes HTML tags and returns the remaining text unescaped.
// Unescaping can turn encoded markup such as "&lt;script&gt;" into live tags,
// so the text is sanitized again until it no longer changes. Input still
// changing after maxStripPasses is returned in its escaped form.
func StripMarkup(s string) string {
	if s == "" {
		return ""
	}
	for pass := 0; pass < maxStripPasses; pass++ {
		out := html.UnescapeString(strict.Sanitize(s))
		if out == s {
			return out
		}
		s = out
	}
	return strict.Sanitize(s)
}

// Text strips markup, trims surrounding whitespace and upper-cases the first
// letter. Used for activity title, description and location.
func Text(s string) string {
	return Capitalize(strings.TrimSpace(StripMarkup(s)))
}

// Capitalize upper-cases the first rune and leaves the rest untouched.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Email trims and lower-cases an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims a person or organization name and strips markup. Case is kept.
func Name(s string) string {
	return strings.TrimSpace(StripMarkup(s))
}

// Role lower-cases a role name.
func Role(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Status lower-cases a status or attendance decision.
func Status(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// QueryParam trims a query-string value.
func QueryParam(s string) string {
	return strings.TrimSpace(s)
}
