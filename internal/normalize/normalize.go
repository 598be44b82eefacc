// Package normalize derives stable grouping keys for companies. The key is
// the cleaned domain when one is well formed, otherwise the cleaned company
// name. Key is pure and total: malformed input degrades to a best-effort key
// rather than failing, and keys are idempotent (Key of a key is the key).
package normalize

import (
	"net"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	legalSuffixes = regexp.MustCompile(
		`(?i)[\s,]+(llc|l\.?l\.?c\.?|inc\.?|incorporated|corp\.?|corporation|` +
			`co\.?|company|ltd\.?|limited|l\.?p\.?|llp|l\.?l\.?p\.?|` +
			`pllc|p\.?l\.?l\.?c\.?|p\.?c\.?|gmbh|ag|plc|` +
			`s\.?a\.?|s\.?r\.?l\.?|b\.?v\.?|n\.?v\.?|pty|pvt|dba|d/b/a)\s*\.?\s*$`)
	multiSpace  = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	domainShape = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)
)

// Key returns the grouping key for a company. Domain wins over name because
// two spellings of the same employer share a registrable domain far more
// reliably than they share a string. A name that is itself domain-shaped
// ("acme.com" in the company column) keys as that domain, which also keeps
// Key stable when fed its own output.
func Key(name, domain string) string {
	if d, ok := Domain(domain); ok {
		return d
	}
	if d, ok := Domain(name); ok {
		return d
	}
	return CleanName(name)
}

// Domain extracts a registrable host from raw domain or URL input. Returns
// false when the input has no usable domain shape.
func Domain(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", false
	}
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			s = u.Host
		}
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimSuffix(s, ".")
	if !domainShape.MatchString(s) {
		return "", false
	}
	return s, true
}

// CleanName lowercases, folds diacritics, strips legal-entity suffixes and
// punctuation, and collapses whitespace.
func CleanName(name string) string {
	n := foldDiacritics(strings.TrimSpace(name))
	n = strings.ToLower(n)
	n = strings.Trim(n, `"'«»“”`)

	// Suffixes stack ("Acme Holdings Corp Ltd"), so strip to a fixed point.
	for {
		stripped := strings.TrimSpace(legalSuffixes.ReplaceAllString(n, ""))
		if stripped == n {
			break
		}
		n = stripped
	}

	n = strings.ReplaceAll(n, "&", " and ")
	n = punctuation.ReplaceAllString(n, " ")
	n = multiSpace.ReplaceAllString(n, " ")
	return strings.TrimSpace(n)
}

// foldDiacritics decomposes and drops combining marks: "Café" -> "Cafe".
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
