package adapter

import (
	"regexp"
	"strings"
)

// GlobToRegexp compiles a filename glob into an anchored, case-insensitive
// regular expression. Every regex metacharacter except * and ? is escaped;
// * expands to .* and ? to a single character.
func GlobToRegexp(glob string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}
