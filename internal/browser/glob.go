package browser

import (
	"fmt"
	"regexp"
	"strings"
)

// compileURLGlob turns a URL glob into a regexp. "**" matches any run of
// characters, "*" stays within one path segment and "?" matches one
// non-slash character.
func compileURLGlob(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("empty URL pattern")
	}

	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	// Query strings and fragments do not affect a match.
	b.WriteString(`(?:[?#].*)?$`)

	return regexp.Compile(b.String())
}
