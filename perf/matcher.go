package perf

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/c360/perfkit/errors"
)

// Matcher selects cache keys for invalidation.
type Matcher interface {
	// Match reports whether a cache key should be invalidated.
	Match(key string) bool

	// String describes the matcher for logging.
	String() string
}

// substringMatcher matches keys containing a literal fragment.
type substringMatcher struct {
	fragment string
}

func (m substringMatcher) Match(key string) bool {
	return strings.Contains(key, m.fragment)
}

func (m substringMatcher) String() string {
	return fmt.Sprintf("substring(%q)", m.fragment)
}

// MatchSubstring returns a matcher selecting keys that contain fragment.
func MatchSubstring(fragment string) Matcher {
	return substringMatcher{fragment: fragment}
}

// regexMatcher matches keys against a compiled regular expression.
type regexMatcher struct {
	re *regexp.Regexp
}

func (m regexMatcher) Match(key string) bool {
	return m.re.MatchString(key)
}

func (m regexMatcher) String() string {
	return fmt.Sprintf("regex(%q)", m.re.String())
}

// MatchRegex returns a matcher selecting keys that match pattern.
// Returns an invalid-classified error if the pattern does not compile.
func MatchRegex(pattern string) (Matcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Matcher", "MatchRegex", "compile pattern")
	}
	return regexMatcher{re: re}, nil
}
