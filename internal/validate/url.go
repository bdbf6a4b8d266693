package validate

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	illegalURLChars = regexp.MustCompile(`(?i)[^a-z0-9:/?#[\]@!$&'()*+,;=.\-_~%]`)
	hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9]+[\w-]*([.]?[a-zA-Z0-9]+[\w-]*)*$`)
	pathPattern     = regexp.MustCompile(`^(/[\w\-.~!$'()*+,;=:@%]+)*/?$`)
)

// IsURL reports whether s is an absolute http or https URL with a plain
// hostname and a path made only of unreserved and sub-delimiter characters.
func IsURL(s string) bool {
	u, ok := parseURL(s)
	return ok && u != nil
}

// IsHTTPSURL is IsURL restricted to the https scheme.
func IsHTTPSURL(s string) bool {
	u, ok := parseURL(s)
	return ok && u.Scheme == "https"
}

func parseURL(s string) (*url.URL, bool) {
	if s == "" || illegalURLChars.MatchString(s) {
		return nil, false
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, false
	}
	if !strings.HasPrefix(s[len(u.Scheme)+1:], "//") {
		return nil, false
	}
	if !hostnamePattern.MatchString(u.Hostname()) {
		return nil, false
	}
	if !pathPattern.MatchString(u.EscapedPath()) {
		return nil, false
	}
	u.Scheme = scheme
	return u, true
}
