package http

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aura-studio/funcframe/function"
)

// DefaultIgnoredRoutes are filtered for http functions when no expression is
// configured.
const DefaultIgnoredRoutes = "/favicon.ico|/robots.txt"

var paramPattern = regexp.MustCompile(`^:[A-Za-z_][A-Za-z0-9_]*\??$`)

// compileIgnoredRoutes turns a route expression into a matcher. Alternatives
// are separated by "|", ":name" matches one path segment and "*" matches any
// run of characters. A route also matches every path below it. A nil result
// means nothing is filtered.
func compileIgnoredRoutes(expr *string, sig function.SignatureType) (*regexp.Regexp, error) {
	var raw string
	switch {
	case expr != nil:
		raw = strings.TrimSpace(*expr)
	case sig == function.SignatureHTTP:
		raw = DefaultIgnoredRoutes
	}
	if raw == "" {
		return nil, nil
	}

	alts := strings.Split(raw, "|")
	parts := make([]string, 0, len(alts))
	for _, alt := range alts {
		alt = strings.TrimSpace(alt)
		if !strings.HasPrefix(alt, "/") {
			return nil, &function.ConfigurationError{Field: "ignored routes", Err: fmt.Errorf("route %q must start with /", alt)}
		}
		parts = append(parts, routePattern(strings.TrimSuffix(alt, "/")))
	}

	re, err := regexp.Compile(`^(?:` + strings.Join(parts, "|") + `)(?:/.*)?$`)
	if err != nil {
		return nil, &function.ConfigurationError{Field: "ignored routes", Err: err}
	}
	return re, nil
}

func routePattern(route string) string {
	segments := strings.Split(route, "/")
	for i, seg := range segments {
		switch {
		case seg == "*":
			segments[i] = `.*`
		case paramPattern.MatchString(seg):
			segments[i] = `[^/]+`
		default:
			segments[i] = strings.ReplaceAll(regexp.QuoteMeta(seg), `\*`, `.*`)
		}
	}
	return strings.Join(segments, "/")
}
