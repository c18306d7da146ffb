package sqs

import (
	"strings"

	events "github.com/aws/aws-lambda-go/events"
)

// pathFor picks the request path of a message: its Path attribute or the
// configured default, then rewritten by the static and prefix links.
func (e *Engine) pathFor(msg events.SQSMessage) string {
	path := attribute(msg, AttrPath)
	if path == "" {
		path = e.Path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	path = e.StaticLink(path)
	return e.PrefixLink(path)
}

func (e *Engine) StaticLink(path string) string {
	if dst, ok := e.StaticLinkMap[path]; ok {
		return dst
	}
	return path
}

// PrefixLink rewrites the longest matching prefix.
func (e *Engine) PrefixLink(path string) string {
	best := ""
	for oldPrefix := range e.PrefixLinkMap {
		if strings.HasPrefix(path, oldPrefix) && len(oldPrefix) > len(best) {
			best = oldPrefix
		}
	}
	if best == "" {
		return path
	}
	return e.PrefixLinkMap[best] + strings.TrimPrefix(path, best)
}
