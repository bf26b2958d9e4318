package tmpl

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy *bluemonday.Policy
	initOnce     sync.Once
)

// Preview returns a single-line excerpt of body limited to max runes.
// HTML bodies are stripped of all markup first.
func Preview(body string, html bool, max int) string {
	if html {
		initOnce.Do(func() {
			strictPolicy = bluemonday.StrictPolicy()
		})
		body = strictPolicy.Sanitize(body)
	}

	text := strings.Join(strings.Fields(body), " ")
	runes := []rune(text)
	if max > 0 && len(runes) > max {
		return string(runes[:max]) + "..."
	}
	return text
}
