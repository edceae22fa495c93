package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Posts and comments are stored as plain text; anything that looks like
// markup is stripped at authoring time.
var policy = bluemonday.StrictPolicy()

// Sanitize strips HTML from user-supplied content and trims whitespace.
func Sanitize(s string) string {
	return strings.TrimSpace(policy.Sanitize(s))
}
