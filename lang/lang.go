// Package lang carries the request language and renders localized labels.
package lang

import (
	"context"
	"strings"
)

// Default is used when a request names no usable language.
const Default = "en"

type ctxKey struct{}

// NewContext returns ctx carrying the language code.
func NewContext(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, ctxKey{}, code)
}

// FromContext returns the request language, or Default when none is set.
func FromContext(ctx context.Context) string {
	if s, _ := ctx.Value(ctxKey{}).(string); s != "" {
		return s
	}
	return Default
}

// Normalize reduces a language tag such as "ja-JP" or "es_419" to its
// lowercase primary subtag. Anything that is not two ASCII letters yields "".
func Normalize(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	if len(tag) != 2 || tag[0] < 'a' || tag[0] > 'z' || tag[1] < 'a' || tag[1] > 'z' {
		return ""
	}
	return tag
}
