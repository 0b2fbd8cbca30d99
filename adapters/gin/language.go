package subgin

import (
	"sort"
	"strconv"
	"strings"

	sublang "github.com/PaulFidika/subkit/lang"
	"github.com/gin-gonic/gin"
)

// ContextKeyLanguage is the gin context key holding the resolved language.
const ContextKeyLanguage = "subkit.language"

// LanguageConfig controls how the request language is picked. An empty
// Supported list accepts any two-letter code.
type LanguageConfig struct {
	Supported  []string
	Default    string
	QueryParam string
	CookieName string
}

func (c *LanguageConfig) defaulted() LanguageConfig {
	out := LanguageConfig{}
	if c != nil {
		out = *c
	}
	if strings.TrimSpace(out.Default) == "" {
		out.Default = sublang.Default
	}
	if strings.TrimSpace(out.QueryParam) == "" {
		out.QueryParam = "lang"
	}
	if strings.TrimSpace(out.CookieName) == "" {
		out.CookieName = "lang"
	}
	return out
}

// resolveRequestLanguage returns the first usable candidate from, in order:
// the query param, a /:lang/ path prefix, the cookie, Accept-Language by
// weight, and the configured default.
func resolveRequestLanguage(c *gin.Context, cfg LanguageConfig) string {
	var allowed map[string]bool
	if len(cfg.Supported) > 0 {
		allowed = make(map[string]bool, len(cfg.Supported))
		for _, s := range cfg.Supported {
			if code := sublang.Normalize(s); code != "" {
				allowed[code] = true
			}
		}
	}

	candidates := []string{c.Query(cfg.QueryParam), firstPathSegment(c.Request.URL.Path)}
	if v, err := c.Cookie(cfg.CookieName); err == nil {
		candidates = append(candidates, v)
	}
	candidates = append(candidates, acceptLanguageTags(c.GetHeader("Accept-Language"))...)
	candidates = append(candidates, cfg.Default)

	for _, cand := range candidates {
		code := sublang.Normalize(cand)
		if code == "" {
			continue
		}
		if allowed == nil || allowed[code] {
			return code
		}
	}
	return sublang.Default
}

func firstPathSegment(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return ""
}

// acceptLanguageTags lists the header's tags by descending q weight; tags
// with q=0 are dropped and equal weights keep header order.
func acceptLanguageTags(header string) []string {
	type weighted struct {
		tag string
		q   float64
	}
	var tags []weighted
	for _, part := range strings.Split(header, ",") {
		tag, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if tag = strings.TrimSpace(tag); tag == "" {
			continue
		}
		q := 1.0
		if v, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				q = f
			}
		}
		if q > 0 {
			tags = append(tags, weighted{tag, q})
		}
	}
	sort.SliceStable(tags, func(i, j int) bool { return tags[i].q > tags[j].q })
	out := make([]string, len(tags))
	for i, w := range tags {
		out[i] = w.tag
	}
	return out
}

// LanguageMiddleware resolves the request language and stores it on both the
// gin context and the request context.
func LanguageMiddleware(cfg *LanguageConfig) gin.HandlerFunc {
	c := cfg.defaulted()
	return func(g *gin.Context) {
		code := resolveRequestLanguage(g, c)
		g.Set(ContextKeyLanguage, code)
		g.Request = g.Request.WithContext(sublang.NewContext(g.Request.Context(), code))
		g.Next()
	}
}
