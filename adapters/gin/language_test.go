package subgin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	sublang "github.com/PaulFidika/subkit/lang"
	"github.com/gin-gonic/gin"
)

func TestResolveRequestLanguageOrder(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name      string
		supported []string
		target    string
		cookie    string
		accept    string
		want      string
	}{
		{"query beats path, cookie and header", []string{"en", "es", "fr"}, "/fr/subscription/products?lang=es", "en", "fr-FR,fr;q=0.9", "es"},
		{"path prefix beats cookie", []string{"en", "fr", "ja"}, "/fr/subscription/products", "ja", "", "fr"},
		{"cookie beats header", nil, "/subscription/products", "ja", "es", "ja"},
		{"unsupported inputs skipped", []string{"en", "es"}, "/fr/subscription/products?lang=fr", "fr", "fr-FR,fr;q=0.9,es;q=0.8", "es"},
		{"nothing usable falls back to default", []string{"en", "ja"}, "/subscription/products?lang=english", "", "*", "en"},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, tc.target, nil)
		if tc.cookie != "" {
			c.Request.AddCookie(&http.Cookie{Name: "lang", Value: tc.cookie})
		}
		if tc.accept != "" {
			c.Request.Header.Set("Accept-Language", tc.accept)
		}
		cfg := (&LanguageConfig{Supported: tc.supported}).defaulted()
		if got := resolveRequestLanguage(c, cfg); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestLanguageMiddlewareSetsBothContexts(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var seen, stored string
	r := gin.New()
	r.GET("/subscription/products", LanguageMiddleware(&LanguageConfig{Supported: []string{"en", "ja"}}), func(c *gin.Context) {
		seen = sublang.FromContext(c.Request.Context())
		stored = c.GetString(ContextKeyLanguage)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/subscription/products", nil)
	req.AddCookie(&http.Cookie{Name: "lang", Value: "ja"})
	r.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "ja" || stored != "ja" {
		t.Fatalf("expected ja from cookie, got ctx=%q gin=%q", seen, stored)
	}

	req = httptest.NewRequest(http.MethodGet, "/subscription/products", nil)
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9")
	r.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "en" {
		t.Fatalf("expected default en for unsupported language, got %q", seen)
	}
}

func TestAcceptLanguageOrderedByWeight(t *testing.T) {
	got := acceptLanguageTags("fr;q=0.3, ja-JP, es;q=0.8, de;q=0")
	want := []string{"ja-JP", "es", "fr"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/subscription/products", nil)
	c.Request.Header.Set("Accept-Language", "en;q=0.5, ja;q=0.9")
	if lang := resolveRequestLanguage(c, (&LanguageConfig{Supported: []string{"en", "ja"}}).defaulted()); lang != "ja" {
		t.Fatalf("expected the heavier ja, got %q", lang)
	}
}
