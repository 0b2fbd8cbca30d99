package lang

import (
	"context"
	"testing"
)

func TestNormalize(t *testing.T) {
	for in, want := range map[string]string{
		"ja-JP":   "ja",
		" ES_419": "es",
		"en":      "en",
		"eng":     "",
		"e1":      "",
		"":        "",
		"*":       "",
	} {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFromContextDefaults(t *testing.T) {
	if got := FromContext(context.Background()); got != Default {
		t.Fatalf("got %q, want %q", got, Default)
	}
	if got := FromContext(NewContext(context.Background(), "ja")); got != "ja" {
		t.Fatalf("got %q", got)
	}
}
