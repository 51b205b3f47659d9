package inference

import (
	"context"
	"testing"

	"github.com/dohr-michael/orbit/internal/config"
)

func TestParseSearchResults(t *testing.T) {
	cases := []struct {
		name string
		resp string
		want []string
	}{
		{"duckduckgo", `{"message":"ok","results":[{"title":"A","url":"https://a","summary":"sa"},{"title":"B","url":"https://b","summary":"sb"}]}`, []string{"https://a", "https://b"}},
		{"google", `{"query":"q","items":[{"title":"G","link":"https://g","snippet":"sg"}]}`, []string{"https://g"}},
		{"bing", `{"results":[{"title":"B","url":"https://bing","description":"d"},{"title":"no url"}]}`, []string{"https://bing"}},
		{"garbage", `not json`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseSearchResults(tc.resp)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %d results, got %+v", len(tc.want), got)
			}
			for i, url := range tc.want {
				if got[i].URL != url {
					t.Errorf("result %d url = %q, want %q", i, got[i].URL, url)
				}
				if got[i].Snippet == "" {
					t.Errorf("result %d has no snippet", i)
				}
			}
		})
	}
}

func TestNewWebSearch(t *testing.T) {
	ctx := context.Background()

	ws, err := NewWebSearch(ctx, config.WebSearchConfig{})
	if err != nil || ws != nil {
		t.Fatalf("expected no searcher without provider, got %v, %v", ws, err)
	}

	ws, err = NewWebSearch(ctx, config.WebSearchConfig{Provider: "duckduckgo", MaxResults: 3})
	if err != nil {
		t.Fatalf("NewWebSearch: %v", err)
	}
	if ws.max != 3 {
		t.Errorf("expected max 3, got %d", ws.max)
	}

	if _, err := NewWebSearch(ctx, config.WebSearchConfig{Provider: "altavista"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                        `{"a":1}`,
		"```json\n{\"a\":1}\n```":        `{"a":1}`,
		"Sure! {\"a\":{\"b\":2}} Enjoy.": `{"a":{"b":2}}`,
	}
	for in, want := range cases {
		got, err := extractJSON(in)
		if err != nil {
			t.Fatalf("extractJSON(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("extractJSON(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := extractJSON("nothing"); err == nil {
		t.Error("expected error")
	}
}
