package ops

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hpungsan/flightrecorder/internal/errors"
)

func TestSearch_CaseInsensitive(t *testing.T) {
	store := newTestStore(t)
	seed(t, store,
		seedCapture{content: "Deploy the API today", at: testBase},
		seedCapture{content: "api docs", at: testBase.Add(time.Minute)},
		seedCapture{content: "unrelated", at: testBase.Add(2 * time.Minute)},
	)

	out, err := Search(context.Background(), store, SearchInput{Query: "Api"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if out.Pagination.Total != 2 {
		t.Fatalf("Total = %d, want 2", out.Pagination.Total)
	}
	if out.Items[0].Preview != "api docs" {
		t.Errorf("first result = %q, want newest match", out.Items[0].Preview)
	}
	if out.Items[1].Snippet != "Deploy the <b>API</b> today" {
		t.Errorf("Snippet = %q", out.Items[1].Snippet)
	}
	if out.Items[0].Content != "" {
		t.Error("Content should be omitted unless requested")
	}
}

func TestSearch_WildcardsAreLiteral(t *testing.T) {
	store := newTestStore(t)
	seed(t, store,
		seedCapture{content: "100% done", at: testBase},
		seedCapture{content: "1000 done", at: testBase.Add(time.Minute)},
		seedCapture{content: "snake_case", at: testBase.Add(2 * time.Minute)},
		seedCapture{content: "snakeXcase", at: testBase.Add(3 * time.Minute)},
	)
	ctx := context.Background()

	out, err := Search(ctx, store, SearchInput{Query: "100%", IncludeContent: true})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].Content != "100% done" {
		t.Errorf("%% search returned %+v", out.Items)
	}

	out, err = Search(ctx, store, SearchInput{Query: "snake_case", IncludeContent: true})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].Content != "snake_case" {
		t.Errorf("_ search returned %+v", out.Items)
	}
}

func TestSearch_Filters(t *testing.T) {
	store := newTestStore(t)
	seed(t, store,
		seedCapture{content: "todo: notes", app: "Notes", at: testBase},
		seedCapture{content: "todo: mail", app: "Mail", at: testBase.Add(time.Hour)},
		seedCapture{content: "todo: later", app: "Notes", at: testBase.Add(2 * time.Hour)},
	)
	ctx := context.Background()

	out, err := Search(ctx, store, SearchInput{Query: "todo", App: "Notes", IncludeContent: true})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Items) != 2 {
		t.Errorf("app filter: len = %d, want 2", len(out.Items))
	}

	out, err = Search(ctx, store, SearchInput{
		Query:          "todo",
		Since:          testBase.Add(time.Hour),
		Until:          testBase.Add(time.Hour),
		IncludeContent: true,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].Content != "todo: mail" {
		t.Errorf("inclusive range returned %+v", out.Items)
	}
}

func TestSearch_Validation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := Search(ctx, store, SearchInput{Query: "   "})
	requireCode(t, err, errors.ErrInvalidRequest)

	_, err = Search(ctx, store, SearchInput{Query: strings.Repeat("x", MaxQueryLength+1)})
	requireCode(t, err, errors.ErrInvalidRequest)

	_, err = Search(ctx, store, SearchInput{Query: "x", Since: testBase, Until: testBase.Add(-time.Second)})
	requireCode(t, err, errors.ErrInvalidRequest)

	_, err = Search(ctx, store, SearchInput{Query: "x", Type: "bogus"})
	requireCode(t, err, errors.ErrInvalidRequest)
}

func TestBuildSnippet(t *testing.T) {
	tests := []struct {
		name, content, query, want string
	}{
		{"escapes markup", "Hello <World> and more", "world", "Hello &lt;<b>World</b>&gt; and more"},
		{"collapses whitespace", "line one\n\n  line   two", "two", "line one line <b>two</b>"},
		{"no match", "a\tb", "zzz", "a b"},
		{
			"leading context cut",
			strings.Repeat("x", 100) + " needle",
			"needle",
			"..." + strings.Repeat("x", 59) + " <b>needle</b>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := escapeSnippetHTML(buildSnippet(tt.content, tt.query))
			if got != tt.want {
				t.Errorf("snippet = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncateSnippet(t *testing.T) {
	if got := truncateSnippet("short", 300); got != "short" {
		t.Errorf("short snippet changed: %q", got)
	}
	if got := truncateSnippet("anything", 0); got != "..." {
		t.Errorf("zero max = %q, want ...", got)
	}

	long := "<b>" + strings.Repeat("word ", 20) + "</b>"
	got := truncateSnippet(long, 30)
	if !strings.HasSuffix(got, "</b>...") {
		t.Errorf("unclosed tag not closed: %q", got)
	}
	if strings.Count(got, "<b>") != strings.Count(got, "</b>") {
		t.Errorf("unbalanced tags: %q", got)
	}

	got = truncateSnippet("aaaa &amp; bbbb", 8)
	if strings.Contains(got, "&am") && !strings.Contains(got, "&amp;") {
		t.Errorf("partial entity left: %q", got)
	}
}
