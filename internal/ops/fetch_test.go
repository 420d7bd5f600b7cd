package ops

import (
	"context"
	"testing"

	"github.com/hpungsan/flightrecorder/internal/capture"
	"github.com/hpungsan/flightrecorder/internal/errors"
)

func TestFetch_HappyPath(t *testing.T) {
	store := newTestStore(t)
	ids := seed(t, store, seedCapture{content: "héllo", app: "Notes", at: testBase})

	out, err := Fetch(context.Background(), store, FetchInput{ID: ids[0]})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if out.ID != ids[0] {
		t.Errorf("ID = %d, want %d", out.ID, ids[0])
	}
	if out.Content != "héllo" {
		t.Errorf("Content = %q, want %q", out.Content, "héllo")
	}
	if out.Chars != 5 {
		t.Errorf("Chars = %d, want 5", out.Chars)
	}
	if out.SourceApp == nil || *out.SourceApp != "Notes" {
		t.Errorf("SourceApp = %v, want Notes", out.SourceApp)
	}
	if out.ContentHash != capture.Hash("héllo") {
		t.Errorf("ContentHash = %q, want hash of content", out.ContentHash)
	}
	if !out.Timestamp.Equal(testBase) {
		t.Errorf("Timestamp = %v, want %v", out.Timestamp, testBase)
	}
}

func TestFetch_ExcludeText(t *testing.T) {
	store := newTestStore(t)
	ids := seed(t, store, seedCapture{content: "secret-ish"})

	includeText := false
	out, err := Fetch(context.Background(), store, FetchInput{ID: ids[0], IncludeText: &includeText})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if out.Content != "" {
		t.Errorf("Content = %q, want empty", out.Content)
	}
	if out.Chars != 10 {
		t.Errorf("Chars = %d, want 10", out.Chars)
	}
}

func TestFetch_Errors(t *testing.T) {
	store := newTestStore(t)

	_, err := Fetch(context.Background(), store, FetchInput{ID: 999})
	requireCode(t, err, errors.ErrNotFound)

	_, err = Fetch(context.Background(), store, FetchInput{ID: 0})
	requireCode(t, err, errors.ErrInvalidRequest)
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ids := seed(t, store, seedCapture{content: "a"}, seedCapture{content: "b"})
	ctx := context.Background()

	out, err := Delete(ctx, store, DeleteInput{ID: ids[0]})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !out.Deleted || out.ID != ids[0] {
		t.Errorf("Delete = %+v, want deleted id %d", out, ids[0])
	}

	_, err = Fetch(ctx, store, FetchInput{ID: ids[0]})
	requireCode(t, err, errors.ErrNotFound)

	// Deleting again is NOT_FOUND
	_, err = Delete(ctx, store, DeleteInput{ID: ids[0]})
	requireCode(t, err, errors.ErrNotFound)

	_, err = Delete(ctx, store, DeleteInput{ID: -1})
	requireCode(t, err, errors.ErrInvalidRequest)

	if _, err := Fetch(ctx, store, FetchInput{ID: ids[1]}); err != nil {
		t.Errorf("other capture should survive: %v", err)
	}
}
