package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCleanKeyRejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "/etc/passwd", "../secret", "a/../../b", "a\\b", ".."} {
		if _, err := CleanKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected %q to be rejected, got %v", key, err)
		}
	}
	got, err := CleanKey("worldcup/ab12//1.png")
	if err != nil || got != "worldcup/ab12/1.png" {
		t.Fatalf("unexpected clean result %q %v", got, err)
	}
}

func TestHasPrefix(t *testing.T) {
	if !HasPrefix("edit-requests/1/x/a.png", "edit-requests/1/x/") {
		t.Fatalf("expected key under prefix")
	}
	if HasPrefix("edit-requests/1/xy/a.png", "edit-requests/1/x") {
		t.Fatalf("sibling directory must not match")
	}
}

func TestLocalStoreSaveCopyDelete(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir(), "/media/")

	if err := store.Save(ctx, "staged/a.png", strings.NewReader("data")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Copy(ctx, "staged/a.png", "games/1/a.png"); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if ok, _ := store.Exists(ctx, "games/1/a.png"); !ok {
		t.Fatalf("expected copied object")
	}
	if err := store.DeletePrefix(ctx, "staged"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := store.Exists(ctx, "staged/a.png"); ok {
		t.Fatalf("expected staged object removed")
	}
	if err := store.Copy(ctx, "staged/a.png", "games/1/b.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if got := store.URL("games/1/a.png"); got != "/media/games/1/a.png" {
		t.Fatalf("unexpected url %q", got)
	}
	if got := store.URL("https://cdn.example.com/x.png"); got != "https://cdn.example.com/x.png" {
		t.Fatalf("absolute urls should pass through, got %q", got)
	}
}
