package registry

import (
	"context"
	"testing"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	fs, err := jail.NewFileService(jail.Roots{jail.RootWizards: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("NewFileService failed: %v", err)
	}
	return New(fs, nil)
}

func TestMarkIsExactlyOnce(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if r.IsProcessed(ctx, "sha256:abc") {
		t.Fatal("key should not be processed yet")
	}
	if err := r.Mark(ctx, "sha256:abc"); err != nil {
		t.Fatalf("Mark failed: %v", err)
	}
	if !r.IsProcessed(ctx, "sha256:abc") {
		t.Error("expected key to be processed")
	}
	if err := r.Mark(ctx, "sha256:abc"); err != nil {
		t.Fatalf("repeat Mark failed: %v", err)
	}
	if got := r.StatsOf(ctx).Count; got != 1 {
		t.Errorf("expected count 1 after repeat mark, got %d", got)
	}
}

func TestListIsSorted(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	r.Mark(ctx, "sha256:zzz")
	r.Mark(ctx, "sha256:aaa")
	r.Mark(ctx, "sha256:mmm")

	list, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"sha256:aaa", "sha256:mmm", "sha256:zzz"}
	if len(list) != len(want) {
		t.Fatalf("unexpected list length: %v", list)
	}
	for i := range want {
		if list[i] != want[i] {
			t.Errorf("unexpected order at %d: got %s want %s", i, list[i], want[i])
		}
	}
}

func TestUnmark(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	r.Mark(ctx, "sha256:one")
	if err := r.Unmark(ctx, "sha256:one"); err != nil {
		t.Fatalf("Unmark failed: %v", err)
	}
	if r.IsProcessed(ctx, "sha256:one") {
		t.Error("expected key to be removed")
	}
}
