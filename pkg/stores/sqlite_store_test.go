package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "stagehand.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return store
}

func TestSaveAndGetSnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	snap := &Snapshot{
		Root:    "python@~3.11",
		Program: "/opt/python/bin/python",
		Packages: []SnapshotPackage{
			{Name: "zlib", Version: "1.2.13"},
			{Name: "python", Version: "3.11.4"},
		},
	}
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	if snap.ID == "" {
		t.Fatal("SaveSnapshot() did not assign an ID")
	}

	got, err := store.GetSnapshot(ctx, snap.ID)
	if err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if got.Root != snap.Root || got.Program != snap.Program {
		t.Errorf("got %+v, want %+v", got, snap)
	}
	if len(got.Packages) != 2 || got.Packages[0].Name != "zlib" || got.Packages[1].Name != "python" {
		t.Errorf("packages = %+v, want resolution order preserved", got.Packages)
	}
}

func TestGetSnapshotNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSnapshot(context.Background(), "nope")
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestLatestSnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := &Snapshot{
		Root:      "tool",
		Packages:  []SnapshotPackage{{Name: "tool", Version: "1.0.0"}},
		CreatedAt: time.Now().Add(-time.Hour).UTC(),
	}
	recent := &Snapshot{
		Root:     "tool",
		Packages: []SnapshotPackage{{Name: "tool", Version: "1.1.0"}},
	}
	for _, snap := range []*Snapshot{old, recent} {
		if err := store.SaveSnapshot(ctx, snap); err != nil {
			t.Fatalf("SaveSnapshot() error = %v", err)
		}
	}

	got, err := store.LatestSnapshot(ctx, "tool")
	if err != nil {
		t.Fatalf("LatestSnapshot() error = %v", err)
	}
	if got.ID != recent.ID {
		t.Errorf("latest = %s, want %s", got.ID, recent.ID)
	}
	if got.Packages[0].Version != "1.1.0" {
		t.Errorf("version = %s, want 1.1.0", got.Packages[0].Version)
	}
}

func TestListSnapshotsLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).UTC()
	for i := 0; i < 3; i++ {
		snap := &Snapshot{
			Root:      "tool",
			Packages:  []SnapshotPackage{{Name: "tool", Version: "1.0.0"}},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.SaveSnapshot(ctx, snap); err != nil {
			t.Fatalf("SaveSnapshot() error = %v", err)
		}
	}

	snaps, err := store.ListSnapshots(ctx, "tool", 2)
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("len = %d, want 2", len(snaps))
	}
	if !snaps[0].CreatedAt.After(snaps[1].CreatedAt) {
		t.Errorf("snapshots not newest first: %v, %v", snaps[0].CreatedAt, snaps[1].CreatedAt)
	}
}

func TestPruneBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := &Snapshot{
		Root:      "tool",
		Packages:  []SnapshotPackage{{Name: "tool", Version: "1.0.0"}},
		CreatedAt: time.Now().Add(-48 * time.Hour).UTC(),
	}
	recent := &Snapshot{
		Root:     "tool",
		Packages: []SnapshotPackage{{Name: "tool", Version: "1.1.0"}},
	}
	for _, snap := range []*Snapshot{old, recent} {
		if err := store.SaveSnapshot(ctx, snap); err != nil {
			t.Fatalf("SaveSnapshot() error = %v", err)
		}
	}

	n, err := store.PruneBefore(ctx, time.Now().Add(-24*time.Hour).UTC())
	if err != nil {
		t.Fatalf("PruneBefore() error = %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}

	if _, err := store.GetSnapshot(ctx, old.ID); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("old snapshot still present: %v", err)
	}
	if _, err := store.GetSnapshot(ctx, recent.ID); err != nil {
		t.Errorf("recent snapshot lost: %v", err)
	}
}
