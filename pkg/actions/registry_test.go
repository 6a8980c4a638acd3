package actions

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stagehand/stagehand/pkg/txn"
)

func TestRegistry_ResolveBuiltins(t *testing.T) {
	r := NewDefaultRegistry()

	for _, typeName := range []string{CopyType, DeleteType} {
		if _, err := r.Resolve(typeName); err != nil {
			t.Errorf("Resolve(%q): %v", typeName, err)
		}
	}

	types := r.Types()
	if len(types) != 2 || types[0] != CopyType || types[1] != DeleteType {
		t.Errorf("Types() = %v, want [copy delete]", types)
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	r := NewDefaultRegistry()
	_, err := r.Resolve("teleport")
	if err == nil {
		t.Fatal("expected error for unknown action type")
	}
	if !IsUnknownType(err) {
		t.Errorf("error = %v, want UnknownTypeError", err)
	}
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := NewDefaultRegistry()
	err := r.Register(CopyType, NewCopyOperation)
	if err == nil {
		t.Fatal("expected error registering duplicate type")
	}
}

func TestDelete_ApplyIsIrreversible(t *testing.T) {
	dir := t.TempDir()
	victim := filepath.Join(dir, "victim")
	writeFile(t, victim, "bye")

	store := &fakeStore{data: map[string]any{
		"delete.clean": DeleteData{Path: victim},
	}}
	op, err := NewDeleteOperation("clean", store)
	if err != nil {
		t.Fatalf("NewDeleteOperation: %v", err)
	}

	tx := txn.New(zerolog.Nop())
	if err := tx.Add(op); err != nil {
		t.Fatalf("Add: %v", err)
	}
	tx.Apply(context.Background())
	if !tx.Succeeded() {
		t.Fatalf("apply failed: %v", tx.Err())
	}
	if _, err := os.Stat(victim); !os.IsNotExist(err) {
		t.Fatal("file still exists after delete")
	}

	// Rollback warns but restores nothing and does not fail.
	tx.Rollback(context.Background())
	if _, err := os.Stat(victim); !os.IsNotExist(err) {
		t.Error("rollback unexpectedly restored a deleted file")
	}
}

func TestDelete_DryRunLeavesTarget(t *testing.T) {
	dir := t.TempDir()
	victim := filepath.Join(dir, "victim")
	writeFile(t, victim, "still here")

	store := &fakeStore{data: map[string]any{
		"delete.rehearse": DeleteData{Path: victim},
	}}
	op, err := NewDeleteOperation("rehearse", store)
	if err != nil {
		t.Fatalf("NewDeleteOperation: %v", err)
	}

	tx := txn.New(zerolog.Nop(), txn.WithDryRun(true))
	if err := tx.Add(op); err != nil {
		t.Fatalf("Add: %v", err)
	}
	tx.Apply(context.Background())

	if !tx.Succeeded() {
		t.Fatalf("dry-run apply failed: %v", tx.Err())
	}
	if _, err := os.Stat(victim); err != nil {
		t.Errorf("dry run removed the target: %v", err)
	}
}

func TestDelete_MissingTarget(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "ghost")

	strictStore := &fakeStore{data: map[string]any{
		"delete.strict":  DeleteData{Path: missing},
		"delete.lenient": DeleteData{Path: missing, Missing: true},
	}}

	strict, err := NewDeleteOperation("strict", strictStore)
	if err != nil {
		t.Fatalf("NewDeleteOperation: %v", err)
	}
	tx := txn.New(zerolog.Nop())
	if err := tx.Add(strict); err != nil {
		t.Fatalf("Add: %v", err)
	}
	tx.Apply(context.Background())
	if tx.Succeeded() {
		t.Error("deleting a missing path without allow_missing should fail")
	}

	lenient, err := NewDeleteOperation("lenient", strictStore)
	if err != nil {
		t.Fatalf("NewDeleteOperation: %v", err)
	}
	tx2 := txn.New(zerolog.Nop())
	if err := tx2.Add(lenient); err != nil {
		t.Fatalf("Add: %v", err)
	}
	tx2.Apply(context.Background())
	if !tx2.Succeeded() {
		t.Errorf("allow_missing delete failed: %v", tx2.Err())
	}
}
