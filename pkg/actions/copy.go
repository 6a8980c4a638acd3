package actions

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/stagehand/stagehand/pkg/txn"
)

// CopyType is the registered type name for copy actions.
const CopyType = "copy"

// CopyData is the configuration data block for a copy action.
type CopyData struct {
	// Sources are the files or directory trees to copy.
	Sources []string `json:"sources" yaml:"sources" validate:"required,min=1,dive,required"`

	// Destination is the copy target. With a single file source it is
	// the destination file path; otherwise it is a directory the sources
	// are copied into.
	Destination string `json:"destination" yaml:"destination" validate:"required"`
}

// CopyOperation copies declared source paths to a destination, creating
// any missing destination parent directories. Rollback removes the copies
// and the directories the operation itself created, leaving pre-existing
// directories and the sources untouched.
type CopyOperation struct {
	actionName string
	data       CopyData

	// copied are the destination paths written by Apply.
	copied []string

	// createdDirs are the parent directories Apply created, deepest
	// first, so rollback can remove them innermost-out.
	createdDirs []string
}

// NewCopyOperation is the Factory for CopyType.
func NewCopyOperation(actionName string, store DataStore) (txn.Operation, error) {
	var data CopyData
	if err := store.ActionData(CopyType, actionName, &data); err != nil {
		return nil, err
	}
	return &CopyOperation{actionName: actionName, data: data}, nil
}

// Name implements txn.Operation.
func (o *CopyOperation) Name() string { return CopyType + "." + o.actionName }

// Describe implements txn.Operation.
func (o *CopyOperation) Describe() string {
	return fmt.Sprintf("copy %v to %s", o.data.Sources, o.data.Destination)
}

// Apply implements txn.Operation. In dry-run mode it validates that every
// source exists but touches nothing.
func (o *CopyOperation) Apply(ctx context.Context, tx *txn.Transaction) error {
	for _, src := range o.data.Sources {
		if _, err := os.Stat(src); err != nil {
			return fmt.Errorf("copy source %s: %w", src, err)
		}
	}

	if tx.DryRun() {
		logger := tx.Logger()
		logger.Info().
			Str("operation", o.Name()).
			Str("destination", o.data.Destination).
			Msg("dry run: skipping copy")
		return nil
	}

	singleFile := len(o.data.Sources) == 1 && isRegularFile(o.data.Sources[0])

	for _, src := range o.data.Sources {
		if err := tx.AbortPoint(); err != nil {
			return err
		}

		dest := o.data.Destination
		if !singleFile {
			dest = filepath.Join(o.data.Destination, filepath.Base(src))
		}

		if err := o.ensureParents(filepath.Dir(dest)); err != nil {
			return err
		}

		if err := copyPath(ctx, tx, src, dest); err != nil {
			return err
		}
		o.copied = append(o.copied, dest)
	}

	return nil
}

// Rollback implements txn.Operation: it removes the copied destinations
// and then the parent directories Apply created, innermost first.
func (o *CopyOperation) Rollback(ctx context.Context, tx *txn.Transaction) error {
	if tx.DryRun() {
		return nil
	}

	var firstErr error
	for i := len(o.copied) - 1; i >= 0; i-- {
		if err := os.RemoveAll(o.copied[i]); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("remove %s: %w", o.copied[i], err)
		}
	}
	o.copied = nil

	for _, dir := range o.createdDirs {
		if err := os.Remove(dir); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("remove directory %s: %w", dir, err)
		}
	}
	o.createdDirs = nil

	return firstErr
}

// ensureParents creates dir and any missing ancestors, recording the ones
// it created so rollback removes only those.
func (o *CopyOperation) ensureParents(dir string) error {
	missing, err := missingAncestors(dir)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	// Deepest first, for innermost-out removal.
	for i := len(missing) - 1; i >= 0; i-- {
		o.createdDirs = append(o.createdDirs, missing[i])
	}
	return nil
}

// missingAncestors returns dir and its nonexistent ancestors, outermost
// first.
func missingAncestors(dir string) ([]string, error) {
	var missing []string
	for {
		info, err := os.Stat(dir)
		if err == nil {
			if !info.IsDir() {
				return nil, fmt.Errorf("%s exists and is not a directory", dir)
			}
			break
		}
		if !os.IsNotExist(err) {
			return nil, err
		}

		missing = append(missing, dir)
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	// Reverse to outermost-first order.
	for i, j := 0, len(missing)-1; i < j; i, j = i+1, j-1 {
		missing[i], missing[j] = missing[j], missing[i]
	}
	return missing, nil
}

// copyPath copies a file or a directory tree, checking the transaction's
// abort points between files.
func copyPath(ctx context.Context, tx *txn.Transaction, src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return copyFile(src, dest, info.Mode())
	}

	return filepath.Walk(src, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := tx.AbortPoint(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		if fi.IsDir() {
			return os.MkdirAll(target, fi.Mode().Perm())
		}
		return copyFile(path, target, fi.Mode())
	})
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
