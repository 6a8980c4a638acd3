package actions

import (
	"context"
	"fmt"
	"os"

	"github.com/stagehand/stagehand/pkg/txn"
)

// DeleteType is the registered type name for delete actions.
const DeleteType = "delete"

// DeleteData is the configuration data block for a delete action.
type DeleteData struct {
	// Path is the file or directory tree to remove.
	Path string `json:"path" yaml:"path" validate:"required"`

	// Missing, when true, makes a nonexistent path a success instead of
	// a failure.
	Missing bool `json:"allow_missing" yaml:"allow_missing"`
}

// DeleteOperation removes a file or directory tree. Deletion is
// inherently irreversible: Rollback restores nothing and only logs that
// the removal cannot be undone.
type DeleteOperation struct {
	actionName string
	data       DeleteData
	deleted    bool
}

// NewDeleteOperation is the Factory for DeleteType.
func NewDeleteOperation(actionName string, store DataStore) (txn.Operation, error) {
	var data DeleteData
	if err := store.ActionData(DeleteType, actionName, &data); err != nil {
		return nil, err
	}
	return &DeleteOperation{actionName: actionName, data: data}, nil
}

// Name implements txn.Operation.
func (o *DeleteOperation) Name() string { return DeleteType + "." + o.actionName }

// Describe implements txn.Operation.
func (o *DeleteOperation) Describe() string {
	return fmt.Sprintf("delete %s", o.data.Path)
}

// Apply implements txn.Operation.
func (o *DeleteOperation) Apply(ctx context.Context, tx *txn.Transaction) error {
	if _, err := os.Stat(o.data.Path); err != nil {
		if os.IsNotExist(err) && o.data.Missing {
			return nil
		}
		return fmt.Errorf("delete target %s: %w", o.data.Path, err)
	}

	if tx.DryRun() {
		logger := tx.Logger()
		logger.Info().
			Str("operation", o.Name()).
			Str("path", o.data.Path).
			Msg("dry run: skipping delete")
		return nil
	}

	if err := os.RemoveAll(o.data.Path); err != nil {
		return fmt.Errorf("delete %s: %w", o.data.Path, err)
	}
	o.deleted = true
	return nil
}

// Rollback implements txn.Operation. Nothing is restored.
func (o *DeleteOperation) Rollback(ctx context.Context, tx *txn.Transaction) error {
	if o.deleted {
		logger := tx.Logger()
		logger.Warn().
			Str("operation", o.Name()).
			Str("path", o.data.Path).
			Msg("deletion cannot be undone")
	}
	return nil
}
