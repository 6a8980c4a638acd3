package txn

import "context"

// Operation is a single reversible unit of work inside a Transaction.
//
// Apply is called at most once per transaction lifetime, in declared order.
// Rollback is called only on operations whose Apply already succeeded, in
// reverse order. Both receive the owning transaction so they can honor
// DryRun, call AbortPoint inside long-running loops, and log through the
// transaction's logger.
type Operation interface {
	// Name is a short stable identifier for the operation.
	Name() string

	// Describe returns a human-readable description of what the
	// operation will do.
	Describe() string

	// Apply performs the operation's side effect. When the transaction
	// is in dry-run mode it must skip the real side effect but still run
	// its validation logic.
	Apply(ctx context.Context, tx *Transaction) error

	// Rollback undoes a successful Apply. Implementations whose effects
	// are inherently irreversible log that and return nil.
	Rollback(ctx context.Context, tx *Transaction) error
}

// FuncOperation adapts plain functions into an Operation. Useful for tests
// and for one-off operations that do not warrant a named type.
type FuncOperation struct {
	// OpName is returned by Name.
	OpName string

	// Description is returned by Describe.
	Description string

	// ApplyFunc performs the side effect. Required.
	ApplyFunc func(ctx context.Context, tx *Transaction) error

	// RollbackFunc undoes the side effect. Optional; nil means rollback
	// is a no-op.
	RollbackFunc func(ctx context.Context, tx *Transaction) error
}

// Name implements Operation.
func (f *FuncOperation) Name() string { return f.OpName }

// Describe implements Operation.
func (f *FuncOperation) Describe() string { return f.Description }

// Apply implements Operation.
func (f *FuncOperation) Apply(ctx context.Context, tx *Transaction) error {
	return f.ApplyFunc(ctx, tx)
}

// Rollback implements Operation.
func (f *FuncOperation) Rollback(ctx context.Context, tx *Transaction) error {
	if f.RollbackFunc == nil {
		return nil
	}
	return f.RollbackFunc(ctx, tx)
}

// Progress receives per-operation notifications while a transaction
// applies or rolls back. Implementations must be safe to call from the
// goroutine running Apply.
type Progress interface {
	// OperationStarted is called before an operation's Apply.
	OperationStarted(op Operation, index, total int)

	// OperationFinished is called after an operation's Apply returns.
	OperationFinished(op Operation, index, total int, err error)
}
