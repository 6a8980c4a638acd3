package txn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrAborted is returned from AbortPoint when an abort has been requested.
// Operations observing it must return it (or an error wrapping it) from
// Apply so the transaction can distinguish a cooperative abort from an
// operation failure.
var ErrAborted = errors.New("transaction aborted")

// State is the lifecycle state of a Transaction.
type State string

const (
	// StateIdle means Apply has not been called yet.
	StateIdle State = "idle"

	// StateApplying means operations are being executed.
	StateApplying State = "applying"

	// StateApplied is terminal: either all operations succeeded, or one
	// failed and the applied prefix has been rolled back. Succeeded
	// distinguishes the two.
	StateApplied State = "applied"

	// StateAborting means an abort request has been observed and the
	// applied prefix is about to be rolled back.
	StateAborting State = "aborting"

	// StateRollingBack means applied operations are being undone.
	StateRollingBack State = "rolling-back"

	// StateRolledBack is terminal for an explicit Rollback call.
	StateRolledBack State = "rolled-back"

	// StateAborted is terminal for an aborted Apply.
	StateAborted State = "aborted"
)

// Transaction drives an ordered list of Operations as one atomic unit.
//
// A transaction is created per launch attempt and never reused: once it
// reaches a terminal state, Apply becomes a no-op. Exactly one goroutine
// may call Apply or Rollback; Abort may be called from any goroutine.
type Transaction struct {
	id       string
	logger   zerolog.Logger
	progress Progress
	dryRun   bool

	ops []Operation

	// abort is the only transaction state safely mutable from a second
	// goroutine.
	abort atomic.Bool

	// applied is the successfully-applied prefix, written only by the
	// goroutine running Apply/Rollback.
	applied []Operation

	mu        sync.Mutex
	state     State
	err       error
	succeeded bool
	done      chan struct{}
}

// Option configures a Transaction at construction time.
type Option func(*Transaction)

// WithDryRun makes every operation skip its real side effects while still
// exercising validation logic.
func WithDryRun(dryRun bool) Option {
	return func(t *Transaction) { t.dryRun = dryRun }
}

// WithProgress installs a progress callback.
func WithProgress(p Progress) Option {
	return func(t *Transaction) { t.progress = p }
}

// New creates an empty transaction.
func New(logger zerolog.Logger, opts ...Option) *Transaction {
	t := &Transaction{
		id:     uuid.New().String(),
		logger: logger.With().Str("component", "txn").Logger(),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With().Str("txn_id", t.id).Logger()
	return t
}

// ID returns the transaction's unique identifier.
func (t *Transaction) ID() string { return t.id }

// DryRun reports whether the transaction is in dry-run mode. Operations
// consult it inside Apply and Rollback.
func (t *Transaction) DryRun() bool { return t.dryRun }

// Logger returns the transaction's logger for use by operations.
func (t *Transaction) Logger() zerolog.Logger { return t.logger }

// Add appends operations to the transaction. It fails once Apply has been
// called.
func (t *Transaction) Add(ops ...Operation) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateIdle {
		return fmt.Errorf("cannot add operations in state %s", t.state)
	}
	t.ops = append(t.ops, ops...)
	return nil
}

// State returns the transaction's current lifecycle state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Succeeded reports whether Apply ran every operation to completion. It is
// false before Apply, after a failed or aborted Apply, and unaffected by
// whether rollback itself succeeded.
func (t *Transaction) Succeeded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.succeeded
}

// Err returns the error recorded from a failed operation, if any. Apply
// swallows operation errors at the transaction boundary; this is how
// callers retrieve them.
func (t *Transaction) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// AbortPoint is called by long-running operations inside their work loops.
// It returns ErrAborted once an abort has been requested, bounding abort
// latency by the interval between calls rather than operation duration.
func (t *Transaction) AbortPoint() error {
	if t.abort.Load() {
		return ErrAborted
	}
	return nil
}

// Abort requests a cooperative abort. The in-flight Apply observes the
// request at the next operation boundary or abort point, stops, and rolls
// back the applied prefix. When wait is true the call blocks until that
// rollback has completed (or returns immediately when no Apply is in
// flight). Abort never preempts an operation that does not check its
// abort points.
func (t *Transaction) Abort(wait bool) {
	t.abort.Store(true)

	if !wait {
		return
	}

	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Apply executes the transaction's operations strictly in list order. It
// is a no-op when the transaction already ran (terminal state) or is
// mid-flight. The outcome is reported through Succeeded and Err, never by
// re-raising operation errors.
func (t *Transaction) Apply(ctx context.Context) {
	t.mu.Lock()
	if t.state != StateIdle {
		t.mu.Unlock()
		t.logger.Debug().Str("state", string(t.state)).Msg("apply is a no-op")
		return
	}
	t.state = StateApplying
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	defer close(done)

	total := len(t.ops)
	for i, op := range t.ops {
		// Cooperative abort check before starting each operation.
		if t.abort.Load() {
			t.finishAborted(ctx)
			return
		}

		if t.progress != nil {
			t.progress.OperationStarted(op, i, total)
		}
		t.logger.Debug().
			Str("operation", op.Name()).
			Int("index", i).
			Bool("dry_run", t.dryRun).
			Msg("applying operation")

		err := op.Apply(ctx, t)

		if t.progress != nil {
			t.progress.OperationFinished(op, i, total, err)
		}

		if err != nil {
			if errors.Is(err, ErrAborted) {
				// The operation stopped at an abort point after doing
				// partial work; include it in the rollback so that work
				// is undone too.
				t.applied = append(t.applied, op)
				t.finishAborted(ctx)
				return
			}

			t.logger.Error().Err(err).
				Str("operation", op.Name()).
				Msg("operation failed, rolling back applied prefix")

			t.mu.Lock()
			t.err = err
			t.state = StateRollingBack
			t.mu.Unlock()

			t.rollbackApplied(ctx)

			t.mu.Lock()
			t.state = StateApplied
			t.succeeded = false
			t.mu.Unlock()
			return
		}

		t.applied = append(t.applied, op)
	}

	t.mu.Lock()
	t.state = StateApplied
	t.succeeded = true
	t.mu.Unlock()
	t.logger.Debug().Int("operations", total).Msg("transaction applied")
}

// Rollback undoes the applied operations in strict reverse order. It is a
// no-op when nothing was applied. Rollback failures are logged as warnings
// and do not stop the remaining operations from being attempted.
func (t *Transaction) Rollback(ctx context.Context) {
	t.mu.Lock()
	if len(t.applied) == 0 {
		t.mu.Unlock()
		return
	}
	t.state = StateRollingBack
	t.mu.Unlock()

	t.rollbackApplied(ctx)

	t.mu.Lock()
	t.state = StateRolledBack
	t.mu.Unlock()
}

// finishAborted rolls back the applied prefix and moves the transaction to
// its aborted terminal state.
func (t *Transaction) finishAborted(ctx context.Context) {
	t.logger.Info().Msg("abort requested, rolling back applied operations")

	t.mu.Lock()
	t.state = StateAborting
	t.mu.Unlock()

	t.setState(StateRollingBack)
	t.rollbackApplied(ctx)

	t.mu.Lock()
	t.state = StateAborted
	t.succeeded = false
	t.mu.Unlock()
}

func (t *Transaction) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// rollbackApplied rolls back t.applied in reverse order, logging rather
// than propagating failures: some side effects are inherently
// irreversible, and a partial rollback must still attempt the rest.
func (t *Transaction) rollbackApplied(ctx context.Context) {
	for i := len(t.applied) - 1; i >= 0; i-- {
		op := t.applied[i]
		t.logger.Debug().Str("operation", op.Name()).Msg("rolling back operation")
		if err := op.Rollback(ctx, t); err != nil {
			t.logger.Warn().Err(err).
				Str("operation", op.Name()).
				Msg("rollback failed, continuing with remaining operations")
		}
	}
	t.applied = t.applied[:0]
}
