package txn

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// counterOp adds delta to a shared counter and subtracts it again on
// rollback.
func counterOp(name string, counter *int, delta int) *FuncOperation {
	return &FuncOperation{
		OpName:      name,
		Description: fmt.Sprintf("add %d to counter", delta),
		ApplyFunc: func(ctx context.Context, tx *Transaction) error {
			*counter += delta
			return nil
		},
		RollbackFunc: func(ctx context.Context, tx *Transaction) error {
			*counter -= delta
			return nil
		},
	}
}

func failingOp(name string, err error) *FuncOperation {
	return &FuncOperation{
		OpName:      name,
		Description: "always fails",
		ApplyFunc: func(ctx context.Context, tx *Transaction) error {
			return err
		},
	}
}

func TestApply_AllSucceed(t *testing.T) {
	counter := 0
	tx := New(zerolog.Nop())
	if err := tx.Add(counterOp("a", &counter, 2), counterOp("b", &counter, 3)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	tx.Apply(context.Background())

	if !tx.Succeeded() {
		t.Fatalf("expected success, err = %v", tx.Err())
	}
	if tx.State() != StateApplied {
		t.Errorf("state = %s, want %s", tx.State(), StateApplied)
	}
	if counter != 5 {
		t.Errorf("counter = %d, want 5", counter)
	}
}

func TestApply_SecondCallIsNoOp(t *testing.T) {
	counter := 0
	tx := New(zerolog.Nop())
	if err := tx.Add(counterOp("a", &counter, 1)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	tx.Apply(context.Background())
	first := tx.Succeeded()
	tx.Apply(context.Background())

	if counter != 1 {
		t.Errorf("side effect ran %d times, want exactly once", counter)
	}
	if tx.Succeeded() != first {
		t.Errorf("second apply changed succeeded from %v to %v", first, tx.Succeeded())
	}
}

func TestApply_FailureRollsBackPrefix(t *testing.T) {
	counter := 0
	boom := errors.New("boom")

	tx := New(zerolog.Nop())
	if err := tx.Add(counterOp("a", &counter, 2), failingOp("b", boom)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	tx.Apply(context.Background())

	if tx.Succeeded() {
		t.Fatal("expected failure")
	}
	if !errors.Is(tx.Err(), boom) {
		t.Errorf("Err() = %v, want %v", tx.Err(), boom)
	}
	if counter != 0 {
		t.Errorf("counter = %d, want 0 (a's mutation undone)", counter)
	}
	if tx.State() != StateApplied {
		t.Errorf("state = %s, want %s", tx.State(), StateApplied)
	}
}

func TestRollback_ReverseOrder(t *testing.T) {
	var rolledBack []string
	mk := func(name string) *FuncOperation {
		return &FuncOperation{
			OpName: name,
			ApplyFunc: func(ctx context.Context, tx *Transaction) error {
				return nil
			},
			RollbackFunc: func(ctx context.Context, tx *Transaction) error {
				rolledBack = append(rolledBack, name)
				return nil
			},
		}
	}

	tx := New(zerolog.Nop())
	if err := tx.Add(mk("a"), mk("b")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	tx.Apply(context.Background())
	if !tx.Succeeded() {
		t.Fatalf("apply failed: %v", tx.Err())
	}

	tx.Rollback(context.Background())

	if len(rolledBack) != 2 || rolledBack[0] != "b" || rolledBack[1] != "a" {
		t.Errorf("rollback order = %v, want [b a]", rolledBack)
	}
	if tx.State() != StateRolledBack {
		t.Errorf("state = %s, want %s", tx.State(), StateRolledBack)
	}
}

func TestRollback_NothingAppliedIsNoOp(t *testing.T) {
	tx := New(zerolog.Nop())
	tx.Rollback(context.Background())
	if tx.State() != StateIdle {
		t.Errorf("state = %s, want %s", tx.State(), StateIdle)
	}
}

func TestRollback_FailureDoesNotStopRemaining(t *testing.T) {
	var rolledBack []string

	good := &FuncOperation{
		OpName:    "good",
		ApplyFunc: func(ctx context.Context, tx *Transaction) error { return nil },
		RollbackFunc: func(ctx context.Context, tx *Transaction) error {
			rolledBack = append(rolledBack, "good")
			return nil
		},
	}
	bad := &FuncOperation{
		OpName:    "bad",
		ApplyFunc: func(ctx context.Context, tx *Transaction) error { return nil },
		RollbackFunc: func(ctx context.Context, tx *Transaction) error {
			rolledBack = append(rolledBack, "bad")
			return errors.New("cannot undo")
		},
	}

	tx := New(zerolog.Nop())
	if err := tx.Add(good, bad); err != nil {
		t.Fatalf("Add: %v", err)
	}
	tx.Apply(context.Background())
	tx.Rollback(context.Background())

	if len(rolledBack) != 2 || rolledBack[0] != "bad" || rolledBack[1] != "good" {
		t.Errorf("rollback attempts = %v, want [bad good]", rolledBack)
	}
}

func TestAdd_AfterApplyFails(t *testing.T) {
	tx := New(zerolog.Nop())
	tx.Apply(context.Background())
	if err := tx.Add(failingOp("late", errors.New("x"))); err == nil {
		t.Fatal("expected error adding operation after apply")
	}
}

func TestDryRun_Flag(t *testing.T) {
	sawDryRun := false
	op := &FuncOperation{
		OpName: "probe",
		ApplyFunc: func(ctx context.Context, tx *Transaction) error {
			sawDryRun = tx.DryRun()
			return nil
		},
	}

	tx := New(zerolog.Nop(), WithDryRun(true))
	if err := tx.Add(op); err != nil {
		t.Fatalf("Add: %v", err)
	}
	tx.Apply(context.Background())

	if !sawDryRun {
		t.Error("operation did not observe dry-run mode")
	}
	if !tx.Succeeded() {
		t.Errorf("dry-run apply failed: %v", tx.Err())
	}
}

func TestAbort_CooperativeWithWait(t *testing.T) {
	counter := 0

	longOp := &FuncOperation{
		OpName:      "long",
		Description: "increments toward 1000",
		ApplyFunc: func(ctx context.Context, tx *Transaction) error {
			for i := 0; i < 1000; i++ {
				if err := tx.AbortPoint(); err != nil {
					return err
				}
				counter++
				time.Sleep(time.Millisecond)
			}
			return nil
		},
		RollbackFunc: func(ctx context.Context, tx *Transaction) error {
			counter = 0
			return nil
		},
	}

	tx := New(zerolog.Nop())
	if err := tx.Add(longOp); err != nil {
		t.Fatalf("Add: %v", err)
	}

	applyDone := make(chan struct{})
	go func() {
		tx.Apply(context.Background())
		close(applyDone)
	}()

	// Give the operation time to start incrementing.
	time.Sleep(20 * time.Millisecond)
	tx.Abort(true)

	// Abort(wait=true) must return only after rollback finished, so the
	// counter is already restored here.
	if counter != 0 {
		t.Errorf("counter = %d after Abort(wait=true), want 0", counter)
	}
	if tx.Succeeded() {
		t.Error("aborted transaction reported success")
	}
	if tx.State() != StateAborted {
		t.Errorf("state = %s, want %s", tx.State(), StateAborted)
	}

	<-applyDone
}

func TestAbort_BetweenOperations(t *testing.T) {
	counter := 0
	started := make(chan struct{})
	release := make(chan struct{})

	first := &FuncOperation{
		OpName: "first",
		ApplyFunc: func(ctx context.Context, tx *Transaction) error {
			counter += 2
			close(started)
			<-release
			return nil
		},
		RollbackFunc: func(ctx context.Context, tx *Transaction) error {
			counter -= 2
			return nil
		},
	}
	second := counterOp("second", &counter, 100)

	tx := New(zerolog.Nop())
	if err := tx.Add(first, second); err != nil {
		t.Fatalf("Add: %v", err)
	}

	applyDone := make(chan struct{})
	go func() {
		tx.Apply(context.Background())
		close(applyDone)
	}()

	<-started
	tx.Abort(false)
	close(release)
	<-applyDone

	// The second operation must never have started.
	if counter != 0 {
		t.Errorf("counter = %d, want 0", counter)
	}
	if tx.State() != StateAborted {
		t.Errorf("state = %s, want %s", tx.State(), StateAborted)
	}
}

func TestAbort_NoApplyInFlightReturns(t *testing.T) {
	tx := New(zerolog.Nop())
	done := make(chan struct{})
	go func() {
		tx.Abort(true)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Abort(wait=true) blocked with no apply in flight")
	}
}

func TestProgress_Callbacks(t *testing.T) {
	type event struct {
		name  string
		phase string
	}
	var events []event

	p := progressFunc(func(op Operation, index, total int, phase string, err error) {
		events = append(events, event{name: op.Name(), phase: phase})
	})

	counter := 0
	tx := New(zerolog.Nop(), WithProgress(p))
	if err := tx.Add(counterOp("a", &counter, 1)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	tx.Apply(context.Background())

	want := []event{{"a", "started"}, {"a", "finished"}}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event[%d] = %v, want %v", i, events[i], want[i])
		}
	}
}

// progressFunc adapts a function to the Progress interface for tests.
type progressFunc func(op Operation, index, total int, phase string, err error)

func (f progressFunc) OperationStarted(op Operation, index, total int) {
	f(op, index, total, "started", nil)
}

func (f progressFunc) OperationFinished(op Operation, index, total int, err error) {
	f(op, index, total, "finished", err)
}
