// Package txn implements the transactional operation engine that runs
// stagehand's pre-launch side effects with all-or-nothing semantics.
//
// A Transaction owns an ordered list of Operations. Apply executes them
// strictly in order; when one fails, the already-applied prefix is rolled
// back in reverse order and the failure is recorded on the transaction
// rather than returned, so callers inspect Succeeded and Err. Abort is
// cooperative: a concurrent goroutine sets a flag that Apply observes at
// operation boundaries and, for long-running operations, at explicit abort
// points inside the operation body.
package txn
