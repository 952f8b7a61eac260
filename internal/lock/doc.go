// Package lock provides the single-writer lock that serializes
// reconciliation cycles.
//
// Acquire waits up to a timeout and reports failure as false rather than as an
// error, so a caller that loses the race can abandon its cycle before touching
// anything. Release is safe to call unconditionally, which lets callers defer
// it immediately after a successful acquire.
//
// Two implementations exist:
//   - Semaphore serializes cycles inside one process (watch mode)
//   - FileLock serializes separate processes on one host via flock(2)
package lock
