// Package correlation matches validator replies to the requests that are
// waiting for them.
//
// Ownership boundary:
// - pending request table keyed by correlation id
// - exactly-once completion (reply, timeout, cancel, or connection loss)
// - diagnostics for replies nobody is waiting on
//
// The registry never mints ids on its own; callers use NewID.
package correlation
