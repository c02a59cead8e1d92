// Package ratelimit provides distributed fixed-window rate limiting.
//
// A WindowedLimiter counts requests per identifier in a shared Store under the
// key "<prefix>:<identifier>". The first request of a window creates the
// counter and sets its expiry; later requests only increment it, so the window
// is anchored to the first request and ends when the store expires the key.
//
// Check increments unconditionally and compares afterwards. Rejected calls
// therefore still cost a store write, and the counter keeps growing while a
// caller is limited. This ordering is what makes the check race-free: the
// increment and the expiry are a single atomic step in the store, and the
// decision is a pure function of the count it returns.
//
// Errors come in three kinds, told apart with errors.As or errors.Is:
//
//   - *LimitExceeded (errors.Is ErrLimitExceeded): the caller must back off.
//   - *StoreError: the store failed during an operation.
//   - *ConnectionError: the store target is malformed or unreachable.
//
// The package never retries and never fails open or closed on its own; that
// policy belongs to the caller.
package ratelimit
