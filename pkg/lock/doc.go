// Package lock provides advisory, lease-based mutual exclusion for a single
// subject. It coordinates writers that opt in; it is not a transaction and
// gives no read isolation.
package lock
