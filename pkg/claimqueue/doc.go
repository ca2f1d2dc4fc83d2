// Package claimqueue implements claim-based record queues: records live at
// the sequential-collection Records subpath, each carrying an additional
// lease attribute that a claimant rewrites to a future expiry.
package claimqueue
