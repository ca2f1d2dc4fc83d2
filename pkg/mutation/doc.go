// Package mutation implements a caller-scoped write buffer: subject
// deletions, attribute deletions, MultiSets, and queued notification
// batches accumulate until Flush dispatches them in a fixed order.
package mutation
