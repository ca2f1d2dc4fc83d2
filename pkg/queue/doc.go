// Package queue implements task queues: serialized task messages stored on
// attributes task:<8-digit-decimal-id>, scheduled by timestamp and leased
// out via a rewrite-to-the-future claim algorithm.
package queue
