package lock

import (
	"context"
	"time"

	"github.com/ivydigitalstorm/grr/pkg/metrics"
	"github.com/ivydigitalstorm/grr/pkg/store"
)

// expiryAttribute has no bit-exact name mandated elsewhere in the system;
// this package owns it.
const expiryAttribute = "lock:expiry"

// Lock represents a held subject lock. Its zero value is not usable;
// obtain one via Acquire, LockRetryWrapper, or WithLock.
type Lock struct {
	backend   store.Backend
	token     string
	subject   string
	expiresAt int64
}

// Acquire attempts to install an expiry timestamp on subject, conditional on
// no existing un-expired expiry cell. On conflict it returns a
// KindLockContended error.
func Acquire(ctx context.Context, backend store.Backend, token, subject string, leaseTime time.Duration) (*Lock, error) {
	cell, ok, err := backend.Resolve(ctx, token, subject, expiryAttribute)
	if err != nil {
		return nil, store.NewError("AcquireLock", store.KindBackendUnavailable, err)
	}
	now := store.NowMicros()
	if ok && cell.Value.Int > now {
		return nil, store.NewError("AcquireLock", store.KindLockContended, nil)
	}

	expiresAt := now + leaseTime.Microseconds()
	if err := writeExpiry(ctx, backend, token, subject, expiresAt); err != nil {
		return nil, store.NewError("AcquireLock", store.KindBackendUnavailable, err)
	}

	return &Lock{backend: backend, token: token, subject: subject, expiresAt: expiresAt}, nil
}

func writeExpiry(ctx context.Context, backend store.Backend, token, subject string, expiresAt int64) error {
	return backend.MultiSet(ctx, token, subject, store.MultiSetInput{
		ToDelete: []string{expiryAttribute},
		Values: map[string][]store.TimestampedValue{
			expiryAttribute: {{Value: store.IntValue(expiresAt), Timestamp: store.NowMicros()}},
		},
		Replace: true,
		Sync:    true,
	})
}

// LockRetryWrapper repeatedly calls Acquire with fixed-increment backoff
// (increment = initialBackoff) until success, until cumulative wait reaches
// maxBackoff, or until ctx is done. If blocking is false, the first failure
// is returned immediately.
func LockRetryWrapper(ctx context.Context, backend store.Backend, token, subject string, initialBackoff, maxBackoff, leaseTime time.Duration, blocking bool) (*Lock, error) {
	var waited time.Duration
	for {
		l, err := Acquire(ctx, backend, token, subject, leaseTime)
		if err == nil {
			return l, nil
		}
		if !store.Is(err, store.KindLockContended) {
			return nil, err
		}
		if !blocking {
			return nil, err
		}
		metrics.DatastoreRetries.Inc()
		waited += initialBackoff
		if waited >= maxBackoff {
			return nil, store.NewError("LockRetryWrapper", store.KindLockContended, nil)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(initialBackoff):
		}
	}
}

// UpdateLease bumps the stored expiry by extra. Idempotent: calling it on an
// already-expired or never-held subject simply installs a fresh expiry.
func (l *Lock) UpdateLease(ctx context.Context, extra time.Duration) error {
	cell, ok, err := l.backend.Resolve(ctx, l.token, l.subject, expiryAttribute)
	if err != nil {
		return store.NewError("UpdateLease", store.KindBackendUnavailable, err)
	}

	base := store.NowMicros()
	if ok && cell.Value.Int > base {
		base = cell.Value.Int
	}
	l.expiresAt = base + extra.Microseconds()

	if err := writeExpiry(ctx, l.backend, l.token, l.subject, l.expiresAt); err != nil {
		return store.NewError("UpdateLease", store.KindBackendUnavailable, err)
	}
	return nil
}

// Release deletes the expiry cell. Idempotent.
func (l *Lock) Release(ctx context.Context) error {
	err := l.backend.DeleteAttributes(ctx, l.token, l.subject, []string{expiryAttribute}, 0, 0, true)
	if err != nil {
		return store.NewError("Release", store.KindBackendUnavailable, err)
	}
	return nil
}

// WithLock acquires subject, runs fn, and releases the lock via defer
// regardless of whether fn panics or returns an error.
func WithLock(ctx context.Context, backend store.Backend, token, subject string, leaseTime time.Duration, fn func(ctx context.Context) error) error {
	l, err := Acquire(ctx, backend, token, subject, leaseTime)
	if err != nil {
		return err
	}
	defer l.Release(ctx)

	return fn(ctx)
}
