package mutation

import (
	"context"

	"github.com/ivydigitalstorm/grr/pkg/notify"
	"github.com/ivydigitalstorm/grr/pkg/store"
)

type multiSetOp struct {
	subject string
	in      store.MultiSetInput
}

type attrDeleteOp struct {
	subject    string
	attrs      []string
	start, end int64
}

type notificationBatch struct {
	shard         string
	notifications []notify.Notification
}

// Pool is a write buffer scoped to a single caller. It is not safe for
// concurrent use by more than one goroutine at a time.
type Pool struct {
	backend store.Backend
	token   string
	broker  *notify.Broker

	subjectDeletes []string
	attrDeletes    []attrDeleteOp
	multiSets      []multiSetOp
	notifications  []notificationBatch
}

// New creates an empty pool bound to backend and token. broker may be nil.
func New(backend store.Backend, token string, broker *notify.Broker) *Pool {
	return &Pool{backend: backend, token: token, broker: broker}
}

// DeleteSubject queues a subject deletion.
func (p *Pool) DeleteSubject(subject string) {
	p.subjectDeletes = append(p.subjectDeletes, subject)
}

// MultiSet queues a MultiSet call.
func (p *Pool) MultiSet(subject string, in store.MultiSetInput) {
	p.multiSets = append(p.multiSets, multiSetOp{subject: subject, in: in})
}

// DeleteAttributes queues an attribute-range deletion.
func (p *Pool) DeleteAttributes(subject string, attrs []string, start, end int64) {
	p.attrDeletes = append(p.attrDeletes, attrDeleteOp{subject: subject, attrs: attrs, start: start, end: end})
}

// QueueNotifications queues a notification batch for a queue shard.
func (p *Pool) QueueNotifications(shard string, notifications []notify.Notification) {
	p.notifications = append(p.notifications, notificationBatch{shard: shard, notifications: notifications})
}

// Size returns the count of pending delete+set+attribute-delete items, not
// including queued notifications. Callers use this for opportunistic
// mid-operation flushes.
func (p *Pool) Size() int {
	return len(p.subjectDeletes) + len(p.multiSets) + len(p.attrDeletes)
}

// Flush dispatches, in order: subject deletions (one backend call,
// sync=false), attribute deletions, MultiSets, then a single backend Flush
// if any of the three had content, then notification creation. There is no
// atomicity across the batch: a partial backend failure may leave some
// mutations applied and others not.
func (p *Pool) Flush(ctx context.Context) error {
	wroteAny := len(p.subjectDeletes) > 0 || len(p.attrDeletes) > 0 || len(p.multiSets) > 0

	if len(p.subjectDeletes) > 0 {
		if err := p.backend.DeleteSubjects(ctx, p.token, p.subjectDeletes, false); err != nil {
			return store.NewError("Flush", store.KindBackendUnavailable, err)
		}
		p.subjectDeletes = nil
	}

	for _, op := range p.attrDeletes {
		if err := p.backend.DeleteAttributes(ctx, p.token, op.subject, op.attrs, op.start, op.end, false); err != nil {
			return store.NewError("Flush", store.KindBackendUnavailable, err)
		}
	}
	p.attrDeletes = nil

	for _, op := range p.multiSets {
		if err := p.backend.MultiSet(ctx, p.token, op.subject, op.in); err != nil {
			return store.NewError("Flush", store.KindBackendUnavailable, err)
		}
	}
	p.multiSets = nil

	if wroteAny {
		if err := p.backend.Flush(ctx, p.token); err != nil {
			return store.NewError("Flush", store.KindBackendUnavailable, err)
		}
	}

	for _, batch := range p.notifications {
		if err := notify.CreateNotifications(ctx, p.backend, p.token, batch.shard, batch.notifications, p.broker); err != nil {
			return err
		}
	}
	p.notifications = nil

	return nil
}

// Scoped runs fn(pool) and flushes via defer regardless of whether fn
// panics or returns an error.
func Scoped(ctx context.Context, pool *Pool, fn func(p *Pool) error) error {
	defer pool.Flush(ctx)
	return fn(pool)
}
