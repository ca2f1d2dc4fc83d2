package mutation

import (
	"context"
	"testing"

	"github.com/ivydigitalstorm/grr/pkg/notify"
	"github.com/ivydigitalstorm/grr/pkg/store"
	"github.com/ivydigitalstorm/grr/pkg/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSize_CountsDeletesAndSetsNotNotifications(t *testing.T) {
	p := New(memstore.New(), "tok", nil)
	assert.Equal(t, 0, p.Size())

	p.DeleteSubject("s1")
	p.MultiSet("s2", store.MultiSetInput{})
	p.DeleteAttributes("s3", []string{"a"}, 0, 0)
	p.QueueNotifications("shard", []notify.Notification{{SessionID: "x"}})

	assert.Equal(t, 3, p.Size())
}

func TestFlush_AppliesMultiSet(t *testing.T) {
	m := memstore.New()
	p := New(m, "tok", nil)
	ctx := context.Background()

	p.MultiSet("s", store.MultiSetInput{
		Values: map[string][]store.TimestampedValue{
			"a": {{Value: store.IntValue(1), Timestamp: 10}},
		},
	})
	require.NoError(t, p.Flush(ctx))
	assert.Equal(t, 0, p.Size())

	cell, ok, err := m.Resolve(ctx, "tok", "s", "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), cell.Value.Int)
}

func TestFlush_DeletesSubjectBeforeApplyingOtherOps(t *testing.T) {
	m := memstore.New()
	ctx := context.Background()

	require.NoError(t, m.MultiSet(ctx, "tok", "s", store.MultiSetInput{
		Values: map[string][]store.TimestampedValue{"old": {{Value: store.IntValue(1), Timestamp: 1}}},
	}))

	p := New(m, "tok", nil)
	p.DeleteSubject("s")
	p.MultiSet("s", store.MultiSetInput{
		Values: map[string][]store.TimestampedValue{"new": {{Value: store.IntValue(2), Timestamp: 2}}},
	})
	require.NoError(t, p.Flush(ctx))

	_, ok, err := m.Resolve(ctx, "tok", "s", "old")
	require.NoError(t, err)
	assert.False(t, ok)

	cell, ok, err := m.Resolve(ctx, "tok", "s", "new")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), cell.Value.Int)
}

func TestFlush_CreatesQueuedNotifications(t *testing.T) {
	m := memstore.New()
	p := New(m, "tok", nil)
	ctx := context.Background()

	p.QueueNotifications("shard1", []notify.Notification{
		{SessionID: "flow1", Timestamp: 10, Payload: []byte("x")},
	})
	require.NoError(t, p.Flush(ctx))

	got, err := notify.GetNotifications(ctx, m, "tok", "shard1", 100, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "flow1", got[0].SessionID)
}

func TestFlush_IsIdempotentOnEmptyPool(t *testing.T) {
	p := New(memstore.New(), "tok", nil)
	assert.NoError(t, p.Flush(context.Background()))
}

func TestScoped_FlushesOnReturn(t *testing.T) {
	m := memstore.New()
	p := New(m, "tok", nil)
	ctx := context.Background()

	err := Scoped(ctx, p, func(p *Pool) error {
		p.MultiSet("s", store.MultiSetInput{
			Values: map[string][]store.TimestampedValue{"a": {{Value: store.IntValue(1), Timestamp: 1}}},
		})
		return nil
	})
	require.NoError(t, err)

	_, ok, err := m.Resolve(ctx, "tok", "s", "a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestScoped_FlushesOnError(t *testing.T) {
	m := memstore.New()
	p := New(m, "tok", nil)
	ctx := context.Background()

	wantErr := store.NewError("do", store.KindInvalidArgument, nil)
	err := Scoped(ctx, p, func(p *Pool) error {
		p.MultiSet("s", store.MultiSetInput{
			Values: map[string][]store.TimestampedValue{"a": {{Value: store.IntValue(1), Timestamp: 1}}},
		})
		return wantErr
	})
	assert.Equal(t, wantErr, err)

	_, ok, err := m.Resolve(ctx, "tok", "s", "a")
	require.NoError(t, err)
	assert.True(t, ok)
}
