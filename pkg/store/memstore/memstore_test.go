package memstore

import (
	"context"
	"testing"

	"github.com/ivydigitalstorm/grr/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiSet_ResolveNewest(t *testing.T) {
	m := New()
	ctx := context.Background()

	err := m.MultiSet(ctx, "tok", "aff4:/C.1234/info", store.MultiSetInput{
		Values: map[string][]store.TimestampedValue{
			"aff4:type": {{Value: store.StringValue("VFSGRRClient"), Timestamp: 100}},
		},
	})
	require.NoError(t, err)

	err = m.MultiSet(ctx, "tok", "aff4:/C.1234/info", store.MultiSetInput{
		Values: map[string][]store.TimestampedValue{
			"aff4:type": {{Value: store.StringValue("VFSGRRClientV2"), Timestamp: 200}},
		},
	})
	require.NoError(t, err)

	cell, ok, err := m.Resolve(ctx, "tok", "aff4:/C.1234/info", "aff4:type")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "VFSGRRClientV2", cell.Value.Str)
	assert.Equal(t, int64(200), cell.Timestamp)
}

func TestMultiSet_ReplaceCollidesAtSameTimestamp(t *testing.T) {
	m := New()
	ctx := context.Background()

	set := func(v string) {
		err := m.MultiSet(ctx, "tok", "s", store.MultiSetInput{
			Values: map[string][]store.TimestampedValue{
				"a": {{Value: store.StringValue(v), Timestamp: 42}},
			},
			Replace: true,
		})
		require.NoError(t, err)
	}
	set("first")
	set("second")

	cells, err := m.ResolveMulti(ctx, "tok", "s", []string{"a"}, store.All(), 0)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, "second", cells[0].Value.Str)
}

func TestMultiSet_ToDeleteClearsAttributeBeforeWriting(t *testing.T) {
	m := New()
	ctx := context.Background()

	require.NoError(t, m.MultiSet(ctx, "tok", "s", store.MultiSetInput{
		Values: map[string][]store.TimestampedValue{
			"a": {{Value: store.IntValue(1), Timestamp: 1}, {Value: store.IntValue(2), Timestamp: 2}},
		},
	}))

	require.NoError(t, m.MultiSet(ctx, "tok", "s", store.MultiSetInput{
		ToDelete: []string{"a"},
		Values: map[string][]store.TimestampedValue{
			"a": {{Value: store.IntValue(3), Timestamp: 3}},
		},
	}))

	cells, err := m.ResolveMulti(ctx, "tok", "s", []string{"a"}, store.All(), 0)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, int64(3), cells[0].Value.Int)
}

func TestResolve_MissingReturnsNotOK(t *testing.T) {
	m := New()
	_, ok, err := m.Resolve(context.Background(), "tok", "s", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteAttributes_RangeBound(t *testing.T) {
	m := New()
	ctx := context.Background()

	require.NoError(t, m.MultiSet(ctx, "tok", "s", store.MultiSetInput{
		Values: map[string][]store.TimestampedValue{
			"a": {
				{Value: store.IntValue(1), Timestamp: 10},
				{Value: store.IntValue(2), Timestamp: 20},
				{Value: store.IntValue(3), Timestamp: 30},
			},
		},
	}))

	require.NoError(t, m.DeleteAttributes(ctx, "tok", "s", []string{"a"}, 15, 25, false))

	cells, err := m.ResolveMulti(ctx, "tok", "s", []string{"a"}, store.All(), 0)
	require.NoError(t, err)
	require.Len(t, cells, 2)
	for _, c := range cells {
		assert.NotEqual(t, int64(20), c.Timestamp)
	}
}

func TestDeleteAttributes_OpenEndedWhenEndIsZero(t *testing.T) {
	m := New()
	ctx := context.Background()

	require.NoError(t, m.MultiSet(ctx, "tok", "s", store.MultiSetInput{
		Values: map[string][]store.TimestampedValue{
			"a": {
				{Value: store.IntValue(1), Timestamp: 10},
				{Value: store.IntValue(2), Timestamp: 999999},
			},
		},
	}))

	require.NoError(t, m.DeleteAttributes(ctx, "tok", "s", []string{"a"}, 10, 0, false))

	cells, err := m.ResolveMulti(ctx, "tok", "s", []string{"a"}, store.All(), 0)
	require.NoError(t, err)
	assert.Empty(t, cells)
}

func TestDeleteSubjects(t *testing.T) {
	m := New()
	ctx := context.Background()

	require.NoError(t, m.MultiSet(ctx, "tok", "s1", store.MultiSetInput{
		Values: map[string][]store.TimestampedValue{"a": {{Value: store.IntValue(1), Timestamp: 1}}},
	}))
	require.NoError(t, m.DeleteSubjects(ctx, "tok", []string{"s1"}, false))

	_, ok, err := m.Resolve(ctx, "tok", "s1", "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolvePrefix_OrderedNewestFirstWithinAttribute(t *testing.T) {
	m := New()
	ctx := context.Background()

	require.NoError(t, m.MultiSet(ctx, "tok", "s", store.MultiSetInput{
		Values: map[string][]store.TimestampedValue{
			"kw_index:foo": {
				{Value: store.StringValue("v1"), Timestamp: 1},
				{Value: store.StringValue("v2"), Timestamp: 2},
			},
		},
	}))

	cells, err := m.ResolvePrefix(ctx, "tok", "s", "kw_index:", store.All(), 0)
	require.NoError(t, err)
	require.Len(t, cells, 2)
	assert.Equal(t, int64(2), cells[0].Timestamp)
	assert.Equal(t, int64(1), cells[1].Timestamp)
}

func TestMultiResolvePrefix_FansOutOverSubjects(t *testing.T) {
	m := New()
	ctx := context.Background()

	for _, s := range []string{"s1", "s2"} {
		require.NoError(t, m.MultiSet(ctx, "tok", s, store.MultiSetInput{
			Values: map[string][]store.TimestampedValue{
				"index:label_x": {{Value: store.StringValue("X"), Timestamp: 1}},
			},
		}))
	}

	result, err := m.MultiResolvePrefix(ctx, "tok", []string{"s1", "s2", "s3"}, "index:label_", store.All(), 0)
	require.NoError(t, err)
	assert.Len(t, result, 2)
	assert.NotContains(t, result, "s3")
}

func TestScanAttributes_BoundsBySubjectPrefixAndAfterURN(t *testing.T) {
	m := New()
	ctx := context.Background()

	for _, s := range []string{"aff4:/C.1/a", "aff4:/C.1/b", "aff4:/C.1/c", "aff4:/C.2/a"} {
		require.NoError(t, m.MultiSet(ctx, "tok", s, store.MultiSetInput{
			Values: map[string][]store.TimestampedValue{
				"aff4:type": {{Value: store.StringValue("x"), Timestamp: 1}},
			},
		}))
	}

	rows, err := m.ScanAttributes(ctx, "tok", "aff4:/C.1", []string{"aff4:type"}, "aff4:/C.1/a", 0, false)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "aff4:/C.1/b", rows[0].Subject)
	assert.Equal(t, "aff4:/C.1/c", rows[1].Subject)
}

func TestScanAttributes_MaxRecordsBounds(t *testing.T) {
	m := New()
	ctx := context.Background()

	for _, s := range []string{"aff4:/C.1/a", "aff4:/C.1/b", "aff4:/C.1/c"} {
		require.NoError(t, m.MultiSet(ctx, "tok", s, store.MultiSetInput{
			Values: map[string][]store.TimestampedValue{
				"aff4:type": {{Value: store.StringValue("x"), Timestamp: 1}},
			},
		}))
	}

	rows, err := m.ScanAttributes(ctx, "tok", "aff4:/C.1", []string{"aff4:type"}, "", 2, false)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSize_ReflectsStoredBytes(t *testing.T) {
	m := New()
	ctx := context.Background()

	sz0, err := m.Size(ctx, "tok")
	require.NoError(t, err)
	assert.Zero(t, sz0)

	require.NoError(t, m.MultiSet(ctx, "tok", "s", store.MultiSetInput{
		Values: map[string][]store.TimestampedValue{
			"a": {{Value: store.BytesValue([]byte("0123456789")), Timestamp: 1}},
		},
	}))

	sz1, err := m.Size(ctx, "tok")
	require.NoError(t, err)
	assert.Greater(t, sz1, sz0)
}

func TestFlush_IsNoop(t *testing.T) {
	m := New()
	assert.NoError(t, m.Flush(context.Background(), "tok"))
}
