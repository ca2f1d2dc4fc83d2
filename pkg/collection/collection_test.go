package collection

import (
	"context"
	"testing"

	"github.com/ivydigitalstorm/grr/pkg/mutation"
	"github.com/ivydigitalstorm/grr/pkg/store"
	"github.com/ivydigitalstorm/grr/pkg/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeURN_Format(t *testing.T) {
	urn := MakeURN("aff4:/C.1/flows/F:123", "Results", 0x1, 0x2)
	assert.Equal(t, "aff4:/C.1/flows/F:123/Results/0000000000000001.000002", urn)
}

func TestAddItem_WritesValueAndIndex(t *testing.T) {
	m := memstore.New()
	ctx := context.Background()

	subject, suffix, err := AddItem(ctx, m, "tok", "aff4:/C.1/flows/F:1", "", store.StringValue("result"), 1000, 0, "")
	require.NoError(t, err)
	assert.NotZero(t, suffix)

	cell, ok, err := m.Resolve(ctx, "tok", subject, ValueAttr)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "result", cell.Value.Str)

	idxCell, ok, err := m.Resolve(ctx, "tok", "aff4:/C.1/flows/F:1", indexAttr(0))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(suffix), idxCell.Value.Int)
}

func TestAddItem_WritesStoredType(t *testing.T) {
	m := memstore.New()
	ctx := context.Background()

	_, _, err := AddItem(ctx, m, "tok", "base", "", store.StringValue("x"), 1000, 0, "StatEntry")
	require.NoError(t, err)

	types, err := CollectionReadStoredTypes(ctx, m, "tok", "base")
	require.NoError(t, err)
	assert.Equal(t, []string{"StatEntry"}, types)
}

func TestScanItems_ReturnsInSubjectOrderAfterCursor(t *testing.T) {
	m := memstore.New()
	ctx := context.Background()
	base := "aff4:/C.1/flows/F:1"

	var items []Item
	for i, ts := range []int64{1000, 2000, 3000} {
		_, suffix, err := AddItem(ctx, m, "tok", base, "", store.IntValue(int64(i)), ts, uint32(i), "")
		require.NoError(t, err)
		items = append(items, Item{Timestamp: ts, Suffix: suffix})
	}

	got, err := ScanItems(ctx, m, "tok", base, 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(0), got[0].Value.Int)
	assert.Equal(t, int64(2), got[2].Value.Int)

	after, err := ScanItems(ctx, m, "tok", base, items[0].Timestamp, items[0].Suffix, 0)
	require.NoError(t, err)
	assert.Len(t, after, 2)
}

func TestCollectionDelete_RemovesAllResultSubjects(t *testing.T) {
	m := memstore.New()
	ctx := context.Background()
	base := "aff4:/C.1/flows/F:1"

	for i, ts := range []int64{1000, 2000} {
		_, _, err := AddItem(ctx, m, "tok", base, "", store.IntValue(int64(i)), ts, uint32(i), "")
		require.NoError(t, err)
	}

	pool := mutation.New(m, "tok", nil)
	require.NoError(t, CollectionDelete(ctx, m, "tok", pool, base))

	got, err := ScanItems(ctx, m, "tok", base, 0, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCollectionReadIndex_AscendingAfterCursor(t *testing.T) {
	m := memstore.New()
	ctx := context.Background()
	base := "base"

	for i := uint32(0); i < 3; i++ {
		_, _, err := AddItem(ctx, m, "tok", base, "", store.IntValue(int64(i)), int64(1000+i), i, "")
		require.NoError(t, err)
	}

	entries, err := CollectionReadIndex(ctx, m, "tok", base, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint32(1), entries[0].Index)
	assert.Equal(t, uint32(2), entries[1].Index)
}

func TestCollectionReadStoredTypes_Empty(t *testing.T) {
	m := memstore.New()
	types, err := CollectionReadStoredTypes(context.Background(), m, "tok", "base")
	require.NoError(t, err)
	assert.Empty(t, types)
}
