package collection

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/ivydigitalstorm/grr/pkg/metrics"
	"github.com/ivydigitalstorm/grr/pkg/mutation"
	"github.com/ivydigitalstorm/grr/pkg/store"
)

const (
	// ValueAttr holds the opaque record payload on its composite subject.
	ValueAttr = "aff4:sequential_value"
	// DefaultSubpath is where user records live under a collection base.
	DefaultSubpath = "Results"
	// maxSuffix is the inclusive upper bound of the 24-bit suffix field.
	maxSuffix = 0xFFFFFF
	// suffixRetries bounds how many times AddItem regenerates a colliding
	// random suffix before giving up, per the resolved suffix-collision
	// open question (bounded retry rather than widening the suffix field).
	suffixRetries = 8
	// deleteBatchSize is how often CollectionDelete flushes its pool.
	deleteBatchSize = 50000
)

func indexAttr(i uint32) string       { return fmt.Sprintf("index:sc_%08x", i) }
func typeAttr(valueType string) string { return "aff4:value_type_" + valueType }

// MakeURN builds the composite subject for one record.
func MakeURN(base, subpath string, ts int64, suffix uint32) string {
	return fmt.Sprintf("%s/%s/%016x.%06x", strings.TrimSuffix(base, "/"), subpath, ts, suffix)
}

func randomSuffix() (uint32, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxSuffix))
	if err != nil {
		return 0, err
	}
	return uint32(n.Int64()) + 1, nil
}

func parseSuffix(subject string) (uint32, error) {
	idx := strings.LastIndex(subject, ".")
	if idx < 0 {
		return 0, fmt.Errorf("malformed collection subject: %s", subject)
	}
	v, err := strconv.ParseUint(subject[idx+1:], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed collection suffix in %s: %w", subject, err)
	}
	return uint32(v), nil
}

// Item is one record yielded by ScanItems.
type Item struct {
	Value     store.Value
	Timestamp int64
	Suffix    uint32
}

// AddItem writes one record to base/subpath at ts (NowMicros() if zero),
// retrying on suffix collision up to suffixRetries times. If valueType is
// non-empty, it also records a stored-type tag on base. index is the
// caller-assigned logical position written to the per-base index.
func AddItem(ctx context.Context, backend store.Backend, token, base, subpath string, value store.Value, ts int64, index uint32, valueType string) (subject string, suffix uint32, err error) {
	if subpath == "" {
		subpath = DefaultSubpath
	}
	if ts == 0 {
		ts = store.NowMicros()
	}

	for attempt := 0; attempt <= suffixRetries; attempt++ {
		s, genErr := randomSuffix()
		if genErr != nil {
			return "", 0, store.NewError("AddItem", store.KindBackendUnavailable, genErr)
		}
		candidate := MakeURN(base, subpath, ts, s)

		_, exists, resolveErr := backend.Resolve(ctx, token, candidate, ValueAttr)
		if resolveErr != nil {
			return "", 0, store.NewError("AddItem", store.KindBackendUnavailable, resolveErr)
		}
		if exists {
			metrics.DatastoreRetries.Inc()
			continue
		}

		setErr := backend.MultiSet(ctx, token, candidate, store.MultiSetInput{
			Values: map[string][]store.TimestampedValue{
				ValueAttr: {{Value: value, Timestamp: ts}},
			},
			Timestamp: ts,
		})
		if setErr != nil {
			return "", 0, store.NewError("AddItem", store.KindBackendUnavailable, setErr)
		}

		if err := writeIndex(ctx, backend, token, base, index, s, ts); err != nil {
			return "", 0, err
		}
		if valueType != "" {
			if err := writeStoredType(ctx, backend, token, base, valueType); err != nil {
				return "", 0, err
			}
		}

		return candidate, s, nil
	}

	return "", 0, store.NewError("AddItem", store.KindBackendUnavailable,
		fmt.Errorf("exhausted %d suffix collision retries for %s", suffixRetries, base))
}

func writeIndex(ctx context.Context, backend store.Backend, token, base string, index, suffix uint32, ts int64) error {
	err := backend.MultiSet(ctx, token, base, store.MultiSetInput{
		Values: map[string][]store.TimestampedValue{
			indexAttr(index): {{Value: store.IntValue(int64(suffix)), Timestamp: ts}},
		},
	})
	if err != nil {
		return store.NewError("AddItem", store.KindBackendUnavailable, err)
	}
	return nil
}

func writeStoredType(ctx context.Context, backend store.Backend, token, base, valueType string) error {
	err := backend.MultiSet(ctx, token, base, store.MultiSetInput{
		Values: map[string][]store.TimestampedValue{
			typeAttr(valueType): {{Value: store.IntValue(1), Timestamp: 0}},
		},
		Replace: true,
	})
	if err != nil {
		return store.NewError("AddItem", store.KindBackendUnavailable, err)
	}
	return nil
}

// ScanItems calls ScanAttributes on base/Results, yielding records strictly
// after (afterTS, afterSuffix).
func ScanItems(ctx context.Context, backend store.Backend, token, base string, afterTS int64, afterSuffix uint32, limit int) ([]Item, error) {
	resultsBase := strings.TrimSuffix(base, "/") + "/Results"

	afterURN := ""
	if afterTS > 0 || afterSuffix > 0 {
		afterURN = MakeURN(base, DefaultSubpath, afterTS, afterSuffix)
	}

	rows, err := backend.ScanAttributes(ctx, token, resultsBase, []string{ValueAttr}, afterURN, limit, false)
	if err != nil {
		return nil, store.NewError("ScanItems", store.KindBackendUnavailable, err)
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		cell, ok := row.Cells[ValueAttr]
		if !ok {
			continue
		}
		suffix, err := parseSuffix(row.Subject)
		if err != nil {
			return nil, store.NewError("ScanItems", store.KindInvalidArgument, err)
		}
		items = append(items, Item{Value: cell.Value, Timestamp: cell.Timestamp, Suffix: suffix})
	}
	return items, nil
}

// CollectionDelete scans the Results directory under base, accumulating
// subject deletions in pool and auto-flushing every deleteBatchSize items.
func CollectionDelete(ctx context.Context, backend store.Backend, token string, pool *mutation.Pool, base string) error {
	resultsBase := strings.TrimSuffix(base, "/") + "/Results"
	afterURN := ""

	for {
		rows, err := backend.ScanAttributes(ctx, token, resultsBase, []string{ValueAttr}, afterURN, deleteBatchSize, true)
		if err != nil {
			return store.NewError("CollectionDelete", store.KindBackendUnavailable, err)
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			pool.DeleteSubject(row.Subject)
			if pool.Size() >= deleteBatchSize {
				if err := pool.Flush(ctx); err != nil {
					return err
				}
			}
			afterURN = row.Subject
		}

		if len(rows) < deleteBatchSize {
			break
		}
	}

	return pool.Flush(ctx)
}

// IndexEntry is one record in the per-base logical index.
type IndexEntry struct {
	Index     uint32
	Suffix    uint32
	Timestamp int64
}

// CollectionReadIndex resolves index:sc_<i> cells in ascending i order
// starting strictly after afterIndex.
func CollectionReadIndex(ctx context.Context, backend store.Backend, token, base string, afterIndex uint32, limit int) ([]IndexEntry, error) {
	cells, err := backend.ResolvePrefix(ctx, token, base, "index:sc_", store.Newest(), 0)
	if err != nil {
		return nil, store.NewError("CollectionReadIndex", store.KindBackendUnavailable, err)
	}

	entries := make([]IndexEntry, 0, len(cells))
	for _, c := range cells {
		i, err := strconv.ParseUint(strings.TrimPrefix(c.Attribute, "index:sc_"), 16, 32)
		if err != nil {
			continue
		}
		if uint32(i) <= afterIndex {
			continue
		}
		entries = append(entries, IndexEntry{
			Index:     uint32(i),
			Suffix:    uint32(c.Value.Int),
			Timestamp: c.Timestamp,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Index < entries[j].Index })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// CollectionReadStoredTypes resolves all aff4:value_type_<type> cells on
// base and returns the set of type tags recorded for the collection.
func CollectionReadStoredTypes(ctx context.Context, backend store.Backend, token, base string) ([]string, error) {
	cells, err := backend.ResolvePrefix(ctx, token, base, "aff4:value_type_", store.Newest(), 0)
	if err != nil {
		return nil, store.NewError("CollectionReadStoredTypes", store.KindBackendUnavailable, err)
	}

	types := make([]string, 0, len(cells))
	for _, c := range cells {
		types = append(types, strings.TrimPrefix(c.Attribute, "aff4:value_type_"))
	}
	sort.Strings(types)
	return types, nil
}
