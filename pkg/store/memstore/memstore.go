package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ivydigitalstorm/grr/pkg/store"
)

// MemStore is an in-process map-backed store.Backend.
type MemStore struct {
	mu      sync.RWMutex
	subject map[string]map[string][]store.Cell // subject -> attribute -> cells, newest first
}

// New creates an empty MemStore.
func New() *MemStore {
	return &MemStore{subject: make(map[string]map[string][]store.Cell)}
}

func (m *MemStore) DeleteSubjects(ctx context.Context, token string, subjects []string, sync bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range subjects {
		delete(m.subject, s)
	}
	return nil
}

func (m *MemStore) MultiSet(ctx context.Context, token, subject string, in store.MultiSetInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	attrs, ok := m.subject[subject]
	if !ok {
		attrs = make(map[string][]store.Cell)
		m.subject[subject] = attrs
	}

	for _, attr := range in.ToDelete {
		delete(attrs, attr)
	}

	for attr, values := range in.Values {
		cells := attrs[attr]
		if in.Replace {
			cells = nil
		}
		for _, v := range values {
			ts := v.Timestamp
			if ts == 0 {
				ts = in.Timestamp
			}
			if ts == 0 {
				ts = store.NowMicros()
			}
			cells = append(cells, store.Cell{Attribute: attr, Timestamp: ts, Value: v.Value})
		}
		sort.Slice(cells, func(i, j int) bool { return cells[i].Timestamp > cells[j].Timestamp })
		attrs[attr] = cells
	}

	return nil
}

func (m *MemStore) DeleteAttributes(ctx context.Context, token, subject string, attrs []string, start, end int64, sync bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	subjAttrs, ok := m.subject[subject]
	if !ok {
		return nil
	}
	for _, attr := range attrs {
		cells := subjAttrs[attr]
		kept := cells[:0]
		for _, c := range cells {
			if c.Timestamp >= start && (end <= 0 || c.Timestamp <= end) {
				continue
			}
			kept = append(kept, c)
		}
		if len(kept) == 0 {
			delete(subjAttrs, attr)
		} else {
			subjAttrs[attr] = kept
		}
	}
	return nil
}

func (m *MemStore) Resolve(ctx context.Context, token, subject, attribute string) (store.Cell, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cells := m.subject[subject][attribute]
	if len(cells) == 0 {
		return store.Cell{}, false, nil
	}
	return cells[0], true, nil
}

func selectByTimestampSpec(cells []store.Cell, spec store.TimestampSpec) []store.Cell {
	switch spec.Mode {
	case store.ModeNewest:
		if len(cells) == 0 {
			return nil
		}
		return cells[:1]
	case store.ModeRange:
		var out []store.Cell
		for _, c := range cells {
			if c.Timestamp >= spec.Start && c.Timestamp <= spec.End {
				out = append(out, c)
			}
		}
		return out
	default: // ModeAll
		return cells
	}
}

func (m *MemStore) ResolveMulti(ctx context.Context, token, subject string, attrs []string, spec store.TimestampSpec, limit int) ([]store.Cell, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subjAttrs := m.subject[subject]
	var out []store.Cell
	for _, attr := range attrs {
		out = append(out, selectByTimestampSpec(subjAttrs[attr], spec)...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
	}
	return out, nil
}

func (m *MemStore) ResolvePrefix(ctx context.Context, token, subject, prefix string, spec store.TimestampSpec, limit int) ([]store.Cell, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resolvePrefixLocked(subject, prefix, spec, limit), nil
}

func (m *MemStore) resolvePrefixLocked(subject, prefix string, spec store.TimestampSpec, limit int) []store.Cell {
	subjAttrs := m.subject[subject]
	attrNames := make([]string, 0, len(subjAttrs))
	for attr := range subjAttrs {
		if strings.HasPrefix(attr, prefix) {
			attrNames = append(attrNames, attr)
		}
	}
	sort.Strings(attrNames)

	var out []store.Cell
	for _, attr := range attrNames {
		out = append(out, selectByTimestampSpec(subjAttrs[attr], spec)...)
		if limit > 0 && len(out) >= limit {
			return out[:limit]
		}
	}
	return out
}

func (m *MemStore) MultiResolvePrefix(ctx context.Context, token string, subjects []string, prefix string, spec store.TimestampSpec, limit int) (map[string][]store.Cell, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]store.Cell, len(subjects))
	for _, s := range subjects {
		cells := m.resolvePrefixLocked(s, prefix, spec, limit)
		if len(cells) > 0 {
			result[s] = cells
		}
	}
	return result, nil
}

func (m *MemStore) ScanAttributes(ctx context.Context, token, subjectPrefix string, attrs []string, afterURN string, maxRecords int, relaxedOrder bool) ([]store.ScanRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	boundary := strings.TrimSuffix(subjectPrefix, "/") + "/"

	subjects := make([]string, 0, len(m.subject))
	for s := range m.subject {
		if !strings.HasPrefix(s, boundary) {
			continue
		}
		if afterURN != "" && s <= afterURN {
			continue
		}
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)

	var rows []store.ScanRow
	for _, s := range subjects {
		subjAttrs := m.subject[s]
		row := store.ScanRow{Subject: s, Cells: make(map[string]store.Cell)}
		if len(attrs) == 0 {
			for attr, cells := range subjAttrs {
				if len(cells) > 0 {
					row.Cells[attr] = cells[0]
				}
			}
		} else {
			for _, attr := range attrs {
				if cells := subjAttrs[attr]; len(cells) > 0 {
					row.Cells[attr] = cells[0]
				}
			}
		}
		rows = append(rows, row)
		if maxRecords > 0 && len(rows) >= maxRecords {
			break
		}
	}
	return rows, nil
}

func (m *MemStore) Flush(ctx context.Context, token string) error {
	return nil
}

func (m *MemStore) Size(ctx context.Context, token string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for subject, attrs := range m.subject {
		total += int64(len(subject))
		for attr, cells := range attrs {
			total += int64(len(attr))
			for _, c := range cells {
				total += cellSize(c)
			}
		}
	}
	return total, nil
}

func cellSize(c store.Cell) int64 {
	switch c.Value.Kind {
	case store.KindInt:
		return 8
	case store.KindString:
		return int64(len(c.Value.Str))
	case store.KindBytes:
		return int64(len(c.Value.Bytes))
	default:
		return 0
	}
}

var _ store.Backend = (*MemStore)(nil)
