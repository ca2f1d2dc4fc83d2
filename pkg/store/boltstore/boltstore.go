package boltstore

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ivydigitalstorm/grr/pkg/store"
	bolt "go.etcd.io/bbolt"
)

var bucketSubjects = []byte("subjects")

// BoltStore is a durable store.Backend backed by a single bbolt database.
type BoltStore struct {
	db *bolt.DB
}

// New opens (creating if absent) a bbolt database under dataDir.
func New(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "objectstore.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open datastore: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSubjects)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create subjects bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

type subjectRow map[string][]store.Cell

func decodeRow(data []byte) (subjectRow, error) {
	if data == nil {
		return make(subjectRow), nil
	}
	var row subjectRow
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&row); err != nil {
		return nil, fmt.Errorf("failed to decode subject row: %w", err)
	}
	return row, nil
}

func encodeRow(row subjectRow) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(row); err != nil {
		return nil, fmt.Errorf("failed to encode subject row: %w", err)
	}
	return buf.Bytes(), nil
}

func loadSubject(b *bolt.Bucket, subject string) (subjectRow, error) {
	return decodeRow(b.Get([]byte(subject)))
}

func saveSubject(b *bolt.Bucket, subject string, row subjectRow) error {
	if len(row) == 0 {
		return b.Delete([]byte(subject))
	}
	data, err := encodeRow(row)
	if err != nil {
		return err
	}
	return b.Put([]byte(subject), data)
}

func (s *BoltStore) DeleteSubjects(ctx context.Context, token string, subjects []string, sync bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSubjects)
		for _, subj := range subjects {
			if err := b.Delete([]byte(subj)); err != nil {
				return fmt.Errorf("failed to delete subject %s: %w", subj, err)
			}
		}
		return nil
	})
}

func (s *BoltStore) MultiSet(ctx context.Context, token, subject string, in store.MultiSetInput) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSubjects)
		row, err := loadSubject(b, subject)
		if err != nil {
			return err
		}

		for _, attr := range in.ToDelete {
			delete(row, attr)
		}

		for attr, values := range in.Values {
			cells := row[attr]
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
			row[attr] = cells
		}

		return saveSubject(b, subject, row)
	})
}

func (s *BoltStore) DeleteAttributes(ctx context.Context, token, subject string, attrs []string, start, end int64, sync bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSubjects)
		row, err := loadSubject(b, subject)
		if err != nil {
			return err
		}

		for _, attr := range attrs {
			cells := row[attr]
			kept := cells[:0]
			for _, c := range cells {
				if c.Timestamp >= start && (end <= 0 || c.Timestamp <= end) {
					continue
				}
				kept = append(kept, c)
			}
			if len(kept) == 0 {
				delete(row, attr)
			} else {
				row[attr] = kept
			}
		}

		return saveSubject(b, subject, row)
	})
}

func (s *BoltStore) Resolve(ctx context.Context, token, subject, attribute string) (store.Cell, bool, error) {
	var cell store.Cell
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSubjects)
		row, err := loadSubject(b, subject)
		if err != nil {
			return err
		}
		cells := row[attribute]
		if len(cells) == 0 {
			return nil
		}
		cell, ok = cells[0], true
		return nil
	})
	return cell, ok, err
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

func (s *BoltStore) ResolveMulti(ctx context.Context, token, subject string, attrs []string, spec store.TimestampSpec, limit int) ([]store.Cell, error) {
	var out []store.Cell
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSubjects)
		row, err := loadSubject(b, subject)
		if err != nil {
			return err
		}
		for _, attr := range attrs {
			out = append(out, selectByTimestampSpec(row[attr], spec)...)
			if limit > 0 && len(out) >= limit {
				out = out[:limit]
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) resolvePrefixRow(row subjectRow, prefix string, spec store.TimestampSpec, limit int) []store.Cell {
	attrNames := make([]string, 0, len(row))
	for attr := range row {
		if strings.HasPrefix(attr, prefix) {
			attrNames = append(attrNames, attr)
		}
	}
	sort.Strings(attrNames)

	var out []store.Cell
	for _, attr := range attrNames {
		out = append(out, selectByTimestampSpec(row[attr], spec)...)
		if limit > 0 && len(out) >= limit {
			return out[:limit]
		}
	}
	return out
}

func (s *BoltStore) ResolvePrefix(ctx context.Context, token, subject, prefix string, spec store.TimestampSpec, limit int) ([]store.Cell, error) {
	var out []store.Cell
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSubjects)
		row, err := loadSubject(b, subject)
		if err != nil {
			return err
		}
		out = s.resolvePrefixRow(row, prefix, spec, limit)
		return nil
	})
	return out, err
}

func (s *BoltStore) MultiResolvePrefix(ctx context.Context, token string, subjects []string, prefix string, spec store.TimestampSpec, limit int) (map[string][]store.Cell, error) {
	result := make(map[string][]store.Cell, len(subjects))
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSubjects)
		for _, subj := range subjects {
			row, err := loadSubject(b, subj)
			if err != nil {
				return err
			}
			cells := s.resolvePrefixRow(row, prefix, spec, limit)
			if len(cells) > 0 {
				result[subj] = cells
			}
		}
		return nil
	})
	return result, err
}

// ScanAttributes walks subject keys in bbolt's native lexicographic byte
// order via a cursor, starting strictly after afterURN.
func (s *BoltStore) ScanAttributes(ctx context.Context, token, subjectPrefix string, attrs []string, afterURN string, maxRecords int, relaxedOrder bool) ([]store.ScanRow, error) {
	boundary := strings.TrimSuffix(subjectPrefix, "/") + "/"

	var rows []store.ScanRow
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSubjects)
		c := b.Cursor()

		seekKey := []byte(boundary)
		if afterURN != "" && afterURN > boundary {
			seekKey = []byte(afterURN)
		}

		for k, v := c.Seek(seekKey); k != nil; k, v = c.Next() {
			subject := string(k)
			if !strings.HasPrefix(subject, boundary) {
				if subject > boundary {
					break
				}
				continue
			}
			if afterURN != "" && subject <= afterURN {
				continue
			}

			row, err := decodeRow(v)
			if err != nil {
				return err
			}

			scanRow := store.ScanRow{Subject: subject, Cells: make(map[string]store.Cell)}
			if len(attrs) == 0 {
				for attr, cells := range row {
					if len(cells) > 0 {
						scanRow.Cells[attr] = cells[0]
					}
				}
			} else {
				for _, attr := range attrs {
					if cells := row[attr]; len(cells) > 0 {
						scanRow.Cells[attr] = cells[0]
					}
				}
			}
			rows = append(rows, scanRow)

			if maxRecords > 0 && len(rows) >= maxRecords {
				break
			}
		}
		return nil
	})
	return rows, err
}

func (s *BoltStore) Flush(ctx context.Context, token string) error {
	return s.db.Sync()
}

func (s *BoltStore) Size(ctx context.Context, token string) (int64, error) {
	var size int64
	err := s.db.View(func(tx *bolt.Tx) error {
		size = tx.Size()
		return nil
	})
	if err != nil {
		return -1, err
	}
	return size, nil
}

var _ store.Backend = (*BoltStore)(nil)
