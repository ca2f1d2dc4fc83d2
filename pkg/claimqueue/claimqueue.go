package claimqueue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ivydigitalstorm/grr/pkg/collection"
	"github.com/ivydigitalstorm/grr/pkg/store"
)

const (
	leaseAttr      = "aff4:lease"
	recordsSubpath = "Records"
)

// Record is one claimed or scanned record.
type Record struct {
	QueueID   string
	Timestamp int64
	Suffix    uint32
	Subpath   string
	Value     store.Value
}

func parseSuffix(subject string) (uint32, error) {
	idx := strings.LastIndex(subject, ".")
	if idx < 0 {
		return 0, fmt.Errorf("malformed record subject: %s", subject)
	}
	v, err := strconv.ParseUint(subject[idx+1:], 16, 32)
	return uint32(v), err
}

func recordSubject(r Record) string {
	return collection.MakeURN(r.QueueID, r.Subpath, r.Timestamp, r.Suffix)
}

// ClaimRecords scans queue's Records subpath and claims up to limit records
// that are not currently leased, writing a lease attribute expiring after
// timeout. recordFilter, if non-nil, is given each candidate's value; a
// truthy result skips the record without claiming it, and maxFiltered
// consecutive skips aborts the scan early.
func ClaimRecords(ctx context.Context, backend store.Backend, token, queue string, limit int, timeout time.Duration, startTime int64, recordFilter func(store.Value) bool, maxFiltered int) ([]Record, error) {
	expiration := store.NowMicros() + timeout.Microseconds()
	recordsBase := strings.TrimSuffix(queue, "/") + "/" + recordsSubpath

	afterURN := ""
	if startTime > 0 {
		afterURN = collection.MakeURN(queue, recordsSubpath, startTime, 0)
	}

	scanLimit := 0
	if limit > 0 {
		scanLimit = 4 * limit
	}
	rows, err := backend.ScanAttributes(ctx, token, recordsBase, []string{collection.ValueAttr, leaseAttr}, afterURN, scanLimit, false)
	if err != nil {
		return nil, store.NewError("ClaimRecords", store.KindBackendUnavailable, err)
	}

	now := store.NowMicros()
	var results []Record
	filtered := 0

	for _, row := range rows {
		valueCell, hasValue := row.Cells[collection.ValueAttr]
		leaseCell, hasLease := row.Cells[leaseAttr]

		if !hasValue {
			// Dangling lease: the record itself is gone but its lease lingers.
			if err := backend.DeleteAttributes(ctx, token, row.Subject, []string{leaseAttr}, 0, 0, false); err != nil {
				return nil, store.NewError("ClaimRecords", store.KindBackendUnavailable, err)
			}
			continue
		}
		if hasLease && leaseCell.Value.Int > now {
			continue // currently claimed by someone else
		}

		if recordFilter != nil && recordFilter(valueCell.Value) {
			filtered++
			if filtered >= maxFiltered {
				break
			}
			continue
		}
		filtered = 0

		suffix, err := parseSuffix(row.Subject)
		if err != nil {
			return nil, store.NewError("ClaimRecords", store.KindInvalidArgument, err)
		}

		record := Record{
			QueueID:   queue,
			Timestamp: valueCell.Timestamp,
			Suffix:    suffix,
			Subpath:   recordsSubpath,
			Value:     valueCell.Value,
		}

		err = backend.MultiSet(ctx, token, row.Subject, store.MultiSetInput{
			ToDelete: []string{leaseAttr},
			Values: map[string][]store.TimestampedValue{
				leaseAttr: {{Value: store.IntValue(expiration), Timestamp: now}},
			},
			Replace: true,
		})
		if err != nil {
			return nil, store.NewError("ClaimRecords", store.KindBackendUnavailable, err)
		}

		results = append(results, record)
		if limit > 0 && len(results) >= limit {
			break
		}
	}

	return results, nil
}

// RefreshClaims rewrites the lease attribute on each record with a new
// expiry of now+timeout.
func RefreshClaims(ctx context.Context, backend store.Backend, token string, records []Record, timeout time.Duration) error {
	expiration := store.NowMicros() + timeout.Microseconds()
	for _, r := range records {
		err := backend.MultiSet(ctx, token, recordSubject(r), store.MultiSetInput{
			ToDelete: []string{leaseAttr},
			Values: map[string][]store.TimestampedValue{
				leaseAttr: {{Value: store.IntValue(expiration), Timestamp: store.NowMicros()}},
			},
			Replace: true,
		})
		if err != nil {
			return store.NewError("RefreshClaims", store.KindBackendUnavailable, err)
		}
	}
	return nil
}

// ReleaseRecords deletes the lease attribute on each record, making it
// claimable again.
func ReleaseRecords(ctx context.Context, backend store.Backend, token string, records []Record) error {
	for _, r := range records {
		if err := backend.DeleteAttributes(ctx, token, recordSubject(r), []string{leaseAttr}, 0, 0, false); err != nil {
			return store.NewError("ReleaseRecords", store.KindBackendUnavailable, err)
		}
	}
	return nil
}

// DeleteRecords deletes both the lease and sequential-value attributes on
// each record's subject.
func DeleteRecords(ctx context.Context, backend store.Backend, token string, records []Record) error {
	for _, r := range records {
		attrs := []string{leaseAttr, collection.ValueAttr}
		if err := backend.DeleteAttributes(ctx, token, recordSubject(r), attrs, 0, 0, false); err != nil {
			return store.NewError("DeleteRecords", store.KindBackendUnavailable, err)
		}
	}
	return nil
}
