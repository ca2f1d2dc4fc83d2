package ancillary

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ivydigitalstorm/grr/pkg/store"
)

const (
	labelAttrPrefix  = "index:label_"
	fileHashPrefix   = "index:target:"
	dirChildPrefix   = "index:dir/"
	statsStorePrefix = "aff4:stats_store/"
	emptyPlaceholder = "X"
)

// LabelUpdate adds newLabels and removes toDelete on subject in a single
// MultiSet. The label cells are written with a zero timestamp, which the
// backend replaces with the current time, so they are not stored at
// timestamp zero.
func LabelUpdate(ctx context.Context, backend store.Backend, token, subject string, newLabels, toDelete []string) error {
	if len(newLabels) == 0 && len(toDelete) == 0 {
		return nil
	}

	values := make(map[string][]store.TimestampedValue, len(newLabels))
	for _, label := range newLabels {
		values[labelAttrPrefix+label] = []store.TimestampedValue{
			{Value: store.StringValue(emptyPlaceholder), Timestamp: 0},
		}
	}

	var deleteAttrs []string
	for _, label := range toDelete {
		deleteAttrs = append(deleteAttrs, labelAttrPrefix+label)
	}

	err := backend.MultiSet(ctx, token, subject, store.MultiSetInput{
		Values:    values,
		ToDelete:  deleteAttrs,
		Timestamp: 0,
	})
	if err != nil {
		return store.NewError("LabelUpdate", store.KindBackendUnavailable, err)
	}
	return nil
}

// LabelFetchAll resolves every index:label_* cell on subject and returns
// the sorted set of labels.
func LabelFetchAll(ctx context.Context, backend store.Backend, token, subject string) ([]string, error) {
	cells, err := backend.ResolvePrefix(ctx, token, subject, labelAttrPrefix, store.Newest(), 0)
	if err != nil {
		return nil, store.NewError("LabelFetchAll", store.KindBackendUnavailable, err)
	}

	labels := make([]string, 0, len(cells))
	for _, c := range cells {
		labels = append(labels, strings.TrimPrefix(c.Attribute, labelAttrPrefix))
	}
	sort.Strings(labels)
	return labels, nil
}

// FileHashIndexAddItem records that filePath hashes to the digest keyed by
// subject, writing index:target:<filePath lowercased> = filePath.
func FileHashIndexAddItem(ctx context.Context, backend store.Backend, token, subject, filePath string) error {
	attr := fileHashPrefix + strings.ToLower(filePath)
	err := backend.MultiSet(ctx, token, subject, store.MultiSetInput{
		Values: map[string][]store.TimestampedValue{
			attr: {{Value: store.StringValue(filePath)}},
		},
	})
	if err != nil {
		return store.NewError("FileHashIndexAddItem", store.KindBackendUnavailable, err)
	}
	return nil
}

// FileHashIndexQuery searches subject's target index for entries whose
// path starts with targetPrefix, returning up to length matches starting
// at offset start.
func FileHashIndexQuery(ctx context.Context, backend store.Backend, token, subject, targetPrefix string, start, length int) ([]string, error) {
	prefix := fileHashPrefix + strings.ToLower(targetPrefix)
	cells, err := backend.ResolvePrefix(ctx, token, subject, prefix, store.Newest(), 0)
	if err != nil {
		return nil, store.NewError("FileHashIndexQuery", store.KindBackendUnavailable, err)
	}

	var matches []string
	for i, c := range cells {
		if i < start {
			continue
		}
		if length > 0 && i >= start+length {
			break
		}
		matches = append(matches, c.Value.Str)
	}
	return matches, nil
}

// FileHashIndexQueryMultiple resolves the target index for many digest
// subjects at once, returning each subject's matching file paths.
func FileHashIndexQueryMultiple(ctx context.Context, backend store.Backend, token string, subjects []string) (map[string][]string, error) {
	cellsBySubject, err := backend.MultiResolvePrefix(ctx, token, subjects, fileHashPrefix, store.Newest(), 0)
	if err != nil {
		return nil, store.NewError("FileHashIndexQueryMultiple", store.KindBackendUnavailable, err)
	}

	result := make(map[string][]string, len(cellsBySubject))
	for subject, cells := range cellsBySubject {
		paths := make([]string, 0, len(cells))
		for _, c := range cells {
			paths = append(paths, c.Value.Str)
		}
		result[subject] = paths
	}
	return result, nil
}

// AddDirectoryChild records child as a member of dir's directory-child
// index.
func AddDirectoryChild(ctx context.Context, backend store.Backend, token, dir, child string) error {
	attr := dirChildPrefix + child
	err := backend.MultiSet(ctx, token, dir, store.MultiSetInput{
		Values: map[string][]store.TimestampedValue{
			attr: {{Value: store.StringValue(emptyPlaceholder)}},
		},
	})
	if err != nil {
		return store.NewError("AddDirectoryChild", store.KindBackendUnavailable, err)
	}
	return nil
}

// RemoveDirectoryChild removes child from dir's directory-child index.
func RemoveDirectoryChild(ctx context.Context, backend store.Backend, token, dir, child string) error {
	attr := dirChildPrefix + child
	if err := backend.DeleteAttributes(ctx, token, dir, []string{attr}, 0, 0, false); err != nil {
		return store.NewError("RemoveDirectoryChild", store.KindBackendUnavailable, err)
	}
	return nil
}

// ReadDirectoryChildren resolves every index:dir/* cell on dir and returns
// the child names.
func ReadDirectoryChildren(ctx context.Context, backend store.Backend, token, dir string) ([]string, error) {
	cells, err := backend.ResolvePrefix(ctx, token, dir, dirChildPrefix, store.Newest(), 0)
	if err != nil {
		return nil, store.NewError("ReadDirectoryChildren", store.KindBackendUnavailable, err)
	}

	children := make([]string, 0, len(cells))
	for _, c := range cells {
		children = append(children, strings.TrimPrefix(c.Attribute, dirChildPrefix))
	}
	sort.Strings(children)
	return children, nil
}

func statsAttr(metric string) string { return statsStorePrefix + metric }

// WriteStats appends one sample per metric to subject's stats time series,
// with replace=false so successive samples accumulate as distinct cells.
func WriteStats(ctx context.Context, backend store.Backend, token, subject string, metrics map[string]store.Value, ts int64) error {
	values := make(map[string][]store.TimestampedValue, len(metrics))
	for name, v := range metrics {
		values[statsAttr(name)] = []store.TimestampedValue{{Value: v, Timestamp: ts}}
	}

	err := backend.MultiSet(ctx, token, subject, store.MultiSetInput{
		Values:    values,
		Replace:   false,
		Timestamp: ts,
	})
	if err != nil {
		return store.NewError("WriteStats", store.KindBackendUnavailable, err)
	}
	return nil
}

// DeleteStatsInRange deletes stats for the named metrics on subject within
// [start, end]. NEWEST_TIMESTAMP-style open ranges are not accepted: an
// explicit range is required.
func DeleteStatsInRange(ctx context.Context, backend store.Backend, token, subject string, metricNames []string, start, end int64) error {
	if start == store.NewestTimestamp || end == store.NewestTimestamp {
		return store.NewError("DeleteStatsInRange", store.KindInvalidArgument, fmt.Errorf("cannot use NEWEST_TIMESTAMP deleting stats"))
	}

	var attrs []string
	for _, name := range metricNames {
		attrs = append(attrs, statsAttr(name))
	}

	if err := backend.DeleteAttributes(ctx, token, subject, attrs, start, end, false); err != nil {
		return store.NewError("DeleteStatsInRange", store.KindBackendUnavailable, err)
	}
	return nil
}

// StatMetric is one timestamped sample read back by ReadStats.
type StatMetric struct {
	Name      string
	Value     store.Value
	Timestamp int64
}

// ReadStats resolves every aff4:stats_store/<metricPrefix>* cell on
// subject within [start, end].
func ReadStats(ctx context.Context, backend store.Backend, token, subject, metricPrefix string, start, end int64) ([]StatMetric, error) {
	prefix := statsStorePrefix + metricPrefix
	cells, err := backend.ResolvePrefix(ctx, token, subject, prefix, store.TimeRange(start, end), 0)
	if err != nil {
		return nil, store.NewError("ReadStats", store.KindBackendUnavailable, err)
	}

	metrics := make([]StatMetric, 0, len(cells))
	for _, c := range cells {
		metrics = append(metrics, StatMetric{
			Name:      strings.TrimPrefix(c.Attribute, statsStorePrefix),
			Value:     c.Value,
			Timestamp: c.Timestamp,
		})
	}
	return metrics, nil
}
