package kwindex

import (
	"context"
	"strings"

	"github.com/ivydigitalstorm/grr/pkg/store"
)

const attrPrefix = "kw_index:"

func keywordSubject(index, keyword string) string {
	return store.Suffixed(index, keyword)
}

func nameAttr(name string) string { return attrPrefix + name }

// ReadPostingLists resolves kw_index:* cells for each keyword's subject
// under index, in the timestamp range [start, end+1] (TimeRange is
// inclusive at both ends, so cells stamped end+1 are read too), and returns
// the names posted to each keyword. If lastSeen is non-nil, it is updated
// with the maximum cell timestamp observed for each (keyword, name) pair.
func ReadPostingLists(ctx context.Context, backend store.Backend, token, index string, keywords []string, start, end int64, lastSeen map[[2]string]int64) (map[string][]string, error) {
	result := make(map[string][]string, len(keywords))

	for _, keyword := range keywords {
		subject := keywordSubject(index, keyword)
		cells, err := backend.ResolvePrefix(ctx, token, subject, attrPrefix, store.TimeRange(start, end+1), 0)
		if err != nil {
			return nil, store.NewError("ReadPostingLists", store.KindBackendUnavailable, err)
		}

		names := make([]string, 0, len(cells))
		for _, c := range cells {
			name := strings.TrimPrefix(c.Attribute, attrPrefix)
			names = append(names, name)
			if lastSeen != nil {
				key := [2]string{keyword, name}
				if c.Timestamp > lastSeen[key] {
					lastSeen[key] = c.Timestamp
				}
			}
		}
		result[keyword] = names
	}

	return result, nil
}

// AddKeywordsForName writes a kw_index:<name> cell on each keyword's
// subject under index.
func AddKeywordsForName(ctx context.Context, backend store.Backend, token, index, name string, keywords []string) error {
	for _, keyword := range keywords {
		subject := keywordSubject(index, keyword)
		err := backend.MultiSet(ctx, token, subject, store.MultiSetInput{
			Values: map[string][]store.TimestampedValue{
				nameAttr(name): {{Value: store.StringValue("")}},
			},
		})
		if err != nil {
			return store.NewError("AddKeywordsForName", store.KindBackendUnavailable, err)
		}
	}
	return nil
}

// RemoveKeywordsForName deletes the kw_index:<name> cell from each
// keyword's subject under index.
func RemoveKeywordsForName(ctx context.Context, backend store.Backend, token, index, name string, keywords []string) error {
	for _, keyword := range keywords {
		subject := keywordSubject(index, keyword)
		if err := backend.DeleteAttributes(ctx, token, subject, []string{nameAttr(name)}, 0, 0, false); err != nil {
			return store.NewError("RemoveKeywordsForName", store.KindBackendUnavailable, err)
		}
	}
	return nil
}
