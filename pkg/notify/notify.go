package notify

import (
	"bytes"
	"context"
	"encoding/gob"
	"strings"

	"github.com/ivydigitalstorm/grr/pkg/store"
)

const attrPrefix = "notify:"

// Notification is an opaque serialized value scoped to a session.
type Notification struct {
	SessionID string
	Timestamp int64
	Payload   []byte
}

func encode(n Notification) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (Notification, error) {
	var n Notification
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&n)
	return n, err
}

// CreateNotifications writes notifications to shard with replace=false,
// sync=true (multiple notifications for the same session id coexist as
// distinct-timestamped cells). If broker is non-nil, each notification is
// published to it only after the persisted write succeeds.
func CreateNotifications(ctx context.Context, backend store.Backend, token, shard string, notifications []Notification, broker *Broker) error {
	if len(notifications) == 0 {
		return nil
	}

	values := make(map[string][]store.TimestampedValue)
	for _, n := range notifications {
		data, err := encode(n)
		if err != nil {
			return store.NewError("CreateNotifications", store.KindInvalidArgument, err)
		}
		attr := attrPrefix + n.SessionID
		values[attr] = append(values[attr], store.TimestampedValue{
			Value:     store.BytesValue(data),
			Timestamp: n.Timestamp,
		})
	}

	err := backend.MultiSet(ctx, token, shard, store.MultiSetInput{
		Values:  values,
		Replace: false,
		Sync:    true,
	})
	if err != nil {
		return store.NewError("CreateNotifications", store.KindBackendUnavailable, err)
	}

	if broker != nil {
		for _, n := range notifications {
			broker.Publish(n)
		}
	}
	return nil
}

// GetNotifications resolves notify:* cells on shard in [0, endTS], limited
// to limit. A cell that fails to deserialize is deleted and skipped rather
// than failing the whole call.
func GetNotifications(ctx context.Context, backend store.Backend, token, shard string, endTS int64, limit int) ([]Notification, error) {
	cells, err := backend.ResolvePrefix(ctx, token, shard, attrPrefix, store.TimeRange(0, endTS), limit)
	if err != nil {
		return nil, store.NewError("GetNotifications", store.KindBackendUnavailable, err)
	}

	var out []Notification
	for _, c := range cells {
		n, err := decode(c.Value.Bytes)
		if err != nil {
			delErr := backend.DeleteAttributes(ctx, token, shard, []string{c.Attribute}, c.Timestamp, c.Timestamp, true)
			if delErr != nil {
				return nil, store.NewError("GetNotifications", store.KindBackendUnavailable, delErr)
			}
			continue
		}
		n.SessionID = strings.TrimPrefix(c.Attribute, attrPrefix)
		n.Timestamp = c.Timestamp
		out = append(out, n)
	}
	return out, nil
}

// DeleteNotifications performs a ranged attribute-delete on every shard for
// every listed session id.
func DeleteNotifications(ctx context.Context, backend store.Backend, token string, shards, sessionIDs []string, start, end int64) error {
	attrs := make([]string, len(sessionIDs))
	for i, id := range sessionIDs {
		attrs[i] = attrPrefix + id
	}
	for _, shard := range shards {
		if err := backend.DeleteAttributes(ctx, token, shard, attrs, start, end, false); err != nil {
			return store.NewError("DeleteNotifications", store.KindBackendUnavailable, err)
		}
	}
	return nil
}
