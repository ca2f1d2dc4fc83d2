package queue

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ivydigitalstorm/grr/pkg/lock"
	"github.com/ivydigitalstorm/grr/pkg/log"
	"github.com/ivydigitalstorm/grr/pkg/metrics"
	"github.com/ivydigitalstorm/grr/pkg/store"
)

// MaxTaskTTL is the TTL of a freshly scheduled task. Each claim decrements
// it and the claim that brings it to zero drops the task as TTL-expired, so
// a task is handed out at most MaxTaskTTL-1 times.
const MaxTaskTTL = 5

const taskAttrPrefix = "task:"

// Task is a queued message.
type Task struct {
	ID          uint32
	Payload     []byte
	Priority    int64
	TTL         int32
	ETA         int64
	LeaseHolder string
}

func taskAttr(id uint32) string { return fmt.Sprintf("task:%08d", id) }

func parseTaskID(attr string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(attr, taskAttrPrefix), 10, 32)
	return uint32(v), err
}

func encodeTask(t Task) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeTask(data []byte) (Task, error) {
	var t Task
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&t)
	return t, err
}

// ScheduleEntry pairs a task with the queue it should be scheduled on.
type ScheduleEntry struct {
	Queue string
	Task  Task
}

// ScheduleTasks groups entries by queue and issues one MultiSet per queue.
func ScheduleTasks(ctx context.Context, backend store.Backend, token string, entries []ScheduleEntry, ts int64) error {
	byQueue := make(map[string][]Task)
	for _, e := range entries {
		byQueue[e.Queue] = append(byQueue[e.Queue], e.Task)
	}

	for queue, tasks := range byQueue {
		values := make(map[string][]store.TimestampedValue, len(tasks))
		for _, task := range tasks {
			data, err := encodeTask(task)
			if err != nil {
				return store.NewError("ScheduleTasks", store.KindInvalidArgument, err)
			}
			values[taskAttr(task.ID)] = []store.TimestampedValue{{Value: store.BytesValue(data), Timestamp: ts}}
		}
		if err := backend.MultiSet(ctx, token, queue, store.MultiSetInput{Values: values, Timestamp: ts}); err != nil {
			return store.NewError("ScheduleTasks", store.KindBackendUnavailable, err)
		}
	}
	return nil
}

func leaseholderIdentity() string {
	host, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = "unknown"
	}
	return fmt.Sprintf("%s@%s:%d", user, host, os.Getpid())
}

// QueueQueryAndOwn runs the lease-claim algorithm: acquire the queue's
// subject lock, claim up to limit tasks with eta in [0, upperTS or now],
// rewrite them with a future timestamp, and return them. On lock
// contention it returns an empty list rather than an error; a backend
// failure while reading or rewriting the tasks is logged as a warning and
// also yields an empty list.
func QueueQueryAndOwn(ctx context.Context, backend store.Backend, token, queue string, leaseSeconds int64, limit int, upperTS int64) ([]Task, error) {
	leaseDuration := time.Duration(leaseSeconds) * time.Second
	l, err := lock.LockRetryWrapper(ctx, backend, token, queue, 100*time.Millisecond, time.Second, leaseDuration, true)
	if err != nil {
		if store.Is(err, store.KindLockContended) {
			return nil, nil
		}
		return nil, err
	}
	defer l.Release(ctx)

	upper := upperTS
	if upper == 0 {
		upper = store.NowMicros()
	}

	cells, err := backend.ResolvePrefix(ctx, token, queue, taskAttrPrefix, store.TimeRange(0, upper), 0)
	if err != nil {
		log.WithComponent("queue").Warn().Msg(fmt.Sprintf("QueueQueryAndOwn %s: %v", queue, err))
		return nil, nil
	}

	identity := leaseholderIdentity()
	future := store.NowMicros() + leaseSeconds*1e6

	var claimed []Task
	var expiredAttrs []string
	rewrites := make(map[string][]store.TimestampedValue)

	for _, cell := range cells {
		task, err := decodeTask(cell.Value.Bytes)
		if err != nil {
			continue
		}
		task.ETA = cell.Timestamp
		task.LeaseHolder = identity
		task.TTL--

		if task.TTL <= 0 {
			expiredAttrs = append(expiredAttrs, cell.Attribute)
			metrics.TaskTTLExpiredCount.Inc()
			continue
		}

		if task.TTL != MaxTaskTTL-1 {
			metrics.TaskRetransmissionCount.Inc()
		}

		data, err := encodeTask(task)
		if err != nil {
			return nil, store.NewError("QueueQueryAndOwn", store.KindInvalidArgument, err)
		}
		rewrites[cell.Attribute] = []store.TimestampedValue{{Value: store.BytesValue(data), Timestamp: future}}
		claimed = append(claimed, task)

		if limit > 0 && len(claimed) >= limit {
			break
		}
	}

	if len(expiredAttrs) > 0 || len(rewrites) > 0 {
		err := backend.MultiSet(ctx, token, queue, store.MultiSetInput{
			Values:    rewrites,
			Timestamp: future,
			Replace:   true,
			ToDelete:  expiredAttrs,
		})
		if err != nil {
			log.WithComponent("queue").Warn().Msg(fmt.Sprintf("QueueQueryAndOwn %s: %v", queue, err))
			return nil, nil
		}
	}

	return claimed, nil
}

func readQueueTasks(ctx context.Context, backend store.Backend, token, queue string, upperTS int64) ([]Task, error) {
	upper := upperTS
	if upper == 0 {
		upper = store.NowMicros()
	}

	cells, err := backend.ResolvePrefix(ctx, token, queue, taskAttrPrefix, store.TimeRange(0, upper), 0)
	if err != nil {
		return nil, store.NewError("QueueQueryTasks", store.KindBackendUnavailable, err)
	}

	tasks := make([]Task, 0, len(cells))
	for _, cell := range cells {
		task, err := decodeTask(cell.Value.Bytes)
		if err != nil {
			continue
		}
		task.ETA = cell.Timestamp
		tasks = append(tasks, task)
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Priority > tasks[j].Priority })
	return tasks, nil
}

// QueueQueryTasks reads tasks from a single queue without locking or
// rewriting, sorted by priority descending.
func QueueQueryTasks(ctx context.Context, backend store.Backend, token, queue string, upperTS int64) ([]Task, error) {
	return readQueueTasks(ctx, backend, token, queue, upperTS)
}

// QueueMultiQuery is QueueQueryTasks fanned out over many queues.
func QueueMultiQuery(ctx context.Context, backend store.Backend, token string, queues []string, upperTS int64) (map[string][]Task, error) {
	result := make(map[string][]Task, len(queues))
	for _, queue := range queues {
		tasks, err := readQueueTasks(ctx, backend, token, queue, upperTS)
		if err != nil {
			return nil, err
		}
		if len(tasks) > 0 {
			result[queue] = tasks
		}
	}
	return result, nil
}

// QueueDeleteTasks deletes the listed tasks from queue.
func QueueDeleteTasks(ctx context.Context, backend store.Backend, token, queue string, tasks []Task) error {
	attrs := make([]string, len(tasks))
	for i, t := range tasks {
		attrs[i] = taskAttr(t.ID)
	}
	if err := backend.DeleteAttributes(ctx, token, queue, attrs, 0, 0, false); err != nil {
		return store.NewError("QueueDeleteTasks", store.KindBackendUnavailable, err)
	}
	return nil
}
