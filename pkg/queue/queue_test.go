package queue

import (
	"context"
	"testing"

	"github.com/ivydigitalstorm/grr/pkg/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleTasks_GroupsByQueue(t *testing.T) {
	m := memstore.New()
	ctx := context.Background()

	err := ScheduleTasks(ctx, m, "tok", []ScheduleEntry{
		{Queue: "q1", Task: Task{ID: 1, TTL: MaxTaskTTL}},
		{Queue: "q2", Task: Task{ID: 2, TTL: MaxTaskTTL}},
	}, 1000)
	require.NoError(t, err)

	tasks, err := QueueQueryTasks(ctx, m, "tok", "q1", 0)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, uint32(1), tasks[0].ID)
}

func TestQueueQueryAndOwn_ClaimsAndRelocksInFuture(t *testing.T) {
	m := memstore.New()
	ctx := context.Background()

	require.NoError(t, ScheduleTasks(ctx, m, "tok", []ScheduleEntry{
		{Queue: "q1", Task: Task{ID: 1, TTL: MaxTaskTTL}},
	}, 1000))

	claimed, err := QueueQueryAndOwn(ctx, m, "tok", "q1", 60, 10, 0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, int32(MaxTaskTTL-1), claimed[0].TTL)
	assert.NotEmpty(t, claimed[0].LeaseHolder)

	again, err := QueueQueryAndOwn(ctx, m, "tok", "q1", 60, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestQueueQueryAndOwn_TTLExpiryDropsTask(t *testing.T) {
	m := memstore.New()
	ctx := context.Background()

	require.NoError(t, ScheduleTasks(ctx, m, "tok", []ScheduleEntry{
		{Queue: "q1", Task: Task{ID: 1, TTL: 1}},
	}, 1000))

	claimed, err := QueueQueryAndOwn(ctx, m, "tok", "q1", 60, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	cell, ok, err := m.Resolve(ctx, "tok", "q1", "task:00000001")
	require.NoError(t, err)
	assert.False(t, ok)
	_ = cell
}

func TestQueueQueryAndOwn_LimitBoundsClaimCount(t *testing.T) {
	m := memstore.New()
	ctx := context.Background()

	var entries []ScheduleEntry
	for i := uint32(1); i <= 5; i++ {
		entries = append(entries, ScheduleEntry{Queue: "q1", Task: Task{ID: i, TTL: MaxTaskTTL}})
	}
	require.NoError(t, ScheduleTasks(ctx, m, "tok", entries, 1000))

	claimed, err := QueueQueryAndOwn(ctx, m, "tok", "q1", 60, 2, 0)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)
}

func TestQueueQueryTasks_SortsByPriorityDescending(t *testing.T) {
	m := memstore.New()
	ctx := context.Background()

	require.NoError(t, ScheduleTasks(ctx, m, "tok", []ScheduleEntry{
		{Queue: "q1", Task: Task{ID: 1, Priority: 1, TTL: MaxTaskTTL}},
		{Queue: "q1", Task: Task{ID: 2, Priority: 9, TTL: MaxTaskTTL}},
		{Queue: "q1", Task: Task{ID: 3, Priority: 5, TTL: MaxTaskTTL}},
	}, 1000))

	tasks, err := QueueQueryTasks(ctx, m, "tok", "q1", 0)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, uint32(2), tasks[0].ID)
	assert.Equal(t, uint32(3), tasks[1].ID)
	assert.Equal(t, uint32(1), tasks[2].ID)
}

func TestQueueMultiQuery_FansOutOverQueues(t *testing.T) {
	m := memstore.New()
	ctx := context.Background()

	require.NoError(t, ScheduleTasks(ctx, m, "tok", []ScheduleEntry{
		{Queue: "q1", Task: Task{ID: 1, TTL: MaxTaskTTL}},
		{Queue: "q2", Task: Task{ID: 2, TTL: MaxTaskTTL}},
	}, 1000))

	result, err := QueueMultiQuery(ctx, m, "tok", []string{"q1", "q2", "q3"}, 0)
	require.NoError(t, err)
	assert.Len(t, result, 2)
	assert.NotContains(t, result, "q3")
}

func TestQueueDeleteTasks(t *testing.T) {
	m := memstore.New()
	ctx := context.Background()

	require.NoError(t, ScheduleTasks(ctx, m, "tok", []ScheduleEntry{
		{Queue: "q1", Task: Task{ID: 1, TTL: MaxTaskTTL}},
	}, 1000))

	tasks, err := QueueQueryTasks(ctx, m, "tok", "q1", 0)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	require.NoError(t, QueueDeleteTasks(ctx, m, "tok", "q1", tasks))

	tasks, err = QueueQueryTasks(ctx, m, "tok", "q1", 0)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
