package flow

import (
	"context"
	"testing"

	"github.com/ivydigitalstorm/grr/pkg/store"
	"github.com/ivydigitalstorm/grr/pkg/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRequestsAndResponses_WritesRequestAndResponse(t *testing.T) {
	m := memstore.New()
	ctx := context.Background()

	err := StoreRequestsAndResponses(ctx, m, "tok", "C.1/flows/F:1",
		[]TimestampedRequest{{Request: Request{ID: 1, Payload: store.StringValue("req")}, Timestamp: 1000}},
		[]TimestampedResponse{{Response: Response{RequestID: 1, ResponseID: 1, Payload: store.StringValue("resp")}, Timestamp: 1000}},
		nil,
	)
	require.NoError(t, err)

	cell, ok, err := m.Resolve(ctx, "tok", stateSubject("C.1/flows/F:1"), requestAttr(1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "req", cell.Value.Str)

	responses, err := ReadResponsesForRequestID(ctx, m, "tok", "C.1/flows/F:1", 1, store.Newest())
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, "resp", responses[0].Payload.Str)
}

func TestStoreRequestsAndResponses_StatusResponseMarksCompletion(t *testing.T) {
	m := memstore.New()
	ctx := context.Background()
	sessionID := "C.1/flows/F:1"

	require.NoError(t, StoreRequestsAndResponses(ctx, m, "tok", sessionID,
		[]TimestampedRequest{{Request: Request{ID: 1, Payload: store.StringValue("req")}, Timestamp: 1000}},
		nil, nil,
	))

	completed, err := CheckRequestsForCompletion(ctx, m, "tok", sessionID, []uint32{1})
	require.NoError(t, err)
	assert.Empty(t, completed)

	require.NoError(t, StoreRequestsAndResponses(ctx, m, "tok", sessionID,
		nil,
		[]TimestampedResponse{{Response: Response{RequestID: 1, ResponseID: 1, Payload: store.StringValue("done"), IsStatus: true}, Timestamp: 2000}},
		nil,
	))

	completed, err = CheckRequestsForCompletion(ctx, m, "tok", sessionID, []uint32{1})
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, completed)
}

func TestReadCompletedRequests_OnlyReturnsRequestsWithStatus(t *testing.T) {
	m := memstore.New()
	ctx := context.Background()
	sessionID := "C.1/flows/F:1"

	require.NoError(t, StoreRequestsAndResponses(ctx, m, "tok", sessionID,
		[]TimestampedRequest{
			{Request: Request{ID: 1, Payload: store.StringValue("req1")}, Timestamp: 1000},
			{Request: Request{ID: 2, Payload: store.StringValue("req2")}, Timestamp: 1000},
		},
		[]TimestampedResponse{
			{Response: Response{RequestID: 1, ResponseID: 1, Payload: store.StringValue("done1"), IsStatus: true}, Timestamp: 2000},
		},
		nil,
	))

	completed, err := ReadCompletedRequests(ctx, m, "tok", sessionID)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, uint32(1), completed[0].RequestID)
	assert.Equal(t, "req1", completed[0].Request.Str)
	assert.Equal(t, "done1", completed[0].Status.Str)
}

func TestStoreRequestsAndResponses_DeletesRequestAndStatus(t *testing.T) {
	m := memstore.New()
	ctx := context.Background()
	sessionID := "C.1/flows/F:1"

	require.NoError(t, StoreRequestsAndResponses(ctx, m, "tok", sessionID,
		[]TimestampedRequest{{Request: Request{ID: 1, Payload: store.StringValue("req")}, Timestamp: 1000}},
		[]TimestampedResponse{{Response: Response{RequestID: 1, ResponseID: 1, Payload: store.StringValue("done"), IsStatus: true}, Timestamp: 2000}},
		nil,
	))

	require.NoError(t, StoreRequestsAndResponses(ctx, m, "tok", sessionID, nil, nil, []uint32{1}))

	_, ok, err := m.Resolve(ctx, "tok", stateSubject(sessionID), requestAttr(1))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = m.Resolve(ctx, "tok", stateSubject(sessionID), statusAttr(1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadResponsesForRequestID_AscendingOrder(t *testing.T) {
	m := memstore.New()
	ctx := context.Background()
	sessionID := "C.1/flows/F:1"

	require.NoError(t, StoreRequestsAndResponses(ctx, m, "tok", sessionID,
		[]TimestampedRequest{{Request: Request{ID: 1, Payload: store.StringValue("req")}, Timestamp: 1000}},
		[]TimestampedResponse{
			{Response: Response{RequestID: 1, ResponseID: 3, Payload: store.StringValue("c")}, Timestamp: 1000},
			{Response: Response{RequestID: 1, ResponseID: 1, Payload: store.StringValue("a")}, Timestamp: 1000},
			{Response: Response{RequestID: 1, ResponseID: 2, Payload: store.StringValue("b")}, Timestamp: 1000},
		},
		nil,
	))

	responses, err := ReadResponsesForRequestID(ctx, m, "tok", sessionID, 1, store.Newest())
	require.NoError(t, err)
	require.Len(t, responses, 3)
	assert.Equal(t, []uint32{1, 2, 3}, []uint32{responses[0].ResponseID, responses[1].ResponseID, responses[2].ResponseID})
	assert.Equal(t, "a", responses[0].Payload.Str)
	assert.Equal(t, "b", responses[1].Payload.Str)
	assert.Equal(t, "c", responses[2].Payload.Str)
}

func TestReadRequestsAndResponses_GroupsBySessionRequest(t *testing.T) {
	m := memstore.New()
	ctx := context.Background()
	sessionID := "C.1/flows/F:1"

	require.NoError(t, StoreRequestsAndResponses(ctx, m, "tok", sessionID,
		[]TimestampedRequest{
			{Request: Request{ID: 1, Payload: store.StringValue("req1")}, Timestamp: 1000},
			{Request: Request{ID: 2, Payload: store.StringValue("req2")}, Timestamp: 1000},
		},
		[]TimestampedResponse{
			{Response: Response{RequestID: 1, ResponseID: 1, Payload: store.StringValue("r1resp")}, Timestamp: 1000},
		},
		nil,
	))

	groups, err := ReadRequestsAndResponses(ctx, m, "tok", sessionID, store.Newest())
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, uint32(1), groups[0].RequestID)
	require.Len(t, groups[0].Responses, 1)
	assert.Equal(t, uint32(2), groups[1].RequestID)
	assert.Empty(t, groups[1].Responses)
}

func TestMultiDestroyFlowStates_RemovesStateAndPerRequestSubjects(t *testing.T) {
	m := memstore.New()
	ctx := context.Background()
	sessionID := "C.1/flows/F:1"

	require.NoError(t, StoreRequestsAndResponses(ctx, m, "tok", sessionID,
		[]TimestampedRequest{{Request: Request{ID: 1, Payload: store.StringValue("req")}, Timestamp: 1000}},
		[]TimestampedResponse{{Response: Response{RequestID: 1, ResponseID: 1, Payload: store.StringValue("resp")}, Timestamp: 1000}},
		nil,
	))

	deleted, err := MultiDestroyFlowStates(ctx, m, "tok", []string{sessionID})
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, uint32(1), deleted[0].RequestID)

	_, ok, err := m.Resolve(ctx, "tok", stateSubject(sessionID), requestAttr(1))
	require.NoError(t, err)
	assert.False(t, ok)

	responses, err := ReadResponsesForRequestID(ctx, m, "tok", sessionID, 1, store.Newest())
	require.NoError(t, err)
	assert.Empty(t, responses)
}
