package flow

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ivydigitalstorm/grr/pkg/store"
)

const (
	requestAttrPrefix  = "flow:request:"
	statusAttrPrefix   = "flow:status:"
	responseAttrPrefix = "flow:response:"
	stateSubpath       = "state"
	requestSubpath     = "state/request:"
)

func hex8(id uint32) string { return fmt.Sprintf("%08x", id) }

func parseHex8(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	return uint32(v), err
}

func stateSubject(sessionID string) string {
	return store.Suffixed(sessionID, stateSubpath)
}

func perRequestSubject(sessionID string, requestID uint32) string {
	return store.Suffixed(sessionID, requestSubpath+hex8(requestID))
}

func requestAttr(id uint32) string { return requestAttrPrefix + hex8(id) }
func statusAttr(id uint32) string  { return statusAttrPrefix + hex8(id) }
func responseAttr(requestID, responseID uint32) string {
	return responseAttrPrefix + hex8(requestID) + ":" + hex8(responseID)
}

// Request is a single flow request, keyed by ID within its session.
type Request struct {
	ID      uint32
	Payload store.Value
}

// Response is a single flow response to a request. IsStatus marks the
// terminal status response that completes its request.
type Response struct {
	RequestID  uint32
	ResponseID uint32
	Payload    store.Value
	IsStatus   bool
}

// TimestampedRequest pairs a Request with the timestamp to write it at. A
// zero Timestamp uses the call's default.
type TimestampedRequest struct {
	Request   Request
	Timestamp int64
}

// TimestampedResponse pairs a Response with the timestamp to write it at.
type TimestampedResponse struct {
	Response  Response
	Timestamp int64
}

// CompletedRequest is a request paired with the status response that
// completed it.
type CompletedRequest struct {
	RequestID uint32
	Request   store.Value
	Status    store.Value
}

// RequestWithResponses groups a request with all of its responses, in
// ascending response-ID order.
type RequestWithResponses struct {
	RequestID uint32
	Request   store.Value
	Responses []Response
}

func appendValue(dst map[string]map[string][]store.TimestampedValue, subject, attr string, tv store.TimestampedValue) {
	if dst[subject] == nil {
		dst[subject] = map[string][]store.TimestampedValue{}
	}
	dst[subject][attr] = append(dst[subject][attr], tv)
}

// StoreRequestsAndResponses writes newRequests and newResponses and deletes
// the request/status cells for requestsToDelete, all for one session, in one
// sync MultiSet per affected subject.
func StoreRequestsAndResponses(ctx context.Context, backend store.Backend, token, sessionID string, newRequests []TimestampedRequest, newResponses []TimestampedResponse, requestsToDelete []uint32) error {
	toWrite := map[string]map[string][]store.TimestampedValue{}
	toDelete := map[string][]string{}

	stateSubj := stateSubject(sessionID)

	for _, tr := range newRequests {
		appendValue(toWrite, stateSubj, requestAttr(tr.Request.ID), store.TimestampedValue{
			Value:     tr.Request.Payload,
			Timestamp: tr.Timestamp,
		})
	}

	for _, tr := range newResponses {
		perReqSubj := perRequestSubject(sessionID, tr.Response.RequestID)
		appendValue(toWrite, perReqSubj, responseAttr(tr.Response.RequestID, tr.Response.ResponseID), store.TimestampedValue{
			Value:     tr.Response.Payload,
			Timestamp: tr.Timestamp,
		})
		if tr.Response.IsStatus {
			appendValue(toWrite, stateSubj, statusAttr(tr.Response.RequestID), store.TimestampedValue{
				Value:     tr.Response.Payload,
				Timestamp: tr.Timestamp,
			})
		}
	}

	for _, reqID := range requestsToDelete {
		toDelete[stateSubj] = append(toDelete[stateSubj], requestAttr(reqID), statusAttr(reqID))
	}

	subjects := map[string]bool{}
	for s := range toWrite {
		subjects[s] = true
	}
	for s := range toDelete {
		subjects[s] = true
	}

	for subject := range subjects {
		err := backend.MultiSet(ctx, token, subject, store.MultiSetInput{
			Values:   toWrite[subject],
			ToDelete: toDelete[subject],
			Replace:  true,
			Sync:     true,
		})
		if err != nil {
			return store.NewError("StoreRequestsAndResponses", store.KindBackendUnavailable, err)
		}
	}
	return nil
}

// ReadCompletedRequests returns every request on sessionID that already has
// a matching status cell.
func ReadCompletedRequests(ctx context.Context, backend store.Backend, token, sessionID string) ([]CompletedRequest, error) {
	stateSubj := stateSubject(sessionID)

	requestCells, err := backend.ResolvePrefix(ctx, token, stateSubj, requestAttrPrefix, store.Newest(), 0)
	if err != nil {
		return nil, store.NewError("ReadCompletedRequests", store.KindBackendUnavailable, err)
	}
	statusCells, err := backend.ResolvePrefix(ctx, token, stateSubj, statusAttrPrefix, store.Newest(), 0)
	if err != nil {
		return nil, store.NewError("ReadCompletedRequests", store.KindBackendUnavailable, err)
	}

	statusByID := make(map[uint32]store.Value, len(statusCells))
	for _, c := range statusCells {
		id, err := parseHex8(strings.TrimPrefix(c.Attribute, statusAttrPrefix))
		if err != nil {
			continue
		}
		statusByID[id] = c.Value
	}

	var completed []CompletedRequest
	for _, c := range requestCells {
		id, err := parseHex8(strings.TrimPrefix(c.Attribute, requestAttrPrefix))
		if err != nil {
			continue
		}
		if status, ok := statusByID[id]; ok {
			completed = append(completed, CompletedRequest{RequestID: id, Request: c.Value, Status: status})
		}
	}
	sort.Slice(completed, func(i, j int) bool { return completed[i].RequestID < completed[j].RequestID })
	return completed, nil
}

// CheckRequestsForCompletion returns the subset of requestIDs that already
// have a status cell on sessionID.
func CheckRequestsForCompletion(ctx context.Context, backend store.Backend, token, sessionID string, requestIDs []uint32) ([]uint32, error) {
	stateSubj := stateSubject(sessionID)

	statusCells, err := backend.ResolvePrefix(ctx, token, stateSubj, statusAttrPrefix, store.Newest(), 0)
	if err != nil {
		return nil, store.NewError("CheckRequestsForCompletion", store.KindBackendUnavailable, err)
	}

	present := make(map[uint32]bool, len(statusCells))
	for _, c := range statusCells {
		id, err := parseHex8(strings.TrimPrefix(c.Attribute, statusAttrPrefix))
		if err != nil {
			continue
		}
		present[id] = true
	}

	var completed []uint32
	for _, id := range requestIDs {
		if present[id] {
			completed = append(completed, id)
		}
	}
	return completed, nil
}

// DeletedRequest is one request removed by MultiDestroyFlowStates.
type DeletedRequest struct {
	SessionID string
	RequestID uint32
}

// MultiDestroyFlowStates deletes every state and per-request subject for
// each listed session and returns the requests that were deleted.
func MultiDestroyFlowStates(ctx context.Context, backend store.Backend, token string, sessionIDs []string) ([]DeletedRequest, error) {
	var deleted []DeletedRequest

	for _, sessionID := range sessionIDs {
		stateSubj := stateSubject(sessionID)

		requestCells, err := backend.ResolvePrefix(ctx, token, stateSubj, requestAttrPrefix, store.Newest(), 0)
		if err != nil {
			return nil, store.NewError("MultiDestroyFlowStates", store.KindBackendUnavailable, err)
		}

		subjectsToDelete := []string{stateSubj}
		for _, c := range requestCells {
			id, err := parseHex8(strings.TrimPrefix(c.Attribute, requestAttrPrefix))
			if err != nil {
				continue
			}
			deleted = append(deleted, DeletedRequest{SessionID: sessionID, RequestID: id})
			subjectsToDelete = append(subjectsToDelete, perRequestSubject(sessionID, id))
		}

		if err := backend.DeleteSubjects(ctx, token, subjectsToDelete, true); err != nil {
			return nil, store.NewError("MultiDestroyFlowStates", store.KindBackendUnavailable, err)
		}
	}

	return deleted, nil
}

// ReadResponsesForRequestID returns every response to requestID on
// sessionID, in ascending response-ID order.
func ReadResponsesForRequestID(ctx context.Context, backend store.Backend, token, sessionID string, requestID uint32, spec store.TimestampSpec) ([]Response, error) {
	perReqSubj := perRequestSubject(sessionID, requestID)
	prefix := responseAttrPrefix + hex8(requestID) + ":"

	cells, err := backend.ResolvePrefix(ctx, token, perReqSubj, prefix, spec, 0)
	if err != nil {
		return nil, store.NewError("ReadResponsesForRequestID", store.KindBackendUnavailable, err)
	}

	responses := make([]Response, 0, len(cells))
	for _, c := range cells {
		respID, err := parseHex8(strings.TrimPrefix(c.Attribute, prefix))
		if err != nil {
			continue
		}
		responses = append(responses, Response{
			RequestID:  requestID,
			ResponseID: respID,
			Payload:    c.Value,
		})
	}
	sort.Slice(responses, func(i, j int) bool { return responses[i].ResponseID < responses[j].ResponseID })
	return responses, nil
}

// ReadRequestsAndResponses returns every request on sessionID together with
// all of its responses.
func ReadRequestsAndResponses(ctx context.Context, backend store.Backend, token, sessionID string, spec store.TimestampSpec) ([]RequestWithResponses, error) {
	stateSubj := stateSubject(sessionID)

	requestCells, err := backend.ResolvePrefix(ctx, token, stateSubj, requestAttrPrefix, store.Newest(), 0)
	if err != nil {
		return nil, store.NewError("ReadRequestsAndResponses", store.KindBackendUnavailable, err)
	}

	groups := make([]RequestWithResponses, 0, len(requestCells))
	for _, c := range requestCells {
		id, err := parseHex8(strings.TrimPrefix(c.Attribute, requestAttrPrefix))
		if err != nil {
			continue
		}
		responses, err := ReadResponsesForRequestID(ctx, backend, token, sessionID, id, spec)
		if err != nil {
			return nil, err
		}
		groups = append(groups, RequestWithResponses{RequestID: id, Request: c.Value, Responses: responses})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].RequestID < groups[j].RequestID })
	return groups, nil
}
