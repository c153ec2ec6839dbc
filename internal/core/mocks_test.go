package core

import (
	"context"
	"sync"
	"time"

	"contractdesk/internal/types"
)

// mockRateLimitStore counts calls per key against a fixed window.
type mockRateLimitStore struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
	keys   []string
}

func newMockRateLimitStore() *mockRateLimitStore {
	return &mockRateLimitStore{counts: make(map[string]int)}
}

func (m *mockRateLimitStore) IncrementAndCheck(_ context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	if m.err != nil {
		return RateLimitResult{}, m.err
	}
	m.counts[key]++
	n := m.counts[key]
	return RateLimitResult{
		Allowed:   n <= limit,
		Remaining: max(limit-n, 0),
		ResetAt:   time.Now().Add(window),
	}, nil
}

// memoryIdempotencyStore keeps records in a map keyed by org and key.
type memoryIdempotencyStore struct {
	mu        sync.Mutex
	records   map[string]*IdempotencyRecord
	getErr    error
	completes int
	fails     int
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{records: make(map[string]*IdempotencyRecord)}
}

func (m *memoryIdempotencyStore) Get(_ context.Context, key, orgID string) (*IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.records[orgID+"/"+key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memoryIdempotencyStore) Create(_ context.Context, key, orgID, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[orgID+"/"+key]; ok && rec.Status == IdempotencyStatusProcessing {
		return types.NewAppError(types.ErrCodeConflictInFlight, "in flight", nil)
	}
	m.records[orgID+"/"+key] = &IdempotencyRecord{
		Key: key, OrganizationID: orgID, RequestPath: path, Status: IdempotencyStatusProcessing,
	}
	return nil
}

func (m *memoryIdempotencyStore) Complete(_ context.Context, key, orgID string, status int, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completes++
	rec := m.records[orgID+"/"+key]
	rec.Status = IdempotencyStatusCompleted
	rec.ResponseCode = status
	rec.ResponseBody = append([]byte(nil), body...)
	return nil
}

func (m *memoryIdempotencyStore) Fail(_ context.Context, key, orgID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fails++
	m.records[orgID+"/"+key].Status = IdempotencyStatusFailed
	return nil
}

type recordedRequest struct {
	method, endpoint, status string
}

type mockMetrics struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (m *mockMetrics) RecordRequest(method, endpoint, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, recordedRequest{method, endpoint, status})
}
