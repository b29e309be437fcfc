package service

import (
	"sync"

	"aifit/coach-app/internal/domain"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type flowKey struct {
	owner primitive.ObjectID
	kind  domain.PlanKind
}

// flowRegistry is the in-process concurrency guard for generation flows.
// It enforces at most one active flow per (owner, plan kind), serializes
// mutations per record id, and issues attempt tokens so a backend response
// arriving after the flow was cancelled or superseded is provably discarded
// instead of applied.
type flowRegistry struct {
	mu      sync.Mutex
	active  map[flowKey]primitive.ObjectID
	tokens  map[primitive.ObjectID]string
	records map[primitive.ObjectID]*sync.Mutex
}

func newFlowRegistry() *flowRegistry {
	return &flowRegistry{
		active:  make(map[flowKey]primitive.ObjectID),
		tokens:  make(map[primitive.ObjectID]string),
		records: make(map[primitive.ObjectID]*sync.Mutex),
	}
}

// Acquire registers recordID as the active flow for (owner, kind). Returns
// false if a different record already holds the slot.
func (f *flowRegistry) Acquire(owner primitive.ObjectID, kind domain.PlanKind, recordID primitive.ObjectID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := flowKey{owner: owner, kind: kind}
	if current, ok := f.active[key]; ok && current != recordID {
		return false
	}
	f.active[key] = recordID
	return true
}

// Release frees the (owner, kind) slot if recordID still holds it, and drops
// the record's attempt token so any in-flight response is discarded.
func (f *flowRegistry) Release(owner primitive.ObjectID, kind domain.PlanKind, recordID primitive.ObjectID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := flowKey{owner: owner, kind: kind}
	if current, ok := f.active[key]; ok && current == recordID {
		delete(f.active, key)
	}
	delete(f.tokens, recordID)
}

// NewAttempt issues a fresh attempt token for the record. Any token issued
// earlier for the same record becomes stale.
func (f *flowRegistry) NewAttempt(recordID primitive.ObjectID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := uuid.NewString()
	f.tokens[recordID] = token
	return token
}

// IsCurrent reports whether token is still the record's live attempt.
func (f *flowRegistry) IsCurrent(recordID primitive.ObjectID, token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[recordID] == token
}

// lockRecord serializes mutations for one record id. The returned func
// unlocks.
func (f *flowRegistry) lockRecord(recordID primitive.ObjectID) func() {
	f.mu.Lock()
	m, ok := f.records[recordID]
	if !ok {
		m = &sync.Mutex{}
		f.records[recordID] = m
	}
	f.mu.Unlock()

	m.Lock()
	return m.Unlock
}
