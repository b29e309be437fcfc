package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"aifit/coach-app/internal/domain"
	"aifit/coach-app/internal/llm"
	"aifit/coach-app/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-memory fakes implementing the repository and backend interfaces.

type fakeRecordRepo struct {
	mu      sync.Mutex
	records map[primitive.ObjectID]domain.GenerationRecord

	failNextUpdate bool
	// onGet runs once before the next GetByID, standing in for a concurrent
	// writer that finishes just before the read.
	onGet func()
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{records: make(map[primitive.ObjectID]domain.GenerationRecord)}
}

func (r *fakeRecordRepo) Create(ctx context.Context, record *domain.GenerationRecord) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	record.SchemaVersion = domain.GenerationRecordSchemaVersion
	r.records[record.ID] = cloneRecord(record)
	return record.ID, nil
}

func (r *fakeRecordRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.GenerationRecord, error) {
	r.mu.Lock()
	hook := r.onGet
	r.onGet = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneRecord(&record)
	return &out, nil
}

func (r *fakeRecordRepo) Update(ctx context.Context, record *domain.GenerationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNextUpdate {
		r.failNextUpdate = false
		return errors.New("simulated write failure")
	}
	if _, ok := r.records[record.ID]; !ok {
		return repository.ErrNotFound
	}
	record.UpdatedAt = time.Now().UTC()
	r.records[record.ID] = cloneRecord(record)
	return nil
}

func (r *fakeRecordRepo) GetByOwnerAndPhase(ctx context.Context, ownerID primitive.ObjectID, phase domain.GenerationPhase) ([]domain.GenerationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.GenerationRecord
	for _, record := range r.records {
		if record.OwnerID == ownerID && record.Phase == phase {
			out = append(out, cloneRecord(&record))
		}
	}
	return out, nil
}

func (r *fakeRecordRepo) GetActiveByOwnerAndKind(ctx context.Context, ownerID primitive.ObjectID, kind domain.PlanKind) (*domain.GenerationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.OwnerID == ownerID && record.PlanKind == kind && !record.Phase.IsTerminal() {
			out := cloneRecord(&record)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeRecordRepo) Archive(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	record.IsArchived = true
	record.ArchivedAt = &at
	record.UpdatedAt = time.Now().UTC()
	r.records[id] = record
	return nil
}

func (r *fakeRecordRepo) firstIDByOwner(ownerID primitive.ObjectID) primitive.ObjectID {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, record := range r.records {
		if record.OwnerID == ownerID {
			return id
		}
	}
	return primitive.NilObjectID
}

func cloneRecord(record *domain.GenerationRecord) domain.GenerationRecord {
	out := *record
	out.Conversation = append([]domain.Turn(nil), record.Conversation...)
	return out
}

type fakePlanRepo struct {
	mu    sync.Mutex
	plans map[primitive.ObjectID]domain.Plan
}

func newFakePlanRepo() *fakePlanRepo {
	return &fakePlanRepo{plans: make(map[primitive.ObjectID]domain.Plan)}
}

func (r *fakePlanRepo) Create(ctx context.Context, plan *domain.Plan) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	r.plans[plan.ID] = *plan
	return plan.ID, nil
}

func (r *fakePlanRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan, ok := r.plans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := plan
	return &out, nil
}

func (r *fakePlanRepo) GetByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]domain.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Plan
	for _, plan := range r.plans {
		if plan.OwnerID == ownerID {
			out = append(out, plan)
		}
	}
	return out, nil
}

func (r *fakePlanRepo) GetCurrentByOwnerAndKind(ctx context.Context, ownerID primitive.ObjectID, kind domain.PlanKind) (*domain.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest *domain.Plan
	for id := range r.plans {
		plan := r.plans[id]
		if plan.OwnerID != ownerID || plan.Kind != kind || plan.IsArchived {
			continue
		}
		if newest == nil || plan.CreatedAt.After(newest.CreatedAt) {
			p := plan
			newest = &p
		}
	}
	if newest == nil {
		return nil, repository.ErrNotFound
	}
	return newest, nil
}

func (r *fakePlanRepo) Archive(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan, ok := r.plans[id]
	if !ok {
		return repository.ErrNotFound
	}
	plan.IsArchived = true
	plan.ArchivedAt = &at
	plan.UpdatedAt = time.Now().UTC()
	r.plans[id] = plan
	return nil
}

// fakeBackend scripts the generation backend per test.
type fakeBackend struct {
	mu            sync.Mutex
	converseFunc  func(forced bool) (*llm.ConverseResult, error)
	generateFunc  func() (string, error)
	converseCalls int
	generateCalls int
}

func (b *fakeBackend) Converse(ctx context.Context, kind domain.PlanKind, history []domain.Turn, collectedContext string, forced bool) (*llm.ConverseResult, error) {
	b.mu.Lock()
	b.converseCalls++
	fn := b.converseFunc
	b.mu.Unlock()
	if fn == nil {
		return &llm.ConverseResult{Message: "What are your goals?", Kind: domain.ResponseQuestion}, nil
	}
	return fn(forced)
}

func (b *fakeBackend) Generate(ctx context.Context, prompt string) (string, error) {
	b.mu.Lock()
	b.generateCalls++
	fn := b.generateFunc
	b.mu.Unlock()
	if fn == nil {
		return "", errors.New("no generate script")
	}
	return fn()
}

// fakeNotifier records dispatched notifications.
type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *fakeNotifier) ScheduleCompletionNotification(kind domain.PlanKind, title string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, string(kind)+"/"+title)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}
