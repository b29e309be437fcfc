package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"aifit/coach-app/internal/domain"
	"aifit/coach-app/internal/generation"
	"aifit/coach-app/internal/llm"
	"aifit/coach-app/internal/notification"
	"aifit/coach-app/internal/repository"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrPhaseTerminal        = errors.New("generation record is already in a terminal phase")
	ErrConversationNotReady = errors.New("conversation is not ready for generation")
)

// msgGenerationParseFailed is the durable, user-safe error recorded when the
// backend's reply held no readable payload. Raw backend text never reaches
// the user.
const msgGenerationParseFailed = "the generated plan could not be read"

// maxDisclosedMissingFields caps how many missing-field descriptions are
// attached to a partially accepted plan.
const maxDisclosedMissingFields = 5

// CompletionEvent is published when a generation record reaches completed.
type CompletionEvent struct {
	OwnerID  primitive.ObjectID
	PlanKind domain.PlanKind
	PlanID   primitive.ObjectID
}

// CompletionListener receives completion events. Listeners must not block.
type CompletionListener func(CompletionEvent)

// GenerationService owns the phase transitions of generation records: it
// invokes the backend, validates its output, persists every transition, and
// runs completion hand-off and crash recovery.
type GenerationService interface {
	// BeginGeneration moves a ready (or forced) conversation into the
	// generating phase and runs one generation attempt.
	BeginGeneration(ctx context.Context, ownerID, recordID primitive.ObjectID) (*domain.GenerationRecord, error)
	// RecoverPendingWork resumes interrupted generations and re-runs missed
	// completion hand-offs for the owner. Safe to run repeatedly.
	RecoverPendingWork(ctx context.Context, ownerID primitive.ObjectID) error
	// SubscribeCompletion registers a listener for completion events.
	SubscribeCompletion(listener CompletionListener)

	flowRegistry() *flowRegistry
}

// generationService implements the GenerationService interface.
type generationService struct {
	recordRepo  repository.GenerationRecordRepository
	planRepo    repository.PlanRepository
	backend     llm.GenerationBackend
	validator   *generation.Validator
	notifier    notification.Scheduler
	flows       *flowRegistry
	maxMessages int
	now         func() time.Time

	listenerMu sync.Mutex
	listeners  []CompletionListener
}

// NewGenerationService creates a new instance of generationService.
// maxMessages mirrors the conversation budget: a record that reached it may
// enter generation even without an explicit ready signal.
func NewGenerationService(
	recordRepo repository.GenerationRecordRepository,
	planRepo repository.PlanRepository,
	backend llm.GenerationBackend,
	validator *generation.Validator,
	notifier notification.Scheduler,
	maxMessages int,
) GenerationService {
	if maxMessages <= 0 {
		maxMessages = 10
	}
	return &generationService{
		recordRepo:  recordRepo,
		planRepo:    planRepo,
		backend:     backend,
		validator:   validator,
		notifier:    notifier,
		flows:       newFlowRegistry(),
		maxMessages: maxMessages,
		now:         time.Now,
	}
}

func (s *generationService) flowRegistry() *flowRegistry {
	return s.flows
}

// SubscribeCompletion registers a completion listener.
func (s *generationService) SubscribeCompletion(listener CompletionListener) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, listener)
}

func (s *generationService) publishCompletion(event CompletionEvent) {
	s.listenerMu.Lock()
	listeners := make([]CompletionListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenerMu.Unlock()
	for _, l := range listeners {
		l(event)
	}
}

// BeginGeneration enters the generating phase and runs one attempt. The
// phase transition is persisted before any backend call: a crash after this
// point resumes in generating, the request is never silently lost.
func (s *generationService) BeginGeneration(ctx context.Context, ownerID, recordID primitive.ObjectID) (*domain.GenerationRecord, error) {
	if recordID == primitive.NilObjectID {
		return nil, ErrRecordNotFound
	}
	unlock := s.flows.lockRecord(recordID)
	defer unlock()

	// Load under the record lock so the phase checks and the writes observe
	// the same state.
	record, err := s.loadOwned(ctx, ownerID, recordID)
	if err != nil {
		return nil, err
	}
	if record.Phase.IsTerminal() {
		return nil, ErrPhaseTerminal
	}

	if record.Phase == domain.PhaseConversation {
		// Entry requires either an explicit ready signal or an exhausted
		// message budget (forced generation).
		if !record.ReadySignalled() && record.MessageCount < s.maxMessages {
			return nil, ErrConversationNotReady
		}
		record.Phase = domain.PhaseGenerating
		if err := s.recordRepo.Update(ctx, record); err != nil {
			return nil, err
		}
	}
	// Phase generating here, either freshly entered or re-invoked after a
	// crash or a transient backend failure.
	s.flows.Acquire(ownerID, record.PlanKind, recordID)

	if err := s.generate(ctx, record); err != nil {
		return record, err
	}
	return record, nil
}

// generate runs exactly one generation attempt for a record already in the
// generating phase.
func (s *generationService) generate(ctx context.Context, record *domain.GenerationRecord) error {
	attemptID := uuid.NewString()
	token := s.flows.NewAttempt(record.ID)
	log.Printf("Generation attempt %s starting for record %s (kind=%s)", attemptID, record.ID.Hex(), record.PlanKind)

	prompt := llm.GenerationPrompt(record.PlanKind, record.CollectedContext)
	raw, err := s.backend.Generate(ctx, prompt)
	if err != nil {
		// Transient backend failure: the record stays in generating so the
		// caller or the recovery sweep can re-invoke. Regeneration is
		// idempotent; plan writes are whole-document by id.
		log.Printf("WARN: Generation attempt %s failed for record %s: %v", attemptID, record.ID.Hex(), err)
		return ErrBackendUnavailable
	}

	if !s.flows.IsCurrent(record.ID, token) {
		log.Printf("Generation attempt %s discarded for record %s: flow superseded", attemptID, record.ID.Hex())
		return ErrFlowCancelled
	}

	payload, err := generation.DecodePlanPayload(raw)
	if err != nil {
		// The backend replied but no structured payload could be isolated;
		// this is a durable failure, not a retry case.
		return s.fail(ctx, record, msgGenerationParseFailed)
	}

	result := s.validator.Validate(record.PlanKind, payload)
	if result.Verdict == generation.VerdictReject {
		return s.fail(ctx, record, result.Summary())
	}

	plan := s.buildPlan(record, payload, result)
	// Plan first, record second. If the process dies between the two writes
	// the recovery sweep re-derives completion from the persisted plan.
	planID, err := s.planRepo.Create(ctx, plan)
	if err != nil {
		return err
	}
	plan.ID = planID

	completedAt := s.now().UTC()
	record.ResultPlanID = &planID
	record.CompletedAt = &completedAt
	record.Phase = domain.PhaseCompleted
	if err := s.recordRepo.Update(ctx, record); err != nil {
		return err
	}
	log.Printf("Generation attempt %s completed for record %s: plan %s (%s)", attemptID, record.ID.Hex(), planID.Hex(), plan.GenerationStatus)

	s.finalizeCompletion(ctx, record, plan)
	s.flows.Release(record.OwnerID, record.PlanKind, record.ID)
	return nil
}

// fail moves the record into the failed phase with a durable error message,
// so the failure survives a crash before the caller observes it.
func (s *generationService) fail(ctx context.Context, record *domain.GenerationRecord, message string) error {
	record.Phase = domain.PhaseFailed
	record.ErrorMessage = message
	if err := s.recordRepo.Update(ctx, record); err != nil {
		return err
	}
	s.flows.Release(record.OwnerID, record.PlanKind, record.ID)
	return nil
}

// buildPlan converts an accepted payload into the persisted plan for the
// current week, attaching disclosure metadata when acceptance was partial.
func (s *generationService) buildPlan(record *domain.GenerationRecord, payload *generation.PlanPayload, result *generation.ValidationResult) *domain.Plan {
	now := s.now().UTC()
	weekStart := now.Truncate(24 * time.Hour)
	weekEnd := weekStart.AddDate(0, 0, domain.PlanDays).Add(-time.Second)

	name := payload.Name
	if name == "" {
		name = "Weekly plan"
	}

	plan := &domain.Plan{
		OwnerID:          record.OwnerID,
		Kind:             record.PlanKind,
		Name:             name,
		GenerationStatus: domain.GenerationComplete,
		WeekStartDate:    weekStart,
		WeekEndDate:      weekEnd,
	}
	if record.PlanKind.IsWorkout() {
		plan.WorkoutDays = payload.ToWorkoutDays()
	} else {
		plan.DietDays = payload.ToDietDays()
	}
	if result.Verdict == generation.VerdictPartialAccept {
		// The gaps are disclosed on the plan rather than silently hidden.
		plan.GenerationStatus = domain.GenerationPartial
		plan.MissingFields = result.MissingFields(maxDisclosedMissingFields)
	}
	return plan
}

// finalizeCompletion runs the completion hand-off: notification plus event,
// then the notificationSent flag so repeated recovery sweeps stay silent.
func (s *generationService) finalizeCompletion(ctx context.Context, record *domain.GenerationRecord, plan *domain.Plan) {
	if record.NotificationSent {
		return
	}
	s.notifier.ScheduleCompletionNotification(plan.Kind, plan.Name)
	s.publishCompletion(CompletionEvent{
		OwnerID:  record.OwnerID,
		PlanKind: plan.Kind,
		PlanID:   plan.ID,
	})
	record.NotificationSent = true
	if err := s.recordRepo.Update(ctx, record); err != nil {
		// The flag write failed; the next sweep may notify again. Duplicate
		// notification beats a lost one here.
		log.Printf("ERROR: Failed to persist notificationSent for record %s: %v", record.ID.Hex(), err)
	}
}

// RecoverPendingWork scans the owner's persisted records for interrupted
// work: generating-phase records are re-entered (at most one per plan kind
// per sweep), completed-but-unnotified records get their hand-off re-run
// without regenerating.
func (s *generationService) RecoverPendingWork(ctx context.Context, ownerID primitive.ObjectID) error {
	if ownerID == primitive.NilObjectID {
		return errors.New("owner ID is required")
	}

	generating, err := s.recordRepo.GetByOwnerAndPhase(ctx, ownerID, domain.PhaseGenerating)
	if err != nil {
		return err
	}
	seenKinds := make(map[domain.PlanKind]bool)
	for i := range generating {
		record := &generating[i]
		if seenKinds[record.PlanKind] {
			// One in-flight regeneration per kind per sweep.
			continue
		}
		seenKinds[record.PlanKind] = true

		unlock := s.flows.lockRecord(record.ID)
		// Reload under the lock; the record may have moved on since the
		// phase query.
		fresh, err := s.recordRepo.GetByID(ctx, record.ID)
		if err != nil || fresh.Phase != domain.PhaseGenerating {
			unlock()
			continue
		}
		record = fresh
		// A plan may have been written while the record update was lost.
		// Finalize from the plan instead of generating a duplicate.
		if plan := s.orphanedPlanFor(ctx, record); plan != nil {
			record.ResultPlanID = &plan.ID
			completedAt := s.now().UTC()
			record.CompletedAt = &completedAt
			record.Phase = domain.PhaseCompleted
			if err := s.recordRepo.Update(ctx, record); err != nil {
				log.Printf("ERROR: Recovery failed to finalize record %s: %v", record.ID.Hex(), err)
				unlock()
				continue
			}
			s.finalizeCompletion(ctx, record, plan)
			s.flows.Release(ownerID, record.PlanKind, record.ID)
			unlock()
			continue
		}

		s.flows.Acquire(ownerID, record.PlanKind, record.ID)
		if err := s.generate(ctx, record); err != nil {
			log.Printf("WARN: Recovery regeneration for record %s: %v", record.ID.Hex(), err)
		}
		unlock()
	}

	completed, err := s.recordRepo.GetByOwnerAndPhase(ctx, ownerID, domain.PhaseCompleted)
	if err != nil {
		return err
	}
	for i := range completed {
		record := &completed[i]
		if record.NotificationSent || record.ResultPlanID == nil {
			continue
		}
		unlock := s.flows.lockRecord(record.ID)
		fresh, err := s.recordRepo.GetByID(ctx, record.ID)
		if err != nil || fresh.NotificationSent || fresh.ResultPlanID == nil {
			unlock()
			continue
		}
		plan, err := s.planRepo.GetByID(ctx, *fresh.ResultPlanID)
		if err != nil {
			log.Printf("ERROR: Recovery could not load plan %s for record %s: %v", fresh.ResultPlanID.Hex(), fresh.ID.Hex(), err)
			unlock()
			continue
		}
		s.finalizeCompletion(ctx, fresh, plan)
		unlock()
	}
	return nil
}

// orphanedPlanFor looks for a current plan of the record's kind written after
// the record entered generating, which indicates the plan write landed but
// the record update did not.
func (s *generationService) orphanedPlanFor(ctx context.Context, record *domain.GenerationRecord) *domain.Plan {
	plan, err := s.planRepo.GetCurrentByOwnerAndKind(ctx, record.OwnerID, record.PlanKind)
	if err != nil {
		return nil
	}
	if plan.CreatedAt.Before(record.UpdatedAt) {
		return nil
	}
	if !plan.CoversWeek(s.now().UTC()) {
		return nil
	}
	return plan
}

func (s *generationService) loadOwned(ctx context.Context, ownerID, recordID primitive.ObjectID) (*domain.GenerationRecord, error) {
	if recordID == primitive.NilObjectID {
		return nil, ErrRecordNotFound
	}
	record, err := s.recordRepo.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	if record.OwnerID != ownerID {
		return nil, ErrRecordNotFound
	}
	return record, nil
}
