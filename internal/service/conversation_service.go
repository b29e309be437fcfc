package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"aifit/coach-app/internal/domain"
	"aifit/coach-app/internal/llm"
	"aifit/coach-app/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrEmptyInput         = errors.New("message text cannot be empty")
	ErrInvalidPlanKind    = errors.New("unsupported plan kind")
	ErrRecordNotFound     = errors.New("generation record not found")
	ErrFlowActive         = errors.New("a generation flow for this plan kind is already active")
	ErrPhaseConflict      = errors.New("operation not valid in the record's current phase")
	ErrBackendUnavailable = errors.New("generation backend is unavailable")
	ErrFlowCancelled      = errors.New("flow was cancelled; response discarded")
)

// moreQuestionsTurnText is the synthetic user turn appended when the user
// declines an early ready signal and asks to keep talking.
const moreQuestionsTurnText = "I have more to share. Please ask me more questions before creating the plan."

// ConversationService mediates the bounded context-gathering exchange that
// precedes plan generation. The exchange ends either with an explicit ready
// signal from the backend or with a forced cutoff once the user-message
// budget is exhausted.
type ConversationService interface {
	StartConversation(ctx context.Context, ownerID primitive.ObjectID, kind domain.PlanKind, initialText string) (*domain.GenerationRecord, error)
	SendMessage(ctx context.Context, ownerID, recordID primitive.ObjectID, text string) (*domain.GenerationRecord, error)
	RequestMoreQuestions(ctx context.Context, ownerID, recordID primitive.ObjectID) (*domain.GenerationRecord, error)
	// StartOver abandons the record's flow. The record is marked failed and
	// retained; any in-flight backend response for it is discarded on arrival.
	StartOver(ctx context.Context, ownerID, recordID primitive.ObjectID) error
}

// conversationService implements the ConversationService interface.
type conversationService struct {
	recordRepo  repository.GenerationRecordRepository
	backend     llm.GenerationBackend
	generation  GenerationService
	flows       *flowRegistry
	maxMessages int
	now         func() time.Time
}

// NewConversationService creates a new instance of conversationService.
// maxMessages is the forced-generation budget: once the record holds that
// many user turns, the next exchange forces a ready signal and generation
// begins without waiting for user confirmation.
func NewConversationService(
	recordRepo repository.GenerationRecordRepository,
	backend llm.GenerationBackend,
	generationService GenerationService,
	maxMessages int,
) ConversationService {
	if maxMessages <= 0 {
		maxMessages = 10
	}
	return &conversationService{
		recordRepo:  recordRepo,
		backend:     backend,
		generation:  generationService,
		flows:       generationService.flowRegistry(),
		maxMessages: maxMessages,
		now:         time.Now,
	}
}

// StartConversation creates a new generation record from the user's initial
// free-text request and runs the first exchange with the backend.
func (s *conversationService) StartConversation(ctx context.Context, ownerID primitive.ObjectID, kind domain.PlanKind, initialText string) (*domain.GenerationRecord, error) {
	text := strings.TrimSpace(initialText)
	if text == "" {
		return nil, ErrEmptyInput
	}
	if !kind.IsValid() {
		return nil, ErrInvalidPlanKind
	}
	if ownerID == primitive.NilObjectID {
		return nil, errors.New("owner ID is required")
	}

	// One active flow per (owner, kind): a second start is a caller error,
	// never silently queued.
	existing, err := s.recordRepo.GetActiveByOwnerAndKind(ctx, ownerID, kind)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrFlowActive
	}

	record := &domain.GenerationRecord{
		OwnerID:  ownerID,
		PlanKind: kind,
		Phase:    domain.PhaseConversation,
		Conversation: []domain.Turn{
			{Role: domain.RoleUser, Text: text, Timestamp: s.now().UTC()},
		},
		CollectedContext: text,
		MessageCount:     1,
	}

	recordID, err := s.recordRepo.Create(ctx, record)
	if err != nil {
		return nil, err
	}
	record.ID = recordID

	if !s.flows.Acquire(ownerID, kind, recordID) {
		return nil, ErrFlowActive
	}

	// First exchange. The record is already durable; a backend failure here
	// leaves it in conversation phase for retry.
	if err := s.exchange(ctx, record, false); err != nil {
		return record, err
	}
	return record, nil
}

// SendMessage appends a user turn, grows the collected context, and runs one
// exchange with the backend. When the turn exhausts the message budget the
// exchange is forced and generation begins immediately.
func (s *conversationService) SendMessage(ctx context.Context, ownerID, recordID primitive.ObjectID, text string) (*domain.GenerationRecord, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}
	return s.advance(ctx, ownerID, recordID, text, true)
}

// RequestMoreQuestions lets the user decline an early ready signal and keep
// the conversation going. The choice is recorded as a synthetic user turn and
// then proceeds exactly as SendMessage.
func (s *conversationService) RequestMoreQuestions(ctx context.Context, ownerID, recordID primitive.ObjectID) (*domain.GenerationRecord, error) {
	return s.advance(ctx, ownerID, recordID, moreQuestionsTurnText, false)
}

// StartOver abandons the flow. The record is marked failed (retained for
// history) and the attempt token is dropped so a late response is discarded.
func (s *conversationService) StartOver(ctx context.Context, ownerID, recordID primitive.ObjectID) error {
	if recordID == primitive.NilObjectID {
		return ErrRecordNotFound
	}
	unlock := s.flows.lockRecord(recordID)
	defer unlock()

	record, err := s.loadOwned(ctx, ownerID, recordID)
	if err != nil {
		return err
	}

	if !record.Phase.IsTerminal() {
		record.Phase = domain.PhaseFailed
		record.ErrorMessage = "superseded: user started over"
		if err := s.recordRepo.Update(ctx, record); err != nil {
			return err
		}
	}
	s.flows.Release(ownerID, record.PlanKind, recordID)
	return nil
}

// advance appends a user turn and runs one exchange, rolling the turn back if
// the backend call fails. When the turn exhausts the budget, generation begins
// after the conversation lock is released.
func (s *conversationService) advance(ctx context.Context, ownerID, recordID primitive.ObjectID, text string, growContext bool) (*domain.GenerationRecord, error) {
	record, forced, err := s.advanceLocked(ctx, ownerID, recordID, text, growContext)
	if err != nil {
		return nil, err
	}
	if forced {
		// Budget exhausted: generation is no longer the caller's decision.
		updated, err := s.generation.BeginGeneration(ctx, record.OwnerID, record.ID)
		if updated != nil {
			record = updated
		}
		if err != nil {
			return record, err
		}
	}
	return record, nil
}

func (s *conversationService) advanceLocked(ctx context.Context, ownerID, recordID primitive.ObjectID, text string, growContext bool) (*domain.GenerationRecord, bool, error) {
	if recordID == primitive.NilObjectID {
		return nil, false, ErrRecordNotFound
	}
	unlock := s.flows.lockRecord(recordID)
	defer unlock()

	// Load under the record lock so the phase check and the write observe
	// the same state; a copy read before the lock could clobber a concurrent
	// completion.
	record, err := s.loadOwned(ctx, ownerID, recordID)
	if err != nil {
		return nil, false, err
	}
	if record.Phase != domain.PhaseConversation {
		return nil, false, ErrPhaseConflict
	}

	// Snapshot for rollback: only durably-acknowledged turns may remain if
	// the backend call fails.
	turnsBefore := len(record.Conversation)
	countBefore := record.MessageCount
	contextBefore := record.CollectedContext

	record.Conversation = append(record.Conversation, domain.Turn{
		Role:      domain.RoleUser,
		Text:      text,
		Timestamp: s.now().UTC(),
	})
	record.MessageCount++
	if growContext {
		// Context only ever grows; earlier context is never dropped.
		record.CollectedContext = record.CollectedContext + "\n" + text
	}
	if err := s.recordRepo.Update(ctx, record); err != nil {
		return nil, false, err
	}

	forced := record.MessageCount >= s.maxMessages
	if err := s.exchange(ctx, record, forced); err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			record.Conversation = record.Conversation[:turnsBefore]
			record.MessageCount = countBefore
			record.CollectedContext = contextBefore
			if rbErr := s.recordRepo.Update(ctx, record); rbErr != nil {
				log.Printf("ERROR: Failed to roll back user turn on record %s: %v", record.ID.Hex(), rbErr)
			}
		}
		return nil, false, err
	}
	return record, forced, nil
}

// exchange sends the full ordered history to the backend, appends the reply,
// and persists. A forced exchange overrides the reply kind to ready so the
// record qualifies for generation regardless of what the backend said.
func (s *conversationService) exchange(ctx context.Context, record *domain.GenerationRecord, forced bool) error {
	token := s.flows.NewAttempt(record.ID)

	result, err := s.backend.Converse(ctx, record.PlanKind, record.Conversation, record.CollectedContext, forced)
	if err != nil {
		log.Printf("WARN: Converse call failed for record %s: %v", record.ID.Hex(), err)
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// A response for a flow the user has since abandoned is discarded.
	if !s.flows.IsCurrent(record.ID, token) {
		return ErrFlowCancelled
	}

	kind := result.Kind
	if forced {
		kind = domain.ResponseReady
	}
	record.Conversation = append(record.Conversation, domain.Turn{
		Role:         domain.RoleAssistant,
		Text:         result.Message,
		ResponseKind: kind,
		Timestamp:    s.now().UTC(),
	})
	if kind == domain.ResponseReady && result.ContextSummary != "" {
		record.CollectedContext = record.CollectedContext + "\n" + result.ContextSummary
	}
	return s.recordRepo.Update(ctx, record)
}

func (s *conversationService) loadOwned(ctx context.Context, ownerID, recordID primitive.ObjectID) (*domain.GenerationRecord, error) {
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
	// Owner scoping: a record id from another account is indistinguishable
	// from a missing one.
	if record.OwnerID != ownerID {
		return nil, ErrRecordNotFound
	}
	return record, nil
}
