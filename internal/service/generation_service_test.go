package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"aifit/coach-app/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// dietJSON builds a diet payload with the given number of fully populated days.
func dietJSON(days int) string {
	meal := `{"name":"Oats","ingredients":["oats","milk"],"instructions":"Combine and simmer.","calories":400}`
	var sb strings.Builder
	sb.WriteString(`{"name":"Test Diet Plan","days":[`)
	for i := 0; i < days; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"day":"Day %d","breakfast":%s,"lunch":%s,"dinner":%s}`, i+1, meal, meal, meal)
	}
	sb.WriteString(`]}`)
	return sb.String()
}

// workoutJSON builds a workout payload with the given number of training days.
func workoutJSON(days int) string {
	var sb strings.Builder
	sb.WriteString(`{"name":"Test Workout Plan","days":[`)
	for i := 0; i < days; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"day":"Day %d","focus":"Full body","exercises":[{"name":"Squat","sets":3,"reps":"8-10","rest_seconds":90}]}`, i+1)
	}
	sb.WriteString(`]}`)
	return sb.String()
}

// seedRecord persists a record directly, bypassing the conversation service.
func seedRecord(t *testing.T, repo *fakeRecordRepo, owner primitive.ObjectID, kind domain.PlanKind, phase domain.GenerationPhase, ready bool) *domain.GenerationRecord {
	t.Helper()
	now := time.Now().UTC()
	assistantKind := domain.ResponseQuestion
	if ready {
		assistantKind = domain.ResponseReady
	}
	record := &domain.GenerationRecord{
		OwnerID:  owner,
		PlanKind: kind,
		Phase:    phase,
		Conversation: []domain.Turn{
			{Role: domain.RoleUser, Text: "I want a plan", Timestamp: now},
			{Role: domain.RoleAssistant, Text: "Understood.", ResponseKind: assistantKind, Timestamp: now},
		},
		CollectedContext: "wants a weekly plan",
		MessageCount:     1,
	}
	_, err := repo.Create(context.Background(), record)
	require.NoError(t, err)
	return record
}

func TestBeginGenerationRequiresReadyOrBudget(t *testing.T) {
	backend := &fakeBackend{}
	_, genSvc, recordRepo, _, _ := newTestServices(t, backend, 10)
	owner := primitive.NewObjectID()
	record := seedRecord(t, recordRepo, owner, domain.PlanKindDiet, domain.PhaseConversation, false)

	_, err := genSvc.BeginGeneration(context.Background(), owner, record.ID)
	require.ErrorIs(t, err, ErrConversationNotReady)
	assert.Equal(t, 0, backend.generateCalls)
}

func TestBeginGenerationCompleteAcceptance(t *testing.T) {
	backend := &fakeBackend{generateFunc: func() (string, error) {
		return "Here is your plan:\n```json\n" + dietJSON(7) + "\n```\nEnjoy!", nil
	}}
	_, genSvc, recordRepo, planRepo, notifier := newTestServices(t, backend, 10)
	owner := primitive.NewObjectID()
	record := seedRecord(t, recordRepo, owner, domain.PlanKindDiet, domain.PhaseConversation, true)

	var events []CompletionEvent
	genSvc.SubscribeCompletion(func(e CompletionEvent) { events = append(events, e) })

	updated, err := genSvc.BeginGeneration(context.Background(), owner, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseCompleted, updated.Phase)
	require.NotNil(t, updated.ResultPlanID)
	require.NotNil(t, updated.CompletedAt)

	plan, err := planRepo.GetByID(context.Background(), *updated.ResultPlanID)
	require.NoError(t, err)
	assert.Equal(t, domain.GenerationComplete, plan.GenerationStatus)
	assert.Len(t, plan.DietDays, 7)
	assert.Empty(t, plan.MissingFields)
	assert.True(t, plan.CoversWeek(time.Now().UTC()))

	assert.Equal(t, 1, notifier.count())
	require.Len(t, events, 1)
	assert.Equal(t, *updated.ResultPlanID, events[0].PlanID)

	stored, err := recordRepo.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.True(t, stored.NotificationSent)
}

func TestBeginGenerationPartialAcceptance(t *testing.T) {
	backend := &fakeBackend{generateFunc: func() (string, error) {
		return dietJSON(6), nil // 18 of 21 meal slots, above the 0.7 threshold
	}}
	_, genSvc, recordRepo, planRepo, _ := newTestServices(t, backend, 10)
	owner := primitive.NewObjectID()
	record := seedRecord(t, recordRepo, owner, domain.PlanKindDiet, domain.PhaseConversation, true)

	updated, err := genSvc.BeginGeneration(context.Background(), owner, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseCompleted, updated.Phase)

	plan, err := planRepo.GetByID(context.Background(), *updated.ResultPlanID)
	require.NoError(t, err)
	assert.Equal(t, domain.GenerationPartial, plan.GenerationStatus)
	assert.NotEmpty(t, plan.MissingFields)
	assert.LessOrEqual(t, len(plan.MissingFields), 5)
}

func TestBeginGenerationRejectFails(t *testing.T) {
	backend := &fakeBackend{generateFunc: func() (string, error) {
		return `{"name":"Empty","days":[]}`, nil
	}}
	_, genSvc, recordRepo, planRepo, notifier := newTestServices(t, backend, 10)
	owner := primitive.NewObjectID()
	record := seedRecord(t, recordRepo, owner, domain.PlanKindDiet, domain.PhaseConversation, true)

	updated, err := genSvc.BeginGeneration(context.Background(), owner, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseFailed, updated.Phase)
	assert.NotEmpty(t, updated.ErrorMessage)
	assert.Nil(t, updated.ResultPlanID)

	plans, err := planRepo.GetByOwner(context.Background(), owner)
	require.NoError(t, err)
	assert.Empty(t, plans)
	assert.Equal(t, 0, notifier.count())
}

func TestBeginGenerationUnreadablePayloadFailsDurably(t *testing.T) {
	backend := &fakeBackend{generateFunc: func() (string, error) {
		return "I am sorry, I cannot produce a plan right now.", nil
	}}
	_, genSvc, recordRepo, _, _ := newTestServices(t, backend, 10)
	owner := primitive.NewObjectID()
	record := seedRecord(t, recordRepo, owner, domain.PlanKindDiet, domain.PhaseConversation, true)

	updated, err := genSvc.BeginGeneration(context.Background(), owner, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseFailed, updated.Phase)
	assert.Equal(t, msgGenerationParseFailed, updated.ErrorMessage)
	// The raw backend text must never leak into the persisted error.
	stored, err := recordRepo.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.NotContains(t, stored.ErrorMessage, "I am sorry")
}

func TestBeginGenerationBackendFailureStaysGenerating(t *testing.T) {
	backend := &fakeBackend{generateFunc: func() (string, error) {
		return "", errors.New("connection refused")
	}}
	_, genSvc, recordRepo, _, _ := newTestServices(t, backend, 10)
	owner := primitive.NewObjectID()
	record := seedRecord(t, recordRepo, owner, domain.PlanKindDiet, domain.PhaseConversation, true)

	_, err := genSvc.BeginGeneration(context.Background(), owner, record.ID)
	require.ErrorIs(t, err, ErrBackendUnavailable)

	// Persist-before-call: the phase transition survived the failed attempt.
	stored, err := recordRepo.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseGenerating, stored.Phase)

	// A later attempt on the same record succeeds without a new record.
	backend.generateFunc = func() (string, error) { return dietJSON(7), nil }
	updated, err := genSvc.BeginGeneration(context.Background(), owner, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseCompleted, updated.Phase)
}

func TestBeginGenerationTerminalPhaseRejected(t *testing.T) {
	backend := &fakeBackend{}
	_, genSvc, recordRepo, _, _ := newTestServices(t, backend, 10)
	owner := primitive.NewObjectID()

	for _, phase := range []domain.GenerationPhase{domain.PhaseCompleted, domain.PhaseFailed} {
		record := seedRecord(t, recordRepo, owner, domain.PlanKindDiet, phase, true)
		_, err := genSvc.BeginGeneration(context.Background(), owner, record.ID)
		require.ErrorIs(t, err, ErrPhaseTerminal, "phase %s must not be re-entered", phase)
	}
	assert.Equal(t, 0, backend.generateCalls)
}

func TestBeginGenerationWorkoutPlan(t *testing.T) {
	backend := &fakeBackend{generateFunc: func() (string, error) {
		return workoutJSON(7), nil
	}}
	_, genSvc, recordRepo, planRepo, _ := newTestServices(t, backend, 10)
	owner := primitive.NewObjectID()
	record := seedRecord(t, recordRepo, owner, domain.PlanKindWorkoutHome, domain.PhaseConversation, true)

	updated, err := genSvc.BeginGeneration(context.Background(), owner, record.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.ResultPlanID)

	plan, err := planRepo.GetByID(context.Background(), *updated.ResultPlanID)
	require.NoError(t, err)
	assert.Len(t, plan.WorkoutDays, 7)
	assert.Empty(t, plan.DietDays)
}

func TestRecoverResumesGeneratingRecord(t *testing.T) {
	backend := &fakeBackend{generateFunc: func() (string, error) {
		return dietJSON(7), nil
	}}
	_, genSvc, recordRepo, _, notifier := newTestServices(t, backend, 10)
	owner := primitive.NewObjectID()
	record := seedRecord(t, recordRepo, owner, domain.PlanKindDiet, domain.PhaseGenerating, true)

	require.NoError(t, genSvc.RecoverPendingWork(context.Background(), owner))

	stored, err := recordRepo.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseCompleted, stored.Phase)
	require.NotNil(t, stored.ResultPlanID)
	assert.Equal(t, 1, notifier.count())
	assert.Equal(t, 1, backend.generateCalls)
}

func TestRecoverOneRegenerationPerKindPerSweep(t *testing.T) {
	backend := &fakeBackend{generateFunc: func() (string, error) {
		return "", errors.New("still down")
	}}
	_, genSvc, recordRepo, _, _ := newTestServices(t, backend, 10)
	owner := primitive.NewObjectID()
	seedRecord(t, recordRepo, owner, domain.PlanKindDiet, domain.PhaseGenerating, true)
	seedRecord(t, recordRepo, owner, domain.PlanKindDiet, domain.PhaseGenerating, true)
	seedRecord(t, recordRepo, owner, domain.PlanKindWorkoutGym, domain.PhaseGenerating, true)

	require.NoError(t, genSvc.RecoverPendingWork(context.Background(), owner))
	// One attempt per kind: two kinds, two calls, despite three stuck records.
	assert.Equal(t, 2, backend.generateCalls)
}

func TestRecoverIsIdempotentOnNotifiedRecords(t *testing.T) {
	backend := &fakeBackend{}
	_, genSvc, recordRepo, planRepo, notifier := newTestServices(t, backend, 10)
	owner := primitive.NewObjectID()

	plan := &domain.Plan{OwnerID: owner, Kind: domain.PlanKindDiet, Name: "Done", GenerationStatus: domain.GenerationComplete}
	planID, err := planRepo.Create(context.Background(), plan)
	require.NoError(t, err)

	record := seedRecord(t, recordRepo, owner, domain.PlanKindDiet, domain.PhaseCompleted, true)
	record.ResultPlanID = &planID
	record.NotificationSent = true
	require.NoError(t, recordRepo.Update(context.Background(), record))

	require.NoError(t, genSvc.RecoverPendingWork(context.Background(), owner))
	require.NoError(t, genSvc.RecoverPendingWork(context.Background(), owner))

	assert.Equal(t, 0, notifier.count())
	assert.Equal(t, 0, backend.generateCalls)
}

func TestRecoverRerunsMissedHandOff(t *testing.T) {
	backend := &fakeBackend{}
	_, genSvc, recordRepo, planRepo, notifier := newTestServices(t, backend, 10)
	owner := primitive.NewObjectID()

	plan := &domain.Plan{OwnerID: owner, Kind: domain.PlanKindDiet, Name: "Unannounced", GenerationStatus: domain.GenerationComplete}
	planID, err := planRepo.Create(context.Background(), plan)
	require.NoError(t, err)

	record := seedRecord(t, recordRepo, owner, domain.PlanKindDiet, domain.PhaseCompleted, true)
	record.ResultPlanID = &planID
	require.NoError(t, recordRepo.Update(context.Background(), record))

	require.NoError(t, genSvc.RecoverPendingWork(context.Background(), owner))
	assert.Equal(t, 1, notifier.count())

	stored, err := recordRepo.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.True(t, stored.NotificationSent)

	// A second sweep finds nothing left to do.
	require.NoError(t, genSvc.RecoverPendingWork(context.Background(), owner))
	assert.Equal(t, 1, notifier.count())
}

func TestRecoverAdoptsOrphanedPlan(t *testing.T) {
	backend := &fakeBackend{}
	_, genSvc, recordRepo, planRepo, notifier := newTestServices(t, backend, 10)
	owner := primitive.NewObjectID()
	record := seedRecord(t, recordRepo, owner, domain.PlanKindDiet, domain.PhaseGenerating, true)

	// Plan written after the record entered generating, covering the current
	// week: the record update was lost, not the plan.
	now := time.Now().UTC()
	weekStart := now.Truncate(24 * time.Hour)
	plan := &domain.Plan{
		OwnerID:          owner,
		Kind:             domain.PlanKindDiet,
		Name:             "Recovered",
		GenerationStatus: domain.GenerationComplete,
		WeekStartDate:    weekStart,
		WeekEndDate:      weekStart.AddDate(0, 0, domain.PlanDays).Add(-time.Second),
	}
	planID, err := planRepo.Create(context.Background(), plan)
	require.NoError(t, err)

	require.NoError(t, genSvc.RecoverPendingWork(context.Background(), owner))

	stored, err := recordRepo.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseCompleted, stored.Phase)
	require.NotNil(t, stored.ResultPlanID)
	assert.Equal(t, planID, *stored.ResultPlanID)
	assert.Equal(t, 1, notifier.count())
	// No duplicate generation for the adopted plan.
	assert.Equal(t, 0, backend.generateCalls)
}

func TestBeginGenerationObservesConcurrentCompletion(t *testing.T) {
	backend := &fakeBackend{generateFunc: func() (string, error) { return dietJSON(7), nil }}
	_, genSvc, recordRepo, _, _ := newTestServices(t, backend, 10)
	owner := primitive.NewObjectID()
	record := seedRecord(t, recordRepo, owner, domain.PlanKindDiet, domain.PhaseConversation, true)

	// Another invocation completes the record just before this one reads it.
	planID := primitive.NewObjectID()
	recordRepo.onGet = func() {
		stored, err := recordRepo.GetByID(context.Background(), record.ID)
		require.NoError(t, err)
		stored.Phase = domain.PhaseCompleted
		stored.ResultPlanID = &planID
		require.NoError(t, recordRepo.Update(context.Background(), stored))
	}

	_, err := genSvc.BeginGeneration(context.Background(), owner, record.ID)
	require.ErrorIs(t, err, ErrPhaseTerminal)
	assert.Equal(t, 0, backend.generateCalls)

	stored, err := recordRepo.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseCompleted, stored.Phase)
	require.NotNil(t, stored.ResultPlanID)
	assert.Equal(t, planID, *stored.ResultPlanID)
}

func TestBeginGenerationOwnerScoped(t *testing.T) {
	_, genSvc, recordRepo, _, _ := newTestServices(t, &fakeBackend{}, 10)
	owner := primitive.NewObjectID()
	record := seedRecord(t, recordRepo, owner, domain.PlanKindDiet, domain.PhaseConversation, true)

	_, err := genSvc.BeginGeneration(context.Background(), primitive.NewObjectID(), record.ID)
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func TestBeginGenerationUsesForcedBudgetEntry(t *testing.T) {
	backend := &fakeBackend{generateFunc: func() (string, error) { return dietJSON(7), nil }}
	_, genSvc, recordRepo, _, _ := newTestServices(t, backend, 3)
	owner := primitive.NewObjectID()

	// No ready signal, but the message budget is exhausted.
	record := seedRecord(t, recordRepo, owner, domain.PlanKindDiet, domain.PhaseConversation, false)
	record.MessageCount = 3
	require.NoError(t, recordRepo.Update(context.Background(), record))

	updated, err := genSvc.BeginGeneration(context.Background(), owner, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseCompleted, updated.Phase)
}
