package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlanKindIsValid(t *testing.T) {
	assert.True(t, PlanKindDiet.IsValid())
	assert.True(t, PlanKindWorkoutHome.IsValid())
	assert.True(t, PlanKindWorkoutGym.IsValid())
	assert.False(t, PlanKind("yoga").IsValid())
	assert.False(t, PlanKind("").IsValid())

	assert.False(t, PlanKindDiet.IsWorkout())
	assert.True(t, PlanKindWorkoutHome.IsWorkout())
	assert.True(t, PlanKindWorkoutGym.IsWorkout())
}

func TestPhaseIsTerminal(t *testing.T) {
	assert.False(t, PhaseConversation.IsTerminal())
	assert.False(t, PhaseGenerating.IsTerminal())
	assert.True(t, PhaseCompleted.IsTerminal())
	assert.True(t, PhaseFailed.IsTerminal())
}

func TestApplyDefaultsRecomputesMessageCount(t *testing.T) {
	record := GenerationRecord{
		Conversation: []Turn{
			{Role: RoleUser, Text: "hi"},
			{Role: RoleAssistant, Text: "hello", ResponseKind: ResponseQuestion},
			{Role: RoleUser, Text: "more"},
		},
	}
	record.ApplyDefaults()

	assert.Equal(t, 1, record.SchemaVersion)
	assert.Equal(t, PhaseConversation, record.Phase)
	assert.Equal(t, 2, record.MessageCount)
	assert.Equal(t, record.UserTurnCount(), record.MessageCount)
}

func TestApplyDefaultsLeavesCurrentRecordsAlone(t *testing.T) {
	record := GenerationRecord{
		SchemaVersion: GenerationRecordSchemaVersion,
		Phase:         PhaseGenerating,
		MessageCount:  3,
		Conversation:  []Turn{{Role: RoleUser, Text: "hi"}},
	}
	record.ApplyDefaults()

	assert.Equal(t, GenerationRecordSchemaVersion, record.SchemaVersion)
	assert.Equal(t, PhaseGenerating, record.Phase)
	assert.Equal(t, 3, record.MessageCount)
}

func TestReadySignalled(t *testing.T) {
	record := GenerationRecord{}
	assert.False(t, record.ReadySignalled())

	record.Conversation = append(record.Conversation, Turn{Role: RoleUser, Text: "hi"})
	assert.False(t, record.ReadySignalled())

	record.Conversation = append(record.Conversation, Turn{Role: RoleAssistant, ResponseKind: ResponseReady})
	assert.True(t, record.ReadySignalled())

	// A later question turn withdraws the signal.
	record.Conversation = append(record.Conversation,
		Turn{Role: RoleUser, Text: "keep asking"},
		Turn{Role: RoleAssistant, ResponseKind: ResponseQuestion},
	)
	assert.False(t, record.ReadySignalled())
}

func TestPlanWeekWindow(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, PlanDays).Add(-time.Second)
	plan := Plan{WeekStartDate: start, WeekEndDate: end}

	assert.True(t, plan.CoversWeek(start))
	assert.True(t, plan.CoversWeek(start.AddDate(0, 0, 3)))
	assert.True(t, plan.CoversWeek(end))
	assert.False(t, plan.CoversWeek(start.Add(-time.Second)))
	assert.False(t, plan.CoversWeek(end.Add(time.Second)))

	assert.False(t, plan.Expired(end))
	assert.True(t, plan.Expired(end.Add(time.Second)))

	// A plan without a window never expires.
	assert.False(t, (&Plan{}).Expired(time.Now()))
}
