package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GenerationRecordSchemaVersion is the version written for new records.
// Records persisted under an older version are still readable; fields added
// since that version decode to their zero values and are defaulted on load
// (see GenerationRecord.ApplyDefaults).
const GenerationRecordSchemaVersion = 2

// PlanKind identifies which of the supported generation workflows a record
// belongs to.
type PlanKind string

const (
	PlanKindDiet        PlanKind = "diet"
	PlanKindWorkoutHome PlanKind = "workout_home"
	PlanKindWorkoutGym  PlanKind = "workout_gym"
)

// IsValid reports whether k is one of the supported plan kinds.
func (k PlanKind) IsValid() bool {
	switch k {
	case PlanKindDiet, PlanKindWorkoutHome, PlanKindWorkoutGym:
		return true
	}
	return false
}

// IsWorkout reports whether the kind produces a workout plan (home or gym).
func (k PlanKind) IsWorkout() bool {
	return k == PlanKindWorkoutHome || k == PlanKindWorkoutGym
}

// GenerationPhase is the lifecycle phase of a GenerationRecord.
// Transitions are monotonic: conversation -> generating -> completed|failed.
// A record never regresses; retrying means creating a new record.
type GenerationPhase string

const (
	PhaseConversation GenerationPhase = "conversation"
	PhaseGenerating   GenerationPhase = "generating"
	PhaseCompleted    GenerationPhase = "completed"
	PhaseFailed       GenerationPhase = "failed"
)

// IsTerminal reports whether the phase admits no further transitions.
func (p GenerationPhase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// TurnRole distinguishes who authored a conversation turn.
type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
)

// ResponseKind classifies an assistant turn: either another clarifying
// question, or a signal that enough context has been gathered to generate.
type ResponseKind string

const (
	ResponseQuestion ResponseKind = "question"
	ResponseReady    ResponseKind = "ready"
)

// Turn is a single entry in a generation record's conversation log.
// Insertion order is meaningful: the backend always receives the full
// ordered history on every call.
type Turn struct {
	Role         TurnRole     `bson:"role" json:"role"`
	Text         string       `bson:"text" json:"text"`
	ResponseKind ResponseKind `bson:"responseKind,omitempty" json:"responseKind,omitempty"` // assistant turns only
	Timestamp    time.Time    `bson:"timestamp" json:"timestamp"`
}

// GenerationRecord is the persisted unit of plan-generation work: the
// conversation gathered so far, the accumulated context, and the phase the
// workflow has reached. It survives process death; the recovery sweep resumes
// or finalizes whatever phase was last persisted.
type GenerationRecord struct {
	ID               primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	OwnerID          primitive.ObjectID  `bson:"ownerId" json:"ownerId"`
	PlanKind         PlanKind            `bson:"planKind" json:"planKind"`
	Conversation     []Turn              `bson:"conversation" json:"conversation"`
	CollectedContext string              `bson:"collectedContext" json:"collectedContext"` // append-only, never truncated
	Phase            GenerationPhase     `bson:"phase" json:"phase"`
	MessageCount     int                 `bson:"messageCount" json:"messageCount"` // user turns only
	ResultPlanID     *primitive.ObjectID `bson:"resultPlanId,omitempty" json:"resultPlanId,omitempty"`
	ErrorMessage     string              `bson:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	NotificationSent bool                `bson:"notificationSent" json:"notificationSent"`
	IsArchived       bool                `bson:"isArchived" json:"isArchived"`
	ArchivedAt       *time.Time          `bson:"archivedAt,omitempty" json:"archivedAt,omitempty"`
	CreatedAt        time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time           `bson:"updatedAt" json:"updatedAt"`
	CompletedAt      *time.Time          `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	SchemaVersion    int                 `bson:"schemaVersion" json:"schemaVersion"`
}

// ApplyDefaults normalizes a record decoded from an older schema version.
// Missing fields come back as zero values; anything that can be re-derived
// from data that was always present is re-derived rather than lost.
func (r *GenerationRecord) ApplyDefaults() {
	if r.SchemaVersion == 0 {
		r.SchemaVersion = 1
	}
	if r.Phase == "" {
		r.Phase = PhaseConversation
	}
	// messageCount was added after the conversation log; recompute when absent.
	if r.MessageCount == 0 && len(r.Conversation) > 0 {
		r.MessageCount = r.UserTurnCount()
	}
}

// UserTurnCount counts the turns authored by the user. The persisted
// messageCount must always equal this.
func (r *GenerationRecord) UserTurnCount() int {
	n := 0
	for _, t := range r.Conversation {
		if t.Role == RoleUser {
			n++
		}
	}
	return n
}

// LastAssistantTurn returns the most recent assistant turn, or nil if the
// conversation has none yet.
func (r *GenerationRecord) LastAssistantTurn() *Turn {
	for i := len(r.Conversation) - 1; i >= 0; i-- {
		if r.Conversation[i].Role == RoleAssistant {
			return &r.Conversation[i]
		}
	}
	return nil
}

// ReadySignalled reports whether the backend has already declared the
// gathered context sufficient for generation.
func (r *GenerationRecord) ReadySignalled() bool {
	last := r.LastAssistantTurn()
	return last != nil && last.ResponseKind == ResponseReady
}
