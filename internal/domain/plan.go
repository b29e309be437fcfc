package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PlanDays is the span of every generated plan: one unit per day of the week.
const PlanDays = 7

// GenerationStatus records how the plan's payload was accepted.
type GenerationStatus string

const (
	// GenerationComplete means the generated payload passed validation with
	// every expected item present.
	GenerationComplete GenerationStatus = "complete"
	// GenerationPartial means the payload was accepted above the completeness
	// threshold with gaps; MissingFields discloses what was absent.
	GenerationPartial GenerationStatus = "partial"
)

// Meal is a single meal slot within a diet day.
type Meal struct {
	Name         string   `bson:"name" json:"name"`
	Ingredients  []string `bson:"ingredients" json:"ingredients"`
	Instructions string   `bson:"instructions,omitempty" json:"instructions,omitempty"`
	Calories     int      `bson:"calories,omitempty" json:"calories,omitempty"`
}

// DietDay holds the meal slots for one day. Breakfast, lunch and dinner are
// required slots; snack is optional and never counts against completeness.
type DietDay struct {
	Day       string `bson:"day" json:"day"`
	Breakfast *Meal  `bson:"breakfast,omitempty" json:"breakfast,omitempty"`
	Lunch     *Meal  `bson:"lunch,omitempty" json:"lunch,omitempty"`
	Dinner    *Meal  `bson:"dinner,omitempty" json:"dinner,omitempty"`
	Snack     *Meal  `bson:"snack,omitempty" json:"snack,omitempty"`
}

// PlanExercise is a single exercise within a workout day.
type PlanExercise struct {
	Name        string `bson:"name" json:"name"`
	Sets        int    `bson:"sets,omitempty" json:"sets,omitempty"`
	Reps        string `bson:"reps,omitempty" json:"reps,omitempty"` // e.g. "8-12", "30s"
	RestSeconds int    `bson:"restSeconds,omitempty" json:"restSeconds,omitempty"`
	Notes       string `bson:"notes,omitempty" json:"notes,omitempty"`
}

// WorkoutDay holds one day of a workout plan. Rest days carry no exercises.
type WorkoutDay struct {
	Day       string         `bson:"day" json:"day"`
	Focus     string         `bson:"focus,omitempty" json:"focus,omitempty"` // e.g. "Upper body"
	RestDay   bool           `bson:"restDay" json:"restDay"`
	Exercises []PlanExercise `bson:"exercises,omitempty" json:"exercises,omitempty"`
}

// Plan is a generated weekly diet or workout plan. Exactly one of DietDays /
// WorkoutDays is populated, matching Kind. Plans are valid for their week and
// archived (never deleted) once WeekEndDate has passed.
type Plan struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID          primitive.ObjectID `bson:"ownerId" json:"ownerId"`
	Kind             PlanKind           `bson:"kind" json:"kind"`
	Name             string             `bson:"name" json:"name"`
	GenerationStatus GenerationStatus   `bson:"generationStatus" json:"generationStatus"`
	MissingFields    []string           `bson:"missingFields,omitempty" json:"missingFields,omitempty"` // partial plans only, capped
	WeekStartDate    time.Time          `bson:"weekStartDate" json:"weekStartDate"`
	WeekEndDate      time.Time          `bson:"weekEndDate" json:"weekEndDate"`
	DietDays         []DietDay          `bson:"dietDays,omitempty" json:"dietDays,omitempty"`
	WorkoutDays      []WorkoutDay       `bson:"workoutDays,omitempty" json:"workoutDays,omitempty"`
	IsArchived       bool               `bson:"isArchived" json:"isArchived"`
	ArchivedAt       *time.Time         `bson:"archivedAt,omitempty" json:"archivedAt,omitempty"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Expired reports whether the plan's validity window has elapsed.
func (p *Plan) Expired(now time.Time) bool {
	return !p.WeekEndDate.IsZero() && p.WeekEndDate.Before(now)
}

// CoversWeek reports whether the plan's week contains the given instant.
// Used by the recovery sweep to detect a plan that was written before the
// matching record update crashed.
func (p *Plan) CoversWeek(t time.Time) bool {
	return !p.WeekStartDate.After(t) && !p.WeekEndDate.Before(t)
}
