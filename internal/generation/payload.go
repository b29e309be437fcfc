// Package generation holds the plan-generation engine's pure logic: isolating
// a structured payload from raw model output and validating it against the
// shape contract for the plan kind.
package generation

import (
	"aifit/coach-app/internal/domain"
)

// MealPayload mirrors one meal slot as the model emits it.
type MealPayload struct {
	Name         string   `json:"name"`
	Ingredients  []string `json:"ingredients"`
	Instructions string   `json:"instructions"`
	Calories     int      `json:"calories"`
}

// ExercisePayload mirrors one exercise as the model emits it.
type ExercisePayload struct {
	Name        string `json:"name"`
	Sets        int    `json:"sets"`
	Reps        string `json:"reps"`
	RestSeconds int    `json:"rest_seconds"`
	Notes       string `json:"notes"`
}

// DayPayload mirrors one day of the generated plan. Diet and workout plans
// share the envelope; only the fields matching the plan kind are inspected.
type DayPayload struct {
	Day       string            `json:"day"`
	Breakfast *MealPayload      `json:"breakfast"`
	Lunch     *MealPayload      `json:"lunch"`
	Dinner    *MealPayload      `json:"dinner"`
	Snack     *MealPayload      `json:"snack"`
	Focus     string            `json:"focus"`
	RestDay   bool              `json:"rest_day"`
	Exercises []ExercisePayload `json:"exercises"`
}

// PlanPayload is the structured payload extracted from the backend's raw
// generation output, before validation.
type PlanPayload struct {
	Name string       `json:"name"`
	Days []DayPayload `json:"days"`
}

func (m *MealPayload) toDomain() *domain.Meal {
	if m == nil {
		return nil
	}
	return &domain.Meal{
		Name:         m.Name,
		Ingredients:  m.Ingredients,
		Instructions: m.Instructions,
		Calories:     m.Calories,
	}
}

// ToDietDays converts the payload into persisted diet days. Days beyond the
// weekly span are dropped; validation has already flagged them.
func (p *PlanPayload) ToDietDays() []domain.DietDay {
	days := make([]domain.DietDay, 0, len(p.Days))
	for i, d := range p.Days {
		if i >= domain.PlanDays {
			break
		}
		days = append(days, domain.DietDay{
			Day:       d.Day,
			Breakfast: d.Breakfast.toDomain(),
			Lunch:     d.Lunch.toDomain(),
			Dinner:    d.Dinner.toDomain(),
			Snack:     d.Snack.toDomain(),
		})
	}
	return days
}

// ToWorkoutDays converts the payload into persisted workout days.
func (p *PlanPayload) ToWorkoutDays() []domain.WorkoutDay {
	days := make([]domain.WorkoutDay, 0, len(p.Days))
	for i, d := range p.Days {
		if i >= domain.PlanDays {
			break
		}
		exercises := make([]domain.PlanExercise, 0, len(d.Exercises))
		for _, e := range d.Exercises {
			exercises = append(exercises, domain.PlanExercise{
				Name:        e.Name,
				Sets:        e.Sets,
				Reps:        e.Reps,
				RestSeconds: e.RestSeconds,
				Notes:       e.Notes,
			})
		}
		days = append(days, domain.WorkoutDay{
			Day:       d.Day,
			Focus:     d.Focus,
			RestDay:   d.RestDay,
			Exercises: exercises,
		})
	}
	return days
}
