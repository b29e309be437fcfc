package generation

import (
	"fmt"

	"aifit/coach-app/internal/domain"
)

// DefaultPartialThreshold is the completeness ratio at or above which an
// incomplete payload is still accepted (with disclosure) instead of rejected.
const DefaultPartialThreshold = 0.7

// Verdict is the validation outcome for a generated payload.
type Verdict string

const (
	VerdictAccept        Verdict = "accept"
	VerdictPartialAccept Verdict = "partial_accept"
	VerdictReject        Verdict = "reject"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Issue is one classified validation finding.
type Issue struct {
	Severity Severity
	Message  string
	Location string // e.g. "days[2].lunch"
}

// ValidationResult is the verdict for one generated payload. It is ephemeral:
// the verdict drives the orchestrator and the missing-field disclosure is
// copied onto the plan, but the result itself is never persisted.
type ValidationResult struct {
	Verdict           Verdict
	CompletenessRatio float64
	Issues            []Issue
}

// HasCritical reports whether any issue is critical.
func (r *ValidationResult) HasCritical() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// MissingFields returns up to max issue messages for attaching to a partial
// plan as its disclosure metadata.
func (r *ValidationResult) MissingFields(max int) []string {
	var out []string
	for _, issue := range r.Issues {
		if len(out) >= max {
			break
		}
		out = append(out, issue.Message)
	}
	return out
}

// Summary renders the result as an error message for a failed record: the
// first critical issue, or up to three issues joined when the payload fell
// below the threshold without any critical finding.
func (r *ValidationResult) Summary() string {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical {
			return issue.Message
		}
	}
	msg := ""
	for i, issue := range r.Issues {
		if i >= 3 {
			break
		}
		if msg != "" {
			msg += "; "
		}
		msg += issue.Message
	}
	if msg == "" {
		msg = fmt.Sprintf("generated plan was only %.0f%% complete", r.CompletenessRatio*100)
	}
	return msg
}

// Validator classifies generated payloads against the shape contract for a
// plan kind and decides accept / partial-accept / reject.
type Validator struct {
	partialThreshold float64
}

// NewValidator creates a validator with the given partial-accept threshold.
// The threshold is inclusive: a payload exactly at it is accepted partially.
func NewValidator(partialThreshold float64) *Validator {
	if partialThreshold <= 0 || partialThreshold > 1 {
		partialThreshold = DefaultPartialThreshold
	}
	return &Validator{partialThreshold: partialThreshold}
}

// Validate checks a payload for the given plan kind.
func (v *Validator) Validate(kind domain.PlanKind, payload *PlanPayload) *ValidationResult {
	result := &ValidationResult{}

	if payload == nil || len(payload.Days) == 0 {
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityCritical,
			Message:  "no daily plans present in generated output",
			Location: "days",
		})
		result.Verdict = VerdictReject
		return result
	}

	if kind.IsWorkout() {
		v.validateWorkout(payload, result)
	} else {
		v.validateDiet(payload, result)
	}

	switch {
	case result.CompletenessRatio == 1.0 && len(result.Issues) == 0:
		result.Verdict = VerdictAccept
	case result.CompletenessRatio >= v.partialThreshold && !result.HasCritical():
		result.Verdict = VerdictPartialAccept
	default:
		result.Verdict = VerdictReject
	}
	return result
}

// validateDiet accumulates completeness over the required meal slots:
// PlanDays days x 3 required meals. Snack is optional and never counted.
func (v *Validator) validateDiet(payload *PlanPayload, result *ValidationResult) {
	const requiredSlots = 3 // breakfast, lunch, dinner
	totalExpected := domain.PlanDays * requiredSlots
	present := 0

	if len(payload.Days) > domain.PlanDays {
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("expected %d days, got %d; extra days ignored", domain.PlanDays, len(payload.Days)),
			Location: "days",
		})
	}

	for i := 0; i < domain.PlanDays; i++ {
		if i >= len(payload.Days) {
			result.Issues = append(result.Issues, Issue{
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("day %d is missing", i+1),
				Location: fmt.Sprintf("days[%d]", i),
			})
			continue
		}
		day := payload.Days[i]
		slots := []struct {
			name string
			meal *MealPayload
		}{
			{"breakfast", day.Breakfast},
			{"lunch", day.Lunch},
			{"dinner", day.Dinner},
		}
		for _, slot := range slots {
			loc := fmt.Sprintf("days[%d].%s", i, slot.name)
			if slot.meal == nil {
				result.Issues = append(result.Issues, Issue{
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("day %d has no %s", i+1, slot.name),
					Location: loc,
				})
				continue
			}
			present++
			checkMealFields(slot.meal, i, slot.name, loc, result)
		}
		// Optional slot: field checks only, when it exists at all.
		if day.Snack != nil {
			checkMealFields(day.Snack, i, "snack", fmt.Sprintf("days[%d].snack", i), result)
		}
	}

	result.CompletenessRatio = float64(present) / float64(totalExpected)
}

func checkMealFields(meal *MealPayload, dayIdx int, slot, loc string, result *ValidationResult) {
	if meal.Name == "" {
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("day %d %s has no name", dayIdx+1, slot),
			Location: loc + ".name",
		})
	}
	if len(meal.Ingredients) == 0 {
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("day %d %s has no ingredients", dayIdx+1, slot),
			Location: loc + ".ingredients",
		})
	}
}

// validateWorkout accumulates completeness over the weekly day span. A
// present day counts; a non-rest day without exercises is an issue but still
// present.
func (v *Validator) validateWorkout(payload *PlanPayload, result *ValidationResult) {
	present := 0

	if len(payload.Days) > domain.PlanDays {
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("expected %d days, got %d; extra days ignored", domain.PlanDays, len(payload.Days)),
			Location: "days",
		})
	}

	for i := 0; i < domain.PlanDays; i++ {
		if i >= len(payload.Days) {
			result.Issues = append(result.Issues, Issue{
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("day %d is missing", i+1),
				Location: fmt.Sprintf("days[%d]", i),
			})
			continue
		}
		present++
		day := payload.Days[i]
		if day.RestDay {
			continue
		}
		if len(day.Exercises) == 0 {
			result.Issues = append(result.Issues, Issue{
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("day %d has no exercises and is not a rest day", i+1),
				Location: fmt.Sprintf("days[%d].exercises", i),
			})
			continue
		}
		for j, e := range day.Exercises {
			if e.Name == "" {
				result.Issues = append(result.Issues, Issue{
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("day %d exercise %d has no name", i+1, j+1),
					Location: fmt.Sprintf("days[%d].exercises[%d].name", i, j),
				})
			}
		}
	}

	result.CompletenessRatio = float64(present) / float64(domain.PlanDays)
}
