package service

import (
	"fmt"
	"time"

	"proofly_backend/internal/model"
)

// Fairness check names. Each produces one entry in the validation record.
const (
	CheckPatternThreshold  = "pattern_threshold"
	CheckJustification     = "justification_present"
	CheckExplanationWindow = "explanation_window_honored"
)

// FairnessInput is everything the gate may look at. The gate reads it and
// nothing else, so identical inputs always produce identical validations.
type FairnessInput struct {
	Evaluation    *model.EvaluationResult
	Kind          model.DecisionKind
	Justification string

	ExplanationRequestedAt *time.Time
	ExplanationDeadline    *time.Time
	StudentExplanation     string

	MinimumPatternThreshold int
	Now                     time.Time
}

// EvaluateFairness decides whether a reputation-damaging decision is allowed
// to be made. It never mutates state; the caller persists the returned record
// inside the decision row it belongs to.
func EvaluateFairness(in FairnessInput) model.FairnessValidation {
	v := model.FairnessValidation{
		MinimumPatternThreshold: in.MinimumPatternThreshold,
	}

	if in.Evaluation != nil {
		v.PatternCount = distinctPatternCount(in.Evaluation.PatternsDetected)
	}

	if !in.Kind.Negative() {
		// Positive and neutral decisions carry no evidence burden.
		v.CanProceed = true
		v.StudentRightsHonored = true
		return v
	}

	patternCheck := model.FairnessCheck{Check: CheckPatternThreshold, Passed: true}
	if v.PatternCount < in.MinimumPatternThreshold {
		patternCheck.Passed = false
		patternCheck.Details = fmt.Sprintf("pattern_count %d < %d", v.PatternCount, in.MinimumPatternThreshold)
	}
	v.Checks = append(v.Checks, patternCheck)

	justificationCheck := model.FairnessCheck{Check: CheckJustification, Passed: true}
	if in.Justification == "" {
		justificationCheck.Passed = false
		justificationCheck.Details = "reject requires a non-empty justification"
	}
	v.Checks = append(v.Checks, justificationCheck)

	windowCheck := model.FairnessCheck{Check: CheckExplanationWindow, Passed: true}
	switch {
	case in.ExplanationRequestedAt == nil:
		windowCheck.Passed = false
		windowCheck.Details = "student was never offered an explanation window"
	case in.StudentExplanation == "" && (in.ExplanationDeadline == nil || in.Now.Before(*in.ExplanationDeadline)):
		windowCheck.Passed = false
		windowCheck.Details = "explanation window is still open and no explanation was given"
	}
	v.Checks = append(v.Checks, windowCheck)
	v.StudentRightsHonored = windowCheck.Passed

	v.CanProceed = true
	for _, c := range v.Checks {
		if !c.Passed {
			v.CanProceed = false
			break
		}
	}
	return v
}

// distinctPatternCount counts distinct detected pattern classes, not
// occurrences.
func distinctPatternCount(patterns []string) int {
	seen := make(map[string]struct{}, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		seen[p] = struct{}{}
	}
	return len(seen)
}
