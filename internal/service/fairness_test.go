package service

import (
	"testing"
	"time"

	"proofly_backend/internal/model"

	"github.com/google/go-cmp/cmp"
)

func fairnessBase() FairnessInput {
	requested := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	deadline := requested.Add(72 * time.Hour)
	return FairnessInput{
		Evaluation: &model.EvaluationResult{
			PatternsDetected: []string{"copy_paste_burst", "idle_gap", "paste_from_external"},
		},
		Kind:                    model.DecisionReject,
		Justification:           "three independent assistance patterns with no explanation",
		ExplanationRequestedAt:  &requested,
		ExplanationDeadline:     &deadline,
		StudentExplanation:      "I pasted my own snippet library",
		MinimumPatternThreshold: 3,
		Now:                     deadline.Add(time.Hour),
	}
}

func TestEvaluateFairnessAllChecksPass(t *testing.T) {
	v := EvaluateFairness(fairnessBase())
	if !v.CanProceed {
		t.Fatalf("expected reject to proceed, failing checks: %v", v.FailingReasons())
	}
	if !v.StudentRightsHonored {
		t.Error("expected student rights honored")
	}
	if v.PatternCount != 3 {
		t.Errorf("PatternCount = %d, want 3", v.PatternCount)
	}
}

func TestEvaluateFairnessPatternThresholdBlocks(t *testing.T) {
	in := fairnessBase()
	in.Evaluation.PatternsDetected = []string{"copy_paste_burst", "copy_paste_burst", "idle_gap"}

	v := EvaluateFairness(in)
	if v.CanProceed {
		t.Fatal("reject with 2 distinct patterns must be blocked")
	}
	if v.PatternCount != 2 {
		t.Errorf("PatternCount = %d, want 2 (duplicates collapse)", v.PatternCount)
	}

	var failing []string
	for _, c := range v.Checks {
		if !c.Passed {
			failing = append(failing, c.Check)
		}
	}
	want := []string{CheckPatternThreshold}
	if diff := cmp.Diff(want, failing); diff != "" {
		t.Errorf("failing checks mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateFairnessEmptyJustificationBlocks(t *testing.T) {
	in := fairnessBase()
	in.Justification = ""

	v := EvaluateFairness(in)
	if v.CanProceed {
		t.Fatal("reject without justification must be blocked")
	}
}

func TestEvaluateFairnessOpenExplanationWindowBlocks(t *testing.T) {
	in := fairnessBase()
	in.StudentExplanation = ""
	in.Now = in.ExplanationDeadline.Add(-time.Hour)

	v := EvaluateFairness(in)
	if v.CanProceed {
		t.Fatal("reject while the explanation window is still open must be blocked")
	}
	if v.StudentRightsHonored {
		t.Error("open window without explanation means rights not yet honored")
	}
}

func TestEvaluateFairnessExpiredWindowWithoutExplanation(t *testing.T) {
	// Window closed with no explanation given: the student had their chance.
	in := fairnessBase()
	in.StudentExplanation = ""
	in.Now = in.ExplanationDeadline.Add(time.Minute)

	v := EvaluateFairness(in)
	if !v.CanProceed {
		t.Fatalf("expected reject to proceed after window expiry, failing: %v", v.FailingReasons())
	}
}

func TestEvaluateFairnessNeverOfferedWindowBlocks(t *testing.T) {
	in := fairnessBase()
	in.ExplanationRequestedAt = nil
	in.ExplanationDeadline = nil
	in.StudentExplanation = ""

	v := EvaluateFairness(in)
	if v.CanProceed {
		t.Fatal("reject without ever offering an explanation window must be blocked")
	}
}

func TestEvaluateFairnessPositiveDecisionsSkipGate(t *testing.T) {
	for _, kind := range []model.DecisionKind{
		model.DecisionApproveIndependent,
		model.DecisionApproveWithAssistance,
		model.DecisionRequestClarification,
		model.DecisionOfferDefense,
	} {
		in := fairnessBase()
		in.Kind = kind
		in.Justification = ""
		in.Evaluation.PatternsDetected = nil

		v := EvaluateFairness(in)
		if !v.CanProceed {
			t.Errorf("%s: non-negative decision must always proceed", kind)
		}
		if len(v.Checks) != 0 {
			t.Errorf("%s: non-negative decision recorded %d checks, want 0", kind, len(v.Checks))
		}
	}
}

func TestEvaluateFairnessDeterministic(t *testing.T) {
	in := fairnessBase()
	first := EvaluateFairness(in)
	second := EvaluateFairness(in)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("identical inputs produced different validations (-first +second):\n%s", diff)
	}
}

func TestDistinctPatternCountIgnoresEmpty(t *testing.T) {
	if got := distinctPatternCount([]string{"", "a", "a", "b", ""}); got != 2 {
		t.Errorf("distinctPatternCount = %d, want 2", got)
	}
	if got := distinctPatternCount(nil); got != 0 {
		t.Errorf("distinctPatternCount(nil) = %d, want 0", got)
	}
}
