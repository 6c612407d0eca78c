package service

import (
	"testing"
	"time"

	"proofly_backend/internal/model"
)

func TestNextState(t *testing.T) {
	cases := []struct {
		kind model.DecisionKind
		want model.SubmissionState
	}{
		{model.DecisionApproveIndependent, model.StateApprovedIndependent},
		{model.DecisionApproveWithAssistance, model.StateApprovedWithAssistance},
		{model.DecisionRequestClarification, model.StateClarificationRequested},
		{model.DecisionOfferDefense, model.StateDefenseOffered},
		{model.DecisionReject, model.StateRejected},
	}
	for _, c := range cases {
		if got := nextState(c.kind); got != c.want {
			t.Errorf("nextState(%s) = %s, want %s", c.kind, got, c.want)
		}
	}
}

func TestVerificationValue(t *testing.T) {
	if got := verificationValue(model.DecisionApproveIndependent); got != 90 {
		t.Errorf("independent approval = %v, want 90", got)
	}
	if got := verificationValue(model.DecisionApproveWithAssistance); got != 60 {
		t.Errorf("assisted approval = %v, want 60", got)
	}
}

func TestAppealWindowOpen(t *testing.T) {
	rejected := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"immediately", rejected, true},
		{"one hour in", rejected.Add(time.Hour), true},
		{"exactly at boundary", rejected.Add(48 * time.Hour), true},
		{"just past boundary", rejected.Add(48*time.Hour + time.Second), false},
		{"long expired", rejected.Add(30 * 24 * time.Hour), false},
	}
	for _, c := range cases {
		if got := appealWindowOpen(rejected, c.now, 48); got != c.want {
			t.Errorf("%s: appealWindowOpen = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestSubmissionStateTerminal(t *testing.T) {
	terminal := []model.SubmissionState{
		model.StateApprovedIndependent,
		model.StateApprovedWithAssistance,
		model.StateUpgradedApproved,
		model.StateRejected,
	}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}

	open := []model.SubmissionState{
		model.StateSubmitted,
		model.StateUnderReview,
		model.StateClarificationRequested,
		model.StateDefenseOffered,
	}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
}

func TestDecisionKindValidation(t *testing.T) {
	if model.DecisionKind("escalate").Valid() {
		t.Error("unknown decision kind must be invalid")
	}
	if !model.DecisionReject.Negative() {
		t.Error("reject is the reputation-damaging decision")
	}
	if model.DecisionApproveIndependent.Negative() {
		t.Error("approvals never need the fairness gate")
	}
}
