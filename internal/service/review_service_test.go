package service

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"proofly_backend/internal/model"
	"proofly_backend/internal/repository"
	"proofly_backend/internal/util"

	"gorm.io/gorm"
)

type fakeDecisionStore struct {
	log []model.ReviewDecision
}

func (f *fakeDecisionStore) Tx(tx *gorm.DB) repository.DecisionStore { return f }

func (f *fakeDecisionStore) Append(d *model.ReviewDecision) error {
	f.log = append(f.log, *d)
	return nil
}

func (f *fakeDecisionStore) ListBySubmission(submissionID uint) ([]model.ReviewDecision, error) {
	var out []model.ReviewDecision
	for _, d := range f.log {
		if d.SubmissionID == submissionID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDecisionStore) LastEffective(submissionID uint) (*model.ReviewDecision, error) {
	for i := len(f.log) - 1; i >= 0; i-- {
		if f.log[i].SubmissionID == submissionID && !f.log[i].Blocked {
			return &f.log[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeDefenseScheduler struct {
	questions []string
	err       error
}

func (f *fakeDefenseScheduler) Schedule(tx *gorm.DB, sub *model.Submission, reviewerID uint, questions []string) (*model.DefenseSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.questions = questions
	sess := &model.DefenseSession{SubmissionID: sub.ID, StudentID: sub.StudentID, ReviewerID: reviewerID}
	sess.ID = model.GenerateUUID()
	return sess, nil
}

type reviewFixture struct {
	svc       *ReviewService
	subs      *fakeSubmissionStore
	decisions *fakeDecisionStore
	trust     *fakeTrustLedger
	receipts  *fakeReceiptChain
	defense   *fakeDefenseScheduler
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()
	f := &reviewFixture{
		subs:      newFakeSubmissionStore(),
		decisions: &fakeDecisionStore{},
		trust:     &fakeTrustLedger{score: 50},
		receipts:  newFakeReceiptChain(),
		defense:   &fakeDefenseScheduler{},
	}
	f.svc = &ReviewService{
		Submissions:            f.subs,
		Decisions:              f.decisions,
		Tasks:                  fakeTaskCatalog{},
		Trust:                  f.trust,
		Receipts:               f.receipts,
		Defense:                f.defense,
		PatternThreshold:       3,
		AppealWindowHours:      48,
		ExplanationWindowHours: 24,
		locks:                  util.NewKeyMutex(),
	}
	return f
}

func (f *reviewFixture) addUnderReview(t *testing.T, ev model.EvaluationResult) *model.Submission {
	t.Helper()
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	sub := &model.Submission{
		StudentID:  7,
		VariantID:  "variant-0001",
		State:      model.StateUnderReview,
		Evaluation: raw,
	}
	sub.ID = 42
	f.subs.subs[sub.ID] = sub
	return sub
}

func cleanEvaluation() model.EvaluationResult {
	return model.EvaluationResult{
		CodeQuality:      85,
		ProblemSolving:   80,
		TechnicalSkill:   82,
		Overall:          83,
		PatternsDetected: []string{"copy-paste bursts", "long idle gaps", "search-driven edits"},
	}
}

func TestDecideApproveCommitsReceiptTrustAndDecision(t *testing.T) {
	f := newReviewFixture(t)
	sub := f.addUnderReview(t, cleanEvaluation())

	decision, err := f.svc.Decide(sub.ID, 3, DecideRequest{Kind: model.DecisionApproveIndependent})
	if err != nil {
		t.Fatal(err)
	}
	if decision.ResultState != model.StateApprovedIndependent {
		t.Errorf("decision result state = %s", decision.ResultState)
	}
	if sub.State != model.StateApprovedIndependent {
		t.Errorf("submission state = %s, want approved_independent", sub.State)
	}

	receipt := f.receipts.issued[sub.ID]
	if receipt == nil {
		t.Fatal("approval did not issue a receipt")
	}
	if receipt.VerificationStatus != model.VerifiedIndependent {
		t.Errorf("receipt status = %s", receipt.VerificationStatus)
	}
	if sub.ReceiptID != receipt.ID {
		t.Error("submission not linked to its receipt")
	}

	if len(f.trust.events) != 1 || f.trust.events[0].Kind != model.TrustEventTaskCompleted {
		t.Fatalf("trust events = %+v", f.trust.events)
	}
	if len(f.decisions.log) != 1 || f.decisions.log[0].Blocked {
		t.Fatalf("decision log = %+v", f.decisions.log)
	}
}

func TestDecideSurfacesReceiptFailure(t *testing.T) {
	f := newReviewFixture(t)
	sub := f.addUnderReview(t, cleanEvaluation())

	boom := errors.New("receipt store down")
	f.receipts.issueErr = boom

	if _, err := f.svc.Decide(sub.ID, 3, DecideRequest{Kind: model.DecisionApproveIndependent}); !errors.Is(err, boom) {
		t.Fatalf("issuance failure surfaced as %v", err)
	}
}

func TestDecideRejectBlockedByFairnessGate(t *testing.T) {
	f := newReviewFixture(t)
	ev := cleanEvaluation()
	ev.PatternsDetected = []string{"one lonely pattern"}
	sub := f.addUnderReview(t, ev)

	_, err := f.svc.Decide(sub.ID, 3, DecideRequest{Kind: model.DecisionReject, Justification: "insufficient ownership"})
	var blocked *util.FairnessBlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("under-evidenced reject returned %v", err)
	}

	if sub.State != model.StateUnderReview {
		t.Errorf("blocked reject moved the submission to %s", sub.State)
	}
	if len(f.decisions.log) != 1 || !f.decisions.log[0].Blocked {
		t.Fatalf("blocked attempt must still be logged: %+v", f.decisions.log)
	}
	if len(f.trust.events) != 0 {
		t.Error("blocked reject must not touch the trust ledger")
	}
}

func TestDecideRejectProceedsWhenFair(t *testing.T) {
	f := newReviewFixture(t)
	sub := f.addUnderReview(t, cleanEvaluation())

	requested := time.Now().UTC().Add(-48 * time.Hour)
	deadline := requested.Add(24 * time.Hour)
	sub.ExplanationRequestedAt = &requested
	sub.ExplanationDeadline = &deadline

	if _, err := f.svc.Decide(sub.ID, 3, DecideRequest{Kind: model.DecisionReject, Justification: "patterns confirmed, no explanation given"}); err != nil {
		t.Fatal(err)
	}
	if sub.State != model.StateRejected || sub.RejectedAt == nil {
		t.Fatalf("after reject: state=%s rejectedAt=%v", sub.State, sub.RejectedAt)
	}
	if len(f.trust.events) != 1 || f.trust.events[0].Kind != model.TrustEventPeerReview {
		t.Fatalf("trust events = %+v", f.trust.events)
	}
}

func TestDecideOfferDefenseSchedulesSession(t *testing.T) {
	f := newReviewFixture(t)
	sub := f.addUnderReview(t, cleanEvaluation())

	questions := []string{"walk me through the retry logic"}
	if _, err := f.svc.Decide(sub.ID, 3, DecideRequest{Kind: model.DecisionOfferDefense, DefenseQuestions: questions}); err != nil {
		t.Fatal(err)
	}
	if sub.State != model.StateDefenseOffered {
		t.Errorf("submission state = %s, want defense_offered", sub.State)
	}
	if len(f.defense.questions) != 1 || f.defense.questions[0] != questions[0] {
		t.Errorf("scheduler received %v", f.defense.questions)
	}
}

func TestDecideRequiresUnderReview(t *testing.T) {
	f := newReviewFixture(t)
	sub := f.addUnderReview(t, cleanEvaluation())
	sub.State = model.StateApprovedIndependent

	if _, err := f.svc.Decide(sub.ID, 3, DecideRequest{Kind: model.DecisionApproveIndependent}); !errors.Is(err, util.ErrInvalidTransition) {
		t.Fatalf("deciding a terminal submission returned %v", err)
	}
}

func TestDecideValidatesRequest(t *testing.T) {
	f := newReviewFixture(t)
	f.addUnderReview(t, cleanEvaluation())

	var verr *util.ValidationError
	if _, err := f.svc.Decide(42, 3, DecideRequest{Kind: model.DecisionReject}); !errors.As(err, &verr) {
		t.Fatalf("reject without justification returned %v", err)
	}
	if _, err := f.svc.Decide(42, 3, DecideRequest{Kind: model.DecisionOfferDefense}); !errors.As(err, &verr) {
		t.Fatalf("offer_defense without questions returned %v", err)
	}
	if _, err := f.svc.Decide(42, 3, DecideRequest{Kind: model.DecisionKind("shrug")}); !errors.As(err, &verr) {
		t.Fatalf("unknown kind returned %v", err)
	}
}

func TestAppealReopensWithinWindow(t *testing.T) {
	f := newReviewFixture(t)
	sub := f.addUnderReview(t, cleanEvaluation())
	rejected := time.Now().UTC().Add(-12 * time.Hour)
	sub.State = model.StateRejected
	sub.RejectedAt = &rejected

	got, err := f.svc.Appeal(sub.ID, sub.StudentID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != model.StateUnderReview || got.RejectedAt != nil {
		t.Fatalf("after appeal: %+v", got)
	}
	if len(f.trust.events) != 1 || f.trust.events[0].Kind != model.TrustEventAppealResolution {
		t.Fatalf("trust events = %+v", f.trust.events)
	}
}

func TestAppealOutsideWindow(t *testing.T) {
	f := newReviewFixture(t)
	sub := f.addUnderReview(t, cleanEvaluation())
	rejected := time.Now().UTC().Add(-49 * time.Hour)
	sub.State = model.StateRejected
	sub.RejectedAt = &rejected

	if _, err := f.svc.Appeal(sub.ID, sub.StudentID); !errors.Is(err, util.ErrAppealWindowExpired) {
		t.Fatalf("expired appeal returned %v", err)
	}
	if sub.State != model.StateRejected {
		t.Errorf("expired appeal moved the submission to %s", sub.State)
	}
}
