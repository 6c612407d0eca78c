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

type fakeDefenseStore struct {
	sessions map[string]*model.DefenseSession
}

func newFakeDefenseStore() *fakeDefenseStore {
	return &fakeDefenseStore{sessions: map[string]*model.DefenseSession{}}
}

func (f *fakeDefenseStore) Tx(tx *gorm.DB) repository.DefenseStore { return f }

func (f *fakeDefenseStore) Create(s *model.DefenseSession) error {
	f.sessions[s.ID] = s
	return nil
}

func (f *fakeDefenseStore) Save(s *model.DefenseSession) error {
	if _, ok := f.sessions[s.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	f.sessions[s.ID] = s
	return nil
}

func (f *fakeDefenseStore) FindByID(id string) (*model.DefenseSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s, nil
}

func (f *fakeDefenseStore) FindBySubmissionID(submissionID uint) (*model.DefenseSession, error) {
	for _, s := range f.sessions {
		if s.SubmissionID == submissionID {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeDefenseStore) SaveQuestion(q *model.DefenseQuestion) error {
	s, ok := f.sessions[q.SessionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for i := range s.Questions {
		if s.Questions[i].Order == q.Order {
			s.Questions[i] = *q
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type fakeSubmissionStore struct {
	subs map[uint]*model.Submission
}

func newFakeSubmissionStore() *fakeSubmissionStore {
	return &fakeSubmissionStore{subs: map[uint]*model.Submission{}}
}

func (f *fakeSubmissionStore) Tx(tx *gorm.DB) repository.SubmissionStore { return f }

func (f *fakeSubmissionStore) Create(s *model.Submission) error {
	f.subs[s.ID] = s
	return nil
}

func (f *fakeSubmissionStore) Save(s *model.Submission) error {
	f.subs[s.ID] = s
	return nil
}

func (f *fakeSubmissionStore) FindByID(id uint) (*model.Submission, error) {
	s, ok := f.subs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s, nil
}

func (f *fakeSubmissionStore) FindOpenByStudentAndVariant(studentID uint, variantID string) (*model.Submission, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeSubmissionStore) ListByStudent(studentID uint) ([]model.Submission, error) {
	return nil, nil
}

func (f *fakeSubmissionStore) ListByState(state model.SubmissionState, page, limit int) ([]model.Submission, int64, error) {
	return nil, 0, nil
}

type trustEvent struct {
	Kind   model.TrustEventKind
	Values []model.TrustFactorValue
}

type fakeTrustLedger struct {
	score  int
	events []trustEvent
}

func (f *fakeTrustLedger) GetScore(studentID uint) (*model.TrustScore, error) {
	return &model.TrustScore{StudentID: studentID, Score: f.score}, nil
}

func (f *fakeTrustLedger) AppendEventTx(tx *gorm.DB, studentID uint, kind model.TrustEventKind, event string, values []model.TrustFactorValue, submissionID uint) (*model.TrustScore, error) {
	f.events = append(f.events, trustEvent{Kind: kind, Values: values})
	return &model.TrustScore{StudentID: studentID, Score: f.score}, nil
}

type fakeReceiptChain struct {
	issued     map[uint]*model.SkillReceipt
	amendments []model.ReceiptAmendment
	issueErr   error
}

func newFakeReceiptChain() *fakeReceiptChain {
	return &fakeReceiptChain{issued: map[uint]*model.SkillReceipt{}}
}

func (f *fakeReceiptChain) IssueTx(tx *gorm.DB, sub *model.Submission, ev *model.EvaluationResult, status model.VerificationStatus, trustSnapshot int) (*model.SkillReceipt, error) {
	if f.issueErr != nil {
		return nil, f.issueErr
	}
	if existing, ok := f.issued[sub.ID]; ok {
		return existing, nil
	}
	r := &model.SkillReceipt{
		SubmissionID:       sub.ID,
		StudentID:          sub.StudentID,
		VerificationStatus: status,
		TrustScoreSnapshot: trustSnapshot,
	}
	r.ID = model.GenerateUUID()
	f.issued[sub.ID] = r
	return r, nil
}

func (f *fakeReceiptChain) AmendTx(tx *gorm.DB, receiptID string, kind model.AmendmentKind, newStatus model.VerificationStatus, note string) (*model.ReceiptAmendment, error) {
	a := model.ReceiptAmendment{
		ReceiptID: receiptID,
		Seq:       len(f.amendments) + 1,
		Kind:      kind,
		NewStatus: newStatus,
		Note:      note,
	}
	f.amendments = append(f.amendments, a)
	return &a, nil
}

type defenseFixture struct {
	svc      *DefenseService
	store    *fakeDefenseStore
	subs     *fakeSubmissionStore
	trust    *fakeTrustLedger
	receipts *fakeReceiptChain
	sub      *model.Submission
}

func newDefenseFixture(t *testing.T, questions ...string) *defenseFixture {
	t.Helper()
	if len(questions) == 0 {
		questions = []string{"Why a map here?", "What breaks at 10x load?"}
	}

	ev, err := json.Marshal(model.EvaluationResult{CodeQuality: 80, Overall: 78})
	if err != nil {
		t.Fatal(err)
	}
	sub := &model.Submission{
		StudentID:  7,
		VariantID:  "variant-0001",
		State:      model.StateDefenseOffered,
		Evaluation: ev,
	}
	sub.ID = 42

	f := &defenseFixture{
		store:    newFakeDefenseStore(),
		subs:     newFakeSubmissionStore(),
		trust:    &fakeTrustLedger{score: 55},
		receipts: newFakeReceiptChain(),
		sub:      sub,
	}
	f.subs.subs[sub.ID] = sub
	f.svc = &DefenseService{
		Repo:          f.store,
		Submissions:   f.subs,
		Receipts:      f.receipts,
		Trust:         f.trust,
		BudgetMinutes: 30,
		locks:         util.NewKeyMutex(),
	}

	if _, err := f.svc.Schedule(nil, sub, 3, questions); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *defenseFixture) sessionID(t *testing.T) string {
	t.Helper()
	sess, err := f.store.FindBySubmissionID(f.sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	return sess.ID
}

func activeQuestions(sess *model.DefenseSession) []int {
	var orders []int
	for _, q := range sess.Questions {
		if q.State == model.QuestionActive {
			orders = append(orders, q.Order)
		}
	}
	return orders
}

func TestScheduleRequiresDefenseOffered(t *testing.T) {
	f := newDefenseFixture(t)

	other := &model.Submission{State: model.StateUnderReview}
	other.ID = 99
	if _, err := f.svc.Schedule(nil, other, 3, []string{"q"}); !errors.Is(err, util.ErrInvalidTransition) {
		t.Fatalf("scheduling outside defense_offered returned %v", err)
	}
}

func TestScheduleNeedsQuestions(t *testing.T) {
	f := newDefenseFixture(t)

	sub := &model.Submission{State: model.StateDefenseOffered}
	sub.ID = 43
	var verr *util.ValidationError
	if _, err := f.svc.Schedule(nil, sub, 3, nil); !errors.As(err, &verr) {
		t.Fatalf("scheduling without questions returned %v", err)
	}
}

func TestStartOnlyFromScheduled(t *testing.T) {
	f := newDefenseFixture(t)
	id := f.sessionID(t)

	sess, err := f.svc.Start(id)
	if err != nil {
		t.Fatal(err)
	}
	if sess.State != model.DefenseInProgress || sess.StartedAt == nil {
		t.Fatalf("after Start: state=%s startedAt=%v", sess.State, sess.StartedAt)
	}

	if _, err := f.svc.Start(id); !errors.Is(err, util.ErrInvalidState) {
		t.Fatalf("second Start returned %v", err)
	}
}

func TestAdvanceKeepsExactlyOneQuestionActive(t *testing.T) {
	f := newDefenseFixture(t, "q1", "q2", "q3")
	id := f.sessionID(t)
	if _, err := f.svc.Start(id); err != nil {
		t.Fatal(err)
	}

	sess, err := f.svc.Advance(id, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if got := activeQuestions(sess); len(got) != 1 || got[0] != 1 {
		t.Fatalf("after first advance, active questions = %v, want [1]", got)
	}

	sess, err = f.svc.Advance(id, "a map gives O(1) lookups", "solid")
	if err != nil {
		t.Fatal(err)
	}
	if got := activeQuestions(sess); len(got) != 1 || got[0] != 2 {
		t.Fatalf("after second advance, active questions = %v, want [2]", got)
	}
	if q := sess.Questions[0]; q.State != model.QuestionCompleted || q.StudentAnswer == "" {
		t.Fatalf("question 1 not completed with the answer: %+v", q)
	}
}

func TestAdvanceRejectsAnswerBeforeFirstQuestion(t *testing.T) {
	f := newDefenseFixture(t)
	id := f.sessionID(t)
	if _, err := f.svc.Start(id); err != nil {
		t.Fatal(err)
	}

	var verr *util.ValidationError
	if _, err := f.svc.Advance(id, "eager answer", ""); !errors.As(err, &verr) {
		t.Fatalf("answer with no active question returned %v", err)
	}
}

func TestAdvancePastLastQuestion(t *testing.T) {
	f := newDefenseFixture(t, "only question")
	id := f.sessionID(t)
	if _, err := f.svc.Start(id); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Advance(id, "", ""); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Advance(id, "final answer", ""); !errors.Is(err, util.ErrNoPendingQuestions) {
		t.Fatalf("advance past the last question returned %v", err)
	}
}

func TestAdvanceRequiresInProgress(t *testing.T) {
	f := newDefenseFixture(t)
	id := f.sessionID(t)

	if _, err := f.svc.Advance(id, "", ""); !errors.Is(err, util.ErrSessionNotInProgress) {
		t.Fatalf("advancing a scheduled session returned %v", err)
	}
}

func TestCompleteUpgradedIssuesReceiptAndAmends(t *testing.T) {
	f := newDefenseFixture(t)
	id := f.sessionID(t)
	if _, err := f.svc.Start(id); err != nil {
		t.Fatal(err)
	}

	sess, err := f.svc.Complete(id, model.OutcomeUpgraded, "strong defense")
	if err != nil {
		t.Fatal(err)
	}
	if sess.State != model.DefenseCompleted || sess.Outcome != model.OutcomeUpgraded {
		t.Fatalf("session after complete: %+v", sess)
	}
	if f.sub.State != model.StateUpgradedApproved {
		t.Errorf("submission state = %s, want upgraded_approved", f.sub.State)
	}

	receipt := f.receipts.issued[f.sub.ID]
	if receipt == nil {
		t.Fatal("upgrade completed without issuing a receipt")
	}
	if receipt.VerificationStatus != model.VerifiedWithAssistance {
		t.Errorf("issued status = %s, want verified_with_assistance before the amendment", receipt.VerificationStatus)
	}
	if f.sub.ReceiptID != receipt.ID {
		t.Errorf("submission not linked to receipt %s", receipt.ID)
	}

	if len(f.receipts.amendments) != 1 {
		t.Fatalf("got %d amendments, want 1", len(f.receipts.amendments))
	}
	a := f.receipts.amendments[0]
	if a.Kind != model.AmendmentDefenseUpgrade || a.NewStatus != model.VerifiedIndependent {
		t.Errorf("amendment = %+v", a)
	}

	if len(f.trust.events) != 1 || f.trust.events[0].Kind != model.TrustEventDefenseOutcome {
		t.Fatalf("trust events = %+v", f.trust.events)
	}
	if v := f.trust.events[0].Values; len(v) != 1 || v[0].Factor != "defense_performance" || v[0].Value != 85 {
		t.Errorf("upgraded defense trust values = %+v", f.trust.events[0].Values)
	}
}

func TestCompleteNotUpgradedReturnsToReview(t *testing.T) {
	f := newDefenseFixture(t)
	id := f.sessionID(t)
	if _, err := f.svc.Start(id); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Complete(id, model.OutcomeNotUpgraded, "gaps in reasoning"); err != nil {
		t.Fatal(err)
	}
	if f.sub.State != model.StateUnderReview {
		t.Errorf("submission state = %s, want under_review for another decision", f.sub.State)
	}
	if len(f.receipts.issued) != 0 || len(f.receipts.amendments) != 0 {
		t.Error("not_upgraded must not touch the receipt chain")
	}
	if v := f.trust.events[0].Values; v[0].Value != 35 {
		t.Errorf("not_upgraded defense trust value = %v, want 35", v[0].Value)
	}
}

func TestCompleteRejectsUnknownOutcome(t *testing.T) {
	f := newDefenseFixture(t)

	var verr *util.ValidationError
	if _, err := f.svc.Complete(f.sessionID(t), model.DefenseOutcome("maybe"), ""); !errors.As(err, &verr) {
		t.Fatalf("unknown outcome returned %v", err)
	}
}

func TestBudgetExhaustionForcesTimedOut(t *testing.T) {
	f := newDefenseFixture(t)
	id := f.sessionID(t)
	if _, err := f.svc.Start(id); err != nil {
		t.Fatal(err)
	}

	sess := f.store.sessions[id]
	late := time.Now().UTC().Add(-time.Duration(sess.BudgetMinutes+1) * time.Minute)
	sess.StartedAt = &late

	if _, err := f.svc.Advance(id, "", ""); !errors.Is(err, util.ErrSessionNotInProgress) {
		t.Fatalf("advance after the budget ran out returned %v", err)
	}

	sess = f.store.sessions[id]
	if sess.State != model.DefenseCompleted || sess.Outcome != model.OutcomeNotUpgraded || sess.OutcomeReason != reasonTimedOut {
		t.Fatalf("expired session not auto-completed: %+v", sess)
	}
	if f.sub.State != model.StateUnderReview {
		t.Errorf("submission state = %s, want under_review after timeout", f.sub.State)
	}
	if len(f.trust.events) != 1 || f.trust.events[0].Values[0].Value != 35 {
		t.Errorf("timeout trust events = %+v", f.trust.events)
	}
}

func TestCompleteAfterBudgetIgnoresRequestedUpgrade(t *testing.T) {
	f := newDefenseFixture(t)
	id := f.sessionID(t)
	if _, err := f.svc.Start(id); err != nil {
		t.Fatal(err)
	}

	sess := f.store.sessions[id]
	late := time.Now().UTC().Add(-time.Duration(sess.BudgetMinutes+1) * time.Minute)
	sess.StartedAt = &late

	got, err := f.svc.Complete(id, model.OutcomeUpgraded, "came in too late")
	if err != nil {
		t.Fatal(err)
	}
	if got.Outcome != model.OutcomeNotUpgraded || got.OutcomeReason != reasonTimedOut {
		t.Fatalf("expired complete produced outcome %s (%s)", got.Outcome, got.OutcomeReason)
	}
	if len(f.receipts.issued) != 0 {
		t.Error("a timed-out session must not issue a receipt")
	}
}

func TestCompleteSurfacesIssuanceFailure(t *testing.T) {
	f := newDefenseFixture(t)
	id := f.sessionID(t)
	if _, err := f.svc.Start(id); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("object store unavailable")
	f.receipts.issueErr = boom

	if _, err := f.svc.Complete(id, model.OutcomeUpgraded, ""); !errors.Is(err, boom) {
		t.Fatalf("issuance failure surfaced as %v", err)
	}
}
