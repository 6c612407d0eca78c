package service

import (
	"encoding/json"
	"errors"
	"testing"

	"proofly_backend/internal/model"
	"proofly_backend/internal/repository"
	"proofly_backend/internal/util"

	"gorm.io/gorm"
)

type fakeReceiptStore struct {
	bySubmission map[uint]*model.SkillReceipt
	amendments   map[string][]model.ReceiptAmendment
	createErr    error

	// raceWinner simulates a concurrent issuer: Create fails with a
	// duplicate-key error and the winner becomes visible afterwards.
	raceWinner  *model.SkillReceipt
	raceVisible bool
}

func newFakeReceiptStore() *fakeReceiptStore {
	return &fakeReceiptStore{
		bySubmission: map[uint]*model.SkillReceipt{},
		amendments:   map[string][]model.ReceiptAmendment{},
	}
}

func (f *fakeReceiptStore) Tx(tx *gorm.DB) repository.ReceiptStore { return f }

func (f *fakeReceiptStore) Create(r *model.SkillReceipt) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.raceWinner != nil {
		f.raceVisible = true
		return gorm.ErrDuplicatedKey
	}
	if _, ok := f.bySubmission[r.SubmissionID]; ok {
		return gorm.ErrDuplicatedKey
	}
	f.bySubmission[r.SubmissionID] = r
	return nil
}

func (f *fakeReceiptStore) FindByID(id string) (*model.SkillReceipt, error) {
	for _, r := range f.bySubmission {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeReceiptStore) FindBySubmissionID(submissionID uint) (*model.SkillReceipt, error) {
	if f.raceWinner != nil && f.raceVisible {
		return f.raceWinner, nil
	}
	r, ok := f.bySubmission[submissionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r, nil
}

func (f *fakeReceiptStore) ListByStudent(studentID uint) ([]model.SkillReceipt, error) {
	return nil, nil
}

func (f *fakeReceiptStore) AppendAmendment(a *model.ReceiptAmendment) error {
	f.amendments[a.ReceiptID] = append(f.amendments[a.ReceiptID], *a)
	return nil
}

func (f *fakeReceiptStore) Amendments(receiptID string) ([]model.ReceiptAmendment, error) {
	return f.amendments[receiptID], nil
}

func (f *fakeReceiptStore) LastAmendment(receiptID string) (*model.ReceiptAmendment, error) {
	all := f.amendments[receiptID]
	if len(all) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &all[len(all)-1], nil
}

type fakeUserDirectory struct{}

func (fakeUserDirectory) FindByID(id uint) (*model.User, error) {
	return &model.User{Name: "Dana Obi"}, nil
}

type fakeTaskCatalog struct{}

func (fakeTaskCatalog) FindVariantByID(id string) (*model.TaskVariant, error) {
	v := &model.TaskVariant{TemplateID: 11, Title: "Reconcile ledger entries", Skills: `["go","sql"]`}
	v.ID = id
	return v, nil
}

func (fakeTaskCatalog) FindTemplateByID(id uint) (*model.TaskTemplate, error) {
	t := &model.TaskTemplate{CompanyName: "Northwind", Active: true}
	t.ID = id
	return t, nil
}

func newReceiptFixture(store *fakeReceiptStore) *ReceiptService {
	return &ReceiptService{
		Repo:    store,
		Users:   fakeUserDirectory{},
		Tasks:   fakeTaskCatalog{},
		BaseURL: "https://proofly.test",
		locks:   util.NewKeyMutex(),
	}
}

func approvedSubmission(t *testing.T) (*model.Submission, *model.EvaluationResult) {
	t.Helper()
	ev := &model.EvaluationResult{CodeQuality: 85, ProblemSolving: 80, TechnicalSkill: 82, Overall: 83}
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	sub := &model.Submission{
		StudentID:  7,
		VariantID:  "variant-0001",
		State:      model.StateApprovedIndependent,
		Evaluation: raw,
	}
	sub.ID = 42
	return sub, ev
}

func TestIssueIdempotentPerSubmission(t *testing.T) {
	store := newFakeReceiptStore()
	svc := newReceiptFixture(store)
	sub, ev := approvedSubmission(t)

	first, err := svc.IssueTx(nil, sub, ev, model.VerifiedIndependent, 60)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.IssueTx(nil, sub, ev, model.VerifiedIndependent, 60)
	if err != nil {
		t.Fatal(err)
	}

	if first.ID != second.ID || first.Hash != second.Hash {
		t.Fatalf("re-issue produced a different receipt: %s/%s vs %s/%s",
			first.ID, first.Hash, second.ID, second.Hash)
	}
	if len(store.bySubmission) != 1 {
		t.Fatalf("store holds %d receipts, want 1", len(store.bySubmission))
	}
}

func TestIssueReturnsRacingWinner(t *testing.T) {
	store := newFakeReceiptStore()
	winner := &model.SkillReceipt{SubmissionID: 42, StudentID: 7, Nonce: "cafe"}
	winner.ID = model.GenerateUUID()
	store.raceWinner = winner

	svc := newReceiptFixture(store)
	sub, ev := approvedSubmission(t)

	got, err := svc.IssueTx(nil, sub, ev, model.VerifiedIndependent, 60)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != winner.ID {
		t.Fatalf("lost race must return the winner's receipt, got %s want %s", got.ID, winner.ID)
	}
}

func TestIssueSurfacesStorageErrors(t *testing.T) {
	store := newFakeReceiptStore()
	boom := errors.New("connection reset")
	store.createErr = boom

	svc := newReceiptFixture(store)
	sub, ev := approvedSubmission(t)

	_, err := svc.IssueTx(nil, sub, ev, model.VerifiedIndependent, 60)
	if !errors.Is(err, boom) {
		t.Fatalf("storage failure surfaced as %v", err)
	}
	if errors.Is(err, util.ErrAlreadyIssued) {
		t.Fatal("a non-duplicate failure must not read as already-issued")
	}
}

func TestIssueRequiresEvaluation(t *testing.T) {
	svc := newReceiptFixture(newFakeReceiptStore())
	sub, _ := approvedSubmission(t)

	var verr *util.ValidationError
	if _, err := svc.IssueTx(nil, sub, nil, model.VerifiedIndependent, 60); !errors.As(err, &verr) {
		t.Fatalf("issuing without an evaluation returned %v", err)
	}
}

func TestAmendmentsChainThroughTheStore(t *testing.T) {
	store := newFakeReceiptStore()
	svc := newReceiptFixture(store)
	sub, ev := approvedSubmission(t)

	receipt, err := svc.IssueTx(nil, sub, ev, model.VerifiedWithAssistance, 55)
	if err != nil {
		t.Fatal(err)
	}

	a1, err := svc.AmendTx(nil, receipt.ID, model.AmendmentDefenseUpgrade, model.VerifiedIndependent, "upgraded after defense")
	if err != nil {
		t.Fatal(err)
	}
	a2, err := svc.AmendTx(nil, receipt.ID, model.AmendmentAnnotation, "", "reviewer annotation")
	if err != nil {
		t.Fatal(err)
	}

	if a1.Seq != 1 || a2.Seq != 2 {
		t.Fatalf("amendment sequence = %d, %d", a1.Seq, a2.Seq)
	}
	if a1.PrevHash != receipt.Hash || a2.PrevHash != a1.Hash {
		t.Fatal("amendments must chain off the previous hash")
	}

	v, err := VerifyReceiptChain(receipt, []model.ReceiptAmendment{*a1, *a2})
	if err != nil {
		t.Fatal(err)
	}
	if !v.ChainValid {
		t.Fatalf("stored chain does not verify: %+v", v)
	}
	if v.EffectiveStatus != model.VerifiedIndependent {
		t.Errorf("effective status = %s, want the upgrade to stick", v.EffectiveStatus)
	}
}

func TestAmendUnknownReceipt(t *testing.T) {
	svc := newReceiptFixture(newFakeReceiptStore())

	if _, err := svc.AmendTx(nil, "no-such-receipt", model.AmendmentAnnotation, "", "note"); !errors.Is(err, util.ErrReceiptNotFound) {
		t.Fatalf("amending a missing receipt returned %v", err)
	}
}
