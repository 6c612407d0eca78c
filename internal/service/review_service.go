package service

import (
	"encoding/json"
	"time"

	"proofly_backend/internal/config"
	"proofly_backend/internal/model"
	"proofly_backend/internal/repository"
	"proofly_backend/internal/util"
	"proofly_backend/pkg/monitoring"

	"gorm.io/gorm"
)

// defenseScheduler is the slice of the defense coordinator the orchestrator
// calls when a decision offers a defense.
type defenseScheduler interface {
	Schedule(tx *gorm.DB, sub *model.Submission, reviewerID uint, questions []string) (*model.DefenseSession, error)
}

// ReviewService owns the submission state machine. It is the only component
// with externally visible mutation entry points; every per-submission
// mutation is serialized on the submission key.
type ReviewService struct {
	Submissions repository.SubmissionStore
	Decisions   repository.DecisionStore
	Tasks       taskCatalog
	Trust       trustLedger
	Receipts    receiptChain
	Defense     defenseScheduler
	DB          *gorm.DB

	PatternThreshold       int
	AppealWindowHours      int
	ExplanationWindowHours int
	locks                  *util.KeyMutex
}

func NewReviewService(submissions repository.SubmissionStore, decisions repository.DecisionStore, tasks *repository.TaskRepository, trust *TrustService, receipts *ReceiptService, defense *DefenseService, db *gorm.DB, cfg config.EngineConfig, locks *util.KeyMutex) *ReviewService {
	return &ReviewService{
		Submissions:            submissions,
		Decisions:              decisions,
		Tasks:                  tasks,
		Trust:                  trust,
		Receipts:               receipts,
		Defense:                defense,
		DB:                     db,
		PatternThreshold:       cfg.MinimumPatternThreshold,
		AppealWindowHours:      cfg.AppealWindowHours,
		ExplanationWindowHours: cfg.ExplanationWindowHours,
		locks:                  locks,
	}
}

type SubmitRequest struct {
	VariantID      string          `json:"variantId" binding:"required"`
	CodeSubmission string          `json:"codeSubmission" binding:"required"`
	SessionContext json.RawMessage `json:"sessionContext" binding:"required"`
}

// Submit records a student's attempt at a task variant. The session context
// arrives finalized from the behavioral sensor and is stored read-only.
func (s *ReviewService) Submit(studentID uint, req SubmitRequest) (*model.Submission, error) {
	variant, err := s.Tasks.FindVariantByID(req.VariantID)
	if err == gorm.ErrRecordNotFound {
		return nil, util.ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	if variant.StudentID != studentID {
		return nil, util.ErrPermissionDenied
	}
	if variant.TemplateID != 0 {
		template, err := s.Tasks.FindTemplateByID(variant.TemplateID)
		if err != nil || !template.Active {
			return nil, util.ErrInvalidTask
		}
	}

	var sc model.SessionContext
	if err := json.Unmarshal(req.SessionContext, &sc); err != nil {
		return nil, util.Validationf("malformed session context: %v", err)
	}

	if _, err := s.Submissions.FindOpenByStudentAndVariant(studentID, req.VariantID); err == nil {
		return nil, util.ErrDuplicateSubmission
	} else if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	sub := &model.Submission{
		StudentID:      studentID,
		VariantID:      req.VariantID,
		State:          model.StateSubmitted,
		CodeSubmission: req.CodeSubmission,
		SessionContext: req.SessionContext,
	}
	if err := s.Submissions.Create(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// RecordEvaluation attaches the external evaluator's result and moves the
// submission into review. When the evaluator flags needs_explanation, the
// explanation window opens here, before any reviewer sees the submission.
func (s *ReviewService) RecordEvaluation(submissionID uint, ev *model.EvaluationResult) (*model.Submission, error) {
	if ev == nil {
		return nil, util.Validationf("evaluation result is required")
	}

	var sub *model.Submission
	err := s.locks.WithLock(submissionKey(submissionID), func() error {
		loaded, err := s.loadSubmission(submissionID)
		if err != nil {
			return err
		}
		if loaded.State != model.StateSubmitted {
			return util.StateConflict("record evaluation", string(loaded.State), util.ErrInvalidTransition)
		}

		raw, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		loaded.Evaluation = raw
		loaded.State = model.StateUnderReview
		if ev.NeedsExplanation {
			now := time.Now().UTC()
			deadline := now.Add(time.Duration(s.ExplanationWindowHours) * time.Hour)
			loaded.ExplanationRequestedAt = &now
			loaded.ExplanationDeadline = &deadline
		}
		if err := s.Submissions.Save(loaded); err != nil {
			return err
		}
		sub = loaded
		return nil
	})
	return sub, err
}

type DecideRequest struct {
	Kind             model.DecisionKind `json:"kind" binding:"required"`
	Justification    string             `json:"justification"`
	DefenseQuestions []string           `json:"defenseQuestions"`
}

// Decide applies a reviewer's decision. Negative decisions must pass the
// fairness gate first; a blocked attempt is logged and surfaced, never
// silently downgraded. The submission stays exactly where it was.
func (s *ReviewService) Decide(submissionID, reviewerID uint, req DecideRequest) (*model.ReviewDecision, error) {
	if !req.Kind.Valid() {
		return nil, util.Validationf("unknown decision kind %q", req.Kind)
	}
	if req.Kind == model.DecisionReject && req.Justification == "" {
		return nil, util.Validationf("reject requires a justification")
	}
	if req.Kind == model.DecisionOfferDefense && len(req.DefenseQuestions) == 0 {
		return nil, util.Validationf("offer_defense requires at least one question")
	}

	var decision *model.ReviewDecision
	err := s.locks.WithLock(submissionKey(submissionID), func() error {
		sub, err := s.loadSubmission(submissionID)
		if err != nil {
			return err
		}
		if sub.State.Terminal() {
			return util.StateConflict("decide", string(sub.State), util.ErrInvalidTransition)
		}
		if sub.State != model.StateUnderReview {
			return util.StateConflict("decide", string(sub.State), util.ErrInvalidTransition)
		}

		ev, err := sub.DecodedEvaluation()
		if err != nil {
			return err
		}
		if ev == nil {
			return util.Validationf("submission %d has not been evaluated yet", sub.ID)
		}

		validation := EvaluateFairness(FairnessInput{
			Evaluation:              ev,
			Kind:                    req.Kind,
			Justification:           req.Justification,
			ExplanationRequestedAt:  sub.ExplanationRequestedAt,
			ExplanationDeadline:     sub.ExplanationDeadline,
			StudentExplanation:      sub.StudentExplanation,
			MinimumPatternThreshold: s.PatternThreshold,
			Now:                     time.Now().UTC(),
		})
		fairnessRaw, err := json.Marshal(validation)
		if err != nil {
			return err
		}

		if req.Kind.Negative() && !validation.CanProceed {
			blocked := &model.ReviewDecision{
				SubmissionID:  sub.ID,
				ReviewerID:    reviewerID,
				Kind:          req.Kind,
				Justification: req.Justification,
				Fairness:      fairnessRaw,
				Blocked:       true,
				ResultState:   sub.State,
			}
			if err := s.Decisions.Append(blocked); err != nil {
				return err
			}
			monitoring.FairnessBlockCounter.Inc()
			monitoring.DecisionCounter.WithLabelValues(string(req.Kind), "blocked").Inc()
			return &util.FairnessBlockedError{Reasons: validation.FailingReasons()}
		}

		next := nextState(req.Kind)
		err = s.inTx(func(tx *gorm.DB) error {
			sub.State = next
			switch req.Kind {
			case model.DecisionRequestClarification:
				now := time.Now().UTC()
				deadline := now.Add(time.Duration(s.ExplanationWindowHours) * time.Hour)
				sub.ExplanationRequestedAt = &now
				sub.ExplanationDeadline = &deadline
			case model.DecisionReject:
				now := time.Now().UTC()
				sub.RejectedAt = &now
			}
			if err := s.Submissions.Tx(tx).Save(sub); err != nil {
				return err
			}

			decision = &model.ReviewDecision{
				SubmissionID:  sub.ID,
				ReviewerID:    reviewerID,
				Kind:          req.Kind,
				Justification: req.Justification,
				Explanation:   sub.StudentExplanation,
				Fairness:      fairnessRaw,
				ResultState:   next,
			}
			if err := s.Decisions.Tx(tx).Append(decision); err != nil {
				return err
			}
			return s.afterDecision(tx, sub, ev, req, reviewerID)
		})
		if err != nil {
			return err
		}
		monitoring.DecisionCounter.WithLabelValues(string(req.Kind), "applied").Inc()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decision, nil
}

// afterDecision performs the side effects a decision owes: receipt issuance
// on approval, defense scheduling, trust events. Runs inside the decision
// transaction, still under the submission lock, so a failed side effect rolls
// the state transition back with it.
func (s *ReviewService) afterDecision(tx *gorm.DB, sub *model.Submission, ev *model.EvaluationResult, req DecideRequest, reviewerID uint) error {
	switch req.Kind {
	case model.DecisionApproveIndependent, model.DecisionApproveWithAssistance:
		values := []model.TrustFactorValue{
			{Factor: "code_quality", Value: float64(ev.CodeQuality)},
			{Factor: "consistent_verification", Value: verificationValue(req.Kind)},
		}
		if sub.StudentExplanation != "" {
			values = append(values, model.TrustFactorValue{Factor: "explanation_clarity", Value: 75})
		}
		trust, err := s.Trust.AppendEventTx(tx, sub.StudentID, model.TrustEventTaskCompleted,
			"Completed "+sub.VariantID, values, sub.ID)
		if err != nil {
			return err
		}

		status := model.VerifiedIndependent
		if req.Kind == model.DecisionApproveWithAssistance {
			status = model.VerifiedWithAssistance
		}
		receipt, err := s.Receipts.IssueTx(tx, sub, ev, status, trust.Score)
		if err != nil {
			return err
		}
		sub.ReceiptID = receipt.ID
		return s.Submissions.Tx(tx).Save(sub)

	case model.DecisionOfferDefense:
		_, err := s.Defense.Schedule(tx, sub, reviewerID, req.DefenseQuestions)
		return err

	case model.DecisionReject:
		_, err := s.Trust.AppendEventTx(tx, sub.StudentID, model.TrustEventPeerReview,
			"Submission rejected", []model.TrustFactorValue{
				{Factor: "consistent_verification", Value: 10},
			}, sub.ID)
		return err
	}
	return nil
}

// AddExplanation records the student's response to a clarification request
// and returns the submission to review.
func (s *ReviewService) AddExplanation(submissionID, studentID uint, explanation string) (*model.Submission, error) {
	if explanation == "" {
		return nil, util.Validationf("explanation must not be empty")
	}

	var sub *model.Submission
	err := s.locks.WithLock(submissionKey(submissionID), func() error {
		loaded, err := s.loadSubmission(submissionID)
		if err != nil {
			return err
		}
		if loaded.StudentID != studentID {
			return util.ErrPermissionDenied
		}
		if loaded.State != model.StateClarificationRequested && loaded.State != model.StateUnderReview {
			return util.StateConflict("add explanation", string(loaded.State), util.ErrInvalidTransition)
		}

		loaded.StudentExplanation = explanation
		loaded.State = model.StateUnderReview
		if err := s.Submissions.Save(loaded); err != nil {
			return err
		}
		sub = loaded
		return nil
	})
	return sub, err
}

// Appeal reopens a rejected submission while the appeal window is open.
// An expired window is a distinct failure, not a silent no-op.
func (s *ReviewService) Appeal(submissionID, studentID uint) (*model.Submission, error) {
	var sub *model.Submission
	err := s.locks.WithLock(submissionKey(submissionID), func() error {
		loaded, err := s.loadSubmission(submissionID)
		if err != nil {
			return err
		}
		if loaded.StudentID != studentID {
			return util.ErrPermissionDenied
		}
		if loaded.State != model.StateRejected || loaded.RejectedAt == nil {
			return util.StateConflict("appeal", string(loaded.State), util.ErrInvalidTransition)
		}
		if !appealWindowOpen(*loaded.RejectedAt, time.Now().UTC(), s.AppealWindowHours) {
			return util.ErrAppealWindowExpired
		}

		loaded.State = model.StateUnderReview
		loaded.RejectedAt = nil
		if err := s.inTx(func(tx *gorm.DB) error {
			if err := s.Submissions.Tx(tx).Save(loaded); err != nil {
				return err
			}
			_, err := s.Trust.AppendEventTx(tx, loaded.StudentID, model.TrustEventAppealResolution,
				"Appeal accepted, review reopened", nil, loaded.ID)
			return err
		}); err != nil {
			return err
		}
		sub = loaded
		return nil
	})
	return sub, err
}

// inTx runs fn inside a database transaction; with no database configured
// the stores manage their own consistency.
func (s *ReviewService) inTx(fn func(tx *gorm.DB) error) error {
	if s.DB == nil {
		return fn(nil)
	}
	return s.DB.Transaction(fn)
}

func (s *ReviewService) GetSubmission(submissionID uint) (*model.Submission, error) {
	return s.loadSubmission(submissionID)
}

func (s *ReviewService) DecisionLog(submissionID uint) ([]model.ReviewDecision, error) {
	if _, err := s.loadSubmission(submissionID); err != nil {
		return nil, err
	}
	return s.Decisions.ListBySubmission(submissionID)
}

func (s *ReviewService) ReviewQueue(page, limit int) ([]model.Submission, int64, error) {
	return s.Submissions.ListByState(model.StateUnderReview, page, limit)
}

func (s *ReviewService) loadSubmission(id uint) (*model.Submission, error) {
	sub, err := s.Submissions.FindByID(id)
	if err == gorm.ErrRecordNotFound {
		return nil, util.ErrSubmissionNotFound
	}
	return sub, err
}

// nextState maps an allowed decision kind onto the state it produces.
func nextState(kind model.DecisionKind) model.SubmissionState {
	switch kind {
	case model.DecisionApproveIndependent:
		return model.StateApprovedIndependent
	case model.DecisionApproveWithAssistance:
		return model.StateApprovedWithAssistance
	case model.DecisionRequestClarification:
		return model.StateClarificationRequested
	case model.DecisionOfferDefense:
		return model.StateDefenseOffered
	default:
		return model.StateRejected
	}
}

func verificationValue(kind model.DecisionKind) float64 {
	if kind == model.DecisionApproveIndependent {
		return 90
	}
	return 60
}

// appealWindowOpen reports whether now still falls inside the appeal window
// that opened at rejectedAt.
func appealWindowOpen(rejectedAt, now time.Time, windowHours int) bool {
	return now.Sub(rejectedAt) <= time.Duration(windowHours)*time.Hour
}
