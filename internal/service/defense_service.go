package service

import (
	"fmt"
	"time"

	"proofly_backend/internal/config"
	"proofly_backend/internal/model"
	"proofly_backend/internal/repository"
	"proofly_backend/internal/util"
	"proofly_backend/pkg/logger"
	"proofly_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const reasonTimedOut = "TimedOut"

// trustLedger and receiptChain are the slices of TrustService and
// ReceiptService the coordinator calls; tests substitute fakes.
type trustLedger interface {
	GetScore(studentID uint) (*model.TrustScore, error)
	AppendEventTx(tx *gorm.DB, studentID uint, kind model.TrustEventKind, event string, values []model.TrustFactorValue, submissionID uint) (*model.TrustScore, error)
}

type receiptChain interface {
	IssueTx(tx *gorm.DB, sub *model.Submission, ev *model.EvaluationResult, status model.VerificationStatus, trustSnapshot int) (*model.SkillReceipt, error)
	AmendTx(tx *gorm.DB, receiptID string, kind model.AmendmentKind, newStatus model.VerificationStatus, note string) (*model.ReceiptAmendment, error)
}

type DefenseService struct {
	Repo        repository.DefenseStore
	Submissions repository.SubmissionStore
	Receipts    receiptChain
	Trust       trustLedger
	DB          *gorm.DB

	BudgetMinutes int
	locks         *util.KeyMutex
}

func NewDefenseService(repo repository.DefenseStore, submissions repository.SubmissionStore, receipts *ReceiptService, trust *TrustService, db *gorm.DB, cfg config.EngineConfig, locks *util.KeyMutex) *DefenseService {
	return &DefenseService{
		Repo:          repo,
		Submissions:   submissions,
		Receipts:      receipts,
		Trust:         trust,
		DB:            db,
		BudgetMinutes: cfg.DefenseBudgetMinutes,
		locks:         locks,
	}
}

// Schedule creates a session for a submission the orchestrator just moved to
// DefenseOffered. Called with the submission lock already held, inside the
// decision transaction.
func (s *DefenseService) Schedule(tx *gorm.DB, sub *model.Submission, reviewerID uint, questions []string) (*model.DefenseSession, error) {
	if sub.State != model.StateDefenseOffered {
		return nil, util.StateConflict("schedule defense", string(sub.State), util.ErrInvalidTransition)
	}
	if len(questions) == 0 {
		return nil, util.Validationf("a defense session needs at least one question")
	}

	session := &model.DefenseSession{
		SubmissionID:  sub.ID,
		StudentID:     sub.StudentID,
		ReviewerID:    reviewerID,
		State:         model.DefenseScheduled,
		BudgetMinutes: s.BudgetMinutes,
	}
	session.ID = model.GenerateUUID()
	for i, q := range questions {
		session.Questions = append(session.Questions, model.DefenseQuestion{
			SessionID: session.ID,
			Order:     i + 1,
			Question:  q,
			State:     model.QuestionPending,
		})
	}

	if err := s.Repo.Tx(tx).Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *DefenseService) Get(sessionID string) (*model.DefenseSession, error) {
	session, err := s.Repo.FindByID(sessionID)
	if err == gorm.ErrRecordNotFound {
		return nil, util.ErrSessionNotFound
	}
	return session, err
}

// Start moves a scheduled session into progress and stamps the wall clock.
// Remaining budget is computed from that stamp on read; nothing ticks.
func (s *DefenseService) Start(sessionID string) (*model.DefenseSession, error) {
	var session *model.DefenseSession
	err := s.withSession(sessionID, func(sess *model.DefenseSession) error {
		if sess.State != model.DefenseScheduled {
			return util.StateConflict("start defense", string(sess.State), util.ErrInvalidState)
		}
		now := time.Now().UTC()
		sess.State = model.DefenseInProgress
		sess.StartedAt = &now
		if err := s.Repo.Save(sess); err != nil {
			return err
		}
		session = sess
		return nil
	})
	return session, err
}

// Advance records the answer for the active question (if any) and activates
// the next pending one. At most one question is active at any time.
func (s *DefenseService) Advance(sessionID, studentAnswer, reviewerNotes string) (*model.DefenseSession, error) {
	var session *model.DefenseSession
	err := s.withSession(sessionID, func(sess *model.DefenseSession) error {
		if timedOut, err := s.expireIfNeeded(sess); err != nil || timedOut {
			if err != nil {
				return err
			}
			return util.StateConflict("advance defense", string(sess.State), util.ErrSessionNotInProgress)
		}
		if sess.State != model.DefenseInProgress {
			return util.StateConflict("advance defense", string(sess.State), util.ErrSessionNotInProgress)
		}

		var next *model.DefenseQuestion
		answered := false
		for i := range sess.Questions {
			q := &sess.Questions[i]
			switch q.State {
			case model.QuestionActive:
				q.State = model.QuestionCompleted
				q.StudentAnswer = studentAnswer
				q.ReviewerNotes = reviewerNotes
				answered = true
				if err := s.Repo.SaveQuestion(q); err != nil {
					return err
				}
			case model.QuestionPending:
				if next == nil {
					next = q
				}
			}
		}

		// The first advance only activates question one; an answer sent with
		// it has nothing to attach to and must not be silently dropped.
		if !answered && studentAnswer != "" {
			return util.Validationf("no active question to answer yet")
		}

		if next == nil {
			return util.ErrNoPendingQuestions
		}
		next.State = model.QuestionActive
		if err := s.Repo.SaveQuestion(next); err != nil {
			return err
		}
		session = sess
		return nil
	})
	return session, err
}

// Complete finishes the session. Upgraded emits one trust event and one
// receipt amendment; an exceeded budget forces NotUpgraded with reason
// TimedOut no matter what the caller asked for.
func (s *DefenseService) Complete(sessionID string, outcome model.DefenseOutcome, feedback string) (*model.DefenseSession, error) {
	if outcome != model.OutcomeUpgraded && outcome != model.OutcomeNotUpgraded {
		return nil, util.Validationf("unknown defense outcome %q", outcome)
	}

	var session *model.DefenseSession
	err := s.withSession(sessionID, func(sess *model.DefenseSession) error {
		if timedOut, err := s.expireIfNeeded(sess); err != nil {
			return err
		} else if timedOut {
			session = sess
			return nil
		}
		if sess.State != model.DefenseInProgress {
			return util.StateConflict("complete defense", string(sess.State), util.ErrSessionNotInProgress)
		}

		if err := s.finish(sess, outcome, "", feedback); err != nil {
			return err
		}
		session = sess
		return nil
	})
	return session, err
}

// withSession serializes on the owning submission so a defense transition
// never races a review decision for the same submission.
func (s *DefenseService) withSession(sessionID string, fn func(*model.DefenseSession) error) error {
	session, err := s.Repo.FindByID(sessionID)
	if err == gorm.ErrRecordNotFound {
		return util.ErrSessionNotFound
	}
	if err != nil {
		return err
	}

	return s.locks.WithLock(submissionKey(session.SubmissionID), func() error {
		// Reload under the lock; the first read raced other writers.
		sess, err := s.Repo.FindByID(sessionID)
		if err != nil {
			return err
		}
		return fn(sess)
	})
}

// expireIfNeeded auto-completes a session whose budget ran out.
func (s *DefenseService) expireIfNeeded(sess *model.DefenseSession) (bool, error) {
	if sess.State != model.DefenseInProgress || !sess.Expired(time.Now().UTC()) {
		return false, nil
	}
	if err := s.finish(sess, model.OutcomeNotUpgraded, reasonTimedOut, ""); err != nil {
		return false, err
	}
	return true, nil
}

func (s *DefenseService) finish(sess *model.DefenseSession, outcome model.DefenseOutcome, reason, feedback string) error {
	sub, err := s.Submissions.FindByID(sess.SubmissionID)
	if err != nil {
		return err
	}

	performance := 35.0
	eventText := fmt.Sprintf("Defense session %s", outcome)
	if reason == reasonTimedOut {
		eventText = "Defense session timed out"
	}
	if outcome == model.OutcomeUpgraded {
		performance = 85.0
	}

	now := time.Now().UTC()
	err = s.inTx(func(tx *gorm.DB) error {
		sess.State = model.DefenseCompleted
		sess.Outcome = outcome
		sess.OutcomeReason = reason
		sess.Feedback = feedback
		sess.CompletedAt = &now
		if err := s.Repo.Tx(tx).Save(sess); err != nil {
			return err
		}

		if outcome == model.OutcomeUpgraded {
			sub.State = model.StateUpgradedApproved
		} else {
			// The reviewer decides again with the defense on record.
			sub.State = model.StateUnderReview
		}
		if err := s.Submissions.Tx(tx).Save(sub); err != nil {
			return err
		}

		if outcome == model.OutcomeUpgraded {
			if err := s.upgradeReceipt(tx, sub, sess); err != nil {
				return err
			}
		}

		_, err := s.Trust.AppendEventTx(tx, sub.StudentID, model.TrustEventDefenseOutcome, eventText,
			[]model.TrustFactorValue{{Factor: "defense_performance", Value: performance}}, sub.ID)
		return err
	})
	if err != nil {
		return err
	}

	monitoring.DefenseOutcomeCounter.WithLabelValues(string(outcome)).Inc()
	return nil
}

// upgradeReceipt appends the upgrade amendment, issuing the receipt first if
// the defense was offered before any approval produced one. Issuance is
// idempotent on the submission, so an already issued receipt comes back
// unchanged. Runs inside the completion transaction.
func (s *DefenseService) upgradeReceipt(tx *gorm.DB, sub *model.Submission, sess *model.DefenseSession) error {
	ev, err := sub.DecodedEvaluation()
	if err != nil {
		return err
	}
	trust, err := s.Trust.GetScore(sub.StudentID)
	if err != nil {
		return err
	}
	receipt, err := s.Receipts.IssueTx(tx, sub, ev, model.VerifiedWithAssistance, trust.Score)
	if err != nil {
		return err
	}
	if sub.ReceiptID != receipt.ID {
		sub.ReceiptID = receipt.ID
		if err := s.Submissions.Tx(tx).Save(sub); err != nil {
			return err
		}
	}

	note := fmt.Sprintf("Defense session %s upgraded verification on %s", sess.ID, time.Now().UTC().Format(time.RFC3339))
	if sess.Feedback != "" {
		note = sess.Feedback
	}
	if _, err := s.Receipts.AmendTx(tx, receipt.ID, model.AmendmentDefenseUpgrade, model.VerifiedIndependent, note); err != nil {
		logger.Log.Error("defense upgrade amendment failed",
			zap.String("receiptId", receipt.ID), zap.Error(err))
		return err
	}
	return nil
}

// inTx runs fn inside a database transaction; with no database configured
// the stores manage their own consistency.
func (s *DefenseService) inTx(fn func(tx *gorm.DB) error) error {
	if s.DB == nil {
		return fn(nil)
	}
	return s.DB.Transaction(fn)
}

func submissionKey(id uint) string {
	return fmt.Sprintf("submission:%d", id)
}
