package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
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

// Issuance needs the student's display name and the variant facts; these
// cover just that slice of the user and task repositories.
type userDirectory interface {
	FindByID(id uint) (*model.User, error)
}

type taskCatalog interface {
	FindVariantByID(id string) (*model.TaskVariant, error)
	FindTemplateByID(id uint) (*model.TaskTemplate, error)
}

type ReceiptService struct {
	Repo    repository.ReceiptStore
	Users   userDirectory
	Tasks   taskCatalog
	Storage *StorageService
	DB      *gorm.DB

	BaseURL string
	locks   *util.KeyMutex
}

func NewReceiptService(repo repository.ReceiptStore, users *repository.UserRepository, tasks *repository.TaskRepository, storage *StorageService, db *gorm.DB, cfg config.EngineConfig) *ReceiptService {
	return &ReceiptService{
		Repo:    repo,
		Users:   users,
		Tasks:   tasks,
		Storage: storage,
		DB:      db,
		BaseURL: cfg.ReceiptBaseURL,
		locks:   util.NewKeyMutex(),
	}
}

// Issue creates the receipt for an approved submission. The idempotency key
// is the submission ID: a second call returns the already issued receipt
// unchanged, never a second hash.
func (s *ReceiptService) Issue(sub *model.Submission, ev *model.EvaluationResult, status model.VerificationStatus, trustSnapshot int) (*model.SkillReceipt, error) {
	var receipt *model.SkillReceipt
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		r, err := s.IssueTx(tx, sub, ev, status, trustSnapshot)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// IssueTx issues inside a caller-owned transaction so that the approval
// decision and its receipt commit or roll back together.
func (s *ReceiptService) IssueTx(tx *gorm.DB, sub *model.Submission, ev *model.EvaluationResult, status model.VerificationStatus, trustSnapshot int) (*model.SkillReceipt, error) {
	if ev == nil {
		return nil, util.Validationf("submission %d has no evaluation result", sub.ID)
	}

	repo := s.Repo.Tx(tx)
	existing, err := repo.FindBySubmissionID(sub.ID)
	if err == nil {
		return existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	student, err := s.Users.FindByID(sub.StudentID)
	if err != nil {
		return nil, err
	}
	variant, err := s.Tasks.FindVariantByID(sub.VariantID)
	if err != nil {
		return nil, err
	}
	var template *model.TaskTemplate
	if variant.TemplateID != 0 {
		template, _ = s.Tasks.FindTemplateByID(variant.TemplateID)
	}

	scores, err := json.Marshal(model.ReceiptScores{
		CodeQuality:    ev.CodeQuality,
		ProblemSolving: ev.ProblemSolving,
		TechnicalSkill: ev.TechnicalSkill,
		Overall:        ev.Overall,
	})
	if err != nil {
		return nil, err
	}

	receipt := &model.SkillReceipt{
		SubmissionID:       sub.ID,
		StudentID:          sub.StudentID,
		StudentName:        student.Name,
		TaskID:             variant.ID,
		TaskTitle:          variant.Title,
		Skills:             variant.Skills,
		VerificationStatus: status,
		Scores:             scores,
		TrustScoreSnapshot: trustSnapshot,
		AIFeedback:         ev.Feedback,
		IssuedAt:           time.Now().UTC().Truncate(time.Millisecond),
		Nonce:              newNonce(),
	}
	receipt.ID = model.GenerateUUID()
	if template != nil {
		receipt.CompanyName = template.CompanyName
	}

	receipt.Hash, err = ComputeReceiptHash(receipt)
	if err != nil {
		return nil, err
	}
	receipt.PublicURL = fmt.Sprintf("%s/receipt/%s", s.BaseURL, receipt.ID)

	if err := repo.Create(receipt); err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		// A racing issuer hit the unique submission index first; theirs is
		// the receipt. A fresh read sees the committed winner.
		if prior, ferr := s.Repo.FindBySubmissionID(sub.ID); ferr == nil {
			return prior, nil
		}
		return nil, util.ErrAlreadyIssued
	}

	monitoring.ReceiptCounter.WithLabelValues(string(status)).Inc()
	s.exportReceipt(receipt, nil)
	return receipt, nil
}

// Amend appends a hash-chained amendment. The original receipt row is never
// touched; viewers derive the effective status from the chain.
func (s *ReceiptService) Amend(receiptID string, kind model.AmendmentKind, newStatus model.VerificationStatus, note string) (*model.ReceiptAmendment, error) {
	var amendment *model.ReceiptAmendment
	err := s.locks.WithLock("receipt:"+receiptID, func() error {
		return s.DB.Transaction(func(tx *gorm.DB) error {
			a, err := s.amend(tx, receiptID, kind, newStatus, note)
			if err != nil {
				return err
			}
			amendment = a
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return amendment, nil
}

// AmendTx amends inside a caller-owned transaction, serialized on the
// receipt so the chain sequence stays gapless.
func (s *ReceiptService) AmendTx(tx *gorm.DB, receiptID string, kind model.AmendmentKind, newStatus model.VerificationStatus, note string) (*model.ReceiptAmendment, error) {
	var amendment *model.ReceiptAmendment
	err := s.locks.WithLock("receipt:"+receiptID, func() error {
		a, err := s.amend(tx, receiptID, kind, newStatus, note)
		if err != nil {
			return err
		}
		amendment = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amendment, nil
}

func (s *ReceiptService) amend(tx *gorm.DB, receiptID string, kind model.AmendmentKind, newStatus model.VerificationStatus, note string) (*model.ReceiptAmendment, error) {
	repo := s.Repo.Tx(tx)

	receipt, err := repo.FindByID(receiptID)
	if err == gorm.ErrRecordNotFound {
		return nil, util.ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}

	prevHash := receipt.Hash
	seq := 1
	if last, err := repo.LastAmendment(receiptID); err == nil {
		prevHash = last.Hash
		seq = last.Seq + 1
	} else if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	a := &model.ReceiptAmendment{
		ReceiptID: receiptID,
		Seq:       seq,
		Kind:      kind,
		NewStatus: newStatus,
		Note:      note,
		AmendedAt: time.Now().UTC().Truncate(time.Millisecond),
		PrevHash:  prevHash,
	}
	a.ID = model.GenerateUUID()
	a.Hash, err = ComputeAmendmentHash(prevHash, a)
	if err != nil {
		return nil, err
	}

	if err := repo.AppendAmendment(a); err != nil {
		return nil, err
	}

	if all, err := repo.Amendments(receiptID); err == nil {
		s.exportReceipt(receipt, all)
	}
	return a, nil
}

type ReceiptPayload struct {
	Receipt    *model.SkillReceipt      `json:"receipt"`
	Amendments []model.ReceiptAmendment `json:"amendments"`
	Chain      *ChainVerification       `json:"chain"`
}

// Get returns the receipt with its full hash chain so callers can verify it
// independently of this service.
func (s *ReceiptService) Get(receiptID string) (*ReceiptPayload, error) {
	receipt, err := s.Repo.FindByID(receiptID)
	if err == gorm.ErrRecordNotFound {
		return nil, util.ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}

	amendments, err := s.Repo.Amendments(receiptID)
	if err != nil {
		return nil, err
	}

	chain, err := VerifyReceiptChain(receipt, amendments)
	if err != nil {
		return nil, err
	}
	if !chain.ChainValid {
		logger.Log.Error("receipt chain failed verification",
			zap.String("receiptId", receiptID),
			zap.String("terminalHash", chain.TerminalHash))
	}

	return &ReceiptPayload{Receipt: receipt, Amendments: amendments, Chain: chain}, nil
}

func (s *ReceiptService) ListByStudent(studentID uint) ([]model.SkillReceipt, error) {
	return s.Repo.ListByStudent(studentID)
}

// exportReceipt uploads a verifiable JSON snapshot next to the receipt's
// public URL. Failure to export never fails issuance.
func (s *ReceiptService) exportReceipt(receipt *model.SkillReceipt, amendments []model.ReceiptAmendment) {
	if s.Storage == nil {
		return
	}
	payload, err := json.Marshal(ReceiptPayload{Receipt: receipt, Amendments: amendments})
	if err != nil {
		return
	}
	name := fmt.Sprintf("receipts/%s.json", receipt.ID)
	if _, err := s.Storage.Upload(context.Background(), name, bytes.NewReader(payload), int64(len(payload)), "application/json"); err != nil {
		logger.Log.Warn("receipt export upload failed", zap.String("receiptId", receipt.ID), zap.Error(err))
	}
}

func newNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
