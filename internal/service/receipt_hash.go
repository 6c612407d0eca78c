package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"proofly_backend/internal/model"
)

// Canonical hash payloads are structs, never maps, so json.Marshal field
// order is fixed and hashes are reproducible by any third party holding the
// published fields.

type receiptCore struct {
	StudentID          uint                     `json:"student_id"`
	TaskID             string                   `json:"task_id"`
	Scores             model.ReceiptScores      `json:"scores"`
	VerificationStatus model.VerificationStatus `json:"verification_status"`
	IssuedAt           string                   `json:"issued_at"`
	Nonce              string                   `json:"nonce"`
}

type amendmentCore struct {
	Seq       int                      `json:"seq"`
	Kind      model.AmendmentKind      `json:"kind"`
	NewStatus model.VerificationStatus `json:"new_status"`
	Note      string                   `json:"note"`
	AmendedAt string                   `json:"amended_at"`
}

// MySQL stores timestamps as datetime(3), so the canonical form truncates to
// milliseconds. A hash computed at issuance must still match after the row is
// reloaded from the database.
func canonicalTime(t time.Time) string {
	return t.UTC().Truncate(time.Millisecond).Format(time.RFC3339Nano)
}

// ComputeReceiptHash digests the canonical serialization of the receipt's
// issuance fields. Any single-field change produces a different digest.
func ComputeReceiptHash(r *model.SkillReceipt) (string, error) {
	scores, err := r.DecodedScores()
	if err != nil {
		return "", err
	}
	core := receiptCore{
		StudentID:          r.StudentID,
		TaskID:             r.TaskID,
		Scores:             scores,
		VerificationStatus: r.VerificationStatus,
		IssuedAt:           canonicalTime(r.IssuedAt),
		Nonce:              r.Nonce,
	}
	payload, err := json.Marshal(core)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// ComputeAmendmentHash digests prevHash || canonical amendment content,
// chaining each amendment to whatever came before it.
func ComputeAmendmentHash(prevHash string, a *model.ReceiptAmendment) (string, error) {
	core := amendmentCore{
		Seq:       a.Seq,
		Kind:      a.Kind,
		NewStatus: a.NewStatus,
		Note:      a.Note,
		AmendedAt: canonicalTime(a.AmendedAt),
	}
	payload, err := json.Marshal(core)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

type ChainLink struct {
	Seq          int    `json:"seq"`
	StoredHash   string `json:"storedHash"`
	ComputedHash string `json:"computedHash"`
	Valid        bool   `json:"valid"`
}

type ChainVerification struct {
	ReceiptValid    bool                     `json:"receiptValid"`
	Links           []ChainLink              `json:"links"`
	ChainValid      bool                     `json:"chainValid"`
	TerminalHash    string                   `json:"terminalHash"`
	EffectiveStatus model.VerificationStatus `json:"effectiveStatus"`
}

// VerifyReceiptChain independently recomputes the full hash chain from the
// published fields. The terminal hash commits to every link, so mutating any
// field of the receipt or of any amendment invalidates verification.
func VerifyReceiptChain(r *model.SkillReceipt, amendments []model.ReceiptAmendment) (*ChainVerification, error) {
	out := &ChainVerification{EffectiveStatus: r.VerificationStatus}

	computed, err := ComputeReceiptHash(r)
	if err != nil {
		return nil, err
	}
	out.ReceiptValid = computed == r.Hash
	out.ChainValid = out.ReceiptValid
	out.TerminalHash = r.Hash

	prev := r.Hash
	for _, a := range amendments {
		link := ChainLink{Seq: a.Seq, StoredHash: a.Hash}
		link.ComputedHash, err = ComputeAmendmentHash(prev, &a)
		if err != nil {
			return nil, err
		}
		link.Valid = link.ComputedHash == a.Hash && a.PrevHash == prev
		if !link.Valid {
			out.ChainValid = false
		}
		if a.NewStatus != "" {
			out.EffectiveStatus = a.NewStatus
		}
		out.Links = append(out.Links, link)
		out.TerminalHash = a.Hash
		prev = a.Hash
	}
	return out, nil
}
