package service

import (
	"encoding/json"
	"sort"
	"time"

	"proofly_backend/internal/model"
	"proofly_backend/internal/repository"
	"proofly_backend/internal/util"

	"gorm.io/gorm"
)

type PortfolioService struct {
	Users    *repository.UserRepository
	Receipts *repository.ReceiptRepository
	Trust    *TrustService
}

func NewPortfolioService(users *repository.UserRepository, receipts *repository.ReceiptRepository, trust *TrustService) *PortfolioService {
	return &PortfolioService{Users: users, Receipts: receipts, Trust: trust}
}

type SkillSummary struct {
	Skill         string `json:"skill"`
	ReceiptsCount int    `json:"receiptsCount"`
	TopScore      int    `json:"topScore"`
}

type TimelineEntry struct {
	Date      time.Time `json:"date"`
	Event     string    `json:"event"`
	ReceiptID string    `json:"receiptId,omitempty"`
}

type Portfolio struct {
	StudentID     uint                 `json:"studentId"`
	Name          string               `json:"name"`
	Avatar        string               `json:"avatar,omitempty"`
	Bio           string               `json:"bio,omitempty"`
	TrustScore    *model.TrustScore    `json:"trustScore"`
	TotalReceipts int                  `json:"totalReceipts"`
	Receipts      []model.SkillReceipt `json:"receipts"`
	Skills        []SkillSummary       `json:"skills"`
	Timeline      []TimelineEntry      `json:"timeline"`
}

// Get assembles a student's public portfolio from issued receipts and the
// trust aggregate.
func (s *PortfolioService) Get(studentID uint, allowPrivate bool) (*Portfolio, error) {
	user, err := s.Users.FindByID(studentID)
	if err == gorm.ErrRecordNotFound {
		return nil, util.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if !user.PublicPortfolio && !allowPrivate {
		return nil, util.ErrPermissionDenied
	}

	receipts, err := s.Receipts.ListByStudent(studentID)
	if err != nil {
		return nil, err
	}
	trust, err := s.Trust.GetScore(studentID)
	if err != nil {
		return nil, err
	}

	p := &Portfolio{
		StudentID:     studentID,
		Name:          user.Name,
		Avatar:        user.Avatar,
		Bio:           user.Bio,
		TrustScore:    trust,
		TotalReceipts: len(receipts),
		Receipts:      receipts,
		Skills:        skillSummaries(receipts),
	}
	for _, r := range receipts {
		p.Timeline = append(p.Timeline, TimelineEntry{
			Date:      r.IssuedAt,
			Event:     "Earned receipt for " + r.TaskTitle,
			ReceiptID: r.ID,
		})
	}
	return p, nil
}

type CandidateFilter struct {
	Skills            []string `form:"skills"`
	MinTrustScore     int      `form:"minTrustScore"`
	VerificationLevel string   `form:"verificationLevel"`
}

type Candidate struct {
	StudentID     uint     `json:"studentId"`
	Name          string   `json:"name"`
	Avatar        string   `json:"avatar,omitempty"`
	TrustScore    int      `json:"trustScore"`
	TotalReceipts int      `json:"totalReceipts"`
	Skills        []string `json:"skills"`
	TopScores     []int    `json:"topScores"`
}

// Compare lists students matching a recruiter's filters, ranked by trust
// score.
func (s *PortfolioService) Compare(filter CandidateFilter) ([]Candidate, error) {
	students, err := s.Users.ListStudents(nil)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for _, student := range students {
		if !student.PublicPortfolio {
			continue
		}
		receipts, err := s.Receipts.ListByStudent(student.ID)
		if err != nil {
			return nil, err
		}
		if len(receipts) == 0 {
			continue
		}
		trust, err := s.Trust.GetScore(student.ID)
		if err != nil {
			return nil, err
		}
		if trust.Score < filter.MinTrustScore {
			continue
		}

		summaries := skillSummaries(receipts)
		skills := make([]string, 0, len(summaries))
		for _, sk := range summaries {
			skills = append(skills, sk.Skill)
		}
		if len(filter.Skills) > 0 && !containsAll(skills, filter.Skills) {
			continue
		}
		if filter.VerificationLevel != "" && !hasStatus(receipts, model.VerificationStatus(filter.VerificationLevel)) {
			continue
		}

		c := Candidate{
			StudentID:     student.ID,
			Name:          student.Name,
			Avatar:        student.Avatar,
			TrustScore:    trust.Score,
			TotalReceipts: len(receipts),
			Skills:        skills,
		}
		for i, r := range receipts {
			if i >= 3 {
				break
			}
			if scores, err := r.DecodedScores(); err == nil {
				c.TopScores = append(c.TopScores, scores.Overall)
			}
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TrustScore > out[j].TrustScore })
	return out, nil
}

func skillSummaries(receipts []model.SkillReceipt) []SkillSummary {
	idx := make(map[string]*SkillSummary)
	var order []string
	for _, r := range receipts {
		var skills []string
		if err := json.Unmarshal([]byte(r.Skills), &skills); err != nil {
			continue
		}
		scores, _ := r.DecodedScores()
		for _, skill := range skills {
			s, ok := idx[skill]
			if !ok {
				s = &SkillSummary{Skill: skill}
				idx[skill] = s
				order = append(order, skill)
			}
			s.ReceiptsCount++
			if scores.Overall > s.TopScore {
				s.TopScore = scores.Overall
			}
		}
	}
	out := make([]SkillSummary, 0, len(order))
	for _, skill := range order {
		out = append(out, *idx[skill])
	}
	return out
}

func containsAll(haystack, needles []string) bool {
	set := make(map[string]bool, len(haystack))
	for _, h := range haystack {
		set[h] = true
	}
	for _, n := range needles {
		if !set[n] {
			return false
		}
	}
	return true
}

func hasStatus(receipts []model.SkillReceipt, status model.VerificationStatus) bool {
	for _, r := range receipts {
		if r.VerificationStatus == status {
			return true
		}
	}
	return false
}
