package service

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/rand"

	"proofly_backend/internal/model"
	"proofly_backend/internal/repository"
	"proofly_backend/internal/util"

	"gorm.io/gorm"
)

// VariantGenerator is the contract with the external task generator. The
// engine consumes variants read-only; SeededGenerator is the built-in
// implementation used until a real generator is wired in.
type VariantGenerator interface {
	GenerateVariant(template *model.TaskTemplate, studentID uint, seed string) (*model.TaskVariant, error)
}

type TaskService struct {
	Repo      *repository.TaskRepository
	Generator VariantGenerator
}

func NewTaskService(repo *repository.TaskRepository, generator VariantGenerator) *TaskService {
	if generator == nil {
		generator = SeededGenerator{}
	}
	return &TaskService{Repo: repo, Generator: generator}
}

type TaskTemplateRequest struct {
	Title              string                      `json:"title" binding:"required"`
	Description        string                      `json:"description"`
	CompanyName        string                      `json:"companyName"`
	CompanyLogoURL     string                      `json:"companyLogoUrl"`
	Skills             []string                    `json:"skills" binding:"required"`
	Difficulty         model.TaskDifficulty        `json:"difficulty"`
	EstimatedMinutes   int                         `json:"estimatedMinutes"`
	TimeLimitMinutes   int                         `json:"timeLimitMinutes" binding:"required"`
	Constraints        []string                    `json:"constraints"`
	DynamicParameters  []model.DynamicParameter    `json:"dynamicParameters"`
	EvaluationCriteria []model.EvaluationCriterion `json:"evaluationCriteria"`
	ReviewGuidelines   []model.ReviewGuideline     `json:"reviewGuidelines"`
}

func (s *TaskService) CreateTemplate(creatorID uint, req TaskTemplateRequest) (*model.TaskTemplate, error) {
	if err := ValidateDynamicParameters(req.DynamicParameters); err != nil {
		return nil, err
	}

	skills, _ := json.Marshal(req.Skills)
	constraints, _ := json.Marshal(req.Constraints)
	params, _ := json.Marshal(req.DynamicParameters)
	criteria, _ := json.Marshal(req.EvaluationCriteria)
	guidelines, _ := json.Marshal(req.ReviewGuidelines)

	t := &model.TaskTemplate{
		Title:              req.Title,
		Description:        req.Description,
		CompanyName:        req.CompanyName,
		CompanyLogoURL:     req.CompanyLogoURL,
		Skills:             string(skills),
		Difficulty:         req.Difficulty,
		EstimatedMinutes:   req.EstimatedMinutes,
		TimeLimitMinutes:   req.TimeLimitMinutes,
		Constraints:        string(constraints),
		DynamicParameters:  params,
		EvaluationCriteria: criteria,
		ReviewGuidelines:   guidelines,
		CreatedBy:          creatorID,
		Active:             true,
	}
	if t.Difficulty == "" {
		t.Difficulty = model.DifficultyIntermediate
	}
	if err := s.Repo.CreateTemplate(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TaskService) SetTemplateActive(id uint, active bool) (*model.TaskTemplate, error) {
	t, err := s.Repo.FindTemplateByID(id)
	if err == gorm.ErrRecordNotFound {
		return nil, util.ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Active = active
	if err := s.Repo.UpdateTemplate(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TaskService) ListTemplates(activeOnly bool, page, limit int) ([]model.TaskTemplate, int64, error) {
	return s.Repo.ListTemplates(activeOnly, page, limit)
}

// StartVariant hands the student their variant of a task, reusing an
// existing one so retries do not mint fresh parameters.
func (s *TaskService) StartVariant(templateID, studentID uint, seed string) (*model.TaskVariant, error) {
	template, err := s.Repo.FindTemplateByID(templateID)
	if err == gorm.ErrRecordNotFound {
		return nil, util.ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	if !template.Active {
		return nil, util.ErrInvalidTask
	}

	if existing, err := s.Repo.FindVariantForStudent(templateID, studentID); err == nil {
		return existing, nil
	} else if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	variant, err := s.Generator.GenerateVariant(template, studentID, seed)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.CreateVariant(variant); err != nil {
		return nil, err
	}
	return variant, nil
}

func (s *TaskService) GetVariant(id string) (*model.TaskVariant, error) {
	v, err := s.Repo.FindVariantByID(id)
	if err == gorm.ErrRecordNotFound {
		return nil, util.ErrTaskNotFound
	}
	return v, err
}

// ValidateDynamicParameters checks the tagged-variant shape of template
// parameters so a malformed template is rejected before any variant uses it.
func ValidateDynamicParameters(params []model.DynamicParameter) error {
	for i, p := range params {
		if p.Parameter == "" {
			return util.Validationf("dynamic parameter %d has no name", i)
		}
		switch p.Type {
		case model.ParamRandomNumber, model.ParamRandomString, model.ParamRandomDataset, model.ParamRandomConstraint:
		default:
			return util.Validationf("dynamic parameter %q has unknown type %q", p.Parameter, p.Type)
		}
		if len(p.Options) == 0 {
			return util.Validationf("dynamic parameter %q has no options", p.Parameter)
		}
		for _, opt := range p.Options {
			if err := validateOption(p.Type, opt); err != nil {
				return util.Validationf("dynamic parameter %q: %v", p.Parameter, err)
			}
		}
	}
	return nil
}

func validateOption(t model.ParameterType, opt json.RawMessage) error {
	switch t {
	case model.ParamRandomNumber:
		var n float64
		if err := json.Unmarshal(opt, &n); err != nil {
			return fmt.Errorf("option %s is not a number", opt)
		}
	case model.ParamRandomString, model.ParamRandomConstraint:
		var s string
		if err := json.Unmarshal(opt, &s); err != nil {
			return fmt.Errorf("option %s is not a string", opt)
		}
	case model.ParamRandomDataset:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(opt, &obj); err != nil {
			return fmt.Errorf("option %s is not an object", opt)
		}
	}
	return nil
}

// SeededGenerator resolves each dynamic parameter deterministically from the
// seed, so the same (template, student, seed) triple always yields the same
// variant.
type SeededGenerator struct{}

func (SeededGenerator) GenerateVariant(template *model.TaskTemplate, studentID uint, seed string) (*model.TaskVariant, error) {
	var params []model.DynamicParameter
	if len(template.DynamicParameters) > 0 {
		if err := json.Unmarshal(template.DynamicParameters, &params); err != nil {
			return nil, err
		}
	}
	if err := ValidateDynamicParameters(params); err != nil {
		return nil, err
	}

	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", seed, template.ID, studentID)))
	rng := rand.New(rand.NewSource(int64(binary.BigEndian.Uint64(h[:8]))))

	resolved := make(map[string]json.RawMessage, len(params))
	for _, p := range params {
		resolved[p.Parameter] = p.Options[rng.Intn(len(p.Options))]
	}
	unique, err := json.Marshal(resolved)
	if err != nil {
		return nil, err
	}

	v := &model.TaskVariant{
		TemplateID:       template.ID,
		StudentID:        studentID,
		Title:            template.Title,
		Skills:           template.Skills,
		Difficulty:       template.Difficulty,
		TimeLimitMinutes: template.TimeLimitMinutes,
		VariantSeed:      seed,
		UniqueParameters: unique,
		Instructions:     template.Description,
	}
	v.ID = model.GenerateUUID()
	return v, nil
}
