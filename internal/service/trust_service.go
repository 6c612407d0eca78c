package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"proofly_backend/internal/config"
	"proofly_backend/internal/model"
	"proofly_backend/internal/repository"
	"proofly_backend/internal/util"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const trustScoreCacheTTL = 5 * time.Minute

type TrustService struct {
	Repo *repository.TrustRepository
	DB   *gorm.DB
	RDB  *redis.Client

	mu    sync.RWMutex
	cfg   config.EngineConfig
	locks *util.KeyMutex
}

func NewTrustService(repo *repository.TrustRepository, db *gorm.DB, rdb *redis.Client, cfg config.EngineConfig) *TrustService {
	return &TrustService{
		Repo:  repo,
		DB:    db,
		RDB:   rdb,
		cfg:   cfg,
		locks: util.NewKeyMutex(),
	}
}

// UpdateEngineConfig swaps weights and thresholds on config hot reload.
// Existing history entries are untouched; the new values apply from the next
// recomputation.
func (s *TrustService) UpdateEngineConfig(cfg config.EngineConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *TrustService) engineConfig() config.EngineConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// AppendEvent appends one immutable history entry and refreshes the
// materialized aggregate in the same transaction. Appends for one student are
// serialized; the recomputation reads the post-append history, never an
// in-memory delta.
func (s *TrustService) AppendEvent(studentID uint, kind model.TrustEventKind, event string, values []model.TrustFactorValue, submissionID uint) (*model.TrustScore, error) {
	var current *model.TrustScore
	err := s.locks.WithLock(studentKey(studentID), func() error {
		return s.DB.Transaction(func(tx *gorm.DB) error {
			score, err := s.appendEvent(tx, studentID, kind, event, values, submissionID)
			if err != nil {
				return err
			}
			current = score
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCache(studentID)
	return current, nil
}

// AppendEventTx appends inside a caller-owned transaction so that a decision
// and the trust entry it owes commit or roll back together.
func (s *TrustService) AppendEventTx(tx *gorm.DB, studentID uint, kind model.TrustEventKind, event string, values []model.TrustFactorValue, submissionID uint) (*model.TrustScore, error) {
	var current *model.TrustScore
	err := s.locks.WithLock(studentKey(studentID), func() error {
		score, err := s.appendEvent(tx, studentID, kind, event, values, submissionID)
		if err != nil {
			return err
		}
		current = score
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCache(studentID)
	return current, nil
}

func (s *TrustService) appendEvent(tx *gorm.DB, studentID uint, kind model.TrustEventKind, event string, values []model.TrustFactorValue, submissionID uint) (*model.TrustScore, error) {
	cfg := s.engineConfig()

	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}

	repo := s.Repo.Tx(tx)

	history, err := repo.History(studentID)
	if err != nil {
		return nil, err
	}

	entry := model.TrustHistoryEntry{
		StudentID:    studentID,
		Kind:         kind,
		Event:        event,
		FactorValues: raw,
		SubmissionID: submissionID,
	}
	history = append(history, entry)

	computed, err := RecomputeTrustScore(history, cfg.TrustFactors, cfg.LevelThresholds)
	if err != nil {
		return nil, err
	}
	// The new entry records the score it produced; the trend must be derived
	// with that score in place, matching a later replay of the persisted
	// history.
	entry.Score = computed.Score
	history[len(history)-1].Score = computed.Score
	computed.Trend = trendOf(history)

	if err := repo.AppendEntry(&entry); err != nil {
		return nil, err
	}

	breakdown, err := json.Marshal(computed.Breakdown)
	if err != nil {
		return nil, err
	}
	score := model.TrustScore{
		StudentID: studentID,
		Score:     computed.Score,
		Level:     computed.Level,
		Trend:     computed.Trend,
		Breakdown: breakdown,
	}
	if err := repo.UpsertScore(&score); err != nil {
		return nil, err
	}
	return &score, nil
}

// Recompute replays the full persisted history and refreshes the aggregate.
// Used after config changes and by the audit endpoint.
func (s *TrustService) Recompute(studentID uint) (*model.TrustScore, error) {
	cfg := s.engineConfig()

	var current *model.TrustScore
	err := s.locks.WithLock(studentKey(studentID), func() error {
		history, err := s.Repo.History(studentID)
		if err != nil {
			return err
		}
		computed, err := RecomputeTrustScore(history, cfg.TrustFactors, cfg.LevelThresholds)
		if err != nil {
			return err
		}
		breakdown, err := json.Marshal(computed.Breakdown)
		if err != nil {
			return err
		}
		score := model.TrustScore{
			StudentID: studentID,
			Score:     computed.Score,
			Level:     computed.Level,
			Trend:     computed.Trend,
			Breakdown: breakdown,
		}
		if err := s.Repo.UpsertScore(&score); err != nil {
			return err
		}
		current = &score
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCache(studentID)
	return current, nil
}

func (s *TrustService) GetScore(studentID uint) (*model.TrustScore, error) {
	if cached := s.cachedScore(studentID); cached != nil {
		return cached, nil
	}

	score, err := s.Repo.GetScore(studentID)
	if err == gorm.ErrRecordNotFound {
		// No history yet: a fresh student starts from an empty replay.
		return s.Recompute(studentID)
	}
	if err != nil {
		return nil, err
	}

	s.cacheScore(score)
	return score, nil
}

type TrustCenterPayload struct {
	Score            *model.TrustScore            `json:"score"`
	Breakdown        []model.TrustFactorBreakdown `json:"breakdown"`
	ImprovementPaths []model.ImprovementPath      `json:"improvementPaths"`
	History          []model.TrustHistoryEntry    `json:"history"`
}

func (s *TrustService) TrustCenter(studentID uint) (*TrustCenterPayload, error) {
	score, err := s.GetScore(studentID)
	if err != nil {
		return nil, err
	}
	breakdown, err := score.DecodedBreakdown()
	if err != nil {
		return nil, err
	}
	history, err := s.Repo.History(studentID)
	if err != nil {
		return nil, err
	}

	cfg := s.engineConfig()
	paths := make([]model.ImprovementPath, 0, len(cfg.ImprovementPaths))
	for _, p := range cfg.ImprovementPaths {
		paths = append(paths, model.ImprovementPath{
			Action:          p.Action,
			ProjectedImpact: p.ProjectedImpact,
			Description:     p.Description,
		})
	}

	return &TrustCenterPayload{
		Score:            score,
		Breakdown:        breakdown,
		ImprovementPaths: paths,
		History:          history,
	}, nil
}

func (s *TrustService) cachedScore(studentID uint) *model.TrustScore {
	if s.RDB == nil {
		return nil
	}
	data, err := s.RDB.Get(context.Background(), trustCacheKey(studentID)).Bytes()
	if err != nil {
		return nil
	}
	var score model.TrustScore
	if err := json.Unmarshal(data, &score); err != nil {
		return nil
	}
	return &score
}

func (s *TrustService) cacheScore(score *model.TrustScore) {
	if s.RDB == nil {
		return
	}
	data, err := json.Marshal(score)
	if err != nil {
		return
	}
	s.RDB.Set(context.Background(), trustCacheKey(score.StudentID), data, trustScoreCacheTTL)
}

func (s *TrustService) invalidateCache(studentID uint) {
	if s.RDB == nil {
		return
	}
	s.RDB.Del(context.Background(), trustCacheKey(studentID))
}

func trustCacheKey(studentID uint) string {
	return "trust:score:" + strconv.FormatUint(uint64(studentID), 10)
}

func studentKey(studentID uint) string {
	return "student:" + strconv.FormatUint(uint64(studentID), 10)
}

// ComputedTrustScore is the pure replay result before persistence.
type ComputedTrustScore struct {
	Score     int
	Level     model.TrustLevel
	Trend     model.TrustTrend
	Breakdown []model.TrustFactorBreakdown
}

const weightTolerance = 1e-6

// RecomputeTrustScore replays an ordered history against configured factor
// weights. It is deterministic: same history, weights and thresholds always
// produce the same output, with no clock dependency.
func RecomputeTrustScore(history []model.TrustHistoryEntry, factors []config.TrustFactorConfig, thresholds config.TrustLevelThresholds) (ComputedTrustScore, error) {
	var out ComputedTrustScore

	sum := 0.0
	for _, f := range factors {
		sum += f.Weight
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return out, fmt.Errorf("trust factor weights sum to %.6f, expected 1.0", sum)
	}

	// Mean of every observation per factor, over the full history.
	totals := make(map[string]float64, len(factors))
	counts := make(map[string]int, len(factors))
	for _, entry := range history {
		values, err := entry.DecodedFactorValues()
		if err != nil {
			return out, err
		}
		for _, v := range values {
			totals[v.Factor] += clampFloat(v.Value, 0, 100)
			counts[v.Factor]++
		}
	}

	total := 0.0
	out.Breakdown = make([]model.TrustFactorBreakdown, 0, len(factors))
	for _, f := range factors {
		normalized := 0.0
		if counts[f.Name] > 0 {
			normalized = totals[f.Name] / float64(counts[f.Name])
		}
		contribution := f.Weight * normalized
		total += contribution
		out.Breakdown = append(out.Breakdown, model.TrustFactorBreakdown{
			Factor:       f.Name,
			Weight:       f.Weight,
			Contribution: math.Round(contribution*100) / 100,
		})
	}

	out.Score = clampInt(int(math.Round(total)), 0, 100)
	out.Level = levelOf(out.Score, thresholds)
	out.Trend = trendOf(history)
	return out, nil
}

// levelOf maps a score onto the configured level bands.
func levelOf(score int, t config.TrustLevelThresholds) model.TrustLevel {
	switch {
	case score < t.Building:
		return model.LevelBuilding
	case score < t.Developing:
		return model.LevelDeveloping
	case score < t.Established:
		return model.LevelEstablished
	default:
		return model.LevelVerified
	}
}

// trendOf derives the trend from the recorded scores of the last 3 entries:
// strictly increasing is improving, strictly decreasing needs attention,
// anything else is stable.
func trendOf(history []model.TrustHistoryEntry) model.TrustTrend {
	if len(history) < 3 {
		return model.TrendStable
	}
	last := history[len(history)-3:]
	if last[0].Score < last[1].Score && last[1].Score < last[2].Score {
		return model.TrendImproving
	}
	if last[0].Score > last[1].Score && last[1].Score > last[2].Score {
		return model.TrendNeedsAttention
	}
	return model.TrendStable
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
