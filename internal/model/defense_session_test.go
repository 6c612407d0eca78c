package model

import (
	"testing"
	"time"
)

func TestDefenseSessionRemainingBeforeStart(t *testing.T) {
	s := &DefenseSession{BudgetMinutes: 30}
	if got := s.Remaining(time.Now()); got != 30*time.Minute {
		t.Errorf("Remaining = %v, want full budget before start", got)
	}
	if s.Expired(time.Now()) {
		t.Error("a session that never started cannot be expired")
	}
}

func TestDefenseSessionRemainingCountsDown(t *testing.T) {
	started := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	s := &DefenseSession{BudgetMinutes: 30, StartedAt: &started}

	if got := s.Remaining(started.Add(10 * time.Minute)); got != 20*time.Minute {
		t.Errorf("Remaining after 10m = %v, want 20m", got)
	}
	if s.Expired(started.Add(29 * time.Minute)) {
		t.Error("session must not be expired inside the budget")
	}
	if !s.Expired(started.Add(30 * time.Minute)) {
		t.Error("session must be expired exactly at budget exhaustion")
	}
	if !s.Expired(started.Add(time.Hour)) {
		t.Error("session must stay expired past the budget")
	}
}
