package dto

import "github.com/h2linker/sendqueue/internal/enum"

// DrainRequested asks a worker to drain one user's queue.
type DrainRequested struct {
	UserId   string            `json:"userId"`
	MaxItems int               `json:"maxItems"`
	QueueIds []string          `json:"queueIds,omitempty"`
	Trigger  enum.DrainTrigger `json:"trigger"`
}

type DrainRequest struct {
	UserId string
	// MaxItems <= 0 means the remaining daily budget.
	MaxItems int
	QueueIds []string
	Trigger  enum.DrainTrigger
}

type DrainSummary struct {
	UserId          string `json:"userId,omitempty"`
	Processed       int    `json:"processed"`
	Sent            int    `json:"sent"`
	Failed          int    `json:"failed"`
	Skipped         int    `json:"skipped"`
	Paused          int    `json:"paused"`
	BudgetExhausted bool   `json:"budgetExhausted"`
	OutsideWindow   bool   `json:"outsideWindow"`
	Locked          bool   `json:"locked"`
	CircuitOpen     bool   `json:"circuitOpen"`
	Remaining       int    `json:"remaining"`
}

// Add folds another run into s.
func (s *DrainSummary) Add(other *DrainSummary) {
	if other == nil {
		return
	}
	s.Processed += other.Processed
	s.Sent += other.Sent
	s.Failed += other.Failed
	s.Skipped += other.Skipped
	s.Paused += other.Paused
}

type PremiumDrainSummary struct {
	DrainSummary
	UsersTouched int `json:"usersTouched"`
	UsersFailed  int `json:"usersFailed"`
}
