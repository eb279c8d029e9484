package dto

import (
	"time"

	"github.com/h2linker/sendqueue/internal/enum"
)

type WarmupStatus struct {
	PlanTier          enum.PlanTier     `json:"planTier"`
	RiskProfile       *enum.RiskProfile `json:"riskProfile"`
	CurrentDailyLimit int               `json:"currentDailyLimit"`
	EmailsSentToday   int               `json:"emailsSentToday"`
	LastUsageDate     string            `json:"lastUsageDate"`
	WarmupStartedAt   *time.Time        `json:"warmupStartedAt"`
	PlanMax           int               `json:"planMax"`
	EffectiveLimit    int               `json:"effectiveLimit"`
	Remaining         int               `json:"remaining"`
	Phase             enum.WarmupPhase  `json:"phase"`
	IsWarmingUp       bool              `json:"isWarmingUp"`
	IsMaxSpeed        bool              `json:"isMaxSpeed"`
	NeedsProfile      bool              `json:"needsProfile"`
	NextIncrement     int               `json:"nextIncrement"`
}

type SaveCredentialRequest struct {
	Provider    string `json:"provider"`
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password"`
	RiskProfile string `json:"riskProfile"`
}

type SaveCredentialResult struct {
	Seeded  bool          `json:"seeded"`
	Resumed int64         `json:"resumed"`
	Status  *WarmupStatus `json:"status"`
}
