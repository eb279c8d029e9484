package models

import (
	"time"

	"github.com/h2linker/sendqueue/internal/enum"
)

// SmtpCredential holds the user's sending mailbox together with its warm-up state.
type SmtpCredential struct {
	UserID            string             `gorm:"column:user_id;type:varchar(50);primaryKey" json:"userId"`
	Provider          enum.EmailProvider `gorm:"column:provider;type:varchar(20);not null;default:gmail" json:"provider"`
	Email             string             `gorm:"column:email;type:varchar(255);not null" json:"email"`
	Password          string             `gorm:"column:password;type:varchar(255)" json:"-"`
	HasPassword       bool               `gorm:"column:has_password;not null;default:false" json:"hasPassword"`
	RiskProfile       *enum.RiskProfile  `gorm:"column:risk_profile;type:varchar(20)" json:"riskProfile"`
	CurrentDailyLimit *int               `gorm:"column:current_daily_limit" json:"currentDailyLimit"`
	EmailsSentToday   int                `gorm:"column:emails_sent_today;not null;default:0" json:"emailsSentToday"`
	PreviousDaySent   int                `gorm:"column:previous_day_sent;not null;default:0" json:"previousDaySent"`
	LastUsageDate     string             `gorm:"column:last_usage_date;type:varchar(10)" json:"lastUsageDate"`
	WarmupStartedAt   *time.Time         `gorm:"column:warmup_started_at;type:timestamp" json:"warmupStartedAt"`
	LastEscalatedAt   *time.Time         `gorm:"column:last_escalated_at;type:timestamp" json:"lastEscalatedAt"`
	CreatedAt         time.Time          `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (SmtpCredential) TableName() string {
	return "smtp_credentials"
}

func (c *SmtpCredential) IsConfigured() bool {
	return c != nil && c.HasPassword && c.Password != "" && c.Email != ""
}
