package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/h2linker/sendqueue/internal/enum"
	"github.com/h2linker/sendqueue/internal/utils"
)

// SendHistoryEntry is insert-only.
type SendHistoryEntry struct {
	ID            string                  `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	QueueID       string                  `gorm:"column:queue_id;type:varchar(50);not null;index" json:"queueId"`
	UserID        string                  `gorm:"column:user_id;type:varchar(50);not null;index" json:"userId"`
	SentAt        time.Time               `gorm:"column:sent_at;type:timestamp;not null" json:"sentAt"`
	Status        enum.SendStatus         `gorm:"column:status;type:varchar(20);not null" json:"status"`
	ErrorMessage  *string                 `gorm:"column:error_message;type:text" json:"errorMessage"`
	ErrorCategory *enum.SmtpErrorCategory `gorm:"column:error_category;type:varchar(40)" json:"errorCategory"`
	TrackingID    string                  `gorm:"column:tracking_id;type:varchar(64);index" json:"trackingId"`
	OpenedAt      *time.Time              `gorm:"column:opened_at;type:timestamp" json:"openedAt"`
}

func (SendHistoryEntry) TableName() string {
	return "queue_send_history"
}

func (h *SendHistoryEntry) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = utils.GenerateNanoIDWithPrefix("hist", 16)
	}
	if h.SentAt.IsZero() {
		h.SentAt = utils.Now()
	}
	return nil
}
