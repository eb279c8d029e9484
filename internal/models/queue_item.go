package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/h2linker/sendqueue/internal/enum"
	"github.com/h2linker/sendqueue/internal/utils"
)

type QueueItem struct {
	ID                  string           `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	UserID              string           `gorm:"column:user_id;type:varchar(50);not null;index:idx_my_queue_user_status,priority:1" json:"userId"`
	JobID               *string          `gorm:"column:job_id;type:varchar(50);index" json:"jobId"`
	ManualJobID         *string          `gorm:"column:manual_job_id;type:varchar(50)" json:"manualJobId"`
	Status              enum.QueueStatus `gorm:"column:status;type:varchar(30);not null;default:pending;index:idx_my_queue_user_status,priority:2" json:"status"`
	SendCount           int              `gorm:"column:send_count;not null;default:0" json:"sendCount"`
	SentAt              *time.Time       `gorm:"column:sent_at;type:timestamp" json:"sentAt"`
	OpenedAt            *time.Time       `gorm:"column:opened_at;type:timestamp" json:"openedAt"`
	TrackingID          string           `gorm:"column:tracking_id;type:varchar(64);index" json:"trackingId"`
	LastError           *string          `gorm:"column:last_error;type:text" json:"lastError"`
	LastAttemptAt       *time.Time       `gorm:"column:last_attempt_at;type:timestamp" json:"lastAttemptAt"`
	ProcessingStartedAt *time.Time       `gorm:"column:processing_started_at;type:timestamp" json:"processingStartedAt"`
	CreatedAt           time.Time        `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt           time.Time        `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (QueueItem) TableName() string {
	return "my_queue"
}

func (q *QueueItem) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = utils.GenerateNanoIDWithPrefix("q", 16)
	}
	if q.TrackingID == "" {
		q.TrackingID = utils.NewTrackingId()
	}
	if q.Status == "" {
		q.Status = enum.QueueStatusPending
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = utils.Now()
	}
	return nil
}

// JobRef returns the job the item points at, or an error when the row does not hold exactly one reference.
func (q *QueueItem) JobRef() (JobRef, error) {
	return NewJobRef(q.JobID, q.ManualJobID)
}

// SetJobRef stores the reference in the nullable columns.
func (q *QueueItem) SetJobRef(ref JobRef) {
	q.JobID, q.ManualJobID = nil, nil
	switch r := ref.(type) {
	case PublicJobRef:
		id := r.JobID
		q.JobID = &id
	case ManualJobRef:
		id := r.ManualJobID
		q.ManualJobID = &id
	}
}
