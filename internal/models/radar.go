package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/h2linker/sendqueue/internal/utils"
)

// RadarProfile is a saved job search that can auto-queue its matches.
type RadarProfile struct {
	ID         string      `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	UserID     string      `gorm:"column:user_id;type:varchar(50);not null;index" json:"userId"`
	IsActive   bool        `gorm:"column:is_active;not null" json:"isActive"`
	AutoSend   bool        `gorm:"column:auto_send;not null;default:false" json:"autoSend"`
	VisaType   string      `gorm:"column:visa_type;type:varchar(10)" json:"visaType"`
	State      string      `gorm:"column:state;type:varchar(64)" json:"state"`
	MinWage    *float64    `gorm:"column:min_wage" json:"minWage"`
	Categories StringArray `gorm:"column:categories" json:"categories"`
	MaxDaysOld *int        `gorm:"column:max_days_old" json:"maxDaysOld"`
	LastScanAt *time.Time  `gorm:"column:last_scan_at;type:timestamp" json:"lastScanAt"`
	CreatedAt  time.Time   `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (RadarProfile) TableName() string {
	return "radar_profiles"
}

func (r *RadarProfile) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = utils.GenerateNanoIDWithPrefix("radar", 16)
	}
	return nil
}

type RadarMatchedJob struct {
	ID             string    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	UserID         string    `gorm:"column:user_id;type:varchar(50);not null;uniqueIndex:idx_radar_match_user_job,priority:1" json:"userId"`
	JobID          string    `gorm:"column:job_id;type:varchar(50);not null;uniqueIndex:idx_radar_match_user_job,priority:2" json:"jobId"`
	RadarProfileID string    `gorm:"column:radar_profile_id;type:varchar(50);index" json:"radarProfileId"`
	AutoQueued     bool      `gorm:"column:auto_queued;not null;default:false" json:"autoQueued"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (RadarMatchedJob) TableName() string {
	return "radar_matched_jobs"
}

func (m *RadarMatchedJob) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("match", 16)
	}
	return nil
}
