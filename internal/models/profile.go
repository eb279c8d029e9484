package models

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/h2linker/sendqueue/internal/enum"
	"github.com/h2linker/sendqueue/internal/utils"
)

type Profile struct {
	ID                string        `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	PlanTier          enum.PlanTier `gorm:"column:plan_tier;type:varchar(20);not null;default:free" json:"planTier"`
	Role              enum.UserRole `gorm:"column:role;type:varchar(20);not null;default:user" json:"role"`
	FullName          string        `gorm:"column:full_name;type:varchar(255)" json:"fullName"`
	Age               *int          `gorm:"column:age" json:"age"`
	PhoneE164         string        `gorm:"column:phone_e164;type:varchar(32)" json:"phoneE164"`
	ContactEmail      string        `gorm:"column:contact_email;type:varchar(255)" json:"contactEmail"`
	ResumeData        JSONMap       `gorm:"column:resume_data;type:jsonb" json:"resumeData"`
	ResumeUrl         string        `gorm:"column:resume_url;type:text" json:"resumeUrl"`
	Timezone          string        `gorm:"column:timezone;type:varchar(64);default:UTC" json:"timezone"`
	CreditsUsedToday  int           `gorm:"column:credits_used_today;not null;default:0" json:"creditsUsedToday"`
	CreditsResetDate  string        `gorm:"column:credits_reset_date;type:varchar(10)" json:"creditsResetDate"`
	ConsecutiveErrors int           `gorm:"column:consecutive_errors;not null;default:0" json:"consecutiveErrors"`
	CreatedAt         time.Time     `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt         time.Time     `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Profile) TableName() string {
	return "profiles"
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = utils.GenerateNanoIDWithPrefix("user", 16)
	}
	return nil
}

// IsComplete reports whether the applicant data every outgoing email needs is present.
func (p *Profile) IsComplete() bool {
	return strings.TrimSpace(p.FullName) != "" &&
		p.Age != nil &&
		strings.TrimSpace(p.PhoneE164) != "" &&
		strings.TrimSpace(p.ContactEmail) != ""
}

func (p *Profile) Tier() enum.PlanTier {
	return enum.GetPlanTier(string(p.PlanTier))
}
