package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/h2linker/sendqueue/internal/utils"
)

type PublicJob struct {
	ID           string     `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Company      string     `gorm:"column:company;type:varchar(255)" json:"company"`
	JobTitle     string     `gorm:"column:job_title;type:varchar(255)" json:"jobTitle"`
	Email        string     `gorm:"column:email;type:varchar(255)" json:"email"`
	Phone        string     `gorm:"column:phone;type:varchar(64)" json:"phone"`
	VisaType     string     `gorm:"column:visa_type;type:varchar(10);index" json:"visaType"`
	State        string     `gorm:"column:state;type:varchar(64);index" json:"state"`
	City         string     `gorm:"column:city;type:varchar(128)" json:"city"`
	Category     string     `gorm:"column:category;type:varchar(128)" json:"category"`
	WageFrom     *float64   `gorm:"column:wage_from" json:"wageFrom"`
	Description  string     `gorm:"column:description;type:text" json:"description"`
	Requirements string     `gorm:"column:requirements;type:text" json:"requirements"`
	PostedDate   *time.Time `gorm:"column:posted_date;type:timestamp;index" json:"postedDate"`
	IsActive     bool       `gorm:"column:is_active;not null" json:"isActive"`
	CreatedAt    time.Time  `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (PublicJob) TableName() string {
	return "public_jobs"
}

func (j *PublicJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = utils.GenerateNanoIDWithPrefix("job", 16)
	}
	return nil
}

type ManualJob struct {
	ID        string    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	UserID    string    `gorm:"column:user_id;type:varchar(50);not null;index" json:"userId"`
	Company   string    `gorm:"column:company;type:varchar(255)" json:"company"`
	JobTitle  string    `gorm:"column:job_title;type:varchar(255)" json:"jobTitle"`
	Email     string    `gorm:"column:email;type:varchar(255)" json:"email"`
	EtaNumber string    `gorm:"column:eta_number;type:varchar(64)" json:"etaNumber"`
	Phone     string    `gorm:"column:phone;type:varchar(64)" json:"phone"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (ManualJob) TableName() string {
	return "manual_jobs"
}

func (j *ManualJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = utils.GenerateNanoIDWithPrefix("mjob", 16)
	}
	return nil
}

type EmailTemplate struct {
	ID        string    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	UserID    string    `gorm:"column:user_id;type:varchar(50);not null;index" json:"userId"`
	Name      string    `gorm:"column:name;type:varchar(255)" json:"name"`
	Subject   string    `gorm:"column:subject;type:varchar(1000)" json:"subject"`
	Body      string    `gorm:"column:body;type:text" json:"body"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (EmailTemplate) TableName() string {
	return "email_templates"
}

func (t *EmailTemplate) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = utils.GenerateNanoIDWithPrefix("tpl", 16)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = utils.Now()
	}
	return nil
}
