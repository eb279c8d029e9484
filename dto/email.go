package dto

import (
	"github.com/h2linker/sendqueue/internal/enum"
	"github.com/h2linker/sendqueue/internal/models"
)

// Recipient is the job contact resolved from a queue item.
type Recipient struct {
	JobId        string
	IsManual     bool
	Email        string
	Company      string
	JobTitle     string
	VisaType     string
	EtaNumber    string
	Phone        string
	Description  string
	Requirements string
}

type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

type OutgoingEmail struct {
	FromAddress string
	FromName    string
	ToAddress   string
	Subject     string
	BodyHTML    string
	BodyText    string
	MessageID   string
	Headers     map[string]string
	Attachments []Attachment
}

type DomainCheckResult struct {
	Valid   bool   `json:"ok"`
	Domain  string `json:"domain"`
	MxCount int    `json:"mxCount"`
	Reason  string `json:"reason,omitempty"`
}

type ComposeInput struct {
	Tier            enum.PlanTier
	Profile         *models.Profile
	Recipient       *Recipient
	Templates       []*models.EmailTemplate
	FromAddress     string
	QueueTrackingId string
	SendTrackingId  string
}
