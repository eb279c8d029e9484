package dto

type GenerateEmailRequest struct {
	ResumeData   map[string]interface{} `json:"resumeData"`
	Company      string                 `json:"company"`
	JobTitle     string                 `json:"jobTitle"`
	VisaType     string                 `json:"visaType"`
	Description  string                 `json:"description"`
	Requirements string                 `json:"requirements"`
}

type GeneratedEmail struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
