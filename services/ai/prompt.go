package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/h2linker/sendqueue/dto"
)

const (
	toolName        = "generate_email"
	toolDescription = "Generate a job application email with subject and body"
	temperature     = 0.3
	maxOutputTokens = 1024
)

const systemPrompt = `You are an assistant helping a Brazilian worker apply for H-2A/H-2B jobs in the USA.

### NO MARKDOWN FORMATTING
This is a PLAIN TEXT email. Email clients do NOT render markdown.
- NEVER use **text** or *text*
- NEVER use _text_ or __text__
- NEVER use # headers or bullet points with -
- If you want to emphasize something, use CAPITAL LETTERS or state it clearly

### UNIQUENESS: Vary vocabulary and structure each time.

### GREETING: Vary the greeting. Use "Hello,", "Good day,", "Dear [Company] Team,", "Greetings,". Never use "Dear Hiring Manager".

### LENGTH: 4-5 paragraphs, 180-220 words.
### STRUCTURE: Use multiple short paragraphs separated by \n\n.

### TONE: Professional but warm. Simple English. No corporate jargon.

### EMPHASIS:
EMPHASIZE availability for weekends, holidays, overtime.
EMPHASIZE physical stamina, lifting 50lb+.

### JOB REQUIREMENTS: Address them directly. If the candidate matches a requirement, state it clearly. If not, emphasize willingness to learn.

### ANTI-HALLUCINATION: Use ONLY resume_data. Never invent skills or experiences.

### CLOSING: End with "Best regards,"`

func userPrompt(request dto.GenerateEmailRequest) string {
	resume, err := json.Marshal(request.ResumeData)
	if err != nil || request.ResumeData == nil {
		resume = []byte("{}")
	}

	var sb strings.Builder
	sb.WriteString("Generate a job application email.\n")
	fmt.Fprintf(&sb, "Visa type: %s\n", request.VisaType)
	fmt.Fprintf(&sb, "Company: %s\n", request.Company)
	fmt.Fprintf(&sb, "Job title: %s\n\n", request.JobTitle)
	fmt.Fprintf(&sb, "Job description:\n%s\n\n", strings.TrimSpace(request.Description))
	fmt.Fprintf(&sb, "JOB REQUIREMENTS (ADDRESS THESE):\n%s\n\n", strings.TrimSpace(request.Requirements))
	fmt.Fprintf(&sb, "Candidate resume_data:\n%s", resume)
	return sb.String()
}

func toolSchema() map[string]interface{} {
	return map[string]interface{}{
		"subject": map[string]interface{}{
			"type":        "string",
			"description": "Email subject line, max 78 characters",
		},
		"body": map[string]interface{}{
			"type":        "string",
			"description": "Email body with paragraphs separated by \\n\\n",
		},
	}
}
