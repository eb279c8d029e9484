package template

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/h2linker/sendqueue/dto"
	"github.com/h2linker/sendqueue/internal/models"
	"github.com/h2linker/sendqueue/internal/utils"
)

const (
	VisaTypeH2A = "H-2A"
	VisaTypeH2B = "H-2B"
)

var placeholder = regexp.MustCompile(`\{\{\s*([a-zA-Z_]+)\s*\}\}`)

// HashToIndex picks the template slot for a tracking id. The same id always lands on the same template.
func HashToIndex(trackingId string, templates int) int {
	return utils.HashToIndex(trackingId, templates)
}

func VisaTypeFor(recipient *dto.Recipient) string {
	if recipient != nil && strings.EqualFold(strings.TrimSpace(recipient.VisaType), VisaTypeH2A) {
		return VisaTypeH2A
	}
	return VisaTypeH2B
}

func Variables(profile *models.Profile, recipient *dto.Recipient) map[string]string {
	vars := map[string]string{}
	if profile != nil {
		vars["name"] = profile.FullName
		if profile.Age != nil {
			vars["age"] = strconv.Itoa(*profile.Age)
		} else {
			vars["age"] = ""
		}
		vars["phone"] = profile.PhoneE164
		vars["contact_email"] = profile.ContactEmail
	}
	if recipient != nil {
		vars["company"] = recipient.Company
		vars["position"] = recipient.JobTitle
		vars["eta_number"] = recipient.EtaNumber
		vars["company_phone"] = recipient.Phone
		vars["job_phone"] = recipient.Phone
	}
	vars["visa_type"] = VisaTypeFor(recipient)
	return vars
}

// Apply replaces every known {{ variable }}. Unknown placeholders are left untouched.
func Apply(text string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}
