package smtp

import (
	"github.com/h2linker/sendqueue/internal/enum"
)

const securityNone enum.EmailSecurity = "none"

type ProviderConfig struct {
	Host     string
	Port     int
	Security enum.EmailSecurity
}

var defaultProviders = map[enum.EmailProvider]ProviderConfig{
	enum.EmailProviderGmail: {
		Host:     "smtp.gmail.com",
		Port:     465,
		Security: enum.EmailSecurityTLS,
	},
	enum.EmailProviderOutlook: {
		Host:     "smtp.office365.com",
		Port:     587,
		Security: enum.EmailSecurityStartTLS,
	},
}

func ProviderFor(provider enum.EmailProvider) ProviderConfig {
	if cfg, ok := defaultProviders[provider]; ok {
		return cfg
	}
	return defaultProviders[enum.EmailProviderGmail]
}
