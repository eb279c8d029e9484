package enum

type EmailProvider string

const (
	EmailProviderGmail   EmailProvider = "gmail"
	EmailProviderOutlook EmailProvider = "outlook"
)

func (t EmailProvider) String() string {
	return string(t)
}

// GetEmailProvider defaults to gmail for anything that is not outlook.
func GetEmailProvider(s string) EmailProvider {
	if EmailProvider(s) == EmailProviderOutlook {
		return EmailProviderOutlook
	}
	return EmailProviderGmail
}

type EmailSecurity string

const (
	EmailSecurityTLS      EmailSecurity = "tls"
	EmailSecurityStartTLS EmailSecurity = "startTLS"
)

func (t EmailSecurity) String() string {
	return string(t)
}
