package smtperror

import "github.com/h2linker/sendqueue/internal/enum"

var descriptions = map[enum.SmtpErrorCategory]string{
	enum.SmtpErrorAuthFailed:          "The mail provider rejected your email or password. Re-enter your credentials in settings.",
	enum.SmtpErrorAppPasswordRequired: "Your provider requires an app password. Generate one in your account security settings and save it here.",
	enum.SmtpErrorConnectionTimeout:   "The mail server took too long to answer. Try again in a few minutes.",
	enum.SmtpErrorConnectionRefused:   "The mail server refused the connection. Check the provider and try again later.",
	enum.SmtpErrorTLS:                 "A secure connection to the mail server could not be established.",
	enum.SmtpErrorRecipientRejected:   "The employer address does not exist or refused the message.",
	enum.SmtpErrorMailboxFull:         "The employer mailbox is full.",
	enum.SmtpErrorRateLimited:         "Your provider is limiting how fast you send. Sending resumes automatically later.",
	enum.SmtpErrorBlockedSpam:         "Your message was blocked as spam or by a provider policy. Review your template before sending more.",
	enum.SmtpErrorSmtpNotConfigured:   "Connect your Gmail or Outlook account before sending.",
	enum.SmtpErrorMissingEmail:        "This job has no contact email.",
	enum.SmtpErrorInvalidDomain:       "The employer domain cannot receive email.",
	enum.SmtpErrorProfileIncomplete:   "Complete your name, age, phone and contact email before sending.",
	enum.SmtpErrorNoTemplate:          "Create at least one email template before sending.",
	enum.SmtpErrorConnectionClosed:    "The mail server closed the connection unexpectedly. Try again.",
}

// Describe returns help text for the settings screen.
func Describe(category enum.SmtpErrorCategory) string {
	if d, ok := descriptions[category]; ok {
		return d
	}
	return "Sending failed for an unexpected reason. Check the raw error for details."
}
