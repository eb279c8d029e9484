package enum

type SmtpErrorCategory string

const (
	SmtpErrorAuthFailed          SmtpErrorCategory = "auth_failed"
	SmtpErrorAppPasswordRequired SmtpErrorCategory = "app_password_required"
	SmtpErrorConnectionTimeout   SmtpErrorCategory = "connection_timeout"
	SmtpErrorConnectionRefused   SmtpErrorCategory = "connection_refused"
	SmtpErrorTLS                 SmtpErrorCategory = "tls_error"
	SmtpErrorRecipientRejected   SmtpErrorCategory = "recipient_rejected"
	SmtpErrorMailboxFull         SmtpErrorCategory = "mailbox_full"
	SmtpErrorRateLimited         SmtpErrorCategory = "rate_limited"
	SmtpErrorBlockedSpam         SmtpErrorCategory = "blocked_spam"
	SmtpErrorSmtpNotConfigured   SmtpErrorCategory = "smtp_not_configured"
	SmtpErrorMissingEmail        SmtpErrorCategory = "missing_email"
	SmtpErrorInvalidDomain       SmtpErrorCategory = "invalid_domain"
	SmtpErrorProfileIncomplete   SmtpErrorCategory = "profile_incomplete"
	SmtpErrorNoTemplate          SmtpErrorCategory = "no_template"
	SmtpErrorConnectionClosed    SmtpErrorCategory = "connection_closed"
	SmtpErrorUnknown             SmtpErrorCategory = "unknown"
)

func (t SmtpErrorCategory) String() string {
	return string(t)
}
