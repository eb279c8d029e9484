package smtperror

import (
	"strings"

	"github.com/h2linker/sendqueue/internal/enum"
)

type Policy string

const (
	PolicyCircuitBreaker Policy = "circuit_breaker"
	PolicyTransient      Policy = "transient"
	PolicyLocalFatal     Policy = "local_fatal"
	PolicyUnknown        Policy = "unknown"
)

type rule struct {
	category enum.SmtpErrorCategory
	match    func(m string) bool
}

func containsAny(m string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(m, n) {
			return true
		}
	}
	return false
}

// rules are evaluated in order and the first match wins.
var rules = []rule{
	{enum.SmtpErrorAuthFailed, func(m string) bool {
		return containsAny(m, "535", "username and password not accepted", "invalid credentials") ||
			(strings.Contains(m, "auth") && containsAny(m, "fail", "falhou", "erro"))
	}},
	{enum.SmtpErrorAppPasswordRequired, func(m string) bool {
		return containsAny(m, "534", "application-specific password", "app password", "less secure")
	}},
	{enum.SmtpErrorConnectionTimeout, func(m string) bool {
		return containsAny(m, "timeout", "timed out")
	}},
	{enum.SmtpErrorConnectionRefused, func(m string) bool {
		return containsAny(m, "connection refused", "conexão recusada", "econnrefused")
	}},
	{enum.SmtpErrorTLS, func(m string) bool {
		return containsAny(m, "tls", "ssl", "handshake", "certificate", "starttls")
	}},
	{enum.SmtpErrorRecipientRejected, func(m string) bool {
		return containsAny(m, "550", "551", "553", "recipient rejected", "user unknown", "unknown user", "mailbox not found", "no such user")
	}},
	{enum.SmtpErrorMailboxFull, func(m string) bool {
		return containsAny(m, "552", "mailbox full", "over quota")
	}},
	{enum.SmtpErrorRateLimited, func(m string) bool {
		return containsAny(m, "421", "429", "too many", "rate limit", "try again later", "daily_limit_reached")
	}},
	{enum.SmtpErrorBlockedSpam, func(m string) bool {
		return containsAny(m, "554", "blocked", "blacklisted", "spam", "policy", "abuse")
	}},
	{enum.SmtpErrorSmtpNotConfigured, func(m string) bool {
		return containsAny(m, "smtp not configured", "smtp config not found", "smtp password not found")
	}},
	{enum.SmtpErrorMissingEmail, func(m string) bool {
		return containsAny(m, "missing email", "email missing", "recipient missing")
	}},
	{enum.SmtpErrorInvalidDomain, func(m string) bool {
		return containsAny(m, "invalid domain", "no mx", "domain has no mail server")
	}},
	{enum.SmtpErrorProfileIncomplete, func(m string) bool {
		return strings.Contains(m, "profile incomplete")
	}},
	{enum.SmtpErrorNoTemplate, func(m string) bool {
		return containsAny(m, "no template", "no email content")
	}},
	{enum.SmtpErrorConnectionClosed, func(m string) bool {
		return containsAny(m, "connection closed", "eof", "broken pipe")
	}},
}

// Classify maps a raw transport error to exactly one category. Matching is case-insensitive.
func Classify(message string) enum.SmtpErrorCategory {
	m := strings.ToLower(message)
	for _, r := range rules {
		if r.match(m) {
			return r.category
		}
	}
	return enum.SmtpErrorUnknown
}

// ClassifyError prefers the category carried by a LocalError over the message text.
func ClassifyError(err error) enum.SmtpErrorCategory {
	if err == nil {
		return enum.SmtpErrorUnknown
	}
	if category, ok := LocalCategory(err); ok {
		return category
	}
	return Classify(err.Error())
}

func PolicyFor(category enum.SmtpErrorCategory) Policy {
	switch category {
	case enum.SmtpErrorAuthFailed,
		enum.SmtpErrorAppPasswordRequired,
		enum.SmtpErrorRecipientRejected,
		enum.SmtpErrorMailboxFull,
		enum.SmtpErrorBlockedSpam:
		return PolicyCircuitBreaker
	case enum.SmtpErrorConnectionTimeout,
		enum.SmtpErrorConnectionRefused,
		enum.SmtpErrorTLS,
		enum.SmtpErrorRateLimited,
		enum.SmtpErrorConnectionClosed:
		return PolicyTransient
	case enum.SmtpErrorSmtpNotConfigured,
		enum.SmtpErrorMissingEmail,
		enum.SmtpErrorInvalidDomain,
		enum.SmtpErrorProfileIncomplete,
		enum.SmtpErrorNoTemplate:
		return PolicyLocalFatal
	default:
		return PolicyUnknown
	}
}

func IsCircuitBreaker(category enum.SmtpErrorCategory) bool {
	return PolicyFor(category) == PolicyCircuitBreaker
}

func IsTransient(category enum.SmtpErrorCategory) bool {
	return PolicyFor(category) == PolicyTransient
}

func IsLocal(category enum.SmtpErrorCategory) bool {
	return PolicyFor(category) == PolicyLocalFatal
}
