package smtperror

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/h2linker/sendqueue/internal/enum"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		message  string
		expected enum.SmtpErrorCategory
	}{
		{"535 5.7.8 Username and Password not accepted", enum.SmtpErrorAuthFailed},
		{"SMTP authentication failed", enum.SmtpErrorAuthFailed},
		{"534-5.7.9 Application-specific password required", enum.SmtpErrorAppPasswordRequired},
		{"dial tcp 142.250.0.1:465: i/o timeout", enum.SmtpErrorConnectionTimeout},
		{"dial tcp: connect: connection refused", enum.SmtpErrorConnectionRefused},
		{"tls: failed to verify certificate", enum.SmtpErrorTLS},
		{"550 5.1.1 User unknown", enum.SmtpErrorRecipientRejected},
		{"552 5.2.2 Mailbox full", enum.SmtpErrorMailboxFull},
		{"421 4.7.0 Try again later", enum.SmtpErrorRateLimited},
		{"daily_limit_reached", enum.SmtpErrorRateLimited},
		{"554 5.7.1 Message rejected due to policy", enum.SmtpErrorBlockedSpam},
		{"SMTP config not found for user", enum.SmtpErrorSmtpNotConfigured},
		{"missing email on job", enum.SmtpErrorMissingEmail},
		{"invalid domain: example.invalid", enum.SmtpErrorInvalidDomain},
		{"profile incomplete", enum.SmtpErrorProfileIncomplete},
		{"no template available", enum.SmtpErrorNoTemplate},
		{"unexpected EOF", enum.SmtpErrorConnectionClosed},
		{"write: broken pipe", enum.SmtpErrorConnectionClosed},
		{"smtp AUTH: read tcp 10.0.0.4:51234->142.250.0.1:465: i/o timeout", enum.SmtpErrorConnectionTimeout},
		{"smtp AUTH: 454 4.7.0 Too many login attempts, please try again later", enum.SmtpErrorRateLimited},
		{"smtp AUTH: EOF", enum.SmtpErrorConnectionClosed},
		{"smtp AUTH: 535 5.7.8 Username and Password not accepted", enum.SmtpErrorAuthFailed},
		{"something odd happened", enum.SmtpErrorUnknown},
		{"", enum.SmtpErrorUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.message, func(t *testing.T) {
			assert.Equal(t, tc.expected, Classify(tc.message))
		})
	}
}

func TestClassify_PriorityOrder(t *testing.T) {
	assert.Equal(t, enum.SmtpErrorAuthFailed, Classify("535 auth error after timeout"))
	assert.Equal(t, enum.SmtpErrorConnectionTimeout, Classify("timeout during TLS handshake"))
	assert.Equal(t, enum.SmtpErrorRecipientRejected, Classify("550 rejected: spam policy"))
}

func TestClassify_IsCaseInsensitive(t *testing.T) {
	assert.Equal(t, Classify("550 5.1.1 user unknown"), Classify("550 5.1.1 USER UNKNOWN"))
}

func TestClassifyError_PrefersLocalCategory(t *testing.T) {
	local := NewLocalError(enum.SmtpErrorMissingEmail, "job has nothing to send to")
	wrapped := errors.Wrap(local, "resolve recipient")

	assert.Equal(t, enum.SmtpErrorMissingEmail, ClassifyError(wrapped))
	assert.Equal(t, enum.SmtpErrorRateLimited, ClassifyError(fmt.Errorf("429 too many requests")))
	assert.Equal(t, enum.SmtpErrorUnknown, ClassifyError(nil))
}

func TestPolicyFor(t *testing.T) {
	for _, c := range []enum.SmtpErrorCategory{
		enum.SmtpErrorAuthFailed, enum.SmtpErrorAppPasswordRequired,
		enum.SmtpErrorRecipientRejected, enum.SmtpErrorMailboxFull, enum.SmtpErrorBlockedSpam,
	} {
		assert.True(t, IsCircuitBreaker(c), c)
	}
	for _, c := range []enum.SmtpErrorCategory{
		enum.SmtpErrorConnectionTimeout, enum.SmtpErrorConnectionRefused,
		enum.SmtpErrorTLS, enum.SmtpErrorRateLimited, enum.SmtpErrorConnectionClosed,
	} {
		assert.True(t, IsTransient(c), c)
	}
	for _, c := range []enum.SmtpErrorCategory{
		enum.SmtpErrorSmtpNotConfigured, enum.SmtpErrorMissingEmail,
		enum.SmtpErrorInvalidDomain, enum.SmtpErrorProfileIncomplete, enum.SmtpErrorNoTemplate,
	} {
		assert.True(t, IsLocal(c), c)
	}
	assert.Equal(t, PolicyUnknown, PolicyFor(enum.SmtpErrorUnknown))
}

func TestUserUnknownTripsCircuitBreaker(t *testing.T) {
	category := Classify("550 5.1.1 User unknown")
	assert.Equal(t, enum.SmtpErrorRecipientRejected, category)
	assert.True(t, IsCircuitBreaker(category))
}

func TestDescribe(t *testing.T) {
	assert.Contains(t, Describe(enum.SmtpErrorAppPasswordRequired), "app password")
	assert.NotEmpty(t, Describe(enum.SmtpErrorUnknown))
}
