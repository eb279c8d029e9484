package errors

import "github.com/pkg/errors"

var (
	// context errors
	ErrUserIdNotSet = errors.New("userId not set on context")

	// lookup errors
	ErrProfileNotFound    = errors.New("profile not found")
	ErrQueueItemNotFound  = errors.New("queue item not found")
	ErrCredentialNotFound = errors.New("smtp credential not found")
	ErrJobNotFound        = errors.New("job not found")

	// queue errors
	ErrQueueLimitReached   = errors.New("queue limit reached for plan")
	ErrQueueItemNotRetried = errors.New("queue item is not in a retryable state")
	ErrInvalidJobReference = errors.New("queue item must reference exactly one job")
	ErrDrainLocked         = errors.New("a drain is already running for this user")
	ErrJobAlreadyQueued    = errors.New("job already in queue")

	// warmup errors
	ErrInvalidRiskProfile = errors.New("invalid risk profile")

	// smtp errors
	ErrSmtpNotConfigured = errors.New("smtp not configured")
	ErrInvalidRecipient  = errors.New("invalid recipient email")

	// ai errors
	ErrAINotConfigured   = errors.New("ai provider not configured")
	ErrAIMalformedOutput = errors.New("ai returned malformed output")
)
