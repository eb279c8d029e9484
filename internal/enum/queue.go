package enum

type QueueStatus string

const (
	QueueStatusPending              QueueStatus = "pending"
	QueueStatusProcessing           QueueStatus = "processing"
	QueueStatusSent                 QueueStatus = "sent"
	QueueStatusFailed               QueueStatus = "failed"
	QueueStatusPaused               QueueStatus = "paused"
	QueueStatusSkippedInvalidDomain QueueStatus = "skipped_invalid_domain"
)

func (t QueueStatus) String() string {
	return string(t)
}

// Retryable reports whether a user may push the item back to pending.
func (t QueueStatus) Retryable() bool {
	switch t {
	case QueueStatusFailed, QueueStatusSent, QueueStatusPaused, QueueStatusSkippedInvalidDomain:
		return true
	default:
		return false
	}
}

// ActiveQueueStatuses count against the plan's max queue size.
var ActiveQueueStatuses = []QueueStatus{
	QueueStatusPending,
	QueueStatusProcessing,
	QueueStatusPaused,
}

type SendStatus string

const (
	SendStatusSuccess SendStatus = "success"
	SendStatusFailed  SendStatus = "failed"
	SendStatusSkipped SendStatus = "skipped"
)

func (t SendStatus) String() string {
	return string(t)
}

type DrainTrigger string

const (
	DrainTriggerCron  DrainTrigger = "cron"
	DrainTriggerUser  DrainTrigger = "user"
	DrainTriggerRadar DrainTrigger = "radar"
	DrainTriggerRetry DrainTrigger = "retry"
	DrainTriggerEvent DrainTrigger = "event"
)

func (t DrainTrigger) String() string {
	return string(t)
}
