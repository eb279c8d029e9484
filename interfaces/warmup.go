package interfaces

import (
	"context"
	"time"

	"github.com/h2linker/sendqueue/dto"
)

type WarmupService interface {
	Status(ctx context.Context, userId string) (*dto.WarmupStatus, error)
	SaveCredential(ctx context.Context, userId string, request dto.SaveCredentialRequest) (*dto.SaveCredentialResult, error)
	RolloverDay(ctx context.Context, userId, timezone string, now time.Time) (string, error)
	Escalate(ctx context.Context, now time.Time) (int, error)
	ResetDailyCounters(ctx context.Context, now time.Time) (int, error)
}
