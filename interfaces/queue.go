package interfaces

import (
	"context"

	"github.com/h2linker/sendqueue/dto"
	"github.com/h2linker/sendqueue/internal/models"
)

type Drainer interface {
	Drain(ctx context.Context, request dto.DrainRequest) (*dto.DrainSummary, error)
}

type QueueService interface {
	Drainer
	DrainPremium(ctx context.Context, maxItemsPerUser int) (*dto.PremiumDrainSummary, error)
	Enqueue(ctx context.Context, userId string, ref models.JobRef) (*models.QueueItem, error)
	Retry(ctx context.Context, userId, itemId string) (*dto.DrainSummary, error)
	History(ctx context.Context, userId, itemId string) ([]*models.SendHistoryEntry, error)
}

// Locker gives at most one holder per key. The returned release func must be called once.
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(), acquired bool, err error)
}
