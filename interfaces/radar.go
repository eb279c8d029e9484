package interfaces

import (
	"context"

	"github.com/h2linker/sendqueue/dto"
)

type RadarService interface {
	Scan(ctx context.Context) (*dto.RadarScanSummary, error)
	ScanUser(ctx context.Context, userId string) (*dto.RadarScanSummary, error)
}

// DrainDispatcher hands a drain request to whatever runs drains, a broker or the local scheduler.
type DrainDispatcher interface {
	DispatchDrain(ctx context.Context, request dto.DrainRequested) error
}
