package interfaces

import (
	"context"

	"github.com/h2linker/sendqueue/dto"
)

type EventPublisher interface {
	PublishDrainRequested(ctx context.Context, request dto.DrainRequested) error
	Close() error
}

type EventListener interface {
	Handle(ctx context.Context, event any) error
	GetEventType() string
	GetQueueName() string
}
