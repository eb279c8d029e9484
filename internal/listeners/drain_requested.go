package listeners

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/h2linker/sendqueue/dto"
	"github.com/h2linker/sendqueue/interfaces"
	"github.com/h2linker/sendqueue/internal/enum"
	sqerrors "github.com/h2linker/sendqueue/internal/errors"
	"github.com/h2linker/sendqueue/internal/logger"
	"github.com/h2linker/sendqueue/internal/tracing"
	"github.com/h2linker/sendqueue/internal/utils"
	"github.com/h2linker/sendqueue/services/events"
)

type DrainRequestedListener struct {
	events.BaseEventListener
	drainer interfaces.Drainer
}

func NewDrainRequestedListener(logger logger.Logger, drainer interfaces.Drainer) interfaces.EventListener {
	return &DrainRequestedListener{
		BaseEventListener: events.NewBaseEventListener(
			logger,
			events.GetEventType[dto.DrainRequested](),
			events.QueueDrain,
		),
		drainer: drainer,
	}
}

func (l *DrainRequestedListener) Handle(ctx context.Context, baseEvent any) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DrainRequestedListener.Handle")
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)
	tracing.LogObjectAsJson(span, "event", baseEvent)

	validatedEvent, err := l.ValidateBaseEvent(ctx, baseEvent)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	request, err := events.DecodeEventData[dto.DrainRequested](ctx, validatedEvent)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if request.UserId == "" {
		err := errors.WithStack(sqerrors.ErrUserIdNotSet)
		tracing.TraceErr(span, err)
		return err
	}
	tracing.TagUser(span, request.UserId)
	ctx = utils.SetUserIdInContext(ctx, request.UserId)

	trigger := request.Trigger
	if trigger == "" {
		trigger = enum.DrainTriggerEvent
	}

	summary, err := l.drainer.Drain(ctx, dto.DrainRequest{
		UserId:   request.UserId,
		MaxItems: request.MaxItems,
		QueueIds: request.QueueIds,
		Trigger:  trigger,
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if summary.Locked {
		l.Logger().Infof("drain already running for user %s, request dropped", request.UserId)
	}
	tracing.LogObjectAsJson(span, "summary", summary)
	return nil
}
