package events

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/h2linker/sendqueue/dto"
	"github.com/h2linker/sendqueue/interfaces"
	"github.com/h2linker/sendqueue/internal/logger"
	"github.com/h2linker/sendqueue/internal/tracing"
)

type drainPublisher interface {
	PublishDrainRequested(ctx context.Context, request dto.DrainRequested) error
}

type drainDispatcher struct {
	log       logger.Logger
	publisher drainPublisher
	drainer   interfaces.Drainer
	timeout   time.Duration
}

// NewDrainDispatcher publishes drain requests when a broker is configured and runs them in process otherwise.
func NewDrainDispatcher(log logger.Logger, publisher drainPublisher, drainer interfaces.Drainer) interfaces.DrainDispatcher {
	return &drainDispatcher{
		log:       log,
		publisher: publisher,
		drainer:   drainer,
		timeout:   2 * time.Hour,
	}
}

func (d *drainDispatcher) DispatchDrain(ctx context.Context, request dto.DrainRequested) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DrainDispatcher.DispatchDrain")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagUser(span, request.UserId)

	if d.publisher != nil {
		span.LogFields(tracingLog.String("mode", "broker"))
		err := d.publisher.PublishDrainRequested(ctx, request)
		if err != nil {
			tracing.TraceErr(span, err)
		}
		return err
	}

	span.LogFields(tracingLog.String("mode", "local"))
	// pacing can run for hours, so the drain outlives the caller
	go func() {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		_, err := d.drainer.Drain(runCtx, dto.DrainRequest{
			UserId:   request.UserId,
			MaxItems: request.MaxItems,
			QueueIds: request.QueueIds,
			Trigger:  request.Trigger,
		})
		if err != nil {
			d.log.Errorf("local drain for user %s failed: %v", request.UserId, err)
		}
	}()
	return nil
}
