package queue

import (
	"context"
	"sync"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/h2linker/sendqueue/dto"
	"github.com/h2linker/sendqueue/internal/enum"
	sqerrors "github.com/h2linker/sendqueue/internal/errors"
	"github.com/h2linker/sendqueue/internal/models"
	"github.com/h2linker/sendqueue/internal/plans"
	"github.com/h2linker/sendqueue/internal/tracing"
)

// DrainPremium drains every cloud-sending user with pending work. One user's failure never stops the others.
func (s *queueService) DrainPremium(ctx context.Context, maxItemsPerUser int) (*dto.PremiumDrainSummary, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueService.DrainPremium")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogFields(tracingLog.Int("maxItemsPerUser", maxItemsPerUser))

	userIds, err := s.repositories.QueueItemRepository.GetUserIdsWithPending(ctx, plans.CloudTiers())
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	result := &dto.PremiumDrainSummary{}
	var mu sync.Mutex

	concurrency := s.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, userId := range userIds {
		userId := userId
		g.Go(func() error {
			summary, err := s.Drain(gctx, dto.DrainRequest{
				UserId:   userId,
				MaxItems: maxItemsPerUser,
				Trigger:  enum.DrainTriggerCron,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Errorf("premium drain failed for user %s: %v", userId, err)
				result.UsersFailed++
				return nil
			}
			if !summary.Locked {
				result.UsersTouched++
			}
			result.Add(summary)
			return nil
		})
	}
	_ = g.Wait()

	tracing.LogObjectAsJson(span, "summary", result)
	return result, nil
}

func (s *queueService) Enqueue(ctx context.Context, userId string, ref models.JobRef) (*models.QueueItem, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueService.Enqueue")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagUser(span, userId)

	if ref == nil {
		err := errors.WithStack(sqerrors.ErrInvalidJobReference)
		tracing.TraceErr(span, err)
		return nil, err
	}

	profile, err := s.repositories.ProfileRepository.GetById(ctx, userId)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if profile == nil {
		return nil, errors.WithStack(sqerrors.ErrProfileNotFound)
	}

	switch r := ref.(type) {
	case models.PublicJobRef:
		job, err := s.repositories.JobRepository.GetPublicJob(ctx, r.JobID)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		if job == nil {
			return nil, errors.WithStack(sqerrors.ErrJobNotFound)
		}
		queued, err := s.repositories.QueueItemRepository.GetQueuedJobIds(ctx, userId, []string{r.JobID})
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		if len(queued) > 0 {
			return nil, errors.WithStack(sqerrors.ErrJobAlreadyQueued)
		}
	case models.ManualJobRef:
		job, err := s.repositories.JobRepository.GetManualJob(ctx, r.ManualJobID)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		if job == nil || job.UserID != userId {
			return nil, errors.WithStack(sqerrors.ErrJobNotFound)
		}
	}

	active, err := s.repositories.QueueItemRepository.CountActive(ctx, userId)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if active >= int64(plans.MaxQueueSize(profile.Tier())) {
		return nil, errors.WithStack(sqerrors.ErrQueueLimitReached)
	}

	item := &models.QueueItem{UserID: userId, Status: enum.QueueStatusPending}
	item.SetJobRef(ref)
	if err := s.repositories.QueueItemRepository.Create(ctx, item); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return item, nil
}

// Retry puts a finished item back to pending and drains just that item.
func (s *queueService) Retry(ctx context.Context, userId, itemId string) (*dto.DrainSummary, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueService.Retry")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagUser(span, userId)
	tracing.TagQueueItem(span, itemId)

	item, err := s.repositories.QueueItemRepository.GetByIdForUser(ctx, userId, itemId)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if item == nil {
		return nil, errors.WithStack(sqerrors.ErrQueueItemNotFound)
	}

	requeued, err := s.repositories.QueueItemRepository.Requeue(ctx, userId, itemId)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if !requeued {
		return nil, errors.WithStack(sqerrors.ErrQueueItemNotRetried)
	}

	return s.Drain(ctx, dto.DrainRequest{
		UserId:   userId,
		MaxItems: 1,
		QueueIds: []string{itemId},
		Trigger:  enum.DrainTriggerRetry,
	})
}

func (s *queueService) History(ctx context.Context, userId, itemId string) ([]*models.SendHistoryEntry, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueService.History")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagQueueItem(span, itemId)

	item, err := s.repositories.QueueItemRepository.GetByIdForUser(ctx, userId, itemId)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if item == nil {
		return nil, errors.WithStack(sqerrors.ErrQueueItemNotFound)
	}
	return s.repositories.SendHistoryRepository.GetByQueueId(ctx, userId, itemId)
}
