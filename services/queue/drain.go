package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/h2linker/sendqueue/dto"
	"github.com/h2linker/sendqueue/internal/enum"
	sqerrors "github.com/h2linker/sendqueue/internal/errors"
	"github.com/h2linker/sendqueue/internal/models"
	"github.com/h2linker/sendqueue/internal/plans"
	"github.com/h2linker/sendqueue/internal/tracing"
	"github.com/h2linker/sendqueue/internal/utils"
	"github.com/h2linker/sendqueue/services/smtperror"
	"github.com/h2linker/sendqueue/services/warmup"
)

type attemptOutcome int

const (
	outcomeSent attemptOutcome = iota
	outcomeFailed
	outcomeLocalFailure
	outcomeSkipped
)

type attemptResult struct {
	outcome  attemptOutcome
	category enum.SmtpErrorCategory
	// delivered is set once the transport has been called for the item
	delivered bool
	message   string
}

// drainRun is the state of one run over one user's queue.
type drainRun struct {
	request   dto.DrainRequest
	profile   *models.Profile
	cred      *models.SmtpCredential
	templates []*models.EmailTemplate
	tier      enum.PlanTier
	today     string
	summary   *dto.DrainSummary
}

func (s *queueService) Drain(ctx context.Context, request dto.DrainRequest) (*dto.DrainSummary, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueService.Drain")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagUser(span, request.UserId)
	tracing.LogObjectAsJson(span, "request", request)

	if request.UserId == "" {
		err := errors.WithStack(sqerrors.ErrUserIdNotSet)
		tracing.TraceErr(span, err)
		return nil, err
	}
	if request.Trigger == "" {
		request.Trigger = enum.DrainTriggerUser
	}

	release, acquired, err := s.locker.TryLock(ctx, request.UserId)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if !acquired {
		span.LogFields(tracingLog.Bool("result.locked", true))
		s.metrics.ObserveRun(request.Trigger, "locked", 0)
		return &dto.DrainSummary{UserId: request.UserId, Locked: true}, nil
	}
	defer release()

	start := time.Now()
	summary, err := s.drain(ctx, request)
	result := "ok"
	if err != nil {
		result = "error"
		tracing.TraceErr(span, err)
	}
	s.metrics.ObserveRun(request.Trigger, result, time.Since(start).Seconds())
	tracing.LogObjectAsJson(span, "summary", summary)
	return summary, err
}

func (s *queueService) drain(ctx context.Context, request dto.DrainRequest) (*dto.DrainSummary, error) {
	log := s.log.With(zap.String("userId", request.UserId), zap.String("trigger", string(request.Trigger)))
	summary := &dto.DrainSummary{UserId: request.UserId}

	profile, err := s.repositories.ProfileRepository.GetById(ctx, request.UserId)
	if err != nil {
		return summary, errors.Wrap(err, "load profile")
	}
	if profile == nil {
		return summary, errors.WithStack(sqerrors.ErrProfileNotFound)
	}

	now := s.now()
	today, err := s.warmup.RolloverDay(ctx, request.UserId, profile.Timezone, now)
	if err != nil {
		return summary, errors.Wrap(err, "rollover usage day")
	}

	// counters may have been reset by the rollover
	profile, err = s.repositories.ProfileRepository.GetById(ctx, request.UserId)
	if err != nil {
		return summary, errors.Wrap(err, "reload profile")
	}
	if profile == nil {
		return summary, errors.WithStack(sqerrors.ErrProfileNotFound)
	}
	cred, err := s.repositories.SmtpCredentialRepository.GetByUserId(ctx, request.UserId)
	if err != nil {
		return summary, errors.Wrap(err, "load smtp credential")
	}

	tier := profile.Tier()
	if !plans.InSendWindow(tier, utils.LocalHour(now, profile.Timezone), s.cfg.SendWindowStartHour, s.cfg.SendWindowEndHour) {
		log.Infof("outside send window for tier %s", tier)
		summary.OutsideWindow = true
		return summary, nil
	}

	var current *int
	var riskProfile *enum.RiskProfile
	if cred != nil {
		current = cred.CurrentDailyLimit
		riskProfile = cred.RiskProfile
	}
	sentToday := warmup.SentToday(profile, cred, today)

	effective := plans.EffectiveLimit(tier, current, riskProfile)
	remaining := effective - sentToday
	if remaining <= 0 {
		log.Infof("daily budget exhausted: %d of %d", sentToday, effective)
		summary.BudgetExhausted = true
		return summary, nil
	}
	summary.Remaining = remaining

	templates, err := s.repositories.EmailTemplateRepository.GetByUserId(ctx, request.UserId)
	if err != nil {
		return summary, errors.Wrap(err, "load templates")
	}

	run := &drainRun{
		request:   request,
		profile:   profile,
		cred:      cred,
		templates: templates,
		tier:      tier,
		today:     today,
		summary:   summary,
	}

	if local := s.precondition(run); local != nil {
		log.Warnf("drain precondition failed: %s", local.Message)
		return summary, s.failOldestPending(ctx, run, local)
	}

	limit := remaining
	if request.MaxItems > 0 && request.MaxItems < limit {
		limit = request.MaxItems
	}
	items, err := s.repositories.QueueItemRepository.GetPending(ctx, request.UserId, request.QueueIds, limit)
	if err != nil {
		return summary, errors.Wrap(err, "load pending items")
	}

	consecutiveBreaker := 0
	delayNext := false
	for _, item := range items {
		if ctx.Err() != nil {
			log.Infof("drain cancelled before item %s", item.ID)
			break
		}
		if delayNext {
			s.rngMu.Lock()
			delay := plans.InterSendDelay(tier, s.rng)
			s.rngMu.Unlock()
			if err := s.sleeper.Sleep(ctx, delay); err != nil {
				log.Infof("drain cancelled while pacing: %v", err)
				break
			}
		}
		delayNext = false

		claimed, err := s.repositories.QueueItemRepository.Claim(ctx, item.ID, s.now())
		if err != nil {
			return summary, errors.Wrap(err, "claim item")
		}
		if !claimed {
			continue
		}
		summary.Processed++

		// a claimed attempt runs to completion even if the caller goes away
		result, err := s.attempt(context.WithoutCancel(ctx), run, item)
		if err != nil {
			if result.delivered {
				s.settleAttempted(item.ID, result)
				if result.outcome == outcomeSent {
					summary.Sent++
					summary.Remaining--
				} else {
					summary.Failed++
				}
			} else {
				s.releaseClaim(item.ID)
			}
			return summary, err
		}

		switch result.outcome {
		case outcomeSent:
			summary.Sent++
			summary.Remaining--
			consecutiveBreaker = 0
			delayNext = true
		case outcomeSkipped:
			summary.Skipped++
		case outcomeLocalFailure:
			summary.Failed++
		case outcomeFailed:
			summary.Failed++
			delayNext = true
			if smtperror.IsCircuitBreaker(result.category) {
				consecutiveBreaker++
			} else {
				consecutiveBreaker = 0
			}
		}

		if consecutiveBreaker >= s.breakerThreshold() {
			reason := fmt.Sprintf("queue paused after %s: %s", result.category, smtperror.Describe(result.category))
			paused, err := s.repositories.QueueItemRepository.PauseAllPending(ctx, request.UserId, reason)
			if err != nil {
				return summary, errors.Wrap(err, "pause queue")
			}
			summary.Paused = int(paused)
			summary.CircuitOpen = true
			s.metrics.TripCircuitBreaker()
			log.Warnf("circuit breaker opened on %s, paused %d items", result.category, paused)
			break
		}
	}

	log.Infof("drain finished: processed %d, sent %d, failed %d, skipped %d, paused %d",
		summary.Processed, summary.Sent, summary.Failed, summary.Skipped, summary.Paused)
	return summary, nil
}

func (s *queueService) precondition(run *drainRun) *smtperror.LocalError {
	if !run.profile.IsComplete() {
		return smtperror.NewLocalError(enum.SmtpErrorProfileIncomplete, "profile incomplete: name, age, phone and contact email are required")
	}
	if plans.SendingMethodFor(run.tier) == enum.SendingMethodStatic && len(run.templates) == 0 {
		return smtperror.NewLocalError(enum.SmtpErrorNoTemplate, "no template: create at least one email template")
	}
	if !run.cred.IsConfigured() {
		return smtperror.NewLocalError(enum.SmtpErrorSmtpNotConfigured, "smtp not configured")
	}
	return nil
}

// failOldestPending surfaces a run-level precondition on the oldest pending item so the user sees it.
func (s *queueService) failOldestPending(ctx context.Context, run *drainRun, local *smtperror.LocalError) error {
	items, err := s.repositories.QueueItemRepository.GetPending(ctx, run.request.UserId, run.request.QueueIds, 1)
	if err != nil {
		return errors.Wrap(err, "load oldest pending item")
	}
	if len(items) == 0 {
		return nil
	}
	item := items[0]

	failed, err := s.repositories.QueueItemRepository.FailPending(ctx, item.ID, local.Message, s.now())
	if err != nil {
		return errors.Wrap(err, "fail pending item")
	}
	if !failed {
		return nil
	}
	run.summary.Processed++
	run.summary.Failed++
	s.metrics.ObserveAttempt(enum.SendStatusFailed, local.Category)
	return s.appendHistory(ctx, item, enum.SendStatusFailed, utils.NewTrackingId(), local.Message, local.Category)
}

func (s *queueService) attempt(ctx context.Context, run *drainRun, item *models.QueueItem) (attemptResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueService.attempt")
	defer span.Finish()
	tracing.TagQueueItem(span, item.ID)

	sendTrackingId := utils.NewTrackingId()

	recipient, err := s.resolveRecipient(ctx, item)
	if err != nil {
		tracing.TraceErr(span, err)
		return attemptResult{}, err
	}
	if recipient == nil || recipient.Email == "" {
		return s.localFailure(ctx, item, sendTrackingId, smtperror.NewLocalError(enum.SmtpErrorMissingEmail, "missing email: the job has no contact address"))
	}

	if plans.Get(run.tier).Features.DNSBounceCheck && s.validator != nil {
		check := s.validator.Validate(ctx, recipient.Email)
		s.metrics.ObserveDomainCheck(check.Valid)
		if !check.Valid {
			reason := check.Reason
			if reason == "" {
				reason = "invalid domain"
			}
			if err := s.repositories.QueueItemRepository.MarkSkippedInvalidDomain(ctx, item.ID, reason, s.now()); err != nil {
				return attemptResult{}, errors.Wrap(err, "mark skipped")
			}
			s.metrics.ObserveAttempt(enum.SendStatusSkipped, enum.SmtpErrorInvalidDomain)
			if err := s.appendHistory(ctx, item, enum.SendStatusSkipped, sendTrackingId, reason, enum.SmtpErrorInvalidDomain); err != nil {
				return attemptResult{}, err
			}
			return attemptResult{outcome: outcomeSkipped, category: enum.SmtpErrorInvalidDomain}, nil
		}
	}

	email, err := s.composer.Compose(ctx, dto.ComposeInput{
		Tier:            run.tier,
		Profile:         run.profile,
		Recipient:       recipient,
		Templates:       run.templates,
		FromAddress:     run.cred.Email,
		QueueTrackingId: item.TrackingID,
		SendTrackingId:  sendTrackingId,
	})
	if err != nil {
		var local *smtperror.LocalError
		if !errors.As(err, &local) {
			local = smtperror.NewLocalError(enum.SmtpErrorNoTemplate, "no email content: "+err.Error())
		}
		return s.localFailure(ctx, item, sendTrackingId, local)
	}

	sendErr := s.transport.Send(ctx, run.cred, email)
	if sendErr == nil {
		return s.recordSuccess(ctx, run, item, sendTrackingId)
	}

	category := smtperror.ClassifyError(sendErr)
	if smtperror.IsLocal(category) {
		result, err := s.localFailure(ctx, item, sendTrackingId, smtperror.NewLocalError(category, sendErr.Error()))
		if err != nil {
			return attemptResult{outcome: outcomeLocalFailure, category: category, delivered: true, message: sendErr.Error()}, err
		}
		result.delivered = true
		return result, nil
	}
	span.LogFields(tracingLog.String("send.category", string(category)))

	failed := attemptResult{outcome: outcomeFailed, category: category, delivered: true, message: sendErr.Error()}
	if err := s.repositories.QueueItemRepository.MarkFailed(ctx, item.ID, sendErr.Error(), s.now()); err != nil {
		return failed, errors.Wrap(err, "mark failed")
	}
	if err := s.appendHistory(ctx, item, enum.SendStatusFailed, sendTrackingId, sendErr.Error(), category); err != nil {
		return failed, err
	}
	if smtperror.IsCircuitBreaker(category) {
		if err := s.repositories.ProfileRepository.IncrementConsecutiveErrors(ctx, run.request.UserId); err != nil {
			return failed, errors.Wrap(err, "increment consecutive errors")
		}
	}
	s.metrics.ObserveAttempt(enum.SendStatusFailed, category)
	return failed, nil
}

func (s *queueService) recordSuccess(ctx context.Context, run *drainRun, item *models.QueueItem, sendTrackingId string) (attemptResult, error) {
	sent := attemptResult{outcome: outcomeSent, delivered: true}
	if err := s.repositories.QueueItemRepository.MarkSent(ctx, item.ID, s.now()); err != nil {
		return sent, errors.Wrap(err, "mark sent")
	}
	if err := s.appendHistory(ctx, item, enum.SendStatusSuccess, sendTrackingId, "", ""); err != nil {
		return sent, err
	}
	if err := s.repositories.SmtpCredentialRepository.IncrementEmailsSent(ctx, run.request.UserId, run.today); err != nil {
		return sent, errors.Wrap(err, "increment emails sent")
	}
	if err := s.repositories.ProfileRepository.IncrementCreditsUsed(ctx, run.request.UserId, run.today); err != nil {
		return sent, errors.Wrap(err, "increment credits used")
	}
	s.metrics.ObserveAttempt(enum.SendStatusSuccess, "")
	return sent, nil
}

func (s *queueService) localFailure(ctx context.Context, item *models.QueueItem, sendTrackingId string, local *smtperror.LocalError) (attemptResult, error) {
	if err := s.repositories.QueueItemRepository.MarkFailed(ctx, item.ID, local.Message, s.now()); err != nil {
		return attemptResult{}, errors.Wrap(err, "mark failed")
	}
	if err := s.appendHistory(ctx, item, enum.SendStatusFailed, sendTrackingId, local.Message, local.Category); err != nil {
		return attemptResult{}, err
	}
	s.metrics.ObserveAttempt(enum.SendStatusFailed, local.Category)
	return attemptResult{outcome: outcomeLocalFailure, category: local.Category}, nil
}

func (s *queueService) appendHistory(ctx context.Context, item *models.QueueItem, status enum.SendStatus, trackingId, message string, category enum.SmtpErrorCategory) error {
	entry := &models.SendHistoryEntry{
		QueueID:    item.ID,
		UserID:     item.UserID,
		SentAt:     s.now(),
		Status:     status,
		TrackingID: trackingId,
	}
	if message != "" {
		entry.ErrorMessage = &message
	}
	if category != "" {
		entry.ErrorCategory = &category
	}
	if err := s.repositories.SendHistoryRepository.Create(ctx, entry); err != nil {
		return errors.Wrap(err, "append send history")
	}
	return nil
}

func (s *queueService) resolveRecipient(ctx context.Context, item *models.QueueItem) (*dto.Recipient, error) {
	ref, err := item.JobRef()
	if err != nil {
		return nil, nil
	}

	switch r := ref.(type) {
	case models.PublicJobRef:
		job, err := s.repositories.JobRepository.GetPublicJob(ctx, r.JobID)
		if err != nil {
			return nil, errors.Wrap(err, "load public job")
		}
		if job == nil {
			return nil, nil
		}
		return &dto.Recipient{
			JobId:        job.ID,
			Email:        job.Email,
			Company:      job.Company,
			JobTitle:     job.JobTitle,
			VisaType:     job.VisaType,
			Phone:        job.Phone,
			Description:  job.Description,
			Requirements: job.Requirements,
		}, nil
	case models.ManualJobRef:
		job, err := s.repositories.JobRepository.GetManualJob(ctx, r.ManualJobID)
		if err != nil {
			return nil, errors.Wrap(err, "load manual job")
		}
		if job == nil {
			return nil, nil
		}
		return &dto.Recipient{
			JobId:     job.ID,
			IsManual:  true,
			Email:     job.Email,
			Company:   job.Company,
			JobTitle:  job.JobTitle,
			EtaNumber: job.EtaNumber,
			Phone:     job.Phone,
		}, nil
	default:
		return nil, nil
	}
}

// settleAttempted records the final status of an item the transport already saw. It never puts the item back to pending;
// if the write fails too the item stays in processing.
func (s *queueService) settleAttempted(itemId string, result attemptResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var err error
	if result.outcome == outcomeSent {
		err = s.repositories.QueueItemRepository.MarkSent(ctx, itemId, s.now())
	} else {
		err = s.repositories.QueueItemRepository.MarkFailed(ctx, itemId, result.message, s.now())
	}
	if err != nil {
		s.log.Errorf("failed to settle attempted item %s, leaving it claimed: %v", itemId, err)
	}
}

// releaseClaim is best effort. It runs after an infrastructure failure so it gets its own context.
func (s *queueService) releaseClaim(itemId string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.repositories.QueueItemRepository.ReleaseClaim(ctx, itemId); err != nil {
		s.log.Errorf("failed to release claim on %s: %v", itemId, err)
	}
}
