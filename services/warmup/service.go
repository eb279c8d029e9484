package warmup

import (
	"context"
	"strings"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/h2linker/sendqueue/dto"
	"github.com/h2linker/sendqueue/interfaces"
	"github.com/h2linker/sendqueue/internal/enum"
	sqerrors "github.com/h2linker/sendqueue/internal/errors"
	"github.com/h2linker/sendqueue/internal/logger"
	"github.com/h2linker/sendqueue/internal/models"
	"github.com/h2linker/sendqueue/internal/plans"
	"github.com/h2linker/sendqueue/internal/repository"
	"github.com/h2linker/sendqueue/internal/tracing"
	"github.com/h2linker/sendqueue/internal/utils"
)

type warmupService struct {
	log          logger.Logger
	repositories *repository.Repositories
}

func NewWarmupService(log logger.Logger, repos *repository.Repositories) interfaces.WarmupService {
	return &warmupService{
		log:          log,
		repositories: repos,
	}
}

func (s *warmupService) Status(ctx context.Context, userId string) (*dto.WarmupStatus, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WarmupService.Status")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagUser(span, userId)

	profile, err := s.repositories.ProfileRepository.GetById(ctx, userId)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if profile == nil {
		tracing.TraceErr(span, sqerrors.ErrProfileNotFound)
		return nil, sqerrors.ErrProfileNotFound
	}

	credential, err := s.repositories.SmtpCredentialRepository.GetByUserId(ctx, userId)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	status := BuildStatus(profile.Tier(), credential, utils.LocalDate(utils.Now(), profile.Timezone))
	tracing.LogObjectAsJson(span, "status", status)
	return status, nil
}

// BuildStatus derives the warm-up view of a credential. A nil credential is treated as never configured.
func BuildStatus(tier enum.PlanTier, credential *models.SmtpCredential, today string) *dto.WarmupStatus {
	var (
		current     *int
		riskProfile *enum.RiskProfile
	)
	status := &dto.WarmupStatus{
		PlanTier: tier,
		PlanMax:  plans.DailyCap(tier),
	}

	if credential != nil {
		current = credential.CurrentDailyLimit
		riskProfile = credential.RiskProfile
		status.LastUsageDate = credential.LastUsageDate
		status.WarmupStartedAt = credential.WarmupStartedAt
		// a counter from an earlier day has not been rolled over yet
		if credential.LastUsageDate == today {
			status.EmailsSentToday = credential.EmailsSentToday
		}
	}

	status.RiskProfile = riskProfile
	status.CurrentDailyLimit = plans.CurrentLimit(tier, current, riskProfile)
	status.EffectiveLimit = plans.EffectiveLimit(tier, current, riskProfile)
	status.Phase = plans.Phase(tier, current, riskProfile)
	status.IsMaxSpeed = status.CurrentDailyLimit >= status.PlanMax
	status.IsWarmingUp = !status.IsMaxSpeed && tier != enum.PlanFree
	status.NeedsProfile = tier != enum.PlanFree && (riskProfile == nil || !riskProfile.Valid())

	if status.IsWarmingUp {
		profile := plans.DefaultRiskProfile
		if riskProfile != nil && riskProfile.Valid() {
			profile = *riskProfile
		}
		status.NextIncrement = plans.WarmupIncrement(profile)
	}

	status.Remaining = status.EffectiveLimit - status.EmailsSentToday
	if status.Remaining < 0 {
		status.Remaining = 0
	}
	return status
}

// SaveCredential stores the mailbox and, on the first profile selection only, starts the warm-up.
func (s *warmupService) SaveCredential(ctx context.Context, userId string, request dto.SaveCredentialRequest) (*dto.SaveCredentialResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WarmupService.SaveCredential")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagUser(span, userId)
	span.LogKV("provider", request.Provider, "riskProfile", request.RiskProfile, "password.set", request.Password != "")

	email := utils.NormalizeEmail(request.Email)
	validation := mailvalidate.ValidateEmailSyntax(email)
	if !validation.IsValid {
		tracing.TraceErr(span, sqerrors.ErrInvalidRecipient)
		return nil, errors.Wrapf(sqerrors.ErrInvalidRecipient, "sender %q", request.Email)
	}

	var riskProfile *enum.RiskProfile
	if strings.TrimSpace(request.RiskProfile) != "" {
		rp := enum.RiskProfile(strings.ToLower(strings.TrimSpace(request.RiskProfile)))
		if !rp.Valid() {
			tracing.TraceErr(span, sqerrors.ErrInvalidRiskProfile)
			return nil, sqerrors.ErrInvalidRiskProfile
		}
		riskProfile = &rp
	}

	profile, err := s.repositories.ProfileRepository.GetById(ctx, userId)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if profile == nil {
		tracing.TraceErr(span, sqerrors.ErrProfileNotFound)
		return nil, sqerrors.ErrProfileNotFound
	}

	err = s.repositories.SmtpCredentialRepository.Upsert(ctx, &models.SmtpCredential{
		UserID:   userId,
		Provider: enum.GetEmailProvider(request.Provider),
		Email:    email,
		Password: request.Password,
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	result := &dto.SaveCredentialResult{}
	now := utils.Now()

	if riskProfile != nil {
		result.Seeded, err = s.repositories.SmtpCredentialRepository.SeedWarmup(ctx, userId, *riskProfile, plans.WarmupSeed(*riskProfile), now)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		if !result.Seeded {
			// warm-up already running: only remember the new choice
			if err = s.repositories.SmtpCredentialRepository.SetRiskProfile(ctx, userId, *riskProfile); err != nil {
				tracing.TraceErr(span, err)
				return nil, err
			}
		}
	}

	if request.Password != "" {
		if err = s.repositories.ProfileRepository.ResetConsecutiveErrors(ctx, userId); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		result.Resumed, err = s.repositories.QueueItemRepository.ResumePaused(ctx, userId)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		if result.Resumed > 0 {
			s.log.With(zap.String("userId", userId)).Infof("resumed %d paused queue items after credential update", result.Resumed)
		}
	}

	span.LogFields(tracingLog.Bool("result.seeded", result.Seeded), tracingLog.Int64("result.resumed", result.Resumed))

	result.Status, err = s.Status(ctx, userId)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return result, nil
}

// RolloverDay starts the user's new usage day if needed and returns today's local date.
func (s *warmupService) RolloverDay(ctx context.Context, userId, timezone string, now time.Time) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WarmupService.RolloverDay")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagUser(span, userId)

	today := utils.LocalDate(now, timezone)
	yesterday := utils.PreviousLocalDate(now, timezone)
	span.LogKV("today", today, "timezone", timezone)

	rolled, err := s.repositories.SmtpCredentialRepository.RolloverDay(ctx, userId, today, yesterday)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	reset, err := s.repositories.ProfileRepository.ResetDailyCreditsIfStale(ctx, userId, today)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	span.LogFields(tracingLog.Bool("result.rolled", rolled), tracingLog.Bool("result.creditsReset", reset))
	return today, nil
}

// Escalate raises the daily limit of every warming sender that used enough of yesterday's allowance.
func (s *warmupService) Escalate(ctx context.Context, now time.Time) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WarmupService.Escalate")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	candidates, err := s.repositories.SmtpCredentialRepository.GetEscalationCandidates(ctx, plans.PaidTiers())
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}

	escalated := 0
	startOfDay := utils.StartOfDayInUTC(now)
	for _, c := range candidates {
		current := c.CurrentDailyLimit
		riskProfile := c.RiskProfile
		planMax := plans.DailyCap(c.PlanTier)
		if current >= planMax {
			continue
		}
		effective := plans.EffectiveLimit(c.PlanTier, &current, &riskProfile)
		if !plans.ShouldEscalate(c.PreviousDaySent, effective) {
			continue
		}

		ok, err := s.repositories.SmtpCredentialRepository.Escalate(ctx, c.UserID, plans.WarmupIncrement(riskProfile), planMax, startOfDay, now)
		if err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("failed to escalate warm-up for user %s: %v", c.UserID, err)
			continue
		}
		if ok {
			escalated++
		}
	}

	span.LogFields(tracingLog.Int("candidates", len(candidates)), tracingLog.Int("result.escalated", escalated))
	s.log.Infof("warm-up escalation: %d of %d candidates escalated", escalated, len(candidates))
	return escalated, nil
}

// ResetDailyCounters rolls every sender whose usage day is stale into its new local day.
func (s *warmupService) ResetDailyCounters(ctx context.Context, now time.Time) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WarmupService.ResetDailyCounters")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	candidates, err := s.repositories.SmtpCredentialRepository.GetUsageDayCandidates(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}

	processed := 0
	for _, c := range candidates {
		if _, err := s.RolloverDay(ctx, c.UserID, c.Timezone, now); err != nil {
			s.log.Errorf("failed to roll over usage day for user %s: %v", c.UserID, err)
			continue
		}
		processed++
	}

	span.LogFields(tracingLog.Int("result.processed", processed))
	return processed, nil
}

// SentToday is the larger of the mailbox counter and the profile credits, each counted only when dated today.
func SentToday(profile *models.Profile, credential *models.SmtpCredential, today string) int {
	sent := 0
	if credential != nil && credential.LastUsageDate == today {
		sent = credential.EmailsSentToday
	}
	if profile != nil && profile.CreditsResetDate == today && profile.CreditsUsedToday > sent {
		sent = profile.CreditsUsedToday
	}
	return sent
}
