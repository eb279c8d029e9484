package radar

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/h2linker/sendqueue/config"
	"github.com/h2linker/sendqueue/dto"
	"github.com/h2linker/sendqueue/interfaces"
	"github.com/h2linker/sendqueue/internal/enum"
	sqerrors "github.com/h2linker/sendqueue/internal/errors"
	"github.com/h2linker/sendqueue/internal/logger"
	"github.com/h2linker/sendqueue/internal/metrics"
	"github.com/h2linker/sendqueue/internal/models"
	"github.com/h2linker/sendqueue/internal/plans"
	"github.com/h2linker/sendqueue/internal/repository"
	"github.com/h2linker/sendqueue/internal/tracing"
	"github.com/h2linker/sendqueue/internal/utils"
	"github.com/h2linker/sendqueue/services/warmup"
)

const defaultJobLimit = 500

type radarService struct {
	log          logger.Logger
	repositories *repository.Repositories
	warmup       interfaces.WarmupService
	dispatcher   interfaces.DrainDispatcher
	metrics      *metrics.Metrics
	cfg          *config.RadarConfig
	now          func() time.Time
}

func NewRadarService(log logger.Logger, repos *repository.Repositories, warmupService interfaces.WarmupService, dispatcher interfaces.DrainDispatcher, m *metrics.Metrics, cfg *config.RadarConfig) interfaces.RadarService {
	if cfg == nil {
		cfg = &config.RadarConfig{JobLimit: defaultJobLimit, Concurrency: 4}
	}
	return &radarService{
		log:          log,
		repositories: repos,
		warmup:       warmupService,
		dispatcher:   dispatcher,
		metrics:      m,
		cfg:          cfg,
		now:          utils.Now,
	}
}

// Scan runs every active radar profile. A failing user is logged and counted, the rest keep going.
func (s *radarService) Scan(ctx context.Context) (*dto.RadarScanSummary, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RadarService.Scan")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	profiles, err := s.repositories.RadarRepository.GetActiveProfiles(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	result := &dto.RadarScanSummary{}
	var mu sync.Mutex

	concurrency := s.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, group := range groupByUser(profiles) {
		group := group
		g.Go(func() error {
			summary, err := s.scanUser(gctx, group)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Errorf("radar scan failed for user %s: %v", group[0].UserID, err)
				result.ProfilesScanned += len(group)
				result.UsersFailed++
				return nil
			}
			result.Add(summary)
			return nil
		})
	}
	_ = g.Wait()

	tracing.LogObjectAsJson(span, "summary", result)
	s.log.Infof("radar scan done: %d profiles, %d matches, %d queued", result.ProfilesScanned, result.TotalMatches, result.TotalQueued)
	return result, nil
}

func (s *radarService) ScanUser(ctx context.Context, userId string) (*dto.RadarScanSummary, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RadarService.ScanUser")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagUser(span, userId)

	if userId == "" {
		return nil, errors.WithStack(sqerrors.ErrUserIdNotSet)
	}

	profiles, err := s.repositories.RadarRepository.GetActiveProfilesByUserId(ctx, userId)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if len(profiles) == 0 {
		return &dto.RadarScanSummary{}, nil
	}

	summary, err := s.scanUser(ctx, profiles)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return summary, nil
}

// scanUser handles all active profiles of one user. Credits are shared, so the profiles run in order.
func (s *radarService) scanUser(ctx context.Context, radarProfiles []*models.RadarProfile) (*dto.RadarScanSummary, error) {
	userId := radarProfiles[0].UserID
	span, ctx := opentracing.StartSpanFromContext(ctx, "RadarService.scanUser")
	defer span.Finish()
	tracing.TagUser(span, userId)

	log := s.log.With(zap.String("userId", userId))
	summary := &dto.RadarScanSummary{ProfilesScanned: len(radarProfiles)}

	profile, err := s.repositories.ProfileRepository.GetById(ctx, userId)
	if err != nil {
		return nil, errors.Wrap(err, "load profile")
	}
	if profile == nil || !plans.IsPremium(profile.Tier()) {
		log.Infof("skipping radar: plan %v is not premium", tierOf(profile))
		summary.UsersSkipped++
		return summary, nil
	}

	now := s.now()
	today, err := s.warmup.RolloverDay(ctx, userId, profile.Timezone, now)
	if err != nil {
		return nil, errors.Wrap(err, "rollover usage day")
	}
	profile, err = s.repositories.ProfileRepository.GetById(ctx, userId)
	if err != nil {
		return nil, errors.Wrap(err, "reload profile")
	}
	if profile == nil {
		return nil, errors.WithStack(sqerrors.ErrProfileNotFound)
	}
	cred, err := s.repositories.SmtpCredentialRepository.GetByUserId(ctx, userId)
	if err != nil {
		return nil, errors.Wrap(err, "load smtp credential")
	}

	status := warmup.BuildStatus(profile.Tier(), cred, today)
	remaining := status.EffectiveLimit - warmup.SentToday(profile, cred, today)
	if remaining <= 0 {
		log.Infof("skipping radar: no credits remaining")
		summary.UsersSkipped++
		return summary, nil
	}

	queuedAny := false
	for _, radarProfile := range radarProfiles {
		if remaining <= 0 {
			break
		}
		matched, queued, err := s.scanProfile(ctx, radarProfile, remaining)
		if err != nil {
			return nil, err
		}
		summary.TotalMatches += matched
		summary.TotalQueued += queued
		remaining -= matched
		queuedAny = queuedAny || queued > 0
	}

	if queuedAny && s.dispatcher != nil {
		err := s.dispatcher.DispatchDrain(ctx, dto.DrainRequested{UserId: userId, Trigger: enum.DrainTriggerRadar})
		if err != nil {
			// items stay pending for the next cron drain
			log.Errorf("failed to request drain after radar scan: %v", err)
		} else {
			summary.DrainsRequested++
		}
	}

	if err := s.repositories.RadarRepository.TouchLastScan(ctx, userId, now); err != nil {
		return nil, errors.Wrap(err, "touch last scan")
	}

	span.LogFields(tracingLog.Int("matches", summary.TotalMatches), tracingLog.Int("queued", summary.TotalQueued))
	return summary, nil
}

// scanProfile records up to limit new matches and queues them when the profile auto-sends.
func (s *radarService) scanProfile(ctx context.Context, radarProfile *models.RadarProfile, limit int) (int, int, error) {
	filter := repository.JobSearchFilter{
		VisaType:   radarProfile.VisaType,
		State:      radarProfile.State,
		MinWage:    radarProfile.MinWage,
		Categories: []string(radarProfile.Categories),
		Limit:      s.jobLimit(),
	}
	if radarProfile.MaxDaysOld != nil && *radarProfile.MaxDaysOld > 0 {
		since := s.now().AddDate(0, 0, -*radarProfile.MaxDaysOld)
		filter.PostedSince = &since
	}

	jobs, err := s.repositories.JobRepository.SearchPublicJobs(ctx, filter)
	if err != nil {
		return 0, 0, errors.Wrap(err, "search jobs")
	}
	if len(jobs) == 0 {
		return 0, 0, nil
	}

	jobIds := make([]string, 0, len(jobs))
	for _, job := range jobs {
		jobIds = append(jobIds, job.ID)
	}

	matched, err := s.repositories.RadarRepository.GetMatchedJobIds(ctx, radarProfile.UserID, jobIds)
	if err != nil {
		return 0, 0, errors.Wrap(err, "load matched jobs")
	}
	queued, err := s.repositories.QueueItemRepository.GetQueuedJobIds(ctx, radarProfile.UserID, jobIds)
	if err != nil {
		return 0, 0, errors.Wrap(err, "load queued jobs")
	}
	fresh := utils.FirstN(utils.Difference(jobIds, append(matched, queued...)), limit)
	if len(fresh) == 0 {
		return 0, 0, nil
	}

	matches := make([]*models.RadarMatchedJob, 0, len(fresh))
	for _, jobId := range fresh {
		matches = append(matches, &models.RadarMatchedJob{
			UserID:         radarProfile.UserID,
			JobID:          jobId,
			RadarProfileID: radarProfile.ID,
			AutoQueued:     radarProfile.AutoSend,
		})
	}
	if err := s.repositories.RadarRepository.UpsertMatches(ctx, matches); err != nil {
		return 0, 0, errors.Wrap(err, "record matches")
	}
	s.metrics.ObserveRadarMatches(radarProfile.AutoSend, len(matches))

	if !radarProfile.AutoSend {
		return len(fresh), 0, nil
	}

	items := make([]*models.QueueItem, 0, len(fresh))
	for _, jobId := range fresh {
		item := &models.QueueItem{UserID: radarProfile.UserID, Status: enum.QueueStatusPending}
		item.SetJobRef(models.PublicJobRef{JobID: jobId})
		items = append(items, item)
	}
	if err := s.repositories.QueueItemRepository.CreateBatch(ctx, items); err != nil {
		return 0, 0, errors.Wrap(err, "queue matches")
	}
	return len(fresh), len(items), nil
}

func (s *radarService) jobLimit() int {
	if s.cfg.JobLimit <= 0 {
		return defaultJobLimit
	}
	return s.cfg.JobLimit
}

func groupByUser(profiles []*models.RadarProfile) [][]*models.RadarProfile {
	index := map[string]int{}
	var groups [][]*models.RadarProfile
	for _, p := range profiles {
		i, ok := index[p.UserID]
		if !ok {
			i = len(groups)
			index[p.UserID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], p)
	}
	return groups
}

func tierOf(profile *models.Profile) enum.PlanTier {
	if profile == nil {
		return ""
	}
	return profile.Tier()
}
