package radar

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2linker/sendqueue/config"
	"github.com/h2linker/sendqueue/dto"
	"github.com/h2linker/sendqueue/internal/enum"
	"github.com/h2linker/sendqueue/internal/metrics"
	"github.com/h2linker/sendqueue/internal/models"
	"github.com/h2linker/sendqueue/internal/plans"
	"github.com/h2linker/sendqueue/internal/repository"
	"github.com/h2linker/sendqueue/internal/testutil"
	"github.com/h2linker/sendqueue/internal/utils"
	"github.com/h2linker/sendqueue/services/warmup"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	requests []dto.DrainRequested
	err      error
}

func (f *fakeDispatcher) DispatchDrain(_ context.Context, request dto.DrainRequested) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, request)
	return f.err
}

type radarFixture struct {
	ctx        context.Context
	repos      *repository.Repositories
	svc        *radarService
	dispatcher *fakeDispatcher
	metrics    *metrics.Metrics
}

func newRadarFixture(t *testing.T) *radarFixture {
	t.Helper()
	repos := repository.InitRepositories(testutil.NewTestDB(t))
	log := testutil.NewTestLogger()
	f := &radarFixture{
		ctx:        context.Background(),
		repos:      repos,
		dispatcher: &fakeDispatcher{},
		metrics:    metrics.NewMetrics(prometheus.NewRegistry()),
	}
	f.svc = NewRadarService(log, repos, warmup.NewWarmupService(log, repos), f.dispatcher, f.metrics, &config.RadarConfig{JobLimit: 500, Concurrency: 2}).(*radarService)
	return f
}

func (f *radarFixture) createUser(t *testing.T, tier enum.PlanTier) *models.Profile {
	t.Helper()
	age := 40
	profile := &models.Profile{PlanTier: tier, FullName: "Ana Souza", Age: &age, PhoneE164: "+5511977776666", ContactEmail: "ana@example.com", Timezone: "UTC"}
	require.NoError(t, f.repos.ProfileRepository.Create(f.ctx, profile))
	require.NoError(t, f.repos.SmtpCredentialRepository.Upsert(f.ctx, &models.SmtpCredential{
		UserID: profile.ID, Provider: enum.EmailProviderGmail, Email: "ana@gmail.com", Password: "secret",
	}))
	_, err := f.repos.SmtpCredentialRepository.SeedWarmup(f.ctx, profile.ID, enum.RiskProfileConservative, plans.WarmupSeed(enum.RiskProfileConservative), utils.Now())
	require.NoError(t, err)
	return profile
}

func (f *radarFixture) createJobs(t *testing.T, n int, visa, state string) []*models.PublicJob {
	t.Helper()
	jobs := make([]*models.PublicJob, 0, n)
	for i := 0; i < n; i++ {
		posted := utils.Now().Add(-time.Duration(i) * time.Hour)
		job := &models.PublicJob{
			Company:    fmt.Sprintf("%s Farm %d", state, i),
			JobTitle:   "Harvest worker",
			Email:      fmt.Sprintf("hr%d@%s.example.com", i, state),
			VisaType:   visa,
			State:      state,
			Category:   "agriculture",
			PostedDate: &posted,
			IsActive:   true,
		}
		require.NoError(t, f.repos.JobRepository.CreatePublicJob(f.ctx, job))
		jobs = append(jobs, job)
	}
	return jobs
}

func (f *radarFixture) createRadar(t *testing.T, userId string, autoSend bool, visa, state string) *models.RadarProfile {
	t.Helper()
	radar := &models.RadarProfile{UserID: userId, IsActive: true, AutoSend: autoSend, VisaType: visa, State: state}
	require.NoError(t, f.repos.RadarRepository.CreateProfile(f.ctx, radar))
	return radar
}

func TestScan_AutoSendQueuesAndRequestsDrain(t *testing.T) {
	f := newRadarFixture(t)
	user := f.createUser(t, enum.PlanDiamond)
	f.createJobs(t, 3, "H-2A", "Texas")
	f.createJobs(t, 2, "H-2B", "Texas")
	f.createRadar(t, user.ID, true, "H-2A", "texas")

	summary, err := f.svc.Scan(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ProfilesScanned)
	assert.Equal(t, 3, summary.TotalMatches)
	assert.Equal(t, 3, summary.TotalQueued)
	assert.Equal(t, 1, summary.DrainsRequested)

	pending, err := f.repos.QueueItemRepository.CountPending(f.ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pending)

	require.Len(t, f.dispatcher.requests, 1)
	assert.Equal(t, user.ID, f.dispatcher.requests[0].UserId)
	assert.Equal(t, enum.DrainTriggerRadar, f.dispatcher.requests[0].Trigger)

	matches, err := f.repos.RadarRepository.GetMatchesByUserId(f.ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.True(t, matches[0].AutoQueued)
	assert.Equal(t, float64(3), promtestutil.ToFloat64(f.metrics.RadarMatches.WithLabelValues("true")))

	// a second scan finds nothing new
	summary, err = f.svc.Scan(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalMatches)
	assert.Len(t, f.dispatcher.requests, 1)
}

func TestScan_MatchesOnlyWithoutAutoSend(t *testing.T) {
	f := newRadarFixture(t)
	user := f.createUser(t, enum.PlanBlack)
	f.createJobs(t, 2, "H-2B", "Ohio")
	f.createRadar(t, user.ID, false, "H-2B", "")

	summary, err := f.svc.ScanUser(f.ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalMatches)
	assert.Equal(t, 0, summary.TotalQueued)
	assert.Empty(t, f.dispatcher.requests)

	pending, err := f.repos.QueueItemRepository.CountPending(f.ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestScan_SkipsNonPremiumUsers(t *testing.T) {
	f := newRadarFixture(t)
	gold := f.createUser(t, enum.PlanGold)
	f.createJobs(t, 2, "H-2A", "Iowa")
	f.createRadar(t, gold.ID, true, "H-2A", "Iowa")

	summary, err := f.svc.Scan(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.UsersSkipped)
	assert.Equal(t, 0, summary.TotalMatches)
}

func TestScan_BoundedByRemainingCredits(t *testing.T) {
	f := newRadarFixture(t)
	user := f.createUser(t, enum.PlanDiamond)
	f.createJobs(t, 5, "H-2A", "Georgia")
	f.createRadar(t, user.ID, true, "H-2A", "Georgia")

	today := utils.LocalDate(utils.Now(), "UTC")
	for i := 0; i < 48; i++ {
		require.NoError(t, f.repos.SmtpCredentialRepository.IncrementEmailsSent(f.ctx, user.ID, today))
	}

	summary, err := f.svc.Scan(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalQueued)
}

func TestScan_SkipsAlreadyQueuedJobs(t *testing.T) {
	f := newRadarFixture(t)
	user := f.createUser(t, enum.PlanDiamond)
	jobs := f.createJobs(t, 3, "H-2A", "Idaho")
	f.createRadar(t, user.ID, true, "H-2A", "Idaho")

	item := &models.QueueItem{UserID: user.ID}
	item.SetJobRef(models.PublicJobRef{JobID: jobs[0].ID})
	require.NoError(t, f.repos.QueueItemRepository.Create(f.ctx, item))

	summary, err := f.svc.Scan(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalQueued)

	pending, err := f.repos.QueueItemRepository.CountPending(f.ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pending)
}

func TestScan_DispatchFailureKeepsItemsQueued(t *testing.T) {
	f := newRadarFixture(t)
	f.dispatcher.err = errors.New("broker down")
	user := f.createUser(t, enum.PlanBlack)
	f.createJobs(t, 1, "H-2A", "Utah")
	f.createRadar(t, user.ID, true, "H-2A", "Utah")

	summary, err := f.svc.Scan(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalQueued)
	assert.Equal(t, 0, summary.DrainsRequested)
	assert.Equal(t, 0, summary.UsersFailed)
}

func TestScan_MissingProfileIsIsolated(t *testing.T) {
	f := newRadarFixture(t)
	user := f.createUser(t, enum.PlanDiamond)
	f.createJobs(t, 1, "H-2A", "Maine")
	f.createRadar(t, user.ID, true, "H-2A", "Maine")
	f.createRadar(t, "user_gone", true, "H-2A", "Maine")

	summary, err := f.svc.Scan(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ProfilesScanned)
	assert.Equal(t, 1, summary.UsersSkipped)
	assert.Equal(t, 1, summary.TotalQueued)
}

func TestGroupByUser(t *testing.T) {
	groups := groupByUser([]*models.RadarProfile{{UserID: "a"}, {UserID: "b"}, {UserID: "a"}})
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[1], 1)
}
