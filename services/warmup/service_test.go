package warmup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2linker/sendqueue/dto"
	"github.com/h2linker/sendqueue/internal/enum"
	sqerrors "github.com/h2linker/sendqueue/internal/errors"
	"github.com/h2linker/sendqueue/internal/models"
	"github.com/h2linker/sendqueue/internal/repository"
	"github.com/h2linker/sendqueue/internal/testutil"
	"github.com/h2linker/sendqueue/internal/utils"
)

func newService(t *testing.T) (*warmupService, *repository.Repositories) {
	repos := repository.InitRepositories(testutil.NewTestDB(t))
	svc := NewWarmupService(testutil.NewTestLogger(), repos).(*warmupService)
	return svc, repos
}

func createProfile(t *testing.T, repos *repository.Repositories, tier enum.PlanTier) *models.Profile {
	age := 28
	profile := &models.Profile{
		PlanTier:     tier,
		FullName:     "Joao Lima",
		Age:          &age,
		PhoneE164:    "+5521988887777",
		ContactEmail: "joao@example.com",
		Timezone:     "UTC",
	}
	require.NoError(t, repos.ProfileRepository.Create(context.Background(), profile))
	return profile
}

func TestBuildStatus_GoldSeededIsWarmingUp(t *testing.T) {
	limit := 50
	rp := enum.RiskProfileConservative
	status := BuildStatus(enum.PlanGold, &models.SmtpCredential{CurrentDailyLimit: &limit, RiskProfile: &rp}, "2026-03-01")

	assert.True(t, status.IsWarmingUp)
	assert.False(t, status.IsMaxSpeed)
	assert.Equal(t, 50, status.EffectiveLimit)
	assert.Equal(t, 150, status.PlanMax)
	assert.Equal(t, enum.WarmupPhaseWarmingUp, status.Phase)
	assert.Equal(t, 20, status.NextIncrement)
}

func TestBuildStatus_FreeBypassesWarmup(t *testing.T) {
	status := BuildStatus(enum.PlanFree, nil, "2026-03-01")

	assert.Equal(t, 5, status.CurrentDailyLimit)
	assert.Equal(t, 5, status.EffectiveLimit)
	assert.False(t, status.IsWarmingUp)
	assert.False(t, status.NeedsProfile)
}

func TestBuildStatus_PaidWithoutProfileGetsConservativeDefault(t *testing.T) {
	status := BuildStatus(enum.PlanDiamond, &models.SmtpCredential{Email: "a@gmail.com"}, "2026-03-01")

	assert.True(t, status.NeedsProfile)
	assert.Equal(t, 50, status.EffectiveLimit)
	assert.Equal(t, enum.WarmupPhaseNoProfile, status.Phase)
}

func TestBuildStatus_IgnoresStaleDayCounter(t *testing.T) {
	limit := 100
	rp := enum.RiskProfileStandard
	credential := &models.SmtpCredential{CurrentDailyLimit: &limit, RiskProfile: &rp, EmailsSentToday: 80, LastUsageDate: "2026-02-28"}

	status := BuildStatus(enum.PlanGold, credential, "2026-03-01")
	assert.Equal(t, 0, status.EmailsSentToday)
	assert.Equal(t, 100, status.Remaining)

	status = BuildStatus(enum.PlanGold, credential, "2026-02-28")
	assert.Equal(t, 20, status.Remaining)
}

func TestSaveCredential_SeedsOnlyOnce(t *testing.T) {
	svc, repos := newService(t)
	ctx := context.Background()
	profile := createProfile(t, repos, enum.PlanGold)

	first, err := svc.SaveCredential(ctx, profile.ID, dto.SaveCredentialRequest{
		Provider: "gmail", Email: "joao@gmail.com", Password: "app-pass-1", RiskProfile: "standard",
	})
	require.NoError(t, err)
	assert.True(t, first.Seeded)
	assert.Equal(t, 100, first.Status.CurrentDailyLimit)
	require.NotNil(t, first.Status.WarmupStartedAt)
	startedAt := *first.Status.WarmupStartedAt

	second, err := svc.SaveCredential(ctx, profile.ID, dto.SaveCredentialRequest{
		Provider: "gmail", Email: "joao@gmail.com", Password: "app-pass-2", RiskProfile: "aggressive",
	})
	require.NoError(t, err)
	assert.False(t, second.Seeded)
	assert.Equal(t, 100, second.Status.CurrentDailyLimit)
	assert.True(t, startedAt.Equal(*second.Status.WarmupStartedAt))
	assert.Equal(t, enum.RiskProfileAggressive, *second.Status.RiskProfile)
}

func TestSaveCredential_Validation(t *testing.T) {
	svc, repos := newService(t)
	ctx := context.Background()
	profile := createProfile(t, repos, enum.PlanGold)

	_, err := svc.SaveCredential(ctx, profile.ID, dto.SaveCredentialRequest{Email: "not-an-email"})
	assert.ErrorIs(t, err, sqerrors.ErrInvalidRecipient)

	_, err = svc.SaveCredential(ctx, profile.ID, dto.SaveCredentialRequest{Email: "joao@gmail.com", RiskProfile: "reckless"})
	assert.ErrorIs(t, err, sqerrors.ErrInvalidRiskProfile)

	_, err = svc.SaveCredential(ctx, "user_missing", dto.SaveCredentialRequest{Email: "joao@gmail.com"})
	assert.ErrorIs(t, err, sqerrors.ErrProfileNotFound)
}

func TestSaveCredential_PasswordResumesPausedItems(t *testing.T) {
	svc, repos := newService(t)
	ctx := context.Background()
	profile := createProfile(t, repos, enum.PlanGold)

	job := &models.PublicJob{Company: "Acme", Email: "hr@acme.com", IsActive: true}
	require.NoError(t, repos.JobRepository.CreatePublicJob(ctx, job))
	item := &models.QueueItem{UserID: profile.ID}
	item.SetJobRef(models.PublicJobRef{JobID: job.ID})
	require.NoError(t, repos.QueueItemRepository.Create(ctx, item))
	_, err := repos.QueueItemRepository.PauseAllPending(ctx, profile.ID, "auth failed")
	require.NoError(t, err)
	require.NoError(t, repos.ProfileRepository.IncrementConsecutiveErrors(ctx, profile.ID))

	result, err := svc.SaveCredential(ctx, profile.ID, dto.SaveCredentialRequest{Email: "joao@gmail.com", Password: "fresh"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Resumed)

	stored, err := repos.QueueItemRepository.GetById(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.QueueStatusPending, stored.Status)

	storedProfile, err := repos.ProfileRepository.GetById(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, storedProfile.ConsecutiveErrors)
}

func TestEscalate(t *testing.T) {
	svc, repos := newService(t)
	ctx := context.Background()
	busy := createProfile(t, repos, enum.PlanGold)
	quiet := createProfile(t, repos, enum.PlanGold)

	for _, p := range []*models.Profile{busy, quiet} {
		_, err := svc.SaveCredential(ctx, p.ID, dto.SaveCredentialRequest{Email: "sender@gmail.com", Password: "x", RiskProfile: "conservative"})
		require.NoError(t, err)
	}

	day1 := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	for i := 0; i < 40; i++ {
		require.NoError(t, repos.SmtpCredentialRepository.IncrementEmailsSent(ctx, busy.ID, "2026-03-01"))
	}
	for i := 0; i < 39; i++ {
		require.NoError(t, repos.SmtpCredentialRepository.IncrementEmailsSent(ctx, quiet.ID, "2026-03-01"))
	}

	day2 := day1.Add(10 * time.Hour)
	processed, err := svc.ResetDailyCounters(ctx, day2)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	escalated, err := svc.Escalate(ctx, day2)
	require.NoError(t, err)
	assert.Equal(t, 1, escalated)

	escalated, err = svc.Escalate(ctx, day2.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, escalated)

	busyCred, err := repos.SmtpCredentialRepository.GetByUserId(ctx, busy.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, *busyCred.CurrentDailyLimit)
	assert.Equal(t, 40, busyCred.PreviousDaySent)

	quietCred, err := repos.SmtpCredentialRepository.GetByUserId(ctx, quiet.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, *quietCred.CurrentDailyLimit)
}

func TestRolloverDay_UsesUserTimezone(t *testing.T) {
	svc, repos := newService(t)
	ctx := context.Background()
	profile := createProfile(t, repos, enum.PlanGold)
	_, err := svc.SaveCredential(ctx, profile.ID, dto.SaveCredentialRequest{Email: "joao@gmail.com", Password: "x"})
	require.NoError(t, err)

	// 02:00 UTC is still the previous evening in Sao Paulo
	now := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)
	today, err := svc.RolloverDay(ctx, profile.ID, "America/Sao_Paulo", now)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", today)
	assert.Equal(t, "2026-03-02", utils.LocalDate(now, "UTC"))
}
