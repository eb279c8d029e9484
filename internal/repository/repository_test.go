package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2linker/sendqueue/internal/enum"
	"github.com/h2linker/sendqueue/internal/models"
	"github.com/h2linker/sendqueue/internal/repository"
	"github.com/h2linker/sendqueue/internal/testutil"
	"github.com/h2linker/sendqueue/internal/utils"
)

func setup(t *testing.T) (*repository.Repositories, context.Context) {
	db := testutil.NewTestDB(t)
	return repository.InitRepositories(db), context.Background()
}

func createUser(t *testing.T, ctx context.Context, repos *repository.Repositories, tier enum.PlanTier) *models.Profile {
	age := 30
	profile := &models.Profile{
		PlanTier:     tier,
		FullName:     "Maria Souza",
		Age:          &age,
		PhoneE164:    "+5511999999999",
		ContactEmail: "maria@example.com",
		Timezone:     "UTC",
	}
	require.NoError(t, repos.ProfileRepository.Create(ctx, profile))
	return profile
}

func createPending(t *testing.T, ctx context.Context, repos *repository.Repositories, userId string, createdAt time.Time) *models.QueueItem {
	job := &models.PublicJob{Company: "Acme Farms", JobTitle: "Farmworker", Email: "jobs@acme.com", IsActive: true}
	require.NoError(t, repos.JobRepository.CreatePublicJob(ctx, job))

	item := &models.QueueItem{UserID: userId, CreatedAt: createdAt}
	item.SetJobRef(models.PublicJobRef{JobID: job.ID})
	require.NoError(t, repos.QueueItemRepository.Create(ctx, item))
	return item
}

func TestQueueItemRepository_CreateRejectsInvalidJobRef(t *testing.T) {
	repos, ctx := setup(t)
	user := createUser(t, ctx, repos, enum.PlanGold)

	err := repos.QueueItemRepository.Create(ctx, &models.QueueItem{UserID: user.ID})
	require.Error(t, err)

	jobId, manualId := "job_1", "mjob_1"
	err = repos.QueueItemRepository.Create(ctx, &models.QueueItem{UserID: user.ID, JobID: &jobId, ManualJobID: &manualId})
	require.Error(t, err)
}

func TestQueueItemRepository_GetPendingIsFifoAndCapped(t *testing.T) {
	repos, ctx := setup(t)
	user := createUser(t, ctx, repos, enum.PlanGold)

	base := utils.Now().Add(-time.Hour)
	third := createPending(t, ctx, repos, user.ID, base.Add(3*time.Minute))
	first := createPending(t, ctx, repos, user.ID, base.Add(1*time.Minute))
	second := createPending(t, ctx, repos, user.ID, base.Add(2*time.Minute))

	items, err := repos.QueueItemRepository.GetPending(ctx, user.ID, nil, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, first.ID, items[0].ID)
	assert.Equal(t, second.ID, items[1].ID)

	items, err = repos.QueueItemRepository.GetPending(ctx, user.ID, []string{third.ID}, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, third.ID, items[0].ID)

	items, err = repos.QueueItemRepository.GetPending(ctx, user.ID, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestQueueItemRepository_ClaimIsExclusive(t *testing.T) {
	repos, ctx := setup(t)
	user := createUser(t, ctx, repos, enum.PlanGold)
	item := createPending(t, ctx, repos, user.ID, utils.Now())

	claimed, err := repos.QueueItemRepository.Claim(ctx, item.ID, utils.Now())
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repos.QueueItemRepository.Claim(ctx, item.ID, utils.Now())
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, repos.QueueItemRepository.MarkSent(ctx, item.ID, utils.Now()))

	stored, err := repos.QueueItemRepository.GetById(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.QueueStatusSent, stored.Status)
	assert.Equal(t, 1, stored.SendCount)
	assert.NotNil(t, stored.SentAt)
	assert.Nil(t, stored.ProcessingStartedAt)
}

func TestQueueItemRepository_PauseResumeAndRequeue(t *testing.T) {
	repos, ctx := setup(t)
	user := createUser(t, ctx, repos, enum.PlanGold)
	a := createPending(t, ctx, repos, user.ID, utils.Now())
	createPending(t, ctx, repos, user.ID, utils.Now())

	paused, err := repos.QueueItemRepository.PauseAllPending(ctx, user.ID, "paused")
	require.NoError(t, err)
	assert.Equal(t, int64(2), paused)

	count, err := repos.QueueItemRepository.CountActive(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	pending, err := repos.QueueItemRepository.CountPending(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)

	resumed, err := repos.QueueItemRepository.ResumePaused(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), resumed)

	ok, err := repos.QueueItemRepository.Requeue(ctx, user.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, ok, "pending items are not requeued")

	_, err = repos.QueueItemRepository.Claim(ctx, a.ID, utils.Now())
	require.NoError(t, err)
	require.NoError(t, repos.QueueItemRepository.MarkFailed(ctx, a.ID, "535 auth", utils.Now()))

	ok, err = repos.QueueItemRepository.Requeue(ctx, "someone-else", a.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repos.QueueItemRepository.Requeue(ctx, user.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestQueueItemRepository_GetUserIdsWithPending(t *testing.T) {
	repos, ctx := setup(t)
	gold := createUser(t, ctx, repos, enum.PlanGold)
	free := createUser(t, ctx, repos, enum.PlanFree)
	createPending(t, ctx, repos, gold.ID, utils.Now())
	createPending(t, ctx, repos, gold.ID, utils.Now())
	createPending(t, ctx, repos, free.ID, utils.Now())

	ids, err := repos.QueueItemRepository.GetUserIdsWithPending(ctx, []enum.PlanTier{enum.PlanGold, enum.PlanDiamond})
	require.NoError(t, err)
	assert.Equal(t, []string{gold.ID}, ids)
}

func TestSmtpCredentialRepository_SeedWarmupIsIdempotent(t *testing.T) {
	repos, ctx := setup(t)
	user := createUser(t, ctx, repos, enum.PlanGold)

	require.NoError(t, repos.SmtpCredentialRepository.Upsert(ctx, &models.SmtpCredential{
		UserID: user.ID, Provider: enum.EmailProviderGmail, Email: "maria@gmail.com", Password: "app-pass",
	}))

	firstStamp := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	seeded, err := repos.SmtpCredentialRepository.SeedWarmup(ctx, user.ID, enum.RiskProfileConservative, 50, firstStamp)
	require.NoError(t, err)
	assert.True(t, seeded)

	seeded, err = repos.SmtpCredentialRepository.SeedWarmup(ctx, user.ID, enum.RiskProfileAggressive, 150, firstStamp.Add(48*time.Hour))
	require.NoError(t, err)
	assert.False(t, seeded)

	// re-saving the mailbox with a new password must not touch the warm-up columns
	require.NoError(t, repos.SmtpCredentialRepository.Upsert(ctx, &models.SmtpCredential{
		UserID: user.ID, Provider: enum.EmailProviderGmail, Email: "maria@gmail.com", Password: "new-pass",
	}))

	cred, err := repos.SmtpCredentialRepository.GetByUserId(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, cred.CurrentDailyLimit)
	assert.Equal(t, 50, *cred.CurrentDailyLimit)
	assert.Equal(t, enum.RiskProfileConservative, *cred.RiskProfile)
	require.NotNil(t, cred.WarmupStartedAt)
	assert.True(t, firstStamp.Equal(*cred.WarmupStartedAt))
	assert.Equal(t, "new-pass", cred.Password)
	assert.True(t, cred.HasPassword)
}

func TestSmtpCredentialRepository_UpsertKeepsPasswordWhenEmpty(t *testing.T) {
	repos, ctx := setup(t)
	user := createUser(t, ctx, repos, enum.PlanGold)

	require.NoError(t, repos.SmtpCredentialRepository.Upsert(ctx, &models.SmtpCredential{
		UserID: user.ID, Provider: enum.EmailProviderGmail, Email: "maria@gmail.com", Password: "secret",
	}))
	require.NoError(t, repos.SmtpCredentialRepository.Upsert(ctx, &models.SmtpCredential{
		UserID: user.ID, Provider: enum.EmailProviderOutlook, Email: "maria@outlook.com",
	}))

	cred, err := repos.SmtpCredentialRepository.GetByUserId(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.EmailProviderOutlook, cred.Provider)
	assert.Equal(t, "maria@outlook.com", cred.Email)
	assert.Equal(t, "secret", cred.Password)
}

func TestSmtpCredentialRepository_RolloverAndEscalate(t *testing.T) {
	repos, ctx := setup(t)
	user := createUser(t, ctx, repos, enum.PlanGold)
	credRepo := repos.SmtpCredentialRepository

	require.NoError(t, credRepo.Upsert(ctx, &models.SmtpCredential{UserID: user.ID, Email: "maria@gmail.com", Password: "x"}))
	_, err := credRepo.SeedWarmup(ctx, user.ID, enum.RiskProfileAggressive, 140, utils.Now())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, credRepo.IncrementEmailsSent(ctx, user.ID, "2026-03-01"))
	}

	rolled, err := credRepo.RolloverDay(ctx, user.ID, "2026-03-02", "2026-03-01")
	require.NoError(t, err)
	assert.True(t, rolled)

	rolled, err = credRepo.RolloverDay(ctx, user.ID, "2026-03-02", "2026-03-01")
	require.NoError(t, err)
	assert.False(t, rolled)

	cred, err := credRepo.GetByUserId(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, cred.EmailsSentToday)
	assert.Equal(t, 3, cred.PreviousDaySent)
	assert.Equal(t, "2026-03-02", cred.LastUsageDate)

	now := time.Date(2026, 3, 2, 0, 15, 0, 0, time.UTC)
	escalated, err := credRepo.Escalate(ctx, user.ID, 75, 150, utils.StartOfDayInUTC(now), now)
	require.NoError(t, err)
	assert.True(t, escalated)

	escalated, err = credRepo.Escalate(ctx, user.ID, 75, 150, utils.StartOfDayInUTC(now), now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, escalated, "escalation happens at most once a day")

	cred, err = credRepo.GetByUserId(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 150, *cred.CurrentDailyLimit)

	next := now.Add(24 * time.Hour)
	escalated, err = credRepo.Escalate(ctx, user.ID, 75, 150, utils.StartOfDayInUTC(next), next)
	require.NoError(t, err)
	assert.False(t, escalated, "already at plan max")
}

func TestSmtpCredentialRepository_RolloverAfterGap(t *testing.T) {
	repos, ctx := setup(t)
	user := createUser(t, ctx, repos, enum.PlanGold)
	credRepo := repos.SmtpCredentialRepository

	require.NoError(t, credRepo.Upsert(ctx, &models.SmtpCredential{UserID: user.ID, Email: "maria@gmail.com", Password: "x"}))
	require.NoError(t, credRepo.IncrementEmailsSent(ctx, user.ID, "2026-03-01"))

	_, err := credRepo.RolloverDay(ctx, user.ID, "2026-03-05", "2026-03-04")
	require.NoError(t, err)

	cred, err := credRepo.GetByUserId(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, cred.PreviousDaySent)
}

func TestProfileRepository_Counters(t *testing.T) {
	repos, ctx := setup(t)
	user := createUser(t, ctx, repos, enum.PlanGold)
	profileRepo := repos.ProfileRepository

	require.NoError(t, profileRepo.IncrementConsecutiveErrors(ctx, user.ID))
	require.NoError(t, profileRepo.IncrementConsecutiveErrors(ctx, user.ID))
	require.NoError(t, profileRepo.IncrementCreditsUsed(ctx, user.ID, "2026-03-01"))

	stored, err := profileRepo.GetById(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CreditsUsedToday)
	assert.Equal(t, 0, stored.ConsecutiveErrors)

	reset, err := profileRepo.ResetDailyCreditsIfStale(ctx, user.ID, "2026-03-01")
	require.NoError(t, err)
	assert.False(t, reset)

	reset, err = profileRepo.ResetDailyCreditsIfStale(ctx, user.ID, "2026-03-02")
	require.NoError(t, err)
	assert.True(t, reset)

	missing, err := profileRepo.GetById(ctx, "user_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSendHistoryRepository_AppendsInOrder(t *testing.T) {
	repos, ctx := setup(t)
	user := createUser(t, ctx, repos, enum.PlanGold)
	item := createPending(t, ctx, repos, user.ID, utils.Now())

	msg := "550 user unknown"
	category := enum.SmtpErrorRecipientRejected
	first := &models.SendHistoryEntry{QueueID: item.ID, UserID: user.ID, Status: enum.SendStatusFailed, ErrorMessage: &msg, ErrorCategory: &category, SentAt: utils.Now().Add(-time.Minute)}
	second := &models.SendHistoryEntry{QueueID: item.ID, UserID: user.ID, Status: enum.SendStatusSuccess, SentAt: utils.Now()}
	require.NoError(t, repos.SendHistoryRepository.Create(ctx, second))
	require.NoError(t, repos.SendHistoryRepository.Create(ctx, first))

	entries, err := repos.SendHistoryRepository.GetByQueueId(ctx, user.ID, item.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, enum.SendStatusFailed, entries[0].Status)
	assert.Equal(t, enum.SmtpErrorRecipientRejected, *entries[0].ErrorCategory)
	assert.Equal(t, enum.SendStatusSuccess, entries[1].Status)
}

func TestJobRepository_SearchPublicJobs(t *testing.T) {
	repos, ctx := setup(t)
	now := utils.Now()
	wage := func(v float64) *float64 { return &v }
	posted := func(days int) *time.Time { p := now.AddDate(0, 0, -days); return &p }

	jobs := []*models.PublicJob{
		{ID: "job_a", VisaType: "H-2A", State: "Texas", Category: "farm", WageFrom: wage(16), PostedDate: posted(1), IsActive: true},
		{ID: "job_b", VisaType: "H-2A", State: "TEXAS", Category: "farm", WageFrom: wage(14), PostedDate: posted(2), IsActive: true},
		{ID: "job_c", VisaType: "H-2B", State: "Texas", Category: "farm", WageFrom: wage(20), PostedDate: posted(1), IsActive: true},
		{ID: "job_d", VisaType: "H-2A", State: "texas", Category: "farm", WageFrom: wage(18), PostedDate: posted(40), IsActive: true},
		{ID: "job_e", VisaType: "H-2A", State: "Texas", Category: "landscaping", WageFrom: wage(18), PostedDate: posted(1), IsActive: true},
		{ID: "job_f", VisaType: "H-2A", State: "Texas", Category: "farm", WageFrom: wage(18), PostedDate: posted(1), IsActive: false},
		{ID: "job_g", VisaType: "H-2A", State: "texas", Category: "farm", WageFrom: wage(17), PostedDate: posted(3), IsActive: true},
	}
	for _, job := range jobs {
		require.NoError(t, repos.JobRepository.CreatePublicJob(ctx, job))
	}

	since := now.AddDate(0, 0, -30)
	result, err := repos.JobRepository.SearchPublicJobs(ctx, repository.JobSearchFilter{
		VisaType:    "H-2A",
		State:       "texas",
		MinWage:     wage(15),
		Categories:  []string{"farm"},
		PostedSince: &since,
		Limit:       50,
	})
	require.NoError(t, err)

	var ids []string
	for _, job := range result {
		ids = append(ids, job.ID)
	}
	assert.Equal(t, []string{"job_a", "job_g"}, ids)
}

func TestRadarRepository_UpsertMatchesIsKeyedByUserAndJob(t *testing.T) {
	repos, ctx := setup(t)
	user := createUser(t, ctx, repos, enum.PlanDiamond)

	require.NoError(t, repos.RadarRepository.UpsertMatches(ctx, []*models.RadarMatchedJob{
		{UserID: user.ID, JobID: "job_a", AutoQueued: false},
		{UserID: user.ID, JobID: "job_b", AutoQueued: false},
	}))
	require.NoError(t, repos.RadarRepository.UpsertMatches(ctx, []*models.RadarMatchedJob{
		{UserID: user.ID, JobID: "job_a", AutoQueued: true},
	}))

	matches, err := repos.RadarRepository.GetMatchesByUserId(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	matched, err := repos.RadarRepository.GetMatchedJobIds(ctx, user.ID, []string{"job_a", "job_c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"job_a"}, matched)
}

func TestRadarRepository_ProfileKeepsCategories(t *testing.T) {
	repos, ctx := setup(t)
	user := createUser(t, ctx, repos, enum.PlanBlack)

	require.NoError(t, repos.RadarRepository.CreateProfile(ctx, &models.RadarProfile{
		UserID:     user.ID,
		IsActive:   true,
		Categories: models.StringArray{"Farmworkers and Laborers", "Landscaping"},
	}))
	require.NoError(t, repos.RadarRepository.CreateProfile(ctx, &models.RadarProfile{
		UserID:   user.ID,
		IsActive: false,
	}))

	active, err := repos.RadarRepository.GetActiveProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, models.StringArray{"Farmworkers and Laborers", "Landscaping"}, active[0].Categories)

	byUser, err := repos.RadarRepository.GetActiveProfilesByUserId(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, byUser, 1)
}
