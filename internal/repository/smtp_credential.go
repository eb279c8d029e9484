package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/h2linker/sendqueue/internal/enum"
	"github.com/h2linker/sendqueue/internal/models"
	"github.com/h2linker/sendqueue/internal/tracing"
	"github.com/h2linker/sendqueue/internal/utils"
)

// EscalationCandidate is a warmed-up sender joined with its plan.
type EscalationCandidate struct {
	UserID            string           `gorm:"column:user_id"`
	PlanTier          enum.PlanTier    `gorm:"column:plan_tier"`
	RiskProfile       enum.RiskProfile `gorm:"column:risk_profile"`
	CurrentDailyLimit int              `gorm:"column:current_daily_limit"`
	PreviousDaySent   int              `gorm:"column:previous_day_sent"`
}

type UsageDayCandidate struct {
	UserID   string `gorm:"column:user_id"`
	Timezone string `gorm:"column:timezone"`
}

type smtpCredentialRepository struct {
	gormDb *gorm.DB
}

type SmtpCredentialRepository interface {
	GetByUserId(ctx context.Context, userId string) (*models.SmtpCredential, error)
	Upsert(ctx context.Context, credential *models.SmtpCredential) error

	SeedWarmup(ctx context.Context, userId string, riskProfile enum.RiskProfile, seed int, now time.Time) (bool, error)
	SetRiskProfile(ctx context.Context, userId string, riskProfile enum.RiskProfile) error
	RolloverDay(ctx context.Context, userId, today, yesterday string) (bool, error)
	IncrementEmailsSent(ctx context.Context, userId, today string) error
	Escalate(ctx context.Context, userId string, increment, planMax int, startOfDay, now time.Time) (bool, error)

	GetEscalationCandidates(ctx context.Context, tiers []enum.PlanTier) ([]EscalationCandidate, error)
	GetUsageDayCandidates(ctx context.Context) ([]UsageDayCandidate, error)
}

func NewSmtpCredentialRepository(db *gorm.DB) SmtpCredentialRepository {
	return &smtpCredentialRepository{gormDb: db}
}

func (r *smtpCredentialRepository) GetByUserId(ctx context.Context, userId string) (*models.SmtpCredential, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SmtpCredentialRepository.GetByUserId")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, userId)

	var result models.SmtpCredential
	err := r.gormDb.WithContext(ctx).
		Where("user_id = ?", userId).
		First(&result).
		Error

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if err != nil && errors.Is(err, gorm.ErrRecordNotFound) {
		span.LogFields(tracingLog.Bool("result.found", false))
		return nil, nil
	}

	span.LogFields(tracingLog.Bool("result.found", true))
	return &result, nil
}

// Upsert writes the mailbox fields only. Warm-up columns are owned by the methods below.
// An empty password keeps the stored one.
func (r *smtpCredentialRepository) Upsert(ctx context.Context, credential *models.SmtpCredential) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SmtpCredentialRepository.Upsert")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if credential == nil || credential.UserID == "" {
		return ErrInvalidInput
	}
	tracing.TagEntity(span, credential.UserID)

	now := utils.Now()
	credential.UpdatedAt = now
	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = now
	}

	updateColumns := []string{"provider", "email", "updated_at"}
	if credential.Password != "" {
		credential.HasPassword = true
		updateColumns = append(updateColumns, "password", "has_password")
	}

	err := r.gormDb.WithContext(ctx).
		Omit("risk_profile", "current_daily_limit", "warmup_started_at", "last_escalated_at").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns(updateColumns),
		}).
		Create(credential).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// SeedWarmup stamps the first profile selection. It is a no-op once warmup_started_at is set.
func (r *smtpCredentialRepository) SeedWarmup(ctx context.Context, userId string, riskProfile enum.RiskProfile, seed int, now time.Time) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SmtpCredentialRepository.SeedWarmup")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, userId)
	span.LogKV("riskProfile", riskProfile, "seed", seed)

	result := r.gormDb.WithContext(ctx).
		Model(&models.SmtpCredential{}).
		Where("user_id = ? AND warmup_started_at IS NULL", userId).
		UpdateColumns(map[string]interface{}{
			"risk_profile":        riskProfile,
			"current_daily_limit": gorm.Expr("COALESCE(current_daily_limit, ?)", seed),
			"warmup_started_at":   now,
			"updated_at":          now,
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return false, result.Error
	}

	span.LogFields(tracingLog.Bool("result.seeded", result.RowsAffected > 0))
	return result.RowsAffected > 0, nil
}

func (r *smtpCredentialRepository) SetRiskProfile(ctx context.Context, userId string, riskProfile enum.RiskProfile) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SmtpCredentialRepository.SetRiskProfile")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, userId)

	err := r.gormDb.WithContext(ctx).
		Model(&models.SmtpCredential{}).
		Where("user_id = ?", userId).
		UpdateColumns(map[string]interface{}{
			"risk_profile": riskProfile,
			"updated_at":   utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

// RolloverDay starts a new usage day. Yesterday's count is kept only if the last usage day was yesterday.
func (r *smtpCredentialRepository) RolloverDay(ctx context.Context, userId, today, yesterday string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SmtpCredentialRepository.RolloverDay")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, userId)
	span.LogKV("today", today)

	result := r.gormDb.WithContext(ctx).
		Model(&models.SmtpCredential{}).
		Where("user_id = ? AND (last_usage_date IS NULL OR last_usage_date <> ?)", userId, today).
		UpdateColumns(map[string]interface{}{
			"previous_day_sent": gorm.Expr("CASE WHEN last_usage_date = ? THEN emails_sent_today ELSE 0 END", yesterday),
			"emails_sent_today": 0,
			"last_usage_date":   today,
			"updated_at":        utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *smtpCredentialRepository) IncrementEmailsSent(ctx context.Context, userId, today string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SmtpCredentialRepository.IncrementEmailsSent")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, userId)

	err := r.gormDb.WithContext(ctx).
		Model(&models.SmtpCredential{}).
		Where("user_id = ?", userId).
		UpdateColumns(map[string]interface{}{
			"emails_sent_today": gorm.Expr("emails_sent_today + 1"),
			"last_usage_date":   today,
			"updated_at":        utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

// Escalate raises the limit by increment, capped at planMax, at most once per day.
func (r *smtpCredentialRepository) Escalate(ctx context.Context, userId string, increment, planMax int, startOfDay, now time.Time) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SmtpCredentialRepository.Escalate")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, userId)
	span.LogKV("increment", increment, "planMax", planMax)

	result := r.gormDb.WithContext(ctx).
		Model(&models.SmtpCredential{}).
		Where("user_id = ? AND current_daily_limit IS NOT NULL AND current_daily_limit < ?", userId, planMax).
		Where("last_escalated_at IS NULL OR last_escalated_at < ?", startOfDay).
		UpdateColumns(map[string]interface{}{
			"current_daily_limit": gorm.Expr("CASE WHEN current_daily_limit + ? > ? THEN ? ELSE current_daily_limit + ? END", increment, planMax, planMax, increment),
			"last_escalated_at":   now,
			"updated_at":          now,
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return false, result.Error
	}

	span.LogFields(tracingLog.Bool("result.escalated", result.RowsAffected > 0))
	return result.RowsAffected > 0, nil
}

func (r *smtpCredentialRepository) GetEscalationCandidates(ctx context.Context, tiers []enum.PlanTier) ([]EscalationCandidate, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SmtpCredentialRepository.GetEscalationCandidates")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var result []EscalationCandidate
	err := r.gormDb.WithContext(ctx).
		Table("smtp_credentials AS c").
		Select("c.user_id, p.plan_tier, c.risk_profile, c.current_daily_limit, c.previous_day_sent").
		Joins("JOIN profiles AS p ON p.id = c.user_id").
		Where("c.risk_profile IS NOT NULL AND c.current_daily_limit IS NOT NULL AND p.plan_tier IN ?", tiers).
		Scan(&result).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogFields(tracingLog.Int("result.count", len(result)))
	return result, nil
}

func (r *smtpCredentialRepository) GetUsageDayCandidates(ctx context.Context) ([]UsageDayCandidate, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SmtpCredentialRepository.GetUsageDayCandidates")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var result []UsageDayCandidate
	err := r.gormDb.WithContext(ctx).
		Table("smtp_credentials AS c").
		Select("c.user_id, p.timezone").
		Joins("JOIN profiles AS p ON p.id = c.user_id").
		Scan(&result).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogFields(tracingLog.Int("result.count", len(result)))
	return result, nil
}
