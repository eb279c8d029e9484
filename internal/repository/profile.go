package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/h2linker/sendqueue/internal/models"
	"github.com/h2linker/sendqueue/internal/tracing"
	"github.com/h2linker/sendqueue/internal/utils"
)

type profileRepository struct {
	gormDb *gorm.DB
}

type ProfileRepository interface {
	GetById(ctx context.Context, id string) (*models.Profile, error)
	Create(ctx context.Context, profile *models.Profile) error

	ResetDailyCreditsIfStale(ctx context.Context, userId, today string) (bool, error)
	IncrementCreditsUsed(ctx context.Context, userId, today string) error
	IncrementConsecutiveErrors(ctx context.Context, userId string) error
	ResetConsecutiveErrors(ctx context.Context, userId string) error
}

func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{gormDb: db}
}

func (r *profileRepository) GetById(ctx context.Context, id string) (*models.Profile, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProfileRepository.GetById")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	var result models.Profile
	err := r.gormDb.WithContext(ctx).
		Where("id = ?", id).
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

func (r *profileRepository) Create(ctx context.Context, profile *models.Profile) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProfileRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if profile == nil {
		return ErrInvalidInput
	}

	err := r.gormDb.WithContext(ctx).Create(profile).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// ResetDailyCreditsIfStale zeroes the profile's daily counter when its reset date is not today.
func (r *profileRepository) ResetDailyCreditsIfStale(ctx context.Context, userId, today string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProfileRepository.ResetDailyCreditsIfStale")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, userId)
	span.LogKV("today", today)

	result := r.gormDb.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ? AND (credits_reset_date IS NULL OR credits_reset_date <> ?)", userId, today).
		UpdateColumns(map[string]interface{}{
			"credits_used_today": 0,
			"credits_reset_date": today,
			"updated_at":         utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return false, result.Error
	}

	span.LogFields(tracingLog.Int64("result.rowsAffected", result.RowsAffected))
	return result.RowsAffected > 0, nil
}

// IncrementCreditsUsed records one successful send and clears the consecutive error streak.
func (r *profileRepository) IncrementCreditsUsed(ctx context.Context, userId, today string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProfileRepository.IncrementCreditsUsed")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, userId)

	err := r.gormDb.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", userId).
		UpdateColumns(map[string]interface{}{
			"credits_used_today": gorm.Expr("credits_used_today + 1"),
			"credits_reset_date": today,
			"consecutive_errors": 0,
			"updated_at":         utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *profileRepository) IncrementConsecutiveErrors(ctx context.Context, userId string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProfileRepository.IncrementConsecutiveErrors")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, userId)

	err := r.gormDb.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", userId).
		UpdateColumns(map[string]interface{}{
			"consecutive_errors": gorm.Expr("consecutive_errors + 1"),
			"updated_at":         utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *profileRepository) ResetConsecutiveErrors(ctx context.Context, userId string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProfileRepository.ResetConsecutiveErrors")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, userId)

	err := r.gormDb.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", userId).
		UpdateColumns(map[string]interface{}{
			"consecutive_errors": 0,
			"updated_at":         utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}
