package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/h2linker/sendqueue/internal/models"
	"github.com/h2linker/sendqueue/internal/tracing"
)

type radarRepository struct {
	gormDb *gorm.DB
}

type RadarRepository interface {
	CreateProfile(ctx context.Context, profile *models.RadarProfile) error
	GetActiveProfiles(ctx context.Context) ([]*models.RadarProfile, error)
	GetActiveProfilesByUserId(ctx context.Context, userId string) ([]*models.RadarProfile, error)
	GetMatchedJobIds(ctx context.Context, userId string, jobIds []string) ([]string, error)
	GetMatchesByUserId(ctx context.Context, userId string) ([]*models.RadarMatchedJob, error)
	UpsertMatches(ctx context.Context, matches []*models.RadarMatchedJob) error
	TouchLastScan(ctx context.Context, userId string, now time.Time) error
}

func NewRadarRepository(db *gorm.DB) RadarRepository {
	return &radarRepository{gormDb: db}
}

func (r *radarRepository) CreateProfile(ctx context.Context, profile *models.RadarProfile) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RadarRepository.CreateProfile")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if err := r.gormDb.WithContext(ctx).Create(profile).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *radarRepository) GetActiveProfiles(ctx context.Context) ([]*models.RadarProfile, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RadarRepository.GetActiveProfiles")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var result []*models.RadarProfile
	err := r.gormDb.WithContext(ctx).
		Where("is_active = ?", true).
		Order("user_id ASC").
		Find(&result).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogFields(tracingLog.Int("result.count", len(result)))
	return result, nil
}

func (r *radarRepository) GetActiveProfilesByUserId(ctx context.Context, userId string) ([]*models.RadarProfile, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RadarRepository.GetActiveProfilesByUserId")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagUser(span, userId)

	var result []*models.RadarProfile
	err := r.gormDb.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userId, true).
		Find(&result).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return result, nil
}

func (r *radarRepository) GetMatchedJobIds(ctx context.Context, userId string, jobIds []string) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RadarRepository.GetMatchedJobIds")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagUser(span, userId)

	if len(jobIds) == 0 {
		return []string{}, nil
	}

	var result []string
	err := r.gormDb.WithContext(ctx).
		Model(&models.RadarMatchedJob{}).
		Where("user_id = ? AND job_id IN ?", userId, jobIds).
		Pluck("job_id", &result).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return result, nil
}

func (r *radarRepository) GetMatchesByUserId(ctx context.Context, userId string) ([]*models.RadarMatchedJob, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RadarRepository.GetMatchesByUserId")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagUser(span, userId)

	var result []*models.RadarMatchedJob
	err := r.gormDb.WithContext(ctx).
		Where("user_id = ?", userId).
		Order("created_at ASC").
		Find(&result).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return result, nil
}

// UpsertMatches records matches keyed by (user_id, job_id).
func (r *radarRepository) UpsertMatches(ctx context.Context, matches []*models.RadarMatchedJob) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RadarRepository.UpsertMatches")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.LogFields(tracingLog.Int("matches.count", len(matches)))

	if len(matches) == 0 {
		return nil
	}

	err := r.gormDb.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "job_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"auto_queued", "radar_profile_id"}),
		}).
		Create(&matches).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *radarRepository) TouchLastScan(ctx context.Context, userId string, now time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RadarRepository.TouchLastScan")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagUser(span, userId)

	err := r.gormDb.WithContext(ctx).
		Model(&models.RadarProfile{}).
		Where("user_id = ?", userId).
		UpdateColumn("last_scan_at", now).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}
