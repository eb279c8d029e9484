package repository

import (
	"context"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/h2linker/sendqueue/internal/models"
	"github.com/h2linker/sendqueue/internal/tracing"
)

// JobSearchFilter mirrors a radar profile. Zero values do not filter.
type JobSearchFilter struct {
	VisaType    string
	State       string
	MinWage     *float64
	Categories  []string
	PostedSince *time.Time
	ExcludeIds  []string
	Limit       int
}

type jobRepository struct {
	gormDb *gorm.DB
}

type JobRepository interface {
	GetPublicJob(ctx context.Context, id string) (*models.PublicJob, error)
	GetManualJob(ctx context.Context, id string) (*models.ManualJob, error)
	CreatePublicJob(ctx context.Context, job *models.PublicJob) error
	CreateManualJob(ctx context.Context, job *models.ManualJob) error
	SearchPublicJobs(ctx context.Context, filter JobSearchFilter) ([]*models.PublicJob, error)
}

func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{gormDb: db}
}

func (r *jobRepository) GetPublicJob(ctx context.Context, id string) (*models.PublicJob, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "JobRepository.GetPublicJob")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	var result models.PublicJob
	err := r.gormDb.WithContext(ctx).Where("id = ?", id).First(&result).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if err != nil {
		span.LogFields(tracingLog.Bool("result.found", false))
		return nil, nil
	}
	return &result, nil
}

func (r *jobRepository) GetManualJob(ctx context.Context, id string) (*models.ManualJob, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "JobRepository.GetManualJob")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	var result models.ManualJob
	err := r.gormDb.WithContext(ctx).Where("id = ?", id).First(&result).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if err != nil {
		span.LogFields(tracingLog.Bool("result.found", false))
		return nil, nil
	}
	return &result, nil
}

func (r *jobRepository) CreatePublicJob(ctx context.Context, job *models.PublicJob) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "JobRepository.CreatePublicJob")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if err := r.gormDb.WithContext(ctx).Create(job).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *jobRepository) CreateManualJob(ctx context.Context, job *models.ManualJob) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "JobRepository.CreateManualJob")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if err := r.gormDb.WithContext(ctx).Create(job).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// SearchPublicJobs returns active jobs newest first.
func (r *jobRepository) SearchPublicJobs(ctx context.Context, filter JobSearchFilter) ([]*models.PublicJob, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "JobRepository.SearchPublicJobs")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.LogObjectAsJson(span, "filter", filter)

	query := r.gormDb.WithContext(ctx).Where("is_active = ?", true)

	if filter.VisaType != "" && !strings.EqualFold(filter.VisaType, "all") {
		query = query.Where("visa_type = ?", filter.VisaType)
	}
	if filter.State != "" && !strings.EqualFold(filter.State, "all") {
		query = query.Where("LOWER(state) = ?", strings.ToLower(filter.State))
	}
	if filter.MinWage != nil && *filter.MinWage > 0 {
		query = query.Where("wage_from >= ?", *filter.MinWage)
	}
	if len(filter.Categories) > 0 {
		query = query.Where("category IN ?", filter.Categories)
	}
	if filter.PostedSince != nil {
		query = query.Where("posted_date >= ?", *filter.PostedSince)
	}
	if len(filter.ExcludeIds) > 0 {
		query = query.Where("id NOT IN ?", filter.ExcludeIds)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var result []*models.PublicJob
	err := query.
		Order("posted_date DESC").
		Order("id ASC").
		Find(&result).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogFields(tracingLog.Int("result.count", len(result)))
	return result, nil
}
