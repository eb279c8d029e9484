package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"gorm.io/gorm"

	"github.com/h2linker/sendqueue/internal/models"
	"github.com/h2linker/sendqueue/internal/tracing"
)

type emailTemplateRepository struct {
	gormDb *gorm.DB
}

type EmailTemplateRepository interface {
	Create(ctx context.Context, template *models.EmailTemplate) error
	GetByUserId(ctx context.Context, userId string) ([]*models.EmailTemplate, error)
}

func NewEmailTemplateRepository(db *gorm.DB) EmailTemplateRepository {
	return &emailTemplateRepository{gormDb: db}
}

func (r *emailTemplateRepository) Create(ctx context.Context, template *models.EmailTemplate) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "EmailTemplateRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if template == nil || template.UserID == "" {
		return ErrInvalidInput
	}

	if err := r.gormDb.WithContext(ctx).Create(template).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// GetByUserId returns the user's templates newest first.
func (r *emailTemplateRepository) GetByUserId(ctx context.Context, userId string) ([]*models.EmailTemplate, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "EmailTemplateRepository.GetByUserId")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagUser(span, userId)

	var result []*models.EmailTemplate
	err := r.gormDb.WithContext(ctx).
		Where("user_id = ?", userId).
		Order("created_at DESC").
		Order("id ASC").
		Find(&result).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogFields(tracingLog.Int("result.count", len(result)))
	return result, nil
}
