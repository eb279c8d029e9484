package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"gorm.io/gorm"

	"github.com/h2linker/sendqueue/internal/models"
	"github.com/h2linker/sendqueue/internal/tracing"
)

type sendHistoryRepository struct {
	gormDb *gorm.DB
}

// SendHistoryRepository is append-only. There is no update or delete.
type SendHistoryRepository interface {
	Create(ctx context.Context, entry *models.SendHistoryEntry) error
	GetByQueueId(ctx context.Context, userId, queueId string) ([]*models.SendHistoryEntry, error)
}

func NewSendHistoryRepository(db *gorm.DB) SendHistoryRepository {
	return &sendHistoryRepository{gormDb: db}
}

func (r *sendHistoryRepository) Create(ctx context.Context, entry *models.SendHistoryEntry) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SendHistoryRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if entry == nil || entry.QueueID == "" {
		return ErrInvalidInput
	}
	tracing.TagQueueItem(span, entry.QueueID)
	span.LogFields(tracingLog.String("status", entry.Status.String()))

	err := r.gormDb.WithContext(ctx).Create(entry).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *sendHistoryRepository) GetByQueueId(ctx context.Context, userId, queueId string) ([]*models.SendHistoryEntry, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SendHistoryRepository.GetByQueueId")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagQueueItem(span, queueId)

	var result []*models.SendHistoryEntry
	err := r.gormDb.WithContext(ctx).
		Where("queue_id = ? AND user_id = ?", queueId, userId).
		Order("sent_at ASC").
		Order("id ASC").
		Find(&result).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogFields(tracingLog.Int("result.count", len(result)))
	return result, nil
}
