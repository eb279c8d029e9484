package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/h2linker/sendqueue/internal/enum"
	"github.com/h2linker/sendqueue/internal/models"
	"github.com/h2linker/sendqueue/internal/tracing"
	"github.com/h2linker/sendqueue/internal/utils"
)

type queueItemRepository struct {
	gormDb *gorm.DB
}

type QueueItemRepository interface {
	Create(ctx context.Context, item *models.QueueItem) error
	CreateBatch(ctx context.Context, items []*models.QueueItem) error
	GetById(ctx context.Context, id string) (*models.QueueItem, error)
	GetByIdForUser(ctx context.Context, userId, id string) (*models.QueueItem, error)
	GetPending(ctx context.Context, userId string, ids []string, limit int) ([]*models.QueueItem, error)
	GetOldestPending(ctx context.Context, userId string) (*models.QueueItem, error)
	CountActive(ctx context.Context, userId string) (int64, error)
	CountPending(ctx context.Context, userId string) (int64, error)
	GetQueuedJobIds(ctx context.Context, userId string, jobIds []string) ([]string, error)
	GetUserIdsWithPending(ctx context.Context, tiers []enum.PlanTier) ([]string, error)

	Claim(ctx context.Context, id string, now time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, id string) error
	MarkSent(ctx context.Context, id string, now time.Time) error
	MarkFailed(ctx context.Context, id, message string, now time.Time) error
	MarkSkippedInvalidDomain(ctx context.Context, id, reason string, now time.Time) error
	FailPending(ctx context.Context, id, message string, now time.Time) (bool, error)
	PauseAllPending(ctx context.Context, userId, reason string) (int64, error)
	ResumePaused(ctx context.Context, userId string) (int64, error)
	Requeue(ctx context.Context, userId, id string) (bool, error)
}

func NewQueueItemRepository(db *gorm.DB) QueueItemRepository {
	return &queueItemRepository{gormDb: db}
}

func (r *queueItemRepository) Create(ctx context.Context, item *models.QueueItem) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueItemRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if item == nil || item.UserID == "" {
		return ErrInvalidInput
	}
	if _, err := item.JobRef(); err != nil {
		return err
	}

	err := r.gormDb.WithContext(ctx).Create(item).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	tracing.TagQueueItem(span, item.ID)
	return nil
}

func (r *queueItemRepository) CreateBatch(ctx context.Context, items []*models.QueueItem) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueItemRepository.CreateBatch")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.LogFields(tracingLog.Int("items.count", len(items)))

	if len(items) == 0 {
		return nil
	}
	for _, item := range items {
		if _, err := item.JobRef(); err != nil {
			return err
		}
	}

	err := r.gormDb.WithContext(ctx).Create(&items).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *queueItemRepository) GetById(ctx context.Context, id string) (*models.QueueItem, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueItemRepository.GetById")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagQueueItem(span, id)

	var result models.QueueItem
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

func (r *queueItemRepository) GetByIdForUser(ctx context.Context, userId, id string) (*models.QueueItem, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueItemRepository.GetByIdForUser")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagQueueItem(span, id)

	var result models.QueueItem
	err := r.gormDb.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userId).
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

// GetPending returns the user's pending items oldest first, optionally restricted to ids.
func (r *queueItemRepository) GetPending(ctx context.Context, userId string, ids []string, limit int) ([]*models.QueueItem, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueItemRepository.GetPending")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagUser(span, userId)
	span.LogFields(tracingLog.Int("limit", limit), tracingLog.Int("ids.count", len(ids)))

	if limit <= 0 {
		return []*models.QueueItem{}, nil
	}

	query := r.gormDb.WithContext(ctx).
		Where("user_id = ? AND status = ?", userId, enum.QueueStatusPending)
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}

	var result []*models.QueueItem
	err := query.
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&result).
		Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogFields(tracingLog.Int("result.count", len(result)))
	return result, nil
}

func (r *queueItemRepository) GetOldestPending(ctx context.Context, userId string) (*models.QueueItem, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueItemRepository.GetOldestPending")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagUser(span, userId)

	items, err := r.GetPending(ctx, userId, nil, 1)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if len(items) == 0 {
		span.LogFields(tracingLog.Bool("result.found", false))
		return nil, nil
	}
	return items[0], nil
}

func (r *queueItemRepository) CountActive(ctx context.Context, userId string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueItemRepository.CountActive")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagUser(span, userId)

	var count int64
	err := r.gormDb.WithContext(ctx).
		Model(&models.QueueItem{}).
		Where("user_id = ? AND status IN ?", userId, enum.ActiveQueueStatuses).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return count, nil
}

func (r *queueItemRepository) CountPending(ctx context.Context, userId string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueItemRepository.CountPending")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagUser(span, userId)

	var count int64
	err := r.gormDb.WithContext(ctx).
		Model(&models.QueueItem{}).
		Where("user_id = ? AND status = ?", userId, enum.QueueStatusPending).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return count, nil
}

// GetQueuedJobIds returns which of jobIds already sit in the user's queue, in any status.
func (r *queueItemRepository) GetQueuedJobIds(ctx context.Context, userId string, jobIds []string) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueItemRepository.GetQueuedJobIds")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagUser(span, userId)

	if len(jobIds) == 0 {
		return []string{}, nil
	}

	var result []string
	err := r.gormDb.WithContext(ctx).
		Model(&models.QueueItem{}).
		Where("user_id = ? AND job_id IN ?", userId, jobIds).
		Distinct().
		Pluck("job_id", &result).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return result, nil
}

func (r *queueItemRepository) GetUserIdsWithPending(ctx context.Context, tiers []enum.PlanTier) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueItemRepository.GetUserIdsWithPending")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var result []string
	err := r.gormDb.WithContext(ctx).
		Table("my_queue AS q").
		Joins("JOIN profiles AS p ON p.id = q.user_id").
		Where("q.status = ? AND p.plan_tier IN ?", enum.QueueStatusPending, tiers).
		Distinct().
		Order("q.user_id").
		Pluck("q.user_id", &result).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogFields(tracingLog.Int("result.count", len(result)))
	return result, nil
}

// Claim moves a pending item to processing. It reports false when another run got there first.
func (r *queueItemRepository) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueItemRepository.Claim")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagQueueItem(span, id)

	result := r.gormDb.WithContext(ctx).
		Model(&models.QueueItem{}).
		Where("id = ? AND status = ?", id, enum.QueueStatusPending).
		UpdateColumns(map[string]interface{}{
			"status":                enum.QueueStatusProcessing,
			"processing_started_at": now,
			"last_attempt_at":       now,
			"last_error":            nil,
			"updated_at":            now,
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return false, result.Error
	}

	span.LogFields(tracingLog.Bool("result.claimed", result.RowsAffected == 1))
	return result.RowsAffected == 1, nil
}

func (r *queueItemRepository) ReleaseClaim(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueItemRepository.ReleaseClaim")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagQueueItem(span, id)

	err := r.gormDb.WithContext(ctx).
		Model(&models.QueueItem{}).
		Where("id = ? AND status = ?", id, enum.QueueStatusProcessing).
		UpdateColumns(map[string]interface{}{
			"status":                enum.QueueStatusPending,
			"processing_started_at": nil,
			"updated_at":            utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *queueItemRepository) MarkSent(ctx context.Context, id string, now time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueItemRepository.MarkSent")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagQueueItem(span, id)

	return r.finishAttempt(ctx, span, id, map[string]interface{}{
		"status":                enum.QueueStatusSent,
		"sent_at":               now,
		"send_count":            gorm.Expr("send_count + 1"),
		"processing_started_at": nil,
		"last_error":            nil,
		"updated_at":            now,
	})
}

func (r *queueItemRepository) MarkFailed(ctx context.Context, id, message string, now time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueItemRepository.MarkFailed")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagQueueItem(span, id)

	return r.finishAttempt(ctx, span, id, map[string]interface{}{
		"status":                enum.QueueStatusFailed,
		"processing_started_at": nil,
		"last_error":            message,
		"last_attempt_at":       now,
		"updated_at":            now,
	})
}

func (r *queueItemRepository) MarkSkippedInvalidDomain(ctx context.Context, id, reason string, now time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueItemRepository.MarkSkippedInvalidDomain")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagQueueItem(span, id)

	return r.finishAttempt(ctx, span, id, map[string]interface{}{
		"status":                enum.QueueStatusSkippedInvalidDomain,
		"processing_started_at": nil,
		"last_error":            reason,
		"last_attempt_at":       now,
		"updated_at":            now,
	})
}

func (r *queueItemRepository) finishAttempt(ctx context.Context, span opentracing.Span, id string, columns map[string]interface{}) error {
	err := r.gormDb.WithContext(ctx).
		Model(&models.QueueItem{}).
		Where("id = ? AND status = ?", id, enum.QueueStatusProcessing).
		UpdateColumns(columns).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

// FailPending fails an item that was never claimed, used when the whole run cannot start.
func (r *queueItemRepository) FailPending(ctx context.Context, id, message string, now time.Time) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueItemRepository.FailPending")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagQueueItem(span, id)

	result := r.gormDb.WithContext(ctx).
		Model(&models.QueueItem{}).
		Where("id = ? AND status = ?", id, enum.QueueStatusPending).
		UpdateColumns(map[string]interface{}{
			"status":          enum.QueueStatusFailed,
			"last_error":      message,
			"last_attempt_at": now,
			"updated_at":      now,
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *queueItemRepository) PauseAllPending(ctx context.Context, userId, reason string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueItemRepository.PauseAllPending")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagUser(span, userId)

	result := r.gormDb.WithContext(ctx).
		Model(&models.QueueItem{}).
		Where("user_id = ? AND status = ?", userId, enum.QueueStatusPending).
		UpdateColumns(map[string]interface{}{
			"status":     enum.QueueStatusPaused,
			"last_error": reason,
			"updated_at": utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return 0, result.Error
	}

	span.LogFields(tracingLog.Int64("result.paused", result.RowsAffected))
	return result.RowsAffected, nil
}

func (r *queueItemRepository) ResumePaused(ctx context.Context, userId string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueItemRepository.ResumePaused")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagUser(span, userId)

	result := r.gormDb.WithContext(ctx).
		Model(&models.QueueItem{}).
		Where("user_id = ? AND status = ?", userId, enum.QueueStatusPaused).
		UpdateColumns(map[string]interface{}{
			"status":     enum.QueueStatusPending,
			"last_error": nil,
			"updated_at": utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return 0, result.Error
	}

	span.LogFields(tracingLog.Int64("result.resumed", result.RowsAffected))
	return result.RowsAffected, nil
}

// Requeue puts a finished item back to pending so it can be attempted again.
func (r *queueItemRepository) Requeue(ctx context.Context, userId, id string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueItemRepository.Requeue")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagQueueItem(span, id)

	retryable := []enum.QueueStatus{
		enum.QueueStatusFailed,
		enum.QueueStatusSent,
		enum.QueueStatusPaused,
		enum.QueueStatusSkippedInvalidDomain,
	}

	result := r.gormDb.WithContext(ctx).
		Model(&models.QueueItem{}).
		Where("id = ? AND user_id = ? AND status IN ?", id, userId, retryable).
		UpdateColumns(map[string]interface{}{
			"status":     enum.QueueStatusPending,
			"last_error": nil,
			"updated_at": utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
