package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/h2linker/sendqueue/config"
	"github.com/h2linker/sendqueue/dto"
	"github.com/h2linker/sendqueue/interfaces"
	"github.com/h2linker/sendqueue/internal/enum"
	"github.com/h2linker/sendqueue/internal/models"
	"github.com/h2linker/sendqueue/internal/tracing"
	"github.com/h2linker/sendqueue/internal/utils"
)

type QueueHandler struct {
	queueService interfaces.QueueService
	cfg          *config.DrainConfig
}

func NewQueueHandler(queueService interfaces.QueueService, cfg *config.DrainConfig) *QueueHandler {
	if cfg == nil {
		cfg = &config.DrainConfig{CronMaxItems: 2, UserMaxItems: 5, MaxQueueIds: 50}
	}
	return &QueueHandler{
		queueService: queueService,
		cfg:          cfg,
	}
}

type CronProcessRequest struct {
	UserId   string `json:"userId"`
	MaxItems int    `json:"maxItems"`
}

type UserProcessRequest struct {
	Ids      []string `json:"ids"`
	MaxItems int      `json:"maxItems"`
}

type EnqueueRequest struct {
	JobId       *string `json:"jobId"`
	ManualJobId *string `json:"manualJobId"`
}

type HistoryResponse struct {
	History []*models.SendHistoryEntry `json:"history"`
}

// ProcessCron drains every cloud-tier queue, or one user's queue when userId is given.
func (h *QueueHandler) ProcessCron() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "QueueHandler.ProcessCron")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request CronProcessRequest
		if err := c.ShouldBindJSON(&request); err != nil && err != io.EOF {
			respondBadRequest(c, span, "body", err.Error())
			return
		}
		maxItems := request.MaxItems
		if maxItems <= 0 {
			maxItems = h.cfg.CronMaxItems
		}
		span.LogFields(tracingLog.Int("maxItems", maxItems))

		if request.UserId != "" {
			tracing.TagUser(span, request.UserId)
			summary, err := h.queueService.Drain(ctx, dto.DrainRequest{
				UserId:   request.UserId,
				MaxItems: maxItems,
				Trigger:  enum.DrainTriggerCron,
			})
			if err != nil {
				respondError(c, span, err)
				return
			}
			c.JSON(http.StatusOK, summary)
			return
		}

		summary, err := h.queueService.DrainPremium(ctx, maxItems)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// ProcessForUser drains the caller's own queue. Any tier may trigger it.
func (h *QueueHandler) ProcessForUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "QueueHandler.ProcessForUser")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request UserProcessRequest
		if err := c.ShouldBindJSON(&request); err != nil && err != io.EOF {
			respondBadRequest(c, span, "body", err.Error())
			return
		}
		var ids []string
		if len(request.Ids) > 0 {
			ids = utils.UniqueStrings(request.Ids)
		}
		if len(ids) > h.cfg.MaxQueueIds {
			respondBadRequest(c, span, "ids", fmt.Sprintf("at most %d queue ids per request", h.cfg.MaxQueueIds))
			return
		}
		maxItems := request.MaxItems
		if maxItems <= 0 || maxItems > h.cfg.UserMaxItems {
			maxItems = h.cfg.UserMaxItems
		}
		if len(ids) > maxItems {
			maxItems = len(ids)
		}

		summary, err := h.queueService.Drain(ctx, dto.DrainRequest{
			UserId:   utils.GetUserIdFromContext(ctx),
			MaxItems: maxItems,
			QueueIds: ids,
			Trigger:  enum.DrainTriggerUser,
		})
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func (h *QueueHandler) Enqueue() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "QueueHandler.Enqueue")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request EnqueueRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			respondBadRequest(c, span, "body", err.Error())
			return
		}
		ref, err := models.NewJobRef(request.JobId, request.ManualJobId)
		if err != nil {
			respondError(c, span, err)
			return
		}

		item, err := h.queueService.Enqueue(ctx, utils.GetUserIdFromContext(ctx), ref)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusCreated, item)
	}
}

func (h *QueueHandler) Retry() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "QueueHandler.Retry")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		summary, err := h.queueService.Retry(ctx, utils.GetUserIdFromContext(ctx), c.Param("id"))
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func (h *QueueHandler) History() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "QueueHandler.History")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		history, err := h.queueService.History(ctx, utils.GetUserIdFromContext(ctx), c.Param("id"))
		if err != nil {
			respondError(c, span, err)
			return
		}
		if history == nil {
			history = []*models.SendHistoryEntry{}
		}
		c.JSON(http.StatusOK, HistoryResponse{History: history})
	}
}
