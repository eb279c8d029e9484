package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/h2linker/sendqueue/dto"
	"github.com/h2linker/sendqueue/interfaces"
	"github.com/h2linker/sendqueue/internal/tracing"
	"github.com/h2linker/sendqueue/internal/utils"
)

type WarmupHandler struct {
	warmupService interfaces.WarmupService
}

func NewWarmupHandler(warmupService interfaces.WarmupService) *WarmupHandler {
	return &WarmupHandler{
		warmupService: warmupService,
	}
}

func (h *WarmupHandler) Status() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "WarmupHandler.Status")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		status, err := h.warmupService.Status(ctx, utils.GetUserIdFromContext(ctx))
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// SaveSmtp stores the mailbox credential and seeds warm-up on first save.
func (h *WarmupHandler) SaveSmtp() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "WarmupHandler.SaveSmtp")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request dto.SaveCredentialRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			respondBadRequest(c, span, "body", err.Error())
			return
		}

		result, err := h.warmupService.SaveCredential(ctx, utils.GetUserIdFromContext(ctx), request)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
