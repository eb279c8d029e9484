package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/h2linker/sendqueue/interfaces"
	"github.com/h2linker/sendqueue/internal/tracing"
	"github.com/h2linker/sendqueue/internal/utils"
)

type AdminHandler struct {
	radarService  interfaces.RadarService
	warmupService interfaces.WarmupService
}

func NewAdminHandler(radarService interfaces.RadarService, warmupService interfaces.WarmupService) *AdminHandler {
	return &AdminHandler{
		radarService:  radarService,
		warmupService: warmupService,
	}
}

func (h *AdminHandler) ScanAllRadars() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AdminHandler.ScanAllRadars")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		summary, err := h.radarService.Scan(ctx)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func (h *AdminHandler) EscalateWarmups() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AdminHandler.EscalateWarmups")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		escalated, err := h.warmupService.Escalate(ctx, utils.Now())
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"escalated": escalated})
	}
}

func (h *AdminHandler) ResetCredits() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AdminHandler.ResetCredits")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		reset, err := h.warmupService.ResetDailyCounters(ctx, utils.Now())
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"reset": reset})
	}
}
