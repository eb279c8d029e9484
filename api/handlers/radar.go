package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/h2linker/sendqueue/interfaces"
	"github.com/h2linker/sendqueue/internal/tracing"
	"github.com/h2linker/sendqueue/internal/utils"
)

type RadarHandler struct {
	radarService interfaces.RadarService
}

func NewRadarHandler(radarService interfaces.RadarService) *RadarHandler {
	return &RadarHandler{
		radarService: radarService,
	}
}

func (h *RadarHandler) ScanUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "RadarHandler.ScanUser")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		summary, err := h.radarService.ScanUser(ctx, utils.GetUserIdFromContext(ctx))
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}
