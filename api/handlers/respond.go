package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	api_errors "github.com/h2linker/sendqueue/api/errors"
	"github.com/h2linker/sendqueue/internal/tracing"
)

func respondError(c *gin.Context, span opentracing.Span, err error) {
	status, body := api_errors.FromError(err)
	if status >= 500 {
		tracing.TraceErr(span, err)
	}
	c.JSON(status, body)
}

func respondBadRequest(c *gin.Context, span opentracing.Span, field, message string) {
	validation := api_errors.NewMultiErrors()
	validation.Add(field, message, nil)
	respondError(c, span, validation)
}
