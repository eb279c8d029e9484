package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/h2linker/sendqueue/interfaces"
	"github.com/h2linker/sendqueue/internal/tracing"
)

type DNSHandler struct {
	validator interfaces.DomainValidator
}

func NewDNSHandler(validator interfaces.DomainValidator) *DNSHandler {
	return &DNSHandler{
		validator: validator,
	}
}

// Check reports whether the recipient's domain can receive mail.
func (h *DNSHandler) Check() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DNSHandler.Check")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		email := strings.TrimSpace(c.Query("email"))
		if email == "" {
			respondBadRequest(c, span, "email", "email query parameter is required")
			return
		}
		span.LogFields(tracingLog.String("email", email))

		c.JSON(http.StatusOK, h.validator.Validate(ctx, email))
	}
}
