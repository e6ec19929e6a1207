package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Onyemech/teemplot-sub006/internal/domain"
	"github.com/Onyemech/teemplot-sub006/pkg/logger"
	"github.com/Onyemech/teemplot-sub006/pkg/response"
)

// respondError converts engine errors to HTTP responses. Typed errors map
// through their stable code; anything else is an opaque 500.
func respondError(c *gin.Context, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var de *domain.Error
	if errors.As(err, &de) {
		status := response.GetHTTPStatus(string(de.Code))
		c.JSON(status, response.ErrorWithDetails(string(de.Code), de.Message, de.Details))
		return
	}

	logger.ErrorCtx(c.Request.Context(), "unhandled error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, response.InternalError("internal server error"))
}
