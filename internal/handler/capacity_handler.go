package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Onyemech/teemplot-sub006/internal/broadcast"
	"github.com/Onyemech/teemplot-sub006/internal/domain"
	"github.com/Onyemech/teemplot-sub006/internal/service"
	"github.com/Onyemech/teemplot-sub006/pkg/response"
	"github.com/Onyemech/teemplot-sub006/pkg/telemetry"
)

// StreamConfig tunes the capacity SSE endpoint
type StreamConfig struct {
	// Keepalive is how often an idle stream sends a heartbeat (default: 15s)
	Keepalive time.Duration
	// RetryBackoff is the reconnect delay advertised to clients (default: 3s)
	RetryBackoff time.Duration
}

// CapacityHandler handles capacity HTTP requests
type CapacityHandler struct {
	capacity service.CapacityService
	hub      *broadcast.Hub
	stream   StreamConfig
}

// NewCapacityHandler creates a new capacity handler. The hub may be nil when
// no pub/sub backend is configured; the stream endpoint then serves the
// initial snapshot and keepalives only.
func NewCapacityHandler(capacity service.CapacityService, hub *broadcast.Hub, stream StreamConfig) *CapacityHandler {
	if stream.Keepalive <= 0 {
		stream.Keepalive = 15 * time.Second
	}
	if stream.RetryBackoff <= 0 {
		stream.RetryBackoff = 3 * time.Second
	}
	return &CapacityHandler{
		capacity: capacity,
		hub:      hub,
		stream:   stream,
	}
}

// Get handles GET /companies/:company_id/capacity
func (h *CapacityHandler) Get(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.capacity.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	companyID := c.Param("company_id")
	span.SetAttributes(attribute.String("company_id", companyID))

	result, err := h.capacity.GetCapacity(ctx, companyID)
	if err != nil {
		respondError(c, span, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, response.Success(result))
}

// Stream handles GET /companies/:company_id/capacity/stream (SSE).
// Clients get the current snapshot immediately, then an event per capacity
// change published by the admission, acceptance, and cancellation paths.
func (h *CapacityHandler) Stream(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.capacity.stream")
	defer span.End()

	companyID := c.Param("company_id")
	span.SetAttributes(attribute.String("company_id", companyID))

	snapshot, err := h.capacity.GetCapacity(ctx, companyID)
	if err != nil {
		respondError(c, span, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	fmt.Fprintf(c.Writer, "retry: %d\n\n", h.stream.RetryBackoff.Milliseconds())
	writeCapacityEvent(c, snapshot.CapacitySnapshot)

	if h.hub == nil {
		h.streamKeepaliveOnly(c, companyID)
		span.SetStatus(codes.Ok, "")
		return
	}

	feed, cancel, err := h.hub.Subscribe(ctx, companyID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"stream unavailable\"}\n\n")
		c.Writer.Flush()
		return
	}
	defer cancel()

	keepalive := time.NewTicker(h.stream.Keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			// Client disconnected
			span.SetStatus(codes.Ok, "")
			return

		case snap, ok := <-feed:
			if !ok {
				span.SetStatus(codes.Ok, "")
				return
			}
			writeCapacityEvent(c, snap)

		case <-keepalive.C:
			c.Writer.WriteString(":keepalive\n\n")
			c.Writer.Flush()
		}
	}
}

// streamKeepaliveOnly holds the connection open with heartbeats when there
// is no pub/sub feed; clients fall back to the advertised retry cadence
func (h *CapacityHandler) streamKeepaliveOnly(c *gin.Context, companyID string) {
	ctx := c.Request.Context()
	keepalive := time.NewTicker(h.stream.Keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			result, err := h.capacity.GetCapacity(ctx, companyID)
			if err != nil {
				c.Writer.WriteString(":keepalive\n\n")
				c.Writer.Flush()
				continue
			}
			writeCapacityEvent(c, result.CapacitySnapshot)
		}
	}
}

func writeCapacityEvent(c *gin.Context, snap domain.CapacitySnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "event: capacity\ndata: %s\n\n", data)
	c.Writer.Flush()
}
