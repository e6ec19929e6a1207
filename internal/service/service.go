package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Onyemech/teemplot-sub006/internal/audit"
	"github.com/Onyemech/teemplot-sub006/internal/domain"
	"github.com/Onyemech/teemplot-sub006/internal/mailer"
	"github.com/Onyemech/teemplot-sub006/internal/repository"
	"github.com/Onyemech/teemplot-sub006/pkg/logger"
	"github.com/Onyemech/teemplot-sub006/pkg/telemetry"
)

// AdmissionConfig tunes the invitation flow
type AdmissionConfig struct {
	// ExpiryDays is how long an invitation stays redeemable (default: 7)
	ExpiryDays int
	// TokenBytes is the entropy of the redemption token (default: 32)
	TokenBytes int
	// AcceptBaseURL is the public URL prefix for acceptance links
	AcceptBaseURL string
}

func (c AdmissionConfig) acceptURL(token string) string {
	if c.AcceptBaseURL == "" {
		return token
	}
	return fmt.Sprintf("%s/%s", c.AcceptBaseURL, token)
}

// queueInvitationEmail hands the invitation to the mailer. The surrounding
// operation already committed; email trouble is recorded against the
// invitation for later resends, never unwound.
func queueInvitationEmail(ctx context.Context, store repository.Store, m mailer.Mailer, config AdmissionConfig, company *domain.Company, inv *domain.Invitation) {
	err := m.SendInvitationEmail(ctx, &mailer.InvitationEmail{
		InvitationID: inv.ID,
		CompanyID:    inv.CompanyID,
		CompanyName:  company.Name,
		Email:        inv.Email,
		FirstName:    inv.FirstName,
		Role:         inv.Role,
		AcceptURL:    config.acceptURL(inv.Token),
		ExpiresAt:    inv.ExpiresAt,
	})
	if err == nil {
		return
	}

	logger.WarnCtx(ctx, "failed to queue invitation email",
		zap.String("invitation_id", inv.ID),
		zap.Error(err),
	)
	bumpErr := store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.IncrementInvitationRetry(ctx, inv.ID)
	})
	if bumpErr != nil {
		logger.WarnCtx(ctx, "failed to record email retry",
			zap.String("invitation_id", inv.ID),
			zap.Error(bumpErr),
		)
	}
}

// recordFailure writes a rejection to the out-of-band audit sink. The
// business transaction rolled back, so this is the only durable trace of the
// attempt.
func recordFailure(sink audit.Sink, companyID, actorID string, action audit.Action, traceID, email string, err error) {
	entry := audit.NewEntry(companyID, actorID, action, audit.OutcomeFailure)
	entry.ResourceType = "invitation"
	entry.TraceID = traceID
	var de *domain.Error
	if errors.As(err, &de) {
		entry.ErrorCode = string(de.Code)
		if len(de.Details) > 0 {
			entry.Details = de.Details
		}
	}
	if email != "" {
		if entry.Details == nil {
			entry.Details = map[string]interface{}{}
		}
		entry.Details["email"] = email
	}
	sink.Record(entry)
}

// asDomainError passes typed engine errors through and folds anything else
// into the given fallback
func asDomainError(err error, fallback *domain.Error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return fallback.WithCause(err)
}

// traceIDFromContext extracts the active trace ID, if tracing is on
func traceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

var (
	metricsOnce      sync.Once
	admissionCounter *telemetry.Counter
	admissionLatency *telemetry.Histogram
)

// recordOperation counts the operation and its latency, labeled by outcome.
// Instruments come from the global meter; without a provider they are no-ops.
func recordOperation(ctx context.Context, action string, start time.Time, err error) {
	metricsOnce.Do(func() {
		admissionCounter, _ = telemetry.NewCounter(telemetry.MetricOpts{
			Name:        "seats_operations_total",
			Description: "Seat admission operations by action and outcome",
		})
		admissionLatency, _ = telemetry.NewHistogram(telemetry.MetricOpts{
			Name:        "seats_operation_duration_seconds",
			Description: "Duration of seat admission operations",
			Unit:        "s",
		})
	})

	outcome := "success"
	if err != nil {
		outcome = "error"
		var de *domain.Error
		if errors.As(err, &de) {
			outcome = string(de.Code)
		}
	}
	attrs := []attribute.KeyValue{
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	}
	if admissionCounter != nil {
		admissionCounter.Add(ctx, 1, attrs...)
	}
	if admissionLatency != nil {
		admissionLatency.Record(ctx, time.Since(start).Seconds(), attrs...)
	}
}
