package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Onyemech/teemplot-sub006/internal/dto"
	"github.com/Onyemech/teemplot-sub006/internal/service"
	"github.com/Onyemech/teemplot-sub006/pkg/middleware"
	"github.com/Onyemech/teemplot-sub006/pkg/response"
	"github.com/Onyemech/teemplot-sub006/pkg/telemetry"
)

// InvitationHandler handles invitation HTTP requests
type InvitationHandler struct {
	admission   service.AdmissionService
	invitations service.InvitationService
}

// NewInvitationHandler creates a new invitation handler
func NewInvitationHandler(admission service.AdmissionService, invitations service.InvitationService) *InvitationHandler {
	return &InvitationHandler{
		admission:   admission,
		invitations: invitations,
	}
}

// Invite handles POST /companies/:company_id/invitations
func (h *InvitationHandler) Invite(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.invitation.invite")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	companyID := c.Param("company_id")
	actorID := c.GetString(middleware.ContextKeyUserID)

	var req dto.InviteEmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		c.JSON(http.StatusBadRequest, response.BadRequest(err.Error()))
		return
	}

	span.SetAttributes(
		attribute.String("company_id", companyID),
		attribute.String("invite.role", req.Role),
	)

	result, err := h.admission.InviteEmployee(ctx, companyID, actorID, &req)
	if err != nil {
		respondError(c, span, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusCreated, response.Success(result))
}

// List handles GET /companies/:company_id/invitations
func (h *InvitationHandler) List(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.invitation.list")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	companyID := c.Param("company_id")

	var query dto.ListInvitationsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		span.SetStatus(codes.Error, "invalid query")
		c.JSON(http.StatusBadRequest, response.BadRequest(err.Error()))
		return
	}

	span.SetAttributes(attribute.String("company_id", companyID))

	result, err := h.invitations.ListInvitations(ctx, companyID, &query)
	if err != nil {
		respondError(c, span, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, response.Success(result))
}

// Resend handles POST /companies/:company_id/invitations/:invitation_id/resend
func (h *InvitationHandler) Resend(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.invitation.resend")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	companyID := c.Param("company_id")
	invitationID := c.Param("invitation_id")
	actorID := c.GetString(middleware.ContextKeyUserID)

	span.SetAttributes(
		attribute.String("company_id", companyID),
		attribute.String("invitation_id", invitationID),
	)

	result, err := h.invitations.ResendInvitation(ctx, companyID, actorID, invitationID)
	if err != nil {
		respondError(c, span, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, response.Success(result))
}

// Cancel handles DELETE /companies/:company_id/invitations/:invitation_id
func (h *InvitationHandler) Cancel(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.invitation.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	companyID := c.Param("company_id")
	invitationID := c.Param("invitation_id")
	actorID := c.GetString(middleware.ContextKeyUserID)

	span.SetAttributes(
		attribute.String("company_id", companyID),
		attribute.String("invitation_id", invitationID),
	)

	result, err := h.invitations.CancelInvitation(ctx, companyID, actorID, invitationID)
	if err != nil {
		respondError(c, span, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, response.Success(result))
}

// Preview handles GET /invitations/:token (public)
func (h *InvitationHandler) Preview(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.invitation.preview")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.Param("token")

	result, err := h.invitations.PreviewInvitation(ctx, token)
	if err != nil {
		respondError(c, span, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, response.Success(result))
}

// Accept handles POST /invitations/:token/accept (public)
func (h *InvitationHandler) Accept(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.invitation.accept")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.Param("token")

	var req dto.AcceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		c.JSON(http.StatusBadRequest, response.BadRequest(err.Error()))
		return
	}

	result, err := h.invitations.AcceptInvitation(ctx, token, &req)
	if err != nil {
		respondError(c, span, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusCreated, response.Success(result))
}
