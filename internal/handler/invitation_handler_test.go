package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Onyemech/teemplot-sub006/internal/audit"
	"github.com/Onyemech/teemplot-sub006/internal/broadcast"
	"github.com/Onyemech/teemplot-sub006/internal/domain"
	"github.com/Onyemech/teemplot-sub006/internal/mailer"
	"github.com/Onyemech/teemplot-sub006/internal/repository"
	"github.com/Onyemech/teemplot-sub006/internal/service"
	"github.com/Onyemech/teemplot-sub006/pkg/middleware"
	"github.com/Onyemech/teemplot-sub006/pkg/response"
)

const (
	handlerCompanyID = "2f9c3f0e-8f4f-4f4e-9d0a-0a8f6e8f0c11"
	handlerActorID   = "5a7b9c1d-3e5f-4a6b-8c9d-0e1f2a3b4c5d"
)

type handlerFixture struct {
	store  *repository.MemoryStore
	router *gin.Engine
}

func newHandlerFixture(t *testing.T, seatLimit int) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	limit := seatLimit
	store.SeedCompany(&domain.Company{
		ID:        handlerCompanyID,
		Name:      "Acme Robotics",
		Plan:      domain.PlanSilver,
		SeatLimit: &limit,
	})

	sink := audit.NewAsyncSink(&audit.AsyncSinkConfig{FlushInterval: 10 * time.Millisecond})
	sink.SetTestMode(true)
	t.Cleanup(func() { _ = sink.Close() })

	cfg := service.AdmissionConfig{AcceptBaseURL: "https://app.example.com/invitations"}
	admission := service.NewAdmissionService(store, sink, broadcast.NopBroadcaster{}, mailer.NopMailer{}, cfg)
	invitations := service.NewInvitationService(store, sink, broadcast.NopBroadcaster{}, mailer.NopMailer{}, cfg)

	h := NewInvitationHandler(admission, invitations)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, handlerActorID)
	})
	router.POST("/companies/:company_id/invitations", h.Invite)
	router.GET("/companies/:company_id/invitations", h.List)
	router.DELETE("/companies/:company_id/invitations/:invitation_id", h.Cancel)
	router.GET("/invitations/:token", h.Preview)
	router.POST("/invitations/:token/accept", h.Accept)

	return &handlerFixture{store: store, router: router}
}

func (f *handlerFixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, *response.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	resp := &response.Response{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), resp))
	return w, resp
}

func TestInviteEndpoint(t *testing.T) {
	invitePath := fmt.Sprintf("/companies/%s/invitations", handlerCompanyID)

	t.Run("returns 201 with invitation and capacity", func(t *testing.T) {
		f := newHandlerFixture(t, 5)
		w, resp := f.do(t, http.MethodPost, invitePath, gin.H{
			"email":      "new.hire@example.com",
			"first_name": "Ada",
			"last_name":  "Lovelace",
			"role":       "employee",
		})

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.True(t, resp.Success)
		require.NotNil(t, resp.Data)
	})

	t.Run("rejects malformed email with 400", func(t *testing.T) {
		f := newHandlerFixture(t, 5)
		w, resp := f.do(t, http.MethodPost, invitePath, gin.H{
			"email":      "not-an-email",
			"first_name": "Ada",
			"last_name":  "Lovelace",
			"role":       "employee",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, response.ErrCodeBadRequest, resp.Error.Code)
	})

	t.Run("maps limit reached to 402 with usage details", func(t *testing.T) {
		f := newHandlerFixture(t, 1)
		f.store.SeedUser(&domain.User{
			ID:        "user-0",
			CompanyID: handlerCompanyID,
			Email:     "taken@example.com",
			IsActive:  true,
		})

		w, resp := f.do(t, http.MethodPost, invitePath, gin.H{
			"email":      "overflow@example.com",
			"first_name": "Ada",
			"last_name":  "Lovelace",
			"role":       "employee",
		})

		assert.Equal(t, http.StatusPaymentRequired, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, response.ErrCodeEmployeeLimitReached, resp.Error.Code)
		assert.EqualValues(t, 1, resp.Error.Details["limit"])
		assert.Contains(t, resp.Error.Details, "upgrade")
	})

	t.Run("maps duplicate pending invitation to 409", func(t *testing.T) {
		f := newHandlerFixture(t, 5)
		body := gin.H{
			"email":      "repeat@example.com",
			"first_name": "Ada",
			"last_name":  "Lovelace",
			"role":       "employee",
		}

		w, _ := f.do(t, http.MethodPost, invitePath, body)
		require.Equal(t, http.StatusCreated, w.Code)

		w, resp := f.do(t, http.MethodPost, invitePath, body)
		assert.Equal(t, http.StatusConflict, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, response.ErrCodeDuplicateInvitation, resp.Error.Code)
	})
}

func TestAcceptEndpoint(t *testing.T) {
	seedInvitation := func(f *handlerFixture, token string) {
		f.store.SeedInvitation(&domain.Invitation{
			ID:        "inv-1",
			CompanyID: handlerCompanyID,
			Token:     token,
			Email:     "new.hire@example.com",
			Role:      "employee",
			Status:    domain.InvitationPending,
			ExpiresAt: time.Now().Add(time.Hour),
		})
	}

	t.Run("returns 201 with the created user", func(t *testing.T) {
		f := newHandlerFixture(t, 5)
		seedInvitation(f, "tok-accept")

		w, resp := f.do(t, http.MethodPost, "/invitations/tok-accept/accept", gin.H{
			"password": "correct horse battery",
		})

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.True(t, resp.Success)
	})

	t.Run("maps unknown token to 410", func(t *testing.T) {
		f := newHandlerFixture(t, 5)

		w, resp := f.do(t, http.MethodPost, "/invitations/no-such-token/accept", gin.H{
			"password": "correct horse battery",
		})

		assert.Equal(t, http.StatusGone, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, response.ErrCodeInvalidInvitation, resp.Error.Code)
	})

	t.Run("maps missing biometric enrollment to 422", func(t *testing.T) {
		f := newHandlerFixture(t, 5)
		limit := 5
		f.store.SeedCompany(&domain.Company{
			ID:                handlerCompanyID,
			Name:              "Acme Robotics",
			Plan:              domain.PlanSilver,
			SeatLimit:         &limit,
			BiometricRequired: true,
		})
		seedInvitation(f, "tok-bio")

		w, resp := f.do(t, http.MethodPost, "/invitations/tok-bio/accept", gin.H{
			"password": "correct horse battery",
		})

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, response.ErrCodeBiometricsRequired, resp.Error.Code)
	})

	t.Run("rejects short password with 400", func(t *testing.T) {
		f := newHandlerFixture(t, 5)
		seedInvitation(f, "tok-short")

		w, _ := f.do(t, http.MethodPost, "/invitations/tok-short/accept", gin.H{
			"password": "short",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPreviewEndpoint(t *testing.T) {
	f := newHandlerFixture(t, 5)
	f.store.SeedInvitation(&domain.Invitation{
		ID:        "inv-1",
		CompanyID: handlerCompanyID,
		Token:     "tok-preview",
		Email:     "new.hire@example.com",
		Role:      "employee",
		Status:    domain.InvitationPending,
		ExpiresAt: time.Now().Add(time.Hour),
	})

	w, resp := f.do(t, http.MethodGet, "/invitations/tok-preview", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	w, resp = f.do(t, http.MethodGet, "/invitations/unknown", nil)
	assert.Equal(t, http.StatusGone, w.Code)
	require.NotNil(t, resp.Error)
}

func TestCancelEndpoint(t *testing.T) {
	f := newHandlerFixture(t, 5)
	now := time.Now()
	f.store.SeedInvitation(&domain.Invitation{
		ID:         "inv-done",
		CompanyID:  handlerCompanyID,
		Token:      "tok-done",
		Email:      "done@example.com",
		Status:     domain.InvitationAccepted,
		ExpiresAt:  now.Add(time.Hour),
		AcceptedAt: &now,
	})

	path := fmt.Sprintf("/companies/%s/invitations/inv-done", handlerCompanyID)
	w, resp := f.do(t, http.MethodDelete, path, nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, response.ErrCodeInvitationCancelFailed, resp.Error.Code)
}
