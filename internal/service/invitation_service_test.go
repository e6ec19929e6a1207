package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Onyemech/teemplot-sub006/internal/audit"
	"github.com/Onyemech/teemplot-sub006/internal/domain"
	"github.com/Onyemech/teemplot-sub006/internal/dto"
	"github.com/Onyemech/teemplot-sub006/internal/mailer"
	"github.com/Onyemech/teemplot-sub006/internal/repository"
)

type invitationFixture struct {
	store     *repository.MemoryStore
	sink      *audit.AsyncSink
	broadcast *capacityRecorder
	mailer    *mailer.RecorderMailer
	service   InvitationService
}

func newInvitationFixture(t *testing.T, company *domain.Company) *invitationFixture {
	t.Helper()

	store := repository.NewMemoryStore()
	store.SeedCompany(company)

	sink := audit.NewAsyncSink(&audit.AsyncSinkConfig{FlushInterval: 10 * time.Millisecond})
	sink.SetTestMode(true)
	t.Cleanup(func() { _ = sink.Close() })

	recorder := &capacityRecorder{}
	m := &mailer.RecorderMailer{}

	svc := NewInvitationService(store, sink, recorder, m, AdmissionConfig{
		ExpiryDays:    7,
		TokenBytes:    32,
		AcceptBaseURL: "https://app.example.com/invitations",
	})

	return &invitationFixture{
		store:     store,
		sink:      sink,
		broadcast: recorder,
		mailer:    m,
		service:   svc,
	}
}

func testCompany(seatLimit int) *domain.Company {
	limit := seatLimit
	return &domain.Company{
		ID:        testCompanyID,
		Name:      "Acme Robotics",
		Plan:      domain.PlanSilver,
		SeatLimit: &limit,
	}
}

func seedPendingInvitation(store *repository.MemoryStore, id, token, email string) *domain.Invitation {
	inv := &domain.Invitation{
		ID:        id,
		CompanyID: testCompanyID,
		Token:     token,
		Email:     email,
		FirstName: "Jamie",
		LastName:  "Okafor",
		Role:      "employee",
		Status:    domain.InvitationPending,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		InvitedBy: testActorID,
		CreatedAt: time.Now(),
	}
	store.SeedInvitation(inv)
	return inv
}

func acceptRequest() *dto.AcceptInvitationRequest {
	return &dto.AcceptInvitationRequest{Password: "correct-horse-battery"}
}

func TestAcceptInvitation(t *testing.T) {
	ctx := context.Background()

	t.Run("redeems into an active user", func(t *testing.T) {
		f := newInvitationFixture(t, testCompany(5))
		seedPendingInvitation(f.store, "inv-1", "tok-1", "jamie@example.com")

		resp, err := f.service.AcceptInvitation(ctx, "tok-1", acceptRequest())
		require.NoError(t, err)

		assert.Equal(t, "jamie@example.com", resp.User.Email)
		assert.True(t, resp.User.IsActive)
		assert.Equal(t, 1, resp.Capacity.CurrentCount)
		assert.Equal(t, 0, resp.Capacity.PendingInvitations)

		users := f.store.Users()
		require.Len(t, users, 1)
		require.NoError(t, bcrypt.CompareHashAndPassword(
			[]byte(users[0].PasswordHash), []byte("correct-horse-battery")))

		inv, err := f.store.GetInvitationByToken(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, domain.InvitationAccepted, inv.Status)
		assert.NotNil(t, inv.AcceptedAt)

		company, err := f.store.GetCompany(ctx, testCompanyID)
		require.NoError(t, err)
		assert.Equal(t, 1, company.EmployeeCount)

		entries := f.store.AuditEntries()
		require.Len(t, entries, 1)
		assert.Equal(t, audit.ActionAccept, entries[0].Action)

		snaps := f.broadcast.Snapshots()
		require.Len(t, snaps, 1)
		assert.Equal(t, 1, snaps[0].CurrentCount)
	})

	t.Run("unknown token is invalid", func(t *testing.T) {
		f := newInvitationFixture(t, testCompany(5))

		_, err := f.service.AcceptInvitation(ctx, "no-such-token", acceptRequest())
		require.ErrorIs(t, err, domain.ErrInvalidInvitation)

		// The failure is still audited, without a tenant to pin it to
		require.NoError(t, f.sink.Close())
		entries := f.sink.TestEntries()
		require.Len(t, entries, 1)
		assert.Equal(t, audit.OutcomeFailure, entries[0].Outcome)
		assert.Empty(t, entries[0].CompanyID)
	})

	t.Run("expired invitation is invalid", func(t *testing.T) {
		f := newInvitationFixture(t, testCompany(5))
		inv := seedPendingInvitation(f.store, "inv-1", "tok-1", "jamie@example.com")
		inv.ExpiresAt = time.Now().Add(-time.Minute)
		f.store.SeedInvitation(inv)

		_, err := f.service.AcceptInvitation(ctx, "tok-1", acceptRequest())
		require.ErrorIs(t, err, domain.ErrInvalidInvitation)
		assert.Empty(t, f.store.Users())
	})

	t.Run("second acceptance is invalid", func(t *testing.T) {
		f := newInvitationFixture(t, testCompany(5))
		seedPendingInvitation(f.store, "inv-1", "tok-1", "jamie@example.com")

		_, err := f.service.AcceptInvitation(ctx, "tok-1", acceptRequest())
		require.NoError(t, err)

		_, err = f.service.AcceptInvitation(ctx, "tok-1", acceptRequest())
		require.ErrorIs(t, err, domain.ErrInvalidInvitation)
		assert.Len(t, f.store.Users(), 1)
	})

	t.Run("cancelled invitation is invalid", func(t *testing.T) {
		f := newInvitationFixture(t, testCompany(5))
		inv := seedPendingInvitation(f.store, "inv-1", "tok-1", "jamie@example.com")
		inv.Status = domain.InvitationCancelled
		f.store.SeedInvitation(inv)

		_, err := f.service.AcceptInvitation(ctx, "tok-1", acceptRequest())
		require.ErrorIs(t, err, domain.ErrInvalidInvitation)
	})

	t.Run("biometric policy blocks enrollment without an ID", func(t *testing.T) {
		company := testCompany(5)
		company.BiometricRequired = true
		f := newInvitationFixture(t, company)
		seedPendingInvitation(f.store, "inv-1", "tok-1", "jamie@example.com")

		_, err := f.service.AcceptInvitation(ctx, "tok-1", acceptRequest())
		require.ErrorIs(t, err, domain.ErrBiometricsRequired)

		req := acceptRequest()
		req.BiometricID = "bio-12345"
		resp, err := f.service.AcceptInvitation(ctx, "tok-1", req)
		require.NoError(t, err)

		users := f.store.Users()
		require.Len(t, users, 1)
		assert.Equal(t, resp.User.ID, users[0].ID)
		assert.Equal(t, "bio-12345", users[0].BiometricID)
	})

	t.Run("duplicate active email blocks redemption", func(t *testing.T) {
		f := newInvitationFixture(t, testCompany(5))
		seedPendingInvitation(f.store, "inv-1", "tok-1", "jamie@example.com")
		f.store.SeedUser(&domain.User{
			ID:        "user-1",
			CompanyID: testCompanyID,
			Email:     "jamie@example.com",
			IsActive:  true,
		})

		_, err := f.service.AcceptInvitation(ctx, "tok-1", acceptRequest())
		require.ErrorIs(t, err, domain.ErrDuplicateEmail)
	})

	t.Run("mid-transaction failure leaves nothing behind", func(t *testing.T) {
		f := newInvitationFixture(t, testCompany(5))
		seedPendingInvitation(f.store, "inv-1", "tok-1", "jamie@example.com")
		f.store.FailOnMarkAccepted = errors.New("connection reset")

		_, err := f.service.AcceptInvitation(ctx, "tok-1", acceptRequest())
		require.Error(t, err)

		// User creation rolled back with the status flip
		assert.Empty(t, f.store.Users())
		inv, getErr := f.store.GetInvitationByToken(ctx, "tok-1")
		require.NoError(t, getErr)
		assert.Equal(t, domain.InvitationPending, inv.Status)

		company, getErr := f.store.GetCompany(ctx, testCompanyID)
		require.NoError(t, getErr)
		assert.Equal(t, 0, company.EmployeeCount)

		require.NoError(t, f.sink.Close())
		entries := f.sink.TestEntries()
		require.Len(t, entries, 1)
		assert.Equal(t, audit.OutcomeFailure, entries[0].Outcome)
		assert.Equal(t, testCompanyID, entries[0].CompanyID)
	})
}

func TestCancelInvitation(t *testing.T) {
	ctx := context.Background()

	t.Run("revokes a pending invitation", func(t *testing.T) {
		f := newInvitationFixture(t, testCompany(5))
		seedPendingInvitation(f.store, "inv-1", "tok-1", "jamie@example.com")

		resp, err := f.service.CancelInvitation(ctx, testCompanyID, testActorID, "inv-1")
		require.NoError(t, err)
		assert.Equal(t, "cancelled", resp.Status)
		assert.NotEmpty(t, resp.CancelledAt)

		snaps := f.broadcast.Snapshots()
		require.Len(t, snaps, 1)
		assert.Equal(t, 0, snaps[0].PendingInvitations)

		entries := f.store.AuditEntries()
		require.Len(t, entries, 1)
		assert.Equal(t, audit.ActionCancel, entries[0].Action)
	})

	t.Run("unknown invitation is not found", func(t *testing.T) {
		f := newInvitationFixture(t, testCompany(5))

		_, err := f.service.CancelInvitation(ctx, testCompanyID, testActorID, "inv-404")
		require.ErrorIs(t, err, domain.ErrInvitationNotFound)
	})

	t.Run("accepted invitation cannot be cancelled", func(t *testing.T) {
		f := newInvitationFixture(t, testCompany(5))
		inv := seedPendingInvitation(f.store, "inv-1", "tok-1", "jamie@example.com")
		inv.Status = domain.InvitationAccepted
		f.store.SeedInvitation(inv)

		_, err := f.service.CancelInvitation(ctx, testCompanyID, testActorID, "inv-1")
		require.ErrorIs(t, err, domain.ErrInvitationCancelFailed)

		var de *domain.Error
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "accepted", de.Details["status"])
	})

	t.Run("expired invitation cannot be cancelled", func(t *testing.T) {
		f := newInvitationFixture(t, testCompany(5))
		inv := seedPendingInvitation(f.store, "inv-1", "tok-1", "jamie@example.com")
		inv.ExpiresAt = time.Now().Add(-time.Minute)
		f.store.SeedInvitation(inv)

		_, err := f.service.CancelInvitation(ctx, testCompanyID, testActorID, "inv-1")
		require.ErrorIs(t, err, domain.ErrInvitationNotFound)

		// Expiry is a read-time fact, never a stored transition
		stored, getErr := f.store.GetInvitationByToken(ctx, "tok-1")
		require.NoError(t, getErr)
		assert.Equal(t, domain.InvitationPending, stored.Status)
		assert.Nil(t, stored.CancelledAt)
		assert.Empty(t, f.store.AuditEntries())
	})

	t.Run("double cancellation fails the second time", func(t *testing.T) {
		f := newInvitationFixture(t, testCompany(5))
		seedPendingInvitation(f.store, "inv-1", "tok-1", "jamie@example.com")

		_, err := f.service.CancelInvitation(ctx, testCompanyID, testActorID, "inv-1")
		require.NoError(t, err)

		_, err = f.service.CancelInvitation(ctx, testCompanyID, testActorID, "inv-1")
		require.ErrorIs(t, err, domain.ErrInvitationCancelFailed)
	})
}

// Redemption and cancellation race on the same row; the company lock orders
// them, so exactly one wins and the loser fails with a typed error.
func TestAcceptAndCancelContention(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		f := newInvitationFixture(t, testCompany(5))
		seedPendingInvitation(f.store, "inv-1", "tok-1", "jamie@example.com")

		var wg sync.WaitGroup
		var acceptErr, cancelErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, acceptErr = f.service.AcceptInvitation(ctx, "tok-1", acceptRequest())
		}()
		go func() {
			defer wg.Done()
			_, cancelErr = f.service.CancelInvitation(ctx, testCompanyID, testActorID, "inv-1")
		}()
		wg.Wait()

		inv, err := f.store.GetInvitationByToken(ctx, "tok-1")
		require.NoError(t, err)
		require.NotNil(t, inv)

		switch {
		case acceptErr == nil && cancelErr == nil:
			t.Fatal("acceptance and cancellation both won")
		case acceptErr == nil:
			require.ErrorIs(t, cancelErr, domain.ErrInvitationCancelFailed)
			assert.Equal(t, domain.InvitationAccepted, inv.Status)
			assert.Len(t, f.store.Users(), 1)
		case cancelErr == nil:
			require.ErrorIs(t, acceptErr, domain.ErrInvalidInvitation)
			assert.Equal(t, domain.InvitationCancelled, inv.Status)
			assert.Empty(t, f.store.Users())
		default:
			t.Fatalf("both paths lost: accept=%v cancel=%v", acceptErr, cancelErr)
		}
	}
}

func TestResendInvitation(t *testing.T) {
	ctx := context.Background()

	t.Run("queues the email again", func(t *testing.T) {
		f := newInvitationFixture(t, testCompany(5))
		seedPendingInvitation(f.store, "inv-1", "tok-1", "jamie@example.com")

		resp, err := f.service.ResendInvitation(ctx, testCompanyID, testActorID, "inv-1")
		require.NoError(t, err)
		assert.Equal(t, "pending", resp.Status)

		sent := f.mailer.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "jamie@example.com", sent[0].Email)
		assert.Contains(t, sent[0].AcceptURL, "tok-1")

		entries := f.store.AuditEntries()
		require.Len(t, entries, 1)
		assert.Equal(t, audit.ActionResend, entries[0].Action)
	})

	t.Run("expired invitation cannot be resent", func(t *testing.T) {
		f := newInvitationFixture(t, testCompany(5))
		inv := seedPendingInvitation(f.store, "inv-1", "tok-1", "jamie@example.com")
		inv.ExpiresAt = time.Now().Add(-time.Minute)
		f.store.SeedInvitation(inv)

		_, err := f.service.ResendInvitation(ctx, testCompanyID, testActorID, "inv-1")
		require.ErrorIs(t, err, domain.ErrInvitationNotFound)
		assert.Empty(t, f.mailer.Sent())
	})
}

func TestListInvitations(t *testing.T) {
	ctx := context.Background()
	f := newInvitationFixture(t, testCompany(5))

	seedPendingInvitation(f.store, "inv-live", "tok-live", "live@example.com")

	stale := seedPendingInvitation(f.store, "inv-stale", "tok-stale", "stale@example.com")
	stale.ExpiresAt = time.Now().Add(-time.Hour)
	f.store.SeedInvitation(stale)

	done := seedPendingInvitation(f.store, "inv-done", "tok-done", "done@example.com")
	done.Status = domain.InvitationAccepted
	f.store.SeedInvitation(done)

	t.Run("all statuses with expiry derived", func(t *testing.T) {
		resp, err := f.service.ListInvitations(ctx, testCompanyID, &dto.ListInvitationsQuery{})
		require.NoError(t, err)
		require.Equal(t, 3, resp.TotalCount)

		byID := map[string]string{}
		for _, inv := range resp.Invitations {
			byID[inv.ID] = inv.Status
		}
		assert.Equal(t, "pending", byID["inv-live"])
		assert.Equal(t, "expired", byID["inv-stale"])
		assert.Equal(t, "accepted", byID["inv-done"])
	})

	t.Run("pending filter excludes expired rows", func(t *testing.T) {
		resp, err := f.service.ListInvitations(ctx, testCompanyID, &dto.ListInvitationsQuery{Status: "pending"})
		require.NoError(t, err)
		require.Equal(t, 1, resp.TotalCount)
		assert.Equal(t, "inv-live", resp.Invitations[0].ID)
	})

	t.Run("expired filter selects only stale pending rows", func(t *testing.T) {
		resp, err := f.service.ListInvitations(ctx, testCompanyID, &dto.ListInvitationsQuery{Status: "expired"})
		require.NoError(t, err)
		require.Equal(t, 1, resp.TotalCount)
		assert.Equal(t, "inv-stale", resp.Invitations[0].ID)
	})
}

func TestPreviewInvitation(t *testing.T) {
	ctx := context.Background()

	t.Run("shows the acceptance page data", func(t *testing.T) {
		company := testCompany(5)
		company.BiometricRequired = true
		f := newInvitationFixture(t, company)
		seedPendingInvitation(f.store, "inv-1", "tok-1", "jamie@example.com")

		resp, err := f.service.PreviewInvitation(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, "Acme Robotics", resp.CompanyName)
		assert.Equal(t, "jamie@example.com", resp.Email)
		assert.True(t, resp.BiometricRequired)
	})

	t.Run("resolved and expired tokens read as invalid", func(t *testing.T) {
		f := newInvitationFixture(t, testCompany(5))

		accepted := seedPendingInvitation(f.store, "inv-1", "tok-1", "a@example.com")
		accepted.Status = domain.InvitationAccepted
		f.store.SeedInvitation(accepted)

		expired := seedPendingInvitation(f.store, "inv-2", "tok-2", "b@example.com")
		expired.ExpiresAt = time.Now().Add(-time.Minute)
		f.store.SeedInvitation(expired)

		_, err := f.service.PreviewInvitation(ctx, "tok-1")
		require.ErrorIs(t, err, domain.ErrInvalidInvitation)

		_, err = f.service.PreviewInvitation(ctx, "tok-2")
		require.ErrorIs(t, err, domain.ErrInvalidInvitation)

		_, err = f.service.PreviewInvitation(ctx, "tok-404")
		require.ErrorIs(t, err, domain.ErrInvalidInvitation)
	})
}
