package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Onyemech/teemplot-sub006/internal/audit"
	"github.com/Onyemech/teemplot-sub006/internal/domain"
)

// MemoryStore implements Store in memory. The company row lock is modeled as
// a per-company mutex held for the duration of the transaction, giving the
// same per-tenant mutual exclusion as SELECT ... FOR UPDATE. Used by tests
// and local development.
type MemoryStore struct {
	mu          sync.Mutex
	companies   map[string]*domain.Company
	users       map[string]*domain.User
	invitations map[string]*domain.Invitation
	auditLog    []*audit.Entry

	companyLocks map[string]*sync.Mutex

	// Failure injection for atomicity tests
	FailOnCreateInvitation error
	FailOnCreateUser       error
	FailOnMarkAccepted     error
	FailOnRefreshCount     error
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		companies:    make(map[string]*domain.Company),
		users:        make(map[string]*domain.User),
		invitations:  make(map[string]*domain.Invitation),
		companyLocks: make(map[string]*sync.Mutex),
	}
}

// SeedCompany adds a company
func (s *MemoryStore) SeedCompany(c *domain.Company) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.companies[c.ID] = &cp
}

// SeedUser adds a user
func (s *MemoryStore) SeedUser(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

// SeedInvitation adds an invitation
func (s *MemoryStore) SeedInvitation(inv *domain.Invitation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inv
	s.invitations[inv.ID] = &cp
}

// AuditEntries returns committed audit entries
func (s *MemoryStore) AuditEntries() []*audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*audit.Entry, len(s.auditLog))
	copy(out, s.auditLog)
	return out
}

// Users returns all users (test helper)
func (s *MemoryStore) Users() []*domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		out = append(out, &cp)
	}
	return out
}

func (s *MemoryStore) lockForCompany(companyID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.companyLocks[companyID]
	if !ok {
		l = &sync.Mutex{}
		s.companyLocks[companyID] = l
	}
	return l
}

// InTx runs fn against a buffered view of the store. Writes are applied
// atomically at commit and discarded on error, mirroring the transactional
// behavior of the Postgres implementation.
func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memoryTx{store: s}
	defer tx.releaseLocks()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	tx.commit()
	return nil
}

// GetCompany retrieves a company by ID
func (s *MemoryStore) GetCompany(ctx context.Context, companyID string) (*domain.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[companyID]
	if !ok || c.DeletedAt != nil {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// CountActiveUsers counts users holding a seat
func (s *MemoryStore) CountActiveUsers(ctx context.Context, companyID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countActiveUsersLocked(companyID), nil
}

// CountPendingInvitations counts pending, unexpired invitations
func (s *MemoryStore) CountPendingInvitations(ctx context.Context, companyID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countPendingLocked(companyID, now), nil
}

// ListInvitations lists invitations filtered by effective status
func (s *MemoryStore) ListInvitations(ctx context.Context, companyID string, status domain.InvitationStatus, now time.Time) ([]*domain.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Invitation, 0)
	for _, inv := range s.invitations {
		if inv.CompanyID != companyID {
			continue
		}
		if status != "" && inv.EffectiveStatus(now) != status {
			continue
		}
		cp := *inv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetInvitationByToken retrieves an invitation by token
func (s *MemoryStore) GetInvitationByToken(ctx context.Context, token string) (*domain.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invitations {
		if inv.Token == token {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) countActiveUsersLocked(companyID string) int {
	count := 0
	for _, u := range s.users {
		if u.CompanyID == companyID && u.DeletedAt == nil && u.IsActive {
			count++
		}
	}
	return count
}

func (s *MemoryStore) countPendingLocked(companyID string, now time.Time) int {
	count := 0
	for _, inv := range s.invitations {
		if inv.CompanyID == companyID && inv.Status == domain.InvitationPending && inv.ExpiresAt.After(now) {
			count++
		}
	}
	return count
}

// memoryTx buffers writes until commit
type memoryTx struct {
	store *MemoryStore

	held []*sync.Mutex

	newUsers       []*domain.User
	newInvitations []*domain.Invitation
	statusChanges  []statusChange
	retryBumps     []string
	countRefresh   map[string]int
	auditEntries   []*audit.Entry
}

type statusChange struct {
	invitationID string
	status       domain.InvitationStatus
	at           time.Time
}

func (t *memoryTx) releaseLocks() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].Unlock()
	}
	t.held = nil
}

func (t *memoryTx) acquireCompanyLock(companyID string) {
	l := t.store.lockForCompany(companyID)
	for _, h := range t.held {
		if h == l {
			return
		}
	}
	l.Lock()
	t.held = append(t.held, l)
}

func (t *memoryTx) SetTenantContext(ctx context.Context, companyID, userID string) error {
	return nil
}

func (t *memoryTx) LockCompany(ctx context.Context, companyID string) (*domain.Company, error) {
	t.acquireCompanyLock(companyID)
	return t.store.GetCompany(ctx, companyID)
}

func (t *memoryTx) ActiveUserExists(ctx context.Context, companyID, email string) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, u := range t.store.users {
		if u.CompanyID == companyID && strings.EqualFold(u.Email, email) && u.DeletedAt == nil && u.IsActive {
			return true, nil
		}
	}
	for _, u := range t.newUsers {
		if u.CompanyID == companyID && strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) PendingInvitationExists(ctx context.Context, companyID, email string, now time.Time) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, inv := range t.store.invitations {
		if inv.CompanyID == companyID && strings.EqualFold(inv.Email, email) &&
			inv.Status == domain.InvitationPending && inv.ExpiresAt.After(now) {
			return true, nil
		}
	}
	for _, inv := range t.newInvitations {
		if inv.CompanyID == companyID && strings.EqualFold(inv.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) CountActiveUsers(ctx context.Context, companyID string) (int, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	count := t.store.countActiveUsersLocked(companyID)
	for _, u := range t.newUsers {
		if u.CompanyID == companyID && u.IsActive {
			count++
		}
	}
	return count, nil
}

func (t *memoryTx) CountPendingInvitations(ctx context.Context, companyID string, now time.Time) (int, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	count := t.store.countPendingLocked(companyID, now)
	// Status flips buffered in this transaction are visible to it, the same
	// way an UPDATE is visible to later statements of the same transaction
	for _, ch := range t.statusChanges {
		inv, ok := t.store.invitations[ch.invitationID]
		if ok && inv.CompanyID == companyID && inv.Status == domain.InvitationPending && inv.ExpiresAt.After(now) {
			count--
		}
	}
	for _, inv := range t.newInvitations {
		if inv.CompanyID == companyID && inv.Status == domain.InvitationPending && inv.ExpiresAt.After(now) {
			count++
		}
	}
	return count, nil
}

func (t *memoryTx) CreateInvitation(ctx context.Context, inv *domain.Invitation) error {
	if t.store.FailOnCreateInvitation != nil {
		return t.store.FailOnCreateInvitation
	}
	cp := *inv
	t.newInvitations = append(t.newInvitations, &cp)
	return nil
}

func (t *memoryTx) LockInvitationByToken(ctx context.Context, token string, now time.Time) (*domain.Invitation, error) {
	t.store.mu.Lock()
	var found *domain.Invitation
	for _, inv := range t.store.invitations {
		if inv.Token == token && inv.Status == domain.InvitationPending && inv.ExpiresAt.After(now) {
			cp := *inv
			found = &cp
			break
		}
	}
	t.store.mu.Unlock()

	if found == nil {
		return nil, nil
	}
	// Redemption serializes on the owning company, like the row lock does
	// on the invitation row
	t.acquireCompanyLock(found.CompanyID)
	return found, nil
}

func (t *memoryTx) GetInvitation(ctx context.Context, companyID, invitationID string) (*domain.Invitation, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	inv, ok := t.store.invitations[invitationID]
	if !ok || inv.CompanyID != companyID {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (t *memoryTx) CreateUser(ctx context.Context, user *domain.User) error {
	if t.store.FailOnCreateUser != nil {
		return t.store.FailOnCreateUser
	}
	cp := *user
	t.newUsers = append(t.newUsers, &cp)
	return nil
}

func (t *memoryTx) MarkInvitationAccepted(ctx context.Context, invitationID string, at time.Time) (bool, error) {
	if t.store.FailOnMarkAccepted != nil {
		return false, t.store.FailOnMarkAccepted
	}
	return t.markStatus(invitationID, domain.InvitationAccepted, at)
}

func (t *memoryTx) MarkInvitationCancelled(ctx context.Context, invitationID string, at time.Time) (bool, error) {
	return t.markStatus(invitationID, domain.InvitationCancelled, at)
}

func (t *memoryTx) markStatus(invitationID string, status domain.InvitationStatus, at time.Time) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	inv, ok := t.store.invitations[invitationID]
	if !ok || inv.Status != domain.InvitationPending {
		return false, nil
	}
	t.statusChanges = append(t.statusChanges, statusChange{invitationID: invitationID, status: status, at: at})
	return true, nil
}

func (t *memoryTx) IncrementInvitationRetry(ctx context.Context, invitationID string) error {
	t.retryBumps = append(t.retryBumps, invitationID)
	return nil
}

func (t *memoryTx) RefreshEmployeeCount(ctx context.Context, companyID string) (int, error) {
	if t.store.FailOnRefreshCount != nil {
		return 0, t.store.FailOnRefreshCount
	}
	count, err := t.CountActiveUsers(ctx, companyID)
	if err != nil {
		return 0, err
	}
	if t.countRefresh == nil {
		t.countRefresh = make(map[string]int)
	}
	t.countRefresh[companyID] = count
	return count, nil
}

func (t *memoryTx) RecordAudit(ctx context.Context, entry *audit.Entry) error {
	t.auditEntries = append(t.auditEntries, entry)
	return nil
}

func (t *memoryTx) commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for _, u := range t.newUsers {
		t.store.users[u.ID] = u
	}
	for _, inv := range t.newInvitations {
		t.store.invitations[inv.ID] = inv
	}
	for _, ch := range t.statusChanges {
		inv, ok := t.store.invitations[ch.invitationID]
		if !ok {
			continue
		}
		inv.Status = ch.status
		inv.UpdatedAt = ch.at
		at := ch.at
		switch ch.status {
		case domain.InvitationAccepted:
			inv.AcceptedAt = &at
		case domain.InvitationCancelled:
			inv.CancelledAt = &at
		}
	}
	for _, id := range t.retryBumps {
		if inv, ok := t.store.invitations[id]; ok {
			inv.RetryCount++
		}
	}
	for companyID, count := range t.countRefresh {
		if c, ok := t.store.companies[companyID]; ok {
			c.EmployeeCount = count
		}
	}
	t.store.auditLog = append(t.store.auditLog, t.auditEntries...)
}
