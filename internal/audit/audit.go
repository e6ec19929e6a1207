package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Action identifies the audited engine operation
type Action string

const (
	ActionInvite Action = "invite"
	ActionAccept Action = "accept"
	ActionCancel Action = "cancel"
	ActionResend Action = "resend"
)

// Outcome records whether the operation committed or was rejected
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Entry is a single audit record
type Entry struct {
	ID           string                 `json:"id"`
	CompanyID    string                 `json:"company_id"`
	ActorID      string                 `json:"actor_id,omitempty"`
	Action       Action                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	Outcome      Outcome                `json:"outcome"`
	ErrorCode    string                 `json:"error_code,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	TraceID      string                 `json:"trace_id,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// NewEntry builds an entry with identity and timestamp filled in
func NewEntry(companyID, actorID string, action Action, outcome Outcome) *Entry {
	return &Entry{
		ID:        uuid.New().String(),
		CompanyID: companyID,
		ActorID:   actorID,
		Action:    action,
		Outcome:   outcome,
		CreatedAt: time.Now(),
	}
}

const insertQuery = `
	INSERT INTO audit_logs (id, company_id, actor_id, action, resource_type, resource_id,
		outcome, error_code, details, trace_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

// Execer is the minimal write surface shared by pgx pools and transactions
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Insert writes an entry through the given connection. When q is the
// business transaction the entry shares its fate: a rollback also rolls the
// entry back, consistent with the event never having happened.
func Insert(ctx context.Context, q Execer, e *Entry) error {
	var detailsJSON []byte
	if len(e.Details) > 0 {
		var err error
		detailsJSON, err = json.Marshal(e.Details)
		if err != nil {
			return err
		}
	}

	// A failure with no resolvable tenant (unknown redemption token) carries
	// no company
	var companyID, actorID, resourceID, errorCode, traceID interface{}
	if e.CompanyID != "" {
		companyID = e.CompanyID
	}
	if e.ActorID != "" {
		actorID = e.ActorID
	}
	if e.ResourceID != "" {
		resourceID = e.ResourceID
	}
	if e.ErrorCode != "" {
		errorCode = e.ErrorCode
	}
	if e.TraceID != "" {
		traceID = e.TraceID
	}

	_, err := q.Exec(ctx, insertQuery,
		e.ID,
		companyID,
		actorID,
		string(e.Action),
		e.ResourceType,
		resourceID,
		string(e.Outcome),
		errorCode,
		detailsJSON,
		traceID,
		e.CreatedAt,
	)
	return err
}
