package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/Onyemech/teemplot-sub006/pkg/logger"
)

// TopicInvitationEmail carries invitation email requests to the notification
// workers
const TopicInvitationEmail = "seats.invitation-email"

// InvitationEmail is the event payload asking the email workers to deliver
// an invitation
type InvitationEmail struct {
	EventType    string    `json:"event_type"`
	InvitationID string    `json:"invitation_id"`
	CompanyID    string    `json:"company_id"`
	CompanyName  string    `json:"company_name"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	InviterName  string    `json:"inviter_name,omitempty"`
	Role         string    `json:"role"`
	AcceptURL    string    `json:"accept_url"`
	ExpiresAt    time.Time `json:"expires_at"`
	Timestamp    time.Time `json:"timestamp"`
}

// Key returns the Kafka message key for partitioning. Keyed by company so a
// tenant's emails stay ordered.
func (e *InvitationEmail) Key() string {
	return e.CompanyID
}

// Mailer queues invitation emails for delivery
type Mailer interface {
	SendInvitationEmail(ctx context.Context, email *InvitationEmail) error
	Close()
}

// KafkaMailerConfig holds producer configuration
type KafkaMailerConfig struct {
	Brokers  []string
	ClientID string
	Topic    string
	// Attempts is how many times to retry a failed produce (default: 3)
	Attempts uint
}

// KafkaMailer publishes invitation email events to Kafka. Delivery itself is
// the notification service's job; the engine only guarantees the event is
// queued.
type KafkaMailer struct {
	client   *kgo.Client
	topic    string
	attempts uint
}

// NewKafkaMailer connects a producer to the configured brokers
func NewKafkaMailer(config *KafkaMailerConfig) (*KafkaMailer, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	topic := config.Topic
	if topic == "" {
		topic = TopicInvitationEmail
	}
	attempts := config.Attempts
	if attempts == 0 {
		attempts = 3
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(config.Brokers...),
		kgo.ClientID(config.ClientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &KafkaMailer{client: client, topic: topic, attempts: attempts}, nil
}

// SendInvitationEmail produces the event, retrying transient broker errors
// with backoff
func (m *KafkaMailer) SendInvitationEmail(ctx context.Context, email *InvitationEmail) error {
	if email.EventType == "" {
		email.EventType = "invitation.email"
	}
	if email.Timestamp.IsZero() {
		email.Timestamp = time.Now()
	}

	payload, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("failed to marshal invitation email: %w", err)
	}

	record := &kgo.Record{
		Topic: m.topic,
		Key:   []byte(email.Key()),
		Value: payload,
	}

	err = retry.Do(
		func() error {
			return m.client.ProduceSync(ctx, record).FirstErr()
		},
		retry.Attempts(m.attempts),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.WarnCtx(ctx, "retrying invitation email produce",
				zap.Uint("attempt", n+1),
				zap.String("invitation_id", email.InvitationID),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to queue invitation email: %w", err)
	}
	return nil
}

// Close flushes and releases the producer
func (m *KafkaMailer) Close() {
	m.client.Close()
}

// NopMailer discards emails. Used when Kafka is not configured.
type NopMailer struct{}

func (NopMailer) SendInvitationEmail(ctx context.Context, email *InvitationEmail) error { return nil }
func (NopMailer) Close()                                                                {}

// RecorderMailer collects emails in memory for tests
type RecorderMailer struct {
	mu       sync.Mutex
	sent     []*InvitationEmail
	FailWith error
}

func (m *RecorderMailer) SendInvitationEmail(ctx context.Context, email *InvitationEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.sent = append(m.sent, email)
	return nil
}

func (m *RecorderMailer) Close() {}

// Sent returns the collected emails
func (m *RecorderMailer) Sent() []*InvitationEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*InvitationEmail, len(m.sent))
	copy(out, m.sent)
	return out
}
