package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	TopicEmergencyMatched     = "emergency.matched"
	TopicAppointmentConfirmed = "appointment.confirmed"
)

type NotificationStatus string

const (
	NotifPending NotificationStatus = "pending"
	NotifSent    NotificationStatus = "sent"
	NotifFailed  NotificationStatus = "failed"
)

type Notification struct {
	ID        int64
	Topic     string
	Recipient string
	Payload   []byte
	Status    NotificationStatus
	Attempts  int
	LastError *string
	CreatedAt time.Time
	SentAt    *time.Time
}

// Execer lets Enqueue run inside whatever transaction the caller holds, so the
// outbox row commits atomically with the domain mutation it describes.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Enqueue inserts a pending outbox row. The payload should carry a "message"
// key; the dispatcher falls back to the topic name when it is missing.
func Enqueue(ctx context.Context, q Execer, topic, recipient string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification payload: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO notifications (topic, recipient, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, 'pending', 0, now())
	`, topic, recipient, data)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}

	return nil
}

// OutboxRepository is the persistence surface the dispatcher needs.
type OutboxRepository interface {
	FetchPending(ctx context.Context, limit int) ([]Notification, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, lastError string, final bool) error
}

type PgOutboxRepository struct {
	pool *pgxpool.Pool
}

func NewPgOutboxRepository(pool *pgxpool.Pool) *PgOutboxRepository {
	return &PgOutboxRepository{pool: pool}
}

func (r *PgOutboxRepository) FetchPending(ctx context.Context, limit int) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, topic, recipient, payload, status, attempts, last_error, created_at, sent_at
		FROM notifications
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(
			&n.ID, &n.Topic, &n.Recipient, &n.Payload, &n.Status,
			&n.Attempts, &n.LastError, &n.CreatedAt, &n.SentAt,
		); err != nil {
			return nil, err
		}
		result = append(result, n)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgOutboxRepository) MarkSent(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET status = 'sent', attempts = attempts + 1, last_error = NULL, sent_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id)
	return err
}

func (r *PgOutboxRepository) MarkFailed(ctx context.Context, id int64, lastError string, final bool) error {
	status := "pending"
	if final {
		status = "failed"
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET status = $2, attempts = attempts + 1, last_error = $3
		WHERE id = $1 AND status = 'pending'
	`, id, status, lastError)
	return err
}

// Dispatcher drains pending outbox rows through the Notifier. Failures bump
// the attempt counter and stay pending until maxAttempts is exhausted.
type Dispatcher struct {
	repo        OutboxRepository
	notifier    Notifier
	maxAttempts int
	batchSize   int
	log         zerolog.Logger
}

func NewDispatcher(repo OutboxRepository, notifier Notifier, maxAttempts int, log zerolog.Logger) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Dispatcher{
		repo:        repo,
		notifier:    notifier,
		maxAttempts: maxAttempts,
		batchSize:   50,
		log:         log,
	}
}

// DrainOnce processes one batch and reports how many notifications were sent.
func (d *Dispatcher) DrainOnce(ctx context.Context) (int, error) {
	pending, err := d.repo.FetchPending(ctx, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch pending notifications: %w", err)
	}

	sent := 0
	for _, n := range pending {
		message := messageFor(n)

		if err := d.notifier.SendSMS(ctx, n.Recipient, message); err != nil {
			final := n.Attempts+1 >= d.maxAttempts
			d.log.Warn().Err(err).
				Int64("notification_id", n.ID).
				Str("topic", n.Topic).
				Bool("final", final).
				Msg("notification dispatch failed")
			if markErr := d.repo.MarkFailed(ctx, n.ID, err.Error(), final); markErr != nil {
				d.log.Error().Err(markErr).Int64("notification_id", n.ID).Msg("failed to record dispatch failure")
			}
			continue
		}

		if err := d.repo.MarkSent(ctx, n.ID); err != nil {
			d.log.Error().Err(err).Int64("notification_id", n.ID).Msg("failed to mark notification sent")
			continue
		}
		sent++
	}

	return sent, nil
}

func messageFor(n Notification) string {
	var payload map[string]any
	if err := json.Unmarshal(n.Payload, &payload); err == nil {
		if msg, ok := payload["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return n.Topic
}
