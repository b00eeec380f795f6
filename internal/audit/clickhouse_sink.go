package audit

import (
	"context"
	"fmt"

	"phone-auth-service/internal/models"
)

// Execer is satisfied by *client.ClickHouseClient.
type Execer interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
}

const createAuthEventsTable = `CREATE TABLE IF NOT EXISTS auth_events (
	event_id     String,
	event_type   LowCardinality(String),
	account_id   String,
	phone_number String,
	reason       String,
	client_id    String,
	remote_ip    String,
	occurred_at  DateTime64(3, 'UTC'),
	event_bucket UInt16,
	date_bucket  Date
) ENGINE = MergeTree
PARTITION BY date_bucket
ORDER BY (event_type, event_bucket, occurred_at)`

const insertAuthEvent = `INSERT INTO auth_events
	(event_id, event_type, account_id, phone_number, reason, client_id, remote_ip, occurred_at, event_bucket, date_bucket)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type ClickHouseSink struct {
	conn Execer
}

func NewClickHouseSink(conn Execer) *ClickHouseSink {
	return &ClickHouseSink{conn: conn}
}

func (s *ClickHouseSink) EnsureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, createAuthEventsTable); err != nil {
		return fmt.Errorf("failed to create auth_events table: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) Publish(ctx context.Context, event models.AuthEvent) error {
	err := s.conn.Exec(ctx, insertAuthEvent,
		event.ID, string(event.Type), event.AccountID, event.PhoneNumber, event.Reason,
		event.ClientID, event.RemoteIP, event.OccurredAt, uint16(event.EventBucket), event.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert auth event: %w", err)
	}
	return nil
}
