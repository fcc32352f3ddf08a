package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

const auditTableDDL = `
CREATE TABLE IF NOT EXISTS audit_entries (
    id          String,
    timestamp   DateTime64(3),
    trace_id    String,
    request_id  String,
    event_type  LowCardinality(String),
    severity    LowCardinality(String),
    actor       String,
    action      String,
    target      String,
    details     String,
    before      String,
    after       String
) ENGINE = MergeTree()
ORDER BY (timestamp, trace_id)
TTL toDateTime(timestamp) + INTERVAL 30 DAY
`

// ClickHouseSink persists audit batches to ClickHouse with exponential
// backoff on transient insert failures.
type ClickHouseSink struct {
	conn       driver.Conn
	maxRetries uint64
}

// NewClickHouseSink connects using the DSN and ensures the audit table
// exists.
func NewClickHouseSink(ctx context.Context, dsn string) (*ClickHouseSink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	if err := conn.Exec(ctx, auditTableDDL); err != nil {
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	log.Info().Msg("ClickHouse audit sink ready")
	return &ClickHouseSink{conn: conn, maxRetries: 3}, nil
}

func (s *ClickHouseSink) Kind() string { return "clickhouse" }

// Persist inserts the batch, retrying transient failures with
// exponential backoff.
func (s *ClickHouseSink) Persist(ctx context.Context, entries []models.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	insert := func() error {
		batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO audit_entries")
		if err != nil {
			return fmt.Errorf("prepare batch: %w", err)
		}
		for _, e := range entries {
			if err := batch.Append(
				e.ID,
				e.Timestamp,
				e.TraceID,
				e.RequestID,
				string(e.EventType),
				string(e.Severity),
				e.Actor,
				e.Action,
				e.Target,
				models.CanonicalJSON(e.Details),
				models.CanonicalJSON(e.Before),
				models.CanonicalJSON(e.After),
			); err != nil {
				return fmt.Errorf("append entry %s: %w", e.ID, err)
			}
		}
		return batch.Send()
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(100*time.Millisecond),
			backoff.WithMaxElapsedTime(10*time.Second),
		), s.maxRetries),
		ctx,
	)
	if err := backoff.Retry(insert, policy); err != nil {
		return fmt.Errorf("insert %d audit entries: %w", len(entries), err)
	}
	return nil
}

func (s *ClickHouseSink) HealthCheck(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close releases the connection.
func (s *ClickHouseSink) Close() error { return s.conn.Close() }
