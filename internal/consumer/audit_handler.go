package consumer

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditTrailHandler writes consumed audit events into the durable audit_trail
// table, the query surface for compliance reads.
type AuditTrailHandler struct {
	pool *pgxpool.Pool
}

// NewAuditTrailHandler constructs a handler backed by the provided pool.
func NewAuditTrailHandler(pool *pgxpool.Pool) *AuditTrailHandler {
	return &AuditTrailHandler{pool: pool}
}

// Handle stores the event payload in the audit_trail table. The dedupe
// constraint on (topic, partition, record_offset) makes redelivery a no-op.
func (h *AuditTrailHandler) Handle(ctx context.Context, msg Message) error {
	conn, err := h.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx,
		`INSERT INTO audit_trail (event_type, workspace_id, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
         ON CONFLICT (topic, partition, record_offset) DO NOTHING`,
		msg.EventType,
		msg.WorkspaceID,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		msg.Timestamp,
	)
	return err
}
