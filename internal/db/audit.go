package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditStore records compliance-relevant mutations, primarily GDPR redaction
// and data requests. Entries are append-only.
type AuditStore struct {
	pool *pgxpool.Pool
}

func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Append writes one audit entry. oldData and newData may be nil when there is
// no before/after state to capture.
func (s *AuditStore) Append(ctx context.Context, tenantID uuid.UUID, action, entity, entityID string, oldData, newData any) error {
	oldJSON, err := marshalAuditData(oldData)
	if err != nil {
		return fmt.Errorf("failed to marshal old audit data: %w", err)
	}
	newJSON, err := marshalAuditData(newData)
	if err != nil {
		return fmt.Errorf("failed to marshal new audit data: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_logs (tenant_id, action, entity, entity_id, old_data, new_data)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		tenantID, action, entity, entityID, oldJSON, newJSON)
	return err
}

func marshalAuditData(data any) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	return json.Marshal(data)
}
