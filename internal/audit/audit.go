// Package audit persists membership events and serves them back per
// organization.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/arenahq/orgcore/internal/orgs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Entry is one audit_log row.
type Entry struct {
	ID          uuid.UUID      `json:"id"`
	OrgID       uuid.UUID      `json:"org_id"`
	ActorUserID *uuid.UUID     `json:"actor_user_id,omitempty"`
	SubjectID   *uuid.UUID     `json:"subject_id,omitempty"`
	Action      string         `json:"action"`
	Meta        map[string]any `json:"meta"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Writer records events in audit_log. It implements orgs.Notifier.
type Writer struct {
	pool *pgxpool.Pool
}

func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

func (w *Writer) Notify(ctx context.Context, event orgs.Event) error {
	metaJSON, err := marshalMeta(event.Meta)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal audit meta")
		return err
	}

	_, err = w.pool.Exec(ctx, `
		INSERT INTO audit_log (org_id, actor_user_id, subject_id, action, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, event.OrgID, toNullUUID(event.ActorID), toNullUUID(event.SubjectID), string(event.Type), metaJSON, event.OccurredAt)
	if err != nil {
		log.Error().Err(err).Str("action", string(event.Type)).Msg("Failed to write audit log")
		return err
	}

	logged(event)
	return nil
}

func marshalMeta(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(meta)
}

func logged(event orgs.Event) {
	log.Info().
		Str("action", string(event.Type)).
		Str("org_id", event.OrgID.String()).
		Str("actor_user_id", event.ActorID.String()).
		Str("subject_id", event.SubjectID.String()).
		Msg("Audit event logged")
}

func toNullUUID(id uuid.UUID) uuid.NullUUID {
	if id == uuid.Nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: id, Valid: true}
}

func fromNullUUID(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	v := id.UUID
	return &v
}
