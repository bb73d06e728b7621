package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ListParams selects a page of an organization's trail, newest first.
type ListParams struct {
	OrgID  uuid.UUID
	Limit  int
	Before *time.Time
}

func (p ListParams) limit() int {
	if p.Limit <= 0 || p.Limit > maxListLimit {
		return defaultListLimit
	}
	return p.Limit
}

// Lister is implemented by Reader and MemoryLog.
type Lister interface {
	ListByOrg(ctx context.Context, params ListParams) ([]Entry, error)
}

type Reader struct {
	pool *pgxpool.Pool
}

func NewReader(pool *pgxpool.Pool) *Reader {
	return &Reader{pool: pool}
}

func (r *Reader) listQuery(params ListParams) squirrel.SelectBuilder {
	query := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("id", "org_id", "actor_user_id", "subject_id", "action", "meta", "created_at").
		From("audit_log").
		Where(squirrel.Eq{"org_id": params.OrgID})
	if params.Before != nil {
		query = query.Where(squirrel.Lt{"created_at": *params.Before})
	}
	return query.OrderBy("created_at DESC", "id DESC").Limit(uint64(params.limit()))
}

func (r *Reader) ListByOrg(ctx context.Context, params ListParams) ([]Entry, error) {
	sql, args, err := r.listQuery(params).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var item Entry
		var actorUserID, subjectID uuid.NullUUID
		var metaRaw []byte

		if err := rows.Scan(&item.ID, &item.OrgID, &actorUserID, &subjectID, &item.Action, &metaRaw, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		item.ActorUserID = fromNullUUID(actorUserID)
		item.SubjectID = fromNullUUID(subjectID)

		item.Meta = decodeMeta(item.ID, metaRaw)

		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}

	return out, nil
}

// decodeMeta parses a stored meta column. A corrupt value is logged and
// served as an empty object so one bad row does not hide the trail.
func decodeMeta(entryID uuid.UUID, raw []byte) map[string]any {
	meta := map[string]any{}
	if len(raw) == 0 {
		return meta
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		log.Error().
			Err(err).
			Str("audit_id", entryID.String()).
			Int("meta_bytes", len(raw)).
			Msg("Failed to decode audit meta")
		return map[string]any{}
	}
	return meta
}

// Prune deletes entries older than cutoff and returns how many were removed.
func (r *Reader) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit log: %w", err)
	}
	return tag.RowsAffected(), nil
}
