package orgs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/arenahq/orgcore/internal/access"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the Postgres Store.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

func (s *PgStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PgStore) UpsertUser(ctx context.Context, user User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, display_name, avatar_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username,
		    display_name = EXCLUDED.display_name,
		    avatar_url = EXCLUDED.avatar_url,
		    updated_at = NOW()
		WHERE (users.username, users.display_name, users.avatar_url)
		   IS DISTINCT FROM (EXCLUDED.username, EXCLUDED.display_name, EXCLUDED.avatar_url)
	`, user.ID, user.Username, user.DisplayName, user.AvatarURL)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetOrganization(ctx context.Context, orgID uuid.UUID) (*Organization, error) {
	var org Organization
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, owner_id, verified, hiring, default_join_role, about, version, created_at, updated_at
		FROM organizations
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE
	`, orgID).Scan(
		&org.ID,
		&org.Name,
		&org.OwnerID,
		&org.Verified,
		&org.Hiring,
		&org.DefaultJoinRole,
		&org.About,
		&org.Version,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}

	rows, err := t.tx.Query(ctx, `
		SELECT user_id, role, joined_at
		FROM org_members
		WHERE org_id = $1
		ORDER BY joined_at ASC, user_id ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}
	defer rows.Close()

	org.Members = []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		org.Members = append(org.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}

	return &org, nil
}

func (t *pgTx) ListOrganizationIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id
		FROM organizations
		WHERE deleted_at IS NULL
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	return ids, nil
}

func (t *pgTx) InsertOrganization(ctx context.Context, org *Organization) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO organizations (
		  id, name, owner_id, verified, hiring, default_join_role, about, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, org.ID, org.Name, org.OwnerID, org.Verified, org.Hiring, org.DefaultJoinRole, org.About, org.Version, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert organization: %w", err)
	}
	for _, m := range org.Members {
		if err := t.InsertMember(ctx, org.ID, m); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) UpdateOrganization(ctx context.Context, org *Organization, expectedVersion int64) error {
	sql, args, err := psql.Update("organizations").
		Set("name", org.Name).
		Set("owner_id", org.OwnerID).
		Set("verified", org.Verified).
		Set("hiring", org.Hiring).
		Set("default_join_role", org.DefaultJoinRole).
		Set("about", org.About).
		Set("version", org.Version).
		Set("updated_at", org.UpdatedAt).
		Where(squirrel.Eq{"id": org.ID, "version": expectedVersion}).
		Where("deleted_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build update organization query failed: %w", err)
	}

	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (t *pgTx) DeleteOrganization(ctx context.Context, orgID uuid.UUID, at time.Time) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM org_members WHERE org_id = $1`, orgID); err != nil {
		return fmt.Errorf("failed to release members: %w", err)
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE organizations
		SET deleted_at = $2, updated_at = $2, version = version + 1
		WHERE id = $1 AND deleted_at IS NULL
	`, orgID, at)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (t *pgTx) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	if err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to look up user: %w", err)
	}
	return exists, nil
}

func (t *pgTx) MembershipOf(ctx context.Context, userID uuid.UUID) (*Membership, error) {
	var m Membership
	err := t.tx.QueryRow(ctx, `
		SELECT org_id, user_id, role, joined_at
		FROM org_members
		WHERE user_id = $1
	`, userID).Scan(&m.OrgID, &m.UserID, &m.Role, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	return &m, nil
}

func (t *pgTx) InsertMember(ctx context.Context, orgID uuid.UUID, m Member) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO org_members (org_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
	`, orgID, m.UserID, m.Role, m.JoinedAt)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return ErrAlreadyMember
		}
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateMemberRole(ctx context.Context, orgID, userID uuid.UUID, role access.Role) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE org_members
		SET role = $3
		WHERE org_id = $1 AND user_id = $2
	`, orgID, userID, role)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (t *pgTx) DeleteMember(ctx context.Context, orgID, userID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM org_members
		WHERE org_id = $1 AND user_id = $2
	`, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

const invitationColumns = "id, org_id, user_id, role, inviter_id, message, status, created_at, resolved_at"

func scanInvitation(row pgx.Row) (*Invitation, error) {
	var inv Invitation
	err := row.Scan(
		&inv.ID,
		&inv.OrgID,
		&inv.UserID,
		&inv.Role,
		&inv.InviterID,
		&inv.Message,
		&inv.Status,
		&inv.CreatedAt,
		&inv.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (t *pgTx) GetInvitation(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	inv, err := scanInvitation(t.tx.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM org_invitations WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to load invitation: %w", err)
	}
	return inv, nil
}

func (t *pgTx) HasPendingInvitation(ctx context.Context, orgID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
		  SELECT 1 FROM org_invitations
		  WHERE org_id = $1 AND user_id = $2 AND status = $3
		)
	`, orgID, userID, InvitationPending).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check pending invitations: %w", err)
	}
	return exists, nil
}

func (t *pgTx) InsertInvitation(ctx context.Context, inv *Invitation) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO org_invitations (id, org_id, user_id, role, inviter_id, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, inv.ID, inv.OrgID, inv.UserID, inv.Role, inv.InviterID, inv.Message, inv.Status, inv.CreatedAt)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return ErrPendingExists
		}
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

func (t *pgTx) ResolveInvitation(ctx context.Context, id uuid.UUID, status InvitationStatus, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE org_invitations
		SET status = $2, resolved_at = $3
		WHERE id = $1 AND status = $4
	`, id, status, at, InvitationPending)
	if err != nil {
		return fmt.Errorf("failed to resolve invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (t *pgTx) ListInvitations(ctx context.Context, orgID uuid.UUID, status InvitationStatus) ([]Invitation, error) {
	sql, args, err := psql.Select(invitationColumns).
		From("org_invitations").
		Where(squirrel.Eq{"org_id": orgID, "status": status}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list invitations query failed: %w", err)
	}

	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	out := []Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

const joinRequestColumns = "id, org_id, user_id, message, status, created_at, resolved_at, resolved_by"

func scanJoinRequest(row pgx.Row) (*JoinRequest, error) {
	var req JoinRequest
	var resolvedBy uuid.NullUUID
	err := row.Scan(
		&req.ID,
		&req.OrgID,
		&req.UserID,
		&req.Message,
		&req.Status,
		&req.CreatedAt,
		&req.ResolvedAt,
		&resolvedBy,
	)
	if err != nil {
		return nil, err
	}
	if resolvedBy.Valid {
		req.ResolvedBy = &resolvedBy.UUID
	}
	return &req, nil
}

func (t *pgTx) GetJoinRequest(ctx context.Context, id uuid.UUID) (*JoinRequest, error) {
	req, err := scanJoinRequest(t.tx.QueryRow(ctx,
		`SELECT `+joinRequestColumns+` FROM org_join_requests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to load join request: %w", err)
	}
	return req, nil
}

func (t *pgTx) HasPendingJoinRequest(ctx context.Context, orgID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
		  SELECT 1 FROM org_join_requests
		  WHERE org_id = $1 AND user_id = $2 AND status = $3
		)
	`, orgID, userID, JoinRequestPending).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check pending join requests: %w", err)
	}
	return exists, nil
}

func (t *pgTx) InsertJoinRequest(ctx context.Context, req *JoinRequest) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO org_join_requests (id, org_id, user_id, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, req.ID, req.OrgID, req.UserID, req.Message, req.Status, req.CreatedAt)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return ErrPendingExists
		}
		return fmt.Errorf("failed to create join request: %w", err)
	}
	return nil
}

func (t *pgTx) ResolveJoinRequest(ctx context.Context, id uuid.UUID, status JoinRequestStatus, by uuid.UUID, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE org_join_requests
		SET status = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $1 AND status = $5
	`, id, status, by, at, JoinRequestPending)
	if err != nil {
		return fmt.Errorf("failed to resolve join request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (t *pgTx) ListJoinRequests(ctx context.Context, orgID uuid.UUID, status JoinRequestStatus) ([]JoinRequest, error) {
	sql, args, err := psql.Select(joinRequestColumns).
		From("org_join_requests").
		Where(squirrel.Eq{"org_id": orgID, "status": status}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list join requests query failed: %w", err)
	}

	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list join requests: %w", err)
	}
	defer rows.Close()

	out := []JoinRequest{}
	for rows.Next() {
		req, err := scanJoinRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan join request: %w", err)
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

var (
	_ Store         = (*PgStore)(nil)
	_ UserDirectory = (*PgStore)(nil)
)
