package directory

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgBackend searches the users table.
type PgBackend struct {
	pool *pgxpool.Pool
}

func NewPgBackend(pool *pgxpool.Pool) *PgBackend {
	return &PgBackend{pool: pool}
}

func escapeLike(term string) string {
	out := make([]rune, 0, len(term))
	for _, r := range term {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

func (b *PgBackend) searchQuery(filter Filter) squirrel.SelectBuilder {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	prefix := escapeLike(filter.Term) + "%"

	query := psql.Select(
		"u.id", "u.username", "u.display_name", "u.avatar_url",
		"(m.org_id IS NOT NULL) AS has_org",
	).
		From("users u").
		LeftJoin("org_members m ON m.user_id = u.id").
		Where(squirrel.Or{
			squirrel.Expr("lower(u.username) LIKE ?", prefix),
			squirrel.Expr("lower(u.display_name) LIKE ?", prefix),
		})

	if filter.HasOrg != nil {
		if *filter.HasOrg {
			query = query.Where("m.org_id IS NOT NULL")
		} else {
			query = query.Where("m.org_id IS NULL")
		}
	}

	return query.
		OrderBy("u.username ASC", "u.id ASC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset))
}

func (b *PgBackend) SearchCandidates(ctx context.Context, filter Filter) ([]Candidate, error) {
	sql, args, err := b.searchQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidate search query failed: %w", err)
	}

	rows, err := b.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("candidate search failed: %w", err)
	}
	defer rows.Close()

	candidates := make([]Candidate, 0, filter.Limit)
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.UserID, &c.Username, &c.DisplayName, &c.AvatarURL, &c.HasOrg); err != nil {
			return nil, fmt.Errorf("scan candidate failed: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("candidate search failed: %w", err)
	}
	return candidates, nil
}
