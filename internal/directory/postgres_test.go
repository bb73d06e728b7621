package directory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPgBackend_SearchQuery(t *testing.T) {
	b := &PgBackend{}
	unaffiliated := false

	sql, args, err := b.searchQuery(Filter{Term: "ace_", HasOrg: &unaffiliated, Offset: 20, Limit: 21}).ToSql()
	require.NoError(t, err)
	require.Contains(t, sql, "LEFT JOIN org_members m ON m.user_id = u.id")
	require.Contains(t, sql, "lower(u.username) LIKE $1")
	require.Contains(t, sql, "lower(u.display_name) LIKE $2")
	require.Contains(t, sql, "m.org_id IS NULL")
	require.Contains(t, sql, "ORDER BY u.username ASC, u.id ASC")
	require.Contains(t, sql, "LIMIT 21 OFFSET 20")
	require.Equal(t, []interface{}{`ace\_%`, `ace\_%`}, args)
}

func TestPgBackend_SearchQueryWithoutAffiliationFilter(t *testing.T) {
	b := &PgBackend{}

	sql, _, err := b.searchQuery(Filter{Term: "ace", Limit: 5}).ToSql()
	require.NoError(t, err)
	require.NotContains(t, sql, "AND m.org_id")
}
