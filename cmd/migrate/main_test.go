package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	queries []string
	err     error
}

func (c *recordingConn) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	c.queries = append(c.queries, sql)
	return pgconn.CommandTag{}, c.err
}

func TestRun(t *testing.T) {
	tests := []struct {
		command     string
		wantQueries int
	}{
		{"up", len(createTables)},
		{"drop", len(dropTables)},
		{"seed", len(seedUsers)},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			conn := &recordingConn{}
			require.NoError(t, run(context.Background(), conn, tt.command, nil))
			assert.Len(t, conn.queries, tt.wantQueries)
		})
	}
}

func TestRun_UsersTableMatchesRepository(t *testing.T) {
	conn := &recordingConn{}
	require.NoError(t, run(context.Background(), conn, "up", nil))

	for _, column := range []string{"external_id", "email", "name", "company", "created_at", "updated_at"} {
		assert.Contains(t, conn.queries[0], column)
	}
}

func TestRun_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "001_add_index.sql")
	require.NoError(t, os.WriteFile(path, []byte("CREATE INDEX idx_users_name ON users(name)"), 0o600))

	conn := &recordingConn{}
	require.NoError(t, run(context.Background(), conn, "file", []string{path}))
	assert.Equal(t, []string{"CREATE INDEX idx_users_name ON users(name)"}, conn.queries)

	assert.Error(t, run(context.Background(), conn, "file", nil))
	assert.Error(t, run(context.Background(), conn, "file", []string{filepath.Join(t.TempDir(), "missing.sql")}))
}

func TestRun_Errors(t *testing.T) {
	assert.Error(t, run(context.Background(), &recordingConn{}, "phone-migration", nil))

	failing := &recordingConn{err: errors.New("relation already exists")}
	err := run(context.Background(), failing, "up", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relation already exists")
	assert.Len(t, failing.queries, 1, "stops at the first failure")
}

func TestGetTableName(t *testing.T) {
	assert.Equal(t, "DROP TABLE x", getTableName("DROP TABLE x"))
	assert.Len(t, getTableName(createTables[0]), 53)
}
