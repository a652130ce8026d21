package script

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/baderkha/db-migrate/pkg/migrate/config"
	"github.com/baderkha/db-migrate/pkg/migrate/connection"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTarget(t *testing.T) *connection.Session {
	t.Helper()
	ep := config.Endpoint{Driver: "sqlite3", DSN: filepath.Join(t.TempDir(), "target.db"), Quotes: true}
	s, err := connection.Open(context.Background(), ep, connection.Options{MaxConns: 1}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSplit(t *testing.T) {
	stmts := Split("CREATE TABLE a (x INT);\n\n INSERT INTO a VALUES (1) ;;\n")
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x INT)", stmts[0])
	assert.Equal(t, "INSERT INTO a VALUES (1) ", strings.TrimLeft(stmts[1], "\n "))
}

func TestRunScripts(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/run/before.sql", []byte("CREATE TABLE a (x INT);\nINSERT INTO a VALUES (1);"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/run/after.sql", []byte("INSERT INTO a VALUES (2);"), 0o644))
	s := openTarget(t)

	r := New(fs, "/run", s.DB, zerolog.Nop())
	require.NoError(t, r.Run(context.Background(), []string{"before.sql", "/run/after.sql"}, false))

	var n int
	require.NoError(t, s.DB.QueryRow("SELECT SUM(x) FROM a").Scan(&n))
	assert.Equal(t, 3, n)
}

func TestRunStopsOnError(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/run/bad.sql", []byte("CREATE TABLE a (x INT); INSERT INTO missing VALUES (1); INSERT INTO a VALUES (1)"), 0o644))
	s := openTarget(t)

	err := New(fs, "/run", s.DB, zerolog.Nop()).Run(context.Background(), []string{"bad.sql"}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.sql")
	var n int
	require.NoError(t, s.DB.QueryRow("SELECT COUNT(*) FROM a").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestRunContinuesOnError(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/run/bad.sql", []byte("CREATE TABLE a (x INT); INSERT INTO missing VALUES (1); INSERT INTO a VALUES (1)"), 0o644))
	s := openTarget(t)

	require.NoError(t, New(fs, "/run", s.DB, zerolog.Nop()).Run(context.Background(), []string{"bad.sql"}, true))
	var n int
	require.NoError(t, s.DB.QueryRow("SELECT COUNT(*) FROM a").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestRunMissingFile(t *testing.T) {
	s := openTarget(t)
	err := New(afero.NewMemMapFs(), "/run", s.DB, zerolog.Nop()).Run(context.Background(), []string{"none.sql"}, true)
	assert.Error(t, err)
}

func TestParseSequences(t *testing.T) {
	seqs, err := ParseSequences(strings.NewReader("# table,column,sequence\nA,ID,S1\nB,ID,S1\nC,ID,S2\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, seqs.Len())
	assert.Equal(t, []string{"S1", "S2"}, seqs.order)
	assert.Len(t, seqs.columns["S1"], 2)

	_, err = ParseSequences(strings.NewReader("A,ID\n"))
	assert.ErrorIs(t, err, ErrSequenceFile)
}

func TestResetSequences(t *testing.T) {
	s := openTarget(t)
	for _, q := range []string{
		"CREATE TABLE t (id INTEGER PRIMARY KEY AUTOINCREMENT, v TEXT)",
		"CREATE TABLE u (id INTEGER, v TEXT)",
		"INSERT INTO t (id, v) VALUES (10, 'x')",
		"DELETE FROM t",
		"INSERT INTO u VALUES (3, 'y')",
		"INSERT INTO u VALUES (2, 'z')",
	} {
		_, err := s.DB.Exec(q)
		require.NoError(t, err)
	}

	seqs, err := ParseSequences(strings.NewReader("u,id,t\nt,id,t\n"))
	require.NoError(t, err)
	next, err := seqs.Reset(context.Background(), s.DB, s.Dialect, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(4).Equal(next["t"]))

	var seq int
	require.NoError(t, s.DB.QueryRow("SELECT seq FROM sqlite_sequence WHERE name = 't'").Scan(&seq))
	assert.Equal(t, 3, seq)

	_, err = s.DB.Exec("INSERT INTO t (v) VALUES ('next')")
	require.NoError(t, err)
	var id int
	require.NoError(t, s.DB.QueryRow("SELECT id FROM t WHERE v = 'next'").Scan(&id))
	assert.Equal(t, 4, id)
}
