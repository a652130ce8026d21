package export

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/baderkha/db-migrate/pkg/migrate/connection"
	"github.com/baderkha/db-migrate/pkg/migrate/table"
	"github.com/baderkha/db-migrate/pkg/migrate/task"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fault : drops the connection after `after` rows of a table scan, `failures` times
type fault struct {
	mu       sync.Mutex
	after    int
	failures int
	scans    int
}

func (f *fault) scanned() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
}

func (f *fault) trip(served int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if served != f.after || f.failures == 0 {
		return false
	}
	f.failures--
	return true
}

type faultyConnector struct {
	dsn string
	f   *fault
}

func (c *faultyConnector) Connect(context.Context) (driver.Conn, error) {
	conn, err := c.Driver().Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return &faultyConn{SQLiteConn: conn.(*sqlite3.SQLiteConn), f: c.f}, nil
}

func (c *faultyConnector) Driver() driver.Driver {
	return &sqlite3.SQLiteDriver{}
}

type faultyConn struct {
	*sqlite3.SQLiteConn
	f *fault
}

func (c *faultyConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	rows, err := c.SQLiteConn.QueryContext(ctx, query, args)
	if err != nil || !strings.HasPrefix(query, "SELECT * FROM") {
		return rows, err
	}
	c.f.scanned()
	return &faultyRows{SQLiteRows: rows.(*sqlite3.SQLiteRows), f: c.f}, nil
}

type faultyRows struct {
	*sqlite3.SQLiteRows
	f      *fault
	served int
}

func (r *faultyRows) Next(dest []driver.Value) error {
	if r.f.trip(r.served) {
		return driver.ErrBadConn
	}
	r.served++
	return r.SQLiteRows.Next(dest)
}

func faultySource(t *testing.T, f *fault, rows int) *connection.Session {
	t.Helper()
	db := sql.OpenDB(&faultyConnector{dsn: filepath.Join(t.TempDir(), "source.db"), f: f})
	t.Cleanup(func() { db.Close() })
	_, err := db.Exec(`CREATE TABLE T (ID INT, NAME VARCHAR(10))`)
	require.NoError(t, err)
	for i := 1; i <= rows; i++ {
		_, err := db.Exec(`INSERT INTO T VALUES (?, ?)`, i, fmt.Sprintf("n%d", i))
		require.NoError(t, err)
	}
	dialect, err := connection.DialectFor("sqlite3", true)
	require.NoError(t, err)
	return &connection.Session{DB: db, Dialect: dialect, Schema: "main", Driver: "sqlite3"}
}

func TestExportResumesAfterDroppedConnection(t *testing.T) {
	f := &fault{after: 2, failures: 1}
	s := faultySource(t, f, 5)
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/out", 0755))
	w := New(fs, s, Options{Dir: "/out", Retries: 3}, zerolog.Nop()).NewTable(&table.Table{Name: "T"}, nil)

	tk := run(t, w)
	assert.True(t, tk.Complete())
	assert.Equal(t, int64(5), tk.Completed())
	assert.Equal(t, int64(5), w.Rows())
	assert.Equal(t, 2, f.scans)

	// a second header would fail to decode as a row
	name, cols, rows := readFile(t, fs, "/out/T.bin")
	assert.Equal(t, "T", name)
	require.Len(t, cols, 2)
	assert.Equal(t, [][]any{
		{int32(1), "n1"},
		{int32(2), "n2"},
		{int32(3), "n3"},
		{int32(4), "n4"},
		{int32(5), "n5"},
	}, rows)
	noTempFiles(t, fs, "/out")
}

func TestExportGivesUpAfterRetries(t *testing.T) {
	f := &fault{after: 1, failures: 10}
	s := faultySource(t, f, 3)
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/out", 0755))
	w := New(fs, s, Options{Dir: "/out", Retries: 2}, zerolog.Nop()).NewTable(&table.Table{Name: "T"}, nil)

	tk := task.New(w)
	require.NoError(t, tk.Initialize(context.Background()))
	err := tk.Execute(context.Background())
	assert.ErrorIs(t, err, driver.ErrBadConn)
	assert.True(t, tk.Failed())
	assert.Equal(t, 3, f.scans)
	assert.Equal(t, int64(1), w.Rows())

	exists, err := afero.Exists(fs, "/out/T.bin")
	require.NoError(t, err)
	assert.False(t, exists)
	noTempFiles(t, fs, "/out")
}
