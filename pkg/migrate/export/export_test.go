package export

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/baderkha/db-migrate/pkg/migrate/codec"
	"github.com/baderkha/db-migrate/pkg/migrate/config"
	"github.com/baderkha/db-migrate/pkg/migrate/connection"
	"github.com/baderkha/db-migrate/pkg/migrate/table"
	"github.com/baderkha/db-migrate/pkg/migrate/task"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSource(t *testing.T, ddl ...string) *connection.Session {
	t.Helper()
	ep := config.Endpoint{Driver: "sqlite3", DSN: filepath.Join(t.TempDir(), "source.db"), Quotes: true}
	s, err := connection.Open(context.Background(), ep, connection.Options{MaxConns: 2}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	for _, q := range ddl {
		_, err := s.DB.Exec(q)
		require.NoError(t, err)
	}
	return s
}

func run(t *testing.T, w *Table) *task.Task {
	t.Helper()
	tk := task.New(w)
	require.NoError(t, tk.Initialize(context.Background()))
	require.NoError(t, tk.Execute(context.Background()))
	return tk
}

func readFile(t *testing.T, fs afero.Fs, path string) (string, []table.Column, [][]any) {
	t.Helper()
	b, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	r, err := codec.NewReader(bytes.NewReader(b))
	require.NoError(t, err)
	name, cols, err := r.ReadHeader()
	require.NoError(t, err)
	var rows [][]any
	for {
		ok, err := r.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		row, err := r.ReadRow()
		require.NoError(t, err)
		rows = append(rows, row)
	}
	return name, cols, rows
}

func noTempFiles(t *testing.T, fs afero.Fs, dir string) {
	t.Helper()
	matches, err := afero.Glob(fs, filepath.Join(dir, "tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestExportTable(t *testing.T) {
	s := openSource(t,
		`CREATE TABLE User (ID INT, NAME VARCHAR(50))`,
		`INSERT INTO User VALUES (1, 'user1')`,
	)
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/out", 0755))
	exp := New(fs, s, Options{Dir: "/out"}, zerolog.Nop())

	w := exp.NewTable(&table.Table{Name: "User"}, nil)
	tk := run(t, w)
	assert.True(t, tk.Complete())
	assert.Equal(t, int64(1), w.Rows())
	assert.False(t, w.Skipped())

	name, cols, rows := readFile(t, fs, "/out/User.bin")
	assert.Equal(t, "User", name)
	require.Len(t, cols, 2)
	assert.Equal(t, table.KindInteger, cols[0].Kind)
	assert.Equal(t, "ID", cols[0].Name)
	assert.Equal(t, table.KindVarchar, cols[1].Kind)
	assert.Equal(t, [][]any{{int32(1), "user1"}}, rows)
	noTempFiles(t, fs, "/out")
}

func TestExportKeepsExistingFile(t *testing.T) {
	s := openSource(t, `CREATE TABLE T (ID INT)`, `INSERT INTO T VALUES (1)`)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/out/T.bin", []byte("old"), 0644))

	w := New(fs, s, Options{Dir: "/out"}, zerolog.Nop()).NewTable(&table.Table{Name: "T"}, nil)
	tk := run(t, w)
	assert.True(t, tk.Complete())
	assert.Equal(t, int64(0), tk.Size())
	assert.True(t, w.Skipped())

	b, err := afero.ReadFile(fs, "/out/T.bin")
	require.NoError(t, err)
	assert.Equal(t, "old", string(b))
}

func TestExportOverwrite(t *testing.T) {
	s := openSource(t, `CREATE TABLE T (ID INT)`, `INSERT INTO T VALUES (7)`)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/out/T.bin", []byte("old"), 0644))

	w := New(fs, s, Options{Dir: "/out", Overwrite: true}, zerolog.Nop()).NewTable(&table.Table{Name: "T"}, nil)
	run(t, w)
	_, _, rows := readFile(t, fs, "/out/T.bin")
	assert.Equal(t, [][]any{{int32(7)}}, rows)
}

func TestExportColumnSubsetAndNulls(t *testing.T) {
	s := openSource(t,
		`CREATE TABLE T (ID INT, SECRET VARCHAR(10), NOTE VARCHAR(10))`,
		`INSERT INTO T VALUES (1, 'x', NULL)`,
		`INSERT INTO T VALUES (NULL, 'y', 'n')`,
	)
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/out", 0755))
	w := New(fs, s, Options{Dir: "/out"}, zerolog.Nop()).NewTable(&table.Table{Name: "T"}, []string{"ID", "NOTE"})
	run(t, w)

	_, cols, rows := readFile(t, fs, "/out/T.bin")
	require.Len(t, cols, 2)
	assert.Equal(t, "NOTE", cols[1].Name)
	assert.ElementsMatch(t, [][]any{{int32(1), nil}, {nil, "n"}}, rows)
}

func TestExportLargeObjects(t *testing.T) {
	s := openSource(t,
		`CREATE TABLE Docs (ID INT, BODY BLOB)`,
		`INSERT INTO Docs VALUES (1, X'00010203040506070809')`,
		`INSERT INTO Docs VALUES (2, X'FF')`,
	)
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/out", 0755))
	w := New(fs, s, Options{Dir: "/out", LOBThreshold: 4}, zerolog.Nop()).NewTable(&table.Table{Name: "Docs"}, nil)
	run(t, w)

	_, cols, rows := readFile(t, fs, "/out/Docs.bin")
	assert.Equal(t, table.KindBlob, cols[1].Kind)
	assert.ElementsMatch(t, [][]any{
		{int32(1), []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
		{int32(2), []byte{0xff}},
	}, rows)
	noTempFiles(t, fs, "/out")
}

func TestLargeObjectsBorrowDriverBuffer(t *testing.T) {
	col := table.Column{Kind: table.KindBlob, Name: "BODY"}
	s := newRowScanner(4, "Docs", []table.Column{col})

	large := sql.RawBytes("0123456789")
	v, err := s.value(col, &large)
	require.NoError(t, err)
	lob, ok := v.(codec.LOB)
	require.True(t, ok)
	assert.Equal(t, int64(10), lob.Size())
	assert.Same(t, &large[0], &v.(borrowedLOB)[0])
	rc, err := lob.Open()
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(b))

	small := sql.RawBytes("abc")
	v, err = s.value(col, &small)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), v)
	small[0] = 'x'
	assert.Equal(t, []byte("abc"), v)
}

func TestExportFailureRemovesTempFile(t *testing.T) {
	s := openSource(t)
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/out", 0755))
	w := New(fs, s, Options{Dir: "/out"}, zerolog.Nop()).NewTable(&table.Table{Name: "Missing"}, nil)

	tk := task.New(w)
	require.NoError(t, tk.SetSize(1))
	assert.Error(t, tk.Execute(context.Background()))
	assert.True(t, tk.Failed())
	noTempFiles(t, fs, "/out")
	exists, _ := afero.Exists(fs, "/out/Missing.bin")
	assert.False(t, exists)
}

func TestExportToleratesRowCountDrift(t *testing.T) {
	s := openSource(t, `CREATE TABLE T (ID INT)`, `INSERT INTO T VALUES (1)`, `INSERT INTO T VALUES (2)`)
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/out", 0755))
	exp := New(fs, s, Options{Dir: "/out"}, zerolog.Nop())

	grown := task.New(exp.NewTable(&table.Table{Name: "T"}, nil))
	require.NoError(t, grown.SetSize(1))
	require.NoError(t, grown.Execute(context.Background()))
	assert.True(t, grown.Complete())
	_, _, rows := readFile(t, fs, "/out/T.bin")
	assert.Len(t, rows, 2)

	shrunk := task.New(New(fs, s, Options{Dir: "/out", Overwrite: true}, zerolog.Nop()).NewTable(&table.Table{Name: "T"}, nil))
	require.NoError(t, shrunk.SetSize(5))
	require.NoError(t, shrunk.Execute(context.Background()))
	assert.True(t, shrunk.Complete())
	assert.Equal(t, int64(5), shrunk.Completed())
}

// unreadableFs : stat of path fails with a permission error
type unreadableFs struct {
	afero.Fs
	path string
}

func (f unreadableFs) Stat(name string) (os.FileInfo, error) {
	if name == f.path {
		return nil, os.ErrPermission
	}
	return f.Fs.Stat(name)
}

func TestExportReportsUnreadableTarget(t *testing.T) {
	s := openSource(t, `CREATE TABLE T (ID INT)`, `INSERT INTO T VALUES (1)`)
	mem := afero.NewMemMapFs()
	require.NoError(t, mem.MkdirAll("/out", 0755))
	fs := unreadableFs{Fs: mem, path: "/out/T.bin"}
	exp := New(fs, s, Options{Dir: "/out"}, zerolog.Nop())

	err := task.New(exp.NewTable(&table.Table{Name: "T"}, nil)).Initialize(context.Background())
	assert.ErrorIs(t, err, os.ErrPermission)

	w := exp.NewTable(&table.Table{Name: "T"}, nil)
	tk := task.New(w)
	require.NoError(t, tk.SetSize(1))
	assert.ErrorIs(t, tk.Execute(context.Background()), os.ErrPermission)
	assert.False(t, w.Skipped())
	noTempFiles(t, mem, "/out")
}
