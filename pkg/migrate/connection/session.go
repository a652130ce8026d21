// package connection
//
// opens source and target databases and hides the differences between their sql dialects
package connection

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/baderkha/db-migrate/pkg/migrate/config"
	"github.com/rs/zerolog"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/microsoft/go-mssqldb"
	_ "github.com/sijms/go-ora/v2"
	_ "github.com/snowflakedb/gosnowflake"
)

// Options : pool sizing for one endpoint
type Options struct {
	// MaxConns : one connection per worker plus one for catalog queries
	MaxConns  int
	FetchSize int
}

// Session : live database of one endpoint together with its dialect
type Session struct {
	DB      *sql.DB
	Dialect *Dialect
	Schema  string
	Driver  string
	log     zerolog.Logger
}

// Open : dials the endpoint and checks it answers
func Open(ctx context.Context, ep config.Endpoint, opts Options, log zerolog.Logger) (*Session, error) {
	dialect, err := DialectFor(ep.Driver, ep.Quotes)
	if err != nil {
		return nil, err
	}
	dsn, schema, err := normalizeDSN(ep.Driver, ep.DSN, opts.FetchSize)
	if err != nil {
		return nil, err
	}
	if ep.Schema != "" {
		schema = ep.Schema
	}
	if schema == "" {
		schema = dialect.defaultSchema
	}
	log = log.With().Str("driver", ep.Driver).Str("schema", schema).Logger()

	log.Debug().Msg("opening connection")
	db, err := sql.Open(ep.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s : could not dial connection due to : %w", ep.Driver, err)
	}
	if ep.QueryLog {
		db = AddLogger(db, dsn, ep.Driver, log)
	}
	maxConns := opts.MaxConns
	if maxConns < 1 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxIdleTime(10 * time.Minute)

	s := &Session{
		DB:      db,
		Dialect: dialect,
		Schema:  schema,
		Driver:  ep.Driver,
		log:     log,
	}
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Debug().Msg("got connection")
	return s, nil
}

// Ping : round trip through the pool
func (s *Session) Ping(ctx context.Context) error {
	if err := s.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("%s : can't ping database : %w", s.Driver, err)
	}
	return nil
}

// Conn : dedicated connection for one worker, the caller closes it
func (s *Session) Conn(ctx context.Context) (*sql.Conn, error) {
	return s.DB.Conn(ctx)
}

// Close : closes the pool
func (s *Session) Close() error {
	return s.DB.Close()
}

// Evict : makes the pool drop conn instead of reusing it
func Evict(conn *sql.Conn) {
	if conn == nil {
		return
	}
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = conn.Close()
}

func normalizeDSN(driverName string, dsn string, fetchSize int) (string, string, error) {
	switch driverName {
	case "mysql":
		return mysqlDSN(dsn)
	case "snowflake":
		return snowflakeDSN(dsn)
	case "oracle":
		return oracleDSN(dsn, fetchSize)
	}
	return dsn, "", nil
}
