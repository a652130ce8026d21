package connection

import (
	"fmt"
	"strings"
)

// Dialect : quoting, placeholders and catalog queries of one sql flavour
type Dialect struct {
	Name          string
	open, close   string
	quotes        bool
	placeholder   func(i int) string
	tablesQuery   string
	defaultSchema string
	restart       func(sequence string, next string) string
}

func alterSequence(sequence string, next string) string {
	return fmt.Sprintf("ALTER SEQUENCE %s RESTART WITH %s", sequence, next)
}

var dialects = map[string]Dialect{
	"mysql": {
		Name:        "mysql",
		open:        "`",
		close:       "`",
		placeholder: func(int) string { return "?" },
		tablesQuery: "SELECT table_name FROM information_schema.tables WHERE table_schema = ? AND table_type = 'BASE TABLE'",
		// mysql has no sequences, the sequence is the auto increment of the table
		restart: func(sequence string, next string) string {
			return fmt.Sprintf("ALTER TABLE %s AUTO_INCREMENT = %s", sequence, next)
		},
	},
	"pgx": {
		Name:          "postgres",
		open:          `"`,
		close:         `"`,
		placeholder:   func(i int) string { return fmt.Sprintf("$%d", i) },
		tablesQuery:   "SELECT table_name FROM information_schema.tables WHERE table_schema = $1 AND table_type = 'BASE TABLE'",
		defaultSchema: "public",
		restart:       alterSequence,
	},
	"sqlserver": {
		Name:          "sqlserver",
		open:          "[",
		close:         "]",
		placeholder:   func(i int) string { return fmt.Sprintf("@p%d", i) },
		tablesQuery:   "SELECT table_name FROM information_schema.tables WHERE table_schema = @p1 AND table_type = 'BASE TABLE'",
		defaultSchema: "dbo",
		restart:       alterSequence,
	},
	"oracle": {
		Name:        "oracle",
		open:        `"`,
		close:       `"`,
		placeholder: func(i int) string { return fmt.Sprintf(":%d", i) },
		tablesQuery: "SELECT table_name FROM all_tables WHERE owner = :1",
		restart: func(sequence string, next string) string {
			return fmt.Sprintf("ALTER SEQUENCE %s RESTART START WITH %s", sequence, next)
		},
	},
	"snowflake": {
		Name:        "snowflake",
		open:        `"`,
		close:       `"`,
		placeholder: func(int) string { return "?" },
		tablesQuery: "SELECT table_name FROM information_schema.tables WHERE table_schema = ? AND table_type = 'BASE TABLE'",
		restart:     alterSequence,
	},
	"sqlite3": {
		Name:        "sqlite",
		open:        `"`,
		close:       `"`,
		placeholder: func(int) string { return "?" },
		tablesQuery: "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name",
		// the sequence of an AUTOINCREMENT table is its row in sqlite_sequence
		restart: func(sequence string, next string) string {
			return fmt.Sprintf("UPDATE sqlite_sequence SET seq = %s - 1 WHERE name = '%s'", next, strings.ReplaceAll(sequence, "'", "''"))
		},
	},
}

// DialectFor : dialect registered for a database/sql driver name
func DialectFor(driverName string, quotes bool) (*Dialect, error) {
	d, ok := dialects[driverName]
	if !ok {
		return nil, fmt.Errorf("no dialect for driver %q", driverName)
	}
	d.quotes = quotes
	return &d, nil
}

// Quote : quotes an identifier when quoting is enabled
func (d *Dialect) Quote(name string) string {
	if !d.quotes {
		return name
	}
	return d.open + strings.ReplaceAll(name, d.close, d.close+d.close) + d.close
}

// QuoteTable : table names are never schema qualified, the schema comes from the connection
func (d *Dialect) QuoteTable(name string) string {
	return d.Quote(name)
}

// Placeholder : bind parameter for a 1-based position
func (d *Dialect) Placeholder(i int) string {
	return d.placeholder(i)
}

// TablesQuery : catalog query listing the base tables of a schema
func (d *Dialect) TablesQuery(schema string) (string, []any) {
	if d.Name == "sqlite" {
		return d.tablesQuery, nil
	}
	return d.tablesQuery, []any{schema}
}

// Insert : parameterized insert covering the given columns
func (d *Dialect) Insert(table string, columns []string) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(d.QuoteTable(table))
	sb.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(d.Quote(c))
	}
	sb.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(d.Placeholder(i + 1))
	}
	sb.WriteString(")")
	return sb.String()
}

// RestartSequence : statement making next the following value of the sequence
func (d *Dialect) RestartSequence(sequence string, next string) string {
	return d.restart(sequence, next)
}
