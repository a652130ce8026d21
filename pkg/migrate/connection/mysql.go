package connection

import (
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// dates are scanned into time.Time, the export depends on it
func mysqlDSN(dsn string) (string, string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", "", fmt.Errorf("MYSQL : bad dsn : %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), cfg.DBName, nil
}
