package connection

import (
	"fmt"

	"github.com/snowflakedb/gosnowflake"
)

func snowflakeDSN(dsn string) (string, string, error) {
	cfg, err := gosnowflake.ParseDSN(dsn)
	if err != nil {
		return "", "", fmt.Errorf("SNOWFLAKE : bad dsn : %w", err)
	}
	return dsn, cfg.Schema, nil
}
