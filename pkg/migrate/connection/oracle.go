package connection

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// the fetch size is handed to go-ora as PREFETCH_ROWS, the schema defaults to the user
func oracleDSN(dsn string, fetchSize int) (string, string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", fmt.Errorf("ORACLE : bad dsn : %w", err)
	}
	if fetchSize > 0 {
		q := u.Query()
		if q.Get("PREFETCH_ROWS") == "" {
			q.Set("PREFETCH_ROWS", strconv.Itoa(fetchSize))
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), strings.ToUpper(u.User.Username()), nil
}
