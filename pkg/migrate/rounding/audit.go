package rounding

import (
	"encoding/csv"
	"io"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
)

// Audit : csv log of every rounded value
type Audit struct {
	mu sync.Mutex
	w  *csv.Writer
	c  io.Closer
}

// NewAudit : writes the header right away, closing the audit closes out
func NewAudit(out io.WriteCloser) (*Audit, error) {
	a := &Audit{w: csv.NewWriter(out), c: out}
	if err := a.w.Write([]string{"table", "column", "value", "rounded"}); err != nil {
		return nil, err
	}
	return a, nil
}

// OpenAudit : truncates path and starts a new audit there
func OpenAudit(fs afero.Fs, path string) (*Audit, error) {
	f, err := fs.Create(path)
	if err != nil {
		return nil, err
	}
	a, err := NewAudit(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return a, nil
}

// Record : appends one line
func (a *Audit) Record(tableName string, column string, value decimal.Decimal, rounded decimal.Decimal) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.w.Write([]string{tableName, column, value.String(), rounded.String()})
}

// Close : flushes and closes the output
func (a *Audit) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.w.Flush()
	if err := a.w.Error(); err != nil {
		a.c.Close()
		return err
	}
	return a.c.Close()
}
