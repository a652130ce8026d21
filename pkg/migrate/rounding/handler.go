package rounding

import (
	"errors"
	"fmt"
	"strings"

	"github.com/baderkha/db-migrate/pkg/migrate/table"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Policy : what happens when a value loses precision
type Policy int

const (
	PolicyIgnore Policy = iota
	PolicyWarn
	PolicyFail
)

// ErrPrecisionLost : rounding changed a value under PolicyFail
var ErrPrecisionLost = errors.New("precision lost")

// ParsePolicy : ignore, warn or fail in any case
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ignore":
		return PolicyIgnore, nil
	case "", "warn":
		return PolicyWarn, nil
	case "fail":
		return PolicyFail, nil
	}
	return PolicyWarn, fmt.Errorf("invalid rounding rule %q", s)
}

func (p Policy) String() string {
	switch p {
	case PolicyIgnore:
		return "IGNORE"
	case PolicyWarn:
		return "WARN"
	case PolicyFail:
		return "FAIL"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// Handler : applies the rounding policy to values bound to target columns, safe for concurrent use
type Handler struct {
	policy Policy
	audit  *Audit
	log    zerolog.Logger
}

// NewHandler : audit may be nil
func NewHandler(policy Policy, audit *Audit, log zerolog.Logger) *Handler {
	return &Handler{
		policy: policy,
		audit:  audit,
		log:    log.With().Str("component", "rounding").Logger(),
	}
}

// Policy : active policy
func (h *Handler) Policy() Policy {
	return h.policy
}

// Convert : value as the target column would store it. every change is audited, the policy
// then decides between silently continuing, warning and failing
func (h *Handler) Convert(tableName string, col table.Column, v decimal.Decimal) (decimal.Decimal, error) {
	rounded, err := ForColumn(col, v)
	if err != nil {
		return v, fmt.Errorf("%s : %w", tableName, err)
	}
	if v.Equal(rounded) {
		return v, nil
	}
	if h.audit != nil {
		if err := h.audit.Record(tableName, col.Name, v, rounded); err != nil {
			return v, err
		}
	}
	switch h.policy {
	case PolicyIgnore:
		return rounded, nil
	case PolicyWarn:
		h.log.Warn().
			Str("table", tableName).
			Str("column", col.Name).
			Str("value", v.String()).
			Str("rounded", rounded.String()).
			Msg("precision lost")
		return rounded, nil
	}
	return v, fmt.Errorf("%w : %s.%s : %s -> %s", ErrPrecisionLost, tableName, col.Name, v, rounded)
}
