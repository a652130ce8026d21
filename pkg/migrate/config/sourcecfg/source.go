package sourcecfg

import (
	"fmt"
	"strings"

	"github.com/baderkha/db-migrate/pkg/migrate/config"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// DefaultLOBThreshold : large objects above this size are exported without a copy
const DefaultLOBThreshold = 100 << 20

// Archive : optional s3 copy of the exported files
type Archive struct {
	Bucket   string `json:"bucket" mapstructure:"bucket"`
	Prefix   string `json:"prefix" mapstructure:"prefix"`
	Region   string `json:"region" mapstructure:"region"`
	MaxRetry int    `json:"max_retry" mapstructure:"max_retry" validate:"min=1"`
}

// Source : export side of the migration
type Source struct {
	Skip         bool            `json:"skip" mapstructure:"skip"`
	Overwrite    bool            `json:"overwrite" mapstructure:"overwrite"`
	Threads      int             `json:"threads" mapstructure:"threads" validate:"min=1"`
	Include      []string        `json:"include" mapstructure:"include"`
	Exclude      []string        `json:"exclude" mapstructure:"exclude"`
	Retries      int             `json:"retries" mapstructure:"retries" validate:"min=0"`
	FetchSize    int             `json:"fetch_size" mapstructure:"fetch_size" validate:"min=1"`
	Wait         int             `json:"wait" mapstructure:"wait" validate:"min=0"`
	LOBThreshold int64           `json:"lob_threshold" mapstructure:"lob_threshold" validate:"min=0"`
	JDBC         config.Endpoint `json:"jdbc" mapstructure:"jdbc" validate:"-"`
	Archive      Archive         `json:"archive" mapstructure:"archive"`
}

// Defaults : default values for the source section
func Defaults(v *viper.Viper, prefix string) {
	v.SetDefault(prefix+".skip", false)
	v.SetDefault(prefix+".overwrite", false)
	v.SetDefault(prefix+".threads", 1)
	v.SetDefault(prefix+".include", []string{})
	v.SetDefault(prefix+".exclude", []string{})
	v.SetDefault(prefix+".retries", 3)
	v.SetDefault(prefix+".fetch_size", 5000)
	v.SetDefault(prefix+".wait", 0)
	v.SetDefault(prefix+".lob_threshold", DefaultLOBThreshold)
	v.SetDefault(prefix+".archive.max_retry", 3)
	config.EndpointDefaults(v, prefix+".jdbc")
}

// Validate : the endpoint is only required when the export runs
func (s *Source) Validate(v *validator.Validate) error {
	if s.Skip {
		return nil
	}
	if err := v.Struct(&s.JDBC); err != nil {
		return fmt.Errorf("jdbc : %w", err)
	}
	for _, p := range s.Include {
		if strings.Contains(p, ".") {
			return fmt.Errorf("include entry %q : only table names can be included", p)
		}
	}
	for _, p := range s.Exclude {
		if strings.Count(p, ".") > 1 || strings.HasPrefix(p, ".") || strings.HasSuffix(p, ".") {
			return fmt.Errorf("exclude entry %q : expected table or table.column", p)
		}
	}
	return nil
}
