package targetcfg

import (
	"fmt"

	"github.com/baderkha/db-migrate/pkg/migrate/config"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Scripts : sql files executed on the target around the import
type Scripts struct {
	Files           []string `json:"files" mapstructure:"files"`
	ContinueOnError bool     `json:"continue_on_error" mapstructure:"continue_on_error"`
}

// Target : import side of the migration
type Target struct {
	Skip               bool            `json:"skip" mapstructure:"skip"`
	Threads            int             `json:"threads" mapstructure:"threads" validate:"min=1"`
	DeleteBeforeImport bool            `json:"delete_before_import" mapstructure:"delete_before_import"`
	BatchSize          int             `json:"batch_size" mapstructure:"batch_size" validate:"min=0"`
	RoundingMode       string          `json:"rounding_mode" mapstructure:"rounding_mode" validate:"oneof=ignore warn fail IGNORE WARN FAIL"`
	Bulk               bool            `json:"bulk" mapstructure:"bulk"`
	Before             Scripts         `json:"before" mapstructure:"before"`
	After              Scripts         `json:"after" mapstructure:"after"`
	ResetSequences     string          `json:"reset_sequences" mapstructure:"reset_sequences"`
	Audit              string          `json:"audit" mapstructure:"audit"`
	Wait               int             `json:"wait" mapstructure:"wait" validate:"min=0"`
	JDBC               config.Endpoint `json:"jdbc" mapstructure:"jdbc" validate:"-"`
}

// Defaults : default values for the target section
func Defaults(v *viper.Viper, prefix string) {
	v.SetDefault(prefix+".skip", false)
	v.SetDefault(prefix+".threads", 1)
	v.SetDefault(prefix+".delete_before_import", false)
	v.SetDefault(prefix+".batch_size", 10000)
	v.SetDefault(prefix+".rounding_mode", "warn")
	v.SetDefault(prefix+".bulk", true)
	v.SetDefault(prefix+".before.files", []string{})
	v.SetDefault(prefix+".before.continue_on_error", false)
	v.SetDefault(prefix+".after.files", []string{})
	v.SetDefault(prefix+".after.continue_on_error", false)
	v.SetDefault(prefix+".reset_sequences", "")
	v.SetDefault(prefix+".audit", "")
	v.SetDefault(prefix+".wait", 0)
	config.EndpointDefaults(v, prefix+".jdbc")
}

// Validate : the endpoint is only required when the import runs
func (t *Target) Validate(v *validator.Validate) error {
	if t.Skip {
		return nil
	}
	if err := v.Struct(&t.JDBC); err != nil {
		return fmt.Errorf("jdbc : %w", err)
	}
	return nil
}
