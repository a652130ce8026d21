package migrate

import (
	"context"

	"github.com/baderkha/db-migrate/pkg/migrate/config"
	"github.com/baderkha/db-migrate/pkg/migrate/config/sourcecfg"
	"github.com/baderkha/db-migrate/pkg/migrate/config/targetcfg"
	"github.com/spf13/afero"
)

// Config : configuration of a migration between two sql databases
type Config = config.Config[sourcecfg.Source, targetcfg.Target]

// Runner : runs migration between a source and a target
type Runner[S any, T any] interface {
	Run(ctx context.Context, cfg *config.Config[S, T]) (*Report, error)
}

var _ Runner[sourcecfg.Source, targetcfg.Target] = (*Migration)(nil)

// LoadConfig : reads the migration configuration of a root directory
func LoadConfig(fs afero.Fs, root string) (*Config, error) {
	return config.Load[sourcecfg.Source, targetcfg.Target](fs, root, sourcecfg.Defaults, targetcfg.Defaults)
}
