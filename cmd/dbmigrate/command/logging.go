package command

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// logName : dbmigration-N.log with the first N not used in dir yet
func logName(fs afero.Fs, dir string) (string, error) {
	for i := 1; ; i++ {
		name := filepath.Join(dir, fmt.Sprintf("dbmigration-%d.log", i))
		exists, err := afero.Exists(fs, name)
		if err != nil {
			return "", err
		}
		if !exists {
			return name, nil
		}
	}
}

// newLogger : console output on stderr and json lines in a new log file of dir
func newLogger(fs afero.Fs, dir string, level string, stderr io.Writer) (zerolog.Logger, io.Closer, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	name, err := logName(fs, dir)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	f, err := fs.Create(name)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	w := zerolog.MultiLevelWriter(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.DateTime}, f)
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), f, nil
}

// consoleLogger : commands that write no log file
func consoleLogger(level string, stderr io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.DateTime}).Level(lvl).With().Timestamp().Logger(), nil
}
