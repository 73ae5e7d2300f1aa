// Package logging builds the charmbracelet logger shared by the commands.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/categorisation/pkg/config"
)

// New returns a logger writing to stderr and, when log_file is set, appending
// to that file as well. The returned closer releases the file.
func New(cfg *config.Config, prefix string) (*log.Logger, io.Closer, error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w, closer = io.MultiWriter(os.Stderr, f), f
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		ReportCaller:    level == log.DebugLevel,
		Prefix:          prefix,
		Level:           level,
	})
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
