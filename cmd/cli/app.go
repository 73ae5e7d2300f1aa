package main

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/yurifrl/categorisation/pkg/castlight"
	"github.com/yurifrl/categorisation/pkg/catalog"
	"github.com/yurifrl/categorisation/pkg/config"
	"github.com/yurifrl/categorisation/pkg/envelope"
	"github.com/yurifrl/categorisation/pkg/executors"
	"github.com/yurifrl/categorisation/pkg/logging"
	"github.com/yurifrl/categorisation/pkg/records"
	"github.com/yurifrl/categorisation/pkg/tink"
)

// app is the wiring shared by every subcommand, built once per invocation.
type app struct {
	config      *config.Config
	logger      *log.Logger
	closer      io.Closer
	source      *records.FileSource
	categoriser *castlight.Categoriser
	executor    *executors.Executor
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Build(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger, closer, err := logging.New(cfg, "catpoc")
	if err != nil {
		return nil, err
	}
	client, err := envelope.New(cfg, logger)
	if err != nil {
		closer.Close()
		return nil, err
	}

	source := records.NewFileSource(cfg.Delimiter())
	source.Bind(catalog.UserEntity, sourceFiles.users)
	source.Bind(catalog.AccountEntity, sourceFiles.accounts)
	source.Bind(catalog.TransactionEntity, sourceFiles.transactions)

	categoriser := castlight.New(cfg, client, logger)
	api := tink.New(cfg, client, logger)
	return &app{
		config:      cfg,
		logger:      logger,
		closer:      closer,
		source:      source,
		categoriser: categoriser,
		executor:    executors.New(logger, cfg, api, categoriser, source),
	}, nil
}
