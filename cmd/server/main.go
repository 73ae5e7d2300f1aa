package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/yurifrl/categorisation/pkg/castlight"
	"github.com/yurifrl/categorisation/pkg/config"
	"github.com/yurifrl/categorisation/pkg/envelope"
	"github.com/yurifrl/categorisation/pkg/executors"
	"github.com/yurifrl/categorisation/pkg/logging"
	"github.com/yurifrl/categorisation/pkg/records"
	"github.com/yurifrl/categorisation/pkg/server"
	"github.com/yurifrl/categorisation/pkg/tink"
)

func main() {
	flags := pflag.NewFlagSet("catpoc-server", pflag.ExitOnError)
	port := flags.String("port", "3000", "Server port")
	cfgFile := flags.StringP("config", "c", "", "Config file (default is config.yaml)")
	flags.String("log-level", "info", "Log level")
	flags.String("castlight-api", "v1", "Castlight API version (v1|v2)")
	flags.Bool("dry-run", false, "Suppress categorisation calls")
	flags.Bool("allow-delete", false, "Allow deleting existing users")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Build(*cfgFile, flags)
	if err != nil {
		log.Fatal("invalid configuration", "err", err)
	}
	logger, closer, err := logging.New(cfg, "catpoc-server")
	if err != nil {
		log.Fatal("failed to set up logging", "err", err)
	}
	defer closer.Close()

	client, err := envelope.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create http client", "err", err)
	}
	categoriser := castlight.New(cfg, client, logger)
	exec := executors.New(logger, cfg, tink.New(cfg, client, logger), categoriser, records.StaticSource{})

	srv := server.New(cfg, logger, exec, categoriser)
	addr := fmt.Sprintf("0.0.0.0:%s", *port)
	logger.Info("starting server", "addr", addr)
	if err := srv.Start(addr); err != nil {
		logger.Fatal("server error", "err", err)
	}
}
