package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/yurifrl/categorisation/pkg/castlight"
	"github.com/yurifrl/categorisation/pkg/config"
	"github.com/yurifrl/categorisation/pkg/envelope"
	"github.com/yurifrl/categorisation/pkg/logging"
	"github.com/yurifrl/categorisation/pkg/result"
	"github.com/yurifrl/categorisation/pkg/service"
)

func main() {
	flags := pflag.NewFlagSet("categorise", pflag.ExitOnError)
	cfgFile := flags.StringP("config", "c", "", "Config file (default is config.yaml)")
	flags.String("castlight-api", "v1", "Castlight API version (v1|v2)")
	flags.Bool("dry-run", false, "Read and log inputs only")
	flags.String("delimiter", ";", "Delimiter of input and output files")
	flags.String("detail", "low", "Detail level of the summary (low|medium|high)")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Build(*cfgFile, flags)
	if err != nil {
		log.Fatal("invalid configuration", "err", err)
	}
	if args := flags.Args(); len(args) == 1 {
		cfg.Files.InPattern = args[0]
	}

	logger, closer, err := logging.New(cfg, "categorise")
	if err != nil {
		log.Fatal("failed to set up logging", "err", err)
	}
	defer closer.Close()

	client, err := envelope.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create http client", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	processor := service.NewProcessor(cfg, logger, castlight.New(cfg, client, logger))
	seq, err := processor.ProcessPattern(ctx)
	if err != nil {
		logger.Fatal("processing failed", "error", err)
	}
	os.Stdout.WriteString(seq.Summary(cfg.DetailLevel, result.Filter{Important: true, Exceptions: true}))
	if seq.Status() != result.Success {
		os.Exit(2)
	}
}
