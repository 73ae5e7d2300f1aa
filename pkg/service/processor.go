package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/categorisation/pkg/castlight"
	"github.com/yurifrl/categorisation/pkg/config"
	"github.com/yurifrl/categorisation/pkg/result"
)

// Processor categorises every input file matching the configured pattern.
type Processor struct {
	config      *config.Config
	logger      *log.Logger
	categoriser *castlight.Categoriser
}

func NewProcessor(config *config.Config, logger *log.Logger, categoriser *castlight.Categoriser) *Processor {
	return &Processor{
		config:      config,
		logger:      logger,
		categoriser: categoriser,
	}
}

// ProcessPattern categorises each file matching files.in_pattern into the
// name derived from files.out_pattern. A failing file is logged and skipped.
func (p *Processor) ProcessPattern(ctx context.Context) (*result.Sequence, error) {
	pattern := p.config.Files.InPattern
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid input pattern %q: %w", pattern, err)
	}

	seq := result.NewSequence("Categorise " + pattern)
	done := 0
	for _, in := range matches {
		out := p.OutputPath(in)
		if out == in {
			p.logger.Warn("output would overwrite input, skipping", "file", in)
			continue
		}
		sub, err := p.processFile(ctx, in, out)
		seq.Append(sub)
		if errors.Is(err, castlight.ErrDryRun) {
			continue
		}
		if err != nil {
			p.logger.Error("failed to process file", "file", in, "error", err)
			continue
		}
		done++
		p.logger.Info("processed file successfully", "input", in, "output", out)
	}
	seq.Message = fmt.Sprintf("%d of %d file(s) categorised", done, len(matches))
	return seq, nil
}

func (p *Processor) processFile(ctx context.Context, in, out string) (*result.Sequence, error) {
	p.logger.Info("processing file", "path", in, "api", p.categoriser.Version())
	seq, err := p.categoriser.Process(ctx, in, out)
	if seq == nil {
		seq = result.NewSequence("Categorise " + in)
		seq.Append(result.Note("Read "+filepath.Base(in), result.Error, err.Error()).MarkImportant())
	}
	return seq, err
}

// OutputPath maps an input file onto the output pattern by substituting the
// part matched by the input wildcard. Without a wildcard in the output
// pattern the result is written next to the input with a -categorised suffix.
func (p *Processor) OutputPath(in string) string {
	inPrefix, inSuffix, inWild := strings.Cut(p.config.Files.InPattern, "*")
	outPrefix, outSuffix, outWild := strings.Cut(p.config.Files.OutPattern, "*")
	in, inPrefix = filepath.Clean(in), cleanPrefix(inPrefix)
	if inWild && outWild && strings.HasPrefix(in, inPrefix) && strings.HasSuffix(in, inSuffix) &&
		len(in) >= len(inPrefix)+len(inSuffix) {
		middle := in[len(inPrefix) : len(in)-len(inSuffix)]
		return outPrefix + middle + outSuffix
	}
	ext := filepath.Ext(in)
	return strings.TrimSuffix(in, ext) + "-categorised" + ext
}

// cleanPrefix cleans a pattern prefix the way Glob cleans its matches,
// keeping a trailing separator.
func cleanPrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	cleaned := filepath.Clean(prefix)
	if strings.HasSuffix(prefix, string(filepath.Separator)) && cleaned != string(filepath.Separator) {
		cleaned += string(filepath.Separator)
	}
	return cleaned
}
