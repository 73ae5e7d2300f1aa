// Package executors implements the user-visible actions by combining the
// record adapter, the vendor callers and the OAuth flow. Every action returns
// a result sequence describing the calls it made.
package executors

import (
	"github.com/charmbracelet/log"

	"github.com/yurifrl/categorisation/pkg/castlight"
	"github.com/yurifrl/categorisation/pkg/catalog"
	"github.com/yurifrl/categorisation/pkg/config"
	"github.com/yurifrl/categorisation/pkg/models"
	"github.com/yurifrl/categorisation/pkg/records"
	"github.com/yurifrl/categorisation/pkg/result"
	"github.com/yurifrl/categorisation/pkg/tink"
)

type Executor struct {
	logger    *log.Logger
	config    *config.Config
	tink      *tink.API
	castlight *castlight.Categoriser
	adapter   *models.Adapter
	source    records.Source
}

func New(logger *log.Logger, config *config.Config, api *tink.API, categoriser *castlight.Categoriser, source records.Source) *Executor {
	return &Executor{
		logger:    logger,
		config:    config,
		tink:      api,
		castlight: categoriser,
		adapter:   models.NewAdapter(),
		source:    source,
	}
}

// WithSource returns a copy of the executor reading records from source.
func (e *Executor) WithSource(source records.Source) *Executor {
	c := *e
	c.source = source
	return &c
}

// WithAdapter replaces the record adapter, e.g. to fix its clock.
func (e *Executor) WithAdapter(adapter *models.Adapter) *Executor {
	e.adapter = adapter
	return e
}

// load adapts every record of kind. Records that fail adaptation are noted
// in seq and skipped.
func load[T models.Owned](e *Executor, kind catalog.Kind, build func(records.Record) (T, error), seq *result.Sequence) (models.Collection[T], error) {
	out := models.Collection[T]{Kind: kind}
	recs, err := e.source.Records(kind)
	if err != nil {
		return out, err
	}
	for i, rec := range recs {
		item, err := build(rec)
		if err != nil {
			e.logger.Warn("skipping record", "kind", kind, "row", i+1, "err", err)
			seq.Append(result.Note("Read "+string(kind), result.Error, err.Error()).MarkImportant())
			continue
		}
		out.Items = append(out.Items, item)
	}
	e.logger.Debug("loaded records", "kind", kind, "valid", out.Len(), "total", len(recs))
	return out, nil
}

func (e *Executor) users(seq *result.Sequence) (models.Collection[*models.User], error) {
	return load(e, catalog.UserEntity, e.adapter.User, seq)
}

func (e *Executor) accounts(seq *result.Sequence) (models.Collection[*models.Account], error) {
	return load(e, catalog.AccountEntity, e.adapter.Account, seq)
}

func (e *Executor) transactions(seq *result.Sequence) (models.Collection[*models.Transaction], error) {
	return load(e, catalog.TransactionEntity, e.adapter.Transaction, seq)
}
