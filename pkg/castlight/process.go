package castlight

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/yurifrl/categorisation/pkg/catalog"
	"github.com/yurifrl/categorisation/pkg/records"
	"github.com/yurifrl/categorisation/pkg/result"
)

// Categorise sends rows to the configured API generation and returns the
// categorised rows. In dry run it returns ErrDryRun before any call.
func (c *Categoriser) Categorise(ctx context.Context, rows []records.Record) (*result.Sequence, []records.Record, error) {
	seq := result.NewSequence(fmt.Sprintf("Categorise %d transaction(s) with castlight %s", len(rows), c.version))
	for _, r := range rows {
		c.logger.Debug("transaction", "values", r.Project(c.fields.Request))
	}

	if c.dryRun {
		c.logger.Warn("dry run, no api calls performed", "transactions", len(rows))
		seq.Append(result.Note("Categorise transactions", result.Warning, ErrDryRun.Error()))
		return seq, nil, ErrDryRun
	}

	if c.version == catalog.CastlightV2 {
		return c.categoriseV2(ctx, seq, rows)
	}

	resp := c.Classify(ctx, rows)
	res := result.New("Classify transactions", resp)
	seq.Append(res)
	if !resp.OK() {
		return seq, nil, fmt.Errorf("classify failed: %s", resp.Status())
	}
	if t, ok := resp.Object()["time_taken"]; ok {
		c.logger.Info("classified transactions", "count", len(rows), "time_taken", t)
	}
	out, err := c.mergeV1(rows, resp)
	if err != nil {
		res.Correct(result.Error, err.Error())
		c.logger.Error("merging classifications failed", "err", err)
		return seq, nil, err
	}
	return seq, out, nil
}

func (c *Categoriser) categoriseV2(ctx context.Context, seq *result.Sequence, rows []records.Record) (*result.Sequence, []records.Record, error) {
	resp, opID := c.Submit(ctx, rows)
	res := result.New("Submit categorisation job", resp)
	seq.Append(res)
	if resp.StatusCode != http.StatusCreated || opID == "" {
		if resp.OK() {
			res.Correct(result.Error, "no operation id returned")
		}
		return seq, nil, fmt.Errorf("categorisation job not created: %s", resp.Status())
	}
	c.logger.Info("categorisation job created", "operation_id", opID, "wait", c.wait)

	if err := sleep(ctx, c.wait); err != nil {
		return seq, nil, err
	}

	fetched := c.Fetch(ctx, opID)
	seq.Append(result.New("Get categorised transactions", fetched))
	if fetched.StatusCode != http.StatusOK {
		return seq, nil, fmt.Errorf("fetching categorised transactions failed: %s", fetched.Status())
	}
	return seq, c.rowsV2(fetched), nil
}

// Process reads input, categorises its transactions and writes the request
// and response fields of every row to output, keeping the line endings of
// input.
func (c *Categoriser) Process(ctx context.Context, input, output string) (*result.Sequence, error) {
	rows, dialect, err := records.ReadFileDialect(input, c.fields.Request, c.delimiter)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", input, err)
	}
	c.logger.Info("read transactions", "file", input, "count", len(rows))

	seq, out, err := c.Categorise(ctx, rows)
	if err != nil {
		if errors.Is(err, ErrDryRun) {
			return seq, err
		}
		return seq, fmt.Errorf("failed to categorise %s: %w", input, err)
	}

	if err := records.WriteFileDialect(output, out, c.fields.Output(), dialect); err != nil {
		return seq, fmt.Errorf("failed to write %s: %w", output, err)
	}
	seq.Message = fmt.Sprintf("%d row(s) written to %s", len(out), output)
	c.logger.Info("wrote categorised transactions", "file", output, "count", len(out))
	return seq, nil
}
