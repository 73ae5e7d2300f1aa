// Package castlight categorises transactions with the Castlight Financial
// categorisation engine, API generations v1 (synchronous) and v2 (job based).
package castlight

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/categorisation/pkg/catalog"
	"github.com/yurifrl/categorisation/pkg/config"
	"github.com/yurifrl/categorisation/pkg/envelope"
	"github.com/yurifrl/categorisation/pkg/records"
)

const (
	PathClassify                = "/caas/classify"
	PathTransactions            = "/categorisation/transactions"
	PathCategorisedTransactions = "/categorisation/categorised_transactions/%s"

	HeaderSubscriptionKey = "Ocp-Apim-Subscription-Key"
)

// ErrDryRun stops processing after the input has been read and logged.
var ErrDryRun = errors.New("dry run: no api calls performed")

// ResponseMissingEntriesError is returned when v1 classifies a different
// number of transactions than it was sent.
type ResponseMissingEntriesError struct {
	Requested int
	Returned  int
}

func (e *ResponseMissingEntriesError) Error() string {
	return fmt.Sprintf("number of elements in request %d and response %d do not equal", e.Requested, e.Returned)
}

// Categoriser talks to one API generation.
type Categoriser struct {
	client    *envelope.Client
	logger    *log.Logger
	url       string
	key       string
	version   catalog.CastlightVersion
	fields    catalog.CastlightFields
	wait      time.Duration
	dryRun    bool
	delimiter rune
}

func New(cfg *config.Config, client *envelope.Client, logger *log.Logger) *Categoriser {
	version := catalog.CastlightVersion(cfg.Castlight.APIVersion)
	return &Categoriser{
		client:    client,
		logger:    logger,
		url:       cfg.Castlight.URL,
		key:       cfg.Castlight.SubscriptionKey,
		version:   version,
		fields:    catalog.Castlight[version],
		wait:      cfg.Castlight.Wait,
		dryRun:    cfg.DryRun,
		delimiter: cfg.Delimiter(),
	}
}

// Version returns the API generation in use.
func (c *Categoriser) Version() catalog.CastlightVersion {
	return c.version
}

// Fields returns the request and response tuples of the API generation.
func (c *Categoriser) Fields() catalog.CastlightFields {
	return c.fields
}

func (c *Categoriser) request(method, path string) *envelope.Request {
	return envelope.NewRequest(method, c.url, path).
		WithHeader(HeaderSubscriptionKey, c.key).
		Expect("classifications", "time_taken")
}

func (c *Categoriser) body(rows []records.Record) records.Envelope {
	out := make([]records.Record, len(rows))
	for i, r := range rows {
		out[i] = r.Project(c.fields.Request)
	}
	return records.Envelope{Transactions: out}
}

// Classify sends rows to the v1 classify endpoint.
func (c *Categoriser) Classify(ctx context.Context, rows []records.Record) *envelope.Response {
	req := c.request(http.MethodPost, PathClassify)
	if _, err := req.WithJSON(c.body(rows)); err != nil {
		return envelope.Failed(req, err)
	}
	return c.client.Do(ctx, req)
}

// Submit starts a v2 categorisation job and returns its operation id, the
// last path segment of the Location header.
func (c *Categoriser) Submit(ctx context.Context, rows []records.Record) (*envelope.Response, string) {
	req := c.request(http.MethodPost, PathTransactions)
	if _, err := req.WithJSON(c.body(rows)); err != nil {
		return envelope.Failed(req, err), ""
	}
	resp := c.client.Do(ctx, req)
	if resp.StatusCode != http.StatusCreated {
		return resp, ""
	}
	return resp, OperationID(resp.Header.Get("Location"))
}

// Fetch reads the categorised transactions of a v2 job.
func (c *Categoriser) Fetch(ctx context.Context, operationID string) *envelope.Response {
	req := c.request(http.MethodGet, fmt.Sprintf(PathCategorisedTransactions, operationID))
	return c.client.Do(ctx, req)
}

// OperationID extracts the last path segment of a Location value.
func OperationID(location string) string {
	location = strings.TrimRight(location, "/")
	if i := strings.LastIndex(location, "/"); i >= 0 {
		return location[i+1:]
	}
	return location
}

func classifications(resp *envelope.Response) []map[string]any {
	list, _ := resp.Object()["classifications"].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		obj, _ := item.(map[string]any)
		out = append(out, obj)
	}
	return out
}

// mergeV1 appends the v1 response fields to each input row, in order.
func (c *Categoriser) mergeV1(rows []records.Record, resp *envelope.Response) ([]records.Record, error) {
	cls := classifications(resp)
	if len(cls) != len(rows) {
		return nil, &ResponseMissingEntriesError{Requested: len(rows), Returned: len(cls)}
	}
	out := make([]records.Record, len(rows))
	for i, row := range rows {
		merged := make(records.Record, len(row)+len(c.fields.Response))
		for k, v := range row {
			merged[k] = v
		}
		for k, v := range records.FromObject(cls[i], c.fields.Response) {
			merged[k] = v
		}
		out[i] = merged
	}
	return out, nil
}

// rowsV2 builds the result rows from the v2 response alone.
func (c *Categoriser) rowsV2(resp *envelope.Response) []records.Record {
	cls := classifications(resp)
	out := make([]records.Record, 0, len(cls))
	for _, obj := range cls {
		out = append(out, records.FromObject(obj, c.fields.Response))
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
