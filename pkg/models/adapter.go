package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/yurifrl/categorisation/pkg/catalog"
	"github.com/yurifrl/categorisation/pkg/records"
)

// PayloadCreated is the payload key stamped with the adjustment time.
const PayloadCreated = "created"

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02.01.2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Adapter turns flat input records into validated entities.
type Adapter struct {
	validate *validator.Validate
	now      func() time.Time
}

func NewAdapter() *Adapter {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return &Adapter{validate: v, now: time.Now}
}

// WithClock replaces the time source used for payload timestamps.
func (a *Adapter) WithClock(now func() time.Time) *Adapter {
	a.now = now
	return a
}

// Adjust keeps only catalog fields of rec and checks the mandatory ones.
func (a *Adapter) Adjust(rec records.Record, fields catalog.Fields) (records.Record, error) {
	out := rec.Project(fields.Input)
	for _, f := range fields.Mandatory {
		if _, ok := out.Get(f); !ok {
			return nil, &FieldError{Kind: fields.Kind, Field: f}
		}
	}
	return out, nil
}

func (a *Adapter) check(kind catalog.Kind, v any) error {
	err := a.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := fmt.Sprintf("failed %q validation", fe.Tag())
		if fe.Param() != "" {
			reason = fmt.Sprintf("must be one of [%s]", fe.Param())
		}
		return &FieldError{Kind: kind, Field: fe.Field(), Reason: reason}
	}
	return err
}

// User builds a user from an input record.
func (a *Adapter) User(rec records.Record) (*User, error) {
	adj, err := a.Adjust(rec, catalog.Users)
	if err != nil {
		return nil, err
	}
	u := &User{
		ExternalUserID: value(adj, "external_user_id"),
		Label:          value(adj, "label"),
		Market:         strings.ToUpper(value(adj, "market")),
		Locale:         value(adj, "locale"),
	}
	if err := a.check(catalog.UserEntity, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Account builds an account, splitting the comma-joined flags and stamping the payload.
func (a *Adapter) Account(rec records.Record) (*Account, error) {
	adj, err := a.Adjust(rec, catalog.Accounts)
	if err != nil {
		return nil, err
	}
	acc := &Account{
		Owner:      value(adj, "userExternalId"),
		ExternalID: value(adj, "externalId"),
		Name:       value(adj, "name"),
		Type:       strings.ToUpper(value(adj, "type")),
		Flags:      splitFlags(value(adj, "flags")),
		Number:     value(adj, "number"),
		Payload:    map[string]string{PayloadCreated: a.now().UTC().Format(time.RFC3339)},
	}
	for _, m := range []struct {
		field string
		dst   *decimal.Decimal
	}{
		{"availableCredit", &acc.AvailableCredit},
		{"balance", &acc.Balance},
		{"reservedAmount", &acc.ReservedAmount},
	} {
		if *m.dst, err = amount(catalog.AccountEntity, adj, m.field); err != nil {
			return nil, err
		}
	}
	if err := a.check(catalog.AccountEntity, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// Transaction builds a transaction, converting its date to epoch milliseconds.
func (a *Adapter) Transaction(rec records.Record) (*Transaction, error) {
	adj, err := a.Adjust(rec, catalog.Transactions)
	if err != nil {
		return nil, err
	}
	trx := &Transaction{
		Owner:             value(adj, "userExternalId"),
		AccountExternalID: value(adj, "accountExternalId"),
		Description:       value(adj, "description"),
		ExternalID:        value(adj, "externalId"),
		TinkID:            value(adj, "tinkId"),
		Type:              strings.ToUpper(value(adj, "type")),
	}
	if trx.Amount, err = amount(catalog.TransactionEntity, adj, "amount"); err != nil {
		return nil, err
	}
	if trx.Date, err = epochMillis(value(adj, "date")); err != nil {
		return nil, &FieldError{Kind: catalog.TransactionEntity, Field: "date", Reason: err.Error()}
	}
	if p := value(adj, "pending"); p != "" {
		if trx.Pending, err = strconv.ParseBool(p); err != nil {
			return nil, &FieldError{Kind: catalog.TransactionEntity, Field: "pending", Reason: "is not a boolean"}
		}
	}
	if trx.Payload, err = payload(value(adj, "payload")); err != nil {
		return nil, &FieldError{Kind: catalog.TransactionEntity, Field: "payload", Reason: err.Error()}
	}
	if _, ok := trx.Payload[PayloadCreated]; !ok {
		trx.Payload[PayloadCreated] = a.now().UTC().Format(time.RFC3339)
	}
	if err := a.check(catalog.TransactionEntity, trx); err != nil {
		return nil, err
	}
	return trx, nil
}

func value(rec records.Record, field string) string {
	v, _ := rec.Get(field)
	return v
}

func splitFlags(s string) []string {
	flags := []string{}
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			flags = append(flags, f)
		}
	}
	return flags
}

func amount(kind catalog.Kind, rec records.Record, field string) (decimal.Decimal, error) {
	s := value(rec, field)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return decimal.Zero, &FieldError{Kind: kind, Field: field, Reason: fmt.Sprintf("is not a number: %q", s)}
	}
	return d, nil
}

func epochMillis(s string) (int64, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("has unsupported date format %q", s)
}

func payload(s string) (map[string]string, error) {
	out := make(map[string]string)
	if s == "" {
		return out, nil
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("is not a JSON object")
	}
	for k, v := range raw {
		if str, ok := v.(string); ok {
			out[k] = str
			continue
		}
		b, _ := json.Marshal(v)
		out[k] = string(b)
	}
	return out, nil
}
