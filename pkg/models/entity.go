package models

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/yurifrl/categorisation/pkg/catalog"
)

// User is a platform user identified by the caller-assigned external id.
type User struct {
	ExternalUserID string `json:"external_user_id" validate:"required"`
	Label          string `json:"label,omitempty"`
	Market         string `json:"market" validate:"required,iso3166_1_alpha2"`
	Locale         string `json:"locale" validate:"required"`
}

func (u *User) UserExternalID() string { return u.ExternalUserID }

// Account is a bank account owned by the user with UserExternalID.
type Account struct {
	Owner           string            `json:"-" validate:"required"`
	ExternalID      string            `json:"externalId" validate:"required"`
	AvailableCredit decimal.Decimal   `json:"-"`
	Balance         decimal.Decimal   `json:"-"`
	Name            string            `json:"name" validate:"required"`
	Type            string            `json:"type" validate:"required,oneof=CHECKING SAVINGS CREDIT_CARD LOAN INVESTMENT PENSION EXTERNAL OTHER"`
	Flags           []string          `json:"flags"`
	Number          string            `json:"number" validate:"required"`
	ReservedAmount  decimal.Decimal   `json:"-"`
	Payload         map[string]string `json:"payload,omitempty"`
}

func (a *Account) UserExternalID() string { return a.Owner }

// Transaction is a booked or pending movement on an account.
type Transaction struct {
	Owner             string            `json:"-" validate:"required"`
	AccountExternalID string            `json:"-" validate:"required"`
	Amount            decimal.Decimal   `json:"-"`
	Date              int64             `json:"date" validate:"required"`
	Description       string            `json:"description" validate:"required"`
	ExternalID        string            `json:"externalId" validate:"required"`
	Payload           map[string]string `json:"payload,omitempty"`
	Pending           bool              `json:"pending"`
	TinkID            string            `json:"tinkId,omitempty"`
	Type              string            `json:"type" validate:"required,oneof=DEFAULT CREDIT_CARD TRANSFER PAYMENT WITHDRAWAL"`
}

func (t *Transaction) UserExternalID() string { return t.Owner }

// Owned is implemented by every entity tied to an external user id.
type Owned interface {
	UserExternalID() string
}

// Collection is an ordered sequence of entities of one kind.
type Collection[T Owned] struct {
	Kind  catalog.Kind
	Items []T
}

// Subset returns the entities belonging to externalUserID, in order.
func (c Collection[T]) Subset(externalUserID string) Collection[T] {
	out := Collection[T]{Kind: c.Kind}
	for _, it := range c.Items {
		if it.UserExternalID() == externalUserID {
			out.Items = append(out.Items, it)
		}
	}
	return out
}

// Owners returns the distinct external user ids in first-seen order.
func (c Collection[T]) Owners() []string {
	seen := make(map[string]bool)
	var out []string
	for _, it := range c.Items {
		id := it.UserExternalID()
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (c Collection[T]) Len() int { return len(c.Items) }

// FieldError reports a record that cannot be turned into an entity.
type FieldError struct {
	Kind   catalog.Kind
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: mandatory field %q is missing", e.Kind, e.Field)
	}
	return fmt.Sprintf("%s: field %q %s", e.Kind, e.Field, e.Reason)
}
