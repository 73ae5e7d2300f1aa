// Package catalog declares which record fields are read from input files and
// which are exchanged with each vendor endpoint, per entity kind.
package catalog

import "slices"

type Kind string

const (
	UserEntity        Kind = "UserEntity"
	AccountEntity     Kind = "AccountEntity"
	TransactionEntity Kind = "TransactionEntity"
)

// Kinds lists every entity kind in processing order.
var Kinds = []Kind{UserEntity, AccountEntity, TransactionEntity}

// Fields is the catalog entry of one entity kind.
type Fields struct {
	Kind Kind
	// Input is the column order of input and output files.
	Input []string
	// API is the subset of Input sent to the vendor.
	API []string
	// Mandatory must be present (non-empty) once the record is adjusted.
	Mandatory []string
	// Remapped fields get a per-field transform before they are sent.
	Remapped []string
}

// Has reports whether name is an input field of the kind.
func (f Fields) Has(name string) bool {
	return slices.Contains(f.Input, name)
}

// IsMandatory reports whether name must be present after adjustment.
func (f Fields) IsMandatory(name string) bool {
	return slices.Contains(f.Mandatory, name)
}

// IsRemapped reports whether name is transformed before it is sent.
func (f Fields) IsRemapped(name string) bool {
	return slices.Contains(f.Remapped, name)
}

var Users = Fields{
	Kind:      UserEntity,
	Input:     []string{"external_user_id", "label", "market", "locale"},
	API:       []string{"external_user_id", "label", "market", "locale"},
	Mandatory: []string{"external_user_id", "market", "locale"},
}

var Accounts = Fields{
	Kind: AccountEntity,
	Input: []string{"userExternalId", "externalId", "availableCredit", "balance", "name",
		"type", "flags", "number", "reservedAmount"},
	API: []string{"externalId", "availableCredit", "balance", "name", "type", "flags",
		"number", "reservedAmount", "payload"},
	Mandatory: []string{"userExternalId", "externalId", "balance", "name", "type", "number"},
	Remapped:  []string{"flags", "payload"},
}

var Transactions = Fields{
	Kind: TransactionEntity,
	Input: []string{"userExternalId", "accountExternalId", "amount", "date", "description",
		"externalId", "payload", "pending", "tinkId", "type"},
	API: []string{"amount", "date", "description", "externalId", "payload", "pending",
		"tinkId", "type"},
	Mandatory: []string{"userExternalId", "accountExternalId", "amount", "date",
		"description", "externalId", "type"},
	Remapped: []string{"payload", "date", "pending"},
}

// For returns the catalog entry of kind.
func For(kind Kind) (Fields, bool) {
	switch kind {
	case UserEntity:
		return Users, true
	case AccountEntity:
		return Accounts, true
	case TransactionEntity:
		return Transactions, true
	}
	return Fields{}, false
}

// Fields relevant per vendor response, used to project response bodies.
var (
	TokenResponse     = []string{"access_token", "token_type", "expires_in", "scope"}
	AuthorizeResponse = []string{"code"}
	UserResponse      = []string{"user_id"}
	GetUserResponse   = []string{"id", "created", "profile"}
	AccountsResponse  = []string{"accounts"}
	ErrorResponse     = []string{"errorMessage", "errorCode", "message"}
)

// CastlightVersion selects one of the two categorisation API generations.
type CastlightVersion string

const (
	CastlightV1 CastlightVersion = "v1"
	CastlightV2 CastlightVersion = "v2"
)

// CastlightFields is the request/response tuple pair of one categorisation API.
type CastlightFields struct {
	Request  []string
	Response []string
}

// Output is the column order of the categorised output file.
func (c CastlightFields) Output() []string {
	out := make([]string, 0, len(c.Request)+len(c.Response))
	out = append(out, c.Request...)
	for _, f := range c.Response {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

var Castlight = map[CastlightVersion]CastlightFields{
	CastlightV1: {
		Request:  []string{"type", "description", "amount"},
		Response: []string{"categorisation_method", "category", "low_confidence", "probability", "subcategory"},
	},
	CastlightV2: {
		Request: []string{"transaction_id", "customer_id", "transaction_date", "type", "description", "amount"},
		Response: []string{"transaction_id", "customer_id", "transaction_date", "type", "description",
			"Amount", "label", "Confidence_random_forest", "category_random_forest",
			"subcategory_random_forest", "CR_version", "model_version"},
	},
}
