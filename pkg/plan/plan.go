// Package plan reads YAML run plans: which files feed each entity kind and
// which actions run against them, in order.
package plan

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/yurifrl/categorisation/pkg/catalog"
	"github.com/yurifrl/categorisation/pkg/records"
)

const (
	ActionTestConnectivity   = "test-connectivity"
	ActionAuthorizeClient    = "authorize-client"
	ActionListCategories     = "list-categories"
	ActionActivateUsers      = "activate-users"
	ActionDeleteUsers        = "delete-users"
	ActionDeleteUser         = "delete-user"
	ActionUserExists         = "user-exists"
	ActionGetUser            = "get-user"
	ActionIngestAccounts     = "ingest-accounts"
	ActionListAccounts       = "list-accounts"
	ActionIngestTransactions = "ingest-transactions"
	ActionProcess            = "process"
	ActionCategorise         = "categorise"
)

// Actions lists every action a step may name.
var Actions = []string{
	ActionTestConnectivity, ActionAuthorizeClient, ActionListCategories,
	ActionActivateUsers, ActionDeleteUsers, ActionDeleteUser, ActionUserExists,
	ActionGetUser, ActionIngestAccounts, ActionListAccounts, ActionIngestTransactions,
	ActionProcess, ActionCategorise,
}

type Sources struct {
	Users        string `yaml:"users"`
	Accounts     string `yaml:"accounts"`
	Transactions string `yaml:"transactions"`
}

type Step struct {
	Action string `yaml:"action"`
	// User is the external user id for single-user actions.
	User   string `yaml:"user,omitempty"`
	Scope  string `yaml:"scope,omitempty"`
	Locale string `yaml:"locale,omitempty"`
	Input  string `yaml:"input,omitempty"`
	Output string `yaml:"output,omitempty"`
}

type Plan struct {
	Sources Sources `yaml:"sources"`
	Steps   []Step  `yaml:"steps"`
}

func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that every step names a known action with its arguments.
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	for i, st := range p.Steps {
		if !slices.Contains(Actions, st.Action) {
			return fmt.Errorf("step %d: unknown action %q", i+1, st.Action)
		}
		switch st.Action {
		case ActionDeleteUser, ActionUserExists, ActionGetUser, ActionListAccounts:
			if st.User == "" {
				return fmt.Errorf("step %d: %s needs a user", i+1, st.Action)
			}
		case ActionCategorise:
			if st.Input == "" || st.Output == "" {
				return fmt.Errorf("step %d: %s needs input and output", i+1, st.Action)
			}
		}
		if kind, ok := needs(st.Action); ok && p.path(kind) == "" {
			return fmt.Errorf("step %d: %s needs a %s source", i+1, st.Action, kind)
		}
	}
	return nil
}

func needs(action string) (catalog.Kind, bool) {
	switch action {
	case ActionActivateUsers, ActionDeleteUsers, ActionProcess:
		return catalog.UserEntity, true
	case ActionIngestAccounts:
		return catalog.AccountEntity, true
	case ActionIngestTransactions:
		return catalog.TransactionEntity, true
	}
	return "", false
}

func (p *Plan) path(kind catalog.Kind) string {
	switch kind {
	case catalog.UserEntity:
		return p.Sources.Users
	case catalog.AccountEntity:
		return p.Sources.Accounts
	case catalog.TransactionEntity:
		return p.Sources.Transactions
	}
	return ""
}

// Source binds the plan's files to a record source.
func (p *Plan) Source(delimiter rune) *records.FileSource {
	src := records.NewFileSource(delimiter)
	for _, kind := range catalog.Kinds {
		src.Bind(kind, p.path(kind))
	}
	return src
}

func (p *Plan) Print() {
	fmt.Printf("users: %s\naccounts: %s\ntransactions: %s\n", p.Sources.Users, p.Sources.Accounts, p.Sources.Transactions)
	for i, st := range p.Steps {
		fmt.Printf("[%d] %s\n", i+1, st)
	}
}

func (s Step) String() string {
	out := s.Action
	for _, kv := range [][2]string{{"user", s.User}, {"scope", s.Scope}, {"locale", s.Locale}, {"input", s.Input}, {"output", s.Output}} {
		if kv[1] != "" {
			out += fmt.Sprintf(" %s=%s", kv[0], kv[1])
		}
	}
	return out
}
