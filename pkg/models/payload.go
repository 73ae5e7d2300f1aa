package models

// Request bodies of the vendor endpoints. Each entity has exactly one mapping
// onto its wire shape; amounts leave the decimal domain only here.

type AccountPayload struct {
	ExternalID      string            `json:"externalId"`
	AvailableCredit float64           `json:"availableCredit"`
	Balance         float64           `json:"balance"`
	Name            string            `json:"name"`
	Type            string            `json:"type"`
	Flags           []string          `json:"flags"`
	Number          string            `json:"number"`
	ReservedAmount  float64           `json:"reservedAmount"`
	Payload         map[string]string `json:"payload"`
}

func (a *Account) APIPayload() AccountPayload {
	return AccountPayload{
		ExternalID:      a.ExternalID,
		AvailableCredit: a.AvailableCredit.InexactFloat64(),
		Balance:         a.Balance.InexactFloat64(),
		Name:            a.Name,
		Type:            a.Type,
		Flags:           a.Flags,
		Number:          a.Number,
		ReservedAmount:  a.ReservedAmount.InexactFloat64(),
		Payload:         a.Payload,
	}
}

type AccountsRequest struct {
	Accounts []AccountPayload `json:"accounts"`
}

// NewAccountsRequest maps the accounts of one user onto an ingest request.
func NewAccountsRequest(accounts []*Account) AccountsRequest {
	req := AccountsRequest{Accounts: make([]AccountPayload, 0, len(accounts))}
	for _, a := range accounts {
		req.Accounts = append(req.Accounts, a.APIPayload())
	}
	return req
}

type TransactionPayload struct {
	Amount      float64           `json:"amount"`
	Date        int64             `json:"date"`
	Description string            `json:"description"`
	ExternalID  string            `json:"externalId"`
	Payload     map[string]string `json:"payload"`
	Pending     bool              `json:"pending"`
	TinkID      string            `json:"tinkId,omitempty"`
	Type        string            `json:"type"`
}

func (t *Transaction) APIPayload() TransactionPayload {
	return TransactionPayload{
		Amount:      t.Amount.InexactFloat64(),
		Date:        t.Date,
		Description: t.Description,
		ExternalID:  t.ExternalID,
		Payload:     t.Payload,
		Pending:     t.Pending,
		TinkID:      t.TinkID,
		Type:        t.Type,
	}
}

type TransactionAccount struct {
	ExternalID   string               `json:"externalId"`
	Balance      float64              `json:"balance"`
	Transactions []TransactionPayload `json:"transactions"`
}

type TransactionsRequest struct {
	Type     string               `json:"type"`
	Accounts []TransactionAccount `json:"accounts"`
}

// NewTransactionsRequest groups the transactions of one user by account, in
// first-seen account order. Balances are taken from accounts when known.
func NewTransactionsRequest(trxs []*Transaction, accounts []*Account) TransactionsRequest {
	balances := make(map[string]float64, len(accounts))
	for _, a := range accounts {
		balances[a.ExternalID] = a.Balance.InexactFloat64()
	}

	req := TransactionsRequest{Type: "BATCH"}
	index := make(map[string]int)
	for _, t := range trxs {
		i, ok := index[t.AccountExternalID]
		if !ok {
			i = len(req.Accounts)
			index[t.AccountExternalID] = i
			req.Accounts = append(req.Accounts, TransactionAccount{
				ExternalID: t.AccountExternalID,
				Balance:    balances[t.AccountExternalID],
			})
		}
		req.Accounts[i].Transactions = append(req.Accounts[i].Transactions, t.APIPayload())
	}
	return req
}
