package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"moneta/internal/core"
)

const dateLayout = "2006-01-02"

type accountRow struct {
	ID        string          `json:"id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Name      string          `json:"name"`
	Kind      string          `json:"kind"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency,omitempty"`
	CreatedAt *time.Time      `json:"created_at,omitempty"`
}

type transactionRow struct {
	ID          string          `json:"id,omitempty"`
	UserID      string          `json:"user_id,omitempty"`
	AccountID   string          `json:"account_id"`
	Kind        string          `json:"kind"`
	CategoryID  string          `json:"category_id,omitempty"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	CreatedAt   *time.Time      `json:"created_at,omitempty"`
}

func toCents(d decimal.Decimal) core.Money {
	return core.Money{Cents: d.Shift(2).Round(0).IntPart()}
}

func (r accountRow) account() core.Account {
	a := core.Account{
		ID:       r.ID,
		UserID:   r.UserID,
		Name:     r.Name,
		Kind:     core.AccountKind(r.Kind),
		Balance:  toCents(r.Balance),
		Currency: r.Currency,
	}
	if a.Currency == "" {
		a.Currency = "EUR"
	}
	if r.CreatedAt != nil {
		a.CreatedAt = *r.CreatedAt
	}
	return a
}

func (r transactionRow) transaction() (core.Transaction, error) {
	d, err := time.Parse(dateLayout, r.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", r.ID, core.ErrInvalidDate)
	}
	t := core.Transaction{
		ID:          r.ID,
		UserID:      r.UserID,
		AccountID:   r.AccountID,
		Kind:        core.TransactionKind(r.Kind),
		CategoryID:  r.CategoryID,
		Description: r.Description,
		Amount:      toCents(r.Amount),
		Date:        d,
	}
	if r.CreatedAt != nil {
		t.CreatedAt = *r.CreatedAt
	}
	return t, nil
}

func returnRepresentation() http.Header {
	return http.Header{"Prefer": {"return=representation"}}
}

// ListAccounts returns the user's accounts, oldest first.
func (c *Client) ListAccounts(ctx context.Context, token string) ([]core.Account, error) {
	var rows []accountRow
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   restPath + "/accounts",
		query:  url.Values{"select": {"*"}, "order": {"created_at.asc"}},
		token:  token,
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]core.Account, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.account())
	}
	return out, nil
}

// CreateAccount validates and inserts a, returning the stored row.
func (c *Client) CreateAccount(ctx context.Context, token string, a core.Account) (core.Account, error) {
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	var rows []accountRow
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   restPath + "/accounts",
		token:  token,
		header: returnRepresentation(),
		body: accountRow{
			Name:     a.Name,
			Kind:     string(a.Kind),
			Balance:  a.Balance.Decimal(),
			Currency: a.Currency,
		},
	}, &rows)
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	if len(rows) == 0 {
		return core.Account{}, fmt.Errorf("create account: empty response")
	}
	return rows[0].account(), nil
}

// ListTransactions returns the transactions dated within ym, newest first.
func (c *Client) ListTransactions(ctx context.Context, token string, ym core.YearMonth) ([]core.Transaction, error) {
	q := url.Values{
		"select": {"*"},
		"order":  {"date.desc,created_at.desc"},
	}
	q.Add("date", "gte."+ym.Start().Format(dateLayout))
	q.Add("date", "lt."+ym.End().Format(dateLayout))

	var rows []transactionRow
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   restPath + "/transactions",
		query:  q,
		token:  token,
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("list transactions %s: %w", ym, err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, r := range rows {
		t, err := r.transaction()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// CreateTransaction validates and inserts t, returning the stored row.
func (c *Client) CreateTransaction(ctx context.Context, token string, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	var rows []transactionRow
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   restPath + "/transactions",
		token:  token,
		header: returnRepresentation(),
		body: transactionRow{
			AccountID:   t.AccountID,
			Kind:        string(t.Kind),
			CategoryID:  t.CategoryID,
			Description: t.Description,
			Amount:      t.Amount.Decimal(),
			Date:        t.Date.Format(dateLayout),
		},
	}, &rows)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	if len(rows) == 0 {
		return core.Transaction{}, fmt.Errorf("create transaction: empty response")
	}
	return rows[0].transaction()
}

// DeleteTransaction removes the transaction with id. It returns ErrNotFound
// when no row matched.
func (c *Client) DeleteTransaction(ctx context.Context, token, id string) error {
	var rows []transactionRow
	err := c.do(ctx, request{
		method: http.MethodDelete,
		path:   restPath + "/transactions",
		query:  url.Values{"id": {"eq." + id}},
		token:  token,
		header: returnRepresentation(),
	}, &rows)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("delete transaction %s: %w", id, ErrNotFound)
	}
	return nil
}

// MonthOverview aggregates the month's transactions.
func (c *Client) MonthOverview(ctx context.Context, token string, ym core.YearMonth) (core.MonthOverview, error) {
	txs, err := c.ListTransactions(ctx, token, ym)
	if err != nil {
		return core.MonthOverview{}, err
	}
	return core.Summarize(ym, txs), nil
}
