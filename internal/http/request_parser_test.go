package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"moneta/internal/core"
)

func TestParseMonthParams(t *testing.T) {
	now := time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC)
	current := core.YearMonth{Year: 2024, Month: 5}

	tests := []struct {
		name  string
		query url.Values
		want  core.YearMonth
	}{
		{"empty uses current", url.Values{}, current},
		{"year-month form", url.Values{"month": {"2023-11"}}, core.YearMonth{Year: 2023, Month: 11}},
		{"numeric month and year", url.Values{"year": {"2022"}, "month": {"2"}}, core.YearMonth{Year: 2022, Month: 2}},
		{"numeric month only", url.Values{"month": {"9"}}, core.YearMonth{Year: 2024, Month: 9}},
		{"month out of range", url.Values{"month": {"13"}}, current},
		{"garbage", url.Values{"month": {"abc"}}, current},
		{"bad year ignored", url.Values{"year": {"99999"}, "month": {"3"}}, core.YearMonth{Year: 2024, Month: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseMonthParams(tt.query, now); got != tt.want {
				t.Errorf("ParseMonthParams() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseFormOrFail(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/accounts", strings.NewReader("name=Main"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if resp := ParseFormOrFail(req); resp != nil {
		t.Fatal("valid form rejected")
	}

	bad := httptest.NewRequest(http.MethodPost, "/accounts?%zz", nil)
	if resp := ParseFormOrFail(bad); resp == nil {
		t.Fatal("malformed query accepted")
	}
}

func TestLoginFormValidation(t *testing.T) {
	tests := []struct {
		name    string
		form    url.Values
		wantMsg string
	}{
		{"valid", url.Values{"email": {" a@b.it "}, "password": {"secret1"}}, ""},
		{"missing email", url.Values{"password": {"secret1"}}, "Email is required"},
		{"bad email", url.Values{"email": {"nope"}, "password": {"secret1"}}, "Enter a valid email address"},
		{"short password", url.Values{"email": {"a@b.it"}, "password": {"123"}}, "Password must be at least 6 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(loginFormFrom(tt.form))
			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if got := validationMessage(err); got != tt.wantMsg {
				t.Errorf("message = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestSignupFormPasswordsMustMatch(t *testing.T) {
	f := signupFormFrom(url.Values{"email": {"a@b.it"}, "password": {"longenough"}, "confirm": {"different1"}})
	err := validate.Struct(f)
	if err == nil {
		t.Fatal("expected mismatch error")
	}
	if got := validationMessage(err); got != "Passwords do not match" {
		t.Errorf("message = %q", got)
	}
}

func TestAccountForm(t *testing.T) {
	f := accountFormFrom(url.Values{"name": {"Main"}, "kind": {"checking"}, "balance": {"1.234,5"}})
	if err := validate.Struct(f); err == nil {
		t.Fatal("thousands separator accepted")
	}

	f = accountFormFrom(url.Values{"name": {"Main"}, "kind": {"checking"}, "balance": {"150,25"}, "currency": {"eur"}})
	if err := validate.Struct(f); err != nil {
		t.Fatalf("validate: %v", err)
	}
	a, err := f.Account()
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if a.Balance.Cents != 15025 || a.Currency != "EUR" || a.Kind != core.Checking {
		t.Errorf("account = %+v", a)
	}

	f = accountFormFrom(url.Values{"name": {"Wallet"}, "kind": {"cash"}, "balance": {"0"}})
	a, err = f.Account()
	if err != nil || a.Balance.Cents != 0 {
		t.Errorf("zero balance: %+v, %v", a, err)
	}

	f = accountFormFrom(url.Values{"name": {"Main"}, "kind": {"piggy"}})
	if got := validationMessage(validate.Struct(f)); got != "Type is not valid" {
		t.Errorf("message = %q", got)
	}
}

func TestTransactionForm(t *testing.T) {
	now := time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		form    url.Values
		wantMsg string
		check   func(t *testing.T, tx core.Transaction)
	}{
		{
			name: "expense defaults date to today",
			form: url.Values{"account_id": {"acc-1"}, "kind": {"expense"}, "category_id": {"food"}, "description": {"Groceries"}, "amount": {"12,34"}},
			check: func(t *testing.T, tx core.Transaction) {
				if tx.Amount.Cents != 1234 || !tx.Date.Equal(time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC)) {
					t.Errorf("tx = %+v", tx)
				}
			},
		},
		{
			name: "transfer needs no category",
			form: url.Values{"account_id": {"acc-1"}, "kind": {"transfer"}, "category_id": {"food"}, "description": {"To savings"}, "amount": {"100"}, "date": {"2024-05-01"}},
			check: func(t *testing.T, tx core.Transaction) {
				if tx.CategoryID != "" {
					t.Errorf("CategoryID = %q", tx.CategoryID)
				}
			},
		},
		{
			name:    "expense requires category",
			form:    url.Values{"account_id": {"acc-1"}, "kind": {"expense"}, "description": {"x"}, "amount": {"1"}},
			wantMsg: "Category is required",
		},
		{
			name:    "negative amount",
			form:    url.Values{"account_id": {"acc-1"}, "kind": {"expense"}, "category_id": {"food"}, "description": {"x"}, "amount": {"-5"}},
			wantMsg: "Amount must be a positive amount like 12.34",
		},
		{
			name:    "bad date",
			form:    url.Values{"account_id": {"acc-1"}, "kind": {"income"}, "category_id": {"salary"}, "description": {"x"}, "amount": {"5"}, "date": {"17/05/2024"}},
			wantMsg: "Date must be a date (YYYY-MM-DD)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := transactionFormFrom(tt.form, now)
			err := validate.Struct(f)
			if tt.wantMsg != "" {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if got := validationMessage(err); got != tt.wantMsg {
					t.Errorf("message = %q, want %q", got, tt.wantMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			tx, err := f.Transaction()
			if err != nil {
				t.Fatalf("Transaction: %v", err)
			}
			tt.check(t, tx)
		})
	}
}

func TestCategoryMismatchCaughtByDomain(t *testing.T) {
	f := transactionFormFrom(url.Values{"account_id": {"a"}, "kind": {"income"}, "category_id": {"food"}, "description": {"x"}, "amount": {"5"}}, time.Now())
	if err := validate.Struct(f); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, err := f.Transaction(); err != core.ErrCategoryKind {
		t.Errorf("err = %v, want ErrCategoryKind", err)
	}
}

func TestLocalReferer(t *testing.T) {
	tests := []struct {
		referer string
		want    string
	}{
		{"", "/dashboard"},
		{"http://example.com/transactions?month=2024-05", "/transactions?month=2024-05"},
		{"http://evil.test/phish", "/dashboard"},
		{"/accounts", "/accounts"},
		{"//evil.test/x", "/dashboard"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodPost, "http://example.com/theme", nil)
		if tt.referer != "" {
			r.Header.Set("Referer", tt.referer)
		}
		if got := localReferer(r, "/dashboard"); got != tt.want {
			t.Errorf("localReferer(%q) = %q, want %q", tt.referer, got, tt.want)
		}
	}
}
