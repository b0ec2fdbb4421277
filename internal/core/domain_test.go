package core

import (
	"errors"
	"testing"
	"time"
)

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}

func TestTransactionValidate(t *testing.T) {
	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	good := Transaction{
		AccountID:   "acc-1",
		Kind:        Expense,
		CategoryID:  "food",
		Description: "groceries",
		Amount:      Money{Cents: 1250},
		Date:        day,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	transfer := good
	transfer.Kind = Transfer
	transfer.CategoryID = ""
	if err := transfer.Validate(); err != nil {
		t.Fatalf("transfer without category: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Transaction)
		want   error
	}{
		{"zero date", func(tx *Transaction) { tx.Date = time.Time{} }, ErrInvalidDate},
		{"bad kind", func(tx *Transaction) { tx.Kind = "refund" }, ErrInvalidKind},
		{"no account", func(tx *Transaction) { tx.AccountID = " " }, ErrEmptyAccount},
		{"no description", func(tx *Transaction) { tx.Description = "" }, ErrEmptyDescription},
		{"zero amount", func(tx *Transaction) { tx.Amount = Money{} }, ErrInvalidAmount},
		{"unknown category", func(tx *Transaction) { tx.CategoryID = "nope" }, ErrUnknownCategory},
		{"income category on expense", func(tx *Transaction) { tx.CategoryID = "salary" }, ErrCategoryKind},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := good
			tc.mutate(&tx)
			if err := tx.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestAccountValidate(t *testing.T) {
	if err := (Account{Name: "Main", Kind: Checking}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Account{Name: "", Kind: Checking}).Validate(); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	if err := (Account{Name: "x", Kind: "wallet"}).Validate(); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestYearMonth(t *testing.T) {
	ym, err := ParseYearMonth("2024-05")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ym.Year != 2024 || ym.Month != 5 {
		t.Fatalf("got %+v", ym)
	}
	if ym.String() != "2024-05" {
		t.Fatalf("String() = %q", ym.String())
	}
	if ym.Label() != "May 2024" {
		t.Fatalf("Label() = %q", ym.Label())
	}
	if got := (YearMonth{Year: 2024, Month: 1}).Prev().String(); got != "2023-12" {
		t.Fatalf("Prev() = %q", got)
	}
	if got := (YearMonth{Year: 2024, Month: 12}).Next().String(); got != "2025-01" {
		t.Fatalf("Next() = %q", got)
	}
	if _, err := ParseYearMonth("2024-13"); !errors.Is(err, ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	ym := YearMonth{Year: 2024, Month: 5}
	in := func(d int) time.Time { return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC) }
	txs := []Transaction{
		{Kind: Income, CategoryID: "salary", Amount: Money{Cents: 300000}, Date: in(1)},
		{Kind: Expense, CategoryID: "food", Amount: Money{Cents: 2000}, Date: in(2)},
		{Kind: Expense, CategoryID: "housing", Amount: Money{Cents: 90000}, Date: in(3)},
		{Kind: Expense, CategoryID: "food", Amount: Money{Cents: 3000}, Date: in(4)},
		{Kind: Transfer, Amount: Money{Cents: 5000}, Date: in(5)},
		{Kind: Expense, CategoryID: "food", Amount: Money{Cents: 999}, Date: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
	}
	ov := Summarize(ym, txs)
	if ov.Income.Cents != 300000 {
		t.Errorf("income = %d", ov.Income.Cents)
	}
	if ov.Expenses.Cents != 95000 {
		t.Errorf("expenses = %d", ov.Expenses.Cents)
	}
	if ov.Net().Cents != 205000 {
		t.Errorf("net = %d", ov.Net().Cents)
	}
	if ov.Count != 4 {
		t.Errorf("count = %d", ov.Count)
	}
	if len(ov.ByCategory) != 2 || ov.ByCategory[0].Category.ID != "housing" || ov.ByCategory[1].Amount.Cents != 5000 {
		t.Errorf("by category = %+v", ov.ByCategory)
	}
}

func TestMonthName(t *testing.T) {
	if MonthName(1) != "January" || MonthName(12) != "December" {
		t.Fatal("unexpected month names")
	}
	if MonthName(0) != "" || MonthName(13) != "" {
		t.Fatal("out of range months should be empty")
	}
}
