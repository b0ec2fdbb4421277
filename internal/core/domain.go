package core

import (
	"errors"
	"strings"
	"time"
)

type (
	Money struct {
		Cents int64
	}

	Account struct {
		ID      string
		UserID  string
		Name    string
		Kind    AccountKind
		Balance Money
		// Currency is an ISO 4217 code, EUR when empty.
		Currency  string
		CreatedAt time.Time
	}

	Transaction struct {
		ID          string
		UserID      string
		AccountID   string
		Kind        TransactionKind
		CategoryID  string
		Description string
		Amount      Money
		Date        time.Time
		CreatedAt   time.Time
	}
)

var (
	ErrInvalidMonth       = errors.New("invalid month")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDate        = errors.New("invalid date")
	ErrEmptyDescription   = errors.New("empty description")
	ErrEmptyName          = errors.New("empty name")
	ErrEmptyAccount       = errors.New("empty account")
	ErrInvalidKind        = errors.New("invalid kind")
	ErrUnknownCategory    = errors.New("unknown category")
	ErrCategoryKind       = errors.New("category does not match transaction kind")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if len(a.Name) > 80 {
		return errors.New("name too long (max 80 characters)")
	}
	if !a.Kind.IsValid() {
		return ErrInvalidKind
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if !t.Kind.IsValid() {
		return ErrInvalidKind
	}
	if strings.TrimSpace(t.AccountID) == "" {
		return ErrEmptyAccount
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return ErrDescriptionTooLong
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.Kind == Transfer {
		return nil
	}
	c, ok := LookupCategory(t.CategoryID)
	if !ok {
		return ErrUnknownCategory
	}
	if c.Kind != t.Kind {
		return ErrCategoryKind
	}
	return nil
}

// Signed returns the amount as it affects the account balance.
func (t Transaction) Signed() int64 {
	if t.Kind == Expense {
		return -t.Amount.Cents
	}
	return t.Amount.Cents
}
