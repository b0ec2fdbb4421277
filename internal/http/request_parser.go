// Package http provides HTTP server and handler implementations.
//
// This file implements parsing and validation of query parameters and form
// submissions. Forms are decoded into small structs and checked with
// go-playground/validator before they are turned into domain values.

package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"moneta/internal/core"
)

var (
	validate = newValidator()

	moneyPattern = regexp.MustCompile(`^\d{1,12}([.,]\d{1,2})?$`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		return moneyPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("account_kind", func(fl validator.FieldLevel) bool {
		return core.AccountKind(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("tx_kind", func(fl validator.FieldLevel) bool {
		return core.TransactionKind(fl.Field().String()).IsValid()
	})
	return v
}

// ParseMonthParams reads the month from "month=YYYY-MM", or from the
// "year" and numeric "month" pair. Missing or invalid values fall back to
// the month containing now.
func ParseMonthParams(query url.Values, now time.Time) core.YearMonth {
	current := core.CurrentMonth(now)
	raw := strings.TrimSpace(query.Get("month"))
	if raw == "" {
		return current
	}
	if ym, err := core.ParseYearMonth(raw); err == nil {
		return ym
	}

	m, err := strconv.Atoi(raw)
	if err != nil || m < 1 || m > 12 {
		return current
	}
	ym := core.YearMonth{Year: current.Year, Month: m}
	if y, err := strconv.Atoi(strings.TrimSpace(query.Get("year"))); err == nil && y >= 1900 && y < 3000 {
		ym.Year = y
	}
	return ym
}

// ParseFormOrFail parses the request form and returns an error response on failure.
// Returns nil on success.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Invalid request format")
	}
	return nil
}

func formValue(form url.Values, key string) string {
	return sanitizeInput(form.Get(key))
}

// LoginForm is the sign-in form.
type LoginForm struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,min=6,max=72"`
}

func loginFormFrom(form url.Values) LoginForm {
	return LoginForm{
		Email:    formValue(form, "email"),
		Password: form.Get("password"),
	}
}

// SignupForm is the registration form.
type SignupForm struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,min=8,max=72"`
	Confirm  string `validate:"required,eqfield=Password"`
}

func signupFormFrom(form url.Values) SignupForm {
	return SignupForm{
		Email:    formValue(form, "email"),
		Password: form.Get("password"),
		Confirm:  form.Get("confirm"),
	}
}

// AccountForm creates an account.
type AccountForm struct {
	Name     string `validate:"required,max=80"`
	Kind     string `validate:"required,account_kind"`
	Balance  string `validate:"omitempty,money"`
	Currency string `validate:"omitempty,iso4217"`
}

func accountFormFrom(form url.Values) AccountForm {
	return AccountForm{
		Name:     formValue(form, "name"),
		Kind:     formValue(form, "kind"),
		Balance:  formValue(form, "balance"),
		Currency: strings.ToUpper(formValue(form, "currency")),
	}
}

// Account converts a validated form.
func (f AccountForm) Account() (core.Account, error) {
	a := core.Account{
		Name:     f.Name,
		Kind:     core.AccountKind(f.Kind),
		Currency: f.Currency,
	}
	if f.Balance != "" && strings.Trim(f.Balance, "0.,") != "" {
		cents, err := core.ParseDecimalToCents(f.Balance)
		if err != nil {
			return core.Account{}, err
		}
		a.Balance = core.Money{Cents: cents}
	}
	return a, a.Validate()
}

// TransactionForm records a transaction.
type TransactionForm struct {
	AccountID   string `validate:"required,max=64"`
	Kind        string `validate:"required,tx_kind"`
	CategoryID  string `validate:"required_unless=Kind transfer"`
	Description string `validate:"required,max=200"`
	Amount      string `validate:"required,money"`
	Date        string `validate:"required,datetime=2006-01-02"`
}

func transactionFormFrom(form url.Values, now time.Time) TransactionForm {
	f := TransactionForm{
		AccountID:   formValue(form, "account_id"),
		Kind:        formValue(form, "kind"),
		CategoryID:  formValue(form, "category_id"),
		Description: formValue(form, "description"),
		Amount:      formValue(form, "amount"),
		Date:        formValue(form, "date"),
	}
	if f.Date == "" {
		f.Date = now.Format("2006-01-02")
	}
	return f
}

// Transaction converts a validated form.
func (f TransactionForm) Transaction() (core.Transaction, error) {
	cents, err := core.ParseDecimalToCents(f.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := time.Parse("2006-01-02", f.Date)
	if err != nil {
		return core.Transaction{}, core.ErrInvalidDate
	}
	t := core.Transaction{
		AccountID:   f.AccountID,
		Kind:        core.TransactionKind(f.Kind),
		CategoryID:  f.CategoryID,
		Description: f.Description,
		Amount:      core.Money{Cents: cents},
		Date:        date,
	}
	if t.Kind == core.Transfer {
		t.CategoryID = ""
	}
	return t, t.Validate()
}

var fieldLabels = map[string]string{
	"Email":       "Email",
	"Password":    "Password",
	"Confirm":     "Password confirmation",
	"Name":        "Name",
	"Kind":        "Type",
	"Balance":     "Opening balance",
	"Currency":    "Currency",
	"AccountID":   "Account",
	"CategoryID":  "Category",
	"Description": "Description",
	"Amount":      "Amount",
	"Date":        "Date",
}

// validationMessage turns the first validator failure into a sentence for
// the form. Other errors are returned as is.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	label, ok := fieldLabels[fe.Field()]
	if !ok {
		label = fe.Field()
	}
	switch fe.Tag() {
	case "required", "required_unless":
		return label + " is required"
	case "email":
		return "Enter a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	case "eqfield":
		return "Passwords do not match"
	case "money":
		return label + " must be a positive amount like 12.34"
	case "datetime":
		return label + " must be a date (YYYY-MM-DD)"
	default:
		return label + " is not valid"
	}
}
