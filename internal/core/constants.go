package core

import "time"

// TransactionKind tells whether money enters, leaves, or moves between accounts.
type TransactionKind string

const (
	Income   TransactionKind = "income"
	Expense  TransactionKind = "expense"
	Transfer TransactionKind = "transfer"
)

// AccountKind classifies a user account.
type AccountKind string

const (
	Checking   AccountKind = "checking"
	Savings    AccountKind = "savings"
	CreditCard AccountKind = "credit_card"
	Cash       AccountKind = "cash"
	Investment AccountKind = "investment"
)

// Category is a static reference entry shown in pickers and used to group totals.
type Category struct {
	ID    string
	Label string
	Kind  TransactionKind
	Icon  string
	Color string
}

var (
	// ExpenseCategories is the default expense taxonomy offered to new users.
	ExpenseCategories = []Category{
		{ID: "housing", Label: "Housing", Kind: Expense, Icon: "home", Color: "#6366f1"},
		{ID: "food", Label: "Food & Groceries", Kind: Expense, Icon: "shopping-cart", Color: "#f59e0b"},
		{ID: "transport", Label: "Transport", Kind: Expense, Icon: "car", Color: "#0ea5e9"},
		{ID: "utilities", Label: "Utilities", Kind: Expense, Icon: "bolt", Color: "#14b8a6"},
		{ID: "health", Label: "Health", Kind: Expense, Icon: "heart", Color: "#ef4444"},
		{ID: "entertainment", Label: "Entertainment", Kind: Expense, Icon: "film", Color: "#a855f7"},
		{ID: "shopping", Label: "Shopping", Kind: Expense, Icon: "bag", Color: "#ec4899"},
		{ID: "education", Label: "Education", Kind: Expense, Icon: "book", Color: "#22c55e"},
		{ID: "travel", Label: "Travel", Kind: Expense, Icon: "plane", Color: "#3b82f6"},
		{ID: "other_expense", Label: "Other", Kind: Expense, Icon: "dots", Color: "#64748b"},
	}

	// IncomeCategories is the default income taxonomy offered to new users.
	IncomeCategories = []Category{
		{ID: "salary", Label: "Salary", Kind: Income, Icon: "briefcase", Color: "#16a34a"},
		{ID: "freelance", Label: "Freelance", Kind: Income, Icon: "laptop", Color: "#0d9488"},
		{ID: "investments", Label: "Investments", Kind: Income, Icon: "chart", Color: "#2563eb"},
		{ID: "gifts", Label: "Gifts", Kind: Income, Icon: "gift", Color: "#db2777"},
		{ID: "other_income", Label: "Other", Kind: Income, Icon: "dots", Color: "#64748b"},
	}

	// AccountKinds lists every account kind in display order.
	AccountKinds = []AccountKind{Checking, Savings, CreditCard, Cash, Investment}

	// TransactionKinds lists every transaction kind in display order.
	TransactionKinds = []TransactionKind{Expense, Income, Transfer}

	// MonthNames are the English month names indexed from January.
	MonthNames = [12]string{
		"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December",
	}
)

var accountKindLabels = map[AccountKind]string{
	Checking:   "Checking",
	Savings:    "Savings",
	CreditCard: "Credit card",
	Cash:       "Cash",
	Investment: "Investment",
}

// Label returns the human readable account kind.
func (k AccountKind) Label() string {
	if l, ok := accountKindLabels[k]; ok {
		return l
	}
	return string(k)
}

// IsValid reports whether k is a known account kind.
func (k AccountKind) IsValid() bool {
	_, ok := accountKindLabels[k]
	return ok
}

// IsValid reports whether k is a known transaction kind.
func (k TransactionKind) IsValid() bool {
	switch k {
	case Income, Expense, Transfer:
		return true
	default:
		return false
	}
}

// CategoriesFor returns the static categories for a transaction kind.
// Transfers carry no category.
func CategoriesFor(kind TransactionKind) []Category {
	switch kind {
	case Income:
		return IncomeCategories
	case Expense:
		return ExpenseCategories
	default:
		return nil
	}
}

// LookupCategory finds a static category by id.
func LookupCategory(id string) (Category, bool) {
	for _, c := range ExpenseCategories {
		if c.ID == id {
			return c, true
		}
	}
	for _, c := range IncomeCategories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

// MonthName returns the name for a 1-12 month, or "" when out of range.
func MonthName(month int) string {
	if month < 1 || month > 12 {
		return ""
	}
	return MonthNames[month-1]
}

// YearMonth identifies a calendar month.
type YearMonth struct {
	Year  int
	Month int // 1-12
}

// CurrentMonth returns the YearMonth containing t.
func CurrentMonth(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: int(t.Month())}
}

// ParseYearMonth parses the "YYYY-MM" form used in URLs and query keys.
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, ErrInvalidMonth
	}
	return YearMonth{Year: t.Year(), Month: int(t.Month())}, nil
}

// String formats the month as "YYYY-MM".
func (ym YearMonth) String() string {
	return time.Date(ym.Year, time.Month(ym.Month), 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

// Label formats the month as "May 2024".
func (ym YearMonth) Label() string {
	return time.Date(ym.Year, time.Month(ym.Month), 1, 0, 0, 0, 0, time.UTC).Format("January 2006")
}

// Start returns midnight UTC on the first day of the month.
func (ym YearMonth) Start() time.Time {
	return time.Date(ym.Year, time.Month(ym.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End returns midnight UTC on the first day of the following month.
func (ym YearMonth) End() time.Time {
	return ym.Start().AddDate(0, 1, 0)
}

// Prev returns the previous month.
func (ym YearMonth) Prev() YearMonth {
	return CurrentMonth(ym.Start().AddDate(0, -1, 0))
}

// Next returns the following month.
func (ym YearMonth) Next() YearMonth {
	return CurrentMonth(ym.End())
}
