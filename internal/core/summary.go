package core

import "sort"

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	Category Category
	Amount   Money
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Month      YearMonth
	Income     Money
	Expenses   Money
	ByCategory []CategoryAmount // expenses only, largest first
	Count      int
}

// Net returns income minus expenses.
func (o MonthOverview) Net() Money {
	return Money{Cents: o.Income.Cents - o.Expenses.Cents}
}

// Summarize builds the overview for ym from the given transactions.
// Transactions outside the month and transfers are ignored.
func Summarize(ym YearMonth, txs []Transaction) MonthOverview {
	ov := MonthOverview{Month: ym}
	start, end := ym.Start(), ym.End()
	byCat := make(map[string]int64)
	for _, t := range txs {
		if t.Date.Before(start) || !t.Date.Before(end) {
			continue
		}
		switch t.Kind {
		case Income:
			ov.Income.Cents += t.Amount.Cents
		case Expense:
			ov.Expenses.Cents += t.Amount.Cents
			byCat[t.CategoryID] += t.Amount.Cents
		default:
			continue
		}
		ov.Count++
	}
	for id, cents := range byCat {
		c, ok := LookupCategory(id)
		if !ok {
			c = Category{ID: id, Label: id, Kind: Expense}
		}
		ov.ByCategory = append(ov.ByCategory, CategoryAmount{Category: c, Amount: Money{Cents: cents}})
	}
	sort.Slice(ov.ByCategory, func(i, j int) bool {
		if ov.ByCategory[i].Amount.Cents != ov.ByCategory[j].Amount.Cents {
			return ov.ByCategory[i].Amount.Cents > ov.ByCategory[j].Amount.Cents
		}
		return ov.ByCategory[i].Category.ID < ov.ByCategory[j].Category.ID
	})
	return ov
}
