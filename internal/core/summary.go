package core

import (
	"sort"
	"unicode/utf16"

	"github.com/shopspring/decimal"
)

// TransactionSummary is the headline view of a transaction list.
type TransactionSummary struct {
	TotalIncome      decimal.Decimal `json:"total_income"`
	TotalExpenses    decimal.Decimal `json:"total_expenses"`
	Balance          decimal.Decimal `json:"balance"`
	TransactionCount int             `json:"transaction_count"`
}

// CategorySummary is one slice of the category breakdown.
type CategorySummary struct {
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage float64         `json:"percentage"`
	Color      string          `json:"color"`
}

// MonthTotals holds income and expense sums for one YYYY-MM bucket.
type MonthTotals struct {
	Month    string          `json:"month"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
}

// Palette is the fixed, ordered set of category colors. CategoryColor
// indexes into it, so reordering it changes every category's color.
var Palette = [...]string{
	"#ff6b6b", "#4ecdc4", "#45b7d1", "#96ceb4", "#feca57",
	"#ff9ff3", "#54a0ff", "#5f27cd", "#00d2d3", "#ff9f43",
	"#ee5a24", "#0984e3", "#00b894", "#6c5ce7", "#a29bfe",
	"#fd79a8", "#fdcb6e", "#636e72",
}

var hundred = decimal.NewFromInt(100)

// Summarize totals income and expenses by transaction type.
func Summarize(txs []Transaction) TransactionSummary {
	income := decimal.Zero
	expenses := decimal.Zero
	for _, tx := range txs {
		switch tx.Type {
		case Income:
			income = income.Add(tx.Amount)
		case Expense:
			expenses = expenses.Add(tx.Amount)
		}
	}
	return TransactionSummary{
		TotalIncome:      income,
		TotalExpenses:    expenses,
		Balance:          income.Sub(expenses),
		TransactionCount: len(txs),
	}
}

// Categorize groups amounts by category label in first-seen order.
//
// Percentages are relative to the sum over all categories. When that sum is
// not positive every category reports 0%.
func Categorize(txs []Transaction) []CategorySummary {
	order := make([]string, 0)
	sums := make(map[string]decimal.Decimal)
	for _, tx := range txs {
		cur, seen := sums[tx.Category]
		if !seen {
			order = append(order, tx.Category)
		}
		sums[tx.Category] = cur.Add(tx.Amount)
	}

	total := decimal.Zero
	for _, name := range order {
		total = total.Add(sums[name])
	}

	out := make([]CategorySummary, 0, len(order))
	for _, name := range order {
		amount := sums[name]
		pct := 0.0
		if total.IsPositive() {
			pct = amount.Div(total).Mul(hundred).InexactFloat64()
		}
		out = append(out, CategorySummary{
			Category:   name,
			Amount:     amount,
			Percentage: pct,
			Color:      CategoryColor(name),
		})
	}
	return out
}

// CategoryColor maps a label to a palette entry: the sum of its UTF-16 code
// units modulo the palette size. Characters outside the BMP count as their
// surrogate pair, so labels keep the color other clients give them.
func CategoryColor(category string) string {
	sum := 0
	for _, u := range utf16.Encode([]rune(category)) {
		sum += int(u)
	}
	return Palette[sum%len(Palette)]
}

// TopCategories keeps the first n entries. n <= 0 keeps everything.
func TopCategories(cats []CategorySummary, n int) []CategorySummary {
	if n <= 0 || n >= len(cats) {
		return cats
	}
	return cats[:n]
}

// FilterByType returns the transactions of type t. The empty type matches
// everything.
func FilterByType(txs []Transaction, t TransactionType) []Transaction {
	if t == "" {
		return txs
	}
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Type == t {
			out = append(out, tx)
		}
	}
	return out
}

// SortByDateDesc returns a copy ordered newest first. Ties keep their
// original order.
func SortByDateDesc(txs []Transaction) []Transaction {
	out := append([]Transaction(nil), txs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date.Time)
	})
	return out
}

// Latest returns the n newest transactions.
func Latest(txs []Transaction, n int) []Transaction {
	sorted := SortByDateDesc(txs)
	if n <= 0 || n >= len(sorted) {
		return sorted
	}
	return sorted[:n]
}

// Monthly buckets income and expenses per calendar month, oldest first.
// lastN > 0 keeps only the most recent lastN months.
func Monthly(txs []Transaction, lastN int) []MonthTotals {
	buckets := make(map[string]*MonthTotals)
	for _, tx := range txs {
		if tx.Date.IsZero() {
			continue
		}
		key := tx.Date.MonthKey()
		b, ok := buckets[key]
		if !ok {
			b = &MonthTotals{Month: key}
			buckets[key] = b
		}
		switch tx.Type {
		case Income:
			b.Income = b.Income.Add(tx.Amount)
		case Expense:
			b.Expenses = b.Expenses.Add(tx.Amount)
		}
	}

	out := make([]MonthTotals, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })

	if lastN > 0 && len(out) > lastN {
		out = out[len(out)-lastN:]
	}
	return out
}

// AverageExpense is the mean amount over expense transactions.
func AverageExpense(txs []Transaction) decimal.Decimal {
	expenses := FilterByType(txs, Expense)
	if len(expenses) == 0 {
		return decimal.Zero
	}
	return Summarize(expenses).TotalExpenses.Div(decimal.NewFromInt(int64(len(expenses))))
}
