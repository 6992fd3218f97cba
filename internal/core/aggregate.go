package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const minutesPerDay = 24 * 60

var sixty = decimal.NewFromInt(60)

type (
	// Totals is the roll-up of a set of entries and expenses, either for a
	// whole site or for a single day.
	Totals struct {
		TotalMinutes  int
		TotalEarnings decimal.Decimal
		TotalExpenses decimal.Decimal
		// NetTotal is earnings plus marked-up expenses. Expenses are billed
		// on top of the hours worked, so they are added, not subtracted.
		NetTotal decimal.Decimal
	}

	EntryBreakdown struct {
		Minutes  int
		Earnings decimal.Decimal
	}

	ExpenseBreakdown struct {
		Base          decimal.Decimal
		MarginPercent decimal.Decimal
		Total         decimal.Decimal
	}
)

// Duration returns the worked minutes between arrival and departure.
// A departure earlier than the arrival crosses midnight; equal times are a
// zero-length shift. Absent times yield 0. The result is in [0, 1439].
func Duration(arrival, departure TimeOfDay) int {
	if !arrival.Valid() || !departure.Valid() {
		return 0
	}
	minutes := departure.Minutes() - arrival.Minutes()
	if minutes < 0 {
		minutes += minutesPerDay
	}
	return minutes
}

// Earnings is the entry duration in hours times the rate stored on the
// entry itself. The value is not rounded.
func Earnings(e TimeEntry) decimal.Decimal {
	minutes := decimal.NewFromInt(int64(Duration(e.ArrivedAt, e.DepartedAt)))
	return minutes.Mul(e.HourlyRate).Div(sixty)
}

// ExpenseBase is the base amount, falling back to the legacy flat amount
// when no base amount was recorded. The two are never summed.
func ExpenseBase(x Expense) decimal.Decimal {
	switch {
	case x.BaseAmount.Valid:
		return x.BaseAmount.Decimal
	case x.Amount.Valid:
		return x.Amount.Decimal
	default:
		return decimal.Zero
	}
}

// ExpenseMargin is the margin percent, 0 when absent.
func ExpenseMargin(x Expense) decimal.Decimal {
	if !x.Margin.Valid {
		return decimal.Zero
	}
	return x.Margin.Decimal
}

// ExpenseTotal is base * (1 + margin/100), unrounded.
func ExpenseTotal(x Expense) decimal.Decimal {
	return ExpenseBase(x).Mul(hundred.Add(ExpenseMargin(x))).Div(hundred)
}

// Aggregate rolls entries and expenses up into totals. It is date-agnostic:
// pass pre-filtered records for a daily view. Decimal addition is exact, so
// the result does not depend on input order.
func Aggregate(entries []TimeEntry, expenses []Expense) Totals {
	t := Totals{
		TotalEarnings: decimal.Zero,
		TotalExpenses: decimal.Zero,
	}
	for _, e := range entries {
		t.TotalMinutes += Duration(e.ArrivedAt, e.DepartedAt)
		t.TotalEarnings = t.TotalEarnings.Add(Earnings(e))
	}
	for _, x := range expenses {
		t.TotalExpenses = t.TotalExpenses.Add(ExpenseTotal(x))
	}
	t.NetTotal = t.TotalEarnings.Add(t.TotalExpenses)
	return t
}

// ComputeTotals is Aggregate under the name used by the presentation layer.
func ComputeTotals(entries []TimeEntry, expenses []Expense) Totals {
	return Aggregate(entries, expenses)
}

func ComputeEntryBreakdown(e TimeEntry) EntryBreakdown {
	return EntryBreakdown{
		Minutes:  Duration(e.ArrivedAt, e.DepartedAt),
		Earnings: Earnings(e),
	}
}

func ComputeExpenseBreakdown(x Expense) ExpenseBreakdown {
	return ExpenseBreakdown{
		Base:          ExpenseBase(x),
		MarginPercent: ExpenseMargin(x),
		Total:         ExpenseTotal(x),
	}
}

// FormatDuration renders minutes as "{h}h {m}m".
func FormatDuration(minutes int) string {
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// HoursDisplay renders the total worked time, e.g. "8h 30m".
func (t Totals) HoursDisplay() string {
	return FormatDuration(t.TotalMinutes)
}

func (b EntryBreakdown) DurationDisplay() string {
	return FormatDuration(b.Minutes)
}
