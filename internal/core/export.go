package core

// Header rows of the two export sections.
var (
	TimeSectionHeader    = []string{"Date", "Arrival", "Departure", "Duration", "Hourly rate", "Earnings"}
	ExpenseSectionHeader = []string{"Date", "Description", "Base amount", "Margin", "Total"}
)

// ExportRows flattens entries and expenses into spreadsheet rows: the time
// section, one blank separator row, then the expense section. Per-entry
// figures come from the same breakdowns the live views use, so both paths
// agree to the cent.
func ExportRows(entries []TimeEntry, expenses []Expense) [][]string {
	rows := make([][]string, 0, len(entries)+len(expenses)+3)
	rows = append(rows, append([]string(nil), TimeSectionHeader...))
	for _, e := range entries {
		b := ComputeEntryBreakdown(e)
		rows = append(rows, []string{
			e.Date.String(),
			e.ArrivedAt.String(),
			e.DepartedAt.String(),
			b.DurationDisplay(),
			e.HourlyRate.StringFixed(2),
			b.Earnings.StringFixed(2),
		})
	}

	rows = append(rows, []string{})

	rows = append(rows, append([]string(nil), ExpenseSectionHeader...))
	for _, x := range expenses {
		b := ComputeExpenseBreakdown(x)
		rows = append(rows, []string{
			x.Date.String(),
			x.Description,
			b.Base.StringFixed(2),
			FormatPercent(b.MarginPercent),
			b.Total.StringFixed(2),
		})
	}
	return rows
}
