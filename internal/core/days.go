package core

import "sort"

// ActiveDays returns the distinct dates carrying at least one entry or
// expense, newest first.
func ActiveDays(entries []TimeEntry, expenses []Expense) []Date {
	seen := make(map[string]Date)
	for _, e := range entries {
		if !e.Date.IsZero() {
			seen[e.Date.String()] = e.Date
		}
	}
	for _, x := range expenses {
		if !x.Date.IsZero() {
			seen[x.Date.String()] = x.Date
		}
	}

	days := make([]Date, 0, len(seen))
	for _, d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].After(days[j].Time)
	})
	return days
}

// FilterEntriesByDate keeps the entries logged on day.
func FilterEntriesByDate(entries []TimeEntry, day Date) []TimeEntry {
	out := make([]TimeEntry, 0, len(entries))
	for _, e := range entries {
		if e.Date.SameDay(day) {
			out = append(out, e)
		}
	}
	return out
}

// FilterExpensesByDate keeps the expenses dated day.
func FilterExpensesByDate(expenses []Expense, day Date) []Expense {
	out := make([]Expense, 0, len(expenses))
	for _, x := range expenses {
		if x.Date.SameDay(day) {
			out = append(out, x)
		}
	}
	return out
}
