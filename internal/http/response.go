package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"chantier/internal/core"
	"chantier/internal/log"
	"chantier/internal/services"
	"chantier/internal/storage"
)

type (
	siteJSON struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		Address     string `json:"address,omitempty"`
		Description string `json:"description,omitempty"`
		Status      string `json:"status"`
		StartDate   string `json:"start_date,omitempty"`
		CurrentRate string `json:"current_rate"`
	}

	totalsJSON struct {
		TotalMinutes  int    `json:"total_minutes"`
		Hours         string `json:"hours"`
		TotalEarnings string `json:"total_earnings"`
		TotalExpenses string `json:"total_expenses"`
		NetTotal      string `json:"net_total"`
	}

	entryJSON struct {
		ID         int64  `json:"id"`
		Date       string `json:"date"`
		ArrivedAt  string `json:"arrived_at"`
		DepartedAt string `json:"departed_at"`
		HourlyRate string `json:"hourly_rate"`
		Minutes    int    `json:"minutes"`
		Duration   string `json:"duration"`
		Earnings   string `json:"earnings"`
	}

	expenseJSON struct {
		ID          int64  `json:"id"`
		Date        string `json:"date"`
		Description string `json:"description"`
		Base        string `json:"base"`
		Margin      string `json:"margin"`
		Total       string `json:"total"`
		FilePath    string `json:"file_path,omitempty"`
	}

	overviewJSON struct {
		Site   siteJSON   `json:"site"`
		Totals totalsJSON `json:"totals"`
	}

	detailJSON struct {
		Site     siteJSON      `json:"site"`
		Entries  []entryJSON   `json:"entries"`
		Expenses []expenseJSON `json:"expenses"`
		Totals   totalsJSON    `json:"totals"`
	}

	daySummaryJSON struct {
		Site     siteJSON      `json:"site"`
		Date     string        `json:"date"`
		Entries  []entryJSON   `json:"entries"`
		Expenses []expenseJSON `json:"expenses"`
		Totals   totalsJSON    `json:"totals"`
	}

	errorJSON struct {
		Error string `json:"error"`
	}
)

func toSiteJSON(s core.Site) siteJSON {
	out := siteJSON{
		ID:          s.ID,
		Name:        s.Name,
		Address:     s.Address,
		Description: s.Description,
		Status:      string(s.Status),
		CurrentRate: s.CurrentRate.StringFixed(2),
	}
	if !s.StartDate.IsZero() {
		out.StartDate = s.StartDate.String()
	}
	return out
}

func toTotalsJSON(t core.Totals) totalsJSON {
	return totalsJSON{
		TotalMinutes:  t.TotalMinutes,
		Hours:         t.HoursDisplay(),
		TotalEarnings: core.FormatMoney(t.TotalEarnings),
		TotalExpenses: core.FormatMoney(t.TotalExpenses),
		NetTotal:      core.FormatMoney(t.NetTotal),
	}
}

func toEntriesJSON(views []services.EntryView) []entryJSON {
	out := make([]entryJSON, 0, len(views))
	for _, v := range views {
		out = append(out, entryJSON{
			ID:         v.Entry.ID,
			Date:       v.Entry.Date.String(),
			ArrivedAt:  v.Entry.ArrivedAt.String(),
			DepartedAt: v.Entry.DepartedAt.String(),
			HourlyRate: v.Entry.HourlyRate.StringFixed(2),
			Minutes:    v.Breakdown.Minutes,
			Duration:   v.Breakdown.DurationDisplay(),
			Earnings:   core.FormatMoney(v.Breakdown.Earnings),
		})
	}
	return out
}

func toExpensesJSON(views []services.ExpenseView) []expenseJSON {
	out := make([]expenseJSON, 0, len(views))
	for _, v := range views {
		out = append(out, expenseJSON{
			ID:          v.Expense.ID,
			Date:        v.Expense.Date.String(),
			Description: v.Expense.Description,
			Base:        core.FormatMoney(v.Breakdown.Base),
			Margin:      core.FormatPercent(v.Breakdown.MarginPercent),
			Total:       core.FormatMoney(v.Breakdown.Total),
			FilePath:    v.Expense.FilePath,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var verr *services.ValidationError
	switch {
	case errors.Is(err, core.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &verr), errors.Is(err, core.ErrInvalidDate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrExportUnavailable),
		errors.Is(err, services.ErrQueueUnavailable),
		errors.Is(err, services.ErrFilesUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": ...}. Internal failures are logged
// and hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldError, err,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorJSON{Error: msg})
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorJSON{Error: err.Error()})
}
