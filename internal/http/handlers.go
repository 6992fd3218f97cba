package http

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"path"
	"time"

	"chantier/internal/core"
	"chantier/internal/log"
	"chantier/internal/services"
)

// maxUploadBytes caps expense attachments.
const maxUploadBytes = 10 << 20

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

// handleReady probes every registered dependency.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any, len(s.checks)+1)

	for name, c := range s.checks {
		if err := c.Ping(ctx); err != nil {
			checks[name] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	if s.limiter != nil {
		checks["rate_limiter"] = map[string]any{
			"active_clients": s.limiter.ActiveClients(),
			"status":         "ok",
		}
	}
	if s.ipLimiter != nil {
		checks["ip_rate_limiter"] = map[string]any{
			"active_clients": s.ipLimiter.ActiveClients(),
			"status":         "ok",
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"requests":  s.tracer.TotalRequests(),
		"checks":    checks,
	})
}

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	overviews, err := s.svc.Overviews(r.Context(), sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]overviewJSON, 0, len(overviews))
	for _, o := range overviews {
		out = append(out, overviewJSON{Site: toSiteJSON(o.Site), Totals: toTotalsJSON(o.Totals)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		badRequest(w, err)
		return
	}

	site := core.Site{
		Name:        p.Get("name"),
		Address:     p.Get("address"),
		Description: p.Get("description"),
		Status:      core.SiteStatus(p.Get("status")),
		CurrentRate: core.ParseAmount(p.Get("current_rate")),
	}
	if v := p.Get("start_date"); v != "" {
		if site.StartDate, err = core.ParseDate(v); err != nil {
			writeError(w, r, err)
			return
		}
	}

	created, err := s.svc.CreateSite(r.Context(), sess, site)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Site created",
		log.FieldOwnerID, sess.OwnerID, log.FieldSiteID, created.ID)
	writeJSON(w, http.StatusCreated, toSiteJSON(created))
}

func (s *Server) handleSiteDetail(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := s.siteRequest(w, r)
	if !ok {
		return
	}
	d, err := s.svc.Detail(r.Context(), sess, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detailJSON{
		Site:     toSiteJSON(d.Site),
		Entries:  toEntriesJSON(d.Entries),
		Expenses: toExpensesJSON(d.Expenses),
		Totals:   toTotalsJSON(d.Totals),
	})
}

func (s *Server) handleDeleteSite(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := s.siteRequest(w, r)
	if !ok {
		return
	}
	if err := s.svc.DeleteSite(r.Context(), sess, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetRate(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := s.siteRequest(w, r)
	if !ok {
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		badRequest(w, err)
		return
	}
	if err := s.svc.SetRate(r.Context(), sess, id, core.ParseAmount(p.Get("rate"))); err != nil {
		writeError(w, r, err)
		return
	}
	site, err := s.svc.Site(r.Context(), sess, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSiteJSON(site))
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := s.siteRequest(w, r)
	if !ok {
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		badRequest(w, err)
		return
	}
	date, err := core.ParseDate(p.Get("date"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.svc.LogTime(r.Context(), sess, id, date,
		core.ParseTimeOfDay(p.Get("arrived_at")),
		core.ParseTimeOfDay(p.Get("departed_at")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntriesJSON([]services.EntryView{{Entry: e, Breakdown: core.ComputeEntryBreakdown(e)}})[0])
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := s.siteRequest(w, r)
	if !ok {
		return
	}
	entryID, err := pathID(r, "entryID")
	if err != nil {
		badRequest(w, err)
		return
	}
	if err := s.svc.DeleteTimeEntry(r.Context(), sess, id, entryID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := s.siteRequest(w, r)
	if !ok {
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		badRequest(w, err)
		return
	}
	date, err := core.ParseDate(p.Get("date"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	x, err := s.svc.AddExpense(r.Context(), sess, id, core.Expense{
		Date:        date,
		Description: p.Get("description"),
		BaseAmount:  core.ParseOptionalAmount(p.Get("base_amount")),
		Amount:      core.ParseOptionalAmount(p.Get("amount")),
		Margin:      core.ParseOptionalAmount(p.Get("margin")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpensesJSON([]services.ExpenseView{{Expense: x, Breakdown: core.ComputeExpenseBreakdown(x)}})[0])
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := s.siteRequest(w, r)
	if !ok {
		return
	}
	expenseID, err := pathID(r, "expenseID")
	if err != nil {
		badRequest(w, err)
		return
	}
	if err := s.svc.DeleteExpense(r.Context(), sess, id, expenseID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAttachFile stores the multipart "file" field as the expense receipt.
func (s *Server) handleAttachFile(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := s.siteRequest(w, r)
	if !ok {
		return
	}
	expenseID, err := pathID(r, "expenseID")
	if err != nil {
		badRequest(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, fmt.Errorf("read upload: %w", err))
		return
	}
	defer file.Close()

	p, err := s.svc.AttachFile(r.Context(), sess, id, expenseID, header.Filename, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"file_path": p})
}

// handleGetFile serves the receipt stored for an expense.
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := s.siteRequest(w, r)
	if !ok {
		return
	}
	expenseID, err := pathID(r, "expenseID")
	if err != nil {
		badRequest(w, err)
		return
	}

	f, p, err := s.svc.OpenAttachment(r.Context(), sess, id, expenseID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer f.Close()

	name := path.Base(p)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	http.ServeContent(w, r, name, time.Time{}, f)
}

func (s *Server) handleDays(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := s.siteRequest(w, r)
	if !ok {
		return
	}
	days, err := s.svc.Days(r.Context(), sess, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, d.String())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDaySummary(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := s.siteRequest(w, r)
	if !ok {
		return
	}
	date, err := core.ParseDate(r.PathValue("date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.svc.DaySummary(r.Context(), sess, id, date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, daySummaryJSON{
		Site:     toSiteJSON(d.Site),
		Date:     d.Date.String(),
		Entries:  toEntriesJSON(d.Entries),
		Expenses: toExpensesJSON(d.Expenses),
		Totals:   toTotalsJSON(d.Totals),
	})
}

// handleExportCSV streams the spreadsheet rows as CSV.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := s.siteRequest(w, r)
	if !ok {
		return
	}
	date, err := dayFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := s.svc.Export(r.Context(), sess, id, date)
	if err != nil {
		writeError(w, r, err)
		return
	}

	name := fmt.Sprintf("site-%d.csv", id)
	if date != nil {
		name = fmt.Sprintf("site-%d-%s.csv", id, date)
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "CSV export write failed",
			log.FieldSiteID, id, log.FieldError, err)
	}
}

// handleRequestExport queues a spreadsheet export and answers 202.
func (s *Server) handleRequestExport(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := s.siteRequest(w, r)
	if !ok {
		return
	}
	date, err := dayFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.RequestExport(r.Context(), sess, id, date); err != nil {
		writeError(w, r, err)
		return
	}
	resp := map[string]any{"status": "queued", "site_id": id}
	if date != nil {
		resp["date"] = date.String()
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// siteRequest resolves the session and the {id} wildcard, writing the
// error response when either is missing.
func (s *Server) siteRequest(w http.ResponseWriter, r *http.Request) (core.Session, int64, bool) {
	sess, err := sessionFrom(r)
	if err != nil {
		writeError(w, r, err)
		return core.Session{}, 0, false
	}
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, err)
		return core.Session{}, 0, false
	}
	return sess, id, true
}
