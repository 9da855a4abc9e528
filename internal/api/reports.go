package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/export"
	"github.com/safar/go-stock-ledger/internal/report"
)

const (
	dateLayout         = "2006-01-02"
	defaultTopProducts = 5
	defaultSeriesDays  = report.DashboardSeriesDays
	defaultReceiptDays = 7
)

// dateRange reads from/to as calendar days in the report time zone. Both
// are inclusive; the returned upper bound is the start of the day after to.
func (h *Handler) dateRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	var from, to time.Time

	if raw := q.Get("from"); raw != "" {
		d, err := time.ParseInLocation(dateLayout, raw, h.reports.Location())
		if err != nil {
			return from, to, database.InvalidInputf("from must be YYYY-MM-DD")
		}
		from = d
	}
	if raw := q.Get("to"); raw != "" {
		d, err := time.ParseInLocation(dateLayout, raw, h.reports.Location())
		if err != nil {
			return from, to, database.InvalidInputf("to must be YYYY-MM-DD")
		}
		to = d.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return from, to, database.InvalidInputf("from must not be after to")
	}
	return from, to, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, database.InvalidInputf("%s must be an integer", name)
	}
	return n, nil
}

func (h *Handler) listReceipts(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.dateRange(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if from.IsZero() && to.IsZero() {
		start, end := h.reports.DayRange(h.now())
		from, to = start.AddDate(0, 0, -(defaultReceiptDays - 1)), end
	}

	receipts, err := h.reports.Receipts(r.Context(), ownerFrom(r), from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, receipts)
}

func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.reports.Receipt(r.Context(), ownerFrom(r), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, receipt)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.reports.Dashboard(r.Context(), ownerFrom(r), h.now())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (h *Handler) dailyRevenue(w http.ResponseWriter, r *http.Request) {
	day := h.now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := time.ParseInLocation(dateLayout, raw, h.reports.Location())
		if err != nil {
			h.writeError(w, r, database.InvalidInputf("date must be YYYY-MM-DD"))
			return
		}
		day = d
	}

	revenue, err := h.reports.DailyRevenue(r.Context(), ownerFrom(r), day)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"date":    day.In(h.reports.Location()).Format(dateLayout),
		"revenue": revenue,
	})
}

func (h *Handler) monthlySummary(w http.ResponseWriter, r *http.Request) {
	now := h.now().In(h.reports.Location())
	year, err := queryInt(r, "year", now.Year())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	month, err := queryInt(r, "month", int(now.Month()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	summary, err := h.reports.MonthlySummary(r.Context(), ownerFrom(r), year, time.Month(month))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *Handler) topProducts(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.dateRange(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultTopProducts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	top, err := h.reports.TopProducts(r.Context(), ownerFrom(r), from, to, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, top)
}

func (h *Handler) categoryBreakdown(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.dateRange(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	breakdown, err := h.reports.CategoryBreakdown(r.Context(), ownerFrom(r), from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, breakdown)
}

func (h *Handler) revenueSeries(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", defaultSeriesDays)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	series, err := h.reports.RevenueSeries(r.Context(), ownerFrom(r), h.now(), days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, series)
}

// exportRange resolves the export period: explicit from/to, or
// period=daily (default) or period=monthly around now.
func (h *Handler) exportRange(r *http.Request) (time.Time, time.Time, string, error) {
	from, to, err := h.dateRange(r)
	if err != nil {
		return from, to, "", err
	}
	if !from.IsZero() || !to.IsZero() {
		return from, to, "sales", nil
	}

	now := h.now().In(h.reports.Location())
	switch period := r.URL.Query().Get("period"); period {
	case "", "daily":
		from, to = h.reports.DayRange(now)
		return from, to, "sales_" + now.Format(dateLayout), nil
	case "monthly":
		from, to = h.reports.MonthRange(now.Year(), now.Month())
		return from, to, "sales_" + now.Format("2006-01"), nil
	default:
		return from, to, "", database.InvalidInputf("unknown period %q", period)
	}
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	from, to, name, err := h.exportRange(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rows, err := h.reports.ExportRows(r.Context(), ownerFrom(r), from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, name))
	if err := export.WriteCSV(w, rows); err != nil {
		h.logger.Error().Err(err).Msg("write csv export")
	}
}

func (h *Handler) exportXLSX(w http.ResponseWriter, r *http.Request) {
	from, to, name, err := h.exportRange(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rows, err := h.reports.ExportRows(r.Context(), ownerFrom(r), from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, name))
	if err := export.WriteXLSX(w, rows); err != nil {
		h.logger.Error().Err(err).Msg("write xlsx export")
	}
}
