// Package api exposes the ledger and its reports over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/safar/go-stock-ledger/internal/ledger"
	"github.com/safar/go-stock-ledger/internal/report"
	"github.com/safar/go-stock-ledger/internal/store"
)

// OwnerHeader carries the tenant id of every request.
const OwnerHeader = "X-Owner-ID"

type ctxKey int

const ownerKey ctxKey = iota

type Handler struct {
	engine    *ledger.Engine
	store     store.Store
	reports   *report.Service
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

type Option func(*Handler)

func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func NewHandler(engine *ledger.Engine, st store.Store, reports *report.Service, logger zerolog.Logger, opts ...Option) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)

	h := &Handler{
		engine:    engine,
		store:     st,
		reports:   reports,
		validator: v,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireOwner)

		r.Route("/categories", func(r chi.Router) {
			r.Post("/", h.createCategory)
			r.Get("/", h.listCategories)
		})

		r.Route("/items", func(r chi.Router) {
			r.Post("/", h.createItem)
			r.Get("/", h.listItems)
			r.Get("/{id}", h.getItem)
			r.Patch("/{id}", h.updateItem)
			r.Delete("/{id}", h.deleteItem)
			r.Get("/{id}/purchases", h.listPurchases)
		})

		r.Post("/purchases", h.createPurchase)
		r.Post("/sales", h.createSale)
		r.Delete("/sales/{id}", h.reverseSale)

		r.Get("/receipts", h.listReceipts)
		r.Get("/receipts/{orderID}", h.getReceipt)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/dashboard", h.dashboard)
			r.Get("/daily", h.dailyRevenue)
			r.Get("/monthly", h.monthlySummary)
			r.Get("/top-products", h.topProducts)
			r.Get("/categories", h.categoryBreakdown)
			r.Get("/series", h.revenueSeries)
		})

		r.Get("/exports/sales.csv", h.exportCSV)
		r.Get("/exports/sales.xlsx", h.exportXLSX)
	})

	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		ev := h.logger.Info()
		if ww.Status() >= http.StatusInternalServerError {
			ev = h.logger.Error()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (h *Handler) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := strconv.ParseInt(r.Header.Get(OwnerHeader), 10, 64)
		if err != nil || ownerID <= 0 {
			respondError(w, http.StatusUnauthorized, "missing or invalid "+OwnerHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, ownerID)))
	})
}

func ownerFrom(r *http.Request) int64 {
	ownerID, _ := r.Context().Value(ownerKey).(int64)
	return ownerID
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}
