package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"recurring-billing-backend/internal/domain"
	"recurring-billing-backend/internal/logger"
	"recurring-billing-backend/internal/repository"
	"recurring-billing-backend/internal/security"
	"recurring-billing-backend/internal/service"
	"recurring-billing-backend/internal/utils"
)

// Pinger reports whether the schedule store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReportHandler serves the collections aging view over HTTP.
type ReportHandler struct {
	aging    service.AgingService
	store    Pinger
	loc      *time.Location
	currency string
	now      func() time.Time
}

func NewReportHandler(aging service.AgingService, store Pinger, loc *time.Location, currency string) *ReportHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportHandler{aging: aging, store: store, loc: loc, currency: currency, now: time.Now}
}

// RouterOptions configures the cross-cutting middleware.
type RouterOptions struct {
	AllowedOrigins []string
	// TokenManager enables bearer auth on protected routes when non-nil.
	TokenManager security.TokenManager
}

// NewRouter wires the report routes behind request-id, CORS and auth middleware.
func NewRouter(h *ReportHandler, opts RouterOptions) *mux.Router {
	router := mux.NewRouter()
	router.Use(requestID, cors(opts.AllowedOrigins), bearerAuth(opts.TokenManager))
	RegisterReportRoutes(router, h)
	return router
}

func RegisterReportRoutes(router *mux.Router, h *ReportHandler) {
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/db-health", h.HandleDBHealth).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/outstanding", h.HandleOutstanding).Methods(http.MethodGet, http.MethodOptions)
}

func (h *ReportHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": h.now().UTC().Format(time.RFC3339),
	})
}

func (h *ReportHandler) HandleDBHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		logger.WarnContext(r.Context(), "Store health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// OutstandingRecord is one aging row with display amounts rendered as fixed
// two-decimal strings.
type OutstandingRecord struct {
	ScheduleID   uuid.UUID           `json:"schedule_id"`
	OrderID      uuid.UUID           `json:"order_id"`
	OrderCode    string              `json:"order_code"`
	ScheduleType domain.ScheduleType `json:"schedule_type"`
	Frequency    domain.Frequency    `json:"frequency"`
	CustomerName string              `json:"customer_name"`
	Phone        string              `json:"phone"`
	DueDate      utils.Date          `json:"due_date"`

	AmountCents      int64 `json:"amount_cents"`
	PaidCents        int64 `json:"paid_cents"`
	OutstandingCents int64 `json:"outstanding_cents"`

	Amount      string `json:"amount"`
	Paid        string `json:"paid"`
	Outstanding string `json:"outstanding"`

	DaysLate int           `json:"days_late"`
	Bucket   domain.Bucket `json:"bucket"`
}

// OutstandingResponse is the body of GET /api/outstanding.
type OutstandingResponse struct {
	AsOf     utils.Date               `json:"as_of"`
	Currency string                   `json:"currency"`
	Count    int                      `json:"count"`
	Records  []OutstandingRecord      `json:"records"`
	Omitted  int                      `json:"omitted"`
	Failures []domain.ScheduleFailure `json:"failures,omitempty"`
}

// HandleOutstanding serves GET /api/outstanding?type=&due_before=&overdue_only=.
// due_before defaults to today in the business timezone.
func (h *ReportHandler) HandleOutstanding(w http.ResponseWriter, r *http.Request) {
	asOf, filter, err := h.parseOutstandingQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}

	requester := "anonymous"
	if claims, ok := ClaimsFromContext(r.Context()); ok {
		requester = claims.Subject
	}
	logger.InfoContext(r.Context(), "Outstanding report requested",
		"as_of", asOf.String(),
		"schedule_type", filter.ScheduleType,
		"overdue_only", filter.OverdueOnly,
		"requester", requester,
		"request_id", RequestIDFromContext(r.Context()))

	report, err := h.aging.Generate(r.Context(), asOf, filter)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidFilter):
		writeError(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	case errors.Is(err, service.ErrReportIncomplete):
		writeError(w, r, http.StatusServiceUnavailable, "report incomplete: ledger lookups failed", err)
		return
	case errors.Is(err, repository.ErrStoreUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "schedule store unavailable", err)
		return
	default:
		writeError(w, r, http.StatusInternalServerError, "internal server error", err)
		return
	}

	writeJSON(w, http.StatusOK, NewOutstandingResponse(report, h.currency))
}

func (h *ReportHandler) parseOutstandingQuery(r *http.Request) (utils.Date, domain.AgingFilter, error) {
	q := r.URL.Query()
	var filter domain.AgingFilter

	if t := strings.TrimSpace(q.Get("type")); t != "" {
		filter.ScheduleType = domain.ScheduleType(strings.ToLower(t))
		if !filter.ScheduleType.Valid() {
			return utils.Date{}, filter, fmt.Errorf("invalid type %q: want instalment or rental", t)
		}
	}

	filter.OverdueOnly = strings.EqualFold(strings.TrimSpace(q.Get("overdue_only")), "true")

	asOf := utils.DateOf(h.now(), h.loc)
	if raw := strings.TrimSpace(q.Get("due_before")); raw != "" {
		d, err := utils.ParseDate(raw)
		if err != nil {
			return utils.Date{}, filter, fmt.Errorf("invalid due_before: %w", err)
		}
		asOf = d
	}
	return asOf, filter, nil
}

// NewOutstandingResponse renders a report in the shape served by
// /api/outstanding.
func NewOutstandingResponse(report *domain.AgingReport, currency string) OutstandingResponse {
	resp := OutstandingResponse{
		AsOf:     report.AsOf,
		Currency: currency,
		Count:    len(report.Records),
		Records:  make([]OutstandingRecord, 0, len(report.Records)),
		Omitted:  report.Omitted,
		Failures: report.Failures,
	}
	for _, rec := range report.Records {
		resp.Records = append(resp.Records, OutstandingRecord{
			ScheduleID:       rec.ScheduleID,
			OrderID:          rec.OrderID,
			OrderCode:        rec.OrderCode,
			ScheduleType:     rec.ScheduleType,
			Frequency:        rec.Frequency,
			CustomerName:     rec.CustomerName,
			Phone:            rec.Phone,
			DueDate:          rec.DueDate,
			AmountCents:      rec.AmountCents,
			PaidCents:        rec.PaidCents,
			OutstandingCents: rec.OutstandingCents,
			Amount:           utils.FormatMajor(rec.AmountCents),
			Paid:             utils.FormatMajor(rec.PaidCents),
			Outstanding:      utils.FormatMajor(rec.OutstandingCents),
			DaysLate:         rec.DaysLate,
			Bucket:           rec.Bucket,
		})
	}
	return resp
}
