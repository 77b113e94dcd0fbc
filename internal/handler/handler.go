// Package handler содержит HTTP-обработчики API сервиса расчёта заработной платы.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/payroll-system/internal/model"
	"github.com/mmeshcher/payroll-system/internal/salary"
	"github.com/mmeshcher/payroll-system/internal/service"
	"github.com/mmeshcher/payroll-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateWorker(ctx context.Context, w model.Worker) (*model.Worker, error)
	UpdateWorker(ctx context.Context, w model.Worker) (*model.Worker, error)
	GetWorker(ctx context.Context, id int64) (*model.Worker, error)
	ListWorkers(ctx context.Context) ([]model.Worker, error)

	ProcessPayroll(ctx context.Context, sub service.Submission) (*service.Result, error)
	ProcessBulk(ctx context.Context, subs []service.Submission) (*service.BulkResult, error)
	Preview(ctx context.Context, workerID int64, in salary.Input) (salary.Breakdown, error)
	ListPayrolls(ctx context.Context, filter model.PayrollFilter) ([]model.PayrollRecord, error)
	GetPayroll(ctx context.Context, id int64) (*model.PayrollRecord, error)
	MarkPaid(ctx context.Context, id int64, paidDate *time.Time) (*model.PayrollRecord, error)

	Rates(ctx context.Context) (salary.Rates, error)
	UpdateRates(ctx context.Context, rates salary.Rates) error

	DeleteWorker(ctx context.Context, id int64) error
	DeletePayroll(ctx context.Context, id int64) error

	DashboardStats(ctx context.Context) (*service.DashboardStats, error)
	MonthlyStats(ctx context.Context, year int) ([]model.PeriodTotals, error)
}

// Handler реализует HTTP-обработчики API сервиса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	allowedOrigins []string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// allowedOrigins задаёт источники, которым разрешены CORS-запросы; при пустом
// списке кросс-доменные запросы не разрешены.
func NewHandler(s Service, logger *zap.Logger, allowedOrigins []string) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:        s,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
}

type errorResponse struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Int("status", status), zap.Error(err))
	}
}

// writeError отображает ошибки сервиса на HTTP-статусы.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var verrs validation.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "validation failed", Errors: verrs.ToMap()})
	case errors.Is(err, salary.ErrInvalidInput):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
	case errors.Is(err, service.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Message: err.Error()})
	case errors.Is(err, service.ErrRejected):
		h.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Message: err.Error()})
	case errors.Is(err, service.ErrConflict):
		h.writeJSON(w, http.StatusConflict, errorResponse{Message: err.Error()})
	default:
		h.logger.Error(op+" error", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Message: http.StatusText(http.StatusInternalServerError)})
	}
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string) {
	h.writeJSON(w, http.StatusBadRequest, errorResponse{Message: msg})
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

// parseDate разбирает дату в формате 2006-01-02 или RFC 3339.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// parseMonth приводит название месяца к каноническому виду. Неизвестное название
// возвращается как есть и отклоняется валидацией.
func parseMonth(s string) model.Month {
	if m, err := model.ParseMonth(s); err == nil {
		return m
	}
	return model.Month(s)
}
