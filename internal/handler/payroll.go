package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/payroll-system/internal/model"
	"github.com/mmeshcher/payroll-system/internal/salary"
	"github.com/mmeshcher/payroll-system/internal/service"
)

type attendanceRequest struct {
	PresentDays     *int            `json:"present_days"`
	LeaveDays       *int            `json:"leave_days"`
	OTHours         decimal.Decimal `json:"ot_hours"`
	Incentives      decimal.Decimal `json:"incentives"`
	OtherDeductions decimal.Decimal `json:"other_deductions"`
}

func (a attendanceRequest) toInput() salary.Input {
	return salary.Input{
		PresentDays:     a.PresentDays,
		LeaveDays:       a.LeaveDays,
		OTHours:         a.OTHours,
		Incentives:      a.Incentives,
		OtherDeductions: a.OtherDeductions,
	}
}

type payrollRequest struct {
	WorkerID      int64  `json:"worker_id"`
	Month         string `json:"month"`
	Year          int    `json:"year"`
	PaymentMethod string `json:"payment_method"`
	PaidStatus    string `json:"paid_status"`
	PaidDate      string `json:"paid_date"`
	attendanceRequest
}

func (req payrollRequest) toSubmission() (service.Submission, error) {
	sub := service.Submission{
		WorkerID:      req.WorkerID,
		Month:         parseMonth(req.Month),
		Year:          req.Year,
		PaymentMethod: model.PaymentMethod(req.PaymentMethod),
		PaidStatus:    model.PaidStatus(req.PaidStatus),
		Input:         req.toInput(),
	}
	if sub.PaidStatus == "" {
		sub.PaidStatus = model.PaidStatusPending
	}
	if req.PaidDate != "" {
		t, err := parseDate(req.PaidDate)
		if err != nil {
			return service.Submission{}, errors.New("invalid paid_date")
		}
		sub.PaidDate = &t
	}
	return sub, nil
}

type payrollResponse struct {
	ID              int64           `json:"id"`
	WorkerID        int64           `json:"worker_id"`
	WorkerName      string          `json:"worker_name,omitempty"`
	Month           string          `json:"month"`
	Year            int             `json:"year"`
	PaymentMethod   string          `json:"payment_method"`
	PaidStatus      string          `json:"paid_status"`
	PaidDate        *string         `json:"paid_date"`
	BasicSalary     decimal.Decimal `json:"basic_salary"`
	EPFEmployee     decimal.Decimal `json:"epf_employee"`
	ETFEmployer     decimal.Decimal `json:"etf_employer"`
	OTRate          decimal.Decimal `json:"ot_rate"`
	OTAmount        decimal.Decimal `json:"ot_amount"`
	NetSalary       decimal.Decimal `json:"net_salary"`
	PresentDays     *int            `json:"present_days"`
	LeaveDays       *int            `json:"leave_days"`
	OTHours         decimal.Decimal `json:"ot_hours"`
	Incentives      decimal.Decimal `json:"incentives"`
	OtherDeductions decimal.Decimal `json:"other_deductions"`
	EPFRate         decimal.Decimal `json:"epf_rate"`
	ETFRate         decimal.Decimal `json:"etf_rate"`
	CreatedAt       string          `json:"created_at"`
}

func newPayrollResponse(rec model.PayrollRecord) payrollResponse {
	return payrollResponse{
		ID:              rec.ID,
		WorkerID:        rec.WorkerID,
		WorkerName:      rec.WorkerName,
		Month:           string(rec.Month),
		Year:            rec.Year,
		PaymentMethod:   string(rec.PaymentMethod),
		PaidStatus:      string(rec.PaidStatus),
		PaidDate:        formatTime(rec.PaidDate),
		BasicSalary:     rec.BasicSalary,
		EPFEmployee:     rec.EPFEmployee,
		ETFEmployer:     rec.ETFEmployer,
		OTRate:          rec.OTRate,
		OTAmount:        rec.OTAmount,
		NetSalary:       rec.NetSalary,
		PresentDays:     rec.PresentDays,
		LeaveDays:       rec.LeaveDays,
		OTHours:         rec.OTHours,
		Incentives:      rec.Incentives,
		OtherDeductions: rec.OtherDeductions,
		EPFRate:         rec.EPFRate,
		ETFRate:         rec.ETFRate,
		CreatedAt:       rec.CreatedAt.Format(time.RFC3339),
	}
}

type processResponse struct {
	Payroll      payrollResponse `json:"payroll"`
	Warnings     []string        `json:"warnings,omitempty"`
	ReceiptError string          `json:"receipt_error,omitempty"`
}

func newProcessResponse(res service.Result) processResponse {
	resp := processResponse{
		Payroll:  newPayrollResponse(*res.Record),
		Warnings: res.Warnings,
	}
	if res.DeliveryErr != nil {
		resp.ReceiptError = res.DeliveryErr.Error()
	}
	return resp
}

// CreatePayroll рассчитывает и сохраняет запись ведомости.
func (h *Handler) CreatePayroll(w http.ResponseWriter, r *http.Request) {
	var req payrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	sub, err := req.toSubmission()
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	res, err := h.service.ProcessPayroll(r.Context(), sub)
	if err != nil {
		h.writeError(w, "process payroll", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newProcessResponse(*res))
}

type bulkRequest struct {
	Payrolls []payrollRequest `json:"payrolls"`
}

type skippedResponse struct {
	WorkerID int64  `json:"worker_id"`
	Month    string `json:"month"`
	Year     int    `json:"year"`
	Reason   string `json:"reason"`
}

type bulkResponse struct {
	ProcessedCount int               `json:"processed_count"`
	Committed      []processResponse `json:"committed"`
	Skipped        []skippedResponse `json:"skipped"`
}

// CreatePayrollBulk обрабатывает пакет заявок. Ошибки отдельных заявок возвращаются в skipped.
func (h *Handler) CreatePayrollBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}
	if len(req.Payrolls) == 0 {
		h.badRequest(w, "payrolls must not be empty")
		return
	}

	subs := make([]service.Submission, 0, len(req.Payrolls))
	for i, p := range req.Payrolls {
		sub, err := p.toSubmission()
		if err != nil {
			h.badRequest(w, "payrolls["+strconv.Itoa(i)+"]: "+err.Error())
			return
		}
		subs = append(subs, sub)
	}

	res, err := h.service.ProcessBulk(r.Context(), subs)
	if err != nil {
		h.writeError(w, "process payroll bulk", err)
		return
	}

	resp := bulkResponse{
		ProcessedCount: len(res.Committed),
		Committed:      make([]processResponse, 0, len(res.Committed)),
		Skipped:        make([]skippedResponse, 0, len(res.Skipped)),
	}
	for _, c := range res.Committed {
		resp.Committed = append(resp.Committed, newProcessResponse(c))
	}
	for _, s := range res.Skipped {
		resp.Skipped = append(resp.Skipped, skippedResponse{
			WorkerID: s.WorkerID,
			Month:    string(s.Month),
			Year:     s.Year,
			Reason:   s.Reason,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type previewRequest struct {
	WorkerID int64 `json:"worker_id"`
	attendanceRequest
}

type breakdownResponse struct {
	BasicSalary decimal.Decimal `json:"basic_salary"`
	EPFEmployee decimal.Decimal `json:"epf_employee"`
	ETFEmployer decimal.Decimal `json:"etf_employer"`
	OTRate      decimal.Decimal `json:"ot_rate"`
	OTAmount    decimal.Decimal `json:"ot_amount"`
	NetSalary   decimal.Decimal `json:"net_salary"`
}

// PreviewPayroll рассчитывает ведомость без сохранения.
func (h *Handler) PreviewPayroll(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	b, err := h.service.Preview(r.Context(), req.WorkerID, req.toInput())
	if err != nil {
		h.writeError(w, "preview payroll", err)
		return
	}

	h.writeJSON(w, http.StatusOK, breakdownResponse{
		BasicSalary: b.BasicSalary,
		EPFEmployee: b.EPFEmployee,
		ETFEmployer: b.ETFEmployer,
		OTRate:      b.OTRate,
		OTAmount:    b.OTAmount,
		NetSalary:   b.NetSalary,
	})
}

// ListPayrolls возвращает записи ведомости с фильтрами month, year и worker_id.
func (h *Handler) ListPayrolls(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter model.PayrollFilter

	if v := q.Get("month"); v != "" {
		m, err := model.ParseMonth(v)
		if err != nil {
			h.badRequest(w, "invalid month")
			return
		}
		filter.Month = m
	}
	if v := q.Get("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			h.badRequest(w, "invalid year")
			return
		}
		filter.Year = year
	}
	if v := q.Get("worker_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.badRequest(w, "invalid worker_id")
			return
		}
		filter.WorkerID = id
	}

	records, err := h.service.ListPayrolls(r.Context(), filter)
	if err != nil {
		h.writeError(w, "list payrolls", err)
		return
	}

	resp := make([]payrollResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, newPayrollResponse(rec))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetPayroll возвращает запись ведомости по идентификатору.
func (h *Handler) GetPayroll(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.badRequest(w, "invalid payroll id")
		return
	}

	rec, err := h.service.GetPayroll(r.Context(), id)
	if err != nil {
		h.writeError(w, "get payroll", err)
		return
	}

	h.writeJSON(w, http.StatusOK, newPayrollResponse(*rec))
}

type markPaidRequest struct {
	PaidDate string `json:"paid_date"`
}

// MarkPayrollPaid отмечает запись ведомости оплаченной. Тело запроса необязательно.
func (h *Handler) MarkPayrollPaid(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.badRequest(w, "invalid payroll id")
		return
	}

	var req markPaidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(w, "invalid request body")
		return
	}

	var paidDate *time.Time
	if req.PaidDate != "" {
		t, err := parseDate(req.PaidDate)
		if err != nil {
			h.badRequest(w, "invalid paid_date")
			return
		}
		paidDate = &t
	}

	rec, err := h.service.MarkPaid(r.Context(), id, paidDate)
	if err != nil {
		h.writeError(w, "mark payroll paid", err)
		return
	}

	h.writeJSON(w, http.StatusOK, newPayrollResponse(*rec))
}

// DeletePayroll удаляет запись ведомости.
func (h *Handler) DeletePayroll(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.badRequest(w, "invalid payroll id")
		return
	}

	if err := h.service.DeletePayroll(r.Context(), id); err != nil {
		h.writeError(w, "delete payroll", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
