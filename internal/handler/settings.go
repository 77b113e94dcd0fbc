package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type ratesResponse struct {
	EPFRate decimal.Decimal `json:"epf_rate"`
	ETFRate decimal.Decimal `json:"etf_rate"`
}

// GetSettings возвращает текущие ставки отчислений.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	rates, err := h.service.Rates(r.Context())
	if err != nil {
		h.writeError(w, "get settings", err)
		return
	}

	h.writeJSON(w, http.StatusOK, ratesResponse{EPFRate: rates.EPF, ETFRate: rates.ETF})
}

type updateSettingsRequest struct {
	Settings struct {
		EPFRate *decimal.Decimal `json:"epf_rate"`
		ETFRate *decimal.Decimal `json:"etf_rate"`
	} `json:"settings"`
}

// UpdateSettings изменяет ставки отчислений. Не переданные ставки остаются прежними.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	rates, err := h.service.Rates(r.Context())
	if err != nil {
		h.writeError(w, "get settings", err)
		return
	}
	if req.Settings.EPFRate != nil {
		rates.EPF = *req.Settings.EPFRate
	}
	if req.Settings.ETFRate != nil {
		rates.ETF = *req.Settings.ETFRate
	}

	if err := h.service.UpdateRates(r.Context(), rates); err != nil {
		h.writeError(w, "update settings", err)
		return
	}

	h.writeJSON(w, http.StatusOK, ratesResponse{EPFRate: rates.EPF, ETFRate: rates.ETF})
}

type dashboardResponse struct {
	TotalWorkers      int             `json:"total_workers"`
	ActiveWorkers     int             `json:"active_workers"`
	Month             string          `json:"month"`
	Year              int             `json:"year"`
	TotalSalary       decimal.Decimal `json:"total_salary_this_month"`
	TotalEPF          decimal.Decimal `json:"total_epf_this_month"`
	TotalETF          decimal.Decimal `json:"total_etf_this_month"`
	TotalNetSalary    decimal.Decimal `json:"total_net_salary_this_month"`
	PayrollsThisMonth int             `json:"payrolls_this_month"`
}

// DashboardStats возвращает сводку за текущий месяц.
func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.DashboardStats(r.Context())
	if err != nil {
		h.writeError(w, "dashboard stats", err)
		return
	}

	h.writeJSON(w, http.StatusOK, dashboardResponse{
		TotalWorkers:      stats.TotalWorkers,
		ActiveWorkers:     stats.ActiveWorkers,
		Month:             string(stats.Month),
		Year:              stats.Year,
		TotalSalary:       stats.Totals.BasicSalary,
		TotalEPF:          stats.Totals.EPFEmployee,
		TotalETF:          stats.Totals.ETFEmployer,
		TotalNetSalary:    stats.Totals.NetSalary,
		PayrollsThisMonth: stats.Totals.Records,
	})
}

type monthlyStatsResponse struct {
	Month       string          `json:"month"`
	TotalSalary decimal.Decimal `json:"total_salary"`
	TotalEPF    decimal.Decimal `json:"total_epf"`
	TotalETF    decimal.Decimal `json:"total_etf"`
	NetSalary   decimal.Decimal `json:"net_salary"`
}

// MonthlyStats возвращает суммы по месяцам года из параметра year (по умолчанию текущего).
func (h *Handler) MonthlyStats(w http.ResponseWriter, r *http.Request) {
	year := time.Now().Year()
	if v := r.URL.Query().Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			h.badRequest(w, "invalid year")
			return
		}
		year = y
	}

	totals, err := h.service.MonthlyStats(r.Context(), year)
	if err != nil {
		h.writeError(w, "monthly stats", err)
		return
	}

	resp := make([]monthlyStatsResponse, 0, len(totals))
	for _, t := range totals {
		resp = append(resp, monthlyStatsResponse{
			Month:       t.Month.Short(),
			TotalSalary: t.BasicSalary,
			TotalEPF:    t.EPFEmployee,
			TotalETF:    t.ETFEmployer,
			NetSalary:   t.NetSalary,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}
