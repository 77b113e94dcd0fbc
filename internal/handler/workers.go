package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/payroll-system/internal/model"
)

type workerRequest struct {
	FullName              string          `json:"full_name"`
	Email                 string          `json:"email"`
	NationalID            string          `json:"nic_no"`
	JobPosition           string          `json:"job_position"`
	BankName              string          `json:"bank_name"`
	BankAccountNo         string          `json:"bank_account_no"`
	BasicSalary           decimal.Decimal `json:"basic_salary"`
	CostOfLivingAllowance decimal.Decimal `json:"cost_of_living_allowance"`
	MobileAllowance       decimal.Decimal `json:"mobile_allowance"`
	Status                string          `json:"status"`
}

func (req workerRequest) toModel(id int64) model.Worker {
	return model.Worker{
		ID:                    id,
		FullName:              req.FullName,
		Email:                 req.Email,
		NationalID:            req.NationalID,
		JobPosition:           req.JobPosition,
		BankName:              req.BankName,
		BankAccountNo:         req.BankAccountNo,
		BasicSalary:           req.BasicSalary,
		CostOfLivingAllowance: req.CostOfLivingAllowance,
		MobileAllowance:       req.MobileAllowance,
		Status:                model.WorkerStatus(req.Status),
	}
}

type workerResponse struct {
	ID                    int64           `json:"id"`
	FullName              string          `json:"full_name"`
	Email                 string          `json:"email,omitempty"`
	NationalID            string          `json:"nic_no"`
	JobPosition           string          `json:"job_position"`
	BankName              string          `json:"bank_name"`
	BankAccountNo         string          `json:"bank_account_no"`
	BasicSalary           decimal.Decimal `json:"basic_salary"`
	CostOfLivingAllowance decimal.Decimal `json:"cost_of_living_allowance"`
	MobileAllowance       decimal.Decimal `json:"mobile_allowance"`
	Status                string          `json:"status"`
	CreatedAt             string          `json:"created_at"`
	UpdatedAt             string          `json:"updated_at"`
}

func newWorkerResponse(w model.Worker) workerResponse {
	return workerResponse{
		ID:                    w.ID,
		FullName:              w.FullName,
		Email:                 w.Email,
		NationalID:            w.NationalID,
		JobPosition:           w.JobPosition,
		BankName:              w.BankName,
		BankAccountNo:         w.BankAccountNo,
		BasicSalary:           w.BasicSalary,
		CostOfLivingAllowance: w.CostOfLivingAllowance,
		MobileAllowance:       w.MobileAllowance,
		Status:                string(w.Status),
		CreatedAt:             w.CreatedAt.Format(time.RFC3339),
		UpdatedAt:             w.UpdatedAt.Format(time.RFC3339),
	}
}

// CreateWorker регистрирует нового работника.
func (h *Handler) CreateWorker(w http.ResponseWriter, r *http.Request) {
	var req workerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	worker, err := h.service.CreateWorker(r.Context(), req.toModel(0))
	if err != nil {
		h.writeError(w, "create worker", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newWorkerResponse(*worker))
}

// UpdateWorker перезаписывает профиль работника.
func (h *Handler) UpdateWorker(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.badRequest(w, "invalid worker id")
		return
	}

	var req workerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	worker, err := h.service.UpdateWorker(r.Context(), req.toModel(id))
	if err != nil {
		h.writeError(w, "update worker", err)
		return
	}

	h.writeJSON(w, http.StatusOK, newWorkerResponse(*worker))
}

// GetWorker возвращает работника по идентификатору.
func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.badRequest(w, "invalid worker id")
		return
	}

	worker, err := h.service.GetWorker(r.Context(), id)
	if err != nil {
		h.writeError(w, "get worker", err)
		return
	}

	h.writeJSON(w, http.StatusOK, newWorkerResponse(*worker))
}

// ListWorkers возвращает список работников.
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.service.ListWorkers(r.Context())
	if err != nil {
		h.writeError(w, "list workers", err)
		return
	}

	resp := make([]workerResponse, 0, len(workers))
	for _, wk := range workers {
		resp = append(resp, newWorkerResponse(wk))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// DeleteWorker удаляет работника вместе с его записями ведомости.
func (h *Handler) DeleteWorker(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.badRequest(w, "invalid worker id")
		return
	}

	if err := h.service.DeleteWorker(r.Context(), id); err != nil {
		h.writeError(w, "delete worker", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
