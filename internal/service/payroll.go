package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/payroll-system/internal/guard"
	"github.com/mmeshcher/payroll-system/internal/model"
	"github.com/mmeshcher/payroll-system/internal/receipt"
	"github.com/mmeshcher/payroll-system/internal/salary"
	"github.com/mmeshcher/payroll-system/internal/validation"
)

// Submission описывает заявку на расчёт и сохранение ведомости одного работника за месяц.
type Submission struct {
	WorkerID      int64
	Month         model.Month
	Year          int
	PaymentMethod model.PaymentMethod
	PaidStatus    model.PaidStatus
	// PaidDate используется только для статуса paid; если не задана, берётся текущее время.
	PaidDate *time.Time
	Input    salary.Input
}

// Result содержит результат сохранения одной записи ведомости.
type Result struct {
	Record   *model.PayrollRecord
	Warnings []string
	// DeliveryErr содержит ошибку отправки квитанции. На сохранение записи она не влияет.
	DeliveryErr error
}

// Skipped описывает заявку пакета, которая не была сохранена.
type Skipped struct {
	WorkerID int64
	Month    model.Month
	Year     int
	Reason   string
	Err      error
}

// BulkResult содержит результат пакетной обработки.
type BulkResult struct {
	Committed []Result
	Skipped   []Skipped
}

// ProcessPayroll рассчитывает, проверяет и сохраняет запись ведомости, затем отправляет квитанцию.
//
// Ошибки: salary.ErrInvalidInput, ErrNotFound, ErrRejected и ErrConflict; во всех этих случаях
// запись не сохраняется. Ошибка доставки квитанции возвращается в Result.DeliveryErr.
func (s *Service) ProcessPayroll(ctx context.Context, sub Submission) (*Result, error) {
	rates, err := s.Rates(ctx)
	if err != nil {
		return nil, err
	}

	res, worker, err := s.commit(ctx, sub, rates)
	if err != nil {
		return nil, err
	}

	res.DeliveryErr = s.deliver(ctx, *res.Record, *worker)
	return res, nil
}

// ProcessBulk обрабатывает заявки последовательно в порядке следования. Ошибка одной заявки
// не прерывает пакет: заявка попадает в Skipped. Пакет прерывается только отменой ctx,
// при этом возвращается уже накопленный результат.
func (s *Service) ProcessBulk(ctx context.Context, subs []Submission) (*BulkResult, error) {
	out := &BulkResult{}

	rates, err := s.Rates(ctx)
	if err != nil {
		return out, err
	}

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		res, worker, err := s.commit(ctx, sub, rates)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			s.logger.Info("bulk payroll entry skipped",
				zap.Int64("worker_id", sub.WorkerID),
				zap.String("month", string(sub.Month)),
				zap.Int("year", sub.Year),
				zap.Error(err),
			)
			out.Skipped = append(out.Skipped, Skipped{
				WorkerID: sub.WorkerID,
				Month:    sub.Month,
				Year:     sub.Year,
				Reason:   err.Error(),
				Err:      err,
			})
			continue
		}

		res.DeliveryErr = s.deliver(ctx, *res.Record, *worker)
		out.Committed = append(out.Committed, *res)
	}

	return out, nil
}

func (s *Service) commit(ctx context.Context, sub Submission, rates salary.Rates) (*Result, *model.Worker, error) {
	candidate := model.PayrollRecord{
		WorkerID:        sub.WorkerID,
		Month:           sub.Month,
		Year:            sub.Year,
		PaymentMethod:   sub.PaymentMethod,
		PaidStatus:      sub.PaidStatus,
		PresentDays:     sub.Input.PresentDays,
		LeaveDays:       sub.Input.LeaveDays,
		OTHours:         sub.Input.OTHours,
		Incentives:      sub.Input.Incentives,
		OtherDeductions: sub.Input.OtherDeductions,
		EPFRate:         rates.EPF,
		ETFRate:         rates.ETF,
	}
	if err := validation.Payroll(candidate); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", salary.ErrInvalidInput, err)
	}

	worker, err := s.repo.GetWorker(ctx, sub.WorkerID)
	if err != nil {
		return nil, nil, mapRepoError(err)
	}

	b, err := salary.Calculate(worker.BasicSalary, sub.Input, rates)
	if err != nil {
		return nil, nil, err
	}
	candidate.BasicSalary = b.BasicSalary
	candidate.EPFEmployee = b.EPFEmployee
	candidate.ETFEmployer = b.ETFEmployer
	candidate.OTRate = b.OTRate
	candidate.OTAmount = b.OTAmount
	candidate.NetSalary = b.NetSalary

	if candidate.PaidStatus == model.PaidStatusPaid {
		paidDate := s.now()
		if sub.PaidDate != nil {
			paidDate = *sub.PaidDate
		}
		candidate.PaidDate = &paidDate
	}

	history, err := s.repo.GetPayrollHistory(ctx, worker.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("get payroll history: %w", err)
	}

	res := &Result{}
	verdict := guard.Evaluate(candidate, *worker, history)
	switch verdict.Kind {
	case guard.Block:
		return nil, nil, fmt.Errorf("%w: %s", ErrRejected, verdict.Reason)
	case guard.Warn:
		s.logger.Warn("payroll warning",
			zap.Int64("worker_id", worker.ID),
			zap.String("reason", verdict.Reason),
		)
		res.Warnings = append(res.Warnings, verdict.Reason)
	}

	rec, err := s.repo.CommitPayroll(ctx, candidate)
	if err != nil {
		return nil, nil, mapRepoError(err)
	}
	res.Record = rec

	return res, worker, nil
}

func (s *Service) deliver(ctx context.Context, rec model.PayrollRecord, worker model.Worker) error {
	if s.sender == nil {
		return nil
	}

	err := s.sender.SendReceipt(ctx, receipt.Receipt{Record: rec, Worker: worker})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, receipt.ErrNoRecipient):
		s.logger.Warn("receipt skipped: worker has no email address",
			zap.Int64("worker_id", worker.ID),
			zap.Int64("payroll_id", rec.ID),
		)
		return nil
	}

	s.logger.Error("failed to send salary receipt",
		zap.Int64("worker_id", worker.ID),
		zap.Int64("payroll_id", rec.ID),
		zap.Error(err),
	)
	return err
}

// Preview рассчитывает ведомость работника по текущим ставкам без сохранения.
func (s *Service) Preview(ctx context.Context, workerID int64, in salary.Input) (salary.Breakdown, error) {
	worker, err := s.repo.GetWorker(ctx, workerID)
	if err != nil {
		return salary.Breakdown{}, mapRepoError(err)
	}

	rates, err := s.Rates(ctx)
	if err != nil {
		return salary.Breakdown{}, err
	}

	return salary.Calculate(worker.BasicSalary, in, rates)
}

// ListPayrolls возвращает записи ведомости по фильтру, новые первыми.
func (s *Service) ListPayrolls(ctx context.Context, filter model.PayrollFilter) ([]model.PayrollRecord, error) {
	return s.repo.ListPayrolls(ctx, filter)
}

// GetPayroll возвращает запись ведомости.
func (s *Service) GetPayroll(ctx context.Context, id int64) (*model.PayrollRecord, error) {
	rec, err := s.repo.GetPayroll(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return rec, nil
}

// MarkPaid переводит запись из pending в paid. Если у работника уже есть оплаченная
// запись за этот период, возвращается ErrConflict.
func (s *Service) MarkPaid(ctx context.Context, id int64, paidDate *time.Time) (*model.PayrollRecord, error) {
	date := s.now()
	if paidDate != nil {
		date = *paidDate
	}

	rec, err := s.repo.MarkPayrollPaid(ctx, id, date)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return rec, nil
}

// DeletePayroll удаляет запись ведомости.
func (s *Service) DeletePayroll(ctx context.Context, id int64) error {
	if err := s.repo.DeletePayroll(ctx, id); err != nil {
		return mapRepoError(err)
	}
	s.logger.Info("payroll record deleted", zap.Int64("payroll_id", id))
	return nil
}
