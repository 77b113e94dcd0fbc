package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/payroll-system/internal/model"
)

func newWorker(nationalID string) model.Worker {
	return model.Worker{
		FullName:      "Nimal Perera",
		NationalID:    nationalID,
		BankAccountNo: "acc-" + nationalID,
		BasicSalary:   decimal.NewFromInt(50000),
		Status:        model.WorkerStatusActive,
	}
}

func paidRecord(workerID int64, month model.Month, year int) model.PayrollRecord {
	return model.PayrollRecord{
		WorkerID:      workerID,
		Month:         month,
		Year:          year,
		PaymentMethod: model.PaymentMethodBankTransfer,
		PaidStatus:    model.PaidStatusPaid,
		BasicSalary:   decimal.NewFromInt(50000),
		EPFEmployee:   decimal.NewFromInt(4000),
		ETFEmployer:   decimal.NewFromInt(6000),
		NetSalary:     decimal.NewFromInt(46000),
	}
}

func TestMemoryRepository_Workers(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	w, err := repo.CreateWorker(ctx, newWorker("199012345678"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.ID)
	assert.False(t, w.CreatedAt.IsZero())

	_, err = repo.CreateWorker(ctx, newWorker("199012345678"))
	assert.True(t, errors.Is(err, ErrNationalIDExists))

	got, err := repo.GetWorker(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "Nimal Perera", got.FullName)

	_, err = repo.GetWorker(ctx, 42)
	assert.ErrorIs(t, err, ErrWorkerNotFound)

	got.FullName = "Nimal K. Perera"
	updated, err := repo.UpdateWorker(ctx, *got)
	require.NoError(t, err)
	assert.Equal(t, "Nimal K. Perera", updated.FullName)
	assert.Equal(t, w.CreatedAt, updated.CreatedAt)

	_, err = repo.UpdateWorker(ctx, model.Worker{ID: 42, NationalID: "x"})
	assert.ErrorIs(t, err, ErrWorkerNotFound)
}

func TestMemoryRepository_FindWorkersByIdentity(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	a, err := repo.CreateWorker(ctx, newWorker("1"))
	require.NoError(t, err)
	b, err := repo.CreateWorker(ctx, newWorker("2"))
	require.NoError(t, err)

	found, err := repo.FindWorkersByIdentity(ctx, "acc-1", "2")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, a.ID, found[0].ID)
	assert.Equal(t, b.ID, found[1].ID)

	found, err = repo.FindWorkersByIdentity(ctx, "", "")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestMemoryRepository_CommitPayroll(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	_, err := repo.CommitPayroll(ctx, paidRecord(1, "January", 2025))
	assert.ErrorIs(t, err, ErrWorkerNotFound)

	w, err := repo.CreateWorker(ctx, newWorker("1"))
	require.NoError(t, err)

	rec, err := repo.CommitPayroll(ctx, paidRecord(w.ID, "January", 2025))
	require.NoError(t, err)
	assert.Equal(t, "Nimal Perera", rec.WorkerName)

	_, err = repo.CommitPayroll(ctx, paidRecord(w.ID, "January", 2025))
	assert.ErrorIs(t, err, ErrPayrollExists)

	pending := paidRecord(w.ID, "January", 2025)
	pending.PaidStatus = model.PaidStatusPending
	_, err = repo.CommitPayroll(ctx, pending)
	assert.NoError(t, err)

	_, err = repo.CommitPayroll(ctx, paidRecord(w.ID, "February", 2025))
	assert.NoError(t, err)

	history, err := repo.GetPayrollHistory(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, model.Month("February"), history[0].Month)
}

func TestMemoryRepository_CommitPayrollConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	w, err := repo.CreateWorker(ctx, newWorker("1"))
	require.NoError(t, err)

	const attempts = 20
	var (
		wg        sync.WaitGroup
		committed atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.CommitPayroll(ctx, paidRecord(w.ID, "March", 2025))
			switch {
			case err == nil:
				committed.Add(1)
			case errors.Is(err, ErrPayrollExists):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), committed.Load())
	assert.Equal(t, int32(attempts-1), conflicts.Load())
}

func TestMemoryRepository_MarkPayrollPaid(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	w, err := repo.CreateWorker(ctx, newWorker("1"))
	require.NoError(t, err)

	pending := paidRecord(w.ID, "April", 2025)
	pending.PaidStatus = model.PaidStatusPending
	first, err := repo.CommitPayroll(ctx, pending)
	require.NoError(t, err)
	second, err := repo.CommitPayroll(ctx, pending)
	require.NoError(t, err)

	paidAt := time.Date(2025, time.April, 30, 0, 0, 0, 0, time.UTC)
	rec, err := repo.MarkPayrollPaid(ctx, first.ID, paidAt)
	require.NoError(t, err)
	assert.Equal(t, model.PaidStatusPaid, rec.PaidStatus)
	require.NotNil(t, rec.PaidDate)
	assert.True(t, paidAt.Equal(*rec.PaidDate))

	_, err = repo.MarkPayrollPaid(ctx, first.ID, paidAt)
	assert.ErrorIs(t, err, ErrPayrollAlreadyPaid)

	_, err = repo.MarkPayrollPaid(ctx, second.ID, paidAt)
	assert.ErrorIs(t, err, ErrPayrollExists)

	_, err = repo.MarkPayrollPaid(ctx, 999, paidAt)
	assert.ErrorIs(t, err, ErrPayrollNotFound)
}

func TestMemoryRepository_ListAndTotals(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	a, err := repo.CreateWorker(ctx, newWorker("1"))
	require.NoError(t, err)
	b, err := repo.CreateWorker(ctx, newWorker("2"))
	require.NoError(t, err)

	for _, rec := range []model.PayrollRecord{
		paidRecord(a.ID, "January", 2025),
		paidRecord(b.ID, "January", 2025),
		paidRecord(a.ID, "February", 2025),
		paidRecord(a.ID, "December", 2024),
	} {
		_, err := repo.CommitPayroll(ctx, rec)
		require.NoError(t, err)
	}

	list, err := repo.ListPayrolls(ctx, model.PayrollFilter{Month: "January", Year: 2025})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = repo.ListPayrolls(ctx, model.PayrollFilter{WorkerID: a.ID})
	require.NoError(t, err)
	assert.Len(t, list, 3)

	totals, err := repo.PeriodTotals(ctx, 2025)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, model.Month("January"), totals[0].Month)
	assert.Equal(t, 2, totals[0].Records)
	assert.True(t, totals[0].NetSalary.Equal(decimal.NewFromInt(92000)))
	assert.Equal(t, model.Month("February"), totals[1].Month)
}

func TestMemoryRepository_Settings(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	settings, err := repo.GetSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, settings)

	require.NoError(t, repo.UpsertSettings(ctx, map[string]string{SettingEPFRate: "0.1"}))
	require.NoError(t, repo.UpsertSettings(ctx, map[string]string{SettingETFRate: "0.15"}))

	settings, err = repo.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{SettingEPFRate: "0.1", SettingETFRate: "0.15"}, settings)
}

func TestMemoryRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	a, err := repo.CreateWorker(ctx, newWorker("1"))
	require.NoError(t, err)
	b, err := repo.CreateWorker(ctx, newWorker("2"))
	require.NoError(t, err)

	recA, err := repo.CommitPayroll(ctx, paidRecord(a.ID, "March", 2025))
	require.NoError(t, err)
	_, err = repo.CommitPayroll(ctx, paidRecord(a.ID, "April", 2025))
	require.NoError(t, err)
	recB, err := repo.CommitPayroll(ctx, paidRecord(b.ID, "March", 2025))
	require.NoError(t, err)

	require.NoError(t, repo.DeletePayroll(ctx, recA.ID))
	assert.ErrorIs(t, repo.DeletePayroll(ctx, recA.ID), ErrPayrollNotFound)

	// Период снова свободен для оплаты.
	_, err = repo.CommitPayroll(ctx, paidRecord(a.ID, "March", 2025))
	require.NoError(t, err)

	require.NoError(t, repo.DeleteWorker(ctx, a.ID))
	assert.ErrorIs(t, repo.DeleteWorker(ctx, a.ID), ErrWorkerNotFound)

	_, err = repo.GetWorker(ctx, a.ID)
	assert.ErrorIs(t, err, ErrWorkerNotFound)

	list, err := repo.ListPayrolls(ctx, model.PayrollFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, recB.ID, list[0].ID)
}
