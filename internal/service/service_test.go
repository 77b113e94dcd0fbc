package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/payroll-system/internal/model"
	"github.com/mmeshcher/payroll-system/internal/receipt"
	"github.com/mmeshcher/payroll-system/internal/repository"
	"github.com/mmeshcher/payroll-system/internal/salary"
	"github.com/mmeshcher/payroll-system/internal/validation"
)

var (
	_ Repository    = (*repository.PostgresRepository)(nil)
	_ Repository    = (*repository.MemoryRepository)(nil)
	_ ReceiptSender = (*receipt.HTTPSender)(nil)
	_ ReceiptSender = (*receipt.SMTPSender)(nil)
)

type stubSender struct {
	mu   sync.Mutex
	err  error
	sent []receipt.Receipt
}

func (s *stubSender) SendReceipt(_ context.Context, r receipt.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if r.Worker.Email == "" {
		return receipt.ErrNoRecipient
	}
	s.sent = append(s.sent, r)
	return nil
}

func (s *stubSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func intPtr(v int) *int { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestService(t *testing.T) (*Service, *repository.MemoryRepository, *stubSender) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	sender := &stubSender{}
	return NewService(repo, sender, salary.DefaultRates(), nil), repo, sender
}

func addWorker(t *testing.T, svc *Service, n int, basic string) *model.Worker {
	t.Helper()
	w, err := svc.CreateWorker(context.Background(), model.Worker{
		FullName:      fmt.Sprintf("Worker %d", n),
		Email:         fmt.Sprintf("worker%d@example.com", n),
		NationalID:    fmt.Sprintf("NIC-%d", n),
		JobPosition:   "Field Officer",
		BankName:      "People's Bank",
		BankAccountNo: fmt.Sprintf("ACC-%d", n),
		BasicSalary:   dec(basic),
	})
	require.NoError(t, err)
	return w
}

func submission(workerID int64, month model.Month) Submission {
	return Submission{
		WorkerID:      workerID,
		Month:         month,
		Year:          2025,
		PaymentMethod: model.PaymentMethodBankTransfer,
		PaidStatus:    model.PaidStatusPaid,
	}
}

func countPayrolls(t *testing.T, repo *repository.MemoryRepository) int {
	t.Helper()
	list, err := repo.ListPayrolls(context.Background(), model.PayrollFilter{})
	require.NoError(t, err)
	return len(list)
}

func TestProcessPayroll_EndToEnd(t *testing.T) {
	svc, repo, sender := newTestService(t)
	w := addWorker(t, svc, 1, "50000")

	sub := submission(w.ID, "January")
	sub.Input = salary.Input{
		PresentDays: intPtr(26),
		LeaveDays:   intPtr(4),
		OTHours:     dec("5"),
		Incentives:  dec("2000"),
	}

	res, err := svc.ProcessPayroll(context.Background(), sub)
	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.Empty(t, res.Warnings)
	assert.NoError(t, res.DeliveryErr)

	rec := res.Record
	assert.Equal(t, "43333.33", rec.BasicSalary.StringFixed(2))
	assert.Equal(t, "3466.67", rec.EPFEmployee.StringFixed(2))
	assert.Equal(t, "5200.00", rec.ETFEmployer.StringFixed(2))
	assert.Equal(t, "312.50", rec.OTRate.StringFixed(2))
	assert.Equal(t, "1562.50", rec.OTAmount.StringFixed(2))
	assert.Equal(t, "43429.16", rec.NetSalary.StringFixed(2))
	assert.True(t, rec.EPFRate.Equal(salary.DefaultEPFRate))
	assert.True(t, rec.ETFRate.Equal(salary.DefaultETFRate))
	assert.Equal(t, model.PaidStatusPaid, rec.PaidStatus)
	assert.NotNil(t, rec.PaidDate)

	assert.Equal(t, 1, countPayrolls(t, repo))
	assert.Equal(t, 1, sender.count())
}

func TestProcessPayroll_ResubmitRejected(t *testing.T) {
	svc, repo, _ := newTestService(t)
	w := addWorker(t, svc, 1, "50000")

	_, err := svc.ProcessPayroll(context.Background(), submission(w.ID, "January"))
	require.NoError(t, err)

	_, err = svc.ProcessPayroll(context.Background(), submission(w.ID, "January"))
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "already paid for January 2025")
	assert.Equal(t, 1, countPayrolls(t, repo))
}

func TestProcessPayroll_PendingDoesNotBlock(t *testing.T) {
	svc, repo, _ := newTestService(t)
	w := addWorker(t, svc, 1, "50000")

	pending := submission(w.ID, "January")
	pending.PaidStatus = model.PaidStatusPending
	res, err := svc.ProcessPayroll(context.Background(), pending)
	require.NoError(t, err)
	assert.Nil(t, res.Record.PaidDate)

	_, err = svc.ProcessPayroll(context.Background(), submission(w.ID, "January"))
	require.NoError(t, err)
	assert.Equal(t, 2, countPayrolls(t, repo))
}

func TestProcessPayroll_UsesGivenPaidDate(t *testing.T) {
	svc, _, _ := newTestService(t)
	w := addWorker(t, svc, 1, "50000")

	paid := time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC)
	sub := submission(w.ID, "February")
	sub.PaidDate = &paid

	res, err := svc.ProcessPayroll(context.Background(), sub)
	require.NoError(t, err)
	require.NotNil(t, res.Record.PaidDate)
	assert.True(t, paid.Equal(*res.Record.PaidDate))
}

func TestProcessPayroll_OTWarning(t *testing.T) {
	svc, repo, _ := newTestService(t)
	w := addWorker(t, svc, 1, "48000")

	for _, m := range []model.Month{"October", "November", "December"} {
		sub := submission(w.ID, m)
		sub.Year = 2024
		sub.Input.OTHours = dec("2")
		_, err := svc.ProcessPayroll(context.Background(), sub)
		require.NoError(t, err)
	}

	sub := submission(w.ID, "January")
	sub.Input.OTHours = dec("10")
	res, err := svc.ProcessPayroll(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, []string{"abnormal OT spike: 10 hours vs average 2.0"}, res.Warnings)
	assert.Equal(t, 4, countPayrolls(t, repo))
}

func TestProcessPayroll_NotFound(t *testing.T) {
	svc, repo, sender := newTestService(t)

	_, err := svc.ProcessPayroll(context.Background(), submission(999, "January"))
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, countPayrolls(t, repo))
	assert.Equal(t, 0, sender.count())
}

func TestProcessPayroll_InvalidInput(t *testing.T) {
	svc, repo, _ := newTestService(t)
	w := addWorker(t, svc, 1, "50000")

	negative := submission(w.ID, "January")
	negative.Input.OTHours = dec("-1")
	_, err := svc.ProcessPayroll(context.Background(), negative)
	assert.ErrorIs(t, err, salary.ErrInvalidInput)

	badMonth := submission(w.ID, "Smarch")
	_, err = svc.ProcessPayroll(context.Background(), badMonth)
	require.ErrorIs(t, err, salary.ErrInvalidInput)
	var verrs validation.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Contains(t, verrs.ToMap(), "month")

	assert.Equal(t, 0, countPayrolls(t, repo))
}

func TestProcessPayroll_DeliveryFailureIsNotFatal(t *testing.T) {
	svc, repo, sender := newTestService(t)
	w := addWorker(t, svc, 1, "50000")
	sender.err = errors.New("smtp down")

	res, err := svc.ProcessPayroll(context.Background(), submission(w.ID, "January"))
	require.NoError(t, err)
	assert.EqualError(t, res.DeliveryErr, "smtp down")
	assert.Equal(t, 1, countPayrolls(t, repo))
}

func TestProcessPayroll_NoEmailSkipsReceipt(t *testing.T) {
	svc, _, sender := newTestService(t)
	w := addWorker(t, svc, 1, "50000")
	w.Email = ""
	_, err := svc.UpdateWorker(context.Background(), *w)
	require.NoError(t, err)

	res, err := svc.ProcessPayroll(context.Background(), submission(w.ID, "January"))
	require.NoError(t, err)
	assert.NoError(t, res.DeliveryErr)
	assert.Equal(t, 0, sender.count())
}

type conflictRepo struct {
	*repository.MemoryRepository
}

func (c conflictRepo) CommitPayroll(context.Context, model.PayrollRecord) (*model.PayrollRecord, error) {
	return nil, fmt.Errorf("%w: worker 1, January 2025", repository.ErrPayrollExists)
}

func TestProcessPayroll_StoreConflict(t *testing.T) {
	mem := repository.NewMemoryRepository()
	svc := NewService(conflictRepo{mem}, nil, salary.DefaultRates(), nil)
	w := addWorker(t, svc, 1, "50000")

	_, err := svc.ProcessPayroll(context.Background(), submission(w.ID, "January"))
	require.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, repository.ErrPayrollExists)
}

func TestProcessPayroll_ConcurrentSamePeriod(t *testing.T) {
	svc, repo, _ := newTestService(t)
	w := addWorker(t, svc, 1, "50000")

	const attempts = 10
	errs := make(chan error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ProcessPayroll(context.Background(), submission(w.ID, "March"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	committed := 0
	for err := range errs {
		switch {
		case err == nil:
			committed++
		case errors.Is(err, ErrRejected), errors.Is(err, ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, committed)
	assert.Equal(t, 1, countPayrolls(t, repo))
}

func TestProcessBulk_SkipsAlreadyPaid(t *testing.T) {
	svc, repo, sender := newTestService(t)

	var subs []Submission
	for i := 1; i <= 5; i++ {
		w := addWorker(t, svc, i, "40000")
		subs = append(subs, submission(w.ID, "January"))
	}

	_, err := svc.ProcessPayroll(context.Background(), subs[2])
	require.NoError(t, err)

	res, err := svc.ProcessBulk(context.Background(), subs)
	require.NoError(t, err)
	assert.Len(t, res.Committed, 4)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, subs[2].WorkerID, res.Skipped[0].WorkerID)
	assert.ErrorIs(t, res.Skipped[0].Err, ErrRejected)
	assert.Contains(t, res.Skipped[0].Reason, "already paid for January 2025")

	assert.Equal(t, 5, countPayrolls(t, repo))
	assert.Equal(t, 5, sender.count())
}

func TestProcessBulk_DuplicateWithinBatch(t *testing.T) {
	svc, repo, _ := newTestService(t)
	w := addWorker(t, svc, 1, "40000")

	res, err := svc.ProcessBulk(context.Background(), []Submission{
		submission(w.ID, "May"),
		submission(w.ID, "May"),
	})
	require.NoError(t, err)
	assert.Len(t, res.Committed, 1)
	require.Len(t, res.Skipped, 1)
	assert.ErrorIs(t, res.Skipped[0].Err, ErrRejected)
	assert.Equal(t, 1, countPayrolls(t, repo))
}

func TestProcessBulk_EntryErrorsDoNotAbort(t *testing.T) {
	svc, _, sender := newTestService(t)
	w := addWorker(t, svc, 1, "40000")
	sender.err = errors.New("delivery failed")

	bad := submission(w.ID, "June")
	bad.Input.Incentives = dec("-5")

	res, err := svc.ProcessBulk(context.Background(), []Submission{
		submission(404, "June"),
		bad,
		submission(w.ID, "June"),
	})
	require.NoError(t, err)
	require.Len(t, res.Committed, 1)
	assert.Error(t, res.Committed[0].DeliveryErr)
	require.Len(t, res.Skipped, 2)
	assert.ErrorIs(t, res.Skipped[0].Err, ErrNotFound)
	assert.ErrorIs(t, res.Skipped[1].Err, salary.ErrInvalidInput)
}

func TestProcessBulk_CancelledContext(t *testing.T) {
	svc, repo, _ := newTestService(t)
	w := addWorker(t, svc, 1, "40000")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := svc.ProcessBulk(ctx, []Submission{submission(w.ID, "July")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Committed)
	assert.Equal(t, 0, countPayrolls(t, repo))
}

func TestRates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	rates, err := svc.Rates(ctx)
	require.NoError(t, err)
	assert.True(t, rates.EPF.Equal(salary.DefaultEPFRate))

	require.NoError(t, svc.UpdateRates(ctx, salary.Rates{EPF: dec("0.1"), ETF: dec("0.15")}))

	w := addWorker(t, svc, 1, "50000")
	res, err := svc.ProcessPayroll(ctx, submission(w.ID, "August"))
	require.NoError(t, err)
	assert.Equal(t, "5000.00", res.Record.EPFEmployee.StringFixed(2))
	assert.Equal(t, "7500.00", res.Record.ETFEmployer.StringFixed(2))
	assert.Equal(t, "45000.00", res.Record.NetSalary.StringFixed(2))
	assert.True(t, res.Record.EPFRate.Equal(dec("0.1")))

	err = svc.UpdateRates(ctx, salary.Rates{EPF: dec("1.5"), ETF: dec("0.12")})
	assert.ErrorIs(t, err, salary.ErrInvalidInput)
}

func TestRates_InvalidSettingFallsBack(t *testing.T) {
	svc, repo, _ := newTestService(t)
	require.NoError(t, repo.UpsertSettings(context.Background(), map[string]string{
		repository.SettingEPFRate: "eight percent",
		repository.SettingETFRate: "0.2",
	}))

	rates, err := svc.Rates(context.Background())
	require.NoError(t, err)
	assert.True(t, rates.EPF.Equal(salary.DefaultEPFRate))
	assert.True(t, rates.ETF.Equal(dec("0.2")))
}

func TestPreview(t *testing.T) {
	svc, repo, _ := newTestService(t)
	w := addWorker(t, svc, 1, "50000")

	b, err := svc.Preview(context.Background(), w.ID, salary.Input{PresentDays: intPtr(26), LeaveDays: intPtr(4)})
	require.NoError(t, err)
	assert.Equal(t, "43333.33", b.BasicSalary.StringFixed(2))
	assert.Equal(t, 0, countPayrolls(t, repo))

	_, err = svc.Preview(context.Background(), 404, salary.Input{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWorkers_IdentityGuard(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	first := addWorker(t, svc, 1, "30000")

	dup := *first
	dup.ID = 0
	dup.FullName = "Someone Else"
	dup.NationalID = "NIC-99"
	_, err := svc.CreateWorker(ctx, dup)
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "duplicate bank_account_no used by Worker 1")

	second := addWorker(t, svc, 2, "30000")
	second.NationalID = first.NationalID
	_, err = svc.UpdateWorker(ctx, *second)
	require.ErrorIs(t, err, ErrRejected)

	_, err = svc.UpdateWorker(ctx, model.Worker{ID: 404})
	assert.ErrorIs(t, err, ErrNotFound)

	padded := addWorker(t, svc, 3, "30000")
	padded.BankAccountNo = " ACC-77 "
	padded, err = svc.UpdateWorker(ctx, *padded)
	require.NoError(t, err)
	assert.Equal(t, "ACC-77", padded.BankAccountNo)

	sameAccount := model.Worker{
		FullName:      "Worker 4",
		NationalID:    "NIC-4",
		JobPosition:   "Field Officer",
		BankName:      "People's Bank",
		BankAccountNo: "ACC-77",
		BasicSalary:   dec("30000"),
	}
	_, err = svc.CreateWorker(ctx, sameAccount)
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "duplicate bank_account_no used by Worker 3")

	sameAccount.BankAccountNo = "ACC-4"
	sameAccount.NationalID = "  NIC-3\t"
	_, err = svc.CreateWorker(ctx, sameAccount)
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "duplicate national_id used by Worker 3")

	_, err = svc.CreateWorker(ctx, model.Worker{FullName: "No Details"})
	assert.ErrorIs(t, err, salary.ErrInvalidInput)

	got, err := svc.GetWorker(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkerStatusActive, got.Status)
}

func TestMarkPaid(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	w := addWorker(t, svc, 1, "50000")

	pending := submission(w.ID, "September")
	pending.PaidStatus = model.PaidStatusPending

	first, err := svc.ProcessPayroll(ctx, pending)
	require.NoError(t, err)
	second, err := svc.ProcessPayroll(ctx, pending)
	require.NoError(t, err)

	rec, err := svc.MarkPaid(ctx, first.Record.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.PaidStatusPaid, rec.PaidStatus)

	_, err = svc.MarkPaid(ctx, second.Record.ID, nil)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.MarkPaid(ctx, first.Record.ID, nil)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.MarkPaid(ctx, 404, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	a := addWorker(t, svc, 1, "50000")
	b := addWorker(t, svc, 2, "40000")

	res, err := svc.ProcessPayroll(ctx, submission(a.ID, "May"))
	require.NoError(t, err)
	_, err = svc.ProcessPayroll(ctx, submission(b.ID, "May"))
	require.NoError(t, err)

	require.NoError(t, svc.DeletePayroll(ctx, res.Record.ID))
	assert.ErrorIs(t, svc.DeletePayroll(ctx, res.Record.ID), ErrNotFound)

	_, err = svc.ProcessPayroll(ctx, submission(a.ID, "May"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteWorker(ctx, a.ID))
	assert.ErrorIs(t, svc.DeleteWorker(ctx, a.ID), ErrNotFound)

	_, err = svc.GetWorker(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, countPayrolls(t, repo))
}

func TestDashboard(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	svc.now = func() time.Time { return time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC) }

	a := addWorker(t, svc, 1, "50000")
	b := addWorker(t, svc, 2, "40000")
	b.Status = model.WorkerStatusResigned
	_, err := svc.UpdateWorker(ctx, *b)
	require.NoError(t, err)

	_, err = svc.ProcessPayroll(ctx, submission(a.ID, "March"))
	require.NoError(t, err)
	_, err = svc.ProcessPayroll(ctx, submission(b.ID, "March"))
	require.NoError(t, err)
	_, err = svc.ProcessPayroll(ctx, submission(a.ID, "January"))
	require.NoError(t, err)

	stats, err := svc.DashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalWorkers)
	assert.Equal(t, 1, stats.ActiveWorkers)
	assert.Equal(t, model.Month("March"), stats.Month)
	assert.Equal(t, 2, stats.Totals.Records)
	assert.Equal(t, "90000.00", stats.Totals.BasicSalary.StringFixed(2))
	assert.Equal(t, "82800.00", stats.Totals.NetSalary.StringFixed(2))

	monthly, err := svc.MonthlyStats(ctx, 2025)
	require.NoError(t, err)
	require.Len(t, monthly, 12)
	assert.Equal(t, 1, monthly[0].Records)
	assert.Equal(t, 0, monthly[1].Records)
	assert.True(t, monthly[1].NetSalary.IsZero())
	assert.Equal(t, 2, monthly[2].Records)
}
