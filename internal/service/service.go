// Package service реализует бизнес-логику сервиса расчёта заработной платы.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/payroll-system/internal/model"
	"github.com/mmeshcher/payroll-system/internal/receipt"
	"github.com/mmeshcher/payroll-system/internal/repository"
	"github.com/mmeshcher/payroll-system/internal/salary"
	"github.com/mmeshcher/payroll-system/internal/validation"
)

var (
	// ErrNotFound возвращается, если работник или запись ведомости не найдены.
	ErrNotFound = errors.New("not found")
	// ErrRejected возвращается, если проверка целостности запретила операцию.
	ErrRejected = errors.New("rejected")
	// ErrConflict возвращается, если хранилище отклонило запись из-за ограничения уникальности.
	ErrConflict = errors.New("conflict")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateWorker(ctx context.Context, w model.Worker) (*model.Worker, error)
	UpdateWorker(ctx context.Context, w model.Worker) (*model.Worker, error)
	GetWorker(ctx context.Context, id int64) (*model.Worker, error)
	ListWorkers(ctx context.Context) ([]model.Worker, error)
	FindWorkersByIdentity(ctx context.Context, bankAccountNo, nationalID string) ([]model.Worker, error)
	DeleteWorker(ctx context.Context, id int64) error

	CommitPayroll(ctx context.Context, rec model.PayrollRecord) (*model.PayrollRecord, error)
	GetPayroll(ctx context.Context, id int64) (*model.PayrollRecord, error)
	GetPayrollHistory(ctx context.Context, workerID int64) ([]model.PayrollRecord, error)
	ListPayrolls(ctx context.Context, filter model.PayrollFilter) ([]model.PayrollRecord, error)
	MarkPayrollPaid(ctx context.Context, id int64, paidDate time.Time) (*model.PayrollRecord, error)
	DeletePayroll(ctx context.Context, id int64) error
	PeriodTotals(ctx context.Context, year int) ([]model.PeriodTotals, error)

	GetSettings(ctx context.Context) (map[string]string, error)
	UpsertSettings(ctx context.Context, values map[string]string) error
}

// ReceiptSender доставляет квитанции о выплате.
type ReceiptSender interface {
	SendReceipt(ctx context.Context, r receipt.Receipt) error
}

// Service содержит бизнес-логику сервиса расчёта заработной платы.
type Service struct {
	repo     Repository
	sender   ReceiptSender
	defaults salary.Rates
	logger   *zap.Logger
	now      func() time.Time
}

// NewService создаёт сервис. sender может быть nil, тогда квитанции не отправляются.
func NewService(repo Repository, sender ReceiptSender, defaults salary.Rates, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		sender:   sender,
		defaults: defaults,
		logger:   logger,
		now:      time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrWorkerNotFound), errors.Is(err, repository.ErrPayrollNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, repository.ErrPayrollExists),
		errors.Is(err, repository.ErrNationalIDExists),
		errors.Is(err, repository.ErrPayrollAlreadyPaid):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

// Rates возвращает текущие ставки отчислений: значения из настроек,
// а при их отсутствии или повреждении значения по умолчанию.
func (s *Service) Rates(ctx context.Context) (salary.Rates, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return salary.Rates{}, fmt.Errorf("get settings: %w", err)
	}

	rates := s.defaults
	rates.EPF = s.rateSetting(settings, repository.SettingEPFRate, rates.EPF)
	rates.ETF = s.rateSetting(settings, repository.SettingETFRate, rates.ETF)
	return rates, nil
}

func (s *Service) rateSetting(settings map[string]string, key string, fallback decimal.Decimal) decimal.Decimal {
	raw, ok := settings[key]
	if !ok {
		return fallback
	}
	v, err := decimal.NewFromString(raw)
	if err != nil || validation.Rate(key, v) != nil {
		s.logger.Warn("invalid rate setting, using default",
			zap.String("key", key),
			zap.String("value", raw),
		)
		return fallback
	}
	return v
}

// UpdateRates сохраняет ставки отчислений. Уже сохранённые записи ведомости не пересчитываются.
func (s *Service) UpdateRates(ctx context.Context, rates salary.Rates) error {
	var errs validation.ValidationErrors
	for _, r := range []struct {
		key  string
		rate decimal.Decimal
	}{
		{repository.SettingEPFRate, rates.EPF},
		{repository.SettingETFRate, rates.ETF},
	} {
		var verrs validation.ValidationErrors
		if err := validation.Rate(r.key, r.rate); errors.As(err, &verrs) {
			errs = append(errs, verrs...)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", salary.ErrInvalidInput, errs)
	}

	return s.repo.UpsertSettings(ctx, map[string]string{
		repository.SettingEPFRate: rates.EPF.String(),
		repository.SettingETFRate: rates.ETF.String(),
	})
}
