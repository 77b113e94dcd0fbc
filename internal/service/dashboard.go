package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/payroll-system/internal/model"
)

// DashboardStats содержит сводку по работникам и ведомости за текущий месяц.
type DashboardStats struct {
	TotalWorkers  int
	ActiveWorkers int
	Month         model.Month
	Year          int
	Totals        model.PeriodTotals
}

// DashboardStats возвращает сводку за текущий месяц.
func (s *Service) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	workers, err := s.repo.ListWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}

	now := s.now()
	stats := &DashboardStats{
		TotalWorkers: len(workers),
		Month:        model.MonthOf(now),
		Year:         now.Year(),
	}
	for _, w := range workers {
		if w.Status == model.WorkerStatusActive {
			stats.ActiveWorkers++
		}
	}

	totals, err := s.MonthlyStats(ctx, stats.Year)
	if err != nil {
		return nil, err
	}
	stats.Totals = totals[now.Month()-1]

	return stats, nil
}

// MonthlyStats возвращает суммы по ведомости за каждый из двенадцати месяцев года.
// Месяцы без записей возвращаются с нулевыми суммами.
func (s *Service) MonthlyStats(ctx context.Context, year int) ([]model.PeriodTotals, error) {
	totals, err := s.repo.PeriodTotals(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("period totals: %w", err)
	}

	byMonth := make(map[model.Month]model.PeriodTotals, len(totals))
	for _, t := range totals {
		byMonth[t.Month] = t
	}

	res := make([]model.PeriodTotals, 0, len(model.Months))
	for _, m := range model.Months {
		t, ok := byMonth[m]
		if !ok {
			t = model.PeriodTotals{
				Month:       m,
				Year:        year,
				BasicSalary: decimal.Zero,
				EPFEmployee: decimal.Zero,
				ETFEmployer: decimal.Zero,
				NetSalary:   decimal.Zero,
			}
		}
		res = append(res, t)
	}

	return res, nil
}
