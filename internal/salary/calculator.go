// Package salary реализует расчёт составляющих заработной платы за период.
//
// Расчёт детерминирован и не имеет побочных эффектов: один и тот же набор входных
// данных всегда даёт один и тот же результат. Пакет безопасен для конкурентного использования.
package salary

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput возвращается при отрицательных входных значениях.
var ErrInvalidInput = errors.New("invalid salary input")

var (
	// DefaultEPFRate задаёт долю удержания EPF с работника.
	DefaultEPFRate = decimal.RequireFromString("0.08")
	// DefaultETFRate задаёт долю взноса ETF работодателя.
	DefaultETFRate = decimal.RequireFromString("0.12")

	// Базовое число часов в месяце для расчёта часовой ставки: 30 дней по 8 часов.
	monthlyHours = decimal.NewFromInt(240)
	otMultiplier = decimal.RequireFromString("1.5")
)

const currencyPlaces = 2

// Rates задаёт ставки обязательных отчислений.
type Rates struct {
	EPF decimal.Decimal
	ETF decimal.Decimal
}

// DefaultRates возвращает ставки по умолчанию.
func DefaultRates() Rates {
	return Rates{EPF: DefaultEPFRate, ETF: DefaultETFRate}
}

// Input содержит данные за расчётный период. Пропорциональный расчёт оклада
// выполняется только если заданы и PresentDays, и LeaveDays.
type Input struct {
	PresentDays     *int
	LeaveDays       *int
	OTHours         decimal.Decimal
	Incentives      decimal.Decimal
	OtherDeductions decimal.Decimal
}

// Breakdown содержит результат расчёта. Все суммы округлены до двух знаков.
type Breakdown struct {
	BasicSalary decimal.Decimal
	EPFEmployee decimal.Decimal
	ETFEmployer decimal.Decimal
	OTRate      decimal.Decimal
	OTAmount    decimal.Decimal
	NetSalary   decimal.Decimal
}

// Calculate рассчитывает составляющие заработной платы по месячному окладу,
// данным за период и ставкам отчислений.
//
// Сверхурочные считаются от полного оклада независимо от пропорционального расчёта,
// а EPF и ETF считаются от пропорционального оклада.
func Calculate(basicMonthlySalary decimal.Decimal, in Input, rates Rates) (Breakdown, error) {
	if err := validate(basicMonthlySalary, in, rates); err != nil {
		return Breakdown{}, err
	}

	basic := basicMonthlySalary
	if in.PresentDays != nil && in.LeaveDays != nil {
		present := decimal.NewFromInt(int64(*in.PresentDays))
		total := present.Add(decimal.NewFromInt(int64(*in.LeaveDays)))
		if total.IsPositive() {
			basic = basicMonthlySalary.Mul(present).Div(total)
		} else {
			basic = decimal.Zero
		}
	}

	otRate := basicMonthlySalary.Mul(otMultiplier).Div(monthlyHours)
	otAmount := basicMonthlySalary.Mul(otMultiplier).Mul(in.OTHours).Div(monthlyHours)

	epf := basic.Mul(rates.EPF).Round(currencyPlaces)
	etf := basic.Mul(rates.ETF).Round(currencyPlaces)

	earnings := basic.Add(otAmount).Add(in.Incentives)
	deductions := epf.Add(in.OtherDeductions)

	return Breakdown{
		BasicSalary: basic.Round(currencyPlaces),
		EPFEmployee: epf,
		ETFEmployer: etf,
		OTRate:      otRate.Round(currencyPlaces),
		OTAmount:    otAmount.Round(currencyPlaces),
		NetSalary:   earnings.Sub(deductions).Round(currencyPlaces),
	}, nil
}

func validate(salary decimal.Decimal, in Input, rates Rates) error {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"basic_monthly_salary", salary},
		{"ot_hours", in.OTHours},
		{"incentives", in.Incentives},
		{"other_deductions", in.OtherDeductions},
		{"epf_rate", rates.EPF},
		{"etf_rate", rates.ETF},
	}
	for _, f := range fields {
		if f.value.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidInput, f.name)
		}
	}

	if in.PresentDays != nil && *in.PresentDays < 0 {
		return fmt.Errorf("%w: present_days must not be negative", ErrInvalidInput)
	}
	if in.LeaveDays != nil && *in.LeaveDays < 0 {
		return fmt.Errorf("%w: leave_days must not be negative", ErrInvalidInput)
	}

	return nil
}
