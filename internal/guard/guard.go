// Package guard проверяет записи ведомости и профили работников перед сохранением:
// повторную выплату за период, аномальные сверхурочные и совпадение реквизитов
// разных работников.
//
// Проверки не обращаются к хранилищу и работают только с переданными данными.
// Проверка повторной выплаты даёт быстрый отказ до записи; окончательно уникальность
// обеспечивает ограничение в хранилище.
package guard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/payroll-system/internal/model"
)

// Kind задаёт тип решения проверки.
type Kind int

const (
	// Allow: операцию можно выполнять.
	Allow Kind = iota
	// Warn: операцию можно выполнять, но причину нужно показать оператору.
	Warn
	// Block: операцию выполнять нельзя.
	Block
)

func (k Kind) String() string {
	switch k {
	case Allow:
		return "allow"
	case Warn:
		return "warn"
	case Block:
		return "block"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Verdict содержит решение проверки с причиной для Warn и Block.
type Verdict struct {
	Kind   Kind
	Reason string
}

const otHistoryDepth = 3

var (
	otSpikeFloor      = decimal.NewFromInt(5)
	otSpikeMultiplier = decimal.NewFromInt(2)
)

// Evaluate проверяет запись-кандидат по истории ведомостей работника.
// Правила применяются по порядку, первое сработавшее определяет результат.
func Evaluate(candidate model.PayrollRecord, worker model.Worker, history []model.PayrollRecord) Verdict {
	own := make([]model.PayrollRecord, 0, len(history))
	for _, r := range history {
		if r.WorkerID == worker.ID {
			own = append(own, r)
		}
	}

	for _, r := range own {
		if r.Month == candidate.Month && r.Year == candidate.Year && r.PaidStatus == model.PaidStatusPaid {
			return Verdict{
				Kind:   Block,
				Reason: fmt.Sprintf("already paid for %s %d", candidate.Month, candidate.Year),
			}
		}
	}

	if len(own) == 0 {
		return Verdict{Kind: Allow}
	}

	sort.SliceStable(own, func(i, j int) bool {
		return own[i].CreatedAt.After(own[j].CreatedAt)
	})
	if len(own) > otHistoryDepth {
		own = own[:otHistoryDepth]
	}

	total := decimal.Zero
	for _, r := range own {
		total = total.Add(r.OTHours)
	}
	avg := total.Div(decimal.NewFromInt(int64(len(own))))

	ot := candidate.OTHours
	if ot.GreaterThan(otSpikeFloor) && ot.GreaterThan(avg.Mul(otSpikeMultiplier)) {
		return Verdict{
			Kind:   Warn,
			Reason: fmt.Sprintf("abnormal OT spike: %s hours vs average %s", ot.String(), avg.StringFixed(1)),
		}
	}

	return Verdict{Kind: Allow}
}

// EvaluateWorkerIdentity проверяет, что банковский счёт и национальный идентификатор
// кандидата не используются другим работником. Пустые значения не проверяются.
func EvaluateWorkerIdentity(candidate model.Worker, existing []model.Worker) Verdict {
	checks := []struct {
		field string
		value func(model.Worker) string
	}{
		{"bank_account_no", func(w model.Worker) string { return w.BankAccountNo }},
		{"national_id", func(w model.Worker) string { return w.NationalID }},
	}

	for _, c := range checks {
		v := strings.TrimSpace(c.value(candidate))
		if v == "" {
			continue
		}
		for _, other := range existing {
			if candidate.ID != 0 && other.ID == candidate.ID {
				continue
			}
			if strings.TrimSpace(c.value(other)) == v {
				return Verdict{
					Kind:   Block,
					Reason: fmt.Sprintf("duplicate %s used by %s", c.field, other.FullName),
				}
			}
		}
	}

	return Verdict{Kind: Allow}
}
