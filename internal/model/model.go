// Package model содержит доменные сущности сервиса расчёта заработной платы.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WorkerStatus описывает статус работника.
type WorkerStatus string

const (
	WorkerStatusActive     WorkerStatus = "active"
	WorkerStatusInactive   WorkerStatus = "inactive"
	WorkerStatusResigned   WorkerStatus = "resigned"
	WorkerStatusTerminated WorkerStatus = "terminated"
)

// Valid сообщает, является ли статус допустимым.
func (s WorkerStatus) Valid() bool {
	switch s {
	case WorkerStatusActive, WorkerStatusInactive, WorkerStatusResigned, WorkerStatusTerminated:
		return true
	}
	return false
}

// Worker описывает работника и его профиль оплаты.
type Worker struct {
	ID                    int64
	FullName              string
	Email                 string
	NationalID            string
	JobPosition           string
	BankName              string
	BankAccountNo         string
	BasicSalary           decimal.Decimal
	CostOfLivingAllowance decimal.Decimal
	MobileAllowance       decimal.Decimal
	Status                WorkerStatus
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// PaymentMethod описывает способ выплаты.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCheque       PaymentMethod = "cheque"
)

// Valid сообщает, является ли способ выплаты допустимым.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodCheque:
		return true
	}
	return false
}

// PaidStatus описывает статус выплаты по ведомости.
type PaidStatus string

const (
	PaidStatusPending PaidStatus = "pending"
	PaidStatusPaid    PaidStatus = "paid"
)

// Valid сообщает, является ли статус выплаты допустимым.
func (s PaidStatus) Valid() bool {
	return s == PaidStatusPending || s == PaidStatusPaid
}

// PayrollRecord описывает запись платёжной ведомости работника за месяц.
// Суммы и ставки фиксируются на момент создания и в дальнейшем не пересчитываются.
type PayrollRecord struct {
	ID            int64
	WorkerID      int64
	Month         Month
	Year          int
	PaymentMethod PaymentMethod
	PaidStatus    PaidStatus
	PaidDate      *time.Time

	BasicSalary decimal.Decimal
	EPFEmployee decimal.Decimal
	ETFEmployer decimal.Decimal
	OTRate      decimal.Decimal
	OTAmount    decimal.Decimal
	NetSalary   decimal.Decimal

	PresentDays     *int
	LeaveDays       *int
	OTHours         decimal.Decimal
	Incentives      decimal.Decimal
	OtherDeductions decimal.Decimal

	EPFRate decimal.Decimal
	ETFRate decimal.Decimal

	CreatedAt time.Time

	// Заполняется при выборке вместе с работником.
	WorkerName string
}

// PayrollFilter задаёт условия выборки записей ведомости. Нулевые поля не фильтруют.
type PayrollFilter struct {
	WorkerID int64
	Month    Month
	Year     int
}

// PeriodTotals содержит суммы по ведомости за один месяц.
type PeriodTotals struct {
	Month       Month
	Year        int
	Records     int
	BasicSalary decimal.Decimal
	EPFEmployee decimal.Decimal
	ETFEmployer decimal.Decimal
	NetSalary   decimal.Decimal
}
