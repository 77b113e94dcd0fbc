// Package validation содержит функции валидации входных данных.
package validation

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/payroll-system/internal/model"
)

// Допустимый диапазон года ведомости.
const (
	MinYear = 2000
	MaxYear = 2100

	maxNameLength = 255
)

var (
	// Пределы столбцов NUMERIC(12,2) и NUMERIC(6,2) хранилища.
	maxAmount  = decimal.New(1, 10)
	maxOTHours = decimal.New(1, 4)
)

// ValidationError описывает ошибку в одном поле.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors собирает ошибки валидации и возвращается как error.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, err := range v {
		msgs = append(msgs, err.Field+": "+err.Message)
	}
	return strings.Join(msgs, "; ")
}

// ToMap возвращает ошибки в виде поле -> сообщение.
func (v ValidationErrors) ToMap() map[string]string {
	result := make(map[string]string, len(v))
	for _, err := range v {
		result[err.Field] = err.Message
	}
	return result
}

func (v *ValidationErrors) add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

func (v ValidationErrors) err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// IsEmpty сообщает, что строка пустая после удаления пробелов.
func IsEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// IsValidEmail проверяет формат адреса электронной почты.
func IsValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// Worker проверяет профиль работника.
func Worker(w model.Worker) error {
	var errs ValidationErrors

	required := []struct {
		field string
		value string
	}{
		{"full_name", w.FullName},
		{"national_id", w.NationalID},
		{"job_position", w.JobPosition},
		{"bank_name", w.BankName},
		{"bank_account_no", w.BankAccountNo},
	}
	for _, r := range required {
		if IsEmpty(r.value) {
			errs.add(r.field, r.field+" is required")
		} else if len(r.value) > maxNameLength {
			errs.add(r.field, r.field+" must not exceed 255 characters")
		}
	}

	if !IsEmpty(w.Email) && !IsValidEmail(w.Email) {
		errs.add("email", "email is invalid")
	}

	amount(&errs, "basic_salary", w.BasicSalary, maxAmount)
	amount(&errs, "cost_of_living_allowance", w.CostOfLivingAllowance, maxAmount)
	amount(&errs, "mobile_allowance", w.MobileAllowance, maxAmount)

	if !w.Status.Valid() {
		errs.add("status", "status must be one of active, inactive, resigned, terminated")
	}

	return errs.err()
}

// Payroll проверяет период, способ и статус выплаты и данные за период записи ведомости.
func Payroll(rec model.PayrollRecord) error {
	var errs ValidationErrors

	if rec.WorkerID <= 0 {
		errs.add("worker_id", "worker_id is required")
	}
	if rec.Month.Number() == 0 {
		errs.add("month", "month must be a calendar month name")
	}
	if rec.Year < MinYear || rec.Year > MaxYear {
		errs.add("year", "year must be between 2000 and 2100")
	}
	if !rec.PaymentMethod.Valid() {
		errs.add("payment_method", "payment_method must be one of cash, bank_transfer, cheque")
	}
	if !rec.PaidStatus.Valid() {
		errs.add("paid_status", "paid_status must be one of pending, paid")
	}

	if rec.PresentDays != nil && *rec.PresentDays < 0 {
		errs.add("present_days", "present_days must not be negative")
	}
	if rec.LeaveDays != nil && *rec.LeaveDays < 0 {
		errs.add("leave_days", "leave_days must not be negative")
	}
	amount(&errs, "ot_hours", rec.OTHours, maxOTHours)
	amount(&errs, "incentives", rec.Incentives, maxAmount)
	amount(&errs, "other_deductions", rec.OtherDeductions, maxAmount)

	return errs.err()
}

// Rate проверяет, что ставка отчислений лежит в диапазоне от 0 до 1
// и содержит не больше четырёх знаков после запятой.
func Rate(field string, rate decimal.Decimal) error {
	var errs ValidationErrors
	switch {
	case rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)):
		errs.add(field, field+" must be between 0 and 1")
	case !rate.Equal(rate.Round(4)):
		errs.add(field, field+" must have at most 4 decimal places")
	}
	return errs.err()
}

// amount проверяет неотрицательную сумму с точностью до двух знаков, меньшую limit.
func amount(errs *ValidationErrors, field string, v, limit decimal.Decimal) {
	switch {
	case v.IsNegative():
		errs.add(field, field+" must not be negative")
	case !v.Equal(v.Round(2)):
		errs.add(field, field+" must have at most 2 decimal places")
	case v.GreaterThanOrEqual(limit):
		errs.add(field, field+" must be less than "+limit.String())
	}
}
