package validation

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/payroll-system/internal/model"
)

func validWorker() model.Worker {
	return model.Worker{
		FullName:      "Nimal Perera",
		Email:         "nimal@example.com",
		NationalID:    "199012345678",
		JobPosition:   "Driver",
		BankName:      "People's Bank",
		BankAccountNo: "100200300",
		BasicSalary:   decimal.NewFromInt(50000),
		Status:        model.WorkerStatusActive,
	}
}

func TestWorker(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(w *model.Worker)
		fields []string
	}{
		{name: "valid", mutate: func(*model.Worker) {}},
		{name: "no email is fine", mutate: func(w *model.Worker) { w.Email = "" }},
		{name: "missing name", mutate: func(w *model.Worker) { w.FullName = "  " }, fields: []string{"full_name"}},
		{name: "bad email", mutate: func(w *model.Worker) { w.Email = "nimal@" }, fields: []string{"email"}},
		{
			name: "negative amounts",
			mutate: func(w *model.Worker) {
				w.BasicSalary = decimal.NewFromInt(-1)
				w.MobileAllowance = decimal.NewFromInt(-1)
			},
			fields: []string{"basic_salary", "mobile_allowance"},
		},
		{
			name: "sub-cent and oversized amounts",
			mutate: func(w *model.Worker) {
				w.BasicSalary = decimal.RequireFromString("50000.005")
				w.CostOfLivingAllowance = decimal.New(1, 10)
			},
			fields: []string{"basic_salary", "cost_of_living_allowance"},
		},
		{name: "trailing zeros are fine", mutate: func(w *model.Worker) { w.BasicSalary = decimal.RequireFromString("50000.500") }},
		{name: "unknown status", mutate: func(w *model.Worker) { w.Status = "retired" }, fields: []string{"status"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := validWorker()
			tt.mutate(&w)

			err := Worker(w)
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}

			var errs ValidationErrors
			require.True(t, errors.As(err, &errs))
			m := errs.ToMap()
			assert.Len(t, m, len(tt.fields))
			for _, f := range tt.fields {
				assert.Contains(t, m, f)
			}
		})
	}
}

func TestPayroll(t *testing.T) {
	neg := -1
	valid := model.PayrollRecord{
		WorkerID:      1,
		Month:         "March",
		Year:          2025,
		PaymentMethod: model.PaymentMethodCash,
		PaidStatus:    model.PaidStatusPaid,
	}
	assert.NoError(t, Payroll(valid))

	bad := valid
	bad.WorkerID = 0
	bad.Month = "Marchember"
	bad.Year = 1999
	bad.PaymentMethod = "crypto"
	bad.PaidStatus = "maybe"
	bad.LeaveDays = &neg
	bad.OTHours = decimal.NewFromInt(-2)

	var errs ValidationErrors
	require.True(t, errors.As(Payroll(bad), &errs))
	assert.Equal(t, map[string]string{
		"worker_id":      "worker_id is required",
		"month":          "month must be a calendar month name",
		"year":           "year must be between 2000 and 2100",
		"payment_method": "payment_method must be one of cash, bank_transfer, cheque",
		"paid_status":    "paid_status must be one of pending, paid",
		"leave_days":     "leave_days must not be negative",
		"ot_hours":       "ot_hours must not be negative",
	}, errs.ToMap())
}

func TestPayroll_AmountPrecision(t *testing.T) {
	rec := model.PayrollRecord{
		WorkerID:        1,
		Month:           "March",
		Year:            2025,
		PaymentMethod:   model.PaymentMethodCash,
		PaidStatus:      model.PaidStatusPending,
		OTHours:         decimal.RequireFromString("10000"),
		Incentives:      decimal.RequireFromString("0.005"),
		OtherDeductions: decimal.RequireFromString("12.50"),
	}

	var errs ValidationErrors
	require.True(t, errors.As(Payroll(rec), &errs))
	assert.Equal(t, map[string]string{
		"ot_hours":   "ot_hours must be less than 10000",
		"incentives": "incentives must have at most 2 decimal places",
	}, errs.ToMap())

	rec.OTHours = decimal.RequireFromString("9999.99")
	rec.Incentives = decimal.RequireFromString("0.01")
	assert.NoError(t, Payroll(rec))
}

func TestRate(t *testing.T) {
	assert.NoError(t, Rate("epf_rate", decimal.Zero))
	assert.NoError(t, Rate("epf_rate", decimal.RequireFromString("0.08")))
	assert.NoError(t, Rate("epf_rate", decimal.NewFromInt(1)))
	assert.Error(t, Rate("epf_rate", decimal.RequireFromString("1.01")))
	assert.EqualError(t, Rate("etf_rate", decimal.RequireFromString("-0.1")), "etf_rate: etf_rate must be between 0 and 1")
	assert.NoError(t, Rate("epf_rate", decimal.RequireFromString("0.0825")))
	assert.EqualError(t, Rate("epf_rate", decimal.RequireFromString("0.08125")), "epf_rate: epf_rate must have at most 4 decimal places")
}

func TestIsValidEmail(t *testing.T) {
	assert.True(t, IsValidEmail("a.b@example.lk"))
	assert.False(t, IsValidEmail("a.b@example"))
	assert.False(t, IsValidEmail(""))
}
