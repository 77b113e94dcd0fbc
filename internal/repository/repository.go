// Package repository содержит реализации хранилища работников, платёжных ведомостей и настроек.
package repository

import "errors"

var (
	// ErrWorkerNotFound возвращается, если работник не найден.
	ErrWorkerNotFound = errors.New("worker not found")
	// ErrNationalIDExists возвращается при попытке сохранить второго работника с тем же национальным идентификатором.
	ErrNationalIDExists = errors.New("national id already registered")
	// ErrPayrollNotFound возвращается, если запись ведомости не найдена.
	ErrPayrollNotFound = errors.New("payroll record not found")
	// ErrPayrollExists возвращается, если за период уже есть оплаченная запись работника.
	ErrPayrollExists = errors.New("paid payroll record already exists for period")
	// ErrPayrollAlreadyPaid возвращается при попытке повторно отметить запись оплаченной.
	ErrPayrollAlreadyPaid = errors.New("payroll record already paid")
)

// Ключи таблицы настроек.
const (
	SettingEPFRate = "epf_rate"
	SettingETFRate = "etf_rate"
)
