package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/payroll-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	paidPeriodIndex = "payrolls_paid_period_uniq"
	nationalIDIndex = "workers_national_id_uniq"
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет fn при конфликтах сериализации, взаимоблокировках и обрывах соединения.
// Нарушения ограничений уникальности не повторяются.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(200*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func uniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == constraint
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

const workerColumns = `id, full_name, email, national_id, job_position, bank_name, bank_account_no,
	basic_salary, cost_of_living_allowance, mobile_allowance, status, created_at, updated_at`

func scanWorker(row scanner) (*model.Worker, error) {
	var (
		w      model.Worker
		status string
	)
	err := row.Scan(&w.ID, &w.FullName, &w.Email, &w.NationalID, &w.JobPosition, &w.BankName, &w.BankAccountNo,
		&w.BasicSalary, &w.CostOfLivingAllowance, &w.MobileAllowance, &status, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.Status = model.WorkerStatus(status)
	return &w, nil
}

// CreateWorker сохраняет нового работника.
func (r *PostgresRepository) CreateWorker(ctx context.Context, w model.Worker) (*model.Worker, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO workers (full_name, email, national_id, job_position, bank_name, bank_account_no,
			basic_salary, cost_of_living_allowance, mobile_allowance, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+workerColumns,
		w.FullName, w.Email, w.NationalID, w.JobPosition, w.BankName, w.BankAccountNo,
		w.BasicSalary, w.CostOfLivingAllowance, w.MobileAllowance, string(w.Status),
	)

	created, err := scanWorker(row)
	if err != nil {
		if uniqueViolation(err, nationalIDIndex) {
			return nil, fmt.Errorf("%w: %s", ErrNationalIDExists, w.NationalID)
		}
		return nil, fmt.Errorf("create worker: %w", err)
	}
	return created, nil
}

// UpdateWorker перезаписывает профиль работника.
func (r *PostgresRepository) UpdateWorker(ctx context.Context, w model.Worker) (*model.Worker, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE workers SET full_name = $2, email = $3, national_id = $4, job_position = $5, bank_name = $6,
			bank_account_no = $7, basic_salary = $8, cost_of_living_allowance = $9, mobile_allowance = $10,
			status = $11, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+workerColumns,
		w.ID, w.FullName, w.Email, w.NationalID, w.JobPosition, w.BankName,
		w.BankAccountNo, w.BasicSalary, w.CostOfLivingAllowance, w.MobileAllowance, string(w.Status),
	)

	updated, err := scanWorker(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWorkerNotFound
		}
		if uniqueViolation(err, nationalIDIndex) {
			return nil, fmt.Errorf("%w: %s", ErrNationalIDExists, w.NationalID)
		}
		return nil, fmt.Errorf("update worker: %w", err)
	}
	return updated, nil
}

// GetWorker возвращает работника по идентификатору.
func (r *PostgresRepository) GetWorker(ctx context.Context, id int64) (*model.Worker, error) {
	w, err := scanWorker(r.pool.QueryRow(ctx, `SELECT `+workerColumns+` FROM workers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWorkerNotFound
		}
		return nil, fmt.Errorf("get worker: %w", err)
	}
	return w, nil
}

// ListWorkers возвращает всех работников, новые первыми.
func (r *PostgresRepository) ListWorkers(ctx context.Context) ([]model.Worker, error) {
	return r.queryWorkers(ctx, `SELECT `+workerColumns+` FROM workers ORDER BY created_at DESC, id DESC`)
}

// FindWorkersByIdentity возвращает работников с указанным банковским счётом или национальным идентификатором.
func (r *PostgresRepository) FindWorkersByIdentity(ctx context.Context, bankAccountNo, nationalID string) ([]model.Worker, error) {
	return r.queryWorkers(ctx,
		`SELECT `+workerColumns+` FROM workers
		 WHERE ($1::text <> '' AND bank_account_no = $1) OR ($2::text <> '' AND national_id = $2)
		 ORDER BY id`,
		bankAccountNo, nationalID,
	)
}

// DeleteWorker удаляет работника. Записи ведомости удаляются каскадно.
func (r *PostgresRepository) DeleteWorker(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM workers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete worker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWorkerNotFound
	}
	return nil
}

func (r *PostgresRepository) queryWorkers(ctx context.Context, query string, args ...any) ([]model.Worker, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select workers: %w", err)
	}
	defer rows.Close()

	var res []model.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		res = append(res, *w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

const payrollColumns = `p.id, p.worker_id, p.month, p.year, p.payment_method, p.paid_status, p.paid_date,
	p.basic_salary, p.epf_employee, p.etf_employer, p.ot_rate, p.ot_amount, p.net_salary,
	p.present_days, p.leave_days, p.ot_hours, p.incentives, p.other_deductions,
	p.epf_rate, p.etf_rate, p.created_at, w.full_name`

const payrollFrom = ` FROM payrolls p JOIN workers w ON w.id = p.worker_id`

func scanPayroll(row scanner) (*model.PayrollRecord, error) {
	var (
		rec        model.PayrollRecord
		month      string
		method     string
		paidStatus string
	)
	err := row.Scan(&rec.ID, &rec.WorkerID, &month, &rec.Year, &method, &paidStatus, &rec.PaidDate,
		&rec.BasicSalary, &rec.EPFEmployee, &rec.ETFEmployer, &rec.OTRate, &rec.OTAmount, &rec.NetSalary,
		&rec.PresentDays, &rec.LeaveDays, &rec.OTHours, &rec.Incentives, &rec.OtherDeductions,
		&rec.EPFRate, &rec.ETFRate, &rec.CreatedAt, &rec.WorkerName)
	if err != nil {
		return nil, err
	}
	rec.Month = model.Month(month)
	rec.PaymentMethod = model.PaymentMethod(method)
	rec.PaidStatus = model.PaidStatus(paidStatus)
	return &rec, nil
}

// CommitPayroll сохраняет запись ведомости. Строка работника блокируется на время транзакции,
// а уникальный индекс по оплаченным периодам гарантирует не более одной выплаты за месяц
// даже при параллельных запросах.
func (r *PostgresRepository) CommitPayroll(ctx context.Context, rec model.PayrollRecord) (*model.PayrollRecord, error) {
	var saved model.PayrollRecord

	err := r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		saved = rec
		err = tx.QueryRow(ctx, `SELECT full_name FROM workers WHERE id = $1 FOR UPDATE`, rec.WorkerID).Scan(&saved.WorkerName)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrWorkerNotFound
			}
			return fmt.Errorf("lock worker for update: %w", err)
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO payrolls (worker_id, month, year, payment_method, paid_status, paid_date,
				basic_salary, epf_employee, etf_employer, ot_rate, ot_amount, net_salary,
				present_days, leave_days, ot_hours, incentives, other_deductions, epf_rate, etf_rate)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
			 RETURNING id, paid_date, created_at`,
			rec.WorkerID, string(rec.Month), rec.Year, string(rec.PaymentMethod), string(rec.PaidStatus), rec.PaidDate,
			rec.BasicSalary, rec.EPFEmployee, rec.ETFEmployer, rec.OTRate, rec.OTAmount, rec.NetSalary,
			rec.PresentDays, rec.LeaveDays, rec.OTHours, rec.Incentives, rec.OtherDeductions, rec.EPFRate, rec.ETFRate,
		).Scan(&saved.ID, &saved.PaidDate, &saved.CreatedAt)
		if err != nil {
			if uniqueViolation(err, paidPeriodIndex) {
				return fmt.Errorf("%w: worker %d, %s %d", ErrPayrollExists, rec.WorkerID, rec.Month, rec.Year)
			}
			return fmt.Errorf("insert payroll: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &saved, nil
}

// GetPayroll возвращает запись ведомости по идентификатору.
func (r *PostgresRepository) GetPayroll(ctx context.Context, id int64) (*model.PayrollRecord, error) {
	rec, err := scanPayroll(r.pool.QueryRow(ctx, `SELECT `+payrollColumns+payrollFrom+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPayrollNotFound
		}
		return nil, fmt.Errorf("get payroll: %w", err)
	}
	return rec, nil
}

// GetPayrollHistory возвращает все записи ведомости работника, новые первыми.
func (r *PostgresRepository) GetPayrollHistory(ctx context.Context, workerID int64) ([]model.PayrollRecord, error) {
	return r.queryPayrolls(ctx,
		`SELECT `+payrollColumns+payrollFrom+` WHERE p.worker_id = $1 ORDER BY p.created_at DESC, p.id DESC`,
		workerID,
	)
}

// ListPayrolls возвращает записи ведомости по фильтру, новые первыми.
func (r *PostgresRepository) ListPayrolls(ctx context.Context, filter model.PayrollFilter) ([]model.PayrollRecord, error) {
	var (
		conds []string
		args  []any
	)
	if filter.WorkerID != 0 {
		args = append(args, filter.WorkerID)
		conds = append(conds, fmt.Sprintf("p.worker_id = $%d", len(args)))
	}
	if filter.Month != "" {
		args = append(args, string(filter.Month))
		conds = append(conds, fmt.Sprintf("p.month = $%d", len(args)))
	}
	if filter.Year != 0 {
		args = append(args, filter.Year)
		conds = append(conds, fmt.Sprintf("p.year = $%d", len(args)))
	}

	query := `SELECT ` + payrollColumns + payrollFrom
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY p.created_at DESC, p.id DESC`

	return r.queryPayrolls(ctx, query, args...)
}

func (r *PostgresRepository) queryPayrolls(ctx context.Context, query string, args ...any) ([]model.PayrollRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select payrolls: %w", err)
	}
	defer rows.Close()

	var res []model.PayrollRecord
	for rows.Next() {
		rec, err := scanPayroll(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payroll: %w", err)
		}
		res = append(res, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MarkPayrollPaid переводит запись из pending в paid.
func (r *PostgresRepository) MarkPayrollPaid(ctx context.Context, id int64, paidDate time.Time) (*model.PayrollRecord, error) {
	err := r.withRetry(ctx, func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE payrolls SET paid_status = $2, paid_date = $3 WHERE id = $1 AND paid_status = $4`,
			id, string(model.PaidStatusPaid), paidDate, string(model.PaidStatusPending),
		)
		if err != nil {
			if uniqueViolation(err, paidPeriodIndex) {
				return fmt.Errorf("%w: payroll %d", ErrPayrollExists, id)
			}
			return fmt.Errorf("update payroll: %w", err)
		}
		if tag.RowsAffected() == 0 {
			rec, err := r.GetPayroll(ctx, id)
			if err != nil {
				return err
			}
			if rec.PaidStatus == model.PaidStatusPaid {
				return ErrPayrollAlreadyPaid
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.GetPayroll(ctx, id)
}

// DeletePayroll удаляет запись ведомости.
func (r *PostgresRepository) DeletePayroll(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM payrolls WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete payroll: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPayrollNotFound
	}
	return nil
}

// PeriodTotals возвращает суммы по ведомости за каждый месяц указанного года.
func (r *PostgresRepository) PeriodTotals(ctx context.Context, year int) ([]model.PeriodTotals, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT month, year, COUNT(*),
			COALESCE(SUM(basic_salary), 0), COALESCE(SUM(epf_employee), 0),
			COALESCE(SUM(etf_employer), 0), COALESCE(SUM(net_salary), 0)
		 FROM payrolls
		 WHERE year = $1
		 GROUP BY month, year`,
		year,
	)
	if err != nil {
		return nil, fmt.Errorf("sum payrolls: %w", err)
	}
	defer rows.Close()

	var res []model.PeriodTotals
	for rows.Next() {
		var (
			t     model.PeriodTotals
			month string
		)
		if err := rows.Scan(&month, &t.Year, &t.Records, &t.BasicSalary, &t.EPFEmployee, &t.ETFEmployer, &t.NetSalary); err != nil {
			return nil, fmt.Errorf("scan totals: %w", err)
		}
		t.Month = model.Month(month)
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetSettings возвращает все настройки в виде пар ключ-значение.
func (r *PostgresRepository) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("select settings: %w", err)
	}
	defer rows.Close()

	res := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		res[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpsertSettings создаёт или обновляет указанные настройки в одной транзакции.
func (r *PostgresRepository) UpsertSettings(ctx context.Context, values map[string]string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for key, value := range values {
		_, err := tx.Exec(ctx,
			`INSERT INTO settings (key, value) VALUES ($1, $2)
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
			key, value,
		)
		if err != nil {
			return fmt.Errorf("upsert setting %s: %w", key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
