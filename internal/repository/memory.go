package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/payroll-system/internal/model"
)

// MemoryRepository хранит данные в памяти процесса. Используется в тестах и для запуска без БД.
// Ограничения уникальности проверяются под тем же мьютексом, что и запись, поэтому
// параллельные CommitPayroll за один период не могут сохранить две оплаченные записи.
type MemoryRepository struct {
	mu       sync.RWMutex
	workers  map[int64]model.Worker
	payrolls map[int64]model.PayrollRecord
	settings map[string]string

	nextWorkerID  int64
	nextPayrollID int64
	now           func() time.Time
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		workers:  make(map[int64]model.Worker),
		payrolls: make(map[int64]model.PayrollRecord),
		settings: make(map[string]string),
		now:      time.Now,
	}
}

// Close ничего не делает.
func (m *MemoryRepository) Close() error { return nil }

// CreateWorker сохраняет нового работника.
func (m *MemoryRepository) CreateWorker(_ context.Context, w model.Worker) (*model.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkNationalIDLocked(w); err != nil {
		return nil, err
	}

	m.nextWorkerID++
	w.ID = m.nextWorkerID
	w.CreatedAt = m.now()
	w.UpdatedAt = w.CreatedAt
	m.workers[w.ID] = w

	return &w, nil
}

// UpdateWorker перезаписывает профиль работника.
func (m *MemoryRepository) UpdateWorker(_ context.Context, w model.Worker) (*model.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.workers[w.ID]
	if !ok {
		return nil, ErrWorkerNotFound
	}
	if err := m.checkNationalIDLocked(w); err != nil {
		return nil, err
	}

	w.CreatedAt = current.CreatedAt
	w.UpdatedAt = m.now()
	m.workers[w.ID] = w

	return &w, nil
}

func (m *MemoryRepository) checkNationalIDLocked(w model.Worker) error {
	for _, other := range m.workers {
		if other.ID != w.ID && other.NationalID == w.NationalID {
			return fmt.Errorf("%w: %s", ErrNationalIDExists, w.NationalID)
		}
	}
	return nil
}

// GetWorker возвращает работника по идентификатору.
func (m *MemoryRepository) GetWorker(_ context.Context, id int64) (*model.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.workers[id]
	if !ok {
		return nil, ErrWorkerNotFound
	}
	return &w, nil
}

// ListWorkers возвращает всех работников, новые первыми.
func (m *MemoryRepository) ListWorkers(_ context.Context) ([]model.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make([]model.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		res = append(res, w)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	return res, nil
}

// FindWorkersByIdentity возвращает работников с указанным банковским счётом или национальным идентификатором.
func (m *MemoryRepository) FindWorkersByIdentity(_ context.Context, bankAccountNo, nationalID string) ([]model.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bankAccountNo = strings.TrimSpace(bankAccountNo)
	nationalID = strings.TrimSpace(nationalID)

	var res []model.Worker
	for _, w := range m.workers {
		if (bankAccountNo != "" && w.BankAccountNo == bankAccountNo) || (nationalID != "" && w.NationalID == nationalID) {
			res = append(res, w)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// DeleteWorker удаляет работника и все его записи ведомости.
func (m *MemoryRepository) DeleteWorker(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workers[id]; !ok {
		return ErrWorkerNotFound
	}
	delete(m.workers, id)
	for pid, p := range m.payrolls {
		if p.WorkerID == id {
			delete(m.payrolls, pid)
		}
	}
	return nil
}

// CommitPayroll сохраняет запись ведомости, если за период нет другой оплаченной записи работника.
func (m *MemoryRepository) CommitPayroll(_ context.Context, rec model.PayrollRecord) (*model.PayrollRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[rec.WorkerID]
	if !ok {
		return nil, ErrWorkerNotFound
	}

	if rec.PaidStatus == model.PaidStatusPaid && m.paidExistsLocked(rec.WorkerID, rec.Month, rec.Year, 0) {
		return nil, fmt.Errorf("%w: worker %d, %s %d", ErrPayrollExists, rec.WorkerID, rec.Month, rec.Year)
	}

	m.nextPayrollID++
	rec.ID = m.nextPayrollID
	rec.CreatedAt = m.now()
	rec.WorkerName = w.FullName
	m.payrolls[rec.ID] = rec

	return &rec, nil
}

func (m *MemoryRepository) paidExistsLocked(workerID int64, month model.Month, year int, exceptID int64) bool {
	for _, p := range m.payrolls {
		if p.ID != exceptID && p.WorkerID == workerID && p.Month == month && p.Year == year && p.PaidStatus == model.PaidStatusPaid {
			return true
		}
	}
	return false
}

// GetPayroll возвращает запись ведомости по идентификатору.
func (m *MemoryRepository) GetPayroll(_ context.Context, id int64) (*model.PayrollRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.payrolls[id]
	if !ok {
		return nil, ErrPayrollNotFound
	}
	return &rec, nil
}

// GetPayrollHistory возвращает все записи ведомости работника, новые первыми.
func (m *MemoryRepository) GetPayrollHistory(ctx context.Context, workerID int64) ([]model.PayrollRecord, error) {
	return m.ListPayrolls(ctx, model.PayrollFilter{WorkerID: workerID})
}

// ListPayrolls возвращает записи ведомости по фильтру, новые первыми.
func (m *MemoryRepository) ListPayrolls(_ context.Context, filter model.PayrollFilter) ([]model.PayrollRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []model.PayrollRecord
	for _, p := range m.payrolls {
		if filter.WorkerID != 0 && p.WorkerID != filter.WorkerID {
			continue
		}
		if filter.Month != "" && p.Month != filter.Month {
			continue
		}
		if filter.Year != 0 && p.Year != filter.Year {
			continue
		}
		res = append(res, p)
	}

	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].ID > res[j].ID
	})
	return res, nil
}

// MarkPayrollPaid переводит запись из pending в paid.
func (m *MemoryRepository) MarkPayrollPaid(_ context.Context, id int64, paidDate time.Time) (*model.PayrollRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.payrolls[id]
	if !ok {
		return nil, ErrPayrollNotFound
	}
	if rec.PaidStatus == model.PaidStatusPaid {
		return nil, ErrPayrollAlreadyPaid
	}
	if m.paidExistsLocked(rec.WorkerID, rec.Month, rec.Year, rec.ID) {
		return nil, fmt.Errorf("%w: payroll %d", ErrPayrollExists, id)
	}

	rec.PaidStatus = model.PaidStatusPaid
	rec.PaidDate = &paidDate
	m.payrolls[id] = rec

	return &rec, nil
}

// DeletePayroll удаляет запись ведомости.
func (m *MemoryRepository) DeletePayroll(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.payrolls[id]; !ok {
		return ErrPayrollNotFound
	}
	delete(m.payrolls, id)
	return nil
}

// PeriodTotals возвращает суммы по ведомости за каждый месяц указанного года.
func (m *MemoryRepository) PeriodTotals(_ context.Context, year int) ([]model.PeriodTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byMonth := make(map[model.Month]*model.PeriodTotals)
	for _, p := range m.payrolls {
		if p.Year != year {
			continue
		}
		t, ok := byMonth[p.Month]
		if !ok {
			t = &model.PeriodTotals{
				Month:       p.Month,
				Year:        year,
				BasicSalary: decimal.Zero,
				EPFEmployee: decimal.Zero,
				ETFEmployer: decimal.Zero,
				NetSalary:   decimal.Zero,
			}
			byMonth[p.Month] = t
		}
		t.Records++
		t.BasicSalary = t.BasicSalary.Add(p.BasicSalary)
		t.EPFEmployee = t.EPFEmployee.Add(p.EPFEmployee)
		t.ETFEmployer = t.ETFEmployer.Add(p.ETFEmployer)
		t.NetSalary = t.NetSalary.Add(p.NetSalary)
	}

	res := make([]model.PeriodTotals, 0, len(byMonth))
	for _, t := range byMonth {
		res = append(res, *t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Month.Number() < res[j].Month.Number() })
	return res, nil
}

// GetSettings возвращает копию настроек.
func (m *MemoryRepository) GetSettings(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make(map[string]string, len(m.settings))
	for k, v := range m.settings {
		res[k] = v
	}
	return res, nil
}

// UpsertSettings создаёт или обновляет указанные настройки.
func (m *MemoryRepository) UpsertSettings(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range values {
		m.settings[k] = v
	}
	return nil
}
