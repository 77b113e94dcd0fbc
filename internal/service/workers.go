package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/payroll-system/internal/guard"
	"github.com/mmeshcher/payroll-system/internal/model"
	"github.com/mmeshcher/payroll-system/internal/salary"
	"github.com/mmeshcher/payroll-system/internal/validation"
)

// CreateWorker регистрирует работника. Если банковский счёт или национальный
// идентификатор уже принадлежат другому работнику, возвращается ErrRejected.
func (s *Service) CreateWorker(ctx context.Context, w model.Worker) (*model.Worker, error) {
	w.ID = 0
	normalizeWorker(&w)
	if w.Status == "" {
		w.Status = model.WorkerStatusActive
	}
	if err := s.checkWorker(ctx, w); err != nil {
		return nil, err
	}

	created, err := s.repo.CreateWorker(ctx, w)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return created, nil
}

// UpdateWorker перезаписывает профиль работника с теми же проверками, что и CreateWorker.
func (s *Service) UpdateWorker(ctx context.Context, w model.Worker) (*model.Worker, error) {
	if _, err := s.repo.GetWorker(ctx, w.ID); err != nil {
		return nil, mapRepoError(err)
	}
	normalizeWorker(&w)
	if err := s.checkWorker(ctx, w); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateWorker(ctx, w)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return updated, nil
}

// normalizeWorker убирает пробелы по краям текстовых полей, чтобы реквизиты
// сравнивались и хранились в одном виде.
func normalizeWorker(w *model.Worker) {
	w.FullName = strings.TrimSpace(w.FullName)
	w.Email = strings.TrimSpace(w.Email)
	w.NationalID = strings.TrimSpace(w.NationalID)
	w.JobPosition = strings.TrimSpace(w.JobPosition)
	w.BankName = strings.TrimSpace(w.BankName)
	w.BankAccountNo = strings.TrimSpace(w.BankAccountNo)
}

func (s *Service) checkWorker(ctx context.Context, w model.Worker) error {
	if err := validation.Worker(w); err != nil {
		return fmt.Errorf("%w: %w", salary.ErrInvalidInput, err)
	}

	existing, err := s.repo.FindWorkersByIdentity(ctx, w.BankAccountNo, w.NationalID)
	if err != nil {
		return fmt.Errorf("find workers by identity: %w", err)
	}

	if v := guard.EvaluateWorkerIdentity(w, existing); v.Kind == guard.Block {
		return fmt.Errorf("%w: %s", ErrRejected, v.Reason)
	}
	return nil
}

// GetWorker возвращает работника.
func (s *Service) GetWorker(ctx context.Context, id int64) (*model.Worker, error) {
	w, err := s.repo.GetWorker(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return w, nil
}

// ListWorkers возвращает всех работников.
func (s *Service) ListWorkers(ctx context.Context) ([]model.Worker, error) {
	return s.repo.ListWorkers(ctx)
}

// DeleteWorker удаляет работника вместе со всеми его записями ведомости.
func (s *Service) DeleteWorker(ctx context.Context, id int64) error {
	if err := s.repo.DeleteWorker(ctx, id); err != nil {
		return mapRepoError(err)
	}
	s.logger.Info("worker deleted", zap.Int64("worker_id", id))
	return nil
}
