package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sjperalta/tesoreria-api/internal/apperrors"
	"github.com/sjperalta/tesoreria-api/internal/models"
)

// memoryDebtRepository keeps encoded rows in a map and goes through the same
// codec as the gorm repository, so both stores behave alike.
type memoryDebtRepository struct {
	mu     sync.RWMutex
	nextID uint
	rows   map[uint]debtRow
}

// NewMemoryDebtRepository creates an in-process debt repository
func NewMemoryDebtRepository() DebtRepository {
	return &memoryDebtRepository{rows: make(map[uint]debtRow)}
}

func (r *memoryDebtRepository) Create(_ context.Context, debt *models.Debt) error {
	row, err := encodeDebt(debt)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := time.Now()
	row.ID = r.nextID
	row.Version = 1
	row.CreatedAt = now
	row.UpdatedAt = now
	r.rows[row.ID] = *row

	debt.ID = row.ID
	debt.Version = row.Version
	debt.CreatedAt = now
	debt.UpdatedAt = now
	return nil
}

func (r *memoryDebtRepository) FindByID(_ context.Context, id uint) (*models.Debt, error) {
	r.mu.RLock()
	row, ok := r.rows[id]
	r.mu.RUnlock()

	if !ok {
		return nil, apperrors.NewNotFoundError("deuda", id)
	}
	return decodeDebt(&row)
}

func (r *memoryDebtRepository) List(_ context.Context) ([]models.Debt, error) {
	r.mu.RLock()
	rows := make([]debtRow, 0, len(r.rows))
	for _, row := range r.rows {
		rows = append(rows, row)
	}
	r.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID > rows[j].ID
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})

	debts := make([]models.Debt, 0, len(rows))
	for i := range rows {
		debt, err := decodeDebt(&rows[i])
		if err != nil {
			return nil, err
		}
		debts = append(debts, *debt)
	}
	return debts, nil
}

func (r *memoryDebtRepository) Update(_ context.Context, id uint, changes DebtChanges) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return apperrors.NewNotFoundError("deuda", id)
	}
	if changes.Name != nil {
		row.Name = *changes.Name
	}
	if changes.Description != nil {
		row.Description = *changes.Description
	}
	if changes.Holder != nil {
		row.Holder = *changes.Holder
	}
	if changes.Principal != nil {
		row.Principal = *changes.Principal
	}
	row.Version++
	row.UpdatedAt = time.Now()
	r.rows[id] = row
	return nil
}

func (r *memoryDebtRepository) Delete(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[id]; !ok {
		return apperrors.NewNotFoundError("deuda", id)
	}
	delete(r.rows, id)
	return nil
}

func (r *memoryDebtRepository) SavePayments(_ context.Context, debt *models.Debt, expectedVersion int64) error {
	now := time.Now()
	payments := stampPayments(debt.Payments, now)
	encoded, err := encodePayments(payments)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[debt.ID]
	if !ok {
		return apperrors.NewNotFoundError("deuda", debt.ID)
	}
	if row.Version != expectedVersion {
		return ErrVersionConflict
	}

	row.Payments = encoded
	row.OutstandingBalance = debt.OutstandingBalance
	row.Status = debt.Status
	row.Version = expectedVersion + 1
	row.UpdatedAt = now
	r.rows[debt.ID] = row

	debt.Payments = payments
	debt.Version = row.Version
	debt.UpdatedAt = now
	return nil
}

