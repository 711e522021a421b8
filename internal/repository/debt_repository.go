package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/tesoreria-api/internal/apperrors"
	"github.com/sjperalta/tesoreria-api/internal/models"

	"gorm.io/gorm"
)

// ErrVersionConflict is returned by SavePayments when the stored version no
// longer matches the version the caller read.
var ErrVersionConflict = errors.New("version conflict")

// DebtRepository defines the interface for debt data access
type DebtRepository interface {
	Create(ctx context.Context, debt *models.Debt) error
	FindByID(ctx context.Context, id uint) (*models.Debt, error)
	List(ctx context.Context) ([]models.Debt, error)
	Update(ctx context.Context, id uint, changes DebtChanges) error
	Delete(ctx context.Context, id uint) error
	// SavePayments replaces the payment history, balance and status in a single
	// conditional write. It fails with ErrVersionConflict when the stored
	// version differs from expectedVersion.
	SavePayments(ctx context.Context, debt *models.Debt, expectedVersion int64) error
}

// DebtChanges holds the directly editable fields of a debt. Nil fields are left untouched.
type DebtChanges struct {
	Name        *string
	Description *string
	Holder      *string
	Principal   *decimal.Decimal
}

// IsEmpty reports whether no field was supplied
func (c DebtChanges) IsEmpty() bool {
	return c.Name == nil && c.Description == nil && c.Holder == nil && c.Principal == nil
}

type debtRepository struct {
	db *gorm.DB
}

// NewDebtRepository creates a new gorm-backed debt repository
func NewDebtRepository(db *gorm.DB) DebtRepository {
	return &debtRepository{db: db}
}

// AutoMigrate creates or updates the tables owned by this package
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&debtRow{})
}

func (r *debtRepository) Create(ctx context.Context, debt *models.Debt) error {
	row, err := encodeDebt(debt)
	if err != nil {
		return err
	}
	row.ID = 0
	row.Version = 1

	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create debt: %w", err)
	}

	debt.ID = row.ID
	debt.Version = row.Version
	debt.CreatedAt = row.CreatedAt
	debt.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *debtRepository) FindByID(ctx context.Context, id uint) (*models.Debt, error) {
	var row debtRow
	err := r.db.WithContext(ctx).First(&row, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("deuda", id)
		}
		return nil, fmt.Errorf("failed to load debt %d: %w", id, err)
	}
	return decodeDebt(&row)
}

// List returns every debt, newest first
func (r *debtRepository) List(ctx context.Context) ([]models.Debt, error) {
	var rows []debtRow
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list debts: %w", err)
	}

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

func (r *debtRepository) Update(ctx context.Context, id uint, changes DebtChanges) error {
	updates := map[string]interface{}{
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now(),
	}
	if changes.Name != nil {
		updates["name"] = *changes.Name
	}
	if changes.Description != nil {
		updates["description"] = *changes.Description
	}
	if changes.Holder != nil {
		updates["holder"] = *changes.Holder
	}
	if changes.Principal != nil {
		updates["principal"] = *changes.Principal
	}

	result := r.db.WithContext(ctx).
		Model(&debtRow{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update debt %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("deuda", id)
	}
	return nil
}

// Delete removes the debt row; its payments go with it since they are embedded
func (r *debtRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&debtRow{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete debt %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("deuda", id)
	}
	return nil
}

func (r *debtRepository) SavePayments(ctx context.Context, debt *models.Debt, expectedVersion int64) error {
	now := time.Now()
	payments := stampPayments(debt.Payments, now)
	encoded, err := encodePayments(payments)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).
		Model(&debtRow{}).
		Where("id = ? AND version = ?", debt.ID, expectedVersion).
		Updates(map[string]interface{}{
			"payments":            encoded,
			"outstanding_balance": debt.OutstandingBalance,
			"status":              debt.Status,
			"version":             expectedVersion + 1,
			"updated_at":          now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to save payments for debt %d: %w", debt.ID, result.Error)
	}

	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&debtRow{}).Where("id = ?", debt.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check debt %d: %w", debt.ID, err)
		}
		if count == 0 {
			return apperrors.NewNotFoundError("deuda", debt.ID)
		}
		return ErrVersionConflict
	}

	debt.Payments = payments
	debt.Version = expectedVersion + 1
	debt.UpdatedAt = now
	return nil
}
