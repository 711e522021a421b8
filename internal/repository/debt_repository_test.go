package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/tesoreria-api/internal/apperrors"
	"github.com/sjperalta/tesoreria-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// corruptFunc overwrites the stored payments column of a debt with raw text
type corruptFunc func(t *testing.T, id uint, payments string)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a second connection would open a different in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return db
}

func forEachRepository(t *testing.T, fn func(t *testing.T, repo DebtRepository, corrupt corruptFunc)) {
	t.Run("gorm", func(t *testing.T) {
		db := newSQLiteDB(t)
		fn(t, NewDebtRepository(db), func(t *testing.T, id uint, payments string) {
			require.NoError(t, db.Exec("UPDATE debts SET payments = ? WHERE id = ?", payments, id).Error)
		})
	})
	t.Run("memory", func(t *testing.T) {
		repo := NewMemoryDebtRepository()
		fn(t, repo, func(t *testing.T, id uint, payments string) {
			mem := repo.(*memoryDebtRepository)
			mem.mu.Lock()
			defer mem.mu.Unlock()
			row := mem.rows[id]
			row.Payments = payments
			mem.rows[id] = row
		})
	})
}

func newDebt(name string, principal int64) *models.Debt {
	return &models.Debt{
		Name:               name,
		Description:        "descripción",
		Holder:             "Tesorería",
		Principal:          decimal.NewFromInt(principal),
		OutstandingBalance: decimal.NewFromInt(principal),
		Status:             models.DebtStatusOpen,
	}
}

func TestDebtRepository_CreateAndFind(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo DebtRepository, _ corruptFunc) {
		ctx := context.Background()
		debt := newDebt("Préstamo banco", 1000)

		require.NoError(t, repo.Create(ctx, debt))
		assert.NotZero(t, debt.ID)
		assert.Equal(t, int64(1), debt.Version)
		assert.False(t, debt.CreatedAt.IsZero())

		found, err := repo.FindByID(ctx, debt.ID)
		require.NoError(t, err)
		assert.Equal(t, "Préstamo banco", found.Name)
		assert.Equal(t, "Tesorería", found.Holder)
		assert.True(t, found.Principal.Equal(decimal.NewFromInt(1000)))
		assert.True(t, found.OutstandingBalance.Equal(decimal.NewFromInt(1000)))
		assert.Empty(t, found.Payments)
		assert.Equal(t, models.DebtStatusOpen, found.Status)
	})
}

func TestDebtRepository_FindMissing(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo DebtRepository, _ corruptFunc) {
		_, err := repo.FindByID(context.Background(), 99)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestDebtRepository_ListNewestFirst(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo DebtRepository, _ corruptFunc) {
		ctx := context.Background()
		var ids []uint
		for _, name := range []string{"primera", "segunda", "tercera"} {
			debt := newDebt(name, 100)
			require.NoError(t, repo.Create(ctx, debt))
			ids = append(ids, debt.ID)
			time.Sleep(2 * time.Millisecond)
		}

		debts, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, debts, 3)
		assert.Equal(t, ids[2], debts[0].ID)
		assert.Equal(t, ids[1], debts[1].ID)
		assert.Equal(t, ids[0], debts[2].ID)
	})
}

func TestDebtRepository_UpdateOnlySuppliedFields(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo DebtRepository, _ corruptFunc) {
		ctx := context.Background()
		debt := newDebt("Proveedor", 500)
		require.NoError(t, repo.Create(ctx, debt))

		holder := "Juan Pérez"
		principal := decimal.NewFromInt(800)
		require.NoError(t, repo.Update(ctx, debt.ID, DebtChanges{Holder: &holder, Principal: &principal}))

		found, err := repo.FindByID(ctx, debt.ID)
		require.NoError(t, err)
		assert.Equal(t, "Proveedor", found.Name)
		assert.Equal(t, "Juan Pérez", found.Holder)
		assert.True(t, found.Principal.Equal(decimal.NewFromInt(800)))
		assert.True(t, found.OutstandingBalance.Equal(decimal.NewFromInt(500)), "balance must not follow principal")
		assert.Equal(t, int64(2), found.Version)

		err = repo.Update(ctx, 12345, DebtChanges{Holder: &holder})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestDebtRepository_DeleteTwiceFails(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo DebtRepository, _ corruptFunc) {
		ctx := context.Background()
		debt := newDebt("Temporal", 10)
		require.NoError(t, repo.Create(ctx, debt))

		require.NoError(t, repo.Delete(ctx, debt.ID))
		assert.ErrorIs(t, repo.Delete(ctx, debt.ID), apperrors.ErrNotFound)

		_, err := repo.FindByID(ctx, debt.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestDebtRepository_SavePayments(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo DebtRepository, _ corruptFunc) {
		ctx := context.Background()
		debt := newDebt("Préstamo", 1000)
		require.NoError(t, repo.Create(ctx, debt))

		updated := debt.Clone()
		updated.Payments = append(updated.Payments, models.Payment{
			Amount: decimal.NewFromInt(300),
			Date:   time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
			Note:   "primer abono",
		})
		updated.OutstandingBalance = decimal.NewFromInt(700)

		require.NoError(t, repo.SavePayments(ctx, updated, debt.Version))
		assert.Equal(t, int64(2), updated.Version)
		assert.False(t, updated.Payments[0].CreatedAt.IsZero())

		found, err := repo.FindByID(ctx, debt.ID)
		require.NoError(t, err)
		require.Len(t, found.Payments, 1)
		assert.True(t, found.Payments[0].Amount.Equal(decimal.NewFromInt(300)))
		assert.Equal(t, "2024-01-10", found.Payments[0].Date.Format(models.DateLayout))
		assert.Equal(t, "primer abono", found.Payments[0].Note)
		assert.True(t, found.OutstandingBalance.Equal(decimal.NewFromInt(700)))
		assert.Equal(t, int64(2), found.Version)
	})
}

func TestDebtRepository_SavePaymentsStaleVersion(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo DebtRepository, _ corruptFunc) {
		ctx := context.Background()
		debt := newDebt("Préstamo", 1000)
		require.NoError(t, repo.Create(ctx, debt))

		name := "Préstamo renombrado"
		require.NoError(t, repo.Update(ctx, debt.ID, DebtChanges{Name: &name}))

		stale := debt.Clone()
		stale.Payments = append(stale.Payments, models.Payment{Amount: decimal.NewFromInt(600), Date: time.Now()})
		stale.OutstandingBalance = decimal.NewFromInt(400)

		err := repo.SavePayments(ctx, stale, debt.Version)
		assert.True(t, errors.Is(err, ErrVersionConflict))

		found, err := repo.FindByID(ctx, debt.ID)
		require.NoError(t, err)
		assert.Empty(t, found.Payments)
		assert.True(t, found.OutstandingBalance.Equal(decimal.NewFromInt(1000)))
	})
}

func TestDebtRepository_SavePaymentsMissingDebt(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo DebtRepository, _ corruptFunc) {
		ghost := newDebt("Fantasma", 10)
		ghost.ID = 404
		err := repo.SavePayments(context.Background(), ghost, 1)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestDebtRepository_MalformedRecord(t *testing.T) {
	tests := []struct {
		name     string
		payments string
		field    string
	}{
		{"invalid json", `{"amount":`, "payments"},
		{"non numeric amount", `[{"amount":"diez","date":"2024-01-10"}]`, "payments[0].amount"},
		{"zero amount", `[{"amount":"0","date":"2024-01-10"}]`, "payments[0].amount"},
		{"bad date", `[{"amount":"10","date":"10/01/2024"}]`, "payments[0].date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forEachRepository(t, func(t *testing.T, repo DebtRepository, corrupt corruptFunc) {
				ctx := context.Background()
				debt := newDebt("Corrupta", 100)
				require.NoError(t, repo.Create(ctx, debt))
				corrupt(t, debt.ID, tt.payments)

				_, err := repo.FindByID(ctx, debt.ID)
				var malformed *apperrors.MalformedRecordError
				require.True(t, errors.As(err, &malformed))
				assert.Equal(t, tt.field, malformed.Field)
				assert.Equal(t, debt.ID, malformed.ID)

				_, err = repo.List(ctx)
				assert.ErrorIs(t, err, apperrors.ErrMalformedRecord)
			})
		})
	}
}
