package services

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/tesoreria-api/internal/apperrors"
	"github.com/sjperalta/tesoreria-api/internal/events"
	"github.com/sjperalta/tesoreria-api/internal/models"
	"github.com/sjperalta/tesoreria-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// raceDebtRepo holds the first two FindByID calls until both have read, so two
// AddPayment calls observe the same version.
type raceDebtRepo struct {
	repository.DebtRepository
	mu      sync.Mutex
	reads   int
	arrived sync.WaitGroup
}

func newRaceDebtRepo(inner repository.DebtRepository) *raceDebtRepo {
	r := &raceDebtRepo{DebtRepository: inner}
	r.arrived.Add(2)
	return r
}

func (r *raceDebtRepo) FindByID(ctx context.Context, id uint) (*models.Debt, error) {
	debt, err := r.DebtRepository.FindByID(ctx, id)

	r.mu.Lock()
	r.reads++
	n := r.reads
	r.mu.Unlock()

	if n <= 2 {
		r.arrived.Done()
		r.arrived.Wait()
	}
	return debt, err
}

// failingSaveRepo fails every SavePayments call with err
type failingSaveRepo struct {
	repository.DebtRepository
	err   error
	saves int
}

func (r *failingSaveRepo) SavePayments(ctx context.Context, debt *models.Debt, expectedVersion int64) error {
	r.saves++
	return r.err
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestDebtService(t *testing.T, maxRetries int) (*DebtService, repository.DebtRepository, *recordingPublisher) {
	t.Helper()
	repo := repository.NewMemoryDebtRepository()
	pub := &recordingPublisher{}
	return NewDebtService(repo, pub, maxRetries), repo, pub
}

func TestDebtService_Create(t *testing.T) {
	svc, _, pub := newTestDebtService(t, 3)

	debt, err := svc.Create(context.Background(), CreateDebtInput{
		Name:        "  Préstamo banco ",
		Description: "vehículo",
		Holder:      "Ana",
		Principal:   dec("1000"),
	})
	require.NoError(t, err)

	assert.NotZero(t, debt.ID)
	assert.Equal(t, "Préstamo banco", debt.Name)
	assert.True(t, debt.OutstandingBalance.Equal(dec("1000")))
	assert.Empty(t, debt.Payments)
	assert.Equal(t, models.DebtStatusOpen, debt.Status)
	assert.Equal(t, int64(1), debt.Version)
	assert.Equal(t, []string{events.TypeDebtCreated}, pub.types())
}

func TestDebtService_CreateZeroPrincipalIsSettled(t *testing.T) {
	svc, _, _ := newTestDebtService(t, 3)

	debt, err := svc.Create(context.Background(), CreateDebtInput{Name: "Nada", Holder: "Ana", Principal: decimal.Zero})
	require.NoError(t, err)
	assert.Equal(t, models.DebtStatusSettled, debt.Status)
	assert.True(t, PaidFraction(debt).IsZero())
}

func TestDebtService_CreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		input CreateDebtInput
		field string
	}{
		{"empty name", CreateDebtInput{Name: " ", Holder: "Ana", Principal: dec("1")}, "name"},
		{"empty holder", CreateDebtInput{Name: "Deuda", Holder: "", Principal: dec("1")}, "holder"},
		{"negative principal", CreateDebtInput{Name: "Deuda", Holder: "Ana", Principal: dec("-0.01")}, "principal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, pub := newTestDebtService(t, 3)

			_, err := svc.Create(context.Background(), tt.input)
			var verr *apperrors.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)

			debts, err := repo.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, debts)
			assert.Empty(t, pub.types())
		})
	}
}

func TestDebtService_UpdateKeepsBalance(t *testing.T) {
	svc, _, pub := newTestDebtService(t, 3)
	ctx := context.Background()

	debt, err := svc.Create(ctx, CreateDebtInput{Name: "Proveedor", Holder: "Ana", Principal: dec("1000")})
	require.NoError(t, err)
	_, err = svc.AddPayment(ctx, debt.ID, AddPaymentInput{Amount: dec("300"), Date: day(2024, 1, 10)})
	require.NoError(t, err)

	principal := dec("500")
	holder := "Luis"
	updated, err := svc.Update(ctx, debt.ID, UpdateDebtInput{Principal: &principal, Holder: &holder})
	require.NoError(t, err)

	assert.True(t, updated.Principal.Equal(dec("500")))
	assert.Equal(t, "Luis", updated.Holder)
	assert.Equal(t, "Proveedor", updated.Name)
	assert.True(t, updated.OutstandingBalance.Equal(dec("700")), "principal edits never move the balance")
	assert.Len(t, updated.Payments, 1)
	assert.Equal(t, int64(3), updated.Version)
	assert.Equal(t, []string{events.TypeDebtCreated, events.TypePaymentAdded, events.TypeDebtUpdated}, pub.types())
}

func TestDebtService_UpdateErrors(t *testing.T) {
	svc, _, _ := newTestDebtService(t, 3)
	ctx := context.Background()

	debt, err := svc.Create(ctx, CreateDebtInput{Name: "Proveedor", Holder: "Ana", Principal: dec("10")})
	require.NoError(t, err)

	empty := "  "
	negative := dec("-1")
	name := "Otro"

	_, err = svc.Update(ctx, debt.ID, UpdateDebtInput{Name: &empty})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.Update(ctx, debt.ID, UpdateDebtInput{Holder: &empty})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.Update(ctx, debt.ID, UpdateDebtInput{Principal: &negative})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.Update(ctx, debt.ID, UpdateDebtInput{})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.Update(ctx, 999, UpdateDebtInput{Name: &name})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDebtService_DeleteTwice(t *testing.T) {
	svc, _, pub := newTestDebtService(t, 3)
	ctx := context.Background()

	debt, err := svc.Create(ctx, CreateDebtInput{Name: "Temporal", Holder: "Ana", Principal: dec("10")})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, debt.ID))
	assert.ErrorIs(t, svc.Delete(ctx, debt.ID), apperrors.ErrNotFound)
	assert.Equal(t, []string{events.TypeDebtCreated, events.TypeDebtDeleted}, pub.types())
}

func TestDebtService_ListNewestFirst(t *testing.T) {
	svc, _, _ := newTestDebtService(t, 3)
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateDebtInput{Name: "Primera", Holder: "Ana", Principal: dec("1")})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := svc.Create(ctx, CreateDebtInput{Name: "Segunda", Holder: "Ana", Principal: dec("1")})
	require.NoError(t, err)

	debts, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, debts, 2)
	assert.Equal(t, second.ID, debts[0].ID)
	assert.Equal(t, first.ID, debts[1].ID)
}

func TestDebtService_PaymentScenario(t *testing.T) {
	svc, _, _ := newTestDebtService(t, 3)
	ctx := context.Background()

	debt, err := svc.Create(ctx, CreateDebtInput{Name: "Préstamo", Holder: "Ana", Principal: dec("1000")})
	require.NoError(t, err)

	debt, err = svc.AddPayment(ctx, debt.ID, AddPaymentInput{Amount: dec("300"), Date: day(2024, 1, 10)})
	require.NoError(t, err)
	assert.True(t, debt.OutstandingBalance.Equal(dec("700")))

	_, err = svc.AddPayment(ctx, debt.ID, AddPaymentInput{Amount: dec("800"), Date: day(2024, 1, 11)})
	var insufficient *apperrors.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Outstanding.Equal(dec("700")))
	assert.True(t, insufficient.Requested.Equal(dec("800")))

	stored, err := svc.FindByID(ctx, debt.ID)
	require.NoError(t, err)
	assert.True(t, stored.OutstandingBalance.Equal(dec("700")))
	assert.Len(t, stored.Payments, 1)

	debt, err = svc.AddPayment(ctx, debt.ID, AddPaymentInput{Amount: dec("700"), Date: day(2024, 2, 10), Note: "liquidación"})
	require.NoError(t, err)
	assert.True(t, debt.OutstandingBalance.IsZero())
	assert.Len(t, debt.Payments, 2)
	assert.Equal(t, models.DebtStatusSettled, debt.Status)
	assert.True(t, TotalPaidForDebt(debt).Equal(debt.Principal.Sub(debt.OutstandingBalance)))

	_, err = svc.AddPayment(ctx, debt.ID, AddPaymentInput{Amount: dec("0.01"), Date: day(2024, 3, 1)})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
}

func TestDebtService_AddPaymentDoesNotMutateReadValue(t *testing.T) {
	svc, repo, _ := newTestDebtService(t, 3)
	ctx := context.Background()

	debt, err := svc.Create(ctx, CreateDebtInput{Name: "Préstamo", Holder: "Ana", Principal: dec("100")})
	require.NoError(t, err)

	before, err := repo.FindByID(ctx, debt.ID)
	require.NoError(t, err)

	_, err = svc.AddPayment(ctx, debt.ID, AddPaymentInput{Amount: dec("40"), Date: day(2024, 1, 1)})
	require.NoError(t, err)

	assert.Empty(t, before.Payments)
	assert.True(t, before.OutstandingBalance.Equal(dec("100")))
}

func TestDebtService_AddPaymentRejections(t *testing.T) {
	tests := []struct {
		name   string
		debtID uint
		input  AddPaymentInput
		target error
	}{
		{"zero amount", 1, AddPaymentInput{Amount: decimal.Zero, Date: day(2024, 1, 1)}, apperrors.ErrValidation},
		{"negative amount", 1, AddPaymentInput{Amount: dec("-5"), Date: day(2024, 1, 1)}, apperrors.ErrValidation},
		{"missing date", 1, AddPaymentInput{Amount: dec("5")}, apperrors.ErrValidation},
		{"above balance", 1, AddPaymentInput{Amount: dec("100.01"), Date: day(2024, 1, 1)}, apperrors.ErrInsufficientBalance},
		{"unknown debt", 42, AddPaymentInput{Amount: dec("5"), Date: day(2024, 1, 1)}, apperrors.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, pub := newTestDebtService(t, 3)
			ctx := context.Background()

			debt, err := svc.Create(ctx, CreateDebtInput{Name: "Préstamo", Holder: "Ana", Principal: dec("100")})
			require.NoError(t, err)
			require.Equal(t, uint(1), debt.ID)

			_, err = svc.AddPayment(ctx, tt.debtID, tt.input)
			assert.ErrorIs(t, err, tt.target)

			stored, err := repo.FindByID(ctx, debt.ID)
			require.NoError(t, err)
			assert.Empty(t, stored.Payments)
			assert.True(t, stored.OutstandingBalance.Equal(dec("100")))
			assert.Equal(t, int64(1), stored.Version)
			assert.Equal(t, []string{events.TypeDebtCreated}, pub.types())
		})
	}
}

func TestDebtService_AddPaymentStoreErrorIsNotRetried(t *testing.T) {
	inner := repository.NewMemoryDebtRepository()
	repo := &failingSaveRepo{DebtRepository: inner, err: errors.New("connection reset")}
	svc := NewDebtService(repo, nil, 3)
	ctx := context.Background()

	debt, err := svc.Create(ctx, CreateDebtInput{Name: "Préstamo", Holder: "Ana", Principal: dec("100")})
	require.NoError(t, err)

	_, err = svc.AddPayment(ctx, debt.ID, AddPaymentInput{Amount: dec("10"), Date: day(2024, 1, 1)})
	assert.EqualError(t, err, "connection reset")
	assert.Equal(t, 1, repo.saves)
}

func TestDebtService_AddPaymentGivesUpAfterRetries(t *testing.T) {
	inner := repository.NewMemoryDebtRepository()
	repo := &failingSaveRepo{DebtRepository: inner, err: repository.ErrVersionConflict}
	svc := NewDebtService(repo, nil, 2)
	ctx := context.Background()

	debt, err := svc.Create(ctx, CreateDebtInput{Name: "Préstamo", Holder: "Ana", Principal: dec("100")})
	require.NoError(t, err)

	_, err = svc.AddPayment(ctx, debt.ID, AddPaymentInput{Amount: dec("10"), Date: day(2024, 1, 1)})
	var conflict *apperrors.ConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 3, conflict.Attempts)
	assert.Equal(t, 3, repo.saves)
}

func TestDebtService_ConcurrentPayments(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		loserErr   error
	}{
		// the loser re-reads the balance left by the winner
		{"with retries", 3, apperrors.ErrInsufficientBalance},
		{"without retries", 0, apperrors.ErrConcurrencyConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := repository.NewMemoryDebtRepository()
			ctx := context.Background()

			setup := NewDebtService(inner, nil, tt.maxRetries)
			debt, err := setup.Create(ctx, CreateDebtInput{Name: "Préstamo", Holder: "Ana", Principal: dec("1000")})
			require.NoError(t, err)

			svc := NewDebtService(newRaceDebtRepo(inner), nil, tt.maxRetries)

			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = svc.AddPayment(ctx, debt.ID, AddPaymentInput{Amount: dec("600"), Date: day(2024, 1, 10)})
				}(i)
			}
			wg.Wait()

			successes := 0
			for _, err := range errs {
				if err == nil {
					successes++
					continue
				}
				assert.ErrorIs(t, err, tt.loserErr)
			}
			assert.Equal(t, 1, successes)

			stored, err := inner.FindByID(ctx, debt.ID)
			require.NoError(t, err)
			assert.True(t, stored.OutstandingBalance.Equal(dec("400")))
			assert.Len(t, stored.Payments, 1)
		})
	}
}

func TestDebtService_RandomPaymentSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(20240110))
	ctx := context.Background()

	for run := 0; run < 25; run++ {
		svc, repo, _ := newTestDebtService(t, 3)

		principal := decimal.New(rng.Int63n(500000)+1, -2)
		debt, err := svc.Create(ctx, CreateDebtInput{Name: "Aleatoria", Holder: "Ana", Principal: principal})
		require.NoError(t, err)

		previous := debt.OutstandingBalance
		for step := 0; step < 30; step++ {
			// amounts range from -1.00 to a bit above the principal
			amount := decimal.New(rng.Int63n(principal.Shift(2).IntPart()+200)-100, -2)

			before, err := repo.FindByID(ctx, debt.ID)
			require.NoError(t, err)

			_, err = svc.AddPayment(ctx, debt.ID, AddPaymentInput{Amount: amount, Date: day(2024, 1, 1).AddDate(0, 0, step)})

			after, ferr := repo.FindByID(ctx, debt.ID)
			require.NoError(t, ferr)

			if err != nil {
				assert.Equal(t, before.Payments, after.Payments)
				assert.True(t, before.OutstandingBalance.Equal(after.OutstandingBalance))
				assert.Equal(t, before.Version, after.Version)
			}

			assert.True(t, after.OutstandingBalance.Equal(after.Principal.Sub(TotalPaidForDebt(after))))
			assert.False(t, after.OutstandingBalance.IsNegative())
			assert.True(t, after.OutstandingBalance.LessThanOrEqual(previous))
			if after.OutstandingBalance.IsZero() {
				assert.Equal(t, models.DebtStatusSettled, after.Status)
			}
			previous = after.OutstandingBalance
		}
	}
}
