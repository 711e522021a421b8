package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/tesoreria-api/internal/apperrors"
	"github.com/sjperalta/tesoreria-api/internal/events"
	"github.com/sjperalta/tesoreria-api/internal/models"
	"github.com/sjperalta/tesoreria-api/internal/repository"
	"github.com/sjperalta/tesoreria-api/internal/statemachine"
	"github.com/sjperalta/tesoreria-api/pkg/logger"
)

// CreateDebtInput holds the fields of a new debt
type CreateDebtInput struct {
	Name        string
	Description string
	Holder      string
	Principal   decimal.Decimal
}

// UpdateDebtInput holds the directly editable fields of a debt. Nil fields are left untouched.
type UpdateDebtInput struct {
	Name        *string
	Description *string
	Holder      *string
	Principal   *decimal.Decimal
}

// AddPaymentInput holds a new payment ("abono")
type AddPaymentInput struct {
	Amount decimal.Decimal
	Date   time.Time
	Note   string
}

// DebtService owns every mutation of the debt ledger
type DebtService struct {
	repo       repository.DebtRepository
	publisher  events.Publisher
	maxRetries int
}

// NewDebtService creates a debt service. maxRetries is the number of extra
// attempts AddPayment makes after losing a concurrent write.
func NewDebtService(repo repository.DebtRepository, publisher events.Publisher, maxRetries int) *DebtService {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &DebtService{
		repo:       repo,
		publisher:  publisher,
		maxRetries: maxRetries,
	}
}

func (s *DebtService) FindByID(ctx context.Context, id uint) (*models.Debt, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns every debt, newest first
func (s *DebtService) List(ctx context.Context) ([]models.Debt, error) {
	return s.repo.List(ctx)
}

func (s *DebtService) Create(ctx context.Context, in CreateDebtInput) (*models.Debt, error) {
	name := strings.TrimSpace(in.Name)
	holder := strings.TrimSpace(in.Holder)

	if name == "" {
		return nil, apperrors.NewValidationError("name", "el nombre es requerido")
	}
	if holder == "" {
		return nil, apperrors.NewValidationError("holder", "el titular es requerido")
	}
	if in.Principal.IsNegative() {
		return nil, apperrors.NewValidationError("principal", "la cantidad no puede ser negativa")
	}
	if err := validateMoney("principal", in.Principal); err != nil {
		return nil, err
	}

	debt := &models.Debt{
		Name:               name,
		Description:        strings.TrimSpace(in.Description),
		Holder:             holder,
		Principal:          in.Principal,
		OutstandingBalance: in.Principal,
		Status:             models.DebtStatusOpen,
	}
	if debt.IsSettled() {
		debt.Status = models.DebtStatusSettled
	}

	if err := s.repo.Create(ctx, debt); err != nil {
		return nil, err
	}

	logger.Info("debt created", "debt_id", debt.ID, "principal", debt.Principal.String())
	s.publish(ctx, events.TypeDebtCreated, debt)
	return debt, nil
}

// Update changes only the supplied fields. Payments, balance and status are
// never touched, so editing the principal does not move the balance.
func (s *DebtService) Update(ctx context.Context, id uint, in UpdateDebtInput) (*models.Debt, error) {
	changes := repository.DebtChanges{Description: in.Description, Principal: in.Principal}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperrors.NewValidationError("name", "el nombre es requerido")
		}
		changes.Name = &name
	}
	if in.Holder != nil {
		holder := strings.TrimSpace(*in.Holder)
		if holder == "" {
			return nil, apperrors.NewValidationError("holder", "el titular es requerido")
		}
		changes.Holder = &holder
	}
	if in.Principal != nil {
		if in.Principal.IsNegative() {
			return nil, apperrors.NewValidationError("principal", "la cantidad no puede ser negativa")
		}
		if err := validateMoney("principal", *in.Principal); err != nil {
			return nil, err
		}
	}
	if changes.IsEmpty() {
		return nil, apperrors.NewValidationError("debt", "no hay campos para actualizar")
	}

	if err := s.repo.Update(ctx, id, changes); err != nil {
		return nil, err
	}

	debt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	logger.Info("debt updated", "debt_id", id, "version", debt.Version)
	s.publish(ctx, events.TypeDebtUpdated, debt)
	return debt, nil
}

// Delete removes a debt together with its payments
func (s *DebtService) Delete(ctx context.Context, id uint) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	logger.Info("debt deleted", "debt_id", id)
	s.publish(ctx, events.TypeDebtDeleted, &models.Debt{ID: id})
	return nil
}

// AddPayment appends a payment and lowers the outstanding balance in a single
// conditional write. When another writer changed the debt between the read and
// the write, the whole read-validate-write cycle is repeated against the fresh
// record, up to maxRetries extra times.
func (s *DebtService) AddPayment(ctx context.Context, debtID uint, in AddPaymentInput) (*models.Debt, error) {
	attempts := s.maxRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		debt, err := s.repo.FindByID(ctx, debtID)
		if err != nil {
			return nil, err
		}

		updated, err := s.applyPayment(ctx, debt, in)
		if err != nil {
			return nil, err
		}

		err = s.repo.SavePayments(ctx, updated, debt.Version)
		if err == nil {
			logger.Info("payment added",
				"debt_id", debtID,
				"amount", in.Amount.String(),
				"outstanding_balance", updated.OutstandingBalance.String(),
				"status", updated.Status,
				"attempt", attempt)
			s.publish(ctx, events.TypePaymentAdded, updated)
			return updated, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, err
		}

		logger.Warn("payment lost a concurrent write", "debt_id", debtID, "attempt", attempt, "max_attempts", attempts)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}

	return nil, &apperrors.ConcurrencyConflictError{DebtID: debtID, Attempts: attempts}
}

// applyPayment validates the payment against debt and returns an updated copy.
// debt itself is left untouched.
func (s *DebtService) applyPayment(ctx context.Context, debt *models.Debt, in AddPaymentInput) (*models.Debt, error) {
	if !in.Amount.IsPositive() {
		return nil, apperrors.NewValidationError("amount", "el abono debe ser mayor a cero")
	}
	if err := validateMoney("amount", in.Amount); err != nil {
		return nil, err
	}
	if in.Date.IsZero() {
		return nil, apperrors.NewValidationError("date", "la fecha es requerida")
	}
	if in.Amount.GreaterThan(debt.OutstandingBalance) {
		return nil, &apperrors.InsufficientBalanceError{
			DebtID:      debt.ID,
			Requested:   in.Amount,
			Outstanding: debt.OutstandingBalance,
		}
	}

	updated := debt.Clone()
	updated.Payments = append(updated.Payments, models.Payment{
		Amount: in.Amount,
		Date:   calendarDate(in.Date),
		Note:   strings.TrimSpace(in.Note),
	})
	updated.OutstandingBalance = debt.OutstandingBalance.Sub(in.Amount)

	if updated.IsSettled() {
		if err := statemachine.NewDebtFSM(updated).Settle(ctx); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

func (s *DebtService) publish(ctx context.Context, eventType string, debt *models.Debt) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, events.Event{
		Type:               eventType,
		DebtID:             debt.ID,
		Version:            debt.Version,
		OutstandingBalance: debt.OutstandingBalance,
		At:                 time.Now(),
	})
}

// validateMoney rejects amounts the decimal(15,2) columns would round or overflow
func validateMoney(field string, d decimal.Decimal) error {
	if !models.HasMoneyScale(d) {
		return apperrors.NewValidationError(field, "la cantidad admite máximo 2 decimales")
	}
	if !models.FitsMoneyColumn(d) {
		return apperrors.NewValidationError(field, "la cantidad excede el máximo permitido")
	}
	return nil
}

// calendarDate drops the clock part of t, keeping the caller's calendar day
func calendarDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
