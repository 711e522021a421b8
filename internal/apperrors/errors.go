package apperrors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors. Typed errors below unwrap to one of these so callers can use errors.Is.
var (
	ErrValidation          = errors.New("datos inválidos")
	ErrNotFound            = errors.New("registro no encontrado")
	ErrInsufficientBalance = errors.New("el abono no puede ser mayor al saldo pendiente")
	ErrConcurrencyConflict = errors.New("la deuda fue modificada por otra operación")
	ErrMalformedRecord     = errors.New("registro con formato inválido")
)

// ValidationError reports a caller-supplied field that violates a precondition.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports a missing record.
type NotFoundError struct {
	Resource string
	ID       uint
}

func NewNotFoundError(resource string, id uint) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d no encontrada", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InsufficientBalanceError is returned when a payment exceeds the outstanding balance.
// Outstanding is the balance observed when the payment was rejected.
type InsufficientBalanceError struct {
	DebtID      uint
	Requested   decimal.Decimal
	Outstanding decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%s: abono %s, saldo pendiente %s",
		ErrInsufficientBalance.Error(), e.Requested.StringFixed(2), e.Outstanding.StringFixed(2))
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// ConcurrencyConflictError is returned when a conditional write kept losing
// against concurrent writers after the allowed number of attempts.
type ConcurrencyConflictError struct {
	DebtID   uint
	Attempts int
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("deuda %d: %s (%d intentos)", e.DebtID, ErrConcurrencyConflict.Error(), e.Attempts)
}

func (e *ConcurrencyConflictError) Unwrap() error { return ErrConcurrencyConflict }

// MalformedRecordError is returned when a stored record cannot be decoded into a valid debt.
type MalformedRecordError struct {
	ID     uint
	Field  string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("deuda %d: campo %s: %s", e.ID, e.Field, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error { return ErrMalformedRecord }
