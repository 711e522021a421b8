package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date format used for payment dates
const DateLayout = "2006-01-02"

// Money amounts are persisted as decimal(15,2)
const (
	MoneyScale     = 2
	MoneyMaxDigits = 15
)

// MaxMoney is the first amount that no longer fits a money column
var MaxMoney = decimal.New(1, MoneyMaxDigits-MoneyScale)

// Debt status constants
const (
	DebtStatusOpen    = "open"
	DebtStatusSettled = "settled"
)

// Debt represents an amount owed by a holder, with its payment history embedded
type Debt struct {
	ID                 uint
	Name               string
	Description        string
	Holder             string
	Principal          decimal.Decimal
	OutstandingBalance decimal.Decimal
	Payments           []Payment
	Status             string
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Payment ("abono") is a partial repayment embedded in a Debt
type Payment struct {
	Amount    decimal.Decimal
	Date      time.Time
	Note      string
	CreatedAt time.Time
}

// IsSettled returns true once nothing is left to pay
func (d *Debt) IsSettled() bool {
	return d.OutstandingBalance.Sign() == 0
}

// HasMoneyScale reports whether d carries at most MoneyScale decimal places
func HasMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

// FitsMoneyColumn reports whether d can be stored without rounding or overflow
func FitsMoneyColumn(d decimal.Decimal) bool {
	return HasMoneyScale(d) && d.Abs().LessThan(MaxMoney)
}

// Clone returns a deep copy so callers can build an updated debt without
// touching the value they read.
func (d *Debt) Clone() *Debt {
	cp := *d
	cp.Payments = append([]Payment(nil), d.Payments...)
	return &cp
}

// DebtResponse is the JSON response format for debts
type DebtResponse struct {
	ID                 uint              `json:"id"`
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	Holder             string            `json:"holder"`
	Principal          decimal.Decimal   `json:"principal"`
	OutstandingBalance decimal.Decimal   `json:"outstanding_balance"`
	PaidAmount         decimal.Decimal   `json:"paid_amount"`
	Status             string            `json:"status"`
	Version            int64             `json:"version"`
	Payments           []PaymentResponse `json:"payments"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// PaymentResponse is the JSON response format for payments
type PaymentResponse struct {
	Amount    decimal.Decimal `json:"amount"`
	Date      string          `json:"date"`
	Note      string          `json:"note"`
	CreatedAt time.Time       `json:"created_at"`
}

// ToResponse converts Debt to DebtResponse
func (d *Debt) ToResponse() DebtResponse {
	payments := make([]PaymentResponse, 0, len(d.Payments))
	for _, p := range d.Payments {
		payments = append(payments, p.ToResponse())
	}

	return DebtResponse{
		ID:                 d.ID,
		Name:               d.Name,
		Description:        d.Description,
		Holder:             d.Holder,
		Principal:          d.Principal,
		OutstandingBalance: d.OutstandingBalance,
		PaidAmount:         d.Principal.Sub(d.OutstandingBalance),
		Status:             d.Status,
		Version:            d.Version,
		Payments:           payments,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

// ToResponse converts Payment to PaymentResponse
func (p Payment) ToResponse() PaymentResponse {
	return PaymentResponse{
		Amount:    p.Amount,
		Date:      p.Date.Format(DateLayout),
		Note:      p.Note,
		CreatedAt: p.CreatedAt,
	}
}
