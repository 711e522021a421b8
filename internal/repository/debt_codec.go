package repository

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/tesoreria-api/internal/apperrors"
	"github.com/sjperalta/tesoreria-api/internal/models"
)

// debtRow is the stored shape of a debt. Payments are embedded in the row as a
// JSON array so that the history and the balance are always written together.
type debtRow struct {
	ID                 uint            `gorm:"primaryKey"`
	Name               string          `gorm:"size:120;not null"`
	Description        string          `gorm:"type:text"`
	Holder             string          `gorm:"size:120;not null;index"`
	Principal          decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	OutstandingBalance decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	Payments           string          `gorm:"type:text;not null;default:'[]'"`
	Status             string          `gorm:"size:20;not null;default:open;index"`
	Version            int64           `gorm:"not null;default:1"`
	CreatedAt          time.Time       `gorm:"index"`
	UpdatedAt          time.Time
}

// TableName specifies the table name for GORM
func (debtRow) TableName() string {
	return "debts"
}

// paymentRecord is the JSON shape of one embedded payment
type paymentRecord struct {
	Amount    string    `json:"amount"`
	Date      string    `json:"date"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func encodePayments(payments []models.Payment) (string, error) {
	records := make([]paymentRecord, 0, len(payments))
	for _, p := range payments {
		records = append(records, paymentRecord{
			Amount:    p.Amount.String(),
			Date:      p.Date.Format(models.DateLayout),
			Note:      p.Note,
			CreatedAt: p.CreatedAt,
		})
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("failed to encode payments: %w", err)
	}
	return string(data), nil
}

func encodeDebt(d *models.Debt) (*debtRow, error) {
	payments, err := encodePayments(d.Payments)
	if err != nil {
		return nil, err
	}
	return &debtRow{
		ID:                 d.ID,
		Name:               d.Name,
		Description:        d.Description,
		Holder:             d.Holder,
		Principal:          d.Principal,
		OutstandingBalance: d.OutstandingBalance,
		Payments:           payments,
		Status:             d.Status,
		Version:            d.Version,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}, nil
}

// decodeDebt validates a stored row and converts it to a Debt. Rows that do not
// have the expected shape are rejected with a MalformedRecordError instead of
// leaking half-valid data to callers.
func decodeDebt(row *debtRow) (*models.Debt, error) {
	malformed := func(field, reason string) error {
		return &apperrors.MalformedRecordError{ID: row.ID, Field: field, Reason: reason}
	}

	if strings.TrimSpace(row.Name) == "" {
		return nil, malformed("name", "vacío")
	}
	if strings.TrimSpace(row.Holder) == "" {
		return nil, malformed("holder", "vacío")
	}
	if row.Principal.IsNegative() {
		return nil, malformed("principal", "negativo")
	}
	if row.OutstandingBalance.IsNegative() {
		return nil, malformed("outstanding_balance", "negativo")
	}

	status := row.Status
	switch status {
	case models.DebtStatusOpen, models.DebtStatusSettled:
	case "":
		status = models.DebtStatusOpen
		if row.OutstandingBalance.IsZero() {
			status = models.DebtStatusSettled
		}
	default:
		return nil, malformed("status", fmt.Sprintf("estado desconocido %q", row.Status))
	}

	var records []paymentRecord
	raw := strings.TrimSpace(row.Payments)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &records); err != nil {
			return nil, malformed("payments", "json inválido: "+err.Error())
		}
	}

	payments := make([]models.Payment, 0, len(records))
	for i, rec := range records {
		amount, err := decimal.NewFromString(rec.Amount)
		if err != nil {
			return nil, malformed(fmt.Sprintf("payments[%d].amount", i), "cantidad inválida")
		}
		if !amount.IsPositive() {
			return nil, malformed(fmt.Sprintf("payments[%d].amount", i), "debe ser mayor a cero")
		}
		date, err := time.Parse(models.DateLayout, rec.Date)
		if err != nil {
			return nil, malformed(fmt.Sprintf("payments[%d].date", i), "fecha inválida")
		}
		payments = append(payments, models.Payment{
			Amount:    amount,
			Date:      date,
			Note:      rec.Note,
			CreatedAt: rec.CreatedAt,
		})
	}

	return &models.Debt{
		ID:                 row.ID,
		Name:               row.Name,
		Description:        row.Description,
		Holder:             row.Holder,
		Principal:          row.Principal,
		OutstandingBalance: row.OutstandingBalance,
		Payments:           payments,
		Status:             status,
		Version:            row.Version,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}, nil
}

// stampPayments sets the store timestamp on payments appended since the last write
func stampPayments(payments []models.Payment, now time.Time) []models.Payment {
	out := append([]models.Payment(nil), payments...)
	for i := range out {
		if out[i].CreatedAt.IsZero() {
			out[i].CreatedAt = now
		}
	}
	return out
}
