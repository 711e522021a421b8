package repository

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/tesoreria-api/internal/apperrors"
	"github.com/sjperalta/tesoreria-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDebt_RejectsBadRows(t *testing.T) {
	valid := func() debtRow {
		return debtRow{
			ID:                 1,
			Name:               "Préstamo",
			Holder:             "Ana",
			Principal:          decimal.NewFromInt(100),
			OutstandingBalance: decimal.NewFromInt(100),
			Payments:           "[]",
			Status:             models.DebtStatusOpen,
		}
	}

	tests := []struct {
		name   string
		mutate func(r *debtRow)
		field  string
	}{
		{"empty name", func(r *debtRow) { r.Name = "  " }, "name"},
		{"empty holder", func(r *debtRow) { r.Holder = "" }, "holder"},
		{"negative principal", func(r *debtRow) { r.Principal = decimal.NewFromInt(-1) }, "principal"},
		{"negative balance", func(r *debtRow) { r.OutstandingBalance = decimal.NewFromInt(-5) }, "outstanding_balance"},
		{"unknown status", func(r *debtRow) { r.Status = "archived" }, "status"},
		{"negative payment", func(r *debtRow) { r.Payments = `[{"amount":"-3","date":"2024-01-10"}]` }, "payments[0].amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := valid()
			tt.mutate(&row)
			_, err := decodeDebt(&row)
			var malformed *apperrors.MalformedRecordError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, tt.field, malformed.Field)
		})
	}
}

func TestDecodeDebt_DerivesMissingStatus(t *testing.T) {
	row := debtRow{
		ID:                 2,
		Name:               "Saldada",
		Holder:             "Luis",
		Principal:          decimal.NewFromInt(50),
		OutstandingBalance: decimal.Zero,
		Payments:           `[{"amount":"50","date":"2024-02-01","created_at":"2024-02-01T10:00:00Z"}]`,
	}

	debt, err := decodeDebt(&row)
	require.NoError(t, err)
	assert.Equal(t, models.DebtStatusSettled, debt.Status)
	require.Len(t, debt.Payments, 1)
	assert.Equal(t, time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC), debt.Payments[0].CreatedAt.UTC())
}

func TestEncodeDecode_PreservesPaymentOrder(t *testing.T) {
	debt := &models.Debt{
		ID:                 3,
		Name:               "Orden",
		Holder:             "Eva",
		Principal:          decimal.NewFromInt(100),
		OutstandingBalance: decimal.NewFromInt(70),
		Status:             models.DebtStatusOpen,
		Payments: []models.Payment{
			{Amount: decimal.NewFromInt(20), Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
			{Amount: decimal.NewFromInt(10), Date: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), Note: "anterior"},
		},
	}

	row, err := encodeDebt(debt)
	require.NoError(t, err)
	decoded, err := decodeDebt(row)
	require.NoError(t, err)

	require.Len(t, decoded.Payments, 2)
	assert.Equal(t, "2024-03-05", decoded.Payments[0].Date.Format(models.DateLayout))
	assert.Equal(t, "2024-01-05", decoded.Payments[1].Date.Format(models.DateLayout))
	assert.Equal(t, "anterior", decoded.Payments[1].Note)
}
