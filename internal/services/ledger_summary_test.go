package services

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/tesoreria-api/internal/models"
	"github.com/stretchr/testify/assert"
)

func debtWith(principal, outstanding string, status string) models.Debt {
	return models.Debt{
		Name:               "Deuda",
		Holder:             "Ana",
		Principal:          dec(principal),
		OutstandingBalance: dec(outstanding),
		Status:             status,
	}
}

func TestLedgerTotals(t *testing.T) {
	debts := []models.Debt{
		debtWith("1000", "700", models.DebtStatusOpen),
		debtWith("250.50", "0", models.DebtStatusSettled),
		debtWith("0", "0", models.DebtStatusSettled),
	}

	assert.True(t, TotalPrincipal(debts).Equal(dec("1250.50")))
	assert.True(t, TotalOutstanding(debts).Equal(dec("700")))
	assert.True(t, TotalPaid(debts).Equal(dec("550.50")))

	totals := SummarizeLedger(debts)
	assert.Equal(t, 3, totals.DebtCount)
	assert.Equal(t, 1, totals.OpenCount)
	assert.Equal(t, 2, totals.SettledCount)
	assert.True(t, totals.PaidFraction.Equal(dec("0.4402")))
}

func TestLedgerTotals_Empty(t *testing.T) {
	totals := SummarizeLedger(nil)
	assert.True(t, totals.TotalPrincipal.IsZero())
	assert.True(t, totals.TotalPaid.IsZero())
	assert.True(t, totals.PaidFraction.IsZero())
	assert.Equal(t, 0, totals.DebtCount)
}

func TestPaidFraction(t *testing.T) {
	tests := []struct {
		name        string
		principal   string
		outstanding string
		want        string
	}{
		{"nothing paid", "1000", "1000", "0"},
		{"partially paid", "1000", "700", "0.3"},
		{"fully paid", "1000", "0", "1"},
		{"zero principal", "0", "0", "0"},
		{"rounded to four places", "3", "2", "0.3333"},
		{"principal edited below paid amount", "100", "150", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := debtWith(tt.principal, tt.outstanding, models.DebtStatusOpen)
			assert.True(t, PaidFraction(&d).Equal(dec(tt.want)), "got %s", PaidFraction(&d))
		})
	}
}

func TestTotalPaidForDebt(t *testing.T) {
	d := debtWith("1000", "0", models.DebtStatusSettled)
	d.Payments = []models.Payment{
		{Amount: dec("300"), Date: day(2024, 1, 10)},
		{Amount: dec("700"), Date: day(2024, 2, 10)},
	}
	assert.True(t, TotalPaidForDebt(&d).Equal(dec("1000")))
}

func TestLedgerTotals_RandomConsistency(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 50; run++ {
		debts := make([]models.Debt, rng.Intn(12))
		for i := range debts {
			principal := decimal.New(rng.Int63n(10000000), -2)
			outstanding := decimal.Zero
			if principal.IsPositive() {
				outstanding = decimal.New(rng.Int63n(principal.Shift(2).IntPart()+1), -2)
			}
			debts[i] = models.Debt{Principal: principal, OutstandingBalance: outstanding}

			f := PaidFraction(&debts[i])
			assert.False(t, f.IsNegative())
			assert.True(t, f.LessThanOrEqual(decimal.NewFromInt(1)))
		}

		assert.True(t, TotalPaid(debts).Equal(TotalPrincipal(debts).Sub(TotalOutstanding(debts))))
	}
}
