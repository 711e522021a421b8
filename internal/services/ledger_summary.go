package services

import (
	"github.com/shopspring/decimal"
	"github.com/sjperalta/tesoreria-api/internal/models"
)

var one = decimal.NewFromInt(1)

// LedgerTotals is the dashboard view of a list of debts
type LedgerTotals struct {
	TotalPrincipal   decimal.Decimal `json:"total_principal"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	PaidFraction     decimal.Decimal `json:"paid_fraction"`
	DebtCount        int             `json:"debt_count"`
	OpenCount        int             `json:"open_count"`
	SettledCount     int             `json:"settled_count"`
}

// TotalPrincipal sums the principal of every debt
func TotalPrincipal(debts []models.Debt) decimal.Decimal {
	total := decimal.Zero
	for i := range debts {
		total = total.Add(debts[i].Principal)
	}
	return total
}

// TotalOutstanding sums the outstanding balance of every debt
func TotalOutstanding(debts []models.Debt) decimal.Decimal {
	total := decimal.Zero
	for i := range debts {
		total = total.Add(debts[i].OutstandingBalance)
	}
	return total
}

// TotalPaid is derived from the other two totals, never summed on its own
func TotalPaid(debts []models.Debt) decimal.Decimal {
	return TotalPrincipal(debts).Sub(TotalOutstanding(debts))
}

// PaidFraction returns the repaid share of a debt's principal in [0,1],
// rounded to 4 decimal places. A debt with no principal has fraction 0.
func PaidFraction(debt *models.Debt) decimal.Decimal {
	return fraction(debt.Principal.Sub(debt.OutstandingBalance), debt.Principal)
}

// TotalPaidForDebt sums the payment amounts recorded on a debt
func TotalPaidForDebt(debt *models.Debt) decimal.Decimal {
	total := decimal.Zero
	for _, p := range debt.Payments {
		total = total.Add(p.Amount)
	}
	return total
}

// SummarizeLedger bundles the totals and status counts for a list of debts
func SummarizeLedger(debts []models.Debt) LedgerTotals {
	principal := TotalPrincipal(debts)
	outstanding := TotalOutstanding(debts)
	paid := principal.Sub(outstanding)

	totals := LedgerTotals{
		TotalPrincipal:   principal,
		TotalOutstanding: outstanding,
		TotalPaid:        paid,
		PaidFraction:     fraction(paid, principal),
		DebtCount:        len(debts),
	}
	for i := range debts {
		if debts[i].Status == models.DebtStatusSettled {
			totals.SettledCount++
		} else {
			totals.OpenCount++
		}
	}
	return totals
}

func fraction(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	f := part.Div(whole)
	if f.IsNegative() {
		return decimal.Zero
	}
	if f.GreaterThan(one) {
		return one
	}
	return f.Round(4)
}
