package statemachine

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/sjperalta/tesoreria-api/internal/models"
)

// Debt lifecycle events
const (
	EventSettle = "settle"
)

// DebtFSM wraps a debt with its state machine
type DebtFSM struct {
	debt *models.Debt
	fsm  *fsm.FSM
}

// NewDebtFSM creates a new debt state machine starting at the debt's current status.
// A debt without a status starts as open.
func NewDebtFSM(debt *models.Debt) *DebtFSM {
	status := debt.Status
	if status == "" {
		status = models.DebtStatusOpen
	}

	dfsm := &DebtFSM{debt: debt}
	dfsm.fsm = fsm.NewFSM(
		status,
		fsm.Events{
			// open → settled (balance reached zero)
			{Name: EventSettle, Src: []string{models.DebtStatusOpen}, Dst: models.DebtStatusSettled},
		},
		fsm.Callbacks{},
	)
	return dfsm
}

// Settle transitions the debt to settled. The outstanding balance must already be zero.
func (d *DebtFSM) Settle(ctx context.Context) error {
	if !d.debt.IsSettled() {
		return fmt.Errorf("debt %d cannot be settled with outstanding balance %s",
			d.debt.ID, d.debt.OutstandingBalance.StringFixed(2))
	}

	if err := d.fsm.Event(ctx, EventSettle); err != nil {
		return fmt.Errorf("failed to settle debt: %w", err)
	}

	d.debt.Status = d.fsm.Current()
	return nil
}
