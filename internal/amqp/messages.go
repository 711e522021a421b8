package amqp

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/tesoreria-api/internal/events"
)

// LedgerEventMessage is the message published for every committed ledger change
type LedgerEventMessage struct {
	DebtID             uint            `json:"debt_id"`
	Type               string          `json:"type"`
	Version            int64           `json:"version"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	Timestamp          time.Time       `json:"timestamp"`
}

// NewLedgerEventMessage builds a message from a broker event
func NewLedgerEventMessage(ev events.Event) *LedgerEventMessage {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now()
	}
	return &LedgerEventMessage{
		DebtID:             ev.DebtID,
		Type:               ev.Type,
		Version:            ev.Version,
		OutstandingBalance: ev.OutstandingBalance,
		Timestamp:          ts,
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
