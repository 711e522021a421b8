package events

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger event types
const (
	TypeDebtCreated  = "debt.created"
	TypeDebtUpdated  = "debt.updated"
	TypeDebtDeleted  = "debt.deleted"
	TypePaymentAdded = "payment.added"
)

// Event describes a committed change to a debt
type Event struct {
	Type               string          `json:"type"`
	DebtID             uint            `json:"debt_id"`
	Version            int64           `json:"version"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	At                 time.Time       `json:"timestamp"`
}

// Handler receives published events. It runs on the publisher's goroutine and must not block.
type Handler func(ctx context.Context, ev Event)

// Publisher is implemented by anything that accepts ledger events
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Broker fans events out to subscribers. Each subscription is cancelled through
// the function returned by Subscribe.
type Broker struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]Handler
}

// NewBroker creates an empty broker
func NewBroker() *Broker {
	return &Broker{handlers: make(map[uint64]Handler)}
}

// Subscribe registers fn and returns the function that removes it. Calling the
// returned function more than once is harmless.
func (b *Broker) Subscribe(fn Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev to every current subscriber
func (b *Broker) Publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, ev)
	}
}

// Subscribers returns the number of active subscriptions
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
