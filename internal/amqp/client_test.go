package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/tesoreria-api/internal/events"
	"github.com/sjperalta/tesoreria-api/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	published []*LedgerEventMessage
	err       error
}

func (f *fakePublisher) PublishLedgerEvent(_ context.Context, msg *LedgerEventMessage) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

func TestLedgerEventMessage_JSON(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := NewLedgerEventMessage(events.Event{
		Type:               events.TypePaymentAdded,
		DebtID:             9,
		Version:            4,
		OutstandingBalance: decimal.RequireFromString("125.50"),
		At:                 at,
	})

	data, err := msg.ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"debt_id":9,"type":"payment.added","version":4,"outstanding_balance":"125.5","timestamp":"2024-05-01T12:00:00Z"}`, string(data))

	var decoded LedgerEventMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, uint(9), decoded.DebtID)
	assert.True(t, decoded.OutstandingBalance.Equal(decimal.RequireFromString("125.50")))
}

func TestEventHandler_EnqueuesPublish(t *testing.T) {
	pub := &fakePublisher{}
	var queued []jobs.Job
	handler := EventHandler(pub, func(job jobs.Job) { queued = append(queued, job) })

	handler(context.Background(), events.Event{Type: events.TypeDebtCreated, DebtID: 3, Version: 1})

	require.Len(t, queued, 1)
	assert.Empty(t, pub.published, "publishing must wait for the worker")

	require.NoError(t, queued[0](context.Background()))
	require.Len(t, pub.published, 1)
	assert.Equal(t, events.TypeDebtCreated, pub.published[0].Type)
}

func TestEventHandler_WrapsPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection closed")}
	var job jobs.Job
	handler := EventHandler(pub, func(j jobs.Job) { job = j })

	handler(context.Background(), events.Event{Type: events.TypeDebtDeleted, DebtID: 5})

	require.NotNil(t, job)
	err := job(context.Background())
	assert.ErrorContains(t, err, "debt.deleted")
	assert.ErrorContains(t, err, "connection closed")
}
