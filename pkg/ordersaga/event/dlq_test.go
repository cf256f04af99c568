package event_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga/event"
)

func TestInMemoryDLQ(t *testing.T) {
	ctx := context.Background()
	var notified []*event.FailedEvent
	dlq := event.NewInMemoryDLQ(event.DLQConfig{
		MaxSize:   2,
		OnEnqueue: func(f *event.FailedEvent) { notified = append(notified, f) },
	})

	first := event.New("tx-1", "u", sampleCreate())
	second := event.New("tx-2", "u", sampleCreate())

	f1 := event.NewFailedEvent(first, errors.New("boom"), "OrderHandler")
	assert.Equal(t, first.Header().EventID, f1.EventID)
	assert.Equal(t, "tx-1", f1.TransactionID)
	assert.Equal(t, event.KindOrderCreate, f1.Kind)
	assert.Equal(t, "boom", f1.ErrorMessage)
	assert.NotEmpty(t, f1.EventData)

	require.NoError(t, dlq.Enqueue(ctx, f1))
	require.NoError(t, dlq.Enqueue(ctx, event.NewFailedEvent(second, errors.New("boom"), "")))
	assert.ErrorIs(t, dlq.Enqueue(ctx, event.NewFailedEvent(second, errors.New("again"), "")), event.ErrDeadLettersFull)

	n, err := dlq.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, notified, 2)

	all, err := dlq.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "tx-1", all[0].TransactionID)

	limited, err := dlq.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	byTx, err := dlq.ListByTransaction(ctx, "tx-2")
	require.NoError(t, err)
	require.Len(t, byTx, 1)
	assert.Equal(t, second.Header().EventID, byTx[0].EventID)
}

func TestInMemoryDLQDefaults(t *testing.T) {
	dlq := event.NewInMemoryDLQ(event.DLQConfig{})
	n, err := dlq.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
