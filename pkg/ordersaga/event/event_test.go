package event_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga/event"
)

func sampleCreate() event.OrderCreate {
	return event.OrderCreate{
		Items: []event.LineItem{
			{LineNumber: 1, ResourceKey: uuid.New(), Quantity: 2},
			{LineNumber: 2, ResourceKey: uuid.New(), Quantity: 1},
		},
		PaymentMethod: "card",
	}
}

func TestNew(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	env := event.New("tx-1", "user-1", sampleCreate(),
		event.WithEventID("evt-1"),
		event.WithTimestamp(ts),
	)

	h := env.Header()
	assert.Equal(t, "evt-1", h.EventID)
	assert.Equal(t, "tx-1", h.TransactionID)
	assert.Equal(t, "user-1", h.OriginUserID)
	assert.False(t, h.IsError)
	assert.Equal(t, ts, h.CreatedAt)
	assert.Empty(t, h.CausationID)
	assert.Equal(t, event.KindOrderCreate, env.Kind())
}

func TestNewGeneratesID(t *testing.T) {
	a := event.New("tx", "u", sampleCreate())
	b := event.New("tx", "u", sampleCreate())
	assert.NotEmpty(t, a.Header().EventID)
	assert.NotEqual(t, a.Header().EventID, b.Header().EventID)
	assert.False(t, a.Header().CreatedAt.IsZero())
}

func TestNewFromParent(t *testing.T) {
	parent := event.New("tx-9", "user-9", sampleCreate())
	child := event.NewFromParent(parent, event.OrderCompleted{
		Failure: &event.ErrorInfo{Code: event.CodeInsufficientStock, Message: "insufficient stock"},
	}, event.WithError())

	h := child.Header()
	assert.Equal(t, "tx-9", h.TransactionID)
	assert.Equal(t, "user-9", h.OriginUserID)
	assert.Equal(t, parent.Header().EventID, h.CausationID)
	assert.True(t, h.IsError)
	assert.NotEqual(t, parent.Header().EventID, h.EventID)
}

func TestEnvelopeIsImmutable(t *testing.T) {
	payload := sampleCreate()
	env := event.New("tx", "u", payload)

	// Mutating the caller's copy after creation does not leak in.
	payload.Items[0].Quantity = 99
	assert.Equal(t, 2, env.Payload().Items[0].Quantity)

	// Mutating a view does not leak back either.
	view := env.Payload()
	view.Items[1].Quantity = 42
	assert.Equal(t, 1, env.Payload().Items[1].Quantity)

	data, ok := env.Data().(event.OrderCreate)
	require.True(t, ok)
	data.Items[0].Quantity = 7
	assert.Equal(t, 2, env.Payload().Items[0].Quantity)
}

func TestEnvelopeJSON(t *testing.T) {
	env := event.New("tx-1", "user-1", sampleCreate(), event.WithEventID("evt-1"))

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded struct {
		Header  event.Header      `json:"header"`
		Kind    event.Kind        `json:"kind"`
		Payload event.OrderCreate `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "tx-1", decoded.Header.TransactionID)
	assert.Equal(t, event.KindOrderCreate, decoded.Kind)
	assert.Len(t, decoded.Payload.Items, 2)

	var payload event.OrderCreate
	require.NoError(t, json.Unmarshal(env.DataBytes(), &payload))
	assert.Equal(t, "card", payload.PaymentMethod)
}

func TestKinds(t *testing.T) {
	kinds := event.Kinds()
	assert.Len(t, kinds, 5)
	for _, k := range kinds {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, event.Kind("order.deleted").Valid())
	assert.True(t, event.KindOrderCompleted.Terminal())
	assert.False(t, event.KindReservationFailed.Terminal())

	// Callers cannot mutate the closed set.
	kinds[0] = "bogus"
	assert.Equal(t, event.KindOrderCreate, event.Kinds()[0])
}

func TestTypedHandler(t *testing.T) {
	var got event.ReservationRequest
	var gotHeader event.Header
	h := event.TypedHandler(func(_ context.Context, hdr event.Header, p event.ReservationRequest) ([]event.Event, error) {
		got, gotHeader = p, hdr
		return nil, nil
	})
	assert.Equal(t, []event.Kind{event.KindReservationRequested}, h.Handles())

	req := event.New("tx", "u", event.ReservationRequest{OrderID: "o-1", Items: sampleCreate().Items})
	_, err := h.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "o-1", got.OrderID)
	assert.Equal(t, "tx", gotHeader.TransactionID)

	_, err = h.Handle(context.Background(), event.New("tx", "u", sampleCreate()))
	var evtErr *event.EventError
	require.ErrorAs(t, err, &evtErr)
	assert.Contains(t, evtErr.Error(), "unexpected payload type")
}

func TestFailureInfo(t *testing.T) {
	k1, k2 := uuid.New(), uuid.New()

	t.Run("single code", func(t *testing.T) {
		info := event.FailureInfo([]event.ItemError{
			{ResourceKey: k1, Code: event.CodeInsufficientStock, Requested: 5, Available: 2},
		})
		assert.Equal(t, event.CodeInsufficientStock, info.Code)
		assert.Equal(t, "insufficient stock", info.Message)
		require.Len(t, info.ItemDetails, 1)
		assert.Equal(t, event.ItemDetail{ResourceKey: k1, RequestedQuantity: 5, AvailableQuantity: 2}, info.ItemDetails[0])
		assert.Contains(t, info.Error(), k1.String())
	})

	t.Run("mixed codes", func(t *testing.T) {
		info := event.FailureInfo([]event.ItemError{
			{ResourceKey: k1, Code: event.CodeInsufficientStock},
			{ResourceKey: k2, Code: event.CodeOptimisticLockFailure},
		})
		assert.Equal(t, event.CodeOrderRejected, info.Code)
		assert.Len(t, info.ItemDetails, 2)
	})

	t.Run("empty", func(t *testing.T) {
		info := event.FailureInfo(nil)
		assert.Equal(t, event.CodeOrderRejected, info.Code)
		assert.Empty(t, info.ItemDetails)
	})
}

func TestErrorInfoJSONOmitsEmptyDetails(t *testing.T) {
	raw, err := json.Marshal(&event.ErrorInfo{Code: event.CodeSystemError, Message: "boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"SYSTEM_ERROR","message":"boom"}`, string(raw))
}
