package order_test

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga/order"
)

var orderedAt = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

func twoLines() []order.Line {
	return []order.Line{
		{LineNumber: 1, ResourceKey: uuid.New(), Quantity: 2},
		{LineNumber: 2, ResourceKey: uuid.New(), Quantity: 1},
	}
}

func newOrder(t *testing.T) *order.Order {
	t.Helper()
	o, err := order.New("ORD-20260402-00001", "tx-1", "user-1", twoLines(),
		order.Details{PaymentMethod: "card"}, orderedAt)
	require.NoError(t, err)
	return o
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to order.Status
		want     bool
	}{
		{order.StatusRequested, order.StatusReserving, true},
		{order.StatusRequested, order.StatusCancelled, true},
		{order.StatusRequested, order.StatusConfirmed, false},
		{order.StatusReserving, order.StatusConfirmed, true},
		{order.StatusReserving, order.StatusCancelled, true},
		{order.StatusReserving, order.StatusRequested, false},
		{order.StatusConfirmed, order.StatusCancelled, false},
		{order.StatusCancelled, order.StatusConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, order.CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatus(t *testing.T) {
	assert.True(t, order.StatusConfirmed.Terminal())
	assert.True(t, order.StatusCancelled.Terminal())
	assert.False(t, order.StatusReserving.Terminal())
	assert.True(t, order.StatusRequested.Valid())
	assert.False(t, order.Status("SHIPPED").Valid())
}

func TestNew(t *testing.T) {
	o := newOrder(t)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, order.StatusRequested, o.Status)
	assert.Equal(t, "tx-1", o.TransactionID)
	assert.Equal(t, "card", o.Details.PaymentMethod)
	require.Len(t, o.History, 1)
	assert.Equal(t, order.StatusRequested, o.History[0].To)
	assert.Empty(t, o.History[0].From)

	_, err := order.New("n", "tx", "u", nil, order.Details{}, orderedAt)
	assert.ErrorIs(t, err, order.ErrNoLines)
}

func TestConfirm(t *testing.T) {
	o := newOrder(t)
	require.NoError(t, o.StartReserving(orderedAt))

	require.NoError(t, o.Confirm(map[int]string{1: "res-a", 2: "res-b"}, orderedAt.Add(time.Second)))
	assert.Equal(t, order.StatusConfirmed, o.Status)
	assert.Equal(t, "res-a", o.Lines[0].ReservationID)
	assert.Equal(t, "res-b", o.Lines[1].ReservationID)
	require.NotNil(t, o.ConfirmedAt)

	require.Len(t, o.History, 3)
	assert.Equal(t, order.StatusReserving, o.History[2].From)
	assert.Equal(t, order.StatusConfirmed, o.History[2].To)
}

func TestConfirm_MissingReservation(t *testing.T) {
	o := newOrder(t)
	require.NoError(t, o.StartReserving(orderedAt))

	err := o.Confirm(map[int]string{1: "res-a"}, orderedAt)
	require.Error(t, err)
	assert.Equal(t, order.StatusReserving, o.Status)
	assert.Empty(t, o.Lines[0].ReservationID)
}

func TestConfirm_FromRequested(t *testing.T) {
	o := newOrder(t)
	err := o.Confirm(map[int]string{1: "a", 2: "b"}, orderedAt)

	var te *order.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, order.StatusRequested, te.From)
	assert.Equal(t, order.StatusConfirmed, te.To)
}

func TestCancel(t *testing.T) {
	o := newOrder(t)
	require.NoError(t, o.StartReserving(orderedAt))
	require.NoError(t, o.Cancel("insufficient stock", orderedAt))

	assert.Equal(t, order.StatusCancelled, o.Status)
	assert.Equal(t, "insufficient stock", o.CancellationReason)
	require.NotNil(t, o.CancelledAt)
	assert.Equal(t, "insufficient stock", o.History[len(o.History)-1].Reason)

	err := o.Cancel("again", orderedAt)
	var te *order.TransitionError
	assert.ErrorAs(t, err, &te)
}

func TestClone(t *testing.T) {
	o := newOrder(t)
	require.NoError(t, o.StartReserving(orderedAt))
	require.NoError(t, o.Cancel("x", orderedAt))

	c := o.Clone()
	c.Lines[0].Quantity = 99
	c.History[0].Reason = "changed"
	*c.CancelledAt = time.Time{}

	assert.Equal(t, 2, o.Lines[0].Quantity)
	assert.Empty(t, o.History[0].Reason)
	assert.False(t, o.CancelledAt.IsZero())
	assert.Nil(t, (*order.Order)(nil).Clone())
}

func TestNumberGenerator(t *testing.T) {
	g := order.NewNumberGenerator(func() time.Time { return orderedAt })
	assert.Equal(t, "ORD-20260402-00001", g.Next())
	assert.Equal(t, "ORD-20260402-00002", g.Next())

	pattern := regexp.MustCompile(`^ORD-\d{8}-\d{5}$`)
	assert.Regexp(t, pattern, order.NewNumberGenerator(nil).Next())
}

func TestNumberGenerator_Concurrent(t *testing.T) {
	g := order.NewNumberGenerator(nil)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := g.Next()
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 100)
}
