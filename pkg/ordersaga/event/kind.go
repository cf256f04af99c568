package event

// Kind names a payload type on the bus.
type Kind string

const (
	KindOrderCreate          Kind = "order.create"
	KindReservationRequested Kind = "inventory.reservation.requested"
	KindReservationSucceeded Kind = "inventory.reservation.succeeded"
	KindReservationFailed    Kind = "inventory.reservation.failed"
	KindOrderCompleted       Kind = "order.completed"
)

var allKinds = []Kind{
	KindOrderCreate,
	KindReservationRequested,
	KindReservationSucceeded,
	KindReservationFailed,
	KindOrderCompleted,
}

// Kinds returns every kind in the closed set, in flow order.
func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// Valid reports whether k belongs to the closed set.
func (k Kind) Valid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Terminal reports whether envelopes of this kind end a flow.
func (k Kind) Terminal() bool {
	return k == KindOrderCompleted
}

func (k Kind) String() string {
	return string(k)
}
