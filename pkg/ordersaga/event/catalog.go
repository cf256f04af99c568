package event

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga/registry"
)

// Schema describes one kind of the closed payload set.
type Schema struct {
	// Kind is the payload kind.
	Kind Kind

	// Description explains the envelope's purpose.
	Description string

	// Validator is an optional check run before delivery.
	Validator func(Event) error
}

// Validate checks if an event conforms to this schema.
func (s *Schema) Validate(evt Event) error {
	if evt.Kind() != s.Kind {
		return fmt.Errorf("kind mismatch: expected %s, got %s", s.Kind, evt.Kind())
	}
	if evt.Header().TransactionID == "" {
		return errors.New("missing transaction id")
	}
	if s.Validator != nil {
		if err := s.Validator(evt); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}
	return nil
}

// Catalog holds the schemas of the closed payload set.
type Catalog struct {
	schemas *registry.Registry[Kind, *Schema]
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{schemas: registry.New[Kind, *Schema]()}
}

// DefaultCatalog returns a catalog with a schema for every kind.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	for _, s := range defaultSchemas() {
		// Kinds are known members of the closed set.
		_ = c.Register(s)
	}
	return c
}

// Register adds or replaces a schema. Kinds outside the closed set are
// rejected.
func (c *Catalog) Register(schema *Schema) error {
	if schema == nil || !schema.Kind.Valid() {
		return ErrUnknownKind
	}
	c.schemas.Register(schema.Kind, schema)
	return nil
}

// Get returns the schema for a kind.
func (c *Catalog) Get(kind Kind) (*Schema, bool) {
	return c.schemas.Get(kind)
}

// Validate checks evt against its schema. Events of kinds without a
// registered schema fail.
func (c *Catalog) Validate(evt Event) error {
	s, ok := c.schemas.Get(evt.Kind())
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, evt.Kind())
	}
	return s.Validate(evt)
}

// Kinds returns the registered kinds in flow order.
func (c *Catalog) Kinds() []Kind {
	var out []Kind
	for _, k := range allKinds {
		if c.schemas.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// SubscriptionSource reports which kinds currently have subscribers.
type SubscriptionSource interface {
	SubscribedKinds() []Kind
}

// VerifyCoverage fails if any kind of the closed set has no subscriber.
func (c *Catalog) VerifyCoverage(src SubscriptionSource) error {
	subscribed := src.SubscribedKinds()
	var missing []string
	for _, k := range allKinds {
		if !slices.Contains(subscribed, k) {
			missing = append(missing, string(k))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("no subscriber for kinds: %s", strings.Join(missing, ", "))
	}
	return nil
}

func defaultSchemas() []*Schema {
	return []*Schema{
		{
			Kind:        KindOrderCreate,
			Description: "boundary asks for an order to be created",
			Validator: func(evt Event) error {
				p, _ := evt.Data().(OrderCreate)
				return validateLineItems(p.Items)
			},
		},
		{
			Kind:        KindReservationRequested,
			Description: "order handler asks inventory to reserve all lines",
			Validator: func(evt Event) error {
				p, _ := evt.Data().(ReservationRequest)
				if p.OrderID == "" {
					return errors.New("missing order id")
				}
				return validateLineItems(p.Items)
			},
		},
		{
			Kind:        KindReservationSucceeded,
			Description: "inventory reserved every line",
			Validator: func(evt Event) error {
				p, _ := evt.Data().(ReservationSucceeded)
				if evt.Header().IsError {
					return errors.New("success envelope carries the error flag")
				}
				if len(p.Items) == 0 {
					return errors.New("no reserved items")
				}
				for _, it := range p.Items {
					if it.ReservationID == "" {
						return fmt.Errorf("line %d has no reservation id", it.LineNumber)
					}
				}
				return nil
			},
		},
		{
			Kind:        KindReservationFailed,
			Description: "inventory could not reserve at least one line",
			Validator: func(evt Event) error {
				p, _ := evt.Data().(ReservationFailed)
				if !evt.Header().IsError {
					return errors.New("failure envelope without error flag")
				}
				if len(p.Failures) == 0 {
					return errors.New("failure envelope lists no failed items")
				}
				return nil
			},
		},
		{
			Kind:        KindOrderCompleted,
			Description: "terminal outcome of an order flow",
			Validator: func(evt Event) error {
				p, _ := evt.Data().(OrderCompleted)
				isErr := evt.Header().IsError
				switch {
				case isErr && p.Failure == nil:
					return errors.New("error terminal envelope without failure payload")
				case !isErr && p.Failure != nil:
					return errors.New("success terminal envelope carries a failure payload")
				}
				return nil
			},
		},
	}
}

func validateLineItems(items []LineItem) error {
	if len(items) == 0 {
		return errors.New("no line items")
	}
	for _, it := range items {
		if it.Quantity < 1 {
			return fmt.Errorf("line %d: quantity must be at least 1", it.LineNumber)
		}
	}
	return nil
}
