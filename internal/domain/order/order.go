package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the delivery state of an order. The wire values are kept
// exactly as the storefront emits them.
type Status string

const (
	// StatusReceived is the state of a freshly accepted order.
	StatusReceived Status = "Order Diterima"
	// StatusDelivered is the terminal state set by the delivery sweep.
	StatusDelivered Status = "Dikirim ke customer"
)

// ErrCustomerBusy is returned by Submit when another submission for the
// same customer is still in flight.
var ErrCustomerBusy = errors.New("customer order already in progress")

// Item is a single order line. Current scope is one item per order.
type Item struct {
	ProductID int64
	Name      string
	Price     decimal.Decimal
	Quantity  int
}

// Order is a customer order as persisted to the database and to the
// artifact store. Number is unique per customer per day:
// ORDER-{customerID}-{YYYYMMDD}-{seq5}.
type Order struct {
	Number      string
	CustomerID  int64
	Name        string
	Email       string
	Address     string
	PaymentType string
	Items       []Item
	Total       decimal.Decimal
	Status      Status
	CreatedAt   time.Time
}

// CreateOrderRequest is a validated order submission handed in by the
// HTTP layer.
type CreateOrderRequest struct {
	CustomerID  int64
	Name        string
	Email       string
	Address     string
	PaymentType string
	Item        Item
}

// Repository defines the relational persistence operations the order
// service depends on.
type Repository interface {
	// LastOrderNumber returns the lexicographically greatest order number
	// starting with prefix, or "" when no such order exists.
	LastOrderNumber(ctx context.Context, prefix string) (string, error)
	Create(ctx context.Context, o *Order) error
}

// FileStore is the key-based artifact store holding one JSON artifact per
// order, in either the pending or the delivered location but never both.
type FileStore interface {
	Write(ctx context.Context, o *Order) error
	Read(ctx context.Context, key string) (*Order, error)
	// ListPending returns up to limit pending keys in directory order.
	// A non-positive limit returns everything.
	ListPending(ctx context.Context, limit int) ([]string, error)
	// MoveToDelivered flips the artifact status to StatusDelivered and
	// relocates it. A key already present in the delivered location is an
	// idempotent no-op, not an error.
	MoveToDelivered(ctx context.Context, key string) error
}
