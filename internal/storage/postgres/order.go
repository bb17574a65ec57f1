package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orderdesk/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const lastOrderNumberSQL = `
SELECT order_number
FROM orders
WHERE order_number LIKE $1
ORDER BY order_number DESC
LIMIT 1`

// LastOrderNumber returns the greatest order number matching prefix, or
// "" when the customer has no orders for that day yet. The prefix scan
// rides the text_pattern_ops index on order_number.
func (r *OrderRepository) LastOrderNumber(ctx context.Context, prefix string) (string, error) {
	var number string
	err := r.pool.QueryRow(ctx, lastOrderNumberSQL, prefix+"%").Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "query last order number")
	}
	return number, nil
}

const insertOrderSQL = `
INSERT INTO orders (
	order_number, customer_id, customer_name, email, address, payment_type,
	item_id, item_name, item_price, quantity, total, status
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// Create persists a new order row. Single-item scope: the line item is
// stored inline on the order row.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	if len(o.Items) == 0 {
		return errors.New("order has no items")
	}
	item := o.Items[0]

	_, err := r.pool.Exec(ctx, insertOrderSQL,
		o.Number,
		o.CustomerID,
		o.Name,
		o.Email,
		o.Address,
		o.PaymentType,
		item.ProductID,
		item.Name,
		item.Price,
		item.Quantity,
		o.Total,
		string(o.Status),
	)
	if err != nil {
		return errors.Wrapf(err, "insert order %q", o.Number)
	}
	return nil
}
