package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/order"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/repository"
)

type OrderRepo struct {
	db db.DB
}

func NewOrderRepo(db db.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

func (r *OrderRepo) Create(ctx context.Context, o *repository.Order, items []repository.OrderItem) error {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	_, err = tx.Exec(ctx, `
        INSERT INTO orders (
            id, customer_id, restaurant_id, courier_id, status, total_cents, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, o.ID, o.CustomerID, o.RestaurantID, o.CourierID, o.Status, o.TotalCents, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	for _, item := range items {
		_, err = tx.Exec(ctx, `
            INSERT INTO order_items (order_id, menu_item_id, quantity, price_cents)
            VALUES ($1, $2, $3, $4)
        `, o.ID, item.MenuItemID, item.Quantity, item.PriceCents)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *OrderRepo) GetByID(ctx context.Context, id string) (*repository.Order, error) {
	var o repository.Order
	err := r.db.Get(ctx, &o, "SELECT * FROM orders WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepo) GetItems(ctx context.Context, orderID string) ([]repository.OrderItem, error) {
	var items []repository.OrderItem
	err := r.db.Select(ctx, &items, "SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// CommitStatus advances the order's status with a conditional update. A
// concurrent transition that already moved the order off `from` makes the
// update match zero rows; the caller then gets the conflict and must re-read.
func (r *OrderRepo) CommitStatus(ctx context.Context, id string, from, to order.Status) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE orders
        SET status = $1, updated_at = $2
        WHERE id = $3 AND status = $4
    `, to, time.Now().UTC(), id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return order.ErrStatusConflict
	}
	return nil
}

// AssignCourier sets the courier on an order that is still assignable. The
// row is locked for the check so two assignments cannot interleave.
func (r *OrderRepo) AssignCourier(ctx context.Context, id, courierID string) (*repository.Order, error) {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	var o repository.Order
	if err := tx.Get(ctx, &o, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}

	if o.Status.Terminal() || o.Status == order.StatusOutForDelivery {
		return nil, fmt.Errorf("order %s is not assignable in status %s: %w", id, o.Status, order.ErrIllegalTransition)
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
        UPDATE orders SET courier_id = $1, updated_at = $2 WHERE id = $3
    `, courierID, now, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	o.CourierID = &courierID
	o.UpdatedAt = now
	return &o, nil
}

func (r *OrderRepo) ListByCustomer(ctx context.Context, customerID string) ([]repository.Order, error) {
	var orders []repository.Order
	err := r.db.Select(ctx, &orders,
		"SELECT * FROM orders WHERE customer_id = $1 ORDER BY created_at DESC", customerID)
	return orders, err
}

func (r *OrderRepo) ListByRestaurant(ctx context.Context, restaurantID string) ([]repository.Order, error) {
	var orders []repository.Order
	err := r.db.Select(ctx, &orders,
		"SELECT * FROM orders WHERE restaurant_id = $1 ORDER BY created_at DESC", restaurantID)
	return orders, err
}

func (r *OrderRepo) ListByCourier(ctx context.Context, courierID string) ([]repository.Order, error) {
	var orders []repository.Order
	err := r.db.Select(ctx, &orders,
		"SELECT * FROM orders WHERE courier_id = $1 ORDER BY created_at DESC", courierID)
	return orders, err
}

func (r *OrderRepo) ListAll(ctx context.Context) ([]repository.Order, error) {
	var orders []repository.Order
	err := r.db.Select(ctx, &orders, "SELECT * FROM orders ORDER BY created_at DESC")
	return orders, err
}

// GetAllActive feeds the order cache on startup.
func (r *OrderRepo) GetAllActive(ctx context.Context) ([]*repository.Order, error) {
	var orders []*repository.Order
	err := r.db.Select(ctx, &orders, `
        SELECT * FROM orders
        WHERE status NOT IN ('delivered', 'cancelled')
        ORDER BY created_at ASC
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to get active orders: %w", err)
	}
	return orders, nil
}
