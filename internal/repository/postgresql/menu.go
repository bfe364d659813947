package postgresql

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/repository"
)

type MenuRepo struct {
	db db.DB
}

func NewMenuRepo(db db.DB) *MenuRepo {
	return &MenuRepo{db: db}
}

func (r *MenuRepo) Create(ctx context.Context, item *repository.MenuItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err := r.db.Exec(ctx, `
        INSERT INTO menu_items (id, restaurant_id, name, description, price_cents, available, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, item.ID, item.RestaurantID, item.Name, item.Description, item.PriceCents, item.Available, item.CreatedAt, item.UpdatedAt)
	return err
}

func (r *MenuRepo) GetByID(ctx context.Context, id string) (*repository.MenuItem, error) {
	var item repository.MenuItem
	err := r.db.Get(ctx, &item, "SELECT * FROM menu_items WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *MenuRepo) ListByRestaurant(ctx context.Context, restaurantID string) ([]repository.MenuItem, error) {
	var items []repository.MenuItem
	err := r.db.Select(ctx, &items,
		"SELECT * FROM menu_items WHERE restaurant_id = $1 ORDER BY name", restaurantID)
	return items, err
}

func (r *MenuRepo) Update(ctx context.Context, item *repository.MenuItem) error {
	item.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
        UPDATE menu_items
        SET name = $1, description = $2, price_cents = $3, available = $4, updated_at = $5
        WHERE id = $6 AND restaurant_id = $7
    `, item.Name, item.Description, item.PriceCents, item.Available, item.UpdatedAt, item.ID, item.RestaurantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}

func (r *MenuRepo) Delete(ctx context.Context, restaurantID, id string) error {
	tag, err := r.db.Exec(ctx,
		"DELETE FROM menu_items WHERE id = $1 AND restaurant_id = $2", id, restaurantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}
