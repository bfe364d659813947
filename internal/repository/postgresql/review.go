package postgresql

import (
	"context"
	"time"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/repository"
)

type ReviewRepo struct {
	db db.DB
}

func NewReviewRepo(db db.DB) *ReviewRepo {
	return &ReviewRepo{db: db}
}

func (r *ReviewRepo) Create(ctx context.Context, rev *repository.Review) error {
	rev.CreatedAt = time.Now().UTC()
	return r.db.ExecQueryRow(ctx, `
        INSERT INTO reviews (order_id, customer_id, restaurant_id, rating, comment, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `, rev.OrderID, rev.CustomerID, rev.RestaurantID, rev.Rating, rev.Comment, rev.CreatedAt).Scan(&rev.ID)
}

func (r *ReviewRepo) ListByRestaurant(ctx context.Context, restaurantID string) ([]repository.Review, error) {
	var reviews []repository.Review
	err := r.db.Select(ctx, &reviews,
		"SELECT * FROM reviews WHERE restaurant_id = $1 ORDER BY created_at DESC", restaurantID)
	return reviews, err
}
