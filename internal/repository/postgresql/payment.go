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

type PaymentRepo struct {
	db db.DB
}

func NewPaymentRepo(db db.DB) *PaymentRepo {
	return &PaymentRepo{db: db}
}

func (r *PaymentRepo) Create(ctx context.Context, p *repository.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now().UTC()

	_, err := r.db.Exec(ctx, `
        INSERT INTO payments (id, order_id, amount, method, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, p.ID, p.OrderID, p.Amount, p.Method, p.Status, p.CreatedAt)
	return err
}

func (r *PaymentRepo) GetByOrder(ctx context.Context, orderID string) (*repository.Payment, error) {
	var p repository.Payment
	err := r.db.Get(ctx, &p, "SELECT * FROM payments WHERE order_id = $1", orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepo) SetStatus(ctx context.Context, id, status string) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE payments SET status = $1 WHERE id = $2", status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}
