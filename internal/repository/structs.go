package repository

import (
	"errors"
	"time"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/order"
)

var (
	ErrObjectNotFound     = errors.New("not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type User struct {
	ID           string     `db:"id"`
	Name         string     `db:"name"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	Role         order.Role `db:"role"`
	CreatedAt    time.Time  `db:"created_at"`
}

type Session struct {
	ID        int64      `db:"id"`
	UserID    string     `db:"user_id"`
	Token     string     `db:"token"`
	ExpiresAt time.Time  `db:"expires_at"`
	RevokedAt *time.Time `db:"revoked_at"`
	CreatedAt time.Time  `db:"created_at"`
}

type Order struct {
	ID           string       `db:"id"`
	CustomerID   string       `db:"customer_id"`
	RestaurantID string       `db:"restaurant_id"`
	CourierID    *string      `db:"courier_id"`
	Status       order.Status `db:"status"`
	TotalCents   int64        `db:"total_cents"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

// AssignedCourier returns the courier id or "" when none is assigned.
func (o *Order) AssignedCourier() string {
	if o.CourierID == nil {
		return ""
	}
	return *o.CourierID
}

type OrderItem struct {
	ID         int64  `db:"id"`
	OrderID    string `db:"order_id"`
	MenuItemID string `db:"menu_item_id"`
	Quantity   int    `db:"quantity"`
	PriceCents int64  `db:"price_cents"`
}

type MenuItem struct {
	ID           string    `db:"id"`
	RestaurantID string    `db:"restaurant_id"`
	Name         string    `db:"name"`
	Description  string    `db:"description"`
	PriceCents   int64     `db:"price_cents"`
	Available    bool      `db:"available"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type Review struct {
	ID           int64     `db:"id"`
	OrderID      string    `db:"order_id"`
	CustomerID   string    `db:"customer_id"`
	RestaurantID string    `db:"restaurant_id"`
	Rating       int       `db:"rating"`
	Comment      string    `db:"comment"`
	CreatedAt    time.Time `db:"created_at"`
}

type Payment struct {
	ID        string    `db:"id"`
	OrderID   string    `db:"order_id"`
	Amount    int64     `db:"amount"`
	Method    string    `db:"method"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
}
