package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/auth"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/order"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/realtime"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/repository"
)

// ErrForbidden is returned when the actor is not a party to the order or the
// operation is outside their role.
var ErrForbidden = errors.New("forbidden")

// ErrEmptyOrder is returned for a create request without items.
var ErrEmptyOrder = errors.New("order has no items")

type OrderRepository interface {
	Create(ctx context.Context, o *repository.Order, items []repository.OrderItem) error
	GetByID(ctx context.Context, id string) (*repository.Order, error)
	GetItems(ctx context.Context, orderID string) ([]repository.OrderItem, error)
	CommitStatus(ctx context.Context, id string, from, to order.Status) error
	AssignCourier(ctx context.Context, id, courierID string) (*repository.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]repository.Order, error)
	ListByRestaurant(ctx context.Context, restaurantID string) ([]repository.Order, error)
	ListByCourier(ctx context.Context, courierID string) ([]repository.Order, error)
	ListAll(ctx context.Context) ([]repository.Order, error)
}

type MenuRepository interface {
	GetByID(ctx context.Context, id string) (*repository.MenuItem, error)
}

type OrderCache interface {
	Get(orderID string) (*repository.Order, bool)
	Set(o *repository.Order)
	Delete(orderID string)
}

// Notifier fans events out to rooms. Publishing happens only after the
// database commit; a failed commit produces no event.
type Notifier interface {
	Publish(ctx context.Context, room realtime.Room, e realtime.Event)
	JoinUser(userID string, room realtime.Room)
}

// Auditor records order events for the offline trail. Appends never block
// the request path.
type Auditor interface {
	Append(orderID string, payload []byte)
}

type ItemInput struct {
	MenuItemID string
	Quantity   int
}

type Service struct {
	orders OrderRepository
	menu   MenuRepository
	cache  OrderCache
	hub    Notifier
	audit  Auditor
	locks  *keyedLock
}

func New(orders OrderRepository, menu MenuRepository, cache OrderCache, hub Notifier, audit Auditor) *Service {
	return &Service{
		orders: orders,
		menu:   menu,
		cache:  cache,
		hub:    hub,
		audit:  audit,
		locks:  newKeyedLock(),
	}
}

// CreateOrder prices the items against the menu, persists the order in the
// placed status and notifies the restaurant.
func (s *Service) CreateOrder(ctx context.Context, customerID, restaurantID string, items []ItemInput) (*repository.Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	var (
		orderItems []repository.OrderItem
		total      int64
	)
	for _, in := range items {
		if in.Quantity <= 0 {
			return nil, fmt.Errorf("item %s: quantity must be positive", in.MenuItemID)
		}
		menuItem, err := s.menu.GetByID(ctx, in.MenuItemID)
		if err != nil {
			return nil, err
		}
		if menuItem.RestaurantID != restaurantID || !menuItem.Available {
			return nil, fmt.Errorf("item %s is not available: %w", in.MenuItemID, repository.ErrObjectNotFound)
		}
		orderItems = append(orderItems, repository.OrderItem{
			MenuItemID: menuItem.ID,
			Quantity:   in.Quantity,
			PriceCents: menuItem.PriceCents,
		})
		total += menuItem.PriceCents * int64(in.Quantity)
	}

	now := time.Now().UTC()
	o := &repository.Order{
		ID:           uuid.NewString(),
		CustomerID:   customerID,
		RestaurantID: restaurantID,
		Status:       order.StatusPlaced,
		TotalCents:   total,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.orders.Create(ctx, o, orderItems); err != nil {
		return nil, err
	}

	s.cache.Set(o)
	s.appendAudit(o.ID, "created", "", o.Status, customerID, order.RoleCustomer)
	s.hub.Publish(ctx, realtime.UserRoom(restaurantID), realtime.NewStatusChanged(o.ID, o.Status, order.RoleCustomer))

	zap.L().Info("order created",
		zap.String("order_id", o.ID),
		zap.String("customer_id", customerID),
		zap.String("restaurant_id", restaurantID),
		zap.Int64("total_cents", total))
	return o, nil
}

// Order resolves an order, preferring the in-memory cache over the database.
func (s *Service) Order(ctx context.Context, id string) (*repository.Order, error) {
	if o, found := s.cache.Get(id); found {
		return o, nil
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(o)
	return o, nil
}

func (s *Service) OrderItems(ctx context.Context, orderID string) ([]repository.OrderItem, error) {
	return s.orders.GetItems(ctx, orderID)
}

// Orders lists the orders visible to the actor.
func (s *Service) Orders(ctx context.Context, actor auth.Identity) ([]repository.Order, error) {
	switch actor.Role {
	case order.RoleCustomer:
		return s.orders.ListByCustomer(ctx, actor.UserID)
	case order.RoleRestaurant:
		return s.orders.ListByRestaurant(ctx, actor.UserID)
	case order.RoleCourier:
		return s.orders.ListByCourier(ctx, actor.UserID)
	case order.RoleAdmin:
		return s.orders.ListAll(ctx)
	default:
		return nil, ErrForbidden
	}
}

// UpdateStatus runs one status transition end to end: authorize, validate
// against the lifecycle, commit, then notify. Work on the same order is
// serialized; a transition that lost the commit race reports the conflict
// instead of publishing a stale event.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, requested order.Status, actor auth.Identity) (order.Status, error) {
	s.locks.Lock(orderID)
	defer s.locks.Unlock(orderID)

	// Another instance may have committed since this one last cached the
	// order, so transitions validate against the database row, not the
	// cached copy.
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		metrics.TransitionErrorsTotal.WithLabelValues("not_found").Inc()
		return "", err
	}
	s.cache.Set(o)

	// Couriers go through the transition table, which tells the assigned
	// courier apart from a stranger.
	if actor.Role != order.RoleCourier && !realtime.IsParty(actor, o) {
		metrics.TransitionErrorsTotal.WithLabelValues("not_party").Inc()
		return "", ErrForbidden
	}

	next, err := order.Transition(o.Status, o.AssignedCourier(), requested, order.Actor{UserID: actor.UserID, Role: actor.Role})
	if err != nil {
		metrics.TransitionErrorsTotal.WithLabelValues(transitionErrorReason(err)).Inc()
		return "", err
	}
	if next == o.Status {
		// Re-request of the current status is a no-op, not an error, but
		// only for a party to the order.
		if !realtime.IsParty(actor, o) {
			metrics.TransitionErrorsTotal.WithLabelValues("not_party").Inc()
			return "", ErrForbidden
		}
		return next, nil
	}

	if err := s.orders.CommitStatus(ctx, orderID, o.Status, next); err != nil {
		if errors.Is(err, order.ErrStatusConflict) {
			metrics.TransitionErrorsTotal.WithLabelValues("conflict").Inc()
			s.cache.Delete(orderID)
			zap.L().Warn("status transition lost commit race",
				zap.String("order_id", orderID),
				zap.String("from", string(o.Status)),
				zap.String("to", string(next)))
		}
		return "", err
	}

	from := o.Status
	o.Status = next
	o.UpdatedAt = time.Now().UTC()
	s.cache.Set(o)

	metrics.TransitionsTotal.WithLabelValues(string(next)).Inc()
	s.appendAudit(orderID, "status_changed", from, next, actor.UserID, actor.Role)

	e := realtime.NewStatusChanged(orderID, next, actor.Role)
	s.hub.Publish(ctx, realtime.OrderRoom(orderID), e)
	s.hub.Publish(ctx, realtime.UserRoom(o.CustomerID), e)
	if courier := o.AssignedCourier(); courier != "" {
		s.hub.Publish(ctx, realtime.UserRoom(courier), e)
	}

	zap.L().Info("order status changed",
		zap.String("order_id", orderID),
		zap.String("from", string(from)),
		zap.String("to", string(next)),
		zap.String("actor_id", actor.UserID),
		zap.String("actor_role", string(actor.Role)))
	return next, nil
}

// AssignCourier binds a courier to the order and pulls the courier's live
// connections into the order room so they see events from the moment of
// assignment.
func (s *Service) AssignCourier(ctx context.Context, orderID, courierID string, actor auth.Identity) (*repository.Order, error) {
	if actor.Role != order.RoleAdmin && actor.Role != order.RoleRestaurant {
		return nil, ErrForbidden
	}
	if actor.Role == order.RoleRestaurant {
		existing, err := s.Order(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if existing.RestaurantID != actor.UserID {
			return nil, ErrForbidden
		}
	}

	s.locks.Lock(orderID)
	defer s.locks.Unlock(orderID)

	o, err := s.orders.AssignCourier(ctx, orderID, courierID)
	if err != nil {
		return nil, err
	}

	s.cache.Set(o)
	s.appendAudit(orderID, "courier_assigned", o.Status, o.Status, actor.UserID, actor.Role)

	s.hub.JoinUser(courierID, realtime.OrderRoom(orderID))
	e := realtime.NewCourierAssigned(orderID, courierID)
	s.hub.Publish(ctx, realtime.OrderRoom(orderID), e)
	s.hub.Publish(ctx, realtime.UserRoom(courierID), e)

	zap.L().Info("courier assigned",
		zap.String("order_id", orderID),
		zap.String("courier_id", courierID),
		zap.String("actor_id", actor.UserID))
	return o, nil
}

// PublishLocation forwards a courier position to the order room. Positions
// are transient; nothing is persisted.
func (s *Service) PublishLocation(ctx context.Context, orderID string, actor auth.Identity, lat, lng float64) error {
	o, err := s.Order(ctx, orderID)
	if err != nil {
		return err
	}
	if actor.Role != order.RoleCourier || o.AssignedCourier() != actor.UserID {
		return order.ErrNotAssignedCourier
	}
	if o.Status.Terminal() {
		return order.ErrIllegalTransition
	}

	s.hub.Publish(ctx, realtime.OrderRoom(orderID), realtime.NewLocationChanged(orderID, lat, lng))
	return nil
}

type auditRecord struct {
	OrderID   string `json:"order_id"`
	Kind      string `json:"kind"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	ActorID   string `json:"actor_id"`
	ActorRole string `json:"actor_role"`
	At        int64  `json:"at"`
}

func (s *Service) appendAudit(orderID, kind string, from, to order.Status, actorID string, actorRole order.Role) {
	payload, err := json.Marshal(auditRecord{
		OrderID:   orderID,
		Kind:      kind,
		From:      string(from),
		To:        string(to),
		ActorID:   actorID,
		ActorRole: string(actorRole),
		At:        time.Now().UTC().UnixMilli(),
	})
	if err != nil {
		zap.L().Error("failed to marshal audit record", zap.Error(err))
		return
	}
	s.audit.Append(orderID, payload)
}

func transitionErrorReason(err error) string {
	switch {
	case errors.Is(err, order.ErrNotAssignedCourier):
		return "not_courier"
	case errors.Is(err, order.ErrIllegalTransition):
		return "illegal"
	default:
		return "other"
	}
}
