package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/auth"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/order"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/realtime"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/repository"
)

type stubOrderRepo struct {
	mu        sync.Mutex
	order     *repository.Order
	commitErr error
	commits   []order.Status
	assigned  *repository.Order
	assignErr error
	created   *repository.Order
	createErr error
}

func (s *stubOrderRepo) Create(_ context.Context, o *repository.Order, _ []repository.OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.created = o
	return nil
}

func (s *stubOrderRepo) GetByID(_ context.Context, id string) (*repository.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.order == nil || s.order.ID != id {
		return nil, repository.ErrObjectNotFound
	}
	cp := *s.order
	return &cp, nil
}

func (s *stubOrderRepo) GetItems(_ context.Context, _ string) ([]repository.OrderItem, error) {
	return nil, nil
}

func (s *stubOrderRepo) CommitStatus(_ context.Context, _ string, from, to order.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}
	if s.order.Status != from {
		return order.ErrStatusConflict
	}
	s.order.Status = to
	s.commits = append(s.commits, to)
	return nil
}

func (s *stubOrderRepo) AssignCourier(_ context.Context, _, courierID string) (*repository.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assignErr != nil {
		return nil, s.assignErr
	}
	cp := *s.order
	cp.CourierID = &courierID
	s.order = &cp
	s.assigned = &cp
	ret := cp
	return &ret, nil
}

func (s *stubOrderRepo) ListByCustomer(_ context.Context, _ string) ([]repository.Order, error) {
	return nil, nil
}

func (s *stubOrderRepo) ListByRestaurant(_ context.Context, _ string) ([]repository.Order, error) {
	return nil, nil
}

func (s *stubOrderRepo) ListByCourier(_ context.Context, _ string) ([]repository.Order, error) {
	return nil, nil
}

func (s *stubOrderRepo) ListAll(_ context.Context) ([]repository.Order, error) {
	return nil, nil
}

type stubMenuRepo struct {
	items map[string]*repository.MenuItem
}

func (s *stubMenuRepo) GetByID(_ context.Context, id string) (*repository.MenuItem, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, repository.ErrObjectNotFound
	}
	return item, nil
}

type stubCache struct {
	mu     sync.Mutex
	orders map[string]*repository.Order
}

func newStubCache() *stubCache {
	return &stubCache{orders: make(map[string]*repository.Order)}
}

func (s *stubCache) Get(orderID string) (*repository.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, false
	}
	cp := *o
	return &cp, true
}

func (s *stubCache) Set(o *repository.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.orders[o.ID] = &cp
}

func (s *stubCache) Delete(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, orderID)
}

type published struct {
	room  realtime.Room
	event realtime.Event
}

type stubHub struct {
	mu     sync.Mutex
	events []published
	joins  []string
}

func (s *stubHub) Publish(_ context.Context, room realtime.Room, e realtime.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, published{room: room, event: e})
}

func (s *stubHub) JoinUser(userID string, room realtime.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joins = append(s.joins, userID+":"+string(room))
}

func (s *stubHub) published() []published {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]published(nil), s.events...)
}

type stubAudit struct {
	mu      sync.Mutex
	records [][]byte
}

func (s *stubAudit) Append(_ string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, payload)
}

func (s *stubAudit) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func newTestService(repo *stubOrderRepo, menu *stubMenuRepo) (*Service, *stubCache, *stubHub, *stubAudit) {
	if menu == nil {
		menu = &stubMenuRepo{items: map[string]*repository.MenuItem{}}
	}
	c := newStubCache()
	hub := &stubHub{}
	audit := &stubAudit{}
	return New(repo, menu, c, hub, audit), c, hub, audit
}

func placedOrder() *repository.Order {
	return &repository.Order{
		ID:           "order-1",
		CustomerID:   "customer-1",
		RestaurantID: "restaurant-1",
		Status:       order.StatusPlaced,
	}
}

func TestService_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("restaurant confirms its order", func(t *testing.T) {
		repo := &stubOrderRepo{order: placedOrder()}
		svc, _, hub, audit := newTestService(repo, nil)

		got, err := svc.UpdateStatus(ctx, "order-1", order.StatusConfirmed,
			auth.Identity{UserID: "restaurant-1", Role: order.RoleRestaurant})
		require.NoError(t, err)
		assert.Equal(t, order.StatusConfirmed, got)
		assert.Equal(t, []order.Status{order.StatusConfirmed}, repo.commits)

		events := hub.published()
		require.Len(t, events, 2)
		assert.Equal(t, realtime.OrderRoom("order-1"), events[0].room)
		assert.Equal(t, order.StatusConfirmed, events[0].event.Status)
		assert.Equal(t, realtime.UserRoom("customer-1"), events[1].room)
		assert.Equal(t, 1, audit.count())
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		repo := &stubOrderRepo{order: placedOrder()}
		svc, _, hub, audit := newTestService(repo, nil)

		got, err := svc.UpdateStatus(ctx, "order-1", order.StatusPlaced,
			auth.Identity{UserID: "restaurant-1", Role: order.RoleRestaurant})
		require.NoError(t, err)
		assert.Equal(t, order.StatusPlaced, got)
		assert.Empty(t, repo.commits)
		assert.Empty(t, hub.published())
		assert.Equal(t, 0, audit.count())
	})

	t.Run("stranger is rejected", func(t *testing.T) {
		repo := &stubOrderRepo{order: placedOrder()}
		svc, _, hub, _ := newTestService(repo, nil)

		_, err := svc.UpdateStatus(ctx, "order-1", order.StatusCancelled,
			auth.Identity{UserID: "customer-999", Role: order.RoleCustomer})
		assert.ErrorIs(t, err, ErrForbidden)
		assert.Empty(t, hub.published())
	})

	t.Run("unassigned courier is rejected", func(t *testing.T) {
		o := placedOrder()
		o.Status = order.StatusReadyForPickup
		courier := "courier-1"
		o.CourierID = &courier
		repo := &stubOrderRepo{order: o}
		svc, _, hub, _ := newTestService(repo, nil)

		_, err := svc.UpdateStatus(ctx, "order-1", order.StatusOutForDelivery,
			auth.Identity{UserID: "courier-2", Role: order.RoleCourier})
		assert.ErrorIs(t, err, order.ErrNotAssignedCourier)
		assert.Empty(t, hub.published())
	})

	t.Run("stranger courier cannot probe via the same-status no-op", func(t *testing.T) {
		o := placedOrder()
		o.Status = order.StatusOutForDelivery
		courier := "courier-1"
		o.CourierID = &courier
		repo := &stubOrderRepo{order: o}
		svc, _, hub, _ := newTestService(repo, nil)

		_, err := svc.UpdateStatus(ctx, "order-1", order.StatusOutForDelivery,
			auth.Identity{UserID: "courier-2", Role: order.RoleCourier})
		assert.ErrorIs(t, err, ErrForbidden)
		assert.Empty(t, hub.published())
	})

	t.Run("failed commit publishes nothing", func(t *testing.T) {
		repo := &stubOrderRepo{order: placedOrder(), commitErr: errors.New("database error")}
		svc, _, hub, audit := newTestService(repo, nil)

		_, err := svc.UpdateStatus(ctx, "order-1", order.StatusConfirmed,
			auth.Identity{UserID: "restaurant-1", Role: order.RoleRestaurant})
		assert.Error(t, err)
		assert.Empty(t, hub.published())
		assert.Equal(t, 0, audit.count())
	})

	t.Run("commit conflict invalidates cache", func(t *testing.T) {
		repo := &stubOrderRepo{order: placedOrder(), commitErr: order.ErrStatusConflict}
		svc, c, hub, _ := newTestService(repo, nil)
		c.Set(placedOrder())

		_, err := svc.UpdateStatus(ctx, "order-1", order.StatusConfirmed,
			auth.Identity{UserID: "restaurant-1", Role: order.RoleRestaurant})
		assert.ErrorIs(t, err, order.ErrStatusConflict)
		assert.Empty(t, hub.published())

		_, found := c.Get("order-1")
		assert.False(t, found)
	})

	t.Run("unknown order", func(t *testing.T) {
		repo := &stubOrderRepo{}
		svc, _, _, _ := newTestService(repo, nil)

		_, err := svc.UpdateStatus(ctx, "missing", order.StatusConfirmed,
			auth.Identity{UserID: "admin-1", Role: order.RoleAdmin})
		assert.ErrorIs(t, err, repository.ErrObjectNotFound)
	})
}

func TestService_UpdateStatus_SeesCommitFromOtherInstance(t *testing.T) {
	ctx := context.Background()
	repo := &stubOrderRepo{order: placedOrder()}
	svcA, _, _, _ := newTestService(repo, nil)
	svcB, cacheB, _, _ := newTestService(repo, nil)
	restaurant := auth.Identity{UserID: "restaurant-1", Role: order.RoleRestaurant}

	// Instance B caches the order while it is still placed.
	_, err := svcB.Order(ctx, "order-1")
	require.NoError(t, err)

	// Instance A commits placed -> confirmed.
	_, err = svcA.UpdateStatus(ctx, "order-1", order.StatusConfirmed, restaurant)
	require.NoError(t, err)

	// B's cached copy is behind; the follow-up transition must still pass
	// because validation reads the committed row.
	got, err := svcB.UpdateStatus(ctx, "order-1", order.StatusPreparing, restaurant)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPreparing, got)
	assert.Equal(t, []order.Status{order.StatusConfirmed, order.StatusPreparing}, repo.commits)

	cached, found := cacheB.Get("order-1")
	require.True(t, found)
	assert.Equal(t, order.StatusPreparing, cached.Status)
}

func TestService_UpdateStatus_CourierAssignedOnOtherInstance(t *testing.T) {
	ctx := context.Background()
	o := placedOrder()
	o.Status = order.StatusReadyForPickup
	repo := &stubOrderRepo{order: o}
	svcA, _, _, _ := newTestService(repo, nil)
	svcB, _, _, _ := newTestService(repo, nil)

	// B caches the order before any courier exists.
	_, err := svcB.Order(ctx, "order-1")
	require.NoError(t, err)

	_, err = svcA.AssignCourier(ctx, "order-1", "courier-1",
		auth.Identity{UserID: "restaurant-1", Role: order.RoleRestaurant})
	require.NoError(t, err)

	// The courier's pickup lands on B and must see the assignment.
	got, err := svcB.UpdateStatus(ctx, "order-1", order.StatusOutForDelivery,
		auth.Identity{UserID: "courier-1", Role: order.RoleCourier})
	require.NoError(t, err)
	assert.Equal(t, order.StatusOutForDelivery, got)
}

func TestService_UpdateStatus_ConcurrentSameOrder(t *testing.T) {
	ctx := context.Background()
	repo := &stubOrderRepo{order: placedOrder()}
	svc, _, _, _ := newTestService(repo, nil)
	actor := auth.Identity{UserID: "restaurant-1", Role: order.RoleRestaurant}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.UpdateStatus(ctx, "order-1", order.StatusConfirmed, actor)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// The first request commits, the rest observe confirmed and no-op.
	assert.Equal(t, []order.Status{order.StatusConfirmed}, repo.commits)
	assert.Equal(t, order.StatusConfirmed, repo.order.Status)
}

func TestService_CreateOrder(t *testing.T) {
	ctx := context.Background()
	menu := &stubMenuRepo{items: map[string]*repository.MenuItem{
		"item-1": {ID: "item-1", RestaurantID: "restaurant-1", PriceCents: 1200, Available: true},
		"item-2": {ID: "item-2", RestaurantID: "restaurant-1", PriceCents: 450, Available: true},
		"item-x": {ID: "item-x", RestaurantID: "restaurant-2", PriceCents: 100, Available: true},
	}}

	t.Run("prices items and notifies the restaurant", func(t *testing.T) {
		repo := &stubOrderRepo{}
		svc, _, hub, audit := newTestService(repo, menu)

		o, err := svc.CreateOrder(ctx, "customer-1", "restaurant-1", []ItemInput{
			{MenuItemID: "item-1", Quantity: 2},
			{MenuItemID: "item-2", Quantity: 1},
		})
		require.NoError(t, err)
		assert.Equal(t, order.StatusPlaced, o.Status)
		assert.Equal(t, int64(2850), o.TotalCents)
		require.NotNil(t, repo.created)

		events := hub.published()
		require.Len(t, events, 1)
		assert.Equal(t, realtime.UserRoom("restaurant-1"), events[0].room)
		assert.Equal(t, 1, audit.count())
	})

	t.Run("no items", func(t *testing.T) {
		svc, _, _, _ := newTestService(&stubOrderRepo{}, menu)

		_, err := svc.CreateOrder(ctx, "customer-1", "restaurant-1", nil)
		assert.ErrorIs(t, err, ErrEmptyOrder)
	})

	t.Run("item from another restaurant", func(t *testing.T) {
		svc, _, hub, _ := newTestService(&stubOrderRepo{}, menu)

		_, err := svc.CreateOrder(ctx, "customer-1", "restaurant-1", []ItemInput{
			{MenuItemID: "item-x", Quantity: 1},
		})
		assert.ErrorIs(t, err, repository.ErrObjectNotFound)
		assert.Empty(t, hub.published())
	})
}

func TestService_AssignCourier(t *testing.T) {
	ctx := context.Background()

	t.Run("restaurant assigns and the courier joins the room", func(t *testing.T) {
		repo := &stubOrderRepo{order: placedOrder()}
		svc, _, hub, _ := newTestService(repo, nil)

		o, err := svc.AssignCourier(ctx, "order-1", "courier-1",
			auth.Identity{UserID: "restaurant-1", Role: order.RoleRestaurant})
		require.NoError(t, err)
		assert.Equal(t, "courier-1", o.AssignedCourier())

		hub.mu.Lock()
		joins := append([]string(nil), hub.joins...)
		hub.mu.Unlock()
		assert.Equal(t, []string{"courier-1:order:order-1"}, joins)

		events := hub.published()
		require.Len(t, events, 2)
		assert.Equal(t, realtime.EventCourierAssigned, events[0].event.Type)
		assert.Equal(t, realtime.OrderRoom("order-1"), events[0].room)
		assert.Equal(t, realtime.UserRoom("courier-1"), events[1].room)
	})

	t.Run("foreign restaurant is rejected", func(t *testing.T) {
		repo := &stubOrderRepo{order: placedOrder()}
		svc, _, _, _ := newTestService(repo, nil)

		_, err := svc.AssignCourier(ctx, "order-1", "courier-1",
			auth.Identity{UserID: "restaurant-999", Role: order.RoleRestaurant})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("customer cannot assign", func(t *testing.T) {
		repo := &stubOrderRepo{order: placedOrder()}
		svc, _, _, _ := newTestService(repo, nil)

		_, err := svc.AssignCourier(ctx, "order-1", "courier-1",
			auth.Identity{UserID: "customer-1", Role: order.RoleCustomer})
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestService_PublishLocation(t *testing.T) {
	ctx := context.Background()
	courier := "courier-1"

	t.Run("assigned courier broadcasts position", func(t *testing.T) {
		o := placedOrder()
		o.Status = order.StatusOutForDelivery
		o.CourierID = &courier
		repo := &stubOrderRepo{order: o}
		svc, _, hub, _ := newTestService(repo, nil)

		err := svc.PublishLocation(ctx, "order-1",
			auth.Identity{UserID: "courier-1", Role: order.RoleCourier}, 55.75, 37.61)
		require.NoError(t, err)

		events := hub.published()
		require.Len(t, events, 1)
		assert.Equal(t, realtime.EventLocationChanged, events[0].event.Type)
		assert.Equal(t, 55.75, events[0].event.Lat)
		assert.Equal(t, 37.61, events[0].event.Lng)
	})

	t.Run("other courier is rejected", func(t *testing.T) {
		o := placedOrder()
		o.CourierID = &courier
		repo := &stubOrderRepo{order: o}
		svc, _, hub, _ := newTestService(repo, nil)

		err := svc.PublishLocation(ctx, "order-1",
			auth.Identity{UserID: "courier-2", Role: order.RoleCourier}, 55.75, 37.61)
		assert.ErrorIs(t, err, order.ErrNotAssignedCourier)
		assert.Empty(t, hub.published())
	})

	t.Run("delivered order accepts no positions", func(t *testing.T) {
		o := placedOrder()
		o.Status = order.StatusDelivered
		o.CourierID = &courier
		repo := &stubOrderRepo{order: o}
		svc, _, hub, _ := newTestService(repo, nil)

		err := svc.PublishLocation(ctx, "order-1",
			auth.Identity{UserID: "courier-1", Role: order.RoleCourier}, 55.75, 37.61)
		assert.ErrorIs(t, err, order.ErrIllegalTransition)
		assert.Empty(t, hub.published())
	})
}
