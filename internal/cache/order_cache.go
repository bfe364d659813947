package cache

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/repository"
)

type OrderRepository interface {
	GetAllActive(ctx context.Context) ([]*repository.Order, error)
}

// OrderCache keeps open orders in memory so the realtime path can resolve
// an order without hitting the database on every event. Orders leave the
// cache when they reach a terminal status.
type OrderCache struct {
	mu    sync.RWMutex
	cache map[string]*repository.Order
	repo  OrderRepository
}

func NewOrderCache(repo OrderRepository) *OrderCache {
	return &OrderCache{
		cache: make(map[string]*repository.Order),
		repo:  repo,
	}
}

// LoadInitialData warms the cache with every non-terminal order.
func (c *OrderCache) LoadInitialData(ctx context.Context) error {
	orders, err := c.repo.GetAllActive(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, o := range orders {
		orderCopy := *o
		c.cache[o.ID] = &orderCopy
	}
	metrics.OrderCacheItems.Set(float64(len(c.cache)))
	zap.L().Info("order cache warmed", zap.Int("orders", len(c.cache)))
	return nil
}

func (c *OrderCache) Get(orderID string) (*repository.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, found := c.cache[orderID]
	if !found {
		return nil, false
	}
	orderCopy := *o
	return &orderCopy, true
}

// Set stores a copy of the order. Terminal orders are evicted instead.
func (c *OrderCache) Set(o *repository.Order) {
	if o.Status.Terminal() {
		c.Delete(o.ID)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	orderCopy := *o
	c.cache[o.ID] = &orderCopy
	metrics.OrderCacheItems.Set(float64(len(c.cache)))
}

func (c *OrderCache) Delete(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, found := c.cache[orderID]; found {
		delete(c.cache, orderID)
		metrics.OrderCacheItems.Set(float64(len(c.cache)))
	}
}

func (c *OrderCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
