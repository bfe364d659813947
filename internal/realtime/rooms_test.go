package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/auth"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/order"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/repository"
)

func TestRoomNames(t *testing.T) {
	assert.Equal(t, Room("order:order-1"), OrderRoom("order-1"))
	assert.Equal(t, Room("user:user-1"), UserRoom("user-1"))
}

func TestIsParty(t *testing.T) {
	courierID := "courier-1"
	o := &repository.Order{
		ID:           "order-1",
		CustomerID:   "customer-1",
		RestaurantID: "restaurant-1",
		CourierID:    &courierID,
	}
	unassigned := &repository.Order{
		ID:           "order-2",
		CustomerID:   "customer-1",
		RestaurantID: "restaurant-1",
	}

	tests := []struct {
		name string
		id   auth.Identity
		o    *repository.Order
		want bool
	}{
		{"own customer", auth.Identity{UserID: "customer-1", Role: order.RoleCustomer}, o, true},
		{"other customer", auth.Identity{UserID: "customer-2", Role: order.RoleCustomer}, o, false},
		{"own restaurant", auth.Identity{UserID: "restaurant-1", Role: order.RoleRestaurant}, o, true},
		{"other restaurant", auth.Identity{UserID: "restaurant-2", Role: order.RoleRestaurant}, o, false},
		{"assigned courier", auth.Identity{UserID: "courier-1", Role: order.RoleCourier}, o, true},
		{"other courier", auth.Identity{UserID: "courier-2", Role: order.RoleCourier}, o, false},
		{"courier before assignment", auth.Identity{UserID: "courier-1", Role: order.RoleCourier}, unassigned, false},
		{"admin always", auth.Identity{UserID: "admin-1", Role: order.RoleAdmin}, o, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsParty(tc.id, tc.o))
		})
	}
}

func TestRoomsFor(t *testing.T) {
	o := &repository.Order{ID: "order-1", CustomerID: "customer-1", RestaurantID: "restaurant-1"}

	rooms := RoomsFor(auth.Identity{UserID: "customer-1", Role: order.RoleCustomer}, o)
	assert.Equal(t, []Room{UserRoom("customer-1"), OrderRoom("order-1")}, rooms)

	rooms = RoomsFor(auth.Identity{UserID: "customer-2", Role: order.RoleCustomer}, o)
	assert.Equal(t, []Room{UserRoom("customer-2")}, rooms)

	rooms = RoomsFor(auth.Identity{UserID: "customer-2", Role: order.RoleCustomer}, nil)
	assert.Equal(t, []Room{UserRoom("customer-2")}, rooms)
}
