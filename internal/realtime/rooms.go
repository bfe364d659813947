package realtime

import (
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/auth"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/order"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/repository"
)

// Room is a logical broadcast group. Rooms are derived from order and
// identity relations and never persisted.
type Room string

// PresenceRoom receives connect/disconnect lifecycle events. Restaurant and
// admin connections are joined to it on admission.
const PresenceRoom Room = "presence"

func OrderRoom(orderID string) Room {
	return Room("order:" + orderID)
}

func UserRoom(userID string) Room {
	return Room("user:" + userID)
}

// IsParty reports whether the identity is one of the parties entitled to the
// order's events: its customer, its restaurant, its assigned courier, or an
// admin.
func IsParty(id auth.Identity, o *repository.Order) bool {
	switch id.Role {
	case order.RoleAdmin:
		return true
	case order.RoleCustomer:
		return id.UserID == o.CustomerID
	case order.RoleRestaurant:
		return id.UserID == o.RestaurantID
	case order.RoleCourier:
		return o.CourierID != nil && id.UserID == *o.CourierID
	}
	return false
}

// RoomsFor computes the rooms a connection should be in for one order: its
// private user room always, the order room when it is a party.
func RoomsFor(id auth.Identity, o *repository.Order) []Room {
	rooms := []Room{UserRoom(id.UserID)}
	if o != nil && IsParty(id, o) {
		rooms = append(rooms, OrderRoom(o.ID))
	}
	return rooms
}
