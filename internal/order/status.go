package order

// Status is the lifecycle state of an order. Forward movement only,
// except for the terminal cancelled state.
type Status string

const (
	StatusPlaced         Status = "placed"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusReadyForPickup Status = "ready_for_pickup"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []Status{
	StatusPlaced,
	StatusConfirmed,
	StatusPreparing,
	StatusReadyForPickup,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCancelled,
}

func (s Status) Valid() bool {
	switch s {
	case StatusPlaced, StatusConfirmed, StatusPreparing, StatusReadyForPickup,
		StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Role identifies which kind of party is acting on an order.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleCourier    Role = "courier"
	RoleRestaurant Role = "restaurant"
	RoleAdmin      Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleCourier, RoleRestaurant, RoleAdmin:
		return true
	}
	return false
}
