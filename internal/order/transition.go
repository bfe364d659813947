package order

import "errors"

var (
	// ErrIllegalTransition is returned for any (from, to) pair outside the
	// legal edge table, or when the actor's role is not allowed on that edge.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrNotAssignedCourier is returned when a courier-only edge is requested
	// by a courier who is not the one assigned to the order.
	ErrNotAssignedCourier = errors.New("courier is not assigned to this order")

	// ErrStatusConflict is returned by the commit layer when a concurrent
	// transition won the race. The caller must re-read and retry.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// Actor is the identity requesting a transition.
type Actor struct {
	UserID string
	Role   Role
}

type edge struct {
	from, to Status
}

// rule validates the acting party for one edge. courierID is the order's
// currently assigned courier, empty if none.
type rule func(actor Actor, courierID string) error

func roleIn(roles ...Role) rule {
	return func(actor Actor, _ string) error {
		for _, r := range roles {
			if actor.Role == r {
				return nil
			}
		}
		return ErrIllegalTransition
	}
}

// assignedCourier requires the actor to be the courier assigned to the order.
func assignedCourier(actor Actor, courierID string) error {
	if actor.Role != RoleCourier {
		return ErrIllegalTransition
	}
	if courierID == "" || actor.UserID != courierID {
		return ErrNotAssignedCourier
	}
	return nil
}

// cancelRule implements the cancellation row of the table: admin and
// restaurant may cancel from any non-terminal state, a customer only while
// the order is still placed or confirmed.
func cancelRule(from Status) rule {
	return func(actor Actor, _ string) error {
		switch actor.Role {
		case RoleAdmin, RoleRestaurant:
			return nil
		case RoleCustomer:
			if from == StatusPlaced || from == StatusConfirmed {
				return nil
			}
		}
		return ErrIllegalTransition
	}
}

var transitions = map[edge]rule{
	{StatusPlaced, StatusConfirmed}:              roleIn(RoleRestaurant, RoleAdmin),
	{StatusConfirmed, StatusPreparing}:           roleIn(RoleRestaurant, RoleAdmin),
	{StatusPreparing, StatusReadyForPickup}:      roleIn(RoleRestaurant),
	{StatusReadyForPickup, StatusOutForDelivery}: assignedCourier,
	{StatusOutForDelivery, StatusDelivered}:      assignedCourier,
}

func init() {
	for _, s := range Statuses {
		if s.Terminal() {
			continue
		}
		transitions[edge{s, StatusCancelled}] = cancelRule(s)
	}
}

// Transition validates a requested status change and returns the status the
// caller should commit. It is pure: it never persists anything and never
// publishes anything. Re-requesting the current status is a no-op success so
// that client retries stay harmless.
func Transition(current Status, courierID string, requested Status, actor Actor) (Status, error) {
	if !requested.Valid() {
		return current, ErrIllegalTransition
	}
	if requested == current {
		return current, nil
	}
	r, ok := transitions[edge{current, requested}]
	if !ok {
		return current, ErrIllegalTransition
	}
	if err := r(actor, courierID); err != nil {
		return current, err
	}
	return requested, nil
}
