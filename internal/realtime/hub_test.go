package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/auth"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/order"
)

type recordingBridge struct {
	rooms    []Room
	payloads [][]byte
	err      error
}

func (b *recordingBridge) Publish(_ context.Context, room Room, payload []byte) error {
	b.rooms = append(b.rooms, room)
	b.payloads = append(b.payloads, payload)
	return b.err
}

func testConn(h *Hub, userID string, role order.Role) *Conn {
	c := newConn(auth.Identity{UserID: userID, Role: role}, nil, h.sendBuf)
	h.Register(c)
	return c
}

func drain(c *Conn) []Event {
	var events []Event
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return events
			}
			var e Event
			if err := json.Unmarshal(payload, &e); err == nil {
				events = append(events, e)
			}
		default:
			return events
		}
	}
}

func TestPublishDeliversToRoomMembersOnly(t *testing.T) {
	h := NewHub(nil, 16)

	customer := testConn(h, "customer-1", order.RoleCustomer)
	courier := testConn(h, "courier-1", order.RoleCourier)
	bystander := testConn(h, "customer-2", order.RoleCustomer)

	room := OrderRoom("order-1")
	h.Subscribe(customer, room)
	h.Subscribe(courier, room)

	h.Publish(context.Background(), room, NewStatusChanged("order-1", order.StatusOutForDelivery, order.RoleCourier))

	for _, c := range []*Conn{customer, courier} {
		events := drain(c)
		require.Len(t, events, 1)
		assert.Equal(t, EventStatusChanged, events[0].Type)
		assert.Equal(t, "order-1", events[0].OrderID)
		assert.Equal(t, order.StatusOutForDelivery, events[0].Status)
	}

	assert.Empty(t, drain(bystander))
}

func TestPublishPreservesOrderPerRoom(t *testing.T) {
	h := NewHub(nil, 16)

	c := testConn(h, "customer-1", order.RoleCustomer)
	room := OrderRoom("order-1")
	h.Subscribe(c, room)

	want := []order.Status{
		order.StatusConfirmed,
		order.StatusPreparing,
		order.StatusReadyForPickup,
	}
	for _, s := range want {
		h.Publish(context.Background(), room, NewStatusChanged("order-1", s, order.RoleRestaurant))
	}

	events := drain(c)
	require.Len(t, events, len(want))
	for i, s := range want {
		assert.Equal(t, s, events[i].Status)
	}
}

func TestPublishForwardsToBridge(t *testing.T) {
	bridge := &recordingBridge{}
	h := NewHub(bridge, 16)

	room := OrderRoom("order-1")
	h.Publish(context.Background(), room, NewCourierAssigned("order-1", "courier-1"))

	require.Len(t, bridge.rooms, 1)
	assert.Equal(t, room, bridge.rooms[0])

	var e Event
	require.NoError(t, json.Unmarshal(bridge.payloads[0], &e))
	assert.Equal(t, EventCourierAssigned, e.Type)
	assert.Equal(t, "courier-1", e.CourierID)
}

func TestBridgeInboundDelivery(t *testing.T) {
	h := NewHub(nil, 16)

	c := testConn(h, "customer-1", order.RoleCustomer)
	room := OrderRoom("order-1")
	h.Subscribe(c, room)

	// An event published on another instance arrives pre-serialized.
	payload, err := NewStatusChanged("order-1", order.StatusDelivered, order.RoleCourier).Marshal()
	require.NoError(t, err)
	h.DeliverLocal(room, payload)

	events := drain(c)
	require.Len(t, events, 1)
	assert.Equal(t, order.StatusDelivered, events[0].Status)
}

func TestOverflowDisconnects(t *testing.T) {
	h := NewHub(nil, 2)

	slow := testConn(h, "customer-1", order.RoleCustomer)
	healthy := testConn(h, "customer-2", order.RoleCustomer)

	room := OrderRoom("order-1")
	h.Subscribe(slow, room)

	// Fill the buffer and push one past it; nobody drains slow's buffer.
	for i := 0; i < 3; i++ {
		h.Publish(context.Background(), room, NewLocationChanged("order-1", 55.75, 37.61))
	}

	assert.False(t, h.InRoom(slow, room), "overflowed connection must be evicted")

	// The healthy connection is unaffected and the room keeps working.
	h.Subscribe(healthy, room)
	h.Publish(context.Background(), room, NewStatusChanged("order-1", order.StatusDelivered, order.RoleCourier))
	require.Len(t, drain(healthy), 1)
}

func TestUnregisterLeavesAllRooms(t *testing.T) {
	h := NewHub(nil, 16)

	c := testConn(h, "courier-1", order.RoleCourier)
	h.Subscribe(c, OrderRoom("order-1"))
	h.Subscribe(c, OrderRoom("order-2"))

	h.Unregister(c)
	h.Unregister(c) // idempotent

	assert.False(t, h.InRoom(c, OrderRoom("order-1")))
	assert.False(t, h.InRoom(c, OrderRoom("order-2")))

	// Publishing after unregister must not panic or deliver.
	h.Publish(context.Background(), OrderRoom("order-1"), NewStatusChanged("order-1", order.StatusDelivered, order.RoleCourier))
}

func TestJoinUserMidFlight(t *testing.T) {
	h := NewHub(nil, 16)

	courier := testConn(h, "courier-1", order.RoleCourier)
	room := OrderRoom("order-1")

	// Courier is online but not yet assigned, so not in the order room.
	h.Publish(context.Background(), room, NewStatusChanged("order-1", order.StatusReadyForPickup, order.RoleRestaurant))
	assert.Empty(t, drain(courier))

	// Assignment joins the live connection without a reconnect.
	h.JoinUser("courier-1", room)
	assert.True(t, h.InRoom(courier, room))

	h.Publish(context.Background(), room, NewCourierAssigned("order-1", "courier-1"))
	events := drain(courier)
	require.Len(t, events, 1)
	assert.Equal(t, EventCourierAssigned, events[0].Type)
}

func TestJoinUserWithoutConnections(t *testing.T) {
	h := NewHub(nil, 16)
	// Offline courier: nothing to join, nothing to panic about.
	h.JoinUser("courier-9", OrderRoom("order-1"))
}

func TestSendToSingleConnection(t *testing.T) {
	h := NewHub(nil, 16)

	a := testConn(h, "customer-1", order.RoleCustomer)
	b := testConn(h, "customer-2", order.RoleCustomer)

	h.SendTo(a, NewError("not a party to this order"))

	events := drain(a)
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Empty(t, drain(b))
}
