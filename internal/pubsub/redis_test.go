package pubsub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/order"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/realtime"
)

type recordingDeliverer struct {
	rooms    []realtime.Room
	payloads [][]byte
}

func (d *recordingDeliverer) DeliverLocal(room realtime.Room, payload []byte) {
	d.rooms = append(d.rooms, room)
	d.payloads = append(d.payloads, payload)
}

func TestHandleMessageDeliversForeignEvents(t *testing.T) {
	local := &recordingDeliverer{}
	b := &RedisBridge{local: local, origin: "instance-a"}

	data, err := json.Marshal(envelope{Origin: "instance-b", Payload: []byte(`{"type":"statusChanged"}`)})
	require.NoError(t, err)

	b.handleMessage("order:order-1", data)

	require.Len(t, local.rooms, 1)
	assert.Equal(t, realtime.Room("order:order-1"), local.rooms[0])
	assert.JSONEq(t, `{"type":"statusChanged"}`, string(local.payloads[0]))
}

func TestHandleMessageSkipsOwnEcho(t *testing.T) {
	local := &recordingDeliverer{}
	b := &RedisBridge{local: local, origin: "instance-a"}

	data, err := json.Marshal(envelope{Origin: "instance-a", Payload: []byte(`{"type":"statusChanged"}`)})
	require.NoError(t, err)

	b.handleMessage("order:order-1", data)

	assert.Empty(t, local.rooms)
}

func TestHandleMessageDropsMalformedPayload(t *testing.T) {
	local := &recordingDeliverer{}
	b := &RedisBridge{local: local, origin: "instance-a"}

	b.handleMessage("order:order-1", []byte("{not json"))

	assert.Empty(t, local.rooms)
}

type recordingInvalidator struct {
	deleted []string
}

func (i *recordingInvalidator) Delete(orderID string) {
	i.deleted = append(i.deleted, orderID)
}

func foreignEnvelope(t *testing.T, e realtime.Event) []byte {
	t.Helper()
	payload, err := e.Marshal()
	require.NoError(t, err)
	data, err := json.Marshal(envelope{Origin: "instance-b", Payload: payload})
	require.NoError(t, err)
	return data
}

func TestHandleMessageInvalidatesChangedOrders(t *testing.T) {
	inv := &recordingInvalidator{}
	b := &RedisBridge{local: &recordingDeliverer{}, cache: inv, origin: "instance-a"}

	b.handleMessage("order:order-1",
		foreignEnvelope(t, realtime.NewStatusChanged("order-1", order.StatusConfirmed, order.RoleRestaurant)))
	b.handleMessage("order:order-2",
		foreignEnvelope(t, realtime.NewCourierAssigned("order-2", "courier-1")))

	assert.Equal(t, []string{"order-1", "order-2"}, inv.deleted)
}

func TestHandleMessageKeepsCacheForOtherEvents(t *testing.T) {
	inv := &recordingInvalidator{}
	b := &RedisBridge{local: &recordingDeliverer{}, cache: inv, origin: "instance-a"}

	b.handleMessage("order:order-1",
		foreignEnvelope(t, realtime.NewLocationChanged("order-1", 55.75, 37.61)))
	b.handleMessage(string(realtime.PresenceRoom),
		foreignEnvelope(t, realtime.NewPresence("courier-1", order.RoleCourier, true)))

	assert.Empty(t, inv.deleted)
}

func TestHandleMessageOwnEchoDoesNotInvalidate(t *testing.T) {
	inv := &recordingInvalidator{}
	b := &RedisBridge{local: &recordingDeliverer{}, cache: inv, origin: "instance-a"}

	payload, err := realtime.NewStatusChanged("order-1", order.StatusConfirmed, order.RoleRestaurant).Marshal()
	require.NoError(t, err)
	data, err := json.Marshal(envelope{Origin: "instance-a", Payload: payload})
	require.NoError(t, err)

	b.handleMessage("order:order-1", data)

	assert.Empty(t, inv.deleted)
}
