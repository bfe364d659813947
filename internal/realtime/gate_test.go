package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/auth"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/order"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/repository"
)

type gateSessions struct{ active bool }

func (s *gateSessions) IsTokenActive(context.Context, string, string) (bool, error) {
	return s.active, nil
}

type stubOrders struct {
	order *repository.Order
	err   error
}

func (s *stubOrders) Order(context.Context, string) (*repository.Order, error) {
	return s.order, s.err
}

func (s *stubOrders) UpdateStatus(_ context.Context, _ string, requested order.Status, _ auth.Identity) (order.Status, error) {
	return requested, nil
}

func (s *stubOrders) PublishLocation(context.Context, string, auth.Identity, float64, float64) error {
	return nil
}

func newGateServer(t *testing.T, sessions auth.SessionStore, orders OrderActions) (*httptest.Server, *Hub, *auth.Verifier) {
	t.Helper()
	verifier := auth.NewVerifier("gate-secret", sessions, time.Second)
	hub := NewHub(nil, 16)
	gate := NewGate(verifier, hub, orders)
	srv := httptest.NewServer(gate)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Shutdown)
	return srv, hub, verifier
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestGateRejectsMissingToken(t *testing.T) {
	srv, _, _ := newGateServer(t, &gateSessions{active: true}, &stubOrders{})

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGateRejectsInvalidToken(t *testing.T) {
	srv, _, _ := newGateServer(t, &gateSessions{active: true}, &stubOrders{})

	//nolint:bodyclose // Dial returns a closed response on handshake failure
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGateRejectsRevokedToken(t *testing.T) {
	srv, _, verifier := newGateServer(t, &gateSessions{active: false}, &stubOrders{})

	token, err := verifier.Sign(auth.Identity{UserID: "customer-1", Role: order.RoleCustomer}, time.Hour)
	require.NoError(t, err)

	header := http.Header{"Authorization": []string{"Bearer " + token}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func readEvent(t *testing.T, ws *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var e Event
	require.NoError(t, json.Unmarshal(data, &e))
	return e
}

func TestGateAdmitsAndDeliversOrderEvents(t *testing.T) {
	o := &repository.Order{ID: "order-1", CustomerID: "customer-1", RestaurantID: "restaurant-1"}
	srv, hub, verifier := newGateServer(t, &gateSessions{active: true}, &stubOrders{order: o})

	token, err := verifier.Sign(auth.Identity{UserID: "customer-1", Role: order.RoleCustomer}, time.Hour)
	require.NoError(t, err)

	ws, resp, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token="+token, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(Command{Action: ActionSubscribe, OrderID: "order-1"}))

	// The read loop applies the subscription asynchronously; keep publishing
	// until the first delivery lands.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				hub.Publish(context.Background(), OrderRoom("order-1"), NewStatusChanged("order-1", order.StatusConfirmed, order.RoleRestaurant))
			}
		}
	}()

	got := readEvent(t, ws)
	assert.Equal(t, EventStatusChanged, got.Type)
	assert.Equal(t, order.StatusConfirmed, got.Status)
}

func TestGateRefusesForeignOrderSubscription(t *testing.T) {
	o := &repository.Order{ID: "order-1", CustomerID: "customer-1", RestaurantID: "restaurant-1"}
	srv, _, verifier := newGateServer(t, &gateSessions{active: true}, &stubOrders{order: o})

	token, err := verifier.Sign(auth.Identity{UserID: "customer-2", Role: order.RoleCustomer}, time.Hour)
	require.NoError(t, err)

	ws, resp, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token="+token, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(Command{Action: ActionSubscribe, OrderID: "order-1"}))

	e := readEvent(t, ws)
	assert.Equal(t, EventError, e.Type)
	assert.Equal(t, "not a party to this order", e.Message)
}
