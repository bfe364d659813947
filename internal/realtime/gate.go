package realtime

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/auth"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/order"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/repository"
)

// OrderActions is what the gate needs from the order lifecycle layer to
// authorize subscriptions and execute privileged realtime commands.
type OrderActions interface {
	Order(ctx context.Context, id string) (*repository.Order, error)
	UpdateStatus(ctx context.Context, orderID string, requested order.Status, actor auth.Identity) (order.Status, error)
	PublishLocation(ctx context.Context, orderID string, actor auth.Identity, lat, lng float64) error
}

// Gate authenticates every inbound realtime connection before it can send or
// receive a single event. A failed check rejects the handshake outright; no
// partial admission exists.
type Gate struct {
	verifier *auth.Verifier
	hub      *Hub
	orders   OrderActions
	upgrader websocket.Upgrader
}

func NewGate(verifier *auth.Verifier, hub *Hub, orders OrderActions) *Gate {
	return &Gate{
		verifier: verifier,
		hub:      hub,
		orders:   orders,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func tokenFromRequest(r *http.Request) string {
	if token := auth.TokenFromHeader(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenMissing):
		return "missing"
	case errors.Is(err, auth.ErrTokenInvalid):
		return "invalid"
	case errors.Is(err, auth.ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, auth.ErrVerifyTimeout):
		return "timeout"
	}
	return "other"
}

func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := g.verifier.Verify(r.Context(), tokenFromRequest(r))
	if err != nil {
		metrics.ConnectionsRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("realtime: upgrade failed for user %s: %v", identity.UserID, err)
		return
	}

	c := g.hub.NewConn(identity, ws)
	g.hub.Register(c)
	g.hub.Subscribe(c, UserRoom(identity.UserID))
	if identity.Role == order.RoleRestaurant || identity.Role == order.RoleAdmin {
		g.hub.Subscribe(c, PresenceRoom)
	}
	g.hub.Publish(r.Context(), PresenceRoom, NewPresence(identity.UserID, identity.Role, true))

	go c.WriteLoop()
	c.ReadLoop(g.handle)

	g.hub.Unregister(c)
	g.hub.Publish(context.Background(), PresenceRoom, NewPresence(identity.UserID, identity.Role, false))
}

func (g *Gate) handle(c *Conn, cmd Command) {
	ctx := context.Background()
	identity := c.Identity()

	switch cmd.Action {
	case ActionSubscribe:
		o, err := g.orders.Order(ctx, cmd.OrderID)
		if err != nil {
			g.hub.SendTo(c, NewError("order not found"))
			return
		}
		if !IsParty(identity, o) {
			g.hub.SendTo(c, NewError("not a party to this order"))
			return
		}
		g.hub.Subscribe(c, OrderRoom(o.ID))

	case ActionUpdateStatus:
		if _, err := g.orders.UpdateStatus(ctx, cmd.OrderID, cmd.Status, identity); err != nil {
			g.hub.SendTo(c, NewError(err.Error()))
		}

	case ActionLocationUpdate:
		if err := g.orders.PublishLocation(ctx, cmd.OrderID, identity, cmd.Lat, cmd.Lng); err != nil {
			g.hub.SendTo(c, NewError(err.Error()))
		}

	default:
		g.hub.SendTo(c, NewError("unknown action"))
	}
}
