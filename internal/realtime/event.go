package realtime

import (
	"encoding/json"
	"time"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/order"
)

type EventType string

const (
	EventStatusChanged   EventType = "statusChanged"
	EventLocationChanged EventType = "locationChanged"
	EventCourierAssigned EventType = "courierAssigned"
	EventPresence        EventType = "presence"
	EventError           EventType = "error"
)

// Event is the outbound wire message. One flat struct covers every type;
// constructors below set the fields relevant to each.
type Event struct {
	Type      EventType    `json:"type"`
	OrderID   string       `json:"orderId,omitempty"`
	Status    order.Status `json:"status,omitempty"`
	ActorRole order.Role   `json:"actorRole,omitempty"`
	CourierID string       `json:"courierId,omitempty"`
	UserID    string       `json:"userId,omitempty"`
	Role      order.Role   `json:"role,omitempty"`
	Online    *bool        `json:"online,omitempty"`
	Lat       float64      `json:"lat,omitempty"`
	Lng       float64      `json:"lng,omitempty"`
	Timestamp int64        `json:"timestamp,omitempty"`
	Message   string       `json:"message,omitempty"`
}

func NewStatusChanged(orderID string, status order.Status, actorRole order.Role) Event {
	return Event{
		Type:      EventStatusChanged,
		OrderID:   orderID,
		Status:    status,
		ActorRole: actorRole,
		Timestamp: time.Now().UTC().Unix(),
	}
}

func NewLocationChanged(orderID string, lat, lng float64) Event {
	return Event{
		Type:      EventLocationChanged,
		OrderID:   orderID,
		Lat:       lat,
		Lng:       lng,
		Timestamp: time.Now().UTC().Unix(),
	}
}

func NewCourierAssigned(orderID, courierID string) Event {
	return Event{
		Type:      EventCourierAssigned,
		OrderID:   orderID,
		CourierID: courierID,
		Timestamp: time.Now().UTC().Unix(),
	}
}

func NewPresence(userID string, role order.Role, online bool) Event {
	return Event{
		Type:      EventPresence,
		UserID:    userID,
		Role:      role,
		Online:    &online,
		Timestamp: time.Now().UTC().Unix(),
	}
}

func NewError(message string) Event {
	return Event{Type: EventError, Message: message}
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Command is the inbound wire message from a connected client.
type Command struct {
	Action  string       `json:"action"`
	OrderID string       `json:"orderId"`
	Status  order.Status `json:"status,omitempty"`
	Lat     float64      `json:"lat,omitempty"`
	Lng     float64      `json:"lng,omitempty"`
}

const (
	ActionSubscribe      = "subscribe"
	ActionUpdateStatus   = "updateStatus"
	ActionLocationUpdate = "locationUpdate"
)
