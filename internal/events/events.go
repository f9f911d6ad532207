package events

import (
	"encoding/json"
	"sync"
	"time"

	"campspots/internal/models"
)

const (
	EventReservationCreated   = "reservation_created"
	EventReservationConfirmed = "reservation_confirmed"
	EventReservationCancelled = "reservation_cancelled"
	EventReservationExpired   = "reservation_expired"
)

// AllReservationEvents lists every event type the lifecycle emits.
var AllReservationEvents = []string{
	EventReservationCreated,
	EventReservationConfirmed,
	EventReservationCancelled,
	EventReservationExpired,
}

// ReservationEventPayload is the reservation snapshot handed to event consumers.
type ReservationEventPayload struct {
	ReservationID    int64        `json:"reservation_id"`
	ConfirmationCode string       `json:"confirmation_code"`
	SiteID           int64        `json:"site_id"`
	SiteNumber       string       `json:"site_number,omitempty"`
	CampgroundName   string       `json:"campground_name,omitempty"`
	CustomerName     string       `json:"customer_name"`
	CustomerEmail    string       `json:"customer_email"`
	ArrivalDate      string       `json:"arrival_date"`
	DepartureDate    string       `json:"departure_date"`
	Nights           int          `json:"nights"`
	TotalAmountCents models.Cents `json:"total_amount_cents"`
	Currency         string       `json:"currency"`
	Status           string       `json:"status"`
	PaymentStatus    string       `json:"payment_status"`
	Reason           string       `json:"reason,omitempty"`
}

// NewReservationPayload snapshots r. Names are optional labels for humans.
func NewReservationPayload(r *models.Reservation, campgroundName, siteNumber string) ReservationEventPayload {
	return ReservationEventPayload{
		ReservationID:    r.ID,
		ConfirmationCode: r.ConfirmationCode(),
		SiteID:           r.SiteID,
		SiteNumber:       siteNumber,
		CampgroundName:   campgroundName,
		CustomerName:     r.CustomerName,
		CustomerEmail:    r.CustomerEmail,
		ArrivalDate:      models.FormatDate(r.ArrivalDate),
		DepartureDate:    models.FormatDate(r.DepartureDate),
		Nights:           r.Nights,
		TotalAmountCents: r.TotalAmount,
		Currency:         r.Currency,
		Status:           r.Status,
		PaymentStatus:    r.PaymentStatus,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	onError     func(event *Event, err error)
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError installs a callback for handler failures. Failures never reach the publisher.
func (b *EventBus) OnError(fn func(event *Event, err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers handler for every reservation event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, eventType := range AllReservationEvents {
		b.Subscribe(eventType, handler)
	}
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	onError := b.onError
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}

	b.Publish(&event)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}

// DecodeReservation unmarshals a reservation event payload.
func DecodeReservation(event *Event) (ReservationEventPayload, error) {
	var p ReservationEventPayload
	err := json.Unmarshal(event.Payload, &p)
	return p, err
}
