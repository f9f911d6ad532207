package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"campspots/internal/domain"
	"campspots/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const defaultQueueSize = 256

// TelegramNotifier tells operator chats about reservation lifecycle changes.
// The bus handler only queues; Start does the sending.
type TelegramNotifier struct {
	sender  domain.TelegramSender
	chatIDs []int64
	queue   chan *events.Event
	logger  *zerolog.Logger
}

func NewTelegramNotifier(sender domain.TelegramSender, chatIDs []int64, logger *zerolog.Logger) *TelegramNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &TelegramNotifier{
		sender:  sender,
		chatIDs: chatIDs,
		queue:   make(chan *events.Event, defaultQueueSize),
		logger:  logger,
	}
}

// Subscribe registers the notifier for every reservation event on bus.
func (n *TelegramNotifier) Subscribe(bus *events.EventBus) {
	bus.SubscribeAll(n.handle)
}

func (n *TelegramNotifier) handle(event *events.Event) error {
	select {
	case n.queue <- event:
		return nil
	default:
		return fmt.Errorf("telegram notifier queue full, dropping %s", event.Type)
	}
}

// Start sends queued notifications until ctx is cancelled.
func (n *TelegramNotifier) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-n.queue:
			n.deliver(event)
		}
	}
}

func (n *TelegramNotifier) deliver(event *events.Event) {
	var payload events.ReservationEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		n.logger.Error().Err(err).Str("event", event.Type).Msg("notify: decode payload error")
		return
	}

	text := FormatReservationEvent(event.Type, &payload)
	for _, chatID := range n.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := n.sender.Send(msg); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Int64("reservation_id", payload.ReservationID).
				Msg("notify: send error")
		}
	}
}

func eventTitle(eventType string) string {
	switch eventType {
	case events.EventReservationCreated:
		return "🆕 New reservation awaiting payment"
	case events.EventReservationConfirmed:
		return "✅ Reservation confirmed"
	case events.EventReservationCancelled:
		return "❌ Reservation cancelled"
	case events.EventReservationExpired:
		return "⌛ Pending reservation expired"
	default:
		return "ℹ️ Reservation update: " + eventType
	}
}

// FormatReservationEvent renders the operator message for one event.
func FormatReservationEvent(eventType string, p *events.ReservationEventPayload) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\n", eventTitle(eventType))
	fmt.Fprintf(&sb, "Code: %s\n", p.ConfirmationCode)

	site := fmt.Sprintf("site %d", p.SiteID)
	if p.SiteNumber != "" {
		site = "site " + p.SiteNumber
	}
	if p.CampgroundName != "" {
		site = p.CampgroundName + ", " + site
	}
	fmt.Fprintf(&sb, "Where: %s\n", site)
	fmt.Fprintf(&sb, "Dates: %s → %s (%d nights)\n", p.ArrivalDate, p.DepartureDate, p.Nights)
	fmt.Fprintf(&sb, "Guest: %s <%s>\n", p.CustomerName, p.CustomerEmail)
	fmt.Fprintf(&sb, "Total: %s %s\n", p.TotalAmountCents.String(), strings.ToUpper(p.Currency))
	fmt.Fprintf(&sb, "Status: %s / %s", p.Status, p.PaymentStatus)
	if p.Reason != "" {
		fmt.Fprintf(&sb, "\nReason: %s", p.Reason)
	}
	return sb.String()
}

// NewBotAPI connects the Telegram client used for operator notifications.
func NewBotAPI(token string, debug bool) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	api.Debug = debug
	return api, nil
}
