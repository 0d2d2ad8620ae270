package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"smarterdog/internal/domain"
	"smarterdog/internal/events"
	"smarterdog/internal/phone"
	"smarterdog/internal/pricing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const queueSize = 100

// StaffNotifier tells salon staff about new, cancelled and changed
// appointments through Telegram. Messages are sent from a background loop
// so publishers never wait on the Bot API.
type StaffNotifier struct {
	bot     domain.TelegramSender
	chatIDs []int64
	queue   chan tgbotapi.MessageConfig
	logger  *zerolog.Logger
}

func NewStaffNotifier(bot domain.TelegramSender, chatIDs []int64, logger *zerolog.Logger) *StaffNotifier {
	return &StaffNotifier{
		bot:     bot,
		chatIDs: chatIDs,
		queue:   make(chan tgbotapi.MessageConfig, queueSize),
		logger:  logger,
	}
}

// Subscribe registers the notifier for appointment events.
func (n *StaffNotifier) Subscribe(bus *events.EventBus) {
	for _, t := range []string{
		events.EventAppointmentCreated,
		events.EventAppointmentCancelled,
		events.EventAppointmentUpdated,
	} {
		bus.Subscribe(t, n.Handle)
	}
}

// Handle renders the event and queues one message per staff chat.
func (n *StaffNotifier) Handle(event *events.Event) error {
	var p events.AppointmentEventPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}

	text := Render(event.Type, &p)
	for _, chatID := range n.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		select {
		case n.queue <- msg:
		default:
			n.logger.Warn().Int64("chat_id", chatID).Str("appointment_id", p.AppointmentID).Msg("Notification queue full, message dropped")
		}
	}
	return nil
}

// Start sends queued messages until ctx is done.
func (n *StaffNotifier) Start(ctx context.Context) {
	n.logger.Info().Int("chats", len(n.chatIDs)).Msg("Staff notifier started")
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			n.send(msg)
		}
	}
}

func (n *StaffNotifier) send(msg tgbotapi.MessageConfig) {
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error().Err(err).Int64("chat_id", msg.ChatID).Msg("Failed to send staff notification")
	}
}

// Render builds the HTML message body for an appointment event.
func Render(eventType string, p *events.AppointmentEventPayload) string {
	var title string
	switch eventType {
	case events.EventAppointmentCreated:
		title = "🐾 New booking"
	case events.EventAppointmentCancelled:
		title = "❌ Booking cancelled"
	default:
		title = "✏️ Booking updated"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", title)
	fmt.Fprintf(&b, "📅 %s at %s", html.EscapeString(p.Date), html.EscapeString(shortTime(p.StartTime)))
	if p.GroomerName != "" {
		fmt.Fprintf(&b, " with %s", html.EscapeString(p.GroomerName))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "🐶 %s", html.EscapeString(p.PetName))
	if p.PetSize != "" {
		fmt.Fprintf(&b, " (%s)", html.EscapeString(p.PetSize))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "👤 %s", html.EscapeString(p.CustomerName))
	if p.CustomerPhone != "" {
		icon := "☎️"
		if phone.IsMobile(p.CustomerPhone) {
			icon = "📱"
		}
		fmt.Fprintf(&b, ", %s %s", icon, html.EscapeString(p.CustomerPhone))
	}
	b.WriteString("\n")
	if len(p.Services) > 0 {
		fmt.Fprintf(&b, "✂️ %s\n", html.EscapeString(strings.Join(p.Services, ", ")))
	}
	fmt.Fprintf(&b, "💷 Total %s, deposit %s", pricing.FormatPrice(p.TotalCents), pricing.FormatPrice(p.DepositCents))

	switch eventType {
	case events.EventAppointmentCancelled:
		fmt.Fprintf(&b, "\nCancellation fee: %s", pricing.FormatPrice(p.CancellationFee))
	case events.EventAppointmentUpdated:
		if p.MattingFee > 0 {
			fmt.Fprintf(&b, "\nMatting fee: %s", pricing.FormatPrice(p.MattingFee))
		}
	}
	if p.CustomerNotes != "" {
		fmt.Fprintf(&b, "\n📝 %s", html.EscapeString(p.CustomerNotes))
	}
	return b.String()
}

// "09:00:00" -> "09:00"
func shortTime(t string) string {
	if len(t) == 8 {
		return t[:5]
	}
	return t
}
