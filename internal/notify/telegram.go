package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/Freeeeeet/tutor_scheduler/internal/events"
)

// MessageSender is the part of *bot.Bot the notifier needs.
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Telegram posts a short summary of every event into one chat.
type Telegram struct {
	sender MessageSender
	chatID int64
}

func NewTelegram(sender MessageSender, chatID int64) *Telegram {
	return &Telegram{sender: sender, chatID: chatID}
}

// NewTelegramBot создаёт клиента Telegram Bot API по токену
func NewTelegramBot(token string) (*bot.Bot, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return b, nil
}

func (t *Telegram) Notify(ctx context.Context, e events.Event) error {
	_, err := t.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      FormatEvent(e),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

var eventTitles = map[events.Type]string{
	events.TypeBookingCreated:     "📅 Новое занятие",
	events.TypeBookingRescheduled: "🔁 Занятие перенесено, ждёт подтверждения",
	events.TypeBookingConfirmed:   "✅ Перенос подтверждён",
	events.TypeBookingCanceled:    "❌ Занятие отменено",
	events.TypeBookingCompleted:   "🎓 Занятие проведено",
	events.TypeBookingNoShow:      "🚫 Неявка",
}

// FormatEvent renders the HTML message body for an event.
func FormatEvent(e events.Event) string {
	title, ok := eventTitles[e.Type]
	if !ok {
		title = string(e.Type)
	}

	var sb strings.Builder
	sb.WriteString("<b>" + title + "</b>\n")
	sb.WriteString(fmt.Sprintf("Учитель: %d, студент: %d\n", e.TeacherID, e.StudentID))
	sb.WriteString(fmt.Sprintf("%s – %s UTC", e.StartsAt.UTC().Format("02.01.2006 15:04"), e.EndsAt.UTC().Format("15:04")))
	if e.Cause != "" {
		sb.WriteString("\nПричина: " + e.Cause)
	}
	return sb.String()
}
