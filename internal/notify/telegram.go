package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"daimaescape/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotAPI is the part of the Telegram client used here.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender posts staff notices to the configured chats.
type TelegramSender struct {
	bot      BotAPI
	chatIDs  []int64
	currency string
}

func NewTelegramSender(bot BotAPI, chatIDs []int64, currency string) *TelegramSender {
	if currency == "" {
		currency = "TSh"
	}
	return &TelegramSender{bot: bot, chatIDs: chatIDs, currency: currency}
}

func (s *TelegramSender) Channel() string {
	return "telegram"
}

func (s *TelegramSender) Send(ctx context.Context, msg Message) error {
	text, err := s.format(msg)
	if err != nil {
		return err
	}

	var errs []error
	for _, chatID := range s.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// SendDocument uploads a file to every staff chat.
func (s *TelegramSender) SendDocument(ctx context.Context, path, caption string) error {
	var errs []error
	for _, chatID := range s.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
		doc.Caption = caption
		if _, err := s.bot.Send(doc); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *TelegramSender) format(msg Message) (string, error) {
	b := msg.Booking
	var sb strings.Builder

	switch msg.Kind {
	case KindStaffNewBooking:
		fmt.Fprintf(&sb, "New booking %s (%s)\n", b.Reference, b.Status)
	case KindStaffCancellation:
		fmt.Fprintf(&sb, "Booking %s cancelled", b.Reference)
		if by := msg.Extra["actor"]; by != "" {
			fmt.Fprintf(&sb, " by %s", by)
		}
		sb.WriteString("\n")
		if reason := msg.Extra["reason"]; reason != "" {
			fmt.Fprintf(&sb, "Reason: %s\n", reason)
		}
	default:
		return "", fmt.Errorf("%w: %s", ErrNoChannel, msg.Kind)
	}

	fmt.Fprintf(&sb, "Villa: %s\n", b.RoomName)
	fmt.Fprintf(&sb, "Dates: %s - %s (%d nights)\n",
		b.CheckIn.Format(models.DateLayout), b.CheckOut.Format(models.DateLayout), b.Nights)
	fmt.Fprintf(&sb, "Guest: %s, %s, %s\n", b.GuestName, b.GuestPhone, b.GuestEmail)
	fmt.Fprintf(&sb, "Party: %d adults, %d children\n", b.Adults, b.Children)
	fmt.Fprintf(&sb, "Total: %s %s", s.currency, b.TotalAmount.StringFixed(2))
	return sb.String(), nil
}
