package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/doublec/ranchportal/internal/apperrors"
	"github.com/doublec/ranchportal/internal/models"
	"github.com/doublec/ranchportal/internal/services"
)

// Bot answers webhook updates and pushes notifications to linked chats.
type Bot struct {
	c         *Client
	svc       *services.Service
	logger    *slog.Logger
	publicURL string
	loc       *time.Location
}

func New(c *Client, svc *services.Service, logger *slog.Logger, publicURL string, loc *time.Location) *Bot {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Bot{c: c, svc: svc, logger: logger, publicURL: strings.TrimRight(publicURL, "/"), loc: loc}
}

func ContactKeyboard() any {
	return map[string]any{
		"keyboard": [][]map[string]any{
			{{"text": "Share my phone", "request_contact": true}},
		},
		"resize_keyboard":   true,
		"one_time_keyboard": true,
	}
}

func MainKeyboard() any {
	return map[string]any{
		"keyboard": [][]map[string]string{
			{{"text": "My status"}},
			{{"text": "My card"}},
		},
		"resize_keyboard":   true,
		"one_time_keyboard": false,
	}
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (b *Bot) Handle(ctx context.Context, u *Update) {
	if u.Message == nil || u.Message.Chat == nil || u.Message.From == nil {
		return
	}
	m := u.Message
	chat := services.TelegramChat{
		UserID:    m.From.ID,
		ChatID:    m.Chat.ID,
		Username:  m.From.Username,
		FirstName: m.From.FirstName,
	}

	// Contact link: only accept the sender's own number
	if m.Contact != nil && m.Contact.UserID == m.From.ID {
		member, err := b.svc.LinkTelegramByPhone(ctx, chat, m.Contact.PhoneNumber)
		if err != nil {
			b.reply(ctx, chat.ChatID, "Phone not found. Send /link CODE from the website's Account page.", nil)
			return
		}
		b.reply(ctx, chat.ChatID, fmt.Sprintf("✅ Linked to <b>%s</b>", html.EscapeString(member.FullName())), MainKeyboard())
		return
	}

	text := strings.TrimSpace(m.Text)
	switch {
	case strings.HasPrefix(text, "/start"):
		b.reply(ctx, chat.ChatID, "Hi! Share your phone number or send /link CODE from the website to get lesson updates.", ContactKeyboard())
	case strings.HasPrefix(text, "/link"):
		code := strings.Trim(strings.TrimPrefix(text, "/link"), " :")
		b.handleLinkCode(ctx, chat, code)
	case strings.EqualFold(text, "My status"), strings.HasPrefix(text, "/status"):
		b.handleStatus(ctx, chat)
	case strings.EqualFold(text, "My card"), strings.HasPrefix(text, "/card"):
		b.handleCard(ctx, chat)
	default:
		b.reply(ctx, chat.ChatID, "Try <b>My status</b>, <b>My card</b> or /link CODE", MainKeyboard())
	}
}

func (b *Bot) handleLinkCode(ctx context.Context, chat services.TelegramChat, code string) {
	code = onlyDigits(code) // strip spaces, punctuation, accidental chars
	if code == "" {
		b.reply(ctx, chat.ChatID, "Use: /link 123456\nOpen the website → Account → Link Telegram to get a code.", nil)
		return
	}
	member, err := b.svc.LinkTelegram(ctx, chat, code)
	if err != nil {
		if apperrors.CodeOf(err) != apperrors.CodeNotFound {
			b.logger.Error("link telegram", "error", err)
		}
		b.reply(ctx, chat.ChatID, "Code invalid or expired.", nil)
		return
	}
	b.reply(ctx, chat.ChatID, fmt.Sprintf("✅ Linked to <b>%s</b>", html.EscapeString(member.FullName())), MainKeyboard())
}

func (b *Bot) linkedMember(ctx context.Context, chat services.TelegramChat) (models.Member, bool) {
	member, ok, err := b.svc.ChatMember(ctx, chat.UserID)
	if err != nil {
		b.logger.Error("chat member lookup", "error", err)
	}
	if !ok {
		b.reply(ctx, chat.ChatID, "Not linked yet. Share your phone or use /link CODE.", ContactKeyboard())
	}
	return member, ok
}

func (b *Bot) handleStatus(ctx context.Context, chat services.TelegramChat) {
	member, ok := b.linkedMember(ctx, chat)
	if !ok {
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b>\nStatus: %s\nTier: %s\n", html.EscapeString(member.FullName()), member.Status, member.MembershipTier)
	fmt.Fprintf(&sb, "Lessons (30 days): %d\nLessons (all time): %d\n", member.Attendance30d, member.AttendanceAllTime)
	if member.LastCheckinAt != nil {
		fmt.Fprintf(&sb, "Last check-in: %s\n", member.LastCheckinAt.In(b.loc).Format("Mon, 02 Jan 2006"))
	}
	docs, err := b.svc.OutstandingDocuments(ctx, member.ID)
	if err == nil && len(docs) > 0 {
		fmt.Fprintf(&sb, "\n⚠️ %d document(s) to sign: %s", len(docs), b.publicURL+"/sign")
	}
	b.reply(ctx, chat.ChatID, sb.String(), MainKeyboard())
}

func (b *Bot) handleCard(ctx context.Context, chat services.TelegramChat) {
	member, ok := b.linkedMember(ctx, chat)
	if !ok {
		return
	}
	if err := b.c.SendPhoto(ctx, chat.ChatID, b.cardURL(member), html.EscapeString(member.FullName()), nil); err != nil {
		b.deliveryFailed(ctx, chat.ChatID, err)
	}
}

func (b *Bot) cardURL(m models.Member) string {
	return b.publicURL + "/qr/members/" + m.ID.String() + ".png"
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string, markup any) {
	if err := b.c.SendMessage(ctx, chatID, text, markup); err != nil {
		b.deliveryFailed(ctx, chatID, err)
	}
}

// deliveryFailed logs a send error and stops future sends to blocked chats.
func (b *Bot) deliveryFailed(ctx context.Context, chatID int64, err error) {
	b.logger.Warn("telegram send failed", "chat_id", chatID, "error", err)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Blocked() {
		if err := b.svc.MarkUndeliverable(ctx, chatID); err != nil {
			b.logger.Error("mark undeliverable", "chat_id", chatID, "error", err)
		}
	}
}
