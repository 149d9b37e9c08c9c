package bot

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/doublec/ranchportal/internal/events"
	"github.com/doublec/ranchportal/internal/models"
)

const notifyTimeout = 15 * time.Second

// Subscribe routes approval and check-in events to linked chats.
func (b *Bot) Subscribe() {
	events.OnMemberApproved = func(m models.Member) {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		b.MemberApproved(ctx, m)
	}
	events.OnCheckInDecided = func(m models.Member, c models.CheckIn) {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		b.CheckInDecided(ctx, m, c)
	}
}

func (b *Bot) notify(ctx context.Context, m models.Member, text string, withCard bool) {
	if !b.c.Enabled() {
		return
	}
	chats, err := b.svc.TelegramChats(ctx, m.ID)
	if err != nil {
		b.logger.Error("load telegram chats", "member_id", m.ID, "error", err)
		return
	}
	for _, tl := range chats {
		if err := b.c.SendMessage(ctx, tl.ChatID, text, nil); err != nil {
			b.deliveryFailed(ctx, tl.ChatID, err)
			continue
		}
		if withCard {
			if err := b.c.SendPhoto(ctx, tl.ChatID, b.cardURL(m), "", nil); err != nil {
				b.deliveryFailed(ctx, tl.ChatID, err)
			}
		}
	}
}

func (b *Bot) MemberApproved(ctx context.Context, m models.Member) {
	msg := fmt.Sprintf("🎉 <b>Welcome to the ranch!</b>\n%s, your membership is approved. Show this card at check-in.",
		html.EscapeString(m.FirstName))
	b.notify(ctx, m, msg, true)
}

func (b *Bot) CheckInDecided(ctx context.Context, m models.Member, c models.CheckIn) {
	date := c.RequestedAt.In(b.loc).Format("Mon, 02 Jan 2006")
	var msg string
	switch c.Status {
	case models.CheckInConfirmed:
		msg = fmt.Sprintf("✅ %s check-in on %s confirmed. Lessons so far: %d", c.Type, date, m.AttendanceAllTime)
	case models.CheckInRejected:
		msg = fmt.Sprintf("❌ %s check-in on %s was not confirmed.", c.Type, date)
		if c.StaffNote != "" {
			msg += "\nNote: " + html.EscapeString(c.StaffNote)
		}
	default:
		return
	}
	b.notify(ctx, m, msg, false)
}

// Unsubscribe clears the event hooks.
func Unsubscribe() {
	events.OnMemberApproved = nil
	events.OnCheckInDecided = nil
}
