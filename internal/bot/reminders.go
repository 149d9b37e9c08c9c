package bot

import (
	"context"
	"fmt"
	"html"
	"strings"
)

// RemindOutstandingDocuments messages every linked member who still has
// required documents to sign. Returns the number of chats messaged.
func (b *Bot) RemindOutstandingDocuments(ctx context.Context) (int, error) {
	if !b.c.Enabled() {
		return 0, nil
	}
	chats, err := b.svc.LinkedChats(ctx)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, tl := range chats {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		member, err := b.svc.Member(ctx, *tl.MemberID)
		if err != nil || !member.CanParticipate() {
			continue
		}
		docs, err := b.svc.OutstandingDocuments(ctx, member.ID)
		if err != nil {
			return sent, err
		}
		if len(docs) == 0 {
			continue
		}
		names := make([]string, 0, len(docs))
		for _, d := range docs {
			names = append(names, "• "+html.EscapeString(d.Name))
		}
		msg := fmt.Sprintf("⏰ Reminder: %s still needs to sign:\n%s\n\n%s",
			html.EscapeString(member.FirstName), strings.Join(names, "\n"), b.publicURL+"/sign")
		if err := b.c.SendMessage(ctx, tl.ChatID, msg, nil); err != nil {
			b.deliveryFailed(ctx, tl.ChatID, err)
			continue
		}
		sent++
	}
	b.logger.Info("document reminders sent", "chats", sent)
	return sent, nil
}
