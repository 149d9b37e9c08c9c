package jobs

import (
	"context"

	"github.com/doublec/ranchportal/internal/bot"
	"github.com/doublec/ranchportal/internal/services"
)

// RecomputeAttendance rebuilds every member's cached attendance counters.
func RecomputeAttendance(svc *services.Service) Task {
	return func(ctx context.Context) error {
		_, err := svc.RecomputeAllAttendance(ctx, svc.Now())
		return err
	}
}

// DocumentReminders nudges linked members with unsigned documents.
func DocumentReminders(b *bot.Bot) Task {
	return func(ctx context.Context) error {
		_, err := b.RemindOutstandingDocuments(ctx)
		return err
	}
}
