package models

import (
	"time"

	"github.com/google/uuid"
)

// TelegramLink binds a Telegram chat to a member for notifications.
type TelegramLink struct {
	ID             uint       `gorm:"primarykey"`
	TelegramUserID int64      `gorm:"uniqueIndex"`
	ChatID         int64
	Username       string
	FirstName      string
	MemberID       *uuid.UUID `gorm:"type:uuid;index"`
	LinkedAt       *time.Time
	Deliverable    bool `gorm:"default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LinkCode is a short-lived one-time code a member sends to the bot.
type LinkCode struct {
	ID        uint      `gorm:"primarykey"`
	Code      string    `gorm:"uniqueIndex"`
	MemberID  uuid.UUID `gorm:"type:uuid;index"`
	ExpiresAt time.Time `gorm:"index"`
	UsedAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
