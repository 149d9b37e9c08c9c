package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/doublec/ranchportal/internal/apperrors"
	"github.com/doublec/ranchportal/internal/models"
)

// LinkCodeTTL is how long a code shown on the account page stays valid.
const LinkCodeTTL = 10 * time.Minute

// TelegramChat identifies the sender of a bot message.
type TelegramChat struct {
	UserID    int64
	ChatID    int64
	Username  string
	FirstName string
}

// generate 6-digit code using crypto/rand
func genCode6() string {
	var b [3]byte
	_, _ = rand.Read(b[:])
	n := (int(b[0])<<16 | int(b[1])<<8 | int(b[2])) % 1000000
	return fmt.Sprintf("%06d", n)
}

// CreateLinkCode issues a one-time code the member sends to the bot as
// "/link CODE".
func (s *Service) CreateLinkCode(ctx context.Context, actor Identity, memberID uuid.UUID) (models.LinkCode, error) {
	tx := s.db.WithContext(ctx)
	m, err := first[models.Member](tx, "member", memberID)
	if err != nil {
		return models.LinkCode{}, err
	}
	if !ownsMember(actor, m) {
		return models.LinkCode{}, apperrors.New(apperrors.CodePermissionDenied, "cannot link another member")
	}
	now := s.now()
	// housekeeping: drop used or long-expired codes for this member
	_ = tx.Where("member_id = ? AND (used_at IS NOT NULL OR expires_at < ?)", m.ID, now.Add(-24*time.Hour)).
		Delete(&models.LinkCode{}).Error

	// try up to 10 times to avoid unique collisions
	for i := 0; i < 10; i++ {
		lc := models.LinkCode{Code: genCode6(), MemberID: m.ID, ExpiresAt: now.Add(LinkCodeTTL)}
		err := tx.Create(&lc).Error
		if err == nil {
			return lc, nil
		}
		if !isUniqueViolation(err) {
			return models.LinkCode{}, err
		}
		s.logger.Debug("link code collision, retrying", "attempt", i+1)
	}
	return models.LinkCode{}, errors.New("unable to generate link code")
}

var errLinkCode = apperrors.New(apperrors.CodeNotFound, "code invalid or expired")

// upsertChat records the chat so later notifications can reach it.
func upsertChat(tx *gorm.DB, chat TelegramChat) (models.TelegramLink, error) {
	var tl models.TelegramLink
	err := tx.Where("telegram_user_id = ?", chat.UserID).
		Assign(models.TelegramLink{ChatID: chat.ChatID, Username: chat.Username, FirstName: chat.FirstName, Deliverable: true}).
		FirstOrCreate(&tl, models.TelegramLink{TelegramUserID: chat.UserID}).Error
	return tl, err
}

// LinkTelegram redeems a link code for the chat.
func (s *Service) LinkTelegram(ctx context.Context, chat TelegramChat, code string) (models.Member, error) {
	var m models.Member
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		var lc models.LinkCode
		err := tx.Where("code = ? AND used_at IS NULL AND expires_at > ?", code, now).First(&lc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errLinkCode
		}
		if err != nil {
			return err
		}
		res := tx.Model(&models.LinkCode{}).Where("id = ? AND used_at IS NULL", lc.ID).Update("used_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errLinkCode
		}
		m, err = first[models.Member](tx, "member", lc.MemberID)
		if err != nil {
			return err
		}
		return bindChat(tx, chat, m.ID, now)
	})
	return m, err
}

// LinkTelegramByPhone binds the chat to the member whose phone the user shared.
func (s *Service) LinkTelegramByPhone(ctx context.Context, chat TelegramChat, phone string) (models.Member, error) {
	m, err := s.FindMemberByPhone(ctx, phone)
	if err != nil {
		return models.Member{}, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return bindChat(tx, chat, m.ID, s.now())
	})
	return m, err
}

func bindChat(tx *gorm.DB, chat TelegramChat, memberID uuid.UUID, now time.Time) error {
	tl, err := upsertChat(tx, chat)
	if err != nil {
		return err
	}
	return tx.Model(&tl).Updates(map[string]any{"member_id": memberID, "linked_at": now, "deliverable": true}).Error
}

// TelegramChats returns the deliverable chats linked to a member.
func (s *Service) TelegramChats(ctx context.Context, memberID uuid.UUID) ([]models.TelegramLink, error) {
	var out []models.TelegramLink
	err := s.db.WithContext(ctx).
		Where("member_id = ? AND deliverable = ?", memberID, true).
		Find(&out).Error
	return out, err
}

// LinkedChats returns every deliverable chat with a member.
func (s *Service) LinkedChats(ctx context.Context) ([]models.TelegramLink, error) {
	var out []models.TelegramLink
	err := s.db.WithContext(ctx).
		Where("member_id IS NOT NULL AND deliverable = ?", true).
		Order("id").Find(&out).Error
	return out, err
}

// ChatMember returns the member a chat is linked to, if any.
func (s *Service) ChatMember(ctx context.Context, telegramUserID int64) (models.Member, bool, error) {
	var tl models.TelegramLink
	err := s.db.WithContext(ctx).Where("telegram_user_id = ? AND member_id IS NOT NULL", telegramUserID).First(&tl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Member{}, false, nil
	}
	if err != nil {
		return models.Member{}, false, err
	}
	m, err := s.Member(ctx, *tl.MemberID)
	if err != nil {
		return models.Member{}, false, err
	}
	return m, true, nil
}

// UnlinkTelegram detaches all chats from the member.
func (s *Service) UnlinkTelegram(ctx context.Context, actor Identity, memberID uuid.UUID) (int64, error) {
	m, err := s.Member(ctx, memberID)
	if err != nil {
		return 0, err
	}
	if !ownsMember(actor, m) {
		return 0, apperrors.New(apperrors.CodePermissionDenied, "cannot unlink another member")
	}
	res := s.db.WithContext(ctx).Model(&models.TelegramLink{}).
		Where("member_id = ?", memberID).
		Updates(map[string]any{"member_id": nil, "linked_at": nil})
	return res.RowsAffected, res.Error
}

// MarkUndeliverable stops sends to a chat that blocked the bot.
func (s *Service) MarkUndeliverable(ctx context.Context, chatID int64) error {
	return s.db.WithContext(ctx).Model(&models.TelegramLink{}).
		Where("chat_id = ?", chatID).Update("deliverable", false).Error
}
