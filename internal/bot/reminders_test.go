package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/doublec/ranchportal/internal/db"
	"github.com/doublec/ranchportal/internal/models"
	"github.com/doublec/ranchportal/internal/services"
)

type sent struct {
	Method string
	ChatID int64
	Text   string
	Photo  string
}

// fakeTelegram records Bot API calls; chats listed in blocked answer 403.
type fakeTelegram struct {
	mu      sync.Mutex
	calls   []sent
	blocked map[int64]bool
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChatID  int64  `json:"chat_id"`
		Text    string `json:"text"`
		Photo   string `json:"photo"`
		Caption string `json:"caption"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	f.mu.Lock()
	f.calls = append(f.calls, sent{Method: method, ChatID: body.ChatID, Text: body.Text, Photo: body.Photo})
	blocked := f.blocked[body.ChatID]
	f.mu.Unlock()
	if blocked {
		http.Error(w, `{"ok":false}`, http.StatusForbidden)
		return
	}
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func (f *fakeTelegram) sent() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.calls...)
}

type harness struct {
	ctx   context.Context
	svc   *services.Service
	bot   *Bot
	tg    *fakeTelegram
	staff services.Identity
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	svc := services.New(gdb, services.WithBcryptCost(bcrypt.MinCost))

	tg := &fakeTelegram{blocked: map[int64]bool{}}
	srv := httptest.NewServer(tg)
	t.Cleanup(srv.Close)

	staff, err := svc.CreateUser(context.Background(), "staff@ranch.test", "correct horse", models.RoleStaff)
	require.NoError(t, err)
	return &harness{
		ctx:   context.Background(),
		svc:   svc,
		bot:   New(NewClient("TOKEN", WithAPIBase(srv.URL)), svc, nil, "https://portal.test", time.UTC),
		tg:    tg,
		staff: services.Identity{UserID: staff.ID, Email: staff.Email, Role: staff.Role},
	}
}

func (h *harness) register(t *testing.T, email, phone string) (models.Member, services.Identity) {
	t.Helper()
	m, err := h.svc.RegisterMember(h.ctx, services.RegistrationInput{
		Email: email, Password: "longenough", FirstName: "Jane", LastName: "Doe", Phone: phone,
	})
	require.NoError(t, err)
	return m, services.Identity{UserID: *m.UserID, Email: email, Role: models.RoleMember}
}

func message(fromID int64, text string) *Update {
	return &Update{Message: &Message{From: &User{ID: fromID, FirstName: "Jane"}, Chat: &Chat{ID: fromID * 10}, Text: text}}
}

func TestLinkCodeFlow(t *testing.T) {
	h := newHarness(t)
	m, id := h.register(t, "jane@ranch.test", "")

	lc, err := h.svc.CreateLinkCode(h.ctx, id, m.ID)
	require.NoError(t, err)
	require.Len(t, lc.Code, 6)

	h.bot.Handle(h.ctx, message(7, "/link "+lc.Code[:3]+" "+lc.Code[3:]))
	calls := h.tg.sent()
	require.Len(t, calls, 1)
	assert.Equal(t, int64(70), calls[0].ChatID)
	assert.Contains(t, calls[0].Text, "Linked to <b>Jane Doe</b>")

	// codes are single use
	h.bot.Handle(h.ctx, message(8, "/link "+lc.Code))
	calls = h.tg.sent()
	assert.Equal(t, "Code invalid or expired.", calls[len(calls)-1].Text)

	chats, err := h.svc.TelegramChats(h.ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, int64(70), chats[0].ChatID)

	h.bot.Handle(h.ctx, message(7, "My status"))
	calls = h.tg.sent()
	assert.Contains(t, calls[len(calls)-1].Text, "Status: Pending")
}

func TestContactLinksByPhone(t *testing.T) {
	h := newHarness(t)
	h.register(t, "jane@ranch.test", "434-555-0100")

	u := message(9, "")
	u.Message.Contact = &Contact{PhoneNumber: "+1 434 555 0100", UserID: 9}
	h.bot.Handle(h.ctx, u)

	calls := h.tg.sent()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Text, "Linked to")

	// someone else's contact card is ignored
	u = message(10, "")
	u.Message.Contact = &Contact{PhoneNumber: "+1 434 555 0100", UserID: 9}
	h.bot.Handle(h.ctx, u)
	calls = h.tg.sent()
	assert.NotContains(t, calls[len(calls)-1].Text, "Linked to")
}

func TestNotificationsReachLinkedChats(t *testing.T) {
	h := newHarness(t)
	m, id := h.register(t, "jane@ranch.test", "")
	lc, err := h.svc.CreateLinkCode(h.ctx, id, m.ID)
	require.NoError(t, err)
	_, err = h.svc.LinkTelegram(h.ctx, services.TelegramChat{UserID: 1, ChatID: 11}, lc.Code)
	require.NoError(t, err)

	h.bot.Subscribe()
	t.Cleanup(func() { Unsubscribe() })

	_, _, err = h.svc.ApproveMember(h.ctx, h.staff, m.ID)
	require.NoError(t, err)
	calls := h.tg.sent()
	require.Len(t, calls, 2)
	assert.Equal(t, "sendMessage", calls[0].Method)
	assert.Contains(t, calls[0].Text, "approved")
	assert.Equal(t, "sendPhoto", calls[1].Method)
	assert.Equal(t, "https://portal.test/qr/members/"+m.ID.String()+".png", calls[1].Photo)

	c, err := h.svc.RequestCheckIn(h.ctx, id, m.ID, services.CheckInInput{Type: models.CheckInLesson})
	require.NoError(t, err)
	_, _, err = h.svc.ApproveCheckIn(h.ctx, h.staff, c.ID, nil, "")
	require.NoError(t, err)
	calls = h.tg.sent()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[2].Text, "Lessons so far: 1")
}

func TestRemindersSkipSignedAndBlocked(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.SeedDefaultDocuments(h.ctx)
	require.NoError(t, err)

	link := func(email string, tgID, chatID int64) (models.Member, services.Identity) {
		m, id := h.register(t, email, "")
		lc, err := h.svc.CreateLinkCode(h.ctx, id, m.ID)
		require.NoError(t, err)
		_, err = h.svc.LinkTelegram(h.ctx, services.TelegramChat{UserID: tgID, ChatID: chatID}, lc.Code)
		require.NoError(t, err)
		return m, id
	}
	link("a@ranch.test", 1, 100)
	done, doneID := link("b@ranch.test", 2, 200)
	link("c@ranch.test", 3, 300)
	h.tg.blocked[300] = true

	docs, err := h.svc.OutstandingDocuments(h.ctx, done.ID)
	require.NoError(t, err)
	for _, d := range docs {
		_, err := h.svc.Sign(h.ctx, services.SignInput{MemberID: done.ID, DocumentID: d.ID, Signer: doneID, SignedName: "B", Agreed: true})
		require.NoError(t, err)
	}

	n, err := h.bot.RemindOutstandingDocuments(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	calls := h.tg.sent()
	require.Len(t, calls, 2)
	assert.Equal(t, int64(100), calls[0].ChatID)
	assert.Contains(t, calls[0].Text, "Riding Lesson Agreement")

	// the blocked chat is no longer attempted
	n, err = h.bot.RemindOutstandingDocuments(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, h.tg.sent(), 3)
}

func TestDisabledClientSendsNothing(t *testing.T) {
	h := newHarness(t)
	h.bot.c = NewClient("")
	n, err := h.bot.RemindOutstandingDocuments(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, h.tg.sent())
}
