package webhook

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/pr-poehali-dev/telegram-feedback-bot/constructor"
	"github.com/pr-poehali-dev/telegram-feedback-bot/core/telegram"
	"github.com/pr-poehali-dev/telegram-feedback-bot/storage"
)

const constructorToken = "111:constructor"

type sentMessage struct {
	Token  string
	ChatID int64
	Text   string
	Opts   *telegram.SendOptions
}

type fakeAPI struct {
	sent      []sentMessage
	webhooks  []string
	dropped   []string
	answered  []string
	sendErr   error
	setWHErr  error
	answerErr error
}

func (f *fakeAPI) SendMessage(_ context.Context, token string, chatID int64, text string, opts *telegram.SendOptions) error {
	f.sent = append(f.sent, sentMessage{Token: token, ChatID: chatID, Text: text, Opts: opts})
	return f.sendErr
}

func (f *fakeAPI) SetWebhook(_ context.Context, _, url string) error {
	f.webhooks = append(f.webhooks, url)
	return f.setWHErr
}

func (f *fakeAPI) DeleteWebhook(_ context.Context, token string, _ bool) error {
	f.dropped = append(f.dropped, token)
	return nil
}

func (f *fakeAPI) AnswerCallbackQuery(_ context.Context, _, id string) error {
	f.answered = append(f.answered, id)
	return f.answerErr
}

type fakeStore struct {
	byToken     map[string]storage.Bot
	byID        map[int64]storage.Bot
	upserts     []string
	welcomes    map[int64]string
	deactivated []int64
	appended    []storage.Message
	states      map[int64]storage.ConversationRecord
	saveErr     error
	appendErr   error
	welcomeErr  error
	deactErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byToken:  map[string]storage.Bot{},
		byID:     map[int64]storage.Bot{},
		welcomes: map[int64]string{},
		states:   map[int64]storage.ConversationRecord{},
	}
}

func (f *fakeStore) ByToken(_ context.Context, token string) (storage.Bot, bool, error) {
	b, ok := f.byToken[token]
	return b, ok, nil
}

func (f *fakeStore) Upsert(_ context.Context, ownerID, token, username string) (int64, error) {
	f.upserts = append(f.upserts, token)
	return 1, nil
}

func (f *fakeStore) SetWelcomeText(_ context.Context, id int64, _, text string) error {
	if f.welcomeErr != nil {
		return f.welcomeErr
	}
	f.welcomes[id] = text
	return nil
}

func (f *fakeStore) Deactivate(_ context.Context, id int64, _ string) error {
	if f.deactErr != nil {
		return f.deactErr
	}
	f.deactivated = append(f.deactivated, id)
	return nil
}

func (f *fakeStore) ByOwner(_ context.Context, _ string) ([]storage.Bot, error) {
	var out []storage.Bot
	for _, b := range f.byID {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeStore) ByID(_ context.Context, id int64, _ string) (storage.Bot, bool, error) {
	b, ok := f.byID[id]
	return b, ok, nil
}

func (f *fakeStore) RecentForOwner(_ context.Context, _ string, _ int) ([]storage.InboxItem, error) {
	return nil, nil
}

func (f *fakeStore) BotTokenForMessage(_ context.Context, _ int64, _ string) (string, bool, error) {
	return "", false, nil
}

func (f *fakeStore) Load(_ context.Context, userID int64) (storage.ConversationRecord, bool, error) {
	rec, ok := f.states[userID]
	return rec, ok, nil
}

func (f *fakeStore) Save(_ context.Context, userID int64, username, state, data string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.states[userID] = storage.ConversationRecord{
		TelegramUserID: userID, TelegramUsername: username, State: state, StateData: data,
	}
	return nil
}

func (f *fakeStore) Append(_ context.Context, m storage.Message) (int64, error) {
	if f.appendErr != nil {
		return 0, f.appendErr
	}
	f.appended = append(f.appended, m)
	return int64(len(f.appended)), nil
}

type fakeVerifier struct{}

func (fakeVerifier) GetMe(_ context.Context, _ string) (telegram.BotIdentity, error) {
	return telegram.BotIdentity{ID: 9, Username: "connected_bot"}, nil
}

func newTestDispatcher(api *fakeAPI, store *fakeStore) *Dispatcher {
	machine := constructor.NewMachine(store, store, fakeVerifier{})
	return NewDispatcher(constructorToken, "https://example.com/webhook",
		api, machine, store, store, store)
}

func textUpdate(userID, chatID int64, text string) *tele.Update {
	return &tele.Update{
		ID: 7,
		Message: &tele.Message{
			Sender: &tele.User{ID: userID, Username: "user"},
			Chat:   &tele.Chat{ID: chatID},
			Text:   text,
		},
	}
}

func callbackUpdate(userID, chatID int64, data string) *tele.Update {
	return &tele.Update{
		ID: 8,
		Callback: &tele.Callback{
			ID:      "cbq1",
			Sender:  &tele.User{ID: userID, Username: "user"},
			Message: &tele.Message{Chat: &tele.Chat{ID: chatID}},
			Data:    data,
		},
	}
}

func TestConstructorStartPersistsIdleAndSendsMenu(t *testing.T) {
	api := &fakeAPI{}
	store := newFakeStore()
	d := newTestDispatcher(api, store)

	if err := d.Handle(context.Background(), constructorToken, textUpdate(50, 50, "/start")); err != nil {
		t.Fatal(err)
	}
	rec, ok := store.states[50]
	if !ok || rec.State != "idle" {
		t.Fatalf("state = %+v", rec)
	}
	if len(api.sent) != 1 {
		t.Fatalf("sent = %d", len(api.sent))
	}
	if api.sent[0].Token != constructorToken || api.sent[0].Opts == nil || api.sent[0].Opts.ParseMode != "HTML" {
		t.Errorf("sent = %+v", api.sent[0])
	}
}

func TestTokenConnectRegistersWebhook(t *testing.T) {
	api := &fakeAPI{}
	store := newFakeStore()
	store.states[50] = storage.ConversationRecord{TelegramUserID: 50, State: "waiting_bot_token", StateData: "{}"}
	d := newTestDispatcher(api, store)

	if err := d.Handle(context.Background(), constructorToken, textUpdate(50, 50, "222:newbot")); err != nil {
		t.Fatal(err)
	}
	if len(store.upserts) != 1 || store.upserts[0] != "222:newbot" {
		t.Fatalf("upserts = %v", store.upserts)
	}
	want := "https://example.com/webhook?bot_token=222:newbot"
	if len(api.webhooks) != 1 || api.webhooks[0] != want {
		t.Fatalf("webhooks = %v", api.webhooks)
	}
	if store.states[50].State != "idle" {
		t.Errorf("state = %s", store.states[50].State)
	}
}

func TestWebhookRegistrationFailureKeepsState(t *testing.T) {
	api := &fakeAPI{setWHErr: errors.New("boom")}
	store := newFakeStore()
	store.states[50] = storage.ConversationRecord{TelegramUserID: 50, State: "waiting_bot_token", StateData: "{}"}
	d := newTestDispatcher(api, store)

	err := d.Handle(context.Background(), constructorToken, textUpdate(50, 50, "222:newbot"))
	if err == nil {
		t.Fatal("expected error")
	}
	if store.states[50].State != "waiting_bot_token" {
		t.Errorf("state advanced to %s despite failure", store.states[50].State)
	}
	if len(api.sent) != 0 {
		t.Errorf("success message sent despite failure")
	}
}

func TestCallbackAnsweredEvenWhenDropped(t *testing.T) {
	api := &fakeAPI{}
	store := newFakeStore()
	store.states[50] = storage.ConversationRecord{TelegramUserID: 50, State: "waiting_bot_token", StateData: "{}"}
	d := newTestDispatcher(api, store)

	if err := d.Handle(context.Background(), constructorToken, callbackUpdate(50, 50, "main_menu")); err != nil {
		t.Fatal(err)
	}
	if len(api.answered) != 1 || api.answered[0] != "cbq1" {
		t.Errorf("answered = %v", api.answered)
	}
	if len(api.sent) != 0 {
		t.Errorf("sent = %d, want 0", len(api.sent))
	}
}

func TestDisconnectDropsWebhook(t *testing.T) {
	api := &fakeAPI{}
	store := newFakeStore()
	store.byID[2] = storage.Bot{ID: 2, OwnerID: "50", BotToken: "222:bot"}
	d := newTestDispatcher(api, store)

	if err := d.Handle(context.Background(), constructorToken, callbackUpdate(50, 50, "disconnect_2")); err != nil {
		t.Fatal(err)
	}
	if len(store.deactivated) != 1 || store.deactivated[0] != 2 {
		t.Errorf("deactivated = %v", store.deactivated)
	}
	if len(api.dropped) != 1 || api.dropped[0] != "222:bot" {
		t.Errorf("dropped = %v, want [222:bot]", api.dropped)
	}
}

func TestWelcomeCommitForLostBotIsSilent(t *testing.T) {
	api := &fakeAPI{}
	store := newFakeStore()
	store.welcomeErr = sql.ErrNoRows
	store.states[50] = storage.ConversationRecord{
		TelegramUserID: 50, State: "waiting_welcome_text", StateData: `{"bot_id":3}`,
	}
	d := newTestDispatcher(api, store)

	// The bot was reassigned to another owner after the prompt; the commit
	// finds zero rows and the update must still acknowledge cleanly.
	if err := d.Handle(context.Background(), constructorToken, textUpdate(50, 50, "New greeting")); err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if len(api.sent) != 0 {
		t.Errorf("sent = %+v, want none", api.sent)
	}
	if store.states[50].State != "idle" {
		t.Errorf("state = %s", store.states[50].State)
	}
}

func TestDisconnectForLostBotIsSilent(t *testing.T) {
	api := &fakeAPI{}
	store := newFakeStore()
	store.byID[2] = storage.Bot{ID: 2, OwnerID: "50", BotToken: "222:bot"}
	store.deactErr = sql.ErrNoRows
	d := newTestDispatcher(api, store)

	if err := d.Handle(context.Background(), constructorToken, callbackUpdate(50, 50, "disconnect_2")); err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if len(api.sent) != 0 || len(api.dropped) != 0 {
		t.Errorf("sent = %d, dropped = %d, want none", len(api.sent), len(api.dropped))
	}
}

func TestDeliveryFailureDoesNotFailUpdate(t *testing.T) {
	api := &fakeAPI{sendErr: errors.New("blocked by user")}
	store := newFakeStore()
	d := newTestDispatcher(api, store)

	if err := d.Handle(context.Background(), constructorToken, textUpdate(50, 50, "/start")); err != nil {
		t.Fatalf("delivery error surfaced: %v", err)
	}
}

func TestRelayStartSendsWelcome(t *testing.T) {
	api := &fakeAPI{}
	store := newFakeStore()
	store.byToken["222:bot"] = storage.Bot{
		ID: 2, OwnerID: "50", BotToken: "222:bot",
		WelcomeText: sql.NullString{String: "Custom hello", Valid: true},
	}
	d := newTestDispatcher(api, store)

	if err := d.Handle(context.Background(), "222:bot", textUpdate(900, 900, "/start")); err != nil {
		t.Fatal(err)
	}
	if len(api.sent) != 1 || api.sent[0].Text != "Custom hello" || api.sent[0].Token != "222:bot" {
		t.Fatalf("sent = %+v", api.sent)
	}
	if len(store.appended) != 0 {
		t.Errorf("welcome was persisted")
	}
}

func TestRelayStartFallsBackToDefaultWelcome(t *testing.T) {
	api := &fakeAPI{}
	store := newFakeStore()
	store.byToken["222:bot"] = storage.Bot{ID: 2, BotToken: "222:bot"}
	d := newTestDispatcher(api, store)

	if err := d.Handle(context.Background(), "222:bot", textUpdate(900, 900, "/start")); err != nil {
		t.Fatal(err)
	}
	if api.sent[0].Text != constructor.DefaultWelcome {
		t.Errorf("text = %q", api.sent[0].Text)
	}
}

func TestRelayPersistsAndAcks(t *testing.T) {
	api := &fakeAPI{}
	store := newFakeStore()
	store.byToken["222:bot"] = storage.Bot{ID: 2, BotToken: "222:bot"}
	d := newTestDispatcher(api, store)

	if err := d.Handle(context.Background(), "222:bot", textUpdate(900, 901, "need help")); err != nil {
		t.Fatal(err)
	}
	if len(store.appended) != 1 {
		t.Fatalf("appended = %d", len(store.appended))
	}
	m := store.appended[0]
	if m.BotID != 2 || m.ChatID != 901 || m.Username != "user" || m.MessageText != "need help" {
		t.Errorf("message = %+v", m)
	}
	if len(api.sent) != 1 || !strings.Contains(api.sent[0].Text, "forwarded") {
		t.Errorf("ack = %+v", api.sent)
	}
}

func TestRelayAckFailureStillSucceeds(t *testing.T) {
	api := &fakeAPI{sendErr: errors.New("blocked")}
	store := newFakeStore()
	store.byToken["222:bot"] = storage.Bot{ID: 2, BotToken: "222:bot"}
	d := newTestDispatcher(api, store)

	if err := d.Handle(context.Background(), "222:bot", textUpdate(900, 901, "hi")); err != nil {
		t.Fatalf("ack failure surfaced: %v", err)
	}
	if len(store.appended) != 1 {
		t.Errorf("message not persisted")
	}
}

func TestRelayUnknownToken(t *testing.T) {
	d := newTestDispatcher(&fakeAPI{}, newFakeStore())
	err := d.Handle(context.Background(), "999:nobody", textUpdate(900, 900, "hi"))
	if !errors.Is(err, ErrUnknownBot) {
		t.Fatalf("err = %v, want ErrUnknownBot", err)
	}
}

func TestRelayIgnoresNonTextUpdate(t *testing.T) {
	api := &fakeAPI{}
	store := newFakeStore()
	store.byToken["222:bot"] = storage.Bot{ID: 2, BotToken: "222:bot"}
	d := newTestDispatcher(api, store)

	upd := &tele.Update{ID: 9, Message: &tele.Message{Chat: &tele.Chat{ID: 1}}}
	if err := d.Handle(context.Background(), "222:bot", upd); err != nil {
		t.Fatal(err)
	}
	if len(api.sent) != 0 || len(store.appended) != 0 {
		t.Errorf("non-text update caused side effects")
	}
}

func TestCorruptStoredStateRecovers(t *testing.T) {
	api := &fakeAPI{}
	store := newFakeStore()
	store.states[50] = storage.ConversationRecord{TelegramUserID: 50, State: "waiting_reply", StateData: "{{{"}
	d := newTestDispatcher(api, store)

	if err := d.Handle(context.Background(), constructorToken, textUpdate(50, 50, "hello")); err != nil {
		t.Fatal(err)
	}
	// Corrupt reply draft decays to idle, so the text gets the /start hint
	// instead of being relayed anywhere.
	if store.states[50].State != "idle" {
		t.Errorf("state = %s", store.states[50].State)
	}
	if len(api.sent) != 1 || !strings.Contains(api.sent[0].Text, "/start") {
		t.Errorf("sent = %+v", api.sent)
	}
}
