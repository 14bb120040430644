// Package webhook receives Telegram updates for every registered token and
// routes them either into the constructor conversation or the relay path of
// a connected bot.
package webhook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/pr-poehali-dev/telegram-feedback-bot/constructor"
	"github.com/pr-poehali-dev/telegram-feedback-bot/core/logger"
	"github.com/pr-poehali-dev/telegram-feedback-bot/core/telegram"
	"github.com/pr-poehali-dev/telegram-feedback-bot/storage"
)

// ErrUnknownBot marks an update for a token no active bot owns.
var ErrUnknownBot = errors.New("unknown bot token")

// APIClient is the slice of the Bot API the dispatcher needs.
type APIClient interface {
	SendMessage(ctx context.Context, token string, chatID int64, text string, opts *telegram.SendOptions) error
	SetWebhook(ctx context.Context, token, url string) error
	DeleteWebhook(ctx context.Context, token string, dropPending bool) error
	AnswerCallbackQuery(ctx context.Context, token, callbackID string) error
}

// BotWriter is the write side of the bots table driven by machine actions.
type BotWriter interface {
	ByToken(ctx context.Context, token string) (storage.Bot, bool, error)
	Upsert(ctx context.Context, ownerID, token, username string) (int64, error)
	SetWelcomeText(ctx context.Context, id int64, ownerID, text string) error
	Deactivate(ctx context.Context, id int64, ownerID string) error
}

// ConversationStore persists operator conversation state between updates.
type ConversationStore interface {
	Load(ctx context.Context, userID int64) (storage.ConversationRecord, bool, error)
	Save(ctx context.Context, userID int64, username, state, stateData string) error
}

// MessageAppender records relayed end-user messages.
type MessageAppender interface {
	Append(ctx context.Context, m storage.Message) (int64, error)
}

// Dispatcher routes one update per call. Updates for the constructor token
// run the state machine; updates for any other token are relayed to the
// owning operator's inbox.
type Dispatcher struct {
	constructorToken string
	webhookBase      string
	api              APIClient
	machine          *constructor.Machine
	bots             BotWriter
	convos           ConversationStore
	messages         MessageAppender
}

func NewDispatcher(
	constructorToken, webhookBase string,
	api APIClient,
	machine *constructor.Machine,
	bots BotWriter,
	convos ConversationStore,
	messages MessageAppender,
) *Dispatcher {
	return &Dispatcher{
		constructorToken: constructorToken,
		webhookBase:      webhookBase,
		api:              api,
		machine:          machine,
		bots:             bots,
		convos:           convos,
		messages:         messages,
	}
}

// WebhookURL builds the per-bot webhook callback URL.
func (d *Dispatcher) WebhookURL(token string) string {
	return d.webhookBase + "?bot_token=" + token
}

// Handle processes one update addressed to token. Updates that carry
// nothing actionable are dropped without error so Telegram gets a 200 and
// stops retrying them.
func (d *Dispatcher) Handle(ctx context.Context, token string, upd *tele.Update) error {
	ctx = logger.WithUpdateMeta(ctx, upd.ID, senderOf(upd), chatOf(upd))

	if token == d.constructorToken {
		return d.handleConstructor(ctx, upd)
	}
	return d.handleRelay(ctx, token, upd)
}

func (d *Dispatcher) handleConstructor(ctx context.Context, upd *tele.Update) error {
	ev, ok := eventFromUpdate(upd)
	if !ok {
		logger.Debug(ctx, "web", "update ignored", slog.String("cause", "no actionable payload"))
		return nil
	}

	// The spinner stops even when the press is ultimately dropped.
	if cb, isCB := ev.(constructor.CallbackEvent); isCB {
		if err := d.api.AnswerCallbackQuery(ctx, d.constructorToken, cb.ID); err != nil {
			logger.Warn(ctx, "web", "answer callback failed", slog.Any("err", err))
		}
	}

	userID, username := eventSender(ev)
	st, err := d.loadState(ctx, userID)
	if err != nil {
		return err
	}

	next, actions, err := d.machine.Transition(ctx, st, ev)
	if err != nil {
		return fmt.Errorf("transition: %w", err)
	}

	// Mutations run first and abort the whole update on failure so the
	// stored state never gets ahead of the data it refers to.
	var sends []constructor.Action
	for _, act := range actions {
		if isSend(act) {
			sends = append(sends, act)
			continue
		}
		if err := d.applyMutation(ctx, act); err != nil {
			// Zero rows from an owner-scoped write means the bot changed
			// hands between the prompt and the commit. Same treatment as
			// any other ownership miss: drop the rest silently.
			if errors.Is(err, sql.ErrNoRows) {
				logger.Debug(ctx, "web", "mutation skipped", slog.String("cause", "not owned"))
				sends = nil
				break
			}
			return err
		}
	}

	tag, data := constructor.EncodeState(next)
	if err := d.convos.Save(ctx, userID, username, tag, data); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	for _, act := range sends {
		d.deliver(ctx, act)
	}
	return nil
}

func (d *Dispatcher) handleRelay(ctx context.Context, token string, upd *tele.Update) error {
	bot, found, err := d.bots.ByToken(ctx, token)
	if err != nil {
		return err
	}
	if !found {
		return ErrUnknownBot
	}

	msg := upd.Message
	if msg == nil || msg.Sender == nil || msg.Chat == nil || msg.Text == "" {
		return nil
	}

	if msg.Text == "/start" {
		welcome := bot.WelcomeText.String
		if !bot.WelcomeText.Valid || welcome == "" {
			welcome = constructor.DefaultWelcome
		}
		if err := d.api.SendMessage(ctx, token, msg.Chat.ID, welcome, nil); err != nil {
			logger.Warn(ctx, "web", "welcome send failed",
				slog.Int64("bot_id", bot.ID), slog.Any("err", err))
		}
		return nil
	}

	msgID, err := d.messages.Append(ctx, storage.Message{
		BotID:       bot.ID,
		ChatID:      msg.Chat.ID,
		Username:    msg.Sender.Username,
		FirstName:   msg.Sender.FirstName,
		LastName:    msg.Sender.LastName,
		MessageText: msg.Text,
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, "web", "message relayed",
		slog.Int64("bot_id", bot.ID), slog.Int64("message_id", msgID),
		slog.String("payload", logger.SanitizeLimit(msg.Text, 128)))

	if err := d.api.SendMessage(ctx, token, msg.Chat.ID, constructor.RelayAck, nil); err != nil {
		logger.Warn(ctx, "web", "relay ack failed",
			slog.Int64("bot_id", bot.ID), slog.Any("err", err))
	}
	return nil
}

func (d *Dispatcher) loadState(ctx context.Context, userID int64) (constructor.State, error) {
	rec, found, err := d.convos.Load(ctx, userID)
	if err != nil {
		return constructor.State{}, fmt.Errorf("load state: %w", err)
	}
	if !found {
		return constructor.Idle(), nil
	}
	return constructor.DecodeState(rec.State, rec.StateData), nil
}

func (d *Dispatcher) applyMutation(ctx context.Context, act constructor.Action) error {
	switch a := act.(type) {
	case constructor.UpsertBot:
		if _, err := d.bots.Upsert(ctx, a.OwnerID, a.Token, a.Username); err != nil {
			return err
		}
	case constructor.RegisterWebhook:
		if err := d.api.SetWebhook(ctx, a.Token, d.WebhookURL(a.Token)); err != nil {
			return fmt.Errorf("register webhook: %w", err)
		}
	case constructor.SetWelcomeText:
		if err := d.bots.SetWelcomeText(ctx, a.BotID, a.OwnerID, a.Text); err != nil {
			return err
		}
	case constructor.DeactivateBot:
		if err := d.bots.Deactivate(ctx, a.BotID, a.OwnerID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unexpected mutation %T", act)
	}
	return nil
}

// deliver pushes one outbound message. Delivery failures are logged and
// swallowed; the transition already committed.
func (d *Dispatcher) deliver(ctx context.Context, act constructor.Action) {
	var err error
	switch a := act.(type) {
	case constructor.SendMessage:
		opts := &telegram.SendOptions{ParseMode: "HTML", ReplyMarkup: a.Keyboard}
		err = d.api.SendMessage(ctx, d.constructorToken, a.ChatID, a.Text, opts)
	case constructor.SendAs:
		err = d.api.SendMessage(ctx, a.Token, a.ChatID, a.Text, nil)
	case constructor.DropWebhook:
		err = d.api.DeleteWebhook(ctx, a.Token, true)
	}
	if err != nil {
		logger.Warn(ctx, "web", "delivery failed", slog.Any("err", err))
	}
}

// isSend classifies the best-effort actions: they run after the state is
// committed and their failure is only logged.
func isSend(act constructor.Action) bool {
	switch act.(type) {
	case constructor.SendMessage, constructor.SendAs, constructor.DropWebhook:
		return true
	}
	return false
}

func eventFromUpdate(upd *tele.Update) (constructor.Event, bool) {
	if cb := upd.Callback; cb != nil && cb.Sender != nil && cb.Message != nil && cb.Message.Chat != nil {
		return constructor.CallbackEvent{
			ID:       cb.ID,
			ChatID:   cb.Message.Chat.ID,
			UserID:   cb.Sender.ID,
			Username: cb.Sender.Username,
			Data:     cb.Data,
		}, true
	}
	if msg := upd.Message; msg != nil && msg.Sender != nil && msg.Chat != nil && msg.Text != "" {
		return constructor.TextEvent{
			ChatID:   msg.Chat.ID,
			UserID:   msg.Sender.ID,
			Username: msg.Sender.Username,
			Text:     msg.Text,
		}, true
	}
	return nil, false
}

func eventSender(ev constructor.Event) (int64, string) {
	switch e := ev.(type) {
	case constructor.TextEvent:
		return e.UserID, e.Username
	case constructor.CallbackEvent:
		return e.UserID, e.Username
	}
	return 0, ""
}

func senderOf(upd *tele.Update) int64 {
	if upd.Callback != nil && upd.Callback.Sender != nil {
		return upd.Callback.Sender.ID
	}
	if upd.Message != nil && upd.Message.Sender != nil {
		return upd.Message.Sender.ID
	}
	return 0
}

func chatOf(upd *tele.Update) int64 {
	if upd.Callback != nil && upd.Callback.Message != nil && upd.Callback.Message.Chat != nil {
		return upd.Callback.Message.Chat.ID
	}
	if upd.Message != nil && upd.Message.Chat != nil {
		return upd.Message.Chat.ID
	}
	return 0
}
