package constructor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/pr-poehali-dev/telegram-feedback-bot/core/telegram"
	"github.com/pr-poehali-dev/telegram-feedback-bot/storage"
)

// Event is an update addressed to the constructor bot.
type Event interface{ isEvent() }

// TextEvent is a plain text message from an operator.
type TextEvent struct {
	ChatID   int64
	UserID   int64
	Username string
	Text     string
}

// CallbackEvent is an inline button press.
type CallbackEvent struct {
	ID       string
	ChatID   int64
	UserID   int64
	Username string
	Data     string
}

func (TextEvent) isEvent()     {}
func (CallbackEvent) isEvent() {}

// Action is a side effect the dispatcher must run after a transition.
type Action interface{ isAction() }

// SendMessage delivers text to the operator through the constructor bot.
type SendMessage struct {
	ChatID   int64
	Text     string
	Keyboard *tele.ReplyMarkup
}

// SendAs delivers text to an end user through a connected bot's token.
type SendAs struct {
	Token  string
	ChatID int64
	Text   string
}

// UpsertBot registers a verified token for the owner.
type UpsertBot struct {
	OwnerID  string
	Token    string
	Username string
}

// RegisterWebhook points a connected bot at the webhook endpoint.
type RegisterWebhook struct {
	Token string
}

// DropWebhook detaches a disconnected bot from the webhook endpoint.
// Best effort: the bot is already inactive, so leftover deliveries are
// rejected either way.
type DropWebhook struct {
	Token string
}

// SetWelcomeText stores a new greeting for one of the owner's bots.
type SetWelcomeText struct {
	BotID   int64
	OwnerID string
	Text    string
}

// DeactivateBot disconnects one of the owner's bots.
type DeactivateBot struct {
	BotID   int64
	OwnerID string
}

func (SendMessage) isAction()     {}
func (SendAs) isAction()          {}
func (UpsertBot) isAction()       {}
func (RegisterWebhook) isAction() {}
func (DropWebhook) isAction()     {}
func (SetWelcomeText) isAction()  {}
func (DeactivateBot) isAction()   {}

// BotRegistry is the read side of the bots table used by transitions.
type BotRegistry interface {
	ByOwner(ctx context.Context, ownerID string) ([]storage.Bot, error)
	ByID(ctx context.Context, id int64, ownerID string) (storage.Bot, bool, error)
}

// MessageReader is the read side of the messages table used by transitions.
type MessageReader interface {
	RecentForOwner(ctx context.Context, ownerID string, limit int) ([]storage.InboxItem, error)
	BotTokenForMessage(ctx context.Context, messageID int64, ownerID string) (string, bool, error)
}

// TokenVerifier checks a candidate token against the Bot API.
type TokenVerifier interface {
	GetMe(ctx context.Context, token string) (telegram.BotIdentity, error)
}

// Machine decides transitions for the operator conversation. It performs
// reads through its dependencies but never writes; mutations come back as
// actions so the dispatcher controls ordering and failure handling.
type Machine struct {
	bots     BotRegistry
	messages MessageReader
	verifier TokenVerifier
}

func NewMachine(bots BotRegistry, messages MessageReader, verifier TokenVerifier) *Machine {
	return &Machine{bots: bots, messages: messages, verifier: verifier}
}

// OwnerID is the string form of an operator's Telegram user id used as the
// tenant key in storage.
func OwnerID(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// Transition applies one event to the current state and returns the next
// state plus the side effects to run. A returned error means a dependency
// failed; the caller keeps the old state.
func (m *Machine) Transition(ctx context.Context, st State, ev Event) (State, []Action, error) {
	switch e := ev.(type) {
	case TextEvent:
		return m.onText(ctx, st, e)
	case CallbackEvent:
		return m.onCallback(ctx, st, e)
	default:
		return st, nil, nil
	}
}

func (m *Machine) onText(ctx context.Context, st State, e TextEvent) (State, []Action, error) {
	// /start resets the conversation from any state.
	if strings.TrimSpace(e.Text) == "/start" {
		return Idle(), []Action{SendMessage{ChatID: e.ChatID, Text: textWelcome, Keyboard: mainMenuKeyboard()}}, nil
	}

	switch st.Tag {
	case TagWaitingBotToken:
		return m.onTokenSubmitted(ctx, e)

	case TagWaitingWelcome:
		acts := []Action{
			SetWelcomeText{BotID: st.Welcome.BotID, OwnerID: OwnerID(e.UserID), Text: e.Text},
			SendMessage{ChatID: e.ChatID, Text: textWelcomeUpdated, Keyboard: mainMenuKeyboard()},
		}
		return Idle(), acts, nil

	case TagWaitingReply:
		acts := []Action{
			SendAs{Token: st.Reply.BotToken, ChatID: st.Reply.ChatID, Text: ReplyPrefix + e.Text},
			SendMessage{ChatID: e.ChatID, Text: textReplySent, Keyboard: mainMenuKeyboard()},
		}
		return Idle(), acts, nil

	default:
		return st, []Action{SendMessage{ChatID: e.ChatID, Text: textStartHint}}, nil
	}
}

func (m *Machine) onTokenSubmitted(ctx context.Context, e TextEvent) (State, []Action, error) {
	token := strings.TrimSpace(e.Text)
	if len(token) < 10 || !strings.Contains(token, ":") {
		return State{Tag: TagWaitingBotToken},
			[]Action{SendMessage{ChatID: e.ChatID, Text: textTokenNotToken}}, nil
	}

	identity, err := m.verifier.GetMe(ctx, token)
	if err != nil {
		var apiErr *telegram.APIError
		if errors.As(err, &apiErr) {
			return State{Tag: TagWaitingBotToken},
				[]Action{SendMessage{ChatID: e.ChatID, Text: textTokenRejected}}, nil
		}
		return State{Tag: TagWaitingBotToken}, nil, fmt.Errorf("verify token: %w", err)
	}

	acts := []Action{
		UpsertBot{OwnerID: OwnerID(e.UserID), Token: token, Username: identity.Username},
		RegisterWebhook{Token: token},
		SendMessage{ChatID: e.ChatID, Text: tokenConnectedText(identity.Username), Keyboard: mainMenuKeyboard()},
	}
	return Idle(), acts, nil
}

// Callbacks only act in the idle state; a press while the machine waits for
// text would race the pending input, so it is dropped.
func (m *Machine) onCallback(ctx context.Context, st State, e CallbackEvent) (State, []Action, error) {
	if st.Tag != TagIdle {
		return st, nil, nil
	}
	cb, ok := ParseCallback(e.Data)
	if !ok {
		return st, nil, nil
	}
	owner := OwnerID(e.UserID)

	switch cb.Verb {
	case VerbCreateBot:
		return State{Tag: TagWaitingBotToken},
			[]Action{SendMessage{ChatID: e.ChatID, Text: textCreateInstructions}}, nil

	case VerbMyBots:
		bots, err := m.bots.ByOwner(ctx, owner)
		if err != nil {
			return st, nil, err
		}
		if len(bots) == 0 {
			return st, []Action{SendMessage{ChatID: e.ChatID, Text: textNoBots, Keyboard: mainMenuKeyboard()}}, nil
		}
		return st, []Action{SendMessage{ChatID: e.ChatID, Text: textYourBots, Keyboard: botListKeyboard(bots)}}, nil

	case VerbBot:
		bot, found, err := m.bots.ByID(ctx, cb.BotID, owner)
		if err != nil {
			return st, nil, err
		}
		if !found {
			return st, nil, nil
		}
		return st, []Action{SendMessage{ChatID: e.ChatID, Text: botDetailText(bot), Keyboard: botDetailKeyboard(bot.ID)}}, nil

	case VerbEditWelcome:
		_, found, err := m.bots.ByID(ctx, cb.BotID, owner)
		if err != nil {
			return st, nil, err
		}
		if !found {
			return st, nil, nil
		}
		next := State{Tag: TagWaitingWelcome, Welcome: &WelcomeDraft{BotID: cb.BotID}}
		return next, []Action{SendMessage{ChatID: e.ChatID, Text: textAskWelcome}}, nil

	case VerbDisconnect:
		bot, found, err := m.bots.ByID(ctx, cb.BotID, owner)
		if err != nil {
			return st, nil, err
		}
		if !found {
			return st, nil, nil
		}
		acts := []Action{
			DeactivateBot{BotID: cb.BotID, OwnerID: owner},
			DropWebhook{Token: bot.BotToken},
			SendMessage{ChatID: e.ChatID, Text: textBotDisconnected, Keyboard: mainMenuKeyboard()},
		}
		return st, acts, nil

	case VerbMessages:
		items, err := m.messages.RecentForOwner(ctx, owner, inboxLimit)
		if err != nil {
			return st, nil, err
		}
		if len(items) == 0 {
			return st, []Action{SendMessage{ChatID: e.ChatID, Text: textNoMessages, Keyboard: mainMenuKeyboard()}}, nil
		}
		acts := make([]Action, 0, len(items)+1)
		for _, item := range items {
			acts = append(acts, SendMessage{ChatID: e.ChatID, Text: inboxItemText(item), Keyboard: inboxItemKeyboard(item)})
		}
		acts = append(acts, SendMessage{ChatID: e.ChatID, Text: textMainMenu, Keyboard: mainMenuKeyboard()})
		return st, acts, nil

	case VerbReply:
		token, found, err := m.messages.BotTokenForMessage(ctx, cb.MessageID, owner)
		if err != nil {
			return st, nil, err
		}
		if !found {
			return st, nil, nil
		}
		next := State{Tag: TagWaitingReply, Reply: &ReplyDraft{
			MessageID: cb.MessageID,
			ChatID:    cb.ChatID,
			BotToken:  token,
		}}
		return next, []Action{SendMessage{ChatID: e.ChatID, Text: textAskReply}}, nil

	case VerbMainMenu:
		return st, []Action{SendMessage{ChatID: e.ChatID, Text: textMainMenu, Keyboard: mainMenuKeyboard()}}, nil
	}

	return st, nil, nil
}
