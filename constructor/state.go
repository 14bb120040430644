// Package constructor implements the operator-facing conversation flow:
// connecting bot tokens, editing welcome texts, browsing the inbox, and
// replying to end users. The state machine itself performs no I/O; it reads
// through injected interfaces and returns the side effects to run.
package constructor

import "encoding/json"

// Conversation state tags as stored in bot_constructor_users.state.
const (
	TagIdle            = "idle"
	TagWaitingBotToken = "waiting_bot_token"
	TagWaitingWelcome  = "waiting_welcome_text"
	TagWaitingReply    = "waiting_reply"
)

// WelcomeDraft is the payload carried while the operator types a new
// welcome text.
type WelcomeDraft struct {
	BotID int64 `json:"bot_id"`
}

// ReplyDraft is the payload carried while the operator types a reply to an
// end-user message.
type ReplyDraft struct {
	MessageID int64  `json:"message_id"`
	ChatID    int64  `json:"chat_id"`
	BotToken  string `json:"bot_token"`
}

// State is the operator's conversation state. Exactly one payload pointer
// is set, matching the tag; Idle and WaitingBotToken carry none.
type State struct {
	Tag     string
	Welcome *WelcomeDraft
	Reply   *ReplyDraft
}

func Idle() State { return State{Tag: TagIdle} }

// EncodeState serializes a state for persistence.
func EncodeState(st State) (tag string, data string) {
	var payload any
	switch st.Tag {
	case TagWaitingWelcome:
		payload = st.Welcome
	case TagWaitingReply:
		payload = st.Reply
	}
	if payload == nil {
		return st.Tag, "{}"
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return st.Tag, "{}"
	}
	return st.Tag, string(buf)
}

// DecodeState restores a state from its stored form. Unknown tags and
// corrupt payloads fall back to idle so a bad row never wedges a user.
func DecodeState(tag, data string) State {
	switch tag {
	case TagWaitingBotToken:
		return State{Tag: TagWaitingBotToken}
	case TagWaitingWelcome:
		var d WelcomeDraft
		if err := json.Unmarshal([]byte(data), &d); err != nil || d.BotID == 0 {
			return Idle()
		}
		return State{Tag: TagWaitingWelcome, Welcome: &d}
	case TagWaitingReply:
		var d ReplyDraft
		if err := json.Unmarshal([]byte(data), &d); err != nil || d.ChatID == 0 || d.BotToken == "" {
			return Idle()
		}
		return State{Tag: TagWaitingReply, Reply: &d}
	default:
		return Idle()
	}
}
