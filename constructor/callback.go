package constructor

import (
	"strconv"
	"strings"
)

// Callback verbs carried in inline button callback_data.
const (
	VerbCreateBot   = "create_bot"
	VerbMyBots      = "my_bots"
	VerbBot         = "bot"
	VerbEditWelcome = "edit_welcome"
	VerbDisconnect  = "disconnect"
	VerbMessages    = "messages"
	VerbReply       = "reply"
	VerbMainMenu    = "main_menu"
)

// Callback is a parsed callback_data payload.
type Callback struct {
	Verb      string
	BotID     int64
	MessageID int64
	ChatID    int64
}

// ParseCallback decodes callback_data into a typed callback. Unknown verbs
// and malformed numeric parts return ok=false and are ignored upstream.
func ParseCallback(data string) (Callback, bool) {
	switch data {
	case VerbCreateBot:
		return Callback{Verb: VerbCreateBot}, true
	case VerbMyBots:
		return Callback{Verb: VerbMyBots}, true
	case VerbMessages:
		return Callback{Verb: VerbMessages}, true
	case VerbMainMenu:
		return Callback{Verb: VerbMainMenu}, true
	}

	parts := strings.Split(data, "_")
	switch {
	case len(parts) == 2 && parts[0] == "bot":
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return Callback{}, false
		}
		return Callback{Verb: VerbBot, BotID: id}, true

	case len(parts) == 3 && parts[0] == "edit" && parts[1] == "welcome":
		id, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return Callback{}, false
		}
		return Callback{Verb: VerbEditWelcome, BotID: id}, true

	case len(parts) == 2 && parts[0] == "disconnect":
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return Callback{}, false
		}
		return Callback{Verb: VerbDisconnect, BotID: id}, true

	case len(parts) == 3 && parts[0] == "reply":
		msgID, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return Callback{}, false
		}
		chatID, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return Callback{}, false
		}
		return Callback{Verb: VerbReply, MessageID: msgID, ChatID: chatID}, true
	}

	return Callback{}, false
}

// Callback data builders paired with ParseCallback.

func BotData(id int64) string { return "bot_" + strconv.FormatInt(id, 10) }

func EditWelcomeData(id int64) string { return "edit_welcome_" + strconv.FormatInt(id, 10) }

func DisconnectData(id int64) string { return "disconnect_" + strconv.FormatInt(id, 10) }

func ReplyData(messageID, chatID int64) string {
	return "reply_" + strconv.FormatInt(messageID, 10) + "_" + strconv.FormatInt(chatID, 10)
}
