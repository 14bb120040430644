package constructor

import (
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/pr-poehali-dev/telegram-feedback-bot/core/telegram/format"
	"github.com/pr-poehali-dev/telegram-feedback-bot/core/telegram/keyboard"
	"github.com/pr-poehali-dev/telegram-feedback-bot/storage"
)

const (
	textWelcome = "🤖 <b>Welcome to Bot Constructor!</b>\n\n" +
		"Connect your own Telegram bots and receive their messages right here.\n\n" +
		"Choose an action:"

	textCreateInstructions = "📝 <b>Creating a bot</b>\n\n" +
		"<b>Step 1:</b> Open @BotFather\n" +
		"<b>Step 2:</b> Send /newbot and follow the instructions\n" +
		"<b>Step 3:</b> Copy the token and send it to me\n\n" +
		"Waiting for your token…"

	textTokenNotToken   = "❌ That does not look like a token. Try again or send /start to cancel."
	textTokenRejected   = "❌ Invalid token. Check it and try again."
	textNoBots          = "You have no connected bots yet."
	textYourBots        = "🤖 <b>Your bots:</b>"
	textAskWelcome      = "Send the new welcome text:"
	textWelcomeUpdated  = "✅ Welcome text updated!"
	textBotDisconnected = "✅ Bot disconnected"
	textNoMessages      = "No incoming messages yet."
	textAskReply        = "Type your reply:"
	textReplySent       = "✅ Reply sent!"
	textMainMenu        = "Main menu:"
	textStartHint       = "Send /start to begin."

	// DefaultWelcome greets end users of a connected bot when the owner has
	// not set a welcome text.
	DefaultWelcome = "Hi! Write me a message and I will forward it to the owner."

	// RelayAck confirms to an end user that their message reached the owner.
	RelayAck = "✅ Thanks! Your message was forwarded to the owner."

	// ReplyPrefix heads every owner reply relayed back to an end user.
	ReplyPrefix = "📩 Reply from owner:\n\n"

	inboxLimit = 10

	// Longest message text rendered in an inbox item; sendMessage caps the
	// whole payload at 4096 characters.
	inboxTextLimit = 1000
)

func mainMenuKeyboard() *tele.ReplyMarkup {
	return keyboard.Column(
		keyboard.Btn{Text: "🤖 Create a bot", Data: VerbCreateBot},
		keyboard.Btn{Text: "⚙️ My bots", Data: VerbMyBots},
		keyboard.Btn{Text: "💬 Inbox", Data: VerbMessages},
	)
}

func botListKeyboard(bots []storage.Bot) *tele.ReplyMarkup {
	buttons := make([]keyboard.Btn, 0, len(bots)+1)
	for _, b := range bots {
		buttons = append(buttons, keyboard.Btn{Text: "@" + b.BotUsername, Data: BotData(b.ID)})
	}
	buttons = append(buttons, keyboard.Btn{Text: "◀️ Back", Data: VerbMainMenu})
	return keyboard.Column(buttons...)
}

func botDetailKeyboard(botID int64) *tele.ReplyMarkup {
	return keyboard.Column(
		keyboard.Btn{Text: "⚙️ Edit welcome", Data: EditWelcomeData(botID)},
		keyboard.Btn{Text: "🔌 Disconnect", Data: DisconnectData(botID)},
		keyboard.Btn{Text: "◀️ Back", Data: VerbMyBots},
	)
}

func tokenConnectedText(username string) string {
	return fmt.Sprintf("🎉 <b>Bot @%s is connected!</b>\n\n"+
		"Messages sent to it will be forwarded here. Open 💬 Inbox to read and reply.",
		format.EscapeHTML(username))
}

func botDetailText(b storage.Bot) string {
	return fmt.Sprintf("Bot @%s", format.EscapeHTML(b.BotUsername))
}

func inboxItemText(item storage.InboxItem) string {
	display := item.FirstName
	if item.Username != "" {
		display = "@" + item.Username
	}
	return fmt.Sprintf("💬 <b>Message from %s</b>\n📍 Bot: @%s\n\n%s",
		format.EscapeHTML(display),
		format.EscapeHTML(item.BotUsername),
		format.EscapeHTML(format.Truncate(item.MessageText, inboxTextLimit)))
}

func inboxItemKeyboard(item storage.InboxItem) *tele.ReplyMarkup {
	return keyboard.Column(keyboard.Btn{Text: "↩️ Reply", Data: ReplyData(item.ID, item.ChatID)})
}
