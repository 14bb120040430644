// Package storage holds the Postgres persistence layer for connected bots,
// relayed messages, and per-operator conversation state.
package storage

import (
	"database/sql"
	"time"
)

// Bot is a third-party bot registered with the constructor.
type Bot struct {
	ID          int64          `db:"id"`
	OwnerID     string         `db:"owner_id"`
	BotToken    string         `db:"bot_token"`
	BotUsername string         `db:"bot_username"`
	WelcomeText sql.NullString `db:"welcome_text"`
	IsActive    bool           `db:"is_active"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// Message is an end-user message relayed through a connected bot.
type Message struct {
	ID          int64     `db:"id"`
	BotID       int64     `db:"bot_id"`
	ChatID      int64     `db:"chat_id"`
	Username    string    `db:"username"`
	FirstName   string    `db:"first_name"`
	LastName    string    `db:"last_name"`
	MessageText string    `db:"message_text"`
	CreatedAt   time.Time `db:"created_at"`
}

// InboxItem is a message joined with its bot for the operator inbox view.
type InboxItem struct {
	ID          int64     `db:"id"`
	ChatID      int64     `db:"chat_id"`
	Username    string    `db:"username"`
	FirstName   string    `db:"first_name"`
	MessageText string    `db:"message_text"`
	CreatedAt   time.Time `db:"created_at"`
	BotUsername string    `db:"bot_username"`
}

// ConversationRecord is a persisted conversation state row.
type ConversationRecord struct {
	TelegramUserID   int64     `db:"telegram_user_id"`
	TelegramUsername string    `db:"telegram_username"`
	State            string    `db:"state"`
	StateData        string    `db:"state_data"`
	UpdatedAt        time.Time `db:"updated_at"`
}
