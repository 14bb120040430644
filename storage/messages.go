package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// MessageStore manages relayed end-user messages.
type MessageStore struct {
	db *sqlx.DB
}

func NewMessageStore(db *sqlx.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Append records an incoming end-user message.
func (s *MessageStore) Append(ctx context.Context, m Message) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		`INSERT INTO messages (bot_id, chat_id, username, first_name, last_name, message_text)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`, m.BotID, m.ChatID, m.Username, m.FirstName, m.LastName, m.MessageText)
	if err != nil {
		return 0, fmt.Errorf("append message: %w", err)
	}
	return id, nil
}

// RecentForOwner returns the newest messages across all of the owner's
// active bots, joined with the bot username for display.
func (s *MessageStore) RecentForOwner(ctx context.Context, ownerID string, limit int) ([]InboxItem, error) {
	var items []InboxItem
	err := s.db.SelectContext(ctx, &items,
		`SELECT m.id, m.chat_id, m.username, m.first_name, m.message_text, m.created_at, b.bot_username
		   FROM messages m
		   JOIN bots b ON b.id = m.bot_id
		  WHERE b.owner_id = $1 AND b.is_active = TRUE
		  ORDER BY m.created_at DESC
		  LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	return items, nil
}

// BotTokenForMessage resolves the token of the bot a message arrived
// through, scoped to the owner so replies cannot cross tenants.
func (s *MessageStore) BotTokenForMessage(ctx context.Context, messageID int64, ownerID string) (string, bool, error) {
	var token string
	err := s.db.GetContext(ctx, &token,
		`SELECT b.bot_token
		   FROM messages m
		   JOIN bots b ON b.id = m.bot_id
		  WHERE m.id = $1 AND b.owner_id = $2`, messageID, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("token for message: %w", err)
	}
	return token, true, nil
}
