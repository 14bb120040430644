package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ConversationStore persists operator conversation state keyed by the
// operator's Telegram user id.
type ConversationStore struct {
	db *sqlx.DB
}

func NewConversationStore(db *sqlx.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// Load returns the stored state for a user. A missing row means the user
// has no conversation yet; callers treat that as the idle state.
func (s *ConversationStore) Load(ctx context.Context, userID int64) (ConversationRecord, bool, error) {
	var rec ConversationRecord
	err := s.db.GetContext(ctx, &rec,
		`SELECT telegram_user_id, telegram_username, state, state_data, updated_at
		   FROM bot_constructor_users WHERE telegram_user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ConversationRecord{}, false, nil
	}
	if err != nil {
		return ConversationRecord{}, false, fmt.Errorf("load conversation: %w", err)
	}
	return rec, true, nil
}

// Save upserts the state for a user. The upsert is atomic, so concurrent
// webhook deliveries for one user settle on last-writer-wins.
func (s *ConversationStore) Save(ctx context.Context, userID int64, username, state, stateData string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_constructor_users (telegram_user_id, telegram_username, state, state_data)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (telegram_user_id) DO UPDATE
		    SET telegram_username = EXCLUDED.telegram_username,
		        state = EXCLUDED.state,
		        state_data = EXCLUDED.state_data,
		        updated_at = NOW()`, userID, username, state, stateData)
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}
