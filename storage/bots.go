package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// BotStore manages the bots table. All single-bot reads and writes used by
// operator flows are owner scoped so one operator can never touch another's
// bots.
type BotStore struct {
	db *sqlx.DB
}

func NewBotStore(db *sqlx.DB) *BotStore {
	return &BotStore{db: db}
}

// ByToken looks up an active bot by its token. Inactive bots are invisible
// here so a disconnected bot stops receiving webhook traffic immediately.
func (s *BotStore) ByToken(ctx context.Context, token string) (Bot, bool, error) {
	var b Bot
	err := s.db.GetContext(ctx, &b,
		`SELECT id, owner_id, bot_token, bot_username, welcome_text, is_active, created_at, updated_at
		   FROM bots WHERE bot_token = $1 AND is_active = TRUE`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return Bot{}, false, nil
	}
	if err != nil {
		return Bot{}, false, fmt.Errorf("bot by token: %w", err)
	}
	return b, true, nil
}

// Upsert registers a bot token for an owner. Reconnecting a known token
// reactivates the bot and reassigns it to the new owner.
func (s *BotStore) Upsert(ctx context.Context, ownerID, token, username string) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		`INSERT INTO bots (owner_id, bot_token, bot_username, is_active)
		 VALUES ($1, $2, $3, TRUE)
		 ON CONFLICT (bot_token) DO UPDATE
		    SET owner_id = EXCLUDED.owner_id,
		        bot_username = EXCLUDED.bot_username,
		        is_active = TRUE,
		        updated_at = NOW()
		 RETURNING id`, ownerID, token, username)
	if err != nil {
		return 0, fmt.Errorf("upsert bot: %w", err)
	}
	return id, nil
}

// ByOwner lists the owner's active bots, newest first.
func (s *BotStore) ByOwner(ctx context.Context, ownerID string) ([]Bot, error) {
	var bots []Bot
	err := s.db.SelectContext(ctx, &bots,
		`SELECT id, owner_id, bot_token, bot_username, welcome_text, is_active, created_at, updated_at
		   FROM bots WHERE owner_id = $1 AND is_active = TRUE
		  ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("bots by owner: %w", err)
	}
	return bots, nil
}

// ByID fetches one of the owner's active bots.
func (s *BotStore) ByID(ctx context.Context, id int64, ownerID string) (Bot, bool, error) {
	var b Bot
	err := s.db.GetContext(ctx, &b,
		`SELECT id, owner_id, bot_token, bot_username, welcome_text, is_active, created_at, updated_at
		   FROM bots WHERE id = $1 AND owner_id = $2 AND is_active = TRUE`, id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return Bot{}, false, nil
	}
	if err != nil {
		return Bot{}, false, fmt.Errorf("bot by id: %w", err)
	}
	return b, true, nil
}

// SetWelcomeText updates the greeting for one of the owner's bots.
func (s *BotStore) SetWelcomeText(ctx context.Context, id int64, ownerID, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bots SET welcome_text = $1, updated_at = NOW()
		  WHERE id = $2 AND owner_id = $3`, text, id, ownerID)
	if err != nil {
		return fmt.Errorf("set welcome text: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Deactivate disconnects one of the owner's bots. The row stays so message
// history keeps its foreign keys.
func (s *BotStore) Deactivate(ctx context.Context, id int64, ownerID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bots SET is_active = FALSE, updated_at = NOW()
		  WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("deactivate bot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
