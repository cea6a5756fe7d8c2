package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matchdaybot/matchday/internal/matchday/chat"
)

// UpsertChat records or updates the type of a chat room.
func (s *Store) UpsertChat(ctx context.Context, chatID string, chatType chat.Type) error {
	if !chatType.Valid() {
		return fmt.Errorf("store: invalid chat type %q", chatType)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (chat_id, chat_type, added_at)
		VALUES (?, ?, ?)
		ON CONFLICT (chat_id) DO UPDATE SET chat_type = excluded.chat_type
	`, chatID, string(chatType), time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert chat: %w", err)
	}
	return nil
}

// ResolveChatType looks up the registered type of a chat room. Unregistered
// rooms yield chat.ErrUnknownChat; messages from them are rejected upstream
// rather than guessed at.
func (s *Store) ResolveChatType(ctx context.Context, chatID string) (chat.Type, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT chat_type FROM chats WHERE chat_id = ?
	`, chatID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.TypeUnknown, fmt.Errorf("chat %s: %w", chatID, chat.ErrUnknownChat)
	}
	if err != nil {
		return chat.TypeUnknown, fmt.Errorf("failed to resolve chat type: %w", err)
	}

	t := chat.ParseType(raw)
	if !t.Valid() {
		return chat.TypeUnknown, fmt.Errorf("chat %s has corrupt type %q: %w", chatID, raw, chat.ErrUnknownChat)
	}
	return t, nil
}
