package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/insight-router/backend/internal/storage/models"
)

// TurnRepository is the slice of the sqlite client the transcript store needs.
type TurnRepository interface {
	AppendTurns(ctx context.Context, turns []models.ConversationTurn) error
	GetTurns(ctx context.Context, conversationKey string) ([]models.ConversationTurn, error)
}

// SQLiteStore keeps transcripts as rows of the conversation_turns table. Each
// Append is a single transaction, so turns from one call are never split.
type SQLiteStore struct {
	repo TurnRepository
	now  func() time.Time
}

func NewSQLiteStore(repo TurnRepository) *SQLiteStore {
	return &SQLiteStore{repo: repo, now: time.Now}
}

func (s *SQLiteStore) Load(ctx context.Context, key string) ([]Turn, error) {
	rows, err := s.repo.GetTurns(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}

	turns := make([]Turn, 0, len(rows))
	for _, row := range rows {
		turns = append(turns, Turn{Role: Role(row.Role), Content: row.Content})
	}
	return turns, nil
}

func (s *SQLiteStore) Append(ctx context.Context, key string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}

	now := s.now()
	rows := make([]models.ConversationTurn, 0, len(turns))
	for _, t := range turns {
		rows = append(rows, models.ConversationTurn{
			ConversationKey: key,
			Role:            string(t.Role),
			Content:         t.Content,
			CreatedAt:       now,
		})
	}

	if err := s.repo.AppendTurns(ctx, rows); err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}
	return nil
}
