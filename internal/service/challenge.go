package service

import (
	"context"
	"fmt"

	"github.com/botjam/stage/internal/domain"
	"github.com/botjam/stage/internal/song"
)

// EnsureTodayChallenge resolves today's song and prompt and upserts the
// challenge row, so every caller observes the same challenge for the day.
func (s *Service) EnsureTodayChallenge(ctx context.Context) (*domain.DailyChallenge, error) {
	today := song.TodayUTC()
	selection := song.ResolveForDate(today)

	ch, err := s.store.UpsertDailyChallenge(ctx, &domain.DailyChallenge{
		Date:           today,
		SongTitle:      selection.SongTitle,
		SongArtist:     selection.SongArtist,
		SongURL:        selection.SongURL,
		SongDurationMs: selection.SongDurationMs,
		Prompt:         selection.Prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure today's challenge: %w", err)
	}
	return ch, nil
}
