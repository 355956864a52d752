package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/botjam/stage/internal/domain"
	"github.com/botjam/stage/internal/song"
	store "github.com/botjam/stage/internal/repository"
)

// StartResult is the successful outcome of claiming the stage.
type StartResult struct {
	Run            *domain.Run
	DailyChallenge *domain.DailyChallenge
}

// StartRun atomically resolves today's challenge and creates a LIVE run
// holding the global live slot. Losing the slot race returns
// *LiveRunExistsError carrying the actual live run.
func (s *Service) StartRun(ctx context.Context, agentName string) (*StartResult, error) {
	today := song.TodayUTC()
	selection := song.ResolveForDate(today)
	now := time.Now().UTC()

	run, ch, err := s.store.CreateLiveRun(ctx, &domain.DailyChallenge{
		Date:           today,
		SongTitle:      selection.SongTitle,
		SongArtist:     selection.SongArtist,
		SongURL:        selection.SongURL,
		SongDurationMs: selection.SongDurationMs,
		Prompt:         selection.Prompt,
	}, agentName, now, now.UnixMilli())
	if errors.Is(err, store.ErrConflict) {
		liveRun, lookupErr := s.store.GetCurrentLiveRun(ctx)
		if lookupErr != nil {
			log.Printf("ERROR: failed to load current live run after conflict: %v", lookupErr)
		}
		return nil, &LiveRunExistsError{LiveRun: liveRun}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	s.broadcast(domain.StreamRun, domain.RunData{
		Action:         domain.RunActionStarted,
		Run:            run,
		DailyChallenge: ch,
	})
	return &StartResult{Run: run, DailyChallenge: ch}, nil
}

// FinishRun transitions a live run to FINISHED. A run that is already
// terminal (or unknown) reports ErrNotLive; the transition is never forced.
func (s *Service) FinishRun(ctx context.Context, runID int64, finalSummary *string) (*domain.Run, error) {
	affected, err := s.store.TransitionRun(ctx, runID, domain.RunStatusLive, domain.RunStatusFinished, time.Now().UTC(), finalSummary)
	if err != nil {
		return nil, fmt.Errorf("failed to finish run: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotLive
	}

	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run after finish: %w", err)
	}
	if run == nil {
		return nil, ErrNotFound
	}

	s.broadcast(domain.StreamRun, domain.RunData{Action: domain.RunActionFinished, Run: run})
	return run, nil
}

// FailRun transitions a live run to FAILED and synthesizes a terminal error
// event so the failure is visible on the timeline even though it was not
// agent-submitted. The event is stamped at the elapsed song time, clamped to
// the song duration when one is known.
func (s *Service) FailRun(ctx context.Context, runID int64, reason string) (*domain.Run, *domain.Event, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil || run.Status != domain.RunStatusLive {
		return nil, nil, ErrNotLive
	}

	atMs := time.Now().UnixMilli() - run.RunStartAtMs
	if atMs < 0 {
		atMs = 0
	}
	ch, err := s.store.GetDailyChallenge(ctx, run.DailyChallengeID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	if ch != nil && ch.SongDurationMs != nil && atMs > *ch.SongDurationMs {
		atMs = *ch.SongDurationMs
	}

	failed, event, err := s.store.FailLiveRun(ctx, runID, reason, atMs, time.Now().UTC())
	if errors.Is(err, store.ErrConflict) {
		return nil, nil, ErrNotLive
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fail run: %w", err)
	}

	s.broadcast(domain.StreamEvent, domain.EventData{RunID: failed.ID, Event: event})
	s.broadcast(domain.StreamRun, domain.RunData{Action: domain.RunActionFailed, Run: failed})
	return failed, event, nil
}

// CurrentLive returns the live run and its challenge, or nils when the
// stage is idle.
func (s *Service) CurrentLive(ctx context.Context) (*domain.Run, *domain.DailyChallenge, error) {
	run, err := s.store.GetCurrentLiveRun(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load live run: %w", err)
	}
	if run == nil {
		return nil, nil, nil
	}
	ch, err := s.store.GetDailyChallenge(ctx, run.DailyChallengeID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	return run, ch, nil
}

// GetRunDetail returns one run with its challenge and counts.
func (s *Service) GetRunDetail(ctx context.Context, runID int64) (*domain.RunWithChallenge, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return nil, ErrNotFound
	}
	ch, err := s.store.GetDailyChallenge(ctx, run.DailyChallengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	counts, err := s.store.RunCounts(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load counts: %w", err)
	}
	return &domain.RunWithChallenge{Run: *run, DailyChallenge: ch, Counts: counts}, nil
}

// ListRuns returns the archive feed page and the cursor for the next one
// (0 when exhausted).
func (s *Service) ListRuns(ctx context.Context, cursor int64, limit int) ([]domain.RunWithChallenge, int64, error) {
	runs, err := s.store.ListRuns(ctx, cursor, limit+1)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	var nextCursor int64
	if len(runs) > limit {
		runs = runs[:limit]
		nextCursor = runs[len(runs)-1].ID
	}
	return runs, nextCursor, nil
}
