package service

import (
	"context"
	"fmt"

	"github.com/botjam/stage/internal/domain"
	"github.com/botjam/stage/internal/replay"
)

// IngestEvent validates and appends one timestamped event to a live run's
// timeline, then announces it to connected viewers. Callers may submit atMs
// values out of order; replay re-sorts, so no ordering lock is taken here.
func (s *Service) IngestEvent(ctx context.Context, sub domain.EventSubmission) (*domain.Event, error) {
	if sub.RunID < 1 {
		return nil, Validationf("Invalid runId")
	}
	run, err := s.store.GetRun(ctx, sub.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return nil, ErrNotFound
	}
	// A run that just finished must reject late events, not absorb them
	// into a closed timeline.
	if run.Status != domain.RunStatusLive {
		return nil, ErrNotLive
	}

	if sub.AtMs < 0 {
		return nil, Validationf("Invalid atMs")
	}
	ch, err := s.store.GetDailyChallenge(ctx, run.DailyChallengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	if ch != nil && ch.SongDurationMs != nil && sub.AtMs > *ch.SongDurationMs {
		return nil, Validationf("atMs exceeds song duration")
	}

	eventType := domain.ParseEventType(sub.Type)
	if eventType == "" {
		return nil, Validationf("Invalid event type")
	}
	if !domain.ValidOptional(sub.Text, domain.MaxEventText) {
		return nil, Validationf("Invalid text")
	}
	if !domain.ValidOptional(sub.Patch, domain.MaxEventPatch) {
		return nil, Validationf("Invalid patch")
	}
	if !domain.ValidOptional(sub.Cmd, domain.MaxEventCmd) {
		return nil, Validationf("Invalid cmd")
	}
	if !domain.ValidOptional(sub.Stdout, domain.MaxEventOutput) {
		return nil, Validationf("Invalid stdout")
	}
	if !domain.ValidOptional(sub.Stderr, domain.MaxEventOutput) {
		return nil, Validationf("Invalid stderr")
	}

	event, err := s.store.AppendEvent(ctx, &domain.Event{
		RunID:  sub.RunID,
		AtMs:   sub.AtMs,
		Type:   eventType,
		Text:   sub.Text,
		Patch:  sub.Patch,
		Cmd:    sub.Cmd,
		Stdout: sub.Stdout,
		Stderr: sub.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	s.broadcast(domain.StreamEvent, domain.EventData{RunID: event.RunID, Event: event})
	return event, nil
}

// ListEvents returns a page of a run's events in id order and the cursor for
// the next page (0 when exhausted).
func (s *Service) ListEvents(ctx context.Context, runID, cursor int64, limit int) ([]domain.Event, int64, error) {
	events, err := s.store.ListEvents(ctx, runID, cursor, limit+1)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list events: %w", err)
	}
	var nextCursor int64
	if len(events) > limit {
		events = events[:limit]
		nextCursor = events[len(events)-1].ID
	}
	return events, nextCursor, nil
}

// ReplayRun reconstructs the program text a viewer sees at atMs from the
// run's full event log.
func (s *Service) ReplayRun(ctx context.Context, runID, atMs int64) (*replay.Result, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return nil, ErrNotFound
	}
	events, err := s.store.ListEvents(ctx, runID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	result := replay.ToTime(events, atMs)
	return &result, nil
}
