package service

import (
	"context"
	"errors"
	"testing"

	"github.com/botjam/stage/config"
	"github.com/botjam/stage/internal/domain"
	"github.com/botjam/stage/internal/hub"
	store "github.com/botjam/stage/internal/repository"
)

func newTestService(t *testing.T) (*Service, *hub.Hub) {
	t.Helper()
	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	liveHub := hub.New()
	return New(db, liveHub, &config.Config{}), liveHub
}

func TestStartRunClaimsStage(t *testing.T) {
	ctx := context.Background()
	svc, liveHub := newTestService(t)
	viewer := liveHub.AddClient()

	result, err := svc.StartRun(ctx, "demo-agent")
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if result.Run.Status != domain.RunStatusLive || result.Run.AgentName != "demo-agent" {
		t.Fatalf("unexpected run: %+v", result.Run)
	}
	if result.DailyChallenge == nil || result.DailyChallenge.SongTitle == "" {
		t.Fatalf("unexpected challenge: %+v", result.DailyChallenge)
	}

	frame := <-viewer.Frames
	if frame.Event != domain.StreamRun {
		t.Fatalf("expected run message, got %q", frame.Event)
	}
}

func TestStartRunConflictCarriesWinner(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	winner, err := svc.StartRun(ctx, "first")
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	_, err = svc.StartRun(ctx, "second")
	var liveErr *LiveRunExistsError
	if !errors.As(err, &liveErr) {
		t.Fatalf("expected LiveRunExistsError, got %v", err)
	}
	if liveErr.LiveRun == nil || liveErr.LiveRun.ID != winner.Run.ID {
		t.Fatalf("conflict does not carry the live run: %+v", liveErr.LiveRun)
	}
}

func TestFinishRunLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	started, err := svc.StartRun(ctx, "agent")
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	summary := "shipped a visualizer"
	run, err := svc.FinishRun(ctx, started.Run.ID, &summary)
	if err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}
	if run.Status != domain.RunStatusFinished || run.EndedAt == nil {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.FinalSummary == nil || *run.FinalSummary != summary {
		t.Fatalf("summary not stored: %+v", run.FinalSummary)
	}

	// Finishing again is a conflict, not an overwrite.
	if _, err := svc.FinishRun(ctx, started.Run.ID, nil); !errors.Is(err, ErrNotLive) {
		t.Fatalf("expected ErrNotLive, got %v", err)
	}
	unchanged, err := svc.GetRunDetail(ctx, started.Run.ID)
	if err != nil {
		t.Fatalf("GetRunDetail failed: %v", err)
	}
	if unchanged.FinalSummary == nil || *unchanged.FinalSummary != summary {
		t.Fatalf("conflicting finish mutated the run: %+v", unchanged.FinalSummary)
	}

	// The stage is free for the next performer.
	if _, err := svc.StartRun(ctx, "next"); err != nil {
		t.Fatalf("StartRun after finish failed: %v", err)
	}
}

func TestFinishUnknownRun(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if _, err := svc.FinishRun(ctx, 999, nil); !errors.Is(err, ErrNotLive) {
		t.Fatalf("expected ErrNotLive, got %v", err)
	}
}

func TestFailRunSynthesizesErrorEvent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	started, err := svc.StartRun(ctx, "agent")
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	run, event, err := svc.FailRun(ctx, started.Run.ID, "sandbox crashed")
	if err != nil {
		t.Fatalf("FailRun failed: %v", err)
	}
	if run.Status != domain.RunStatusFailed {
		t.Fatalf("unexpected status: %s", run.Status)
	}
	if event.Type != domain.EventTypeError || event.Text == nil || *event.Text != "sandbox crashed" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.AtMs < 0 {
		t.Fatalf("negative atMs: %d", event.AtMs)
	}

	if _, _, err := svc.FailRun(ctx, started.Run.ID, "again"); !errors.Is(err, ErrNotLive) {
		t.Fatalf("expected ErrNotLive, got %v", err)
	}
}

func TestCurrentLiveIdleStage(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	run, ch, err := svc.CurrentLive(ctx)
	if err != nil {
		t.Fatalf("CurrentLive failed: %v", err)
	}
	if run != nil || ch != nil {
		t.Fatalf("expected idle stage, got %+v %+v", run, ch)
	}
}

func TestGetRunDetailNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if _, err := svc.GetRunDetail(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRunsPagination(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	for i := 0; i < 3; i++ {
		started, err := svc.StartRun(ctx, "agent")
		if err != nil {
			t.Fatalf("StartRun failed: %v", err)
		}
		if _, err := svc.FinishRun(ctx, started.Run.ID, nil); err != nil {
			t.Fatalf("FinishRun failed: %v", err)
		}
	}

	page, next, err := svc.ListRuns(ctx, 0, 2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(page) != 2 || next == 0 {
		t.Fatalf("unexpected page: len=%d next=%d", len(page), next)
	}
	if page[0].ID < page[1].ID {
		t.Fatalf("feed not newest-first: %+v", page)
	}

	rest, next, err := svc.ListRuns(ctx, next, 2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(rest) != 1 || next != 0 {
		t.Fatalf("unexpected final page: len=%d next=%d", len(rest), next)
	}
}
