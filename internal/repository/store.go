package store

import (
	"context"
	"errors"
	"time"

	"github.com/botjam/stage/internal/domain"
)

// ErrConflict signals a storage uniqueness constraint violation or a
// conditional update that matched zero rows. Callers branch on it; it is
// never fatal. Lookups that find nothing return (nil, nil).
var ErrConflict = errors.New("conflict")

// Store is the durable storage collaborator. Every mutual-exclusion
// invariant (single live run, one like per (run, source, name), unique token
// hash) is enforced by the store's own uniqueness constraints, surfaced as
// ErrConflict.
type Store interface {
	// Challenges
	UpsertDailyChallenge(ctx context.Context, ch *domain.DailyChallenge) (*domain.DailyChallenge, error)
	GetDailyChallenge(ctx context.Context, id int64) (*domain.DailyChallenge, error)

	// Runs
	CreateLiveRun(ctx context.Context, ch *domain.DailyChallenge, agentName string, startedAt time.Time, runStartAtMs int64) (*domain.Run, *domain.DailyChallenge, error)
	GetRun(ctx context.Context, runID int64) (*domain.Run, error)
	GetCurrentLiveRun(ctx context.Context) (*domain.Run, error)
	TransitionRun(ctx context.Context, runID int64, from, to domain.RunStatus, endedAt time.Time, finalSummary *string) (int64, error)
	FailLiveRun(ctx context.Context, runID int64, reason string, atMs int64, endedAt time.Time) (*domain.Run, *domain.Event, error)
	ListRuns(ctx context.Context, cursor int64, limit int) ([]domain.RunWithChallenge, error)
	RunCounts(ctx context.Context, runID int64) (*domain.RunCounts, error)

	// Events
	AppendEvent(ctx context.Context, event *domain.Event) (*domain.Event, error)
	ListEvents(ctx context.Context, runID int64, sinceID int64, limit int) ([]domain.Event, error)

	// Social
	CreateComment(ctx context.Context, runID int64, name, text string) (*domain.Comment, error)
	ListComments(ctx context.Context, runID int64) ([]domain.Comment, error)
	UpsertLike(ctx context.Context, runID int64, name string, source domain.LikeSource) (*domain.Like, bool, error)
	ListLikes(ctx context.Context, runID int64) ([]domain.Like, error)

	// Tokens
	CreateAgentToken(ctx context.Context, agentName, tokenHash string) error
	GetAgentTokenByHash(ctx context.Context, tokenHash string) (*domain.AgentToken, error)
	TouchAgentToken(ctx context.Context, tokenHash string, usedAt time.Time) error

	Close() error
}
