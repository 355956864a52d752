package service

import (
	"context"
	"fmt"

	"github.com/botjam/stage/internal/domain"
)

// AddComment validates and stores a viewer comment on a run.
func (s *Service) AddComment(ctx context.Context, runID int64, req domain.CommentRequest) (*domain.Comment, error) {
	name := domain.TrimAndValidate(req.Name, domain.MaxCommentName)
	if name == "" {
		return nil, Validationf("Invalid name")
	}
	text := domain.TrimAndValidate(req.Text, domain.MaxCommentText)
	if text == "" {
		return nil, Validationf("Invalid text")
	}

	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return nil, ErrNotFound
	}

	comment, err := s.store.CreateComment(ctx, runID, name, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	return comment, nil
}

// ListComments returns all of a run's comments in id order.
func (s *Service) ListComments(ctx context.Context, runID int64) ([]domain.Comment, error) {
	comments, err := s.store.ListComments(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}

// LikeRun records a like for a run. Repeat likes from the same (source, name)
// pair are absorbed: the existing like is returned with duplicate set.
func (s *Service) LikeRun(ctx context.Context, runID int64, req domain.LikeRequest) (*domain.Like, bool, error) {
	name := domain.TrimAndValidate(req.Name, domain.MaxLikeName)
	if name == "" {
		return nil, false, Validationf("Invalid name")
	}
	source := domain.ParseLikeSource(req.Source)
	if source == "" {
		return nil, false, Validationf("Invalid source")
	}

	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return nil, false, ErrNotFound
	}

	like, duplicate, err := s.store.UpsertLike(ctx, runID, name, source)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record like: %w", err)
	}
	return like, duplicate, nil
}

// ListLikes returns all likes for a run in id order.
func (s *Service) ListLikes(ctx context.Context, runID int64) ([]domain.Like, error) {
	likes, err := s.store.ListLikes(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list likes: %w", err)
	}
	return likes, nil
}
