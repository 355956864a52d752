package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/botjam/stage/internal/auth"
	"github.com/botjam/stage/internal/domain"
	store "github.com/botjam/stage/internal/repository"
)

const tokenMintAttempts = 3

// RegisterAgent mints a bearer token for an agent and stores its hash. The
// plaintext token is returned exactly once and never persisted.
func (s *Service) RegisterAgent(ctx context.Context, req domain.RegisterRequest) (string, error) {
	agentName := domain.TrimAndValidate(req.AgentName, domain.MaxAgentName)
	if agentName == "" {
		return "", Validationf("Invalid agentName")
	}

	for attempt := 0; attempt < tokenMintAttempts; attempt++ {
		token, err := auth.NewToken()
		if err != nil {
			return "", fmt.Errorf("failed to mint token: %w", err)
		}
		err = s.store.CreateAgentToken(ctx, agentName, auth.HashToken(token))
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to store token: %w", err)
		}
		return token, nil
	}
	return "", fmt.Errorf("failed to mint a unique token after %d attempts", tokenMintAttempts)
}

// Authenticate resolves a bearer token to its agent record. Unknown or
// missing tokens report ErrUnauthorized without distinguishing the two.
func (s *Service) Authenticate(ctx context.Context, authorization string) (*domain.AgentToken, error) {
	token := auth.ParseBearer(authorization)
	if token == "" {
		return nil, ErrUnauthorized
	}
	hash := auth.HashToken(token)
	record, err := s.store.GetAgentTokenByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}
	if record == nil {
		return nil, ErrUnauthorized
	}
	if err := s.store.TouchAgentToken(ctx, hash, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to touch token: %w", err)
	}
	return record, nil
}
