// Package service implements the stage's business logic: run lifecycle,
// event ingestion, the daily challenge, and social annotations.
package service

import (
	"errors"
	"fmt"

	"github.com/botjam/stage/config"
	"github.com/botjam/stage/internal/domain"
	"github.com/botjam/stage/internal/hub"
	store "github.com/botjam/stage/internal/repository"
)

var (
	// ErrNotFound marks an unknown run id. Terminal for the request only.
	ErrNotFound = errors.New("run not found")
	// ErrNotLive marks an operation against a run that is not (or no
	// longer) live. An expected race, surfaced as a conflict.
	ErrNotLive = errors.New("run is not live or missing")
	// ErrUnauthorized marks a missing or unknown bearer token.
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError is a request rejected at the boundary before reaching the
// core engines.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

// Validationf builds a ValidationError.
func Validationf(format string, args ...interface{}) ValidationError {
	return ValidationError(fmt.Sprintf(format, args...))
}

// LiveRunExistsError is returned when a start attempt loses the race for the
// live slot. It carries the winner so callers can react instead of treating
// the loss as opaque failure.
type LiveRunExistsError struct {
	LiveRun *domain.Run
}

func (e *LiveRunExistsError) Error() string { return "a live run already exists" }

// Service wires the storage collaborator and broadcast hub together.
type Service struct {
	store store.Store
	hub   *hub.Hub
	cfg   *config.Config
}

// New creates a Service.
func New(st store.Store, h *hub.Hub, cfg *config.Config) *Service {
	return &Service{store: st, hub: h, cfg: cfg}
}

func (s *Service) broadcast(event string, data interface{}) {
	if s.hub != nil {
		s.hub.Broadcast(hub.Message{Event: event, Data: data})
	}
}
