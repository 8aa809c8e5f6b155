package accounts

import (
	"context"
	"log/slog"

	"github.com/stafflane/stafflane/internal/platform/cache"
)

// Service handles actor profile reads. Mutations to permission overrides
// never go through here; they belong to the permissions orchestrator.
type Service struct {
	repo   RepositoryPort
	cache  *cache.Store
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, store *cache.Store, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: store, logger: logger}
}

// GetUser returns one actor profile.
func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetUser(ctx, id)
}

// ListUsers returns every actor profile, read through the all-actors
// aggregate cache key. Cache failures fall back to the store.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	if s.cache != nil {
		var cached []User
		ok, err := s.cache.GetJSON(ctx, cache.AllActorsKey, &cached)
		if err != nil {
			s.logger.Warn("accounts list cache read", slog.Any("error", err))
		} else if ok {
			return cached, nil
		}
	}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cache.AllActorsKey, users, 0); err != nil {
			s.logger.Warn("accounts list cache populate", slog.Any("error", err))
		}
	}
	return users, nil
}
