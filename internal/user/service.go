package user

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const profileTTL = 5 * time.Minute

type DataProvider interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Service resolves user references for the subscription core. Profiles are
// cached shortly since recipients repeat across fan-outs.
type Service struct {
	repo  DataProvider
	cache *cache
}

func NewService(r DataProvider) *Service {
	return &Service{
		repo:  r,
		cache: newCache(profileTTL),
	}
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	if u, ok := s.cache.get(id); ok {
		return u, nil
	}

	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache.set(u)

	return u, nil
}

func (s *Service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	if _, ok := s.cache.get(id); ok {
		return true, nil
	}

	return s.repo.Exists(ctx, id)
}
