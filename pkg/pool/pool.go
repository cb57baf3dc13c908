// Package pool picks the server a new meeting is started on.
package pool

import (
	"context"
	"errors"
	"fmt"

	"conference-balancer/pkg/models"
)

// ErrNoServerAvailable means no member of the pool is online. Starting a
// meeting must fail; the selector never retries.
var ErrNoServerAvailable = errors.New("no server available")

// Store is the part of the repository the selector reads.
type Store interface {
	GetPoolServers(ctx context.Context, poolID int64) ([]models.Server, error)
}

// LowestUsage returns the online server with the smallest load per unit of
// strength. Ties go to the server listed first.
func LowestUsage(servers []models.Server) (models.Server, bool) {
	var (
		best      models.Server
		bestScore float64
		found     bool
	)
	for _, srv := range servers {
		if !srv.IsOnline() || srv.Strength < 1 {
			continue
		}
		score := float64(srv.Load()) / float64(srv.Strength)
		if !found || score < bestScore {
			best, bestScore, found = srv, score, true
		}
	}
	return best, found
}

type Selector struct {
	store Store
}

func NewSelector(st Store) *Selector {
	return &Selector{store: st}
}

// Pick loads the members of the pool and returns the least loaded one.
func (s *Selector) Pick(ctx context.Context, poolID int64) (models.Server, error) {
	servers, err := s.store.GetPoolServers(ctx, poolID)
	if err != nil {
		return models.Server{}, fmt.Errorf("failed to get servers of pool %d: %w", poolID, err)
	}

	srv, ok := LowestUsage(servers)
	if !ok {
		return models.Server{}, fmt.Errorf("pool %d: %w", poolID, ErrNoServerAvailable)
	}
	return srv, nil
}
