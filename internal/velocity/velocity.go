// Package velocity provides transaction velocity calculation.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/amlguard/amlguard/internal/domain"
)

// Counts holds recent-transaction counts for the parties of one
// transaction, attached to the evaluation document under "velocity".
type Counts struct {
	Customer int64 `json:"customer"`
	Account  int64 `json:"account"`
}

// Service calculates transaction velocity for customers and accounts.
// With a cache it maintains windowed counters; otherwise it counts from
// the repository.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new velocity service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// Observe records one transaction and returns the updated counts within
// the window. Counter increments happen in the cache when available so
// velocity rules do not hit the database per transaction.
func (s *Service) Observe(ctx context.Context, tx *domain.Transaction, window time.Duration) (Counts, error) {
	if window <= 0 {
		window = time.Hour
	}

	if s.cache != nil {
		return s.observeCached(ctx, tx, window)
	}
	return s.countFromRepo(ctx, tx, window)
}

func (s *Service) observeCached(ctx context.Context, tx *domain.Transaction, window time.Duration) (Counts, error) {
	var counts Counts

	if tx.CustomerID != "" {
		n, err := s.cache.IncrementCounter(ctx, "velocity:customer:"+tx.CustomerID, window)
		if err != nil {
			return counts, fmt.Errorf("customer velocity counter: %w", err)
		}
		counts.Customer = n
	}

	if tx.FromAccountID != "" {
		n, err := s.cache.IncrementCounter(ctx, "velocity:account:"+tx.FromAccountID, window)
		if err != nil {
			return counts, fmt.Errorf("account velocity counter: %w", err)
		}
		counts.Account = n
	}

	return counts, nil
}

func (s *Service) countFromRepo(ctx context.Context, tx *domain.Transaction, window time.Duration) (Counts, error) {
	var counts Counts
	if s.repo == nil {
		return counts, fmt.Errorf("no data source available")
	}

	since := time.Now().Add(-window)

	if tx.CustomerID != "" {
		n, err := s.repo.CountTransactionsByCustomer(ctx, tx.CustomerID, since)
		if err != nil {
			return counts, fmt.Errorf("count customer transactions: %w", err)
		}
		counts.Customer = n
	}

	if tx.FromAccountID != "" {
		n, err := s.repo.CountTransactionsByAccount(ctx, tx.FromAccountID, since)
		if err != nil {
			return counts, fmt.Errorf("count account transactions: %w", err)
		}
		counts.Account = n
	}

	return counts, nil
}
