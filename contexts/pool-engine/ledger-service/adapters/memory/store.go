package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/domain/entities"

	"github.com/google/uuid"
)

// Store is the in-memory ledger used by tests and in-process wiring. It
// doubles as Clock and IDGenerator like the other memory adapters.
type Store struct {
	mu sync.RWMutex

	contributions map[string]entities.Contribution
	entries       []entities.LedgerEntry

	now *time.Time
}

func NewStore(seed []entities.Contribution) *Store {
	contributions := make(map[string]entities.Contribution, len(seed))
	for _, contribution := range seed {
		contributions[contribution.ContributionID] = contribution
	}
	return &Store{
		contributions: contributions,
		entries:       make([]entities.LedgerEntry, 0),
	}
}

// SetNow pins the store clock for deterministic tests.
func (s *Store) SetNow(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pinned := now.UTC()
	s.now = &pinned
}

func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.now != nil {
		return *s.now
	}
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) RecordContribution(
	_ context.Context,
	contribution entities.Contribution,
	entries []entities.LedgerEntry,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contributions[strings.TrimSpace(contribution.ContributionID)] = contribution
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *Store) WithdrawContributions(
	_ context.Context,
	poolID string,
	contributor string,
	at time.Time,
	entries []entities.LedgerEntry,
) ([]entities.Contribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	poolID = strings.TrimSpace(poolID)
	contributor = strings.TrimSpace(contributor)
	withdrawn := make([]entities.Contribution, 0)
	withdrawnAt := at.UTC()
	for id, contribution := range s.contributions {
		if contribution.PoolID != poolID || contribution.Contributor != contributor || contribution.Withdrawn {
			continue
		}
		contribution.Withdrawn = true
		contribution.WithdrawnAt = &withdrawnAt
		contribution.UpdatedAt = withdrawnAt
		s.contributions[id] = contribution
		withdrawn = append(withdrawn, contribution)
	}
	s.entries = append(s.entries, entries...)
	sortContributionsByCreation(withdrawn)
	return withdrawn, nil
}

func (s *Store) AppendEntries(_ context.Context, entries []entities.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *Store) ListContributionsByPool(_ context.Context, poolID string) ([]entities.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Contribution, 0)
	for _, contribution := range s.contributions {
		if contribution.PoolID == strings.TrimSpace(poolID) {
			items = append(items, contribution)
		}
	}
	sortContributionsByCreation(items)
	return items, nil
}

func (s *Store) ListContributionsByContributor(
	_ context.Context,
	poolID string,
	contributor string,
) ([]entities.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Contribution, 0)
	for _, contribution := range s.contributions {
		if contribution.PoolID == strings.TrimSpace(poolID) &&
			contribution.Contributor == strings.TrimSpace(contributor) {
			items = append(items, contribution)
		}
	}
	sortContributionsByCreation(items)
	return items, nil
}

func (s *Store) ListEntriesByPool(_ context.Context, poolID string) ([]entities.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.LedgerEntry, 0)
	for _, entry := range s.entries {
		if entry.PoolID == strings.TrimSpace(poolID) {
			items = append(items, entry)
		}
	}
	return items, nil
}

type storeSnapshot struct {
	contributions map[string]entities.Contribution
	entries       []entities.LedgerEntry
}

// Snapshot captures the store state for a unit of work.
func (s *Store) Snapshot() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := storeSnapshot{
		contributions: make(map[string]entities.Contribution, len(s.contributions)),
		entries:       make([]entities.LedgerEntry, len(s.entries)),
	}
	for id, contribution := range s.contributions {
		snap.contributions[id] = contribution
	}
	copy(snap.entries, s.entries)
	return snap
}

// Restore rolls the store back to a state captured by Snapshot.
func (s *Store) Restore(snapshot any) {
	snap, ok := snapshot.(storeSnapshot)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contributions = snap.contributions
	s.entries = snap.entries
}

func sortContributionsByCreation(items []entities.Contribution) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ContributionID < items[j].ContributionID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
