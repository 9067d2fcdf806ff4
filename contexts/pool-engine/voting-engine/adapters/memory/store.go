package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/domain/entities"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/domain/errors"

	"github.com/google/uuid"
)

type Store struct {
	mu sync.RWMutex

	votes       map[string]entities.Vote
	allocations map[string]entities.AllocationResult

	now *time.Time
}

func NewStore(seed []entities.Vote) *Store {
	votes := make(map[string]entities.Vote, len(seed))
	for _, vote := range seed {
		votes[vote.VoteID] = vote
	}
	return &Store{
		votes:       votes,
		allocations: make(map[string]entities.AllocationResult),
	}
}

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

func (s *Store) SaveVote(_ context.Context, vote entities.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[strings.TrimSpace(vote.VoteID)] = vote
	return nil
}

func (s *Store) GetVoteByVoterCandidate(
	_ context.Context,
	poolID string,
	voter string,
	candidateID string,
) (entities.Vote, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, vote := range s.votes {
		if vote.PoolID == strings.TrimSpace(poolID) &&
			vote.Voter == strings.TrimSpace(voter) &&
			vote.CandidateID == strings.TrimSpace(candidateID) {
			return vote, true, nil
		}
	}
	return entities.Vote{}, false, nil
}

func (s *Store) ListVotesByVoter(_ context.Context, poolID string, voter string) ([]entities.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Vote, 0)
	for _, vote := range s.votes {
		if vote.PoolID == strings.TrimSpace(poolID) && vote.Voter == strings.TrimSpace(voter) {
			items = append(items, vote)
		}
	}
	sortVotesByCast(items)
	return items, nil
}

func (s *Store) ListVotesByPool(_ context.Context, poolID string) ([]entities.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Vote, 0)
	for _, vote := range s.votes {
		if vote.PoolID == strings.TrimSpace(poolID) {
			items = append(items, vote)
		}
	}
	sortVotesByCast(items)
	return items, nil
}

func (s *Store) ReplaceVote(_ context.Context, oldVoteID string, replacement entities.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.votes[strings.TrimSpace(oldVoteID)]; !ok {
		return domainerrors.ErrVoteNotFound
	}
	delete(s.votes, strings.TrimSpace(oldVoteID))
	s.votes[strings.TrimSpace(replacement.VoteID)] = replacement
	return nil
}

func (s *Store) ClearVotesByVoter(_ context.Context, poolID string, voter string) ([]entities.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cleared := make([]entities.Vote, 0)
	for id, vote := range s.votes {
		if vote.PoolID == strings.TrimSpace(poolID) && vote.Voter == strings.TrimSpace(voter) {
			cleared = append(cleared, vote)
			delete(s.votes, id)
		}
	}
	sortVotesByCast(cleared)
	return cleared, nil
}

func (s *Store) SaveAllocationResult(_ context.Context, result entities.AllocationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.allocations[result.PoolID]; exists {
		return domainerrors.ErrAlreadyClosed
	}
	s.allocations[result.PoolID] = result
	return nil
}

func (s *Store) GetAllocationResult(_ context.Context, poolID string) (entities.AllocationResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.allocations[strings.TrimSpace(poolID)]
	return result, ok, nil
}

type storeSnapshot struct {
	votes       map[string]entities.Vote
	allocations map[string]entities.AllocationResult
}

// Snapshot captures the store state for a unit of work.
func (s *Store) Snapshot() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := storeSnapshot{
		votes:       make(map[string]entities.Vote, len(s.votes)),
		allocations: make(map[string]entities.AllocationResult, len(s.allocations)),
	}
	for id, vote := range s.votes {
		snap.votes[id] = vote
	}
	for poolID, result := range s.allocations {
		snap.allocations[poolID] = result
	}
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
	s.votes = snap.votes
	s.allocations = snap.allocations
}

func sortVotesByCast(items []entities.Vote) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CastAt.Equal(items[j].CastAt) {
			return items[i].VoteID < items[j].VoteID
		}
		return items[i].CastAt.Before(items[j].CastAt)
	})
}
