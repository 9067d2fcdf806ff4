package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/entities"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/errors"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/shared/outbox"

	"github.com/google/uuid"
)

type candidateKey struct {
	poolID      string
	candidateID string
}

type Store struct {
	mu sync.RWMutex

	pools      map[string]entities.Pool
	candidates map[candidateKey]entities.Candidate
	messages   []outbox.Message

	now *time.Time
}

func NewStore(seed []entities.Pool) *Store {
	pools := make(map[string]entities.Pool, len(seed))
	for _, pool := range seed {
		pools[pool.PoolID] = pool
	}
	return &Store{
		pools:      pools,
		candidates: make(map[candidateKey]entities.Candidate),
		messages:   make([]outbox.Message, 0),
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

func (s *Store) CreatePool(_ context.Context, pool entities.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pools[pool.PoolID]; exists {
		return domainerrors.ErrPoolExists
	}
	s.pools[pool.PoolID] = pool
	return nil
}

func (s *Store) GetPool(_ context.Context, poolID string) (entities.Pool, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool, ok := s.pools[strings.TrimSpace(poolID)]
	return pool, ok, nil
}

func (s *Store) SavePool(_ context.Context, pool entities.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pools[pool.PoolID]; !exists {
		return domainerrors.ErrPoolNotFound
	}
	s.pools[pool.PoolID] = pool
	return nil
}

func (s *Store) ListPoolsByStatus(_ context.Context, status entities.PoolStatus) ([]entities.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Pool, 0)
	for _, pool := range s.pools {
		if pool.Status == status {
			items = append(items, pool)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].PoolID < items[j].PoolID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *Store) RegisterCandidate(_ context.Context, candidate entities.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := candidateKey{poolID: candidate.PoolID, candidateID: candidate.CandidateID}
	if _, exists := s.candidates[key]; exists {
		return domainerrors.ErrCandidateExists
	}
	s.candidates[key] = candidate
	return nil
}

func (s *Store) GetCandidate(_ context.Context, poolID string, candidateID string) (entities.Candidate, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	candidate, ok := s.candidates[candidateKey{
		poolID:      strings.TrimSpace(poolID),
		candidateID: strings.TrimSpace(candidateID),
	}]
	return candidate, ok, nil
}

func (s *Store) ListCandidates(_ context.Context, poolID string) ([]entities.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Candidate, 0)
	for key, candidate := range s.candidates {
		if key.poolID == strings.TrimSpace(poolID) {
			items = append(items, candidate)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CandidateID < items[j].CandidateID
	})
	return items, nil
}

func (s *Store) AppendMessages(_ context.Context, messages []outbox.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, messages...)
	return nil
}

func (s *Store) ListPending(_ context.Context, limit int) ([]outbox.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]outbox.Message, 0)
	for _, message := range s.messages {
		if message.Status != outbox.StatusPending {
			continue
		}
		items = append(items, message)
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	return items, nil
}

func (s *Store) MarkPublished(_ context.Context, messageID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			published := at.UTC()
			s.messages[i].Status = outbox.StatusPublished
			s.messages[i].PublishedAt = &published
			return nil
		}
	}
	return nil
}

func (s *Store) MarkFailed(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].Status = outbox.StatusFailed
			s.messages[i].RetryCount++
			return nil
		}
	}
	return nil
}

type storeSnapshot struct {
	pools      map[string]entities.Pool
	candidates map[candidateKey]entities.Candidate
	messages   []outbox.Message
}

// Snapshot captures the store state for a unit of work. The clock is
// deliberately excluded.
func (s *Store) Snapshot() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := storeSnapshot{
		pools:      make(map[string]entities.Pool, len(s.pools)),
		candidates: make(map[candidateKey]entities.Candidate, len(s.candidates)),
		messages:   make([]outbox.Message, len(s.messages)),
	}
	for id, pool := range s.pools {
		snap.pools[id] = pool
	}
	for key, candidate := range s.candidates {
		snap.candidates[key] = candidate
	}
	copy(snap.messages, s.messages)
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
	s.pools = snap.pools
	s.candidates = snap.candidates
	s.messages = snap.messages
}

// Messages returns a snapshot of every outbox row, for tests and inspection.
func (s *Store) Messages() []outbox.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make([]outbox.Message, len(s.messages))
	copy(snapshot, s.messages)
	return snapshot
}
