package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/domain/entities"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/domain/errors"

	"github.com/google/uuid"
)

type Store struct {
	mu sync.RWMutex

	milestones map[string]entities.Milestone
	approvals  []entities.Approval

	now *time.Time
}

func NewStore(seed []entities.Milestone) *Store {
	milestones := make(map[string]entities.Milestone, len(seed))
	for _, milestone := range seed {
		milestones[milestone.MilestoneID] = milestone
	}
	return &Store{
		milestones: milestones,
		approvals:  make([]entities.Approval, 0),
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

func (s *Store) SaveSchedule(_ context.Context, milestones []entities.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, milestone := range milestones {
		if _, exists := s.milestones[milestone.MilestoneID]; exists {
			return domainerrors.ErrAlreadyConfigured
		}
	}
	for _, milestone := range milestones {
		s.milestones[milestone.MilestoneID] = milestone
	}
	return nil
}

func (s *Store) GetMilestone(_ context.Context, milestoneID string) (entities.Milestone, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	milestone, ok := s.milestones[strings.TrimSpace(milestoneID)]
	return milestone, ok, nil
}

func (s *Store) ListMilestonesByCandidate(_ context.Context, poolID string, candidateID string) ([]entities.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Milestone, 0)
	for _, milestone := range s.milestones {
		if milestone.PoolID == strings.TrimSpace(poolID) && milestone.CandidateID == strings.TrimSpace(candidateID) {
			items = append(items, milestone)
		}
	}
	sortMilestonesByIndex(items)
	return items, nil
}

func (s *Store) ListMilestonesByPool(_ context.Context, poolID string) ([]entities.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Milestone, 0)
	for _, milestone := range s.milestones {
		if milestone.PoolID == strings.TrimSpace(poolID) {
			items = append(items, milestone)
		}
	}
	sortMilestonesByIndex(items)
	return items, nil
}

func (s *Store) SaveMilestone(_ context.Context, milestone entities.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.milestones[milestone.MilestoneID]; !exists {
		return domainerrors.ErrMilestoneNotFound
	}
	s.milestones[milestone.MilestoneID] = milestone
	return nil
}

func (s *Store) SaveApproval(_ context.Context, approval entities.Approval) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	milestone, exists := s.milestones[approval.MilestoneID]
	if !exists {
		return false, domainerrors.ErrMilestoneNotFound
	}
	for _, existing := range s.approvals {
		if existing.MilestoneID == approval.MilestoneID && existing.Approver == approval.Approver {
			return false, nil
		}
	}
	s.approvals = append(s.approvals, approval)
	milestone.ApprovalCount++
	milestone.UpdatedAt = approval.ApprovedAt
	s.milestones[approval.MilestoneID] = milestone
	return true, nil
}

func (s *Store) ListApprovalsByMilestone(_ context.Context, milestoneID string) ([]entities.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Approval, 0)
	for _, approval := range s.approvals {
		if approval.MilestoneID == strings.TrimSpace(milestoneID) {
			items = append(items, approval)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ApprovedAt.Before(items[j].ApprovedAt)
	})
	return items, nil
}

type storeSnapshot struct {
	milestones map[string]entities.Milestone
	approvals  []entities.Approval
}

// Snapshot captures the store state for a unit of work.
func (s *Store) Snapshot() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := storeSnapshot{
		milestones: make(map[string]entities.Milestone, len(s.milestones)),
		approvals:  make([]entities.Approval, len(s.approvals)),
	}
	for id, milestone := range s.milestones {
		snap.milestones[id] = milestone
	}
	copy(snap.approvals, s.approvals)
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
	s.milestones = snap.milestones
	s.approvals = snap.approvals
}

func sortMilestonesByIndex(items []entities.Milestone) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CandidateID != items[j].CandidateID {
			return items[i].CandidateID < items[j].CandidateID
		}
		return items[i].Index < items[j].Index
	})
}
