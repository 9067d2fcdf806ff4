package application

import (
	"context"

	ledgerentities "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/domain/entities"
	escrowentities "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/domain/entities"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/entities"
	votingentities "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/domain/entities"
)

// Pool returns the pool aggregate.
func (s *Service) Pool(ctx context.Context, poolID string) (entities.Pool, error) {
	return s.loadPool(ctx, poolID)
}

// Candidates lists the pool's registered candidates.
func (s *Service) Candidates(ctx context.Context, poolID string) ([]entities.Candidate, error) {
	return s.Pools.ListCandidates(ctx, poolID)
}

// Standings returns the live ranked vote tallies.
func (s *Service) Standings(ctx context.Context, poolID string) ([]votingentities.CandidateTally, error) {
	return s.Tallies.Tallies(ctx, poolID)
}

// AllocationResult returns the immutable close result.
func (s *Service) AllocationResult(ctx context.Context, poolID string) (votingentities.AllocationResult, error) {
	return s.Tallies.AllocationResult(ctx, poolID)
}

// ContributorBalance returns the contributor's live net contribution.
func (s *Service) ContributorBalance(ctx context.Context, poolID string, contributor string) (int64, error) {
	return s.Ledger.Balance(ctx, poolID, contributor)
}

// LedgerEntries exposes the pool's append-only audit trail.
func (s *Service) LedgerEntries(ctx context.Context, poolID string) ([]ledgerentities.LedgerEntry, error) {
	return s.Ledger.Entries(ctx, poolID)
}

// PoolMilestones lists every milestone configured in the pool.
func (s *Service) PoolMilestones(ctx context.Context, poolID string) ([]escrowentities.Milestone, error) {
	return s.Escrow.PoolMilestones(ctx, poolID)
}

// CandidateSchedule lists one candidate's milestones in schedule order.
func (s *Service) CandidateSchedule(ctx context.Context, poolID string, candidateID string) ([]escrowentities.Milestone, error) {
	return s.Escrow.CandidateSchedule(ctx, poolID, candidateID)
}
