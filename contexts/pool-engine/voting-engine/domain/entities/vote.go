package entities

import "time"

// Vote is one voter's allocation preference for a candidate. Weight is the
// voter's live net contribution captured at cast time; an early withdrawal
// destroys the vote entirely instead of mutating the weight.
type Vote struct {
	VoteID      string
	PoolID      string
	Voter       string
	CandidateID string
	Weight      int64
	CastAt      time.Time
}

// CandidateTally aggregates live vote weight per candidate. FirstVoteAt is
// the deterministic tie-breaker at close.
type CandidateTally struct {
	CandidateID string
	VoteCount   int
	Weight      int64
	FirstVoteAt time.Time
}

// Allocation is one winner's share of the pool.
type Allocation struct {
	CandidateID string
	VoteWeight  int64
	PercentBps  int64
	Amount      int64
	Rank        int
}

// AllocationResult is produced exactly once, at voting close, and is
// immutable afterwards. Residual is the floor-rounding remainder that stays
// unallocated; it is tracked explicitly, never dropped.
type AllocationResult struct {
	PoolID           string
	TotalVotedWeight int64
	AllocationBase   int64
	Residual         int64
	Winners          []Allocation
	ClosedAt         time.Time
}

// WinnerAllocation returns the allocation for a candidate, if it won.
func (r AllocationResult) WinnerAllocation(candidateID string) (Allocation, bool) {
	for _, allocation := range r.Winners {
		if allocation.CandidateID == candidateID {
			return allocation, true
		}
	}
	return Allocation{}, false
}
