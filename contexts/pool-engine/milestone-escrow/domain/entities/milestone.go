package entities

import "time"

// Milestone is a tranche of a winning candidate's allocation. Funds for a
// milestone stay in escrow until the milestone collects its approval quorum
// and the lifecycle controller releases the tranche.
type Milestone struct {
	MilestoneID       string
	PoolID            string
	CandidateID       string
	Index             int
	Description       string
	FundingPercentBps int64
	Deadline          *time.Time
	EvidenceURI       string
	ApprovalsNeeded   int
	ApprovalCount     int
	Completed         bool
	Disputed          bool
	Abandoned         bool
	ReleasedAmount    int64
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Resolved reports whether the milestone no longer holds escrowed funds
// hostage: it either paid out or was abandoned.
func (m Milestone) Resolved() bool {
	return m.Completed || m.Abandoned
}

// Approval records one contributor's sign-off on a milestone. A contributor
// approves a given milestone at most once.
type Approval struct {
	ApprovalID  string
	MilestoneID string
	PoolID      string
	Approver    string
	ApprovedAt  time.Time
}

// ReleaseOutcome is returned by the release operation so the caller can emit
// events and detect when a candidate's schedule finished paying out.
type ReleaseOutcome struct {
	Milestone     Milestone
	Amount        int64
	CandidateDone bool
}
