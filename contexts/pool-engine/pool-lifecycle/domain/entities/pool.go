package entities

import "time"

// PoolStatus is the lifecycle state machine. Transitions only move forward:
// inactive -> active -> voting_ended -> funded -> closed, with failed as the
// terminal branch when the goal is not met or no allocation is possible.
type PoolStatus string

const (
	PoolStatusInactive    PoolStatus = "inactive"
	PoolStatusActive      PoolStatus = "active"
	PoolStatusVotingEnded PoolStatus = "voting_ended"
	PoolStatusFunded      PoolStatus = "funded"
	PoolStatusClosed      PoolStatus = "closed"
	PoolStatusFailed      PoolStatus = "failed"
)

// Pool is the aggregate root of one crowdfunding round. Amounts are integer
// smallest units of FundingAssetID; percentages are basis points.
type Pool struct {
	PoolID             string
	Name               string
	Controller         string
	FundingAssetID     string
	FundingGoal        int64
	MinContribution    int64
	MaxContribution    *int64
	FeeBasisPoints     int64
	FeeRecipient       string
	VotingDeadline     time.Time
	MaxWinners         int
	TotalContributions int64
	RetainedPenalties  int64
	Status             PoolStatus
	ActivatedAt        *time.Time
	ClosedAt           *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Candidate is a funding target registered in a pool before activation.
// Recipient is the settlement account milestone tranches pay out to.
type Candidate struct {
	PoolID       string
	CandidateID  string
	Name         string
	Recipient    string
	RegisteredAt time.Time
}
