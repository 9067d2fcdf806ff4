package application

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/ports"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/shared/outbox"
)

// Event types emitted by the lifecycle controller. All events partition by
// pool ID so downstream consumers observe each pool's history in order.
const (
	EventPoolActivated      = "pool.activated"
	EventContributionMade   = "pool.contribution_made"
	EventEarlyWithdrawal    = "pool.early_withdrawal"
	EventVoteCast           = "pool.vote_cast"
	EventVoteChanged        = "pool.vote_changed"
	EventVotesCleared       = "pool.votes_cleared"
	EventVotingEnded        = "pool.voting_ended"
	EventPoolFailed         = "pool.failed"
	EventMilestoneApproved  = "pool.milestone_approved"
	EventMilestoneCompleted = "pool.milestone_completed"
	EventMilestoneDisputed  = "pool.milestone_disputed"
	EventMilestoneAbandoned = "pool.milestone_abandoned"
	EventFundsDistributed   = "pool.funds_distributed"
	EventRefunded           = "pool.refunded"
	EventPoolClosed         = "pool.closed"
)

const (
	sourceService    = "pool-engine/pool-lifecycle"
	schemaVersion    = 1
	partitionKeyPath = "data.pool_id"
)

type PoolActivatedEvent struct {
	PoolID         string    `json:"pool_id"`
	FundingGoal    int64     `json:"funding_goal"`
	VotingDeadline time.Time `json:"voting_deadline"`
	CandidateCount int       `json:"candidate_count"`
	ActivatedAt    time.Time `json:"activated_at"`
}

type ContributionMadeEvent struct {
	PoolID         string `json:"pool_id"`
	ContributionID string `json:"contribution_id"`
	Contributor    string `json:"contributor"`
	GrossAmount    int64  `json:"gross_amount"`
	PlatformFee    int64  `json:"platform_fee"`
	NetAmount      int64  `json:"net_amount"`
	PoolTotal      int64  `json:"pool_total"`
}

type EarlyWithdrawalEvent struct {
	PoolID        string `json:"pool_id"`
	Contributor   string `json:"contributor"`
	RefundAmount  int64  `json:"refund_amount"`
	PenaltyAmount int64  `json:"penalty_amount"`
	PoolTotal     int64  `json:"pool_total"`
}

type VoteCastEvent struct {
	PoolID      string `json:"pool_id"`
	Voter       string `json:"voter"`
	CandidateID string `json:"candidate_id"`
	Weight      int64  `json:"weight"`
}

type VoteChangedEvent struct {
	PoolID         string `json:"pool_id"`
	Voter          string `json:"voter"`
	OldCandidateID string `json:"old_candidate_id"`
	NewCandidateID string `json:"new_candidate_id"`
	Weight         int64  `json:"weight"`
}

type VotesClearedEvent struct {
	PoolID       string `json:"pool_id"`
	Voter        string `json:"voter"`
	ClearedCount int    `json:"cleared_count"`
}

type WinnerShare struct {
	CandidateID string `json:"candidate_id"`
	Rank        int    `json:"rank"`
	VoteWeight  int64  `json:"vote_weight"`
	PercentBps  int64  `json:"percent_bps"`
	Amount      int64  `json:"amount"`
}

type VotingEndedEvent struct {
	PoolID           string        `json:"pool_id"`
	TotalVotedWeight int64         `json:"total_voted_weight"`
	AllocationBase   int64         `json:"allocation_base"`
	Residual         int64         `json:"residual"`
	Winners          []WinnerShare `json:"winners"`
	ClosedAt         time.Time     `json:"closed_at"`
}

type PoolFailedEvent struct {
	PoolID      string `json:"pool_id"`
	FundingGoal int64  `json:"funding_goal"`
	TotalRaised int64  `json:"total_raised"`
	Reason      string `json:"reason"`
}

type MilestoneApprovedEvent struct {
	PoolID          string `json:"pool_id"`
	CandidateID     string `json:"candidate_id"`
	MilestoneID     string `json:"milestone_id"`
	Approver        string `json:"approver"`
	ApprovalCount   int    `json:"approval_count"`
	ApprovalsNeeded int    `json:"approvals_needed"`
}

type MilestoneCompletedEvent struct {
	PoolID         string `json:"pool_id"`
	CandidateID    string `json:"candidate_id"`
	MilestoneID    string `json:"milestone_id"`
	ReleasedAmount int64  `json:"released_amount"`
}

type MilestoneFlaggedEvent struct {
	PoolID      string `json:"pool_id"`
	CandidateID string `json:"candidate_id"`
	MilestoneID string `json:"milestone_id"`
}

type FundsDistributedEvent struct {
	PoolID      string `json:"pool_id"`
	CandidateID string `json:"candidate_id"`
	Recipient   string `json:"recipient"`
	Amount      int64  `json:"amount"`
	ReferenceID string `json:"reference_id"`
}

type RefundedEvent struct {
	PoolID       string `json:"pool_id"`
	Contributor  string `json:"contributor"`
	RefundAmount int64  `json:"refund_amount"`
}

type PoolClosedEvent struct {
	PoolID   string    `json:"pool_id"`
	ClosedAt time.Time `json:"closed_at"`
}

// appendEvent writes one canonical envelope to the outbox. The relay worker
// publishes it to the event sink asynchronously.
func (s *Service) appendEvent(ctx context.Context, eventType string, poolID string, payload any) error {
	if s.Outbox == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	eventID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	envelope := ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       now,
		SourceService:    sourceService,
		SchemaVersion:    schemaVersion,
		PartitionKeyPath: partitionKeyPath,
		PartitionKey:     strings.TrimSpace(poolID),
		Data:             data,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return s.Outbox.AppendMessages(ctx, []outbox.Message{{
		ID:           eventID,
		EventType:    eventType,
		PartitionKey: envelope.PartitionKey,
		Payload:      body,
		Status:       outbox.StatusPending,
		CreatedAt:    now,
	}})
}
