package services

import (
	"fmt"
	"time"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/shared/money"
)

// PenaltyKind selects how the early-withdrawal penalty rate is derived.
type PenaltyKind string

const (
	// PenaltyFlat charges the configured rate regardless of timing.
	PenaltyFlat PenaltyKind = "flat"
	// PenaltyTimeDecay charges a rate that grows linearly from zero at pool
	// activation to the configured rate at the voting deadline, so leaving
	// early is cheap and leaving late is expensive.
	PenaltyTimeDecay PenaltyKind = "time_decay"
)

// PenaltyDestination selects where withheld penalties accrue.
type PenaltyDestination string

const (
	PenaltyToFeeRecipient PenaltyDestination = "fee_recipient"
	PenaltyToPool         PenaltyDestination = "pool"
)

// PenaltyPolicy governs early withdrawals. Bps is the maximum penalty rate in
// basis points of the withdrawn net balance.
type PenaltyPolicy struct {
	Kind        PenaltyKind
	Bps         int64
	Destination PenaltyDestination
}

// RateBps resolves the effective penalty rate at the given instant. For the
// time-decay kind a missing activation time or an inverted window falls back
// to the full rate.
func (p PenaltyPolicy) RateBps(activatedAt *time.Time, deadline time.Time, at time.Time) (int64, error) {
	if p.Kind != PenaltyTimeDecay {
		return p.Bps, nil
	}
	if activatedAt == nil {
		return p.Bps, nil
	}
	total := deadline.Sub(*activatedAt)
	elapsed := at.Sub(*activatedAt)
	if total <= 0 || elapsed >= total {
		return p.Bps, nil
	}
	if elapsed <= 0 {
		return 0, nil
	}
	return money.MulDiv(p.Bps, int64(elapsed), int64(total))
}

// VotingPolicy governs vote mechanics for the deployment.
type VotingPolicy struct {
	// AllowSplit lets a contributor hold votes on several candidates at
	// once. When false a second vote is rejected and the voter must use the
	// explicit change-vote operation.
	AllowSplit bool
	// ZeroVoteFallback is the close behavior for a funded pool without
	// votes: "equal_split" or "fail".
	ZeroVoteFallback string
}

const (
	ZeroVoteEqualSplit = "equal_split"
	ZeroVoteFail       = "fail"
)

// PolicySet is the deployment-wide policy configuration injected into the
// lifecycle controller.
type PolicySet struct {
	Penalty PenaltyPolicy
	Voting  VotingPolicy
}

// DefaultPolicySet is the configuration used when no policy file is present:
// a 10 percent flat penalty paid to the fee recipient, no split voting, and
// equal split among candidates when nobody voted.
func DefaultPolicySet() PolicySet {
	return PolicySet{
		Penalty: PenaltyPolicy{
			Kind:        PenaltyFlat,
			Bps:         1_000,
			Destination: PenaltyToFeeRecipient,
		},
		Voting: VotingPolicy{
			AllowSplit:       false,
			ZeroVoteFallback: ZeroVoteEqualSplit,
		},
	}
}

// Validate rejects unknown variants and out-of-range rates before the policy
// set reaches the controller.
func (ps PolicySet) Validate() error {
	switch ps.Penalty.Kind {
	case PenaltyFlat, PenaltyTimeDecay:
	default:
		return fmt.Errorf("unknown penalty kind %q", ps.Penalty.Kind)
	}
	switch ps.Penalty.Destination {
	case PenaltyToFeeRecipient, PenaltyToPool:
	default:
		return fmt.Errorf("unknown penalty destination %q", ps.Penalty.Destination)
	}
	if ps.Penalty.Bps < 0 || ps.Penalty.Bps > money.BpsDenominator {
		return fmt.Errorf("penalty rate %d out of range [0, %d]", ps.Penalty.Bps, money.BpsDenominator)
	}
	switch ps.Voting.ZeroVoteFallback {
	case ZeroVoteEqualSplit, ZeroVoteFail:
	default:
		return fmt.Errorf("unknown zero-vote fallback %q", ps.Voting.ZeroVoteFallback)
	}
	return nil
}
