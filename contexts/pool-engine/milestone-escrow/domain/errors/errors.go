package errors

import "errors"

var (
	ErrInvalidMilestoneInput = errors.New("milestone escrow: invalid input")
	ErrMilestoneNotFound     = errors.New("milestone escrow: milestone not found")
	ErrAlreadyConfigured     = errors.New("milestone escrow: candidate schedule already configured")
	ErrAlreadyCompleted      = errors.New("milestone escrow: milestone already completed")
	ErrMilestoneDisputed     = errors.New("milestone escrow: milestone is disputed")
	ErrMilestoneAbandoned    = errors.New("milestone escrow: milestone was abandoned")
	ErrInsufficientApprovals = errors.New("milestone escrow: approval quorum not reached")
	ErrPercentBudgetExceeded = errors.New("milestone escrow: schedule exceeds 100 percent of the allocation")
)
