package errors

import "errors"

var (
	ErrInvalidPoolInput   = errors.New("pool lifecycle: invalid input")
	ErrPoolNotFound       = errors.New("pool lifecycle: pool not found")
	ErrPoolExists         = errors.New("pool lifecycle: pool already exists")
	ErrInvalidState       = errors.New("pool lifecycle: operation not allowed in current pool state")
	ErrCandidateNotFound  = errors.New("pool lifecycle: candidate not found")
	ErrCandidateExists    = errors.New("pool lifecycle: candidate already registered")
	ErrIdentityRejected   = errors.New("pool lifecycle: caller is not the pool controller")
	ErrDeadlineNotReached = errors.New("pool lifecycle: voting deadline not reached")
	ErrNotAWinner         = errors.New("pool lifecycle: candidate is not in the winner set")
	ErrRecipientMismatch  = errors.New("pool lifecycle: caller is not the candidate recipient")
	ErrNotAContributor    = errors.New("pool lifecycle: caller holds no active contribution")
	ErrSettlementFailed   = errors.New("pool lifecycle: settlement transfer failed")
)
