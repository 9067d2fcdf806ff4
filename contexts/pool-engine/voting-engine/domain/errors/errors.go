package errors

import "errors"

var (
	ErrInvalidVoteInput  = errors.New("invalid vote input")
	ErrVoteNotFound      = errors.New("vote not found")
	ErrVoteConflict      = errors.New("voter already holds a vote for another candidate")
	ErrNoVoteWeight      = errors.New("voter has no live contribution weight")
	ErrAlreadyClosed     = errors.New("allocation result already computed")
	ErrNothingToAllocate = errors.New("no eligible candidates to allocate")
)
