package errors

import "errors"

var (
	ErrInvalidLedgerInput   = errors.New("invalid ledger input")
	ErrBelowMinimum         = errors.New("net contribution is below the pool minimum")
	ErrAboveMaximum         = errors.New("cumulative contribution exceeds the pool maximum")
	ErrUnsupportedAsset     = errors.New("asset does not match the pool funding asset")
	ErrContributionNotFound = errors.New("no active contribution for contributor")
)
