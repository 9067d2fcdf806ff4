// Package poollifecycle is the pool engine's single mutation entry point.
//
// The controller owns the forward-only pool state machine (inactive, active,
// voting_ended, funded, closed, with failed as the terminal branch), resolves
// deployment policies, serializes writes per pool, and orchestrates the
// ledger, voting, and escrow services. State changes emit canonical envelopes
// through a transactional outbox; a relay worker publishes them.
package poollifecycle
