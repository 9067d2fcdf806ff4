// Package votingengine records contribution-weighted votes and computes the
// one-shot allocation result at voting close.
//
// Votes carry the voter's net contribution captured at cast time. Close
// ranks candidates deterministically (weight, earliest first vote, candidate
// ID), renormalizes percentages over the winner set, floors every amount to
// the asset's smallest unit, and tracks the rounding residual explicitly.
package votingengine
