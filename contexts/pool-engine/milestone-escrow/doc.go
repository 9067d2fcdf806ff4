// Package milestoneescrow gates winner payouts behind milestone schedules.
//
// A winner's allocation is split into tranches expressed as basis points of
// the allocation. Each tranche needs an approval quorum before it releases,
// lifetime releases per candidate are capped at the allocation, and disputed
// milestones freeze until abandoned.
package milestoneescrow
