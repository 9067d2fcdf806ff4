package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PoolDTO struct {
	PoolID             string `json:"pool_id"`
	Name               string `json:"name"`
	Controller         string `json:"controller"`
	FundingAssetID     string `json:"funding_asset_id"`
	FundingGoal        int64  `json:"funding_goal"`
	MinContribution    int64  `json:"min_contribution"`
	MaxContribution    *int64 `json:"max_contribution,omitempty"`
	FeeBasisPoints     int64  `json:"fee_basis_points"`
	FeeRecipient       string `json:"fee_recipient"`
	VotingDeadline     string `json:"voting_deadline"`
	MaxWinners         int    `json:"max_winners"`
	TotalContributions int64  `json:"total_contributions"`
	RetainedPenalties  int64  `json:"retained_penalties"`
	Status             string `json:"status"`
	ActivatedAt        string `json:"activated_at,omitempty"`
	ClosedAt           string `json:"closed_at,omitempty"`
	CreatedAt          string `json:"created_at"`
}

type CreatePoolRequest struct {
	Name            string `json:"name"`
	Controller      string `json:"controller"`
	FundingAssetID  string `json:"funding_asset_id"`
	FundingGoal     int64  `json:"funding_goal"`
	MinContribution int64  `json:"min_contribution"`
	MaxContribution *int64 `json:"max_contribution,omitempty"`
	FeeBasisPoints  int64  `json:"fee_basis_points"`
	FeeRecipient    string `json:"fee_recipient"`
	VotingDeadline  string `json:"voting_deadline"`
	MaxWinners      int    `json:"max_winners"`
}

type PoolResponse struct {
	Status string  `json:"status"`
	Data   PoolDTO `json:"data"`
}

type CandidateDTO struct {
	PoolID       string `json:"pool_id"`
	CandidateID  string `json:"candidate_id"`
	Name         string `json:"name"`
	Recipient    string `json:"recipient"`
	RegisteredAt string `json:"registered_at"`
}

type RegisterCandidateRequest struct {
	CandidateID string `json:"candidate_id"`
	Name        string `json:"name"`
	Recipient   string `json:"recipient"`
}

type CandidateResponse struct {
	Status string       `json:"status"`
	Data   CandidateDTO `json:"data"`
}

type CandidateListResponse struct {
	Status string         `json:"status"`
	Data   []CandidateDTO `json:"data"`
}

type ContributeRequest struct {
	Contributor string `json:"contributor"`
	AssetID     string `json:"asset_id"`
	Amount      int64  `json:"amount"`
}

type ContributionDTO struct {
	ContributionID string `json:"contribution_id"`
	PoolID         string `json:"pool_id"`
	Contributor    string `json:"contributor"`
	AssetID        string `json:"asset_id"`
	GrossAmount    int64  `json:"gross_amount"`
	PlatformFee    int64  `json:"platform_fee"`
	NetAmount      int64  `json:"net_amount"`
	CreatedAt      string `json:"created_at"`
}

type ContributionResponse struct {
	Status string          `json:"status"`
	Data   ContributionDTO `json:"data"`
}

type WithdrawRequest struct {
	Contributor string `json:"contributor"`
}

type WithdrawalDTO struct {
	PoolID        string `json:"pool_id"`
	Contributor   string `json:"contributor"`
	RefundAmount  int64  `json:"refund_amount"`
	PenaltyAmount int64  `json:"penalty_amount"`
	WithdrawnAt   string `json:"withdrawn_at"`
}

type WithdrawalResponse struct {
	Status string        `json:"status"`
	Data   WithdrawalDTO `json:"data"`
}

type VoteRequest struct {
	Voter       string `json:"voter"`
	CandidateID string `json:"candidate_id"`
}

type ChangeVoteRequest struct {
	Voter          string `json:"voter"`
	OldCandidateID string `json:"old_candidate_id"`
	NewCandidateID string `json:"new_candidate_id"`
}

type VoteDTO struct {
	VoteID      string `json:"vote_id"`
	PoolID      string `json:"pool_id"`
	Voter       string `json:"voter"`
	CandidateID string `json:"candidate_id"`
	Weight      int64  `json:"weight"`
	CastAt      string `json:"cast_at"`
}

type VoteResponse struct {
	Status string  `json:"status"`
	Data   VoteDTO `json:"data"`
}

type TallyDTO struct {
	CandidateID string `json:"candidate_id"`
	VoteCount   int    `json:"vote_count"`
	Weight      int64  `json:"weight"`
	FirstVoteAt string `json:"first_vote_at"`
}

type StandingsResponse struct {
	Status string     `json:"status"`
	Data   []TallyDTO `json:"data"`
}

type AllocationDTO struct {
	CandidateID string `json:"candidate_id"`
	Rank        int    `json:"rank"`
	VoteWeight  int64  `json:"vote_weight"`
	PercentBps  int64  `json:"percent_bps"`
	Amount      int64  `json:"amount"`
}

type AllocationResultDTO struct {
	PoolID           string          `json:"pool_id"`
	TotalVotedWeight int64           `json:"total_voted_weight"`
	AllocationBase   int64           `json:"allocation_base"`
	Residual         int64           `json:"residual"`
	Winners          []AllocationDTO `json:"winners"`
	ClosedAt         string          `json:"closed_at"`
}

type CloseVotingResponse struct {
	Status string `json:"status"`
	Data   struct {
		Pool   PoolDTO              `json:"pool"`
		Result *AllocationResultDTO `json:"result,omitempty"`
	} `json:"data"`
}

type AllocationResultResponse struct {
	Status string              `json:"status"`
	Data   AllocationResultDTO `json:"data"`
}

type MilestoneSpecDTO struct {
	Description       string `json:"description"`
	FundingPercentBps int64  `json:"funding_percent_bps"`
	Deadline          string `json:"deadline,omitempty"`
	ApprovalsNeeded   int    `json:"approvals_needed"`
}

type ConfigureMilestonesRequest struct {
	CandidateID string             `json:"candidate_id"`
	Milestones  []MilestoneSpecDTO `json:"milestones"`
}

type MilestoneDTO struct {
	MilestoneID       string `json:"milestone_id"`
	PoolID            string `json:"pool_id"`
	CandidateID       string `json:"candidate_id"`
	Index             int    `json:"index"`
	Description       string `json:"description"`
	FundingPercentBps int64  `json:"funding_percent_bps"`
	Deadline          string `json:"deadline,omitempty"`
	EvidenceURI       string `json:"evidence_uri,omitempty"`
	ApprovalsNeeded   int    `json:"approvals_needed"`
	ApprovalCount     int    `json:"approval_count"`
	Completed         bool   `json:"completed"`
	Disputed          bool   `json:"disputed"`
	Abandoned         bool   `json:"abandoned"`
	ReleasedAmount    int64  `json:"released_amount"`
	CompletedAt       string `json:"completed_at,omitempty"`
}

type MilestoneResponse struct {
	Status string       `json:"status"`
	Data   MilestoneDTO `json:"data"`
}

type MilestoneListResponse struct {
	Status string         `json:"status"`
	Data   []MilestoneDTO `json:"data"`
}

type SubmitEvidenceRequest struct {
	EvidenceURI string `json:"evidence_uri"`
}

type ApproveMilestoneRequest struct {
	Approver string `json:"approver"`
}

type ReleaseMilestoneResponse struct {
	Status string `json:"status"`
	Data   struct {
		Milestone  MilestoneDTO `json:"milestone"`
		Amount     int64        `json:"amount"`
		PoolClosed bool         `json:"pool_closed"`
	} `json:"data"`
}

type LedgerEntryDTO struct {
	EntryID     string `json:"entry_id"`
	PoolID      string `json:"pool_id"`
	Account     string `json:"account"`
	EntryType   string `json:"entry_type"`
	Amount      int64  `json:"amount"`
	ReferenceID string `json:"reference_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type LedgerEntriesResponse struct {
	Status string           `json:"status"`
	Data   []LedgerEntryDTO `json:"data"`
}

type BalanceResponse struct {
	Status string `json:"status"`
	Data   struct {
		PoolID      string `json:"pool_id"`
		Contributor string `json:"contributor"`
		Balance     int64  `json:"balance"`
	} `json:"data"`
}
