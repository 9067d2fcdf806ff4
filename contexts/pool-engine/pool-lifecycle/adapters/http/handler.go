package httpadapter

import (
	"context"
	"log/slog"
	"time"

	ledgerentities "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/domain/entities"
	escrowapp "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/application"
	escrowentities "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/domain/entities"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/application"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/entities"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/errors"
	httptransport "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/transport/http"
	votingentities "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/domain/entities"
)

type Handler struct {
	Service *application.Service
	Logger  *slog.Logger
}

func (h Handler) CreatePoolHandler(ctx context.Context, token string, req httptransport.CreatePoolRequest) (httptransport.PoolResponse, error) {
	deadline, err := time.Parse(time.RFC3339, req.VotingDeadline)
	if err != nil {
		return httptransport.PoolResponse{}, domainerrors.ErrInvalidPoolInput
	}
	pool, err := h.Service.CreatePool(ctx, application.CreatePoolInput{
		Token:           token,
		Name:            req.Name,
		Controller:      req.Controller,
		FundingAssetID:  req.FundingAssetID,
		FundingGoal:     req.FundingGoal,
		MinContribution: req.MinContribution,
		MaxContribution: req.MaxContribution,
		FeeBasisPoints:  req.FeeBasisPoints,
		FeeRecipient:    req.FeeRecipient,
		VotingDeadline:  deadline,
		MaxWinners:      req.MaxWinners,
	})
	if err != nil {
		return httptransport.PoolResponse{}, err
	}
	return httptransport.PoolResponse{Status: "success", Data: toPoolDTO(pool)}, nil
}

func (h Handler) GetPoolHandler(ctx context.Context, poolID string) (httptransport.PoolResponse, error) {
	pool, err := h.Service.Pool(ctx, poolID)
	if err != nil {
		return httptransport.PoolResponse{}, err
	}
	return httptransport.PoolResponse{Status: "success", Data: toPoolDTO(pool)}, nil
}

func (h Handler) RegisterCandidateHandler(
	ctx context.Context,
	token string,
	poolID string,
	req httptransport.RegisterCandidateRequest,
) (httptransport.CandidateResponse, error) {
	candidate, err := h.Service.RegisterCandidate(ctx, application.RegisterCandidateInput{
		Token:       token,
		PoolID:      poolID,
		CandidateID: req.CandidateID,
		Name:        req.Name,
		Recipient:   req.Recipient,
	})
	if err != nil {
		return httptransport.CandidateResponse{}, err
	}
	return httptransport.CandidateResponse{Status: "success", Data: toCandidateDTO(candidate)}, nil
}

func (h Handler) ListCandidatesHandler(ctx context.Context, poolID string) (httptransport.CandidateListResponse, error) {
	candidates, err := h.Service.Candidates(ctx, poolID)
	if err != nil {
		return httptransport.CandidateListResponse{}, err
	}
	resp := httptransport.CandidateListResponse{
		Status: "success",
		Data:   make([]httptransport.CandidateDTO, 0, len(candidates)),
	}
	for _, candidate := range candidates {
		resp.Data = append(resp.Data, toCandidateDTO(candidate))
	}
	return resp, nil
}

func (h Handler) ActivatePoolHandler(ctx context.Context, token string, poolID string) (httptransport.PoolResponse, error) {
	pool, err := h.Service.ActivatePool(ctx, token, poolID)
	if err != nil {
		return httptransport.PoolResponse{}, err
	}
	return httptransport.PoolResponse{Status: "success", Data: toPoolDTO(pool)}, nil
}

func (h Handler) ContributeHandler(
	ctx context.Context,
	poolID string,
	req httptransport.ContributeRequest,
) (httptransport.ContributionResponse, error) {
	contribution, err := h.Service.Contribute(ctx, application.ContributeInput{
		PoolID:      poolID,
		Contributor: req.Contributor,
		AssetID:     req.AssetID,
		Amount:      req.Amount,
	})
	if err != nil {
		return httptransport.ContributionResponse{}, err
	}
	return httptransport.ContributionResponse{
		Status: "success",
		Data:   toContributionDTO(contribution),
	}, nil
}

func (h Handler) EarlyWithdrawHandler(
	ctx context.Context,
	poolID string,
	req httptransport.WithdrawRequest,
) (httptransport.WithdrawalResponse, error) {
	receipt, err := h.Service.EarlyWithdraw(ctx, poolID, req.Contributor)
	if err != nil {
		return httptransport.WithdrawalResponse{}, err
	}
	return httptransport.WithdrawalResponse{Status: "success", Data: toWithdrawalDTO(receipt)}, nil
}

func (h Handler) RefundHandler(
	ctx context.Context,
	poolID string,
	req httptransport.WithdrawRequest,
) (httptransport.WithdrawalResponse, error) {
	receipt, err := h.Service.Refund(ctx, poolID, req.Contributor)
	if err != nil {
		return httptransport.WithdrawalResponse{}, err
	}
	return httptransport.WithdrawalResponse{Status: "success", Data: toWithdrawalDTO(receipt)}, nil
}

func (h Handler) VoteHandler(
	ctx context.Context,
	poolID string,
	req httptransport.VoteRequest,
) (httptransport.VoteResponse, error) {
	vote, err := h.Service.Vote(ctx, poolID, req.Voter, req.CandidateID)
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	return httptransport.VoteResponse{Status: "success", Data: toVoteDTO(vote)}, nil
}

func (h Handler) ChangeVoteHandler(
	ctx context.Context,
	poolID string,
	req httptransport.ChangeVoteRequest,
) (httptransport.VoteResponse, error) {
	vote, err := h.Service.ChangeVote(ctx, poolID, req.Voter, req.OldCandidateID, req.NewCandidateID)
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	return httptransport.VoteResponse{Status: "success", Data: toVoteDTO(vote)}, nil
}

func (h Handler) StandingsHandler(ctx context.Context, poolID string) (httptransport.StandingsResponse, error) {
	tallies, err := h.Service.Standings(ctx, poolID)
	if err != nil {
		return httptransport.StandingsResponse{}, err
	}
	resp := httptransport.StandingsResponse{
		Status: "success",
		Data:   make([]httptransport.TallyDTO, 0, len(tallies)),
	}
	for _, tally := range tallies {
		resp.Data = append(resp.Data, httptransport.TallyDTO{
			CandidateID: tally.CandidateID,
			VoteCount:   tally.VoteCount,
			Weight:      tally.Weight,
			FirstVoteAt: tally.FirstVoteAt.UTC().Format(time.RFC3339),
		})
	}
	return resp, nil
}

func (h Handler) CloseVotingHandler(ctx context.Context, poolID string) (httptransport.CloseVotingResponse, error) {
	closed, err := h.Service.CloseVoting(ctx, poolID)
	if err != nil {
		return httptransport.CloseVotingResponse{}, err
	}
	resp := httptransport.CloseVotingResponse{Status: "success"}
	resp.Data.Pool = toPoolDTO(closed.Pool)
	if closed.Result != nil {
		dto := toAllocationResultDTO(*closed.Result)
		resp.Data.Result = &dto
	}
	return resp, nil
}

func (h Handler) AllocationResultHandler(ctx context.Context, poolID string) (httptransport.AllocationResultResponse, error) {
	result, err := h.Service.AllocationResult(ctx, poolID)
	if err != nil {
		return httptransport.AllocationResultResponse{}, err
	}
	return httptransport.AllocationResultResponse{
		Status: "success",
		Data:   toAllocationResultDTO(result),
	}, nil
}

func (h Handler) ConfigureMilestonesHandler(
	ctx context.Context,
	poolID string,
	caller string,
	req httptransport.ConfigureMilestonesRequest,
) (httptransport.MilestoneListResponse, error) {
	specs := make([]escrowapp.MilestoneSpec, 0, len(req.Milestones))
	for _, spec := range req.Milestones {
		item := escrowapp.MilestoneSpec{
			Description:       spec.Description,
			FundingPercentBps: spec.FundingPercentBps,
			ApprovalsNeeded:   spec.ApprovalsNeeded,
		}
		if spec.Deadline != "" {
			deadline, err := time.Parse(time.RFC3339, spec.Deadline)
			if err != nil {
				return httptransport.MilestoneListResponse{}, domainerrors.ErrInvalidPoolInput
			}
			item.Deadline = &deadline
		}
		specs = append(specs, item)
	}

	milestones, err := h.Service.ConfigureMilestones(ctx, application.ConfigureMilestonesInput{
		PoolID:      poolID,
		CandidateID: req.CandidateID,
		Caller:      caller,
		Milestones:  specs,
	})
	if err != nil {
		return httptransport.MilestoneListResponse{}, err
	}
	resp := httptransport.MilestoneListResponse{
		Status: "success",
		Data:   make([]httptransport.MilestoneDTO, 0, len(milestones)),
	}
	for _, milestone := range milestones {
		resp.Data = append(resp.Data, toMilestoneDTO(milestone))
	}
	return resp, nil
}

func (h Handler) SubmitEvidenceHandler(
	ctx context.Context,
	poolID string,
	milestoneID string,
	caller string,
	req httptransport.SubmitEvidenceRequest,
) (httptransport.MilestoneResponse, error) {
	milestone, err := h.Service.SubmitEvidence(ctx, poolID, milestoneID, caller, req.EvidenceURI)
	if err != nil {
		return httptransport.MilestoneResponse{}, err
	}
	return httptransport.MilestoneResponse{Status: "success", Data: toMilestoneDTO(milestone)}, nil
}

func (h Handler) ApproveMilestoneHandler(
	ctx context.Context,
	poolID string,
	milestoneID string,
	req httptransport.ApproveMilestoneRequest,
) (httptransport.MilestoneResponse, error) {
	milestone, err := h.Service.ApproveMilestone(ctx, poolID, milestoneID, req.Approver)
	if err != nil {
		return httptransport.MilestoneResponse{}, err
	}
	return httptransport.MilestoneResponse{Status: "success", Data: toMilestoneDTO(milestone)}, nil
}

func (h Handler) ReleaseMilestoneHandler(
	ctx context.Context,
	poolID string,
	milestoneID string,
) (httptransport.ReleaseMilestoneResponse, error) {
	outcome, err := h.Service.ReleaseMilestone(ctx, poolID, milestoneID)
	if err != nil {
		return httptransport.ReleaseMilestoneResponse{}, err
	}
	resp := httptransport.ReleaseMilestoneResponse{Status: "success"}
	resp.Data.Milestone = toMilestoneDTO(outcome.Milestone)
	resp.Data.Amount = outcome.Amount
	resp.Data.PoolClosed = outcome.PoolClosed
	return resp, nil
}

func (h Handler) DisputeMilestoneHandler(
	ctx context.Context,
	token string,
	poolID string,
	milestoneID string,
) (httptransport.MilestoneResponse, error) {
	milestone, err := h.Service.DisputeMilestone(ctx, token, poolID, milestoneID)
	if err != nil {
		return httptransport.MilestoneResponse{}, err
	}
	return httptransport.MilestoneResponse{Status: "success", Data: toMilestoneDTO(milestone)}, nil
}

func (h Handler) AbandonMilestoneHandler(
	ctx context.Context,
	token string,
	poolID string,
	milestoneID string,
) (httptransport.MilestoneResponse, error) {
	milestone, err := h.Service.AbandonMilestone(ctx, token, poolID, milestoneID)
	if err != nil {
		return httptransport.MilestoneResponse{}, err
	}
	return httptransport.MilestoneResponse{Status: "success", Data: toMilestoneDTO(milestone)}, nil
}

func (h Handler) ListMilestonesHandler(ctx context.Context, poolID string) (httptransport.MilestoneListResponse, error) {
	milestones, err := h.Service.PoolMilestones(ctx, poolID)
	if err != nil {
		return httptransport.MilestoneListResponse{}, err
	}
	resp := httptransport.MilestoneListResponse{
		Status: "success",
		Data:   make([]httptransport.MilestoneDTO, 0, len(milestones)),
	}
	for _, milestone := range milestones {
		resp.Data = append(resp.Data, toMilestoneDTO(milestone))
	}
	return resp, nil
}

func (h Handler) LedgerEntriesHandler(ctx context.Context, poolID string) (httptransport.LedgerEntriesResponse, error) {
	entries, err := h.Service.LedgerEntries(ctx, poolID)
	if err != nil {
		return httptransport.LedgerEntriesResponse{}, err
	}
	resp := httptransport.LedgerEntriesResponse{
		Status: "success",
		Data:   make([]httptransport.LedgerEntryDTO, 0, len(entries)),
	}
	for _, entry := range entries {
		resp.Data = append(resp.Data, toLedgerEntryDTO(entry))
	}
	return resp, nil
}

func (h Handler) BalanceHandler(ctx context.Context, poolID string, contributor string) (httptransport.BalanceResponse, error) {
	balance, err := h.Service.ContributorBalance(ctx, poolID, contributor)
	if err != nil {
		return httptransport.BalanceResponse{}, err
	}
	resp := httptransport.BalanceResponse{Status: "success"}
	resp.Data.PoolID = poolID
	resp.Data.Contributor = contributor
	resp.Data.Balance = balance
	return resp, nil
}

func toPoolDTO(pool entities.Pool) httptransport.PoolDTO {
	dto := httptransport.PoolDTO{
		PoolID:             pool.PoolID,
		Name:               pool.Name,
		Controller:         pool.Controller,
		FundingAssetID:     pool.FundingAssetID,
		FundingGoal:        pool.FundingGoal,
		MinContribution:    pool.MinContribution,
		MaxContribution:    pool.MaxContribution,
		FeeBasisPoints:     pool.FeeBasisPoints,
		FeeRecipient:       pool.FeeRecipient,
		VotingDeadline:     pool.VotingDeadline.UTC().Format(time.RFC3339),
		MaxWinners:         pool.MaxWinners,
		TotalContributions: pool.TotalContributions,
		RetainedPenalties:  pool.RetainedPenalties,
		Status:             string(pool.Status),
		CreatedAt:          pool.CreatedAt.UTC().Format(time.RFC3339),
	}
	if pool.ActivatedAt != nil {
		dto.ActivatedAt = pool.ActivatedAt.UTC().Format(time.RFC3339)
	}
	if pool.ClosedAt != nil {
		dto.ClosedAt = pool.ClosedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toCandidateDTO(candidate entities.Candidate) httptransport.CandidateDTO {
	return httptransport.CandidateDTO{
		PoolID:       candidate.PoolID,
		CandidateID:  candidate.CandidateID,
		Name:         candidate.Name,
		Recipient:    candidate.Recipient,
		RegisteredAt: candidate.RegisteredAt.UTC().Format(time.RFC3339),
	}
}

func toContributionDTO(contribution ledgerentities.Contribution) httptransport.ContributionDTO {
	return httptransport.ContributionDTO{
		ContributionID: contribution.ContributionID,
		PoolID:         contribution.PoolID,
		Contributor:    contribution.Contributor,
		AssetID:        contribution.AssetID,
		GrossAmount:    contribution.GrossAmount,
		PlatformFee:    contribution.PlatformFee,
		NetAmount:      contribution.NetAmount,
		CreatedAt:      contribution.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toWithdrawalDTO(receipt ledgerentities.WithdrawalReceipt) httptransport.WithdrawalDTO {
	return httptransport.WithdrawalDTO{
		PoolID:        receipt.PoolID,
		Contributor:   receipt.Contributor,
		RefundAmount:  receipt.RefundAmount,
		PenaltyAmount: receipt.PenaltyAmount,
		WithdrawnAt:   receipt.WithdrawnAt.UTC().Format(time.RFC3339),
	}
}

func toVoteDTO(vote votingentities.Vote) httptransport.VoteDTO {
	return httptransport.VoteDTO{
		VoteID:      vote.VoteID,
		PoolID:      vote.PoolID,
		Voter:       vote.Voter,
		CandidateID: vote.CandidateID,
		Weight:      vote.Weight,
		CastAt:      vote.CastAt.UTC().Format(time.RFC3339),
	}
}

func toAllocationResultDTO(result votingentities.AllocationResult) httptransport.AllocationResultDTO {
	dto := httptransport.AllocationResultDTO{
		PoolID:           result.PoolID,
		TotalVotedWeight: result.TotalVotedWeight,
		AllocationBase:   result.AllocationBase,
		Residual:         result.Residual,
		Winners:          make([]httptransport.AllocationDTO, 0, len(result.Winners)),
		ClosedAt:         result.ClosedAt.UTC().Format(time.RFC3339),
	}
	for _, winner := range result.Winners {
		dto.Winners = append(dto.Winners, httptransport.AllocationDTO{
			CandidateID: winner.CandidateID,
			Rank:        winner.Rank,
			VoteWeight:  winner.VoteWeight,
			PercentBps:  winner.PercentBps,
			Amount:      winner.Amount,
		})
	}
	return dto
}

func toMilestoneDTO(milestone escrowentities.Milestone) httptransport.MilestoneDTO {
	dto := httptransport.MilestoneDTO{
		MilestoneID:       milestone.MilestoneID,
		PoolID:            milestone.PoolID,
		CandidateID:       milestone.CandidateID,
		Index:             milestone.Index,
		Description:       milestone.Description,
		FundingPercentBps: milestone.FundingPercentBps,
		EvidenceURI:       milestone.EvidenceURI,
		ApprovalsNeeded:   milestone.ApprovalsNeeded,
		ApprovalCount:     milestone.ApprovalCount,
		Completed:         milestone.Completed,
		Disputed:          milestone.Disputed,
		Abandoned:         milestone.Abandoned,
		ReleasedAmount:    milestone.ReleasedAmount,
	}
	if milestone.Deadline != nil {
		dto.Deadline = milestone.Deadline.UTC().Format(time.RFC3339)
	}
	if milestone.CompletedAt != nil {
		dto.CompletedAt = milestone.CompletedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toLedgerEntryDTO(entry ledgerentities.LedgerEntry) httptransport.LedgerEntryDTO {
	return httptransport.LedgerEntryDTO{
		EntryID:     entry.EntryID,
		PoolID:      entry.PoolID,
		Account:     entry.Account,
		EntryType:   string(entry.EntryType),
		Amount:      entry.Amount,
		ReferenceID: entry.ReferenceID,
		CreatedAt:   entry.CreatedAt.UTC().Format(time.RFC3339),
	}
}
