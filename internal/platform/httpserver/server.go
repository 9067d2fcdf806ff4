package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	ledgererrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/domain/errors"
	escrowerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/domain/errors"
	poollifecycle "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle"
	lifecycleerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/errors"
	lifecyclehttp "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/transport/http"
	votingerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/domain/errors"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/shared/money"

	httpSwagger "github.com/swaggo/http-swagger"
)

type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
	addr   string
	engine poollifecycle.Module
}

func New(engine poollifecycle.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:    http.NewServeMux(),
		logger: logger,
		addr:   addr,
		engine: engine,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /v1/pools", s.handleCreatePool)
	s.mux.HandleFunc("GET /v1/pools/{pool_id}", s.handleGetPool)
	s.mux.HandleFunc("POST /v1/pools/{pool_id}/candidates", s.handleRegisterCandidate)
	s.mux.HandleFunc("GET /v1/pools/{pool_id}/candidates", s.handleListCandidates)
	s.mux.HandleFunc("POST /v1/pools/{pool_id}/activate", s.handleActivatePool)

	s.mux.HandleFunc("POST /v1/pools/{pool_id}/contributions", s.handleContribute)
	s.mux.HandleFunc("POST /v1/pools/{pool_id}/withdrawals", s.handleEarlyWithdraw)
	s.mux.HandleFunc("POST /v1/pools/{pool_id}/refunds", s.handleRefund)
	s.mux.HandleFunc("GET /v1/pools/{pool_id}/ledger", s.handleLedgerEntries)
	s.mux.HandleFunc("GET /v1/pools/{pool_id}/balances/{contributor}", s.handleBalance)

	s.mux.HandleFunc("POST /v1/pools/{pool_id}/votes", s.handleVote)
	s.mux.HandleFunc("PUT /v1/pools/{pool_id}/votes", s.handleChangeVote)
	s.mux.HandleFunc("GET /v1/pools/{pool_id}/standings", s.handleStandings)
	s.mux.HandleFunc("POST /v1/pools/{pool_id}/close", s.handleCloseVoting)
	s.mux.HandleFunc("GET /v1/pools/{pool_id}/allocations", s.handleAllocationResult)

	s.mux.HandleFunc("POST /v1/pools/{pool_id}/milestones", s.handleConfigureMilestones)
	s.mux.HandleFunc("GET /v1/pools/{pool_id}/milestones", s.handleListMilestones)
	s.mux.HandleFunc("POST /v1/pools/{pool_id}/milestones/{milestone_id}/evidence", s.handleSubmitEvidence)
	s.mux.HandleFunc("POST /v1/pools/{pool_id}/milestones/{milestone_id}/approvals", s.handleApproveMilestone)
	s.mux.HandleFunc("POST /v1/pools/{pool_id}/milestones/{milestone_id}/release", s.handleReleaseMilestone)
	s.mux.HandleFunc("POST /v1/pools/{pool_id}/milestones/{milestone_id}/dispute", s.handleDisputeMilestone)
	s.mux.HandleFunc("POST /v1/pools/{pool_id}/milestones/{milestone_id}/abandon", s.handleAbandonMilestone)
}

func (s *Server) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req lifecyclehttp.CreatePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.engine.Handler.CreatePoolHandler(r.Context(), bearerToken(r), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.Handler.GetPoolHandler(r.Context(), r.PathValue("pool_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegisterCandidate(w http.ResponseWriter, r *http.Request) {
	var req lifecyclehttp.RegisterCandidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.engine.Handler.RegisterCandidateHandler(r.Context(), bearerToken(r), r.PathValue("pool_id"), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.Handler.ListCandidatesHandler(r.Context(), r.PathValue("pool_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleActivatePool(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.Handler.ActivatePoolHandler(r.Context(), bearerToken(r), r.PathValue("pool_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	var req lifecyclehttp.ContributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.engine.Handler.ContributeHandler(r.Context(), r.PathValue("pool_id"), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleEarlyWithdraw(w http.ResponseWriter, r *http.Request) {
	var req lifecyclehttp.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.engine.Handler.EarlyWithdrawHandler(r.Context(), r.PathValue("pool_id"), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req lifecyclehttp.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.engine.Handler.RefundHandler(r.Context(), r.PathValue("pool_id"), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLedgerEntries(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.Handler.LedgerEntriesHandler(r.Context(), r.PathValue("pool_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.Handler.BalanceHandler(r.Context(), r.PathValue("pool_id"), r.PathValue("contributor"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var req lifecyclehttp.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.engine.Handler.VoteHandler(r.Context(), r.PathValue("pool_id"), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleChangeVote(w http.ResponseWriter, r *http.Request) {
	var req lifecyclehttp.ChangeVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.engine.Handler.ChangeVoteHandler(r.Context(), r.PathValue("pool_id"), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStandings(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.Handler.StandingsHandler(r.Context(), r.PathValue("pool_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCloseVoting(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.Handler.CloseVotingHandler(r.Context(), r.PathValue("pool_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAllocationResult(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.Handler.AllocationResultHandler(r.Context(), r.PathValue("pool_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConfigureMilestones(w http.ResponseWriter, r *http.Request) {
	caller := r.Header.Get("X-User-Id")
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}
	var req lifecyclehttp.ConfigureMilestonesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.engine.Handler.ConfigureMilestonesHandler(r.Context(), r.PathValue("pool_id"), caller, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListMilestones(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.Handler.ListMilestonesHandler(r.Context(), r.PathValue("pool_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmitEvidence(w http.ResponseWriter, r *http.Request) {
	caller := r.Header.Get("X-User-Id")
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}
	var req lifecyclehttp.SubmitEvidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.engine.Handler.SubmitEvidenceHandler(
		r.Context(),
		r.PathValue("pool_id"),
		r.PathValue("milestone_id"),
		caller,
		req,
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleApproveMilestone(w http.ResponseWriter, r *http.Request) {
	var req lifecyclehttp.ApproveMilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.engine.Handler.ApproveMilestoneHandler(
		r.Context(),
		r.PathValue("pool_id"),
		r.PathValue("milestone_id"),
		req,
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReleaseMilestone(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.Handler.ReleaseMilestoneHandler(
		r.Context(),
		r.PathValue("pool_id"),
		r.PathValue("milestone_id"),
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDisputeMilestone(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.Handler.DisputeMilestoneHandler(
		r.Context(),
		bearerToken(r),
		r.PathValue("pool_id"),
		r.PathValue("milestone_id"),
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAbandonMilestone(w http.ResponseWriter, r *http.Request) {
	resp, err := s.engine.Handler.AbandonMilestoneHandler(
		r.Context(),
		bearerToken(r),
		r.PathValue("pool_id"),
		r.PathValue("milestone_id"),
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycleerrors.ErrPoolNotFound),
		errors.Is(err, lifecycleerrors.ErrCandidateNotFound),
		errors.Is(err, ledgererrors.ErrContributionNotFound),
		errors.Is(err, votingerrors.ErrVoteNotFound),
		errors.Is(err, escrowerrors.ErrMilestoneNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, lifecycleerrors.ErrPoolExists),
		errors.Is(err, lifecycleerrors.ErrCandidateExists),
		errors.Is(err, votingerrors.ErrVoteConflict),
		errors.Is(err, votingerrors.ErrAlreadyClosed),
		errors.Is(err, escrowerrors.ErrAlreadyConfigured),
		errors.Is(err, escrowerrors.ErrAlreadyCompleted):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, lifecycleerrors.ErrInvalidState),
		errors.Is(err, lifecycleerrors.ErrDeadlineNotReached),
		errors.Is(err, escrowerrors.ErrMilestoneDisputed),
		errors.Is(err, escrowerrors.ErrMilestoneAbandoned),
		errors.Is(err, escrowerrors.ErrInsufficientApprovals):
		writeError(w, http.StatusUnprocessableEntity, "invalid_state", err.Error())
	case errors.Is(err, lifecycleerrors.ErrIdentityRejected):
		writeError(w, http.StatusUnauthorized, "identity_rejected", err.Error())
	case errors.Is(err, lifecycleerrors.ErrNotAWinner),
		errors.Is(err, lifecycleerrors.ErrRecipientMismatch),
		errors.Is(err, lifecycleerrors.ErrNotAContributor):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, lifecycleerrors.ErrInvalidPoolInput),
		errors.Is(err, ledgererrors.ErrInvalidLedgerInput),
		errors.Is(err, ledgererrors.ErrBelowMinimum),
		errors.Is(err, ledgererrors.ErrAboveMaximum),
		errors.Is(err, ledgererrors.ErrUnsupportedAsset),
		errors.Is(err, votingerrors.ErrInvalidVoteInput),
		errors.Is(err, votingerrors.ErrNoVoteWeight),
		errors.Is(err, escrowerrors.ErrInvalidMilestoneInput),
		errors.Is(err, escrowerrors.ErrPercentBudgetExceeded),
		errors.Is(err, money.ErrArithmeticOverflow):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, lifecycleerrors.ErrSettlementFailed):
		writeError(w, http.StatusBadGateway, "settlement_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, lifecyclehttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(header)
}
