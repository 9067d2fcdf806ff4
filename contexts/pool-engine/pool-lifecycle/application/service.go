package application

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	ledgerapp "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/application"
	escrowapp "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/application"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/entities"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/errors"
	domainservices "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/services"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/ports"
	votingcommands "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/application/commands"
	votingqueries "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/application/queries"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/shared/money"
)

// Service is the lifecycle controller: the single mutation entry point of the
// pool engine. It owns the state machine, resolves policies, and orchestrates
// the ledger, voting, and escrow services. Writes to one pool are serialized
// through a per-pool lock; settlement-rail calls happen outside the lock.
type Service struct {
	Pools    ports.PoolRepository
	Outbox   ports.OutboxRepository
	Ledger   ledgerapp.Service
	Votes    votingcommands.VoteUseCase
	Close    votingcommands.CloseUseCase
	Tallies  votingqueries.TallyUseCase
	Escrow   escrowapp.Service
	Rail     ports.SettlementRail
	Identity ports.IdentityVerifier
	Policies domainservices.PolicySet
	UoW      ports.UnitOfWork
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Logger   *slog.Logger

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// inTransaction runs fn inside one unit of work so a multi-repository write
// sequence commits or rolls back as a whole. Callers acquire the pool lock
// before opening the unit of work, never the other way around.
func (s *Service) inTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.UoW == nil {
		return fn(ctx)
	}
	return s.UoW.InTransaction(ctx, fn)
}

// poolLock returns the mutex serializing writes for one pool.
func (s *Service) poolLock(poolID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if s.locks == nil {
		s.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := s.locks[poolID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[poolID] = lock
	}
	return lock
}

// CreatePoolInput defines a new pool. Amounts are smallest units of
// FundingAssetID, the fee is basis points of each gross contribution.
type CreatePoolInput struct {
	Token           string
	Name            string
	Controller      string
	FundingAssetID  string
	FundingGoal     int64
	MinContribution int64
	MaxContribution *int64
	FeeBasisPoints  int64
	FeeRecipient    string
	VotingDeadline  time.Time
	MaxWinners      int
}

// CreatePool registers a pool in the inactive state. Candidates are added
// while inactive; activation opens the pool for contributions and votes.
func (s *Service) CreatePool(ctx context.Context, in CreatePoolInput) (entities.Pool, error) {
	logger := resolveLogger(s.Logger)
	if strings.TrimSpace(in.Name) == "" ||
		strings.TrimSpace(in.Controller) == "" ||
		strings.TrimSpace(in.FundingAssetID) == "" ||
		strings.TrimSpace(in.FeeRecipient) == "" {
		return entities.Pool{}, domainerrors.ErrInvalidPoolInput
	}
	if in.FundingGoal <= 0 || in.MinContribution < 0 || in.MaxWinners < 0 {
		return entities.Pool{}, domainerrors.ErrInvalidPoolInput
	}
	if in.FeeBasisPoints < 0 || in.FeeBasisPoints > money.BpsDenominator {
		return entities.Pool{}, domainerrors.ErrInvalidPoolInput
	}
	if in.MaxContribution != nil && *in.MaxContribution < in.MinContribution {
		return entities.Pool{}, domainerrors.ErrInvalidPoolInput
	}
	now := s.now()
	if !in.VotingDeadline.After(now) {
		return entities.Pool{}, domainerrors.ErrInvalidPoolInput
	}
	if err := s.verifyController(ctx, in.Token, in.Controller); err != nil {
		return entities.Pool{}, err
	}

	poolID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return entities.Pool{}, err
	}
	pool := entities.Pool{
		PoolID:          poolID,
		Name:            strings.TrimSpace(in.Name),
		Controller:      strings.TrimSpace(in.Controller),
		FundingAssetID:  strings.TrimSpace(in.FundingAssetID),
		FundingGoal:     in.FundingGoal,
		MinContribution: in.MinContribution,
		MaxContribution: in.MaxContribution,
		FeeBasisPoints:  in.FeeBasisPoints,
		FeeRecipient:    strings.TrimSpace(in.FeeRecipient),
		VotingDeadline:  in.VotingDeadline.UTC(),
		MaxWinners:      in.MaxWinners,
		Status:          entities.PoolStatusInactive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.Pools.CreatePool(ctx, pool); err != nil {
		return entities.Pool{}, err
	}

	logger.Info("pool created",
		"event", "lifecycle_pool_created",
		"module", "pool-engine/pool-lifecycle",
		"layer", "application",
		"pool_id", pool.PoolID,
		"funding_goal", pool.FundingGoal,
		"voting_deadline", pool.VotingDeadline,
	)
	return pool, nil
}

// RegisterCandidateInput adds a funding target to an inactive pool.
type RegisterCandidateInput struct {
	Token       string
	PoolID      string
	CandidateID string
	Name        string
	Recipient   string
}

// RegisterCandidate adds a candidate to the registry. Only the controller may
// register, and only before activation.
func (s *Service) RegisterCandidate(ctx context.Context, in RegisterCandidateInput) (entities.Candidate, error) {
	if strings.TrimSpace(in.CandidateID) == "" ||
		strings.TrimSpace(in.Name) == "" ||
		strings.TrimSpace(in.Recipient) == "" {
		return entities.Candidate{}, domainerrors.ErrInvalidPoolInput
	}

	lock := s.poolLock(strings.TrimSpace(in.PoolID))
	lock.Lock()
	defer lock.Unlock()

	pool, err := s.loadPool(ctx, in.PoolID)
	if err != nil {
		return entities.Candidate{}, err
	}
	if pool.Status != entities.PoolStatusInactive {
		return entities.Candidate{}, domainerrors.ErrInvalidState
	}
	if err := s.verifyController(ctx, in.Token, pool.Controller); err != nil {
		return entities.Candidate{}, err
	}

	candidate := entities.Candidate{
		PoolID:       pool.PoolID,
		CandidateID:  strings.TrimSpace(in.CandidateID),
		Name:         strings.TrimSpace(in.Name),
		Recipient:    strings.TrimSpace(in.Recipient),
		RegisteredAt: s.now(),
	}
	if err := s.Pools.RegisterCandidate(ctx, candidate); err != nil {
		return entities.Candidate{}, err
	}
	return candidate, nil
}

// ActivatePool opens an inactive pool for contributions and votes. At least
// one registered candidate is required.
func (s *Service) ActivatePool(ctx context.Context, token string, poolID string) (entities.Pool, error) {
	lock := s.poolLock(strings.TrimSpace(poolID))
	lock.Lock()
	defer lock.Unlock()

	pool, err := s.loadPool(ctx, poolID)
	if err != nil {
		return entities.Pool{}, err
	}
	if pool.Status != entities.PoolStatusInactive {
		return entities.Pool{}, domainerrors.ErrInvalidState
	}
	if err := s.verifyController(ctx, token, pool.Controller); err != nil {
		return entities.Pool{}, err
	}
	candidates, err := s.Pools.ListCandidates(ctx, pool.PoolID)
	if err != nil {
		return entities.Pool{}, err
	}
	if len(candidates) == 0 {
		return entities.Pool{}, domainerrors.ErrInvalidState
	}

	now := s.now()
	pool.Status = entities.PoolStatusActive
	pool.ActivatedAt = &now
	pool.UpdatedAt = now
	if err := s.inTransaction(ctx, func(ctx context.Context) error {
		if err := s.Pools.SavePool(ctx, pool); err != nil {
			return err
		}
		return s.appendEvent(ctx, EventPoolActivated, pool.PoolID, PoolActivatedEvent{
			PoolID:         pool.PoolID,
			FundingGoal:    pool.FundingGoal,
			VotingDeadline: pool.VotingDeadline,
			CandidateCount: len(candidates),
			ActivatedAt:    now,
		})
	}); err != nil {
		return entities.Pool{}, err
	}
	return pool, nil
}

func (s *Service) loadPool(ctx context.Context, poolID string) (entities.Pool, error) {
	pool, found, err := s.Pools.GetPool(ctx, strings.TrimSpace(poolID))
	if err != nil {
		return entities.Pool{}, err
	}
	if !found {
		return entities.Pool{}, domainerrors.ErrPoolNotFound
	}
	return pool, nil
}

func (s *Service) verifyController(ctx context.Context, token string, controller string) error {
	if s.Identity == nil {
		return nil
	}
	return s.Identity.VerifyController(ctx, token, strings.TrimSpace(controller))
}

func (s *Service) now() time.Time {
	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now().UTC()
	}
	return now
}

func resolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
