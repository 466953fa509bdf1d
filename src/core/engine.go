package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrDuplicateTarget is returned when a refresh batch names a target twice
var ErrDuplicateTarget = errors.New("duplicate target in refresh batch")

const tracerName = "github.com/quidnug/pathfinder"

// EngineParams are the fixed economic parameters of the settlement engine
type EngineParams struct {
	Asset               AssetID     `json:"asset" yaml:"asset"`
	MaxUpdateCount      uint32      `json:"maxUpdateCount" yaml:"maxUpdateCount"`
	UpdateStakingAmount Amount      `json:"updateStakingAmount" yaml:"updateStakingAmount"`
	ConfirmationPeriod  BlockNumber `json:"confirmationPeriod" yaml:"confirmationPeriod"`
	ShareRatio          Ratio       `json:"shareRatio" yaml:"shareRatio"`
	SelfRatio           Ratio       `json:"selfRatio" yaml:"selfRatio"`
	FeeRatio            Ratio       `json:"feeRatio" yaml:"feeRatio"`
}

// Validate rejects ratios that would allocate more than a whole social balance
func (p EngineParams) Validate() error {
	if p.Asset == "" {
		return errors.New("asset must be set")
	}
	if !p.ShareRatio.Valid() || !p.SelfRatio.Valid() || !p.FeeRatio.Valid() {
		return fmt.Errorf("%w: each ratio must be within [0, 1]", ErrInvalidRatios)
	}
	sum := uint64(p.ShareRatio) + uint64(p.SelfRatio) + uint64(p.FeeRatio)
	if sum > RatioDenominator {
		return fmt.Errorf("%w: share %s + self %s + fee %s exceeds 1",
			ErrInvalidRatios, p.ShareRatio, p.SelfRatio, p.FeeRatio)
	}
	return nil
}

// EnginePorts are the collaborators the engine settles through
type EnginePorts struct {
	Ledger     Ledger
	Reputation Reputation
	TrustGraph TrustGraph
	Challenges ChallengeLedger
	Policy     FeeSplitPolicy
	Clock      Clock
	Events     EventSink
}

// Engine is the round controller. Every public operation runs under one
// lock and either commits completely or leaves no trace.
type Engine struct {
	mu     sync.Mutex
	params EngineParams
	store  *SettlementStore

	ledger     Ledger
	reputation Reputation
	trust      TrustGraph
	challenges ChallengeLedger
	policy     FeeSplitPolicy
	clock      Clock
	events     EventSink

	tracer trace.Tracer
}

// NewEngine validates the parameters and wires the ports
func NewEngine(params EngineParams, ports EnginePorts) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if ports.Ledger == nil || ports.Reputation == nil || ports.TrustGraph == nil ||
		ports.Challenges == nil || ports.Policy == nil || ports.Clock == nil {
		return nil, errors.New("engine requires ledger, reputation, trust graph, challenge ledger, policy and clock")
	}
	events := ports.Events
	if events == nil {
		events = NewEventLog(DefaultEventLogSize)
	}

	return &Engine{
		params:     params,
		store:      NewSettlementStore(),
		ledger:     ports.Ledger,
		reputation: ports.Reputation,
		trust:      ports.TrustGraph,
		challenges: ports.Challenges,
		policy:     ports.Policy,
		clock:      ports.Clock,
		events:     events,
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// Params returns the engine parameters
func (e *Engine) Params() EngineParams {
	return e.params
}

// checkpoint collects rollbacks from every port able to undo its side effects
func (e *Engine) checkpoint() func() {
	var undo []func()
	for _, port := range []interface{}{e.ledger, e.reputation} {
		if c, ok := port.(Checkpointer); ok {
			undo = append(undo, c.Checkpoint())
		}
	}
	return func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}
}

func (e *Engine) startSpan(ctx context.Context, operation string, caller AccountID) (context.Context, trace.Span, time.Time) {
	ctx, span := e.tracer.Start(ctx, "settlement."+operation,
		trace.WithAttributes(attribute.String("caller", string(caller))))
	return ctx, span, time.Now()
}

func (e *Engine) endSpan(span trace.Span, operation string, start time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	RecordSettlementOperation(operation, time.Since(start), err)
}

// NewRound opens the next round and drains every payroll. Each pathfinder
// receives its payroll minus the proxy cut; the caller receives the sum of cuts.
func (e *Engine) NewRound(ctx context.Context, caller AccountID) (proxyTotal Amount, err error) {
	_, span, start := e.startSpan(ctx, "new_round", caller)
	defer func() { e.endSpan(span, "new_round", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()

	if !e.challenges.AllHarvested() {
		return 0, ErrChallengeNotClaimed
	}
	if _, _, ok := e.policy.SplitChecked(0, e.reputation.LastRefreshTime(), now); !ok {
		return 0, ErrChallengeTimeout
	}

	type payout struct {
		pathfinder AccountID
		amount     Amount
	}
	payrolls := e.store.Payrolls()
	payouts := make([]payout, 0, len(payrolls))
	for _, entry := range payrolls {
		total, err := entry.TotalAmount(e.params.UpdateStakingAmount)
		if err != nil {
			return 0, fmt.Errorf("payroll of %s: %w", entry.Pathfinder, err)
		}
		cut, remainder := e.policy.Split(total)
		proxyTotal, err = proxyTotal.CheckedAdd(cut)
		if err != nil {
			return 0, err
		}
		payouts = append(payouts, payout{pathfinder: entry.Pathfinder, amount: remainder})
	}

	rollback := e.checkpoint()
	defer func() {
		if err != nil {
			rollback()
		}
	}()

	if err := e.reputation.BeginRound(now); err != nil {
		return 0, err
	}
	for _, p := range payouts {
		if p.amount == 0 {
			continue
		}
		if err := e.ledger.Release(e.params.Asset, p.pathfinder, p.amount); err != nil {
			return 0, fmt.Errorf("release payroll of %s: %w", p.pathfinder, err)
		}
	}
	if proxyTotal > 0 {
		if err := e.ledger.Release(e.params.Asset, caller, proxyTotal); err != nil {
			return 0, fmt.Errorf("release round incentive to %s: %w", caller, err)
		}
	}

	e.store.ClearPayrolls()
	RecordPayrollsDrained("round", len(payouts))
	UpdateOutstandingPayrollsGauge(0)

	e.events.Emit(Event{
		Kind:   EventRoundStarted,
		Block:  now,
		Actor:  caller,
		Count:  uint32(len(payouts)),
		Amount: proxyTotal,
	})
	return proxyTotal, nil
}

// Refresh stakes collateral for a batch of score updates, applies the scores,
// shares each target's social balance and accrues the fees to the pathfinder.
func (e *Engine) Refresh(ctx context.Context, pathfinder AccountID, scores []UserScore) (totalFee Amount, err error) {
	_, span, start := e.startSpan(ctx, "refresh", pathfinder)
	span.SetAttributes(attribute.Int("updates", len(scores)))
	defer func() { e.endSpan(span, "refresh", start, err) }()

	if uint64(len(scores)) > uint64(e.params.MaxUpdateCount) {
		return 0, ErrQuantityLimitReached
	}
	seen := make(map[AccountID]bool, len(scores))
	for _, us := range scores {
		if seen[us.Target] {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateTarget, us.Target)
		}
		seen[us.Target] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if !e.reputation.UpdatesAllowed(now) {
		return 0, ErrNoUpdatesAllowed
	}

	count := uint32(len(scores))
	stake, err := e.params.UpdateStakingAmount.CheckedMul(uint64(count))
	if err != nil {
		return 0, err
	}

	rollback := e.checkpoint()
	defer func() {
		if err != nil {
			rollback()
		}
	}()

	if err := e.ledger.Stake(e.params.Asset, pathfinder, stake); err != nil {
		return 0, fmt.Errorf("stake %d for %d updates: %w", stake, count, err)
	}

	staged := make([]RecordEntry, 0, len(scores))
	for _, us := range scores {
		if err := e.reputation.ApplyScore(us.Target, us.Score); err != nil {
			return 0, fmt.Errorf("apply score of %s: %w", us.Target, err)
		}
		fee, err := e.share(us.Target)
		if err != nil {
			return 0, err
		}
		totalFee, err = totalFee.CheckedAdd(fee)
		if err != nil {
			return 0, err
		}
		staged = append(staged, RecordEntry{Target: us.Target, Record: Record{UpdateAt: now, Fee: fee}})
	}

	if err := e.store.AddPayroll(pathfinder, count, totalFee); err != nil {
		return 0, err
	}
	for _, entry := range staged {
		e.store.PutRecord(pathfinder, entry.Target, entry.Record)
	}
	e.reputation.MarkRefreshed(now)

	RecordFeesAccrued(totalFee)
	UpdateOutstandingPayrollsGauge(len(e.store.payrolls))

	e.events.Emit(Event{
		Kind:   EventReputationRefreshed,
		Block:  now,
		Actor:  pathfinder,
		Count:  count,
		Amount: totalFee,
	})
	return totalFee, nil
}

// ReceiverAll pays the pathfinder its whole payroll once the refresh phase ended
func (e *Engine) ReceiverAll(ctx context.Context, pathfinder AccountID) (total Amount, err error) {
	_, span, start := e.startSpan(ctx, "receiver_all", pathfinder)
	defer func() { e.endSpan(span, "receiver_all", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if err := e.reputation.RefreshPhaseEnded(now); err != nil {
		return 0, err
	}

	payroll := e.store.Payroll(pathfinder)
	total, err = payroll.TotalAmount(e.params.UpdateStakingAmount)
	if err != nil {
		return 0, err
	}

	rollback := e.checkpoint()
	defer func() {
		if err != nil {
			rollback()
		}
	}()

	if total > 0 {
		if err := e.ledger.Release(e.params.Asset, pathfinder, total); err != nil {
			return 0, fmt.Errorf("release payroll of %s: %w", pathfinder, err)
		}
	}
	e.store.TakePayroll(pathfinder)
	removed := e.store.RemoveRecords(pathfinder)

	RecordPayrollsDrained("self", 1)
	UpdateOutstandingPayrollsGauge(len(e.store.payrolls))
	logger.Debug("Payroll claimed", "pathfinder", pathfinder, "total", total, "recordsRemoved", removed)

	e.events.Emit(Event{
		Kind:   EventPayrollClaimed,
		Block:  now,
		Actor:  pathfinder,
		Count:  payroll.Count,
		Amount: total,
	})
	return total, nil
}

// ReceiverAllProxy settles an idle pathfinder's payroll on its behalf. The
// proxy keeps the policy cut, which is only granted after the grace period.
func (e *Engine) ReceiverAllProxy(ctx context.Context, proxy, pathfinder AccountID) (cut Amount, err error) {
	_, span, start := e.startSpan(ctx, "receiver_all_proxy", proxy)
	span.SetAttributes(attribute.String("pathfinder", string(pathfinder)))
	defer func() { e.endSpan(span, "receiver_all_proxy", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if err := e.reputation.RefreshPhaseEnded(now); err != nil {
		return 0, err
	}

	payroll := e.store.Payroll(pathfinder)
	total, err := payroll.TotalAmount(e.params.UpdateStakingAmount)
	if err != nil {
		return 0, err
	}
	cut, remainder, ok := e.policy.SplitChecked(total, e.reputation.LastUpdateTime(), now)
	if !ok {
		return 0, ErrFailedProxy
	}

	rollback := e.checkpoint()
	defer func() {
		if err != nil {
			rollback()
		}
	}()

	if cut > 0 {
		if err := e.ledger.Release(e.params.Asset, proxy, cut); err != nil {
			return 0, fmt.Errorf("release proxy cut to %s: %w", proxy, err)
		}
	}
	if remainder > 0 {
		if err := e.ledger.Release(e.params.Asset, pathfinder, remainder); err != nil {
			return 0, fmt.Errorf("release payroll of %s: %w", pathfinder, err)
		}
	}
	e.store.TakePayroll(pathfinder)
	e.store.RemoveRecords(pathfinder)

	RecordPayrollsDrained("proxy", 1)
	UpdateOutstandingPayrollsGauge(len(e.store.payrolls))

	e.events.Emit(Event{
		Kind:    EventProxyClaimed,
		Block:   now,
		Actor:   proxy,
		Subject: pathfinder,
		Count:   payroll.Count,
		Amount:  cut,
	})
	return cut, nil
}

// Atomically runs fn under the engine lock and undoes its ledger side effects
// when it fails. Ledger writes from outside the engine go through here so they
// never interleave with a settlement operation.
func (e *Engine) Atomically(fn func() error) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rollback := e.checkpoint()
	defer func() {
		if err != nil {
			rollback()
		}
	}()
	return fn()
}

// Payroll returns the pathfinder's payroll and records
func (e *Engine) Payroll(pathfinder AccountID) (Payroll, []RecordEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.store.Payroll(pathfinder), e.store.Records(pathfinder)
}

// Payrolls lists every outstanding payroll
func (e *Engine) Payrolls() []PayrollEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.store.Payrolls()
}

// SnapshotStore copies the payroll and record stores
func (e *Engine) SnapshotStore() StoreSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.store.Snapshot()
}

// RestoreStore replaces the payroll and record stores
func (e *Engine) RestoreStore(snap StoreSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.store.Restore(snap)
	UpdateOutstandingPayrollsGauge(len(e.store.payrolls))
}
