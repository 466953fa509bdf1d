package main

import (
	"context"
	"fmt"
)

// Start claws back the fee of a disputed refresh. It is the hook the challenge
// subsystem calls when a dispute against (target, pathfinder) is opened; the
// returned fee is the subsystem's to dispose of.
//
// Disputes are only accepted while the round takes updates and while the
// record is younger than the confirmation period. A rejected dispute leaves
// the record and payroll untouched; the pallet this follows purged the record
// of a timed-out dispute as well.
func (e *Engine) Start(ctx context.Context, target, pathfinder AccountID) (Amount, error) {
	return e.StartWith(ctx, target, pathfinder, nil)
}

// StartWith is Start with commit run under the engine lock once the dispute
// is accepted, so whatever commit records is visible to the next operation
// together with the clawback. A commit error rejects the dispute.
func (e *Engine) StartWith(ctx context.Context, target, pathfinder AccountID, commit func(fee Amount) error) (fee Amount, err error) {
	_, span, start := e.startSpan(ctx, "start_challenge", pathfinder)
	defer func() { e.endSpan(span, "start_challenge", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if !e.reputation.UpdatesAllowed(now) {
		return 0, ErrNoUpdatesAllowed
	}

	record, exists := e.store.Record(pathfinder, target)
	if !exists {
		return 0, fmt.Errorf("%w: pathfinder %s target %s", ErrRecordNotFound, pathfinder, target)
	}
	// A deadline past the end of time never expires
	if deadline, err := record.UpdateAt.CheckedAdd(e.params.ConfirmationPeriod); err == nil && deadline <= now {
		RecordChallenge("timeout")
		return 0, ErrChallengeTimeout
	}

	if commit != nil {
		if err := commit(record.Fee); err != nil {
			RecordChallenge("rejected")
			return 0, err
		}
	}

	e.store.TakeRecord(pathfinder, target)
	e.store.DebitPayroll(pathfinder, record.Fee)
	RecordChallenge("accepted")

	e.events.Emit(Event{
		Kind:    EventChallengeAccepted,
		Block:   now,
		Actor:   pathfinder,
		Subject: target,
		Count:   1,
		Amount:  record.Fee,
	})
	return record.Fee, nil
}
