package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// SettlementHook is the engine surface the challenge desk depends on
type SettlementHook interface {
	StartWith(ctx context.Context, target, pathfinder AccountID, commit func(fee Amount) error) (Amount, error)
	Atomically(fn func() error) error
}

// Challenge is a dispute against one refresh record. The clawed-back fee is
// held as a bounty until the challenger harvests it.
type Challenge struct {
	ID          string      `json:"id"`
	Challenger  AccountID   `json:"challenger"`
	Target      AccountID   `json:"target"`
	Pathfinder  AccountID   `json:"pathfinder"`
	Bounty      Amount      `json:"bounty"`
	OpenedAt    BlockNumber `json:"openedAt"`
	Harvested   bool        `json:"harvested"`
	HarvestedAt BlockNumber `json:"harvestedAt,omitempty"`
}

// ChallengeDesk tracks disputes and reports whether all of them were harvested
type ChallengeDesk struct {
	mu         sync.RWMutex
	challenges map[string]*Challenge
	hook       SettlementHook
	ledger     Ledger
	asset      AssetID
	clock      Clock
	events     EventSink
}

// NewChallengeDesk creates a desk paying bounties in asset through ledger
func NewChallengeDesk(ledger Ledger, asset AssetID, clock Clock, events EventSink) *ChallengeDesk {
	return &ChallengeDesk{
		challenges: make(map[string]*Challenge),
		ledger:     ledger,
		asset:      asset,
		clock:      clock,
		events:     events,
	}
}

// Bind connects the desk to the engine it adjudicates against
func (d *ChallengeDesk) Bind(hook SettlementHook) {
	d.hook = hook
}

// AllHarvested reports whether no challenge is outstanding
func (d *ChallengeDesk) AllHarvested() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, c := range d.challenges {
		if !c.Harvested {
			return false
		}
	}
	return true
}

// Open disputes the record of (pathfinder, target) on behalf of challenger
func (d *ChallengeDesk) Open(ctx context.Context, challenger, target, pathfinder AccountID) (Challenge, error) {
	if d.hook == nil {
		return Challenge{}, errors.New("challenge desk is not bound to an engine")
	}

	var c *Challenge
	var outstanding int
	// Tracked in the same engine step as the clawback
	fee, err := d.hook.StartWith(ctx, target, pathfinder, func(fee Amount) error {
		c = &Challenge{
			ID:         uuid.New().String(),
			Challenger: challenger,
			Target:     target,
			Pathfinder: pathfinder,
			Bounty:     fee,
			OpenedAt:   d.clock.Now(),
		}

		d.mu.Lock()
		d.challenges[c.ID] = c
		outstanding = d.outstandingLocked()
		d.mu.Unlock()
		return nil
	})
	if err != nil {
		return Challenge{}, err
	}

	UpdateOutstandingChallengesGauge(outstanding)
	if d.events != nil {
		d.events.Emit(Event{
			Kind:    EventChallengeOpened,
			Block:   c.OpenedAt,
			Actor:   challenger,
			Subject: pathfinder,
			Amount:  fee,
		})
	}
	return *c, nil
}

// Harvest pays the bounty of a challenge to its challenger and resolves it
func (d *ChallengeDesk) Harvest(ctx context.Context, id string, caller AccountID) (Challenge, error) {
	if d.hook == nil {
		return Challenge{}, errors.New("challenge desk is not bound to an engine")
	}

	var harvested Challenge
	var outstanding int
	err := d.hook.Atomically(func() error {
		d.mu.Lock()
		defer d.mu.Unlock()

		c, exists := d.challenges[id]
		if !exists {
			return fmt.Errorf("%w: %s", ErrChallengeNotFound, id)
		}
		if c.Harvested {
			return fmt.Errorf("%w: %s", ErrChallengeHarvested, id)
		}
		if c.Challenger != caller {
			return ErrNotChallenger
		}
		if c.Bounty > 0 {
			if err := d.ledger.Release(d.asset, c.Challenger, c.Bounty); err != nil {
				return fmt.Errorf("release bounty of challenge %s: %w", id, err)
			}
		}
		c.Harvested = true
		c.HarvestedAt = d.clock.Now()
		harvested = *c
		outstanding = d.outstandingLocked()
		return nil
	})
	if err != nil {
		return Challenge{}, err
	}

	UpdateOutstandingChallengesGauge(outstanding)
	if d.events != nil {
		d.events.Emit(Event{
			Kind:    EventChallengeHarvested,
			Block:   harvested.HarvestedAt,
			Actor:   caller,
			Subject: harvested.Pathfinder,
			Amount:  harvested.Bounty,
		})
	}
	return harvested, nil
}

func (d *ChallengeDesk) outstandingLocked() int {
	n := 0
	for _, c := range d.challenges {
		if !c.Harvested {
			n++
		}
	}
	return n
}

// Get returns one challenge
func (d *ChallengeDesk) Get(id string) (Challenge, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, exists := d.challenges[id]
	if !exists {
		return Challenge{}, false
	}
	return *c, true
}

// List returns the challenges ordered by opening block, outstanding only when
// includeHarvested is false
func (d *ChallengeDesk) List(includeHarvested bool) []Challenge {
	d.mu.RLock()
	defer d.mu.RUnlock()

	list := make([]Challenge, 0, len(d.challenges))
	for _, c := range d.challenges {
		if c.Harvested && !includeHarvested {
			continue
		}
		list = append(list, *c)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].OpenedAt != list[j].OpenedAt {
			return list[i].OpenedAt < list[j].OpenedAt
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// Restore replaces the desk contents
func (d *ChallengeDesk) Restore(challenges []Challenge) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.challenges = make(map[string]*Challenge, len(challenges))
	for i := range challenges {
		c := challenges[i]
		d.challenges[c.ID] = &c
	}
}
