package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openbid/auctiond/internal/auction/events"
	"github.com/openbid/auctiond/internal/models"
)

// AutoRunStatus reports the unattended-mode state.
type AutoRunStatus struct {
	Active      bool `json:"active"`
	QueueLength int  `json:"queue_length"`
	CarryCount  int  `json:"carry_count"`
	Round       int  `json:"round"`
}

// StartAutoRun builds the lot queue from all non-sold lots and begins
// sequencing them unattended.
func (e *Engine) StartAutoRun(ctx context.Context) error {
	e.mu.Lock()
	if e.autoRun {
		e.mu.Unlock()
		return ErrAutoRunActive
	}
	e.autoRun = true
	e.mu.Unlock()

	lots, err := e.lots.ListUnsoldLots(ctx)
	if err != nil {
		e.mu.Lock()
		e.autoRun = false
		e.mu.Unlock()
		return fmt.Errorf("list lots for auto-run: %w", err)
	}

	e.mu.Lock()
	e.queue.Build(lots)
	qp := e.queueProgressLocked()
	busy := e.state.IsActive
	e.mu.Unlock()

	log.Info().Int("lots", len(lots)).Msg("auto-run started")
	e.hub.BroadcastControl(qp)

	if !busy {
		e.advance(ctx)
	}
	return nil
}

// StopAutoRun turns unattended mode off and cancels any pending delayed
// advance so it cannot fire after the mode changed. A lot currently in
// auction finishes normally.
func (e *Engine) StopAutoRun(ctx context.Context) error {
	e.mu.Lock()
	if !e.autoRun {
		e.mu.Unlock()
		return ErrAutoRunInactive
	}
	e.autoRun = false
	e.cancelCooldownLocked()
	e.queue.Reset()
	qp := e.queueProgressLocked()
	e.mu.Unlock()

	log.Info().Msg("auto-run stopped")
	e.hub.BroadcastControl(qp)
	return nil
}

// AutoRunStatus returns the current unattended-mode state.
func (e *Engine) AutoRunStatus() AutoRunStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.autoRunStatusLocked()
}

func (e *Engine) autoRunStatusLocked() AutoRunStatus {
	return AutoRunStatus{
		Active:      e.autoRun,
		QueueLength: e.queue.Len(),
		CarryCount:  e.queue.CarryLen(),
		Round:       e.queue.Round(),
	}
}

// scheduleAdvance arms the cool-down delay before the next lot. The delay is
// cancellable; stopping auto-run or pausing stops the timer, and a trigger
// that fires anyway re-checks the mode flag before doing anything.
func (e *Engine) scheduleAdvance() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.autoRun {
		return
	}
	e.scheduleAdvanceLocked()
}

func (e *Engine) scheduleAdvanceLocked() {
	e.cancelCooldownLocked()
	e.cooldownTimer = e.clock.AfterFunc(time.Duration(e.cfg.CooldownSec)*time.Second, func() {
		e.advance(context.Background())
	})
}

func (e *Engine) cancelCooldownLocked() {
	if e.cooldownTimer != nil {
		e.cooldownTimer.Stop()
		e.cooldownTimer = nil
	}
}

// advance pops lots until one starts, the queue drains, or the presentation
// lock defers the attempt. Iterative by design; a pathological
// repeatedly-unsold cycle never recurses.
func (e *Engine) advance(ctx context.Context) {
	for {
		e.mu.Lock()
		if !e.autoRun || e.state.IsActive || e.state.IsPaused {
			e.mu.Unlock()
			return
		}
		id, newRound, ok := e.queue.Advance()
		if !ok {
			e.autoRun = false
			rounds := e.queue.Round()
			e.queue.Reset()
			now := e.clock.Now().UTC()
			e.mu.Unlock()

			log.Info().Int("rounds", rounds).Msg("auto-run completed")
			e.hub.BroadcastControl(events.New(events.TypeAutoRunCompleted, events.AutoRunCompletedPayload{
				Rounds:      rounds,
				CompletedAt: now,
			}))
			return
		}
		var roundEvt *events.Event
		if newRound {
			evt := events.New(events.TypeNewRound, events.NewRoundPayload{
				Round: e.queue.Round(),
				Count: e.queue.Len() + 1,
			})
			roundEvt = &evt
		}
		e.mu.Unlock()

		if roundEvt != nil {
			e.hub.BroadcastControl(*roundEvt)
		}

		lot, err := e.lots.GetLot(ctx, id)
		if err != nil {
			log.Error().Err(err).Str("lot_id", id.String()).Msg("auto-run skipping unreadable lot")
			continue
		}
		// Sold out-of-band since the queue was built: skip without a timer.
		if lot.Status == models.LotStatusSold {
			log.Info().Str("lot_id", id.String()).Msg("auto-run skipping lot sold out-of-band")
			continue
		}

		held, err := e.plock.Held(ctx)
		if err != nil {
			log.Error().Err(err).Msg("presentation lock check failed, deferring advance")
			held = true
		}
		if held {
			e.mu.Lock()
			if e.autoRun {
				e.queue.PushFront(id)
				e.scheduleAdvanceLocked()
			}
			e.mu.Unlock()
			log.Info().Str("lot_id", id.String()).Msg("presentation in progress, retrying later")
			return
		}

		e.mu.Lock()
		if !e.autoRun || e.state.IsActive || e.state.IsPaused {
			e.mu.Unlock()
			return
		}
		evt, err := e.startLotLocked(ctx, lot)
		var qp events.Event
		if err == nil {
			qp = e.queueProgressLocked()
		}
		e.mu.Unlock()

		if err != nil {
			if errors.Is(err, ErrLotNotSellable) {
				continue
			}
			log.Error().Err(err).Str("lot_id", id.String()).Msg("auto-run failed to start lot")
			continue
		}

		e.hub.Broadcast(evt)
		e.hub.BroadcastControl(qp)
		return
	}
}
