// Package playback replays a recorded trajectory step by step,
// converting each waypoint back into a motion command and waiting for
// completion with a bounded timeout before advancing.
package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/telemotion/armrec/internal/log"
	"github.com/telemotion/armrec/pkg/driver"
	"github.com/telemotion/armrec/pkg/motion"
	"github.com/telemotion/armrec/pkg/state"
)

// Sender dispatches commands to the arm. Implemented by
// driver.Adapter.
type Sender interface {
	Send(cmd motion.Command) error
	WaitIdle(ctx context.Context, timeout time.Duration) error
}

// Engine is the playback state machine:
// STOPPED -> RUNNING -> {PAUSED, STOPPED} -> RUNNING|STOPPED.
// Failed steps are skipped, not fatal: a long recorded sequence
// survives a single rejected or slow step.
type Engine struct {
	sender      Sender
	dof         int
	stepPeriod  time.Duration
	stepTimeout time.Duration

	mu      sync.Mutex
	traj    *motion.Trajectory
	machine state.PlaybackState
	cursor  int
	failed  []int
	cancel  context.CancelFunc
	done    chan struct{}

	// onProgress reports every cursor/state change.
	onProgress func(state.PlaybackProgress)
}

// New creates an engine stepping every stepPeriod and waiting at most
// stepTimeout for each command to complete.
func New(sender Sender, dof int, stepPeriod, stepTimeout time.Duration) *Engine {
	return &Engine{
		sender:      sender,
		dof:         dof,
		stepPeriod:  stepPeriod,
		stepTimeout: stepTimeout,
		machine:     state.Stopped,
	}
}

// OnProgress registers the progress callback.
func (e *Engine) OnProgress(fn func(state.PlaybackProgress)) {
	e.mu.Lock()
	e.onProgress = fn
	e.mu.Unlock()
}

// Start begins replaying traj from the top. Fails if a replay is
// already running. The trajectory is read-only to the engine.
func (e *Engine) Start(traj *motion.Trajectory) error {
	e.mu.Lock()
	if e.machine != state.Stopped {
		e.mu.Unlock()
		return errors.New("playback already in progress")
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.traj = traj
	e.machine = state.Running
	e.cursor = 0
	e.failed = nil
	e.cancel = cancel
	e.done = make(chan struct{})
	e.reportLocked()
	e.mu.Unlock()

	log.Info("playback started", "waypoints", traj.Len())
	go e.run(ctx)
	return nil
}

// Pause holds the cursor; the current command may still complete.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.machine != state.Running {
		return errors.New("playback not running")
	}
	e.machine = state.Paused
	e.reportLocked()
	return nil
}

// Resume continues from the held cursor.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.machine != state.Paused {
		return errors.New("playback not paused")
	}
	e.machine = state.Running
	e.reportLocked()
	return nil
}

// Stop cancels the replay and resets the cursor. It takes effect
// before the next step tick; at most the in-flight command completes.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.machine == state.Stopped {
		e.mu.Unlock()
		return nil
	}
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Progress returns the current playback progress.
func (e *Engine) Progress() state.PlaybackProgress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progressLocked()
}

func (e *Engine) progressLocked() state.PlaybackProgress {
	total := 0
	if e.traj != nil {
		total = e.traj.Len()
	}
	return state.PlaybackProgress{
		State:       e.machine,
		Cursor:      e.cursor,
		Total:       total,
		FailedSteps: append([]int(nil), e.failed...),
	}
}

func (e *Engine) reportLocked() {
	if e.onProgress != nil {
		e.onProgress(e.progressLocked())
	}
}

// run advances the cursor once per tick while RUNNING until the
// trajectory ends or the context is cancelled.
func (e *Engine) run(ctx context.Context) {
	ticker := time.NewTicker(e.stepPeriod)
	defer ticker.Stop()
	defer e.finish()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.machine != state.Running {
				e.mu.Unlock()
				continue
			}
			if e.cursor >= e.traj.Len() {
				e.mu.Unlock()
				return
			}
			wp := e.traj.Waypoints[e.cursor]
			cursor := e.cursor
			e.mu.Unlock()

			if !wp.Valid {
				// Soft-deleted entries are never converted into
				// commands.
				e.advance(false, cursor)
				continue
			}
			e.advance(!e.step(ctx, wp, cursor), cursor)
		}
	}
}

// step executes one waypoint. Returns false on rejection or timeout;
// the caller records the failure and moves on.
func (e *Engine) step(ctx context.Context, wp motion.Waypoint, idx int) bool {
	cmd, err := wp.ToCommand(e.dof)
	if err != nil {
		log.Warn("unplayable waypoint", "step", idx, "err", err)
		return false
	}
	if err := e.sender.Send(cmd); err != nil {
		if errors.Is(err, driver.ErrBusy) {
			// Prior command still settling; give it the step timeout
			// and try once more.
			if werr := e.sender.WaitIdle(ctx, e.stepTimeout); werr != nil {
				log.Warn("step timed out waiting for arm", "step", idx)
				return false
			}
			err = e.sender.Send(cmd)
		}
		if err != nil {
			log.Warn("step not accepted", "step", idx, "err", err)
			return false
		}
	}
	if err := e.sender.WaitIdle(ctx, e.stepTimeout); err != nil {
		if ctx.Err() != nil {
			return true
		}
		log.Warn("step did not complete in time", "step", idx, "err", err)
		return false
	}
	return true
}

func (e *Engine) advance(failed bool, idx int) {
	e.mu.Lock()
	if failed {
		e.failed = append(e.failed, idx)
	}
	e.cursor++
	e.reportLocked()
	e.mu.Unlock()
}

// finish resets the machine to STOPPED with the cursor at 0, whether
// the replay ran out of waypoints or was cancelled.
func (e *Engine) finish() {
	e.mu.Lock()
	e.machine = state.Stopped
	e.cursor = 0
	e.cancel = nil
	close(e.done)
	e.reportLocked()
	e.mu.Unlock()
	log.Info("playback finished")
}

var _ Sender = (*driver.Adapter)(nil)
