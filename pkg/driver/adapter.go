package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/telemotion/armrec/internal/log"
	"github.com/telemotion/armrec/pkg/motion"
)

// Limits holds the arm's travel limits in joint space.
type Limits struct {
	// Bounds is one [min, max] pair per joint, in degrees.
	Bounds [][2]float64
	// MinStep zeroes residual relative steps below this magnitude
	// after clamping, so a joint pinned at its bound stops cleanly.
	MinStep float64
}

// Adapter sits between the control loops and the Driver. It enforces
// the system's single backpressure rule: at most one outstanding
// command, with Send failing fast with ErrBusy instead of queueing.
// Its poll loop is the only writer of the observed RobotState.
type Adapter struct {
	driver Driver
	dof    int
	limits Limits

	pollPeriod time.Duration

	mu       sync.Mutex
	state    motion.RobotState
	inflight bool
	// sentAt and seenBusy track the outstanding command. The arm acks
	// a move before its mode register flips to running, so a poll in
	// that gap must not release the gate.
	sentAt   time.Time
	seenBusy bool

	// onState is invoked with a state copy after every poll, outside
	// the adapter's lock.
	onState func(motion.RobotState)
}

// NewAdapter wraps driver for a dof-joint arm.
func NewAdapter(d Driver, dof int, limits Limits, pollPeriod time.Duration) *Adapter {
	return &Adapter{
		driver:     d,
		dof:        dof,
		limits:     limits,
		pollPeriod: pollPeriod,
		state: motion.RobotState{
			Pose:   make([]float64, dof),
			Angles: make([]float64, dof),
		},
	}
}

// OnState registers the state push callback. Must be set before Run.
func (a *Adapter) OnState(fn func(motion.RobotState)) {
	a.onState = fn
}

// State returns a copy of the last observed robot state.
func (a *Adapter) State() motion.RobotState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Clone()
}

// Send issues one command. It fails fast with ErrBusy while a prior
// command is outstanding, clamps relative joint steps to travel
// limits, and never blocks on completion.
func (a *Adapter) Send(cmd motion.Command) error {
	if len(cmd.Values) != a.dof {
		return fmt.Errorf("command has %d values, want %d", len(cmd.Values), a.dof)
	}

	a.mu.Lock()
	if !a.state.Connected {
		a.mu.Unlock()
		return ErrDisconnected
	}
	if a.inflight || a.state.Busy {
		a.mu.Unlock()
		return ErrBusy
	}
	angles := append([]float64(nil), a.state.Angles...)
	a.inflight = true
	a.state.Busy = true
	a.sentAt = time.Now()
	a.seenBusy = false
	a.mu.Unlock()

	clamped, zeroed := a.clamp(cmd, angles)
	if zeroed {
		// The whole step was clamped away; nothing to move.
		a.clearInflight()
		return nil
	}

	if err := a.driver.SendMotion(clamped); err != nil {
		a.clearInflight()
		if errors.Is(err, ErrDisconnected) {
			a.markDisconnected(err)
		}
		return err
	}
	return nil
}

// clamp bounds a relative joint step so the attempted target stays
// inside the joint limits, zeroing residuals below MinStep. Other
// command kinds pass through; the controller rejects them itself.
func (a *Adapter) clamp(cmd motion.Command, angles []float64) (motion.Command, bool) {
	if cmd.Kind != motion.RelativeStep || cmd.Motion != motion.Joint || a.limits.Bounds == nil {
		return cmd, false
	}
	out := cmd
	out.Values = append([]float64(nil), cmd.Values...)
	allZero := true
	for i := range out.Values {
		if out.Values[i] == 0 {
			// Untouched joints stay untouched, even when their
			// current angle sits outside the configured bound.
			continue
		}
		target := angles[i] + out.Values[i]
		if target < a.limits.Bounds[i][0] {
			target = a.limits.Bounds[i][0]
		} else if target > a.limits.Bounds[i][1] {
			target = a.limits.Bounds[i][1]
		}
		step := target - angles[i]
		if step < a.limits.MinStep && step > -a.limits.MinStep {
			step = 0
		}
		out.Values[i] = step
		if step != 0 {
			allZero = false
		}
	}
	return out, allZero
}

// WaitIdle blocks until the arm reports not busy, the timeout
// elapses, or ctx is cancelled. Used by playback between steps; the
// bounded timeout guarantees progress.
func (a *Adapter) WaitIdle(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(a.pollPeriod / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.mu.Lock()
			busy := a.state.Busy || a.inflight
			connected := a.state.Connected
			a.mu.Unlock()
			if !connected {
				return ErrDisconnected
			}
			if !busy {
				return nil
			}
			if time.Now().After(deadline) {
				return ErrTimeout
			}
		}
	}
}

// ClearError forwards a fault reset to the driver.
func (a *Adapter) ClearError() error {
	return a.driver.ClearError()
}

// Run polls the driver on its own timer until ctx is cancelled. A
// slow or dead robot delays only this loop's next poll, never the
// sampler's.
func (a *Adapter) Run(ctx context.Context) {
	if err := a.driver.Connect(ctx); err != nil {
		log.Error("robot connect failed", "err", err)
	} else {
		a.setConnected(true)
	}

	ticker := time.NewTicker(a.pollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.driver.Disconnect()
			return
		case <-ticker.C:
			a.poll(ctx)
		}
	}
}

// poll refreshes the observed state, reconnecting when the arm is
// down.
func (a *Adapter) poll(ctx context.Context) {
	a.mu.Lock()
	connected := a.state.Connected
	a.mu.Unlock()

	if !connected {
		if err := a.driver.Connect(ctx); err != nil {
			return
		}
		a.setConnected(true)
		log.Info("robot reconnected")
	}

	pose, err := a.driver.ReadPose()
	if err != nil {
		a.markDisconnected(err)
		return
	}
	angles, err := a.driver.ReadAngles()
	if err != nil {
		a.markDisconnected(err)
		return
	}
	busy, err := a.driver.IsBusy()
	if err != nil {
		a.markDisconnected(err)
		return
	}

	a.mu.Lock()
	a.state.Pose = pose
	a.state.Angles = angles
	a.state.Busy = busy
	if busy {
		a.seenBusy = true
	} else if a.inflight && (a.seenBusy || time.Since(a.sentAt) >= 2*a.pollPeriod) {
		// Release the gate only once the move has been seen running,
		// or after two poll periods for moves too short to catch.
		a.inflight = false
	}
	a.state.Connected = true
	a.state.LastError = ""
	snapshot := a.state.Clone()
	a.mu.Unlock()

	if a.onState != nil {
		a.onState(snapshot)
	}
}

func (a *Adapter) clearInflight() {
	a.mu.Lock()
	a.inflight = false
	a.state.Busy = false
	a.mu.Unlock()
}

func (a *Adapter) setConnected(v bool) {
	a.mu.Lock()
	a.state.Connected = v
	a.mu.Unlock()
}

func (a *Adapter) markDisconnected(err error) {
	a.driver.Disconnect()
	a.mu.Lock()
	wasConnected := a.state.Connected
	a.state.Connected = false
	a.state.Busy = false
	a.inflight = false
	a.state.LastError = err.Error()
	snapshot := a.state.Clone()
	a.mu.Unlock()

	if wasConnected {
		log.Warn("robot connection lost", "err", err)
		if a.onState != nil {
			a.onState(snapshot)
		}
	}
}
