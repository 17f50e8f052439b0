package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/telemotion/armrec/internal/log"
	"github.com/telemotion/armrec/pkg/motion"
)

// ErrInvalidState is returned when a requested transition conflicts
// with the operation in flight. The request is rejected, never
// queued, and state is left unchanged.
var ErrInvalidState = errors.New("invalid state")

// Action names a UI- or controller-initiated transition request.
type Action string

const (
	ActionRecordStart      Action = "RECORD_START"
	ActionRecordStop       Action = "RECORD_STOP"
	ActionPlaybackStart    Action = "PLAYBACK_START"
	ActionPlaybackPause    Action = "PLAYBACK_PAUSE"
	ActionPlaybackResume   Action = "PLAYBACK_RESUME"
	ActionPlaybackStop     Action = "PLAYBACK_STOP"
	ActionSave             Action = "SAVE"
	ActionLoad             Action = "LOAD"
	ActionSelectJoint      Action = "SELECT_JOINT"
	ActionSelectMotionType Action = "SELECT_MOTION_TYPE"
)

// Request is one transition request with its payload.
type Request struct {
	Action     Action            `json:"action"`
	Path       string            `json:"path,omitempty"`
	Joint      int               `json:"joint,omitempty"`
	MotionType motion.MotionType `json:"motion_type,omitempty"`
}

// Hooks are the component callbacks the Core invokes when a
// transition is granted. Wiring installs them at startup; any nil
// hook makes its action fail with ErrInvalidState.
type Hooks struct {
	RecordStart    func() error
	RecordStop     func() error
	PlaybackStart  func() error
	PlaybackPause  func() error
	PlaybackResume func() error
	PlaybackStop   func() error
	Save           func(path string) error
	Load           func(path string) error
}

const feedLimit = 500

// Core is the state synchronizer. One mutex covers the full snapshot,
// so any read-modify-write across mode, robot state, trajectory
// summary, and playback progress is atomic with respect to all loops.
type Core struct {
	dof int

	mu         sync.Mutex
	mode       Mode
	robot      motion.RobotState
	controller bool
	trajectory TrajectorySummary
	playback   PlaybackProgress
	status     string
	feed       []FeedEntry
	subs       map[chan Snapshot]struct{}

	// reqMu serializes RequestTransition so concurrent UI requests
	// cannot interleave a hook with a conflicting transition.
	reqMu sync.Mutex
	hooks Hooks

	// onFeed pushes new feed entries to the dashboard.
	onFeed func(FeedEntry)
}

// NewCore creates the synchronizer for a dof-joint arm. The active
// joint starts mid-range so the first jog moves a central joint.
func NewCore(dof int) *Core {
	return &Core{
		dof: dof,
		mode: Mode{
			ActiveJoint: dof / 2,
			MotionType:  motion.Joint,
			Operation:   Idle,
		},
		playback: PlaybackProgress{State: Stopped},
		subs:     make(map[chan Snapshot]struct{}),
	}
}

// SetHooks installs the transition callbacks.
func (c *Core) SetHooks(h Hooks) {
	c.reqMu.Lock()
	c.hooks = h
	c.reqMu.Unlock()
}

// OnFeed registers the feed push callback.
func (c *Core) OnFeed(fn func(FeedEntry)) {
	c.mu.Lock()
	c.onFeed = fn
	c.mu.Unlock()
}

// Mode returns the current controller mode.
func (c *Core) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Snapshot returns the current consistent view.
func (c *Core) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Core) snapshotLocked() Snapshot {
	return Snapshot{
		Mode:       c.mode,
		Robot:      c.robot.Clone(),
		Trajectory: c.trajectory,
		Playback:   clonePlayback(c.playback),
		Controller: c.controller,
		Status:     c.status,
	}
}

func clonePlayback(p PlaybackProgress) PlaybackProgress {
	p.FailedSteps = append([]int(nil), p.FailedSteps...)
	return p
}

// Subscribe returns a channel receiving a snapshot on every state
// change, starting with the current one. Slow subscribers have stale
// snapshots dropped, never block the publisher.
func (c *Core) Subscribe() chan Snapshot {
	ch := make(chan Snapshot, 16)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	ch <- snap
	return ch
}

// Unsubscribe removes and closes the channel.
func (c *Core) Unsubscribe(ch chan Snapshot) {
	c.mu.Lock()
	if _, ok := c.subs[ch]; ok {
		delete(c.subs, ch)
		close(ch)
	}
	c.mu.Unlock()
}

func (c *Core) publishLocked() {
	snap := c.snapshotLocked()
	for ch := range c.subs {
		select {
		case ch <- snap:
		default:
			// Drop the oldest so the newest always fits.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// SetRobotState records the adapter's latest poll result.
func (c *Core) SetRobotState(s motion.RobotState) {
	c.mu.Lock()
	c.robot = s
	c.publishLocked()
	c.mu.Unlock()
}

// SetControllerConnected records controller presence.
func (c *Core) SetControllerConnected(v bool) {
	c.mu.Lock()
	c.controller = v
	c.publishLocked()
	c.mu.Unlock()
}

// SetTrajectory records the active trajectory's summary.
func (c *Core) SetTrajectory(id string, waypoints int) {
	c.mu.Lock()
	c.trajectory = TrajectorySummary{ID: id, Waypoints: waypoints}
	c.publishLocked()
	c.mu.Unlock()
}

// SetPlayback records the engine's progress.
func (c *Core) SetPlayback(p PlaybackProgress) {
	c.mu.Lock()
	c.playback = clonePlayback(p)
	if p.State == Stopped && c.mode.Operation == Playback {
		// Playback finished on its own; release the operation.
		c.mode.Operation = Idle
	}
	c.publishLocked()
	c.mu.Unlock()
}

// SetStatus records the last surfaced error or notice.
func (c *Core) SetStatus(status string) {
	c.mu.Lock()
	c.status = status
	c.publishLocked()
	c.mu.Unlock()
}

// SelectJoint sets the active joint, clamped to [0, DOF).
func (c *Core) SelectJoint(idx int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx < 0 {
		idx = 0
	}
	if idx >= c.dof {
		idx = c.dof - 1
	}
	c.mode.ActiveJoint = idx
	c.publishLocked()
	return idx
}

// CycleJoint moves the active joint by delta, wrapping around.
func (c *Core) CycleJoint(delta int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := (c.mode.ActiveJoint + delta) % c.dof
	if idx < 0 {
		idx += c.dof
	}
	c.mode.ActiveJoint = idx
	c.publishLocked()
	return idx
}

// ToggleMotionType flips JOINT/LINEAR and returns the new type.
func (c *Core) ToggleMotionType() motion.MotionType {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode.MotionType == motion.Joint {
		c.mode.MotionType = motion.Linear
	} else {
		c.mode.MotionType = motion.Joint
	}
	c.publishLocked()
	return c.mode.MotionType
}

// AddFeed appends a feed entry and pushes it to the dashboard.
func (c *Core) AddFeed(source, message string) {
	entry := FeedEntry{Timestamp: time.Now(), Message: message, Source: source}
	c.mu.Lock()
	c.feed = append(c.feed, entry)
	if len(c.feed) > feedLimit {
		c.feed = c.feed[1:]
	}
	fn := c.onFeed
	c.mu.Unlock()

	if fn != nil {
		fn(entry)
	}
}

// Feed returns a copy of the recent feed entries.
func (c *Core) Feed() []FeedEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FeedEntry(nil), c.feed...)
}

// RequestTransition applies one transition request. Requests are
// serialized; a request conflicting with the operation in flight
// fails with ErrInvalidState and leaves the mode unchanged.
func (c *Core) RequestTransition(req Request) error {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	switch req.Action {
	case ActionSelectJoint:
		if c.Mode().Operation == Playback {
			return fmt.Errorf("%w: cannot select joint during playback", ErrInvalidState)
		}
		c.SelectJoint(req.Joint)
		return nil

	case ActionSelectMotionType:
		if c.Mode().Operation == Playback {
			return fmt.Errorf("%w: cannot switch motion type during playback", ErrInvalidState)
		}
		if req.MotionType.Valid() {
			c.setMotionType(req.MotionType)
		} else {
			c.ToggleMotionType()
		}
		return nil

	case ActionRecordStart:
		return c.transition(Idle, Record, c.hooks.RecordStart, "recording started")
	case ActionRecordStop:
		return c.transition(Record, Idle, c.hooks.RecordStop, "recording stopped")
	case ActionPlaybackStart:
		return c.transition(Idle, Playback, c.hooks.PlaybackStart, "playback started")

	case ActionPlaybackPause:
		return c.playbackOnly(c.hooks.PlaybackPause)
	case ActionPlaybackResume:
		return c.playbackOnly(c.hooks.PlaybackResume)
	case ActionPlaybackStop:
		return c.transition(Playback, Idle, c.hooks.PlaybackStop, "playback stopped")

	case ActionSave:
		if c.Mode().Operation != Idle {
			return fmt.Errorf("%w: save requires IDLE, operation is %s", ErrInvalidState, c.Mode().Operation)
		}
		if c.hooks.Save == nil {
			return fmt.Errorf("%w: save not available", ErrInvalidState)
		}
		return c.hooks.Save(req.Path)

	case ActionLoad:
		if c.Mode().Operation != Idle {
			return fmt.Errorf("%w: load requires IDLE, operation is %s", ErrInvalidState, c.Mode().Operation)
		}
		if c.hooks.Load == nil {
			return fmt.Errorf("%w: load not available", ErrInvalidState)
		}
		return c.hooks.Load(req.Path)

	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidState, req.Action)
	}
}

func (c *Core) setMotionType(mt motion.MotionType) {
	c.mu.Lock()
	c.mode.MotionType = mt
	c.publishLocked()
	c.mu.Unlock()
}

// transition flips the operation from..to around the hook, reverting
// on hook failure. The operation field itself is the mutual-exclusion
// gate between RECORD and PLAYBACK.
func (c *Core) transition(from, to Operation, hook func() error, note string) error {
	c.mu.Lock()
	if c.mode.Operation != from {
		op := c.mode.Operation
		c.mu.Unlock()
		return fmt.Errorf("%w: requires %s, operation is %s", ErrInvalidState, from, op)
	}
	if hook == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: transition not available", ErrInvalidState)
	}
	c.mode.Operation = to
	c.publishLocked()
	c.mu.Unlock()

	if err := hook(); err != nil {
		c.mu.Lock()
		c.mode.Operation = from
		c.status = err.Error()
		c.publishLocked()
		c.mu.Unlock()
		return err
	}

	log.Info(note, "operation", to)
	c.AddFeed("Recorder", note)
	return nil
}

func (c *Core) playbackOnly(hook func() error) error {
	if c.Mode().Operation != Playback {
		return fmt.Errorf("%w: no playback in progress", ErrInvalidState)
	}
	if hook == nil {
		return fmt.Errorf("%w: transition not available", ErrInvalidState)
	}
	return hook()
}
