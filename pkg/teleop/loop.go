package teleop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/telemotion/armrec/internal/log"
	"github.com/telemotion/armrec/pkg/driver"
	"github.com/telemotion/armrec/pkg/gamepad"
	"github.com/telemotion/armrec/pkg/motion"
	"github.com/telemotion/armrec/pkg/recorder"
	"github.com/telemotion/armrec/pkg/state"
)

// Session is the live teleoperation loop. It consumes sampler events,
// translates them against the current mode, and dispatches the
// resulting commands. Dispatch happens at most once per tick per axis
// group, so the sampler period is the command rate cap.
type Session struct {
	events     <-chan gamepad.Event
	translator *Translator
	core       *state.Core
	adapter    *driver.Adapter
	rec        *recorder.Recorder
	period     time.Duration
	dof        int
}

// NewSession wires the loop. events is the sampler's output channel.
func NewSession(
	events <-chan gamepad.Event,
	tr *Translator,
	core *state.Core,
	adapter *driver.Adapter,
	rec *recorder.Recorder,
	period time.Duration,
	dof int,
) *Session {
	return &Session{
		events:     events,
		translator: tr,
		core:       core,
		adapter:    adapter,
		rec:        rec,
		period:     period,
		dof:        dof,
	}
}

// Run processes events and ticks until ctx is cancelled or the event
// channel closes.
func (s *Session) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.events:
			if !ok {
				return
			}
			s.handleEvent(ev)
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick dispatches the held-axis step, if any. Live teleoperation is
// suspended during playback.
func (s *Session) tick() {
	mode := s.core.Mode()
	if mode.Operation == state.Playback {
		return
	}
	cmd, ok := s.translator.TickCommand(mode)
	if !ok || cmd.IsZero() {
		return
	}
	s.dispatch(cmd, mode)
}

func (s *Session) handleEvent(ev gamepad.Event) {
	switch ev.Kind {
	case gamepad.AxisChange:
		s.translator.HandleAxis(ev)

	case gamepad.DeviceLost:
		// Stale deflections must not keep the arm moving.
		s.translator.Reset()
		s.core.SetControllerConnected(false)
		s.core.AddFeed("Controller", "Connection lost")

	case gamepad.DeviceFound:
		s.core.SetControllerConnected(true)
		s.core.AddFeed("Controller", "Connection restored")

	case gamepad.ButtonEdge:
		if !ev.Pressed {
			return
		}
		s.handleButton(ev.Button)
	}
}

func (s *Session) handleButton(button int) {
	mode := s.core.Mode()

	switch s.translator.ButtonAction(button) {
	case ActionSavePoint:
		s.savePoint(mode)

	case ActionToggleMotionType:
		if err := s.core.RequestTransition(state.Request{Action: state.ActionSelectMotionType}); err == nil {
			s.core.AddFeed("Controller", fmt.Sprintf("Motion type %s", s.core.Mode().MotionType))
		}

	case ActionJointNext:
		s.cycleJoint(mode, 1)
	case ActionJointPrev:
		s.cycleJoint(mode, -1)

	case ActionRecordToggle:
		var req state.Request
		switch mode.Operation {
		case state.Idle:
			req.Action = state.ActionRecordStart
		case state.Record:
			req.Action = state.ActionRecordStop
		default:
			return
		}
		if err := s.core.RequestTransition(req); err != nil {
			s.core.SetStatus(err.Error())
		}

	case ActionPlaybackToggle:
		var req state.Request
		switch mode.Operation {
		case state.Idle:
			req.Action = state.ActionPlaybackStart
		case state.Playback:
			req.Action = state.ActionPlaybackStop
		default:
			return
		}
		if err := s.core.RequestTransition(req); err != nil {
			s.core.SetStatus(err.Error())
		}

	case ActionInvalidateLast:
		if mode.Operation != state.Record {
			return
		}
		if s.rec.InvalidateLast() {
			s.core.AddFeed("Recorder", "Last waypoint invalidated")
		}

	case ActionNudge:
		if mode.Operation == state.Playback {
			return
		}
		if cmd, ok := s.translator.Nudge(button); ok {
			s.dispatch(cmd, mode)
		}
	}
}

// savePoint records the current pose as an absolute waypoint without
// commanding a move.
func (s *Session) savePoint(mode state.Mode) {
	if mode.Operation != state.Record {
		s.core.AddFeed("Recorder", "Ignored point save outside recording")
		return
	}
	robot := s.adapter.State()
	if !robot.Connected {
		s.core.AddFeed("Recorder", "Cannot save point, robot disconnected")
		return
	}
	cmd, err := motion.NewAbsolute(robot.Pose, motion.Joint, s.dof)
	if err != nil {
		log.Error("save point failed", "err", err)
		return
	}
	if err := s.rec.Append(cmd, true); err == nil {
		s.core.AddFeed("Recorder", "Point saved")
	}
}

func (s *Session) cycleJoint(mode state.Mode, delta int) {
	if mode.Operation == state.Playback {
		return
	}
	idx := s.core.CycleJoint(delta)
	s.core.AddFeed("Controller", fmt.Sprintf("Active joint %d", idx))
}

// dispatch sends one command and, while recording, appends the
// outcome. BUSY drops are the backpressure model working as intended:
// the excess step is neither sent nor recorded.
func (s *Session) dispatch(cmd motion.Command, mode state.Mode) {
	err := s.adapter.Send(cmd)
	switch {
	case err == nil:
	case errors.Is(err, driver.ErrBusy):
		log.Debug("step dropped, robot busy")
		return
	case errors.Is(err, driver.ErrRejected):
		s.core.SetStatus(err.Error())
		s.core.AddFeed("Robot", err.Error())
	case errors.Is(err, driver.ErrDisconnected):
		return
	default:
		s.core.SetStatus(err.Error())
		return
	}

	if mode.Operation == state.Record && cmd.Kind == motion.RelativeStep {
		if aerr := s.rec.Append(cmd, err == nil); aerr != nil {
			log.Warn("waypoint not recorded", "err", aerr)
		}
	}
}
