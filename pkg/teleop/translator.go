// Package teleop turns controller events into bounded motion
// commands and mode changes, and runs the live teleoperation loop.
package teleop

import (
	"github.com/telemotion/armrec/internal/config"
	"github.com/telemotion/armrec/pkg/gamepad"
	"github.com/telemotion/armrec/pkg/motion"
	"github.com/telemotion/armrec/pkg/state"
)

// ButtonAction is what a mapped button edge means.
type ButtonAction int

const (
	ActionNone ButtonAction = iota
	ActionSavePoint
	ActionToggleMotionType
	ActionJointNext
	ActionJointPrev
	ActionRecordToggle
	ActionPlaybackToggle
	ActionInvalidateLast
	ActionNudge
)

// Translator converts sampler events plus the current mode into
// motion commands. It keeps the latest axis deflections so the loop
// can jog continuously while a stick is held, emitting at most one
// command per tick per axis group. Not goroutine-safe: it is owned by
// the single teleop loop.
type Translator struct {
	keymap     config.Keymap
	dof        int
	maxStep    []float64
	linearStep float64

	jog   float64
	cartX float64
	cartY float64

	nudges map[int][]float64
}

// NewTranslator builds a translator from the configured keymap and
// step scales.
func NewTranslator(cfg config.Config) *Translator {
	km := cfg.Keymap
	r := cfg.Robot
	t := &Translator{
		keymap:     km,
		dof:        r.DOF,
		maxStep:    append([]float64(nil), r.MaxStep...),
		linearStep: r.LinearStep,
		nudges:     make(map[int][]float64),
	}
	t.nudges[km.NudgeXPos] = t.cartesianDelta(0, r.LinearStep)
	t.nudges[km.NudgeXNeg] = t.cartesianDelta(0, -r.LinearStep)
	t.nudges[km.NudgeYPos] = t.cartesianDelta(1, r.LinearStep)
	t.nudges[km.NudgeYNeg] = t.cartesianDelta(1, -r.LinearStep)
	return t
}

func (t *Translator) cartesianDelta(axis int, v float64) []float64 {
	d := make([]float64, t.dof)
	if axis < t.dof {
		d[axis] = v
	}
	return d
}

// HandleAxis records an axis deflection for the next tick.
func (t *Translator) HandleAxis(ev gamepad.Event) {
	switch ev.Axis {
	case t.keymap.JogAxis:
		t.jog = ev.Value
	case t.keymap.CartesianXAxis:
		t.cartX = ev.Value
	case t.keymap.CartesianYAxis:
		t.cartY = ev.Value
	}
}

// ButtonAction maps a pressed button edge to its role.
func (t *Translator) ButtonAction(button int) ButtonAction {
	switch button {
	case t.keymap.SavePoint:
		return ActionSavePoint
	case t.keymap.ToggleMotionType:
		return ActionToggleMotionType
	case t.keymap.JointNext:
		return ActionJointNext
	case t.keymap.JointPrev:
		return ActionJointPrev
	case t.keymap.RecordToggle:
		return ActionRecordToggle
	case t.keymap.PlaybackToggle:
		return ActionPlaybackToggle
	case t.keymap.InvalidateLast:
		return ActionInvalidateLast
	}
	if _, ok := t.nudges[button]; ok {
		return ActionNudge
	}
	return ActionNone
}

// Nudge builds the fixed linear step for a nudge button.
func (t *Translator) Nudge(button int) (motion.Command, bool) {
	delta, ok := t.nudges[button]
	if !ok {
		return motion.Command{}, false
	}
	cmd, err := motion.NewRelative(delta, motion.Linear, t.dof)
	if err != nil {
		return motion.Command{}, false
	}
	return cmd, true
}

// TickCommand builds at most one relative step from the held axis
// deflections, using the mode in effect right now. In JOINT mode the
// jog axis drives the active joint; in LINEAR mode the two cartesian
// axes combine into a single step. A mode change mid-press simply
// changes what the next tick emits.
func (t *Translator) TickCommand(mode state.Mode) (motion.Command, bool) {
	var delta []float64
	mt := mode.MotionType

	switch mt {
	case motion.Joint:
		if t.jog == 0 {
			return motion.Command{}, false
		}
		joint := mode.ActiveJoint
		if joint < 0 || joint >= t.dof {
			return motion.Command{}, false
		}
		delta = make([]float64, t.dof)
		delta[joint] = t.jog * t.maxStep[joint]
	case motion.Linear:
		if t.cartX == 0 && t.cartY == 0 {
			return motion.Command{}, false
		}
		delta = make([]float64, t.dof)
		delta[0] = t.cartX * t.linearStep
		if t.dof > 1 {
			delta[1] = t.cartY * t.linearStep
		}
	default:
		return motion.Command{}, false
	}

	cmd, err := motion.NewRelative(delta, mt, t.dof)
	if err != nil {
		return motion.Command{}, false
	}
	return cmd, true
}

// Reset clears held deflections, used when the controller disappears
// so the arm does not keep jogging on stale input.
func (t *Translator) Reset() {
	t.jog = 0
	t.cartX = 0
	t.cartY = 0
}
