package teleop

import (
	"testing"

	"github.com/telemotion/armrec/internal/config"
	"github.com/telemotion/armrec/pkg/gamepad"
	"github.com/telemotion/armrec/pkg/motion"
	"github.com/telemotion/armrec/pkg/state"
)

func jointMode(joint int) state.Mode {
	return state.Mode{MotionType: motion.Joint, ActiveJoint: joint}
}

func linearMode() state.Mode {
	return state.Mode{MotionType: motion.Linear}
}

func axisEvent(cfg config.Config, axis int, value float64) gamepad.Event {
	return gamepad.Event{Kind: gamepad.AxisChange, Axis: axis, Value: value}
}

func TestTranslator_JogDrivesActiveJoint(t *testing.T) {
	cfg := config.Default()
	tr := NewTranslator(cfg)

	tr.HandleAxis(axisEvent(cfg, cfg.Keymap.JogAxis, 0.5))

	cmd, ok := tr.TickCommand(jointMode(2))
	if !ok {
		t.Fatal("no command with jog axis held")
	}
	if cmd.Kind != motion.RelativeStep || cmd.Motion != motion.Joint {
		t.Fatalf("command kind=%q motion=%q", cmd.Kind, cmd.Motion)
	}
	want := 0.5 * cfg.Robot.MaxStep[2]
	for i, v := range cmd.Values {
		if i == 2 && v != want {
			t.Errorf("joint 2 delta = %v, want %v", v, want)
		}
		if i != 2 && v != 0 {
			t.Errorf("joint %d delta = %v, want 0", i, v)
		}
	}
}

func TestTranslator_ScalePerJoint(t *testing.T) {
	cfg := config.Default()
	tr := NewTranslator(cfg)
	tr.HandleAxis(axisEvent(cfg, cfg.Keymap.JogAxis, -1))

	// Full deflection on the last joint uses its own scale, not the
	// shared one.
	cmd, ok := tr.TickCommand(jointMode(3))
	if !ok {
		t.Fatal("no command with jog axis held")
	}
	if got, want := cmd.Values[3], -cfg.Robot.MaxStep[3]; got != want {
		t.Errorf("joint 3 delta = %v, want %v", got, want)
	}
}

func TestTranslator_NoCommandAtRest(t *testing.T) {
	cfg := config.Default()
	tr := NewTranslator(cfg)

	if _, ok := tr.TickCommand(jointMode(0)); ok {
		t.Error("command emitted with no deflection in joint mode")
	}
	if _, ok := tr.TickCommand(linearMode()); ok {
		t.Error("command emitted with no deflection in linear mode")
	}
}

func TestTranslator_CartesianAxesCombine(t *testing.T) {
	cfg := config.Default()
	tr := NewTranslator(cfg)

	tr.HandleAxis(axisEvent(cfg, cfg.Keymap.CartesianXAxis, 1))
	tr.HandleAxis(axisEvent(cfg, cfg.Keymap.CartesianYAxis, -0.5))

	cmd, ok := tr.TickCommand(linearMode())
	if !ok {
		t.Fatal("no command with cartesian axes held")
	}
	if cmd.Motion != motion.Linear {
		t.Fatalf("motion = %q, want %q", cmd.Motion, motion.Linear)
	}
	if got, want := cmd.Values[0], cfg.Robot.LinearStep; got != want {
		t.Errorf("x delta = %v, want %v", got, want)
	}
	if got, want := cmd.Values[1], -0.5*cfg.Robot.LinearStep; got != want {
		t.Errorf("y delta = %v, want %v", got, want)
	}
}

// Cartesian deflections are ignored while the motion type is JOINT and
// vice versa; a mode change mid-press changes what the next tick emits.
func TestTranslator_ModeSelectsAxes(t *testing.T) {
	cfg := config.Default()
	tr := NewTranslator(cfg)

	tr.HandleAxis(axisEvent(cfg, cfg.Keymap.CartesianXAxis, 1))
	if _, ok := tr.TickCommand(jointMode(0)); ok {
		t.Error("cartesian deflection produced a command in joint mode")
	}

	tr.HandleAxis(axisEvent(cfg, cfg.Keymap.JogAxis, 1))
	cmd, ok := tr.TickCommand(linearMode())
	if !ok {
		t.Fatal("no command in linear mode")
	}
	if cmd.Motion != motion.Linear {
		t.Errorf("motion = %q; held jog deflection leaked into linear mode", cmd.Motion)
	}

	// Same held deflections, mode flipped back: now the jog wins.
	cmd, ok = tr.TickCommand(jointMode(1))
	if !ok {
		t.Fatal("no command in joint mode")
	}
	if cmd.Motion != motion.Joint || cmd.Values[1] == 0 {
		t.Errorf("joint mode tick = %+v, want jog on joint 1", cmd)
	}
}

func TestTranslator_ActiveJointOutOfRange(t *testing.T) {
	cfg := config.Default()
	tr := NewTranslator(cfg)
	tr.HandleAxis(axisEvent(cfg, cfg.Keymap.JogAxis, 1))

	if _, ok := tr.TickCommand(jointMode(4)); ok {
		t.Error("command emitted for joint index past the arm's range")
	}
	if _, ok := tr.TickCommand(jointMode(-1)); ok {
		t.Error("command emitted for negative joint index")
	}
}

func TestTranslator_Reset(t *testing.T) {
	cfg := config.Default()
	tr := NewTranslator(cfg)
	tr.HandleAxis(axisEvent(cfg, cfg.Keymap.JogAxis, 1))
	tr.HandleAxis(axisEvent(cfg, cfg.Keymap.CartesianXAxis, 1))

	tr.Reset()

	if _, ok := tr.TickCommand(jointMode(0)); ok {
		t.Error("jog survived Reset")
	}
	if _, ok := tr.TickCommand(linearMode()); ok {
		t.Error("cartesian deflection survived Reset")
	}
}

func TestTranslator_ButtonActions(t *testing.T) {
	cfg := config.Default()
	tr := NewTranslator(cfg)

	tests := []struct {
		name   string
		button int
		want   ButtonAction
	}{
		{"save point", cfg.Keymap.SavePoint, ActionSavePoint},
		{"toggle motion", cfg.Keymap.ToggleMotionType, ActionToggleMotionType},
		{"joint next", cfg.Keymap.JointNext, ActionJointNext},
		{"joint prev", cfg.Keymap.JointPrev, ActionJointPrev},
		{"record toggle", cfg.Keymap.RecordToggle, ActionRecordToggle},
		{"playback toggle", cfg.Keymap.PlaybackToggle, ActionPlaybackToggle},
		{"invalidate last", cfg.Keymap.InvalidateLast, ActionInvalidateLast},
		{"nudge x pos", cfg.Keymap.NudgeXPos, ActionNudge},
		{"nudge y neg", cfg.Keymap.NudgeYNeg, ActionNudge},
		{"unmapped", 42, ActionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tr.ButtonAction(tt.button); got != tt.want {
				t.Errorf("ButtonAction(%d) = %v, want %v", tt.button, got, tt.want)
			}
		})
	}
}

func TestTranslator_Nudge(t *testing.T) {
	cfg := config.Default()
	tr := NewTranslator(cfg)

	cmd, ok := tr.Nudge(cfg.Keymap.NudgeXNeg)
	if !ok {
		t.Fatal("nudge button not recognized")
	}
	if cmd.Motion != motion.Linear || cmd.Kind != motion.RelativeStep {
		t.Fatalf("nudge command kind=%q motion=%q", cmd.Kind, cmd.Motion)
	}
	if got, want := cmd.Values[0], -cfg.Robot.LinearStep; got != want {
		t.Errorf("nudge x delta = %v, want %v", got, want)
	}

	if _, ok := tr.Nudge(cfg.Keymap.SavePoint); ok {
		t.Error("non-nudge button produced a nudge command")
	}
}
