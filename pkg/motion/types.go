// Package motion defines the data model shared by the teleoperation
// pipeline: motion commands sent to the arm, recorded waypoints, and
// replayable trajectories.
package motion

import "fmt"

// MotionType selects the interpolation space for a move.
type MotionType string

const (
	// Joint moves interpolate in joint space (one value per joint).
	Joint MotionType = "JOINT"
	// Linear moves interpolate in cartesian space.
	Linear MotionType = "LINEAR"
)

// Valid reports whether mt is a known motion type.
func (mt MotionType) Valid() bool {
	return mt == Joint || mt == Linear
}

// CommandKind distinguishes absolute target moves from relative steps.
type CommandKind string

const (
	// AbsolutePoint commands the arm to a full target pose.
	AbsolutePoint CommandKind = "ABSOLUTE_POINT"
	// RelativeStep commands a bounded delta from the current pose.
	RelativeStep CommandKind = "RELATIVE_STEP"
)

// Command is one validated motion command. Values always has exactly
// DOF elements; construction fails otherwise, so a malformed command
// can never reach the driver.
type Command struct {
	Kind   CommandKind
	Values []float64
	Motion MotionType
}

// NewCommand builds a validated command. The values slice is copied so
// callers can reuse their buffer.
func NewCommand(kind CommandKind, values []float64, mt MotionType, dof int) (Command, error) {
	if kind != AbsolutePoint && kind != RelativeStep {
		return Command{}, fmt.Errorf("unknown command kind %q", kind)
	}
	if !mt.Valid() {
		return Command{}, fmt.Errorf("unknown motion type %q", mt)
	}
	if len(values) != dof {
		return Command{}, fmt.Errorf("command has %d values, robot has %d joints", len(values), dof)
	}
	v := make([]float64, dof)
	copy(v, values)
	return Command{Kind: kind, Values: v, Motion: mt}, nil
}

// NewAbsolute builds an ABSOLUTE_POINT command.
func NewAbsolute(values []float64, mt MotionType, dof int) (Command, error) {
	return NewCommand(AbsolutePoint, values, mt, dof)
}

// NewRelative builds a RELATIVE_STEP command.
func NewRelative(values []float64, mt MotionType, dof int) (Command, error) {
	return NewCommand(RelativeStep, values, mt, dof)
}

// IsZero reports whether every value of the command is zero. Zero
// relative steps are not worth sending.
func (c Command) IsZero() bool {
	for _, v := range c.Values {
		if v != 0 {
			return false
		}
	}
	return true
}

// RobotState is a snapshot of the arm as last observed by the driver
// adapter's poll loop, which is its only writer.
type RobotState struct {
	Pose      []float64 `json:"pose"`
	Angles    []float64 `json:"angles"`
	Busy      bool      `json:"busy"`
	Connected bool      `json:"connected"`
	LastError string    `json:"last_error,omitempty"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s RobotState) Clone() RobotState {
	out := s
	out.Pose = append([]float64(nil), s.Pose...)
	out.Angles = append([]float64(nil), s.Angles...)
	return out
}
