package motion

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// WaypointType distinguishes recorded absolute points from relative
// movements.
type WaypointType string

const (
	// Point is an absolute recorded pose.
	Point WaypointType = "POINT"
	// Movement is a recorded relative delta.
	Movement WaypointType = "MOVEMENT"
)

// Waypoint is one persisted trajectory entry. Field names match the
// on-disk schema, which is shared with earlier recorder tooling.
type Waypoint struct {
	Type       WaypointType `json:"Type"`
	Value      []float64    `json:"Value"`
	MotionType MotionType   `json:"Motion Type"`
	Valid      bool         `json:"Valid"`
}

// ErrMalformedFile is returned when a trajectory file fails
// validation. Loads are atomic: a malformed file installs nothing.
var ErrMalformedFile = errors.New("malformed trajectory file")

// FromCommand converts an issued command into its waypoint form.
// accepted=false keeps the entry for audit but marks it skipped on
// replay.
func FromCommand(cmd Command, accepted bool) Waypoint {
	wt := Point
	if cmd.Kind == RelativeStep {
		wt = Movement
	}
	return Waypoint{
		Type:       wt,
		Value:      append([]float64(nil), cmd.Values...),
		MotionType: cmd.Motion,
		Valid:      accepted,
	}
}

// ToCommand converts the waypoint back into the command that replays
// it.
func (w Waypoint) ToCommand(dof int) (Command, error) {
	kind := AbsolutePoint
	if w.Type == Movement {
		kind = RelativeStep
	}
	return NewCommand(kind, w.Value, w.MotionType, dof)
}

// Trajectory is an ordered waypoint sequence. Insertion order is
// recording order is replay order.
type Trajectory struct {
	ID        string
	Waypoints []Waypoint
}

// Len returns the number of waypoints.
func (t *Trajectory) Len() int { return len(t.Waypoints) }

// Clone returns a deep copy. Playback operates on a clone so the
// recorder's buffer stays untouched.
func (t *Trajectory) Clone() *Trajectory {
	out := &Trajectory{ID: t.ID, Waypoints: make([]Waypoint, len(t.Waypoints))}
	for i, w := range t.Waypoints {
		w.Value = append([]float64(nil), w.Value...)
		out.Waypoints[i] = w
	}
	return out
}

// validate checks every waypoint against the robot's joint count.
func (t *Trajectory) validate(dof int) error {
	for i, w := range t.Waypoints {
		if w.Type != Point && w.Type != Movement {
			return fmt.Errorf("%w: entry %d has unknown type %q", ErrMalformedFile, i, w.Type)
		}
		if !w.MotionType.Valid() {
			return fmt.Errorf("%w: entry %d has unknown motion type %q", ErrMalformedFile, i, w.MotionType)
		}
		if len(w.Value) != dof {
			return fmt.Errorf("%w: entry %d has %d values, want %d", ErrMalformedFile, i, len(w.Value), dof)
		}
	}
	return nil
}

// Save writes the waypoint sequence as a flat JSON array, the format
// earlier recorder tooling reads and writes.
func (t *Trajectory) Save(path string) error {
	data, err := json.MarshalIndent(t.Waypoints, "", "    ")
	if err != nil {
		return fmt.Errorf("encode trajectory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write trajectory: %w", err)
	}
	return nil
}

// Load reads and validates a trajectory file. The entire load fails on
// the first invalid entry; no partial trajectory is returned.
func Load(path string, dof int) (*Trajectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trajectory: %w", err)
	}
	var waypoints []Waypoint
	if err := json.Unmarshal(data, &waypoints); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}
	t := &Trajectory{Waypoints: waypoints}
	if err := t.validate(dof); err != nil {
		return nil, err
	}
	return t, nil
}

// MergeLinear collapses runs of consecutive LINEAR movements whose
// deltas point the same way into one combined movement. Jogging with
// the nudge buttons produces long runs of tiny identical steps;
// merging them makes replay smooth instead of stuttering.
func (t *Trajectory) MergeLinear() {
	var out []Waypoint
	for _, w := range t.Waypoints {
		if len(out) > 0 && mergeable(out[len(out)-1], w) {
			prev := &out[len(out)-1]
			for i := range prev.Value {
				prev.Value[i] += w.Value[i]
			}
			continue
		}
		w.Value = append([]float64(nil), w.Value...)
		out = append(out, w)
	}
	t.Waypoints = out
}

func mergeable(a, b Waypoint) bool {
	if a.Type != Movement || b.Type != Movement {
		return false
	}
	if a.MotionType != Linear || b.MotionType != Linear {
		return false
	}
	if !a.Valid || !b.Valid {
		return false
	}
	if len(a.Value) != len(b.Value) {
		return false
	}
	for i := range a.Value {
		if sign(a.Value[i]) != sign(b.Value[i]) {
			return false
		}
	}
	return true
}

func sign(v float64) float64 {
	if v == 0 {
		return 0
	}
	return math.Copysign(1, v)
}
