package recorder

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/telemotion/armrec/pkg/motion"
)

func step(t *testing.T, values []float64) motion.Command {
	t.Helper()
	cmd, err := motion.NewRelative(values, motion.Joint, len(values))
	if err != nil {
		t.Fatal(err)
	}
	return cmd
}

func TestRecorder_AppendOutsideRecording(t *testing.T) {
	r := New(4)
	err := r.Append(step(t, []float64{0, 0, 1, 0}), true)
	if !errors.Is(err, ErrNotRecording) {
		t.Fatalf("Append() before Begin error = %v, want ErrNotRecording", err)
	}

	if err := r.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := r.End(); err != nil {
		t.Fatal(err)
	}
	err = r.Append(step(t, []float64{0, 0, 1, 0}), true)
	if !errors.Is(err, ErrNotRecording) {
		t.Fatalf("Append() after End error = %v, want ErrNotRecording", err)
	}
}

// Two jog steps on joint 2 during a recording become two MOVEMENT
// waypoints whose only nonzero component is index 2.
func TestRecorder_JogStepsRecorded(t *testing.T) {
	r := New(4)
	if err := r.Begin(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := r.Append(step(t, []float64{0, 0, 2.5, 0}), true); err != nil {
			t.Fatal(err)
		}
	}

	traj := r.Trajectory()
	if traj.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", traj.Len())
	}
	for i, wp := range traj.Waypoints {
		if wp.Type != motion.Movement {
			t.Errorf("waypoint %d type = %q, want %q", i, wp.Type, motion.Movement)
		}
		if !wp.Valid {
			t.Errorf("waypoint %d not valid", i)
		}
		for j, v := range wp.Value {
			if j == 2 && v == 0 {
				t.Errorf("waypoint %d joint 2 is zero", i)
			}
			if j != 2 && v != 0 {
				t.Errorf("waypoint %d joint %d = %v, want 0", i, j, v)
			}
		}
	}
}

func TestRecorder_BeginDiscardsPrevious(t *testing.T) {
	r := New(4)
	if err := r.Begin(); err != nil {
		t.Fatal(err)
	}
	firstID := r.Trajectory().ID
	if err := r.Append(step(t, []float64{1, 0, 0, 0}), true); err != nil {
		t.Fatal(err)
	}
	if err := r.End(); err != nil {
		t.Fatal(err)
	}

	if err := r.Begin(); err != nil {
		t.Fatal(err)
	}
	traj := r.Trajectory()
	if traj.Len() != 0 {
		t.Errorf("new recording has %d waypoints, want 0", traj.Len())
	}
	if traj.ID == firstID {
		t.Error("new recording reused previous trajectory ID")
	}
}

func TestRecorder_RejectedCommandKeptInvalid(t *testing.T) {
	r := New(4)
	if err := r.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := r.Append(step(t, []float64{0, 0, 500, 0}), false); err != nil {
		t.Fatal(err)
	}

	traj := r.Trajectory()
	if traj.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", traj.Len())
	}
	if traj.Waypoints[0].Valid {
		t.Error("rejected command recorded as valid")
	}
}

func TestRecorder_InvalidateLast(t *testing.T) {
	r := New(4)
	if err := r.Begin(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := r.Append(step(t, []float64{0, 0, 1, 0}), true); err != nil {
			t.Fatal(err)
		}
	}

	if !r.InvalidateLast() {
		t.Fatal("InvalidateLast() = false with valid entries present")
	}
	traj := r.Trajectory()
	if traj.Len() != 3 {
		t.Fatalf("Len() = %d after invalidate, want 3 (entries are never removed)", traj.Len())
	}
	if traj.Waypoints[2].Valid {
		t.Error("last waypoint still valid")
	}
	if !traj.Waypoints[0].Valid || !traj.Waypoints[1].Valid {
		t.Error("earlier waypoints were touched")
	}

	// Repeated invalidation walks backwards over valid entries only.
	r.InvalidateLast()
	r.InvalidateLast()
	if r.InvalidateLast() {
		t.Error("InvalidateLast() = true with nothing left to invalidate")
	}
}

func TestRecorder_MergeRejectedWhileRecording(t *testing.T) {
	r := New(4)
	if err := r.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := r.MergeLinear(); err == nil {
		t.Fatal("MergeLinear() accepted during recording")
	}
	if err := r.End(); err != nil {
		t.Fatal(err)
	}
	if err := r.MergeLinear(); err != nil {
		t.Fatalf("MergeLinear() after End error = %v", err)
	}
}

func TestRecorder_LoadRejectedWhileRecording(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "traj.json")

	r := New(4)
	if err := r.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := r.Append(step(t, []float64{0, 1, 0, 0}), true); err != nil {
		t.Fatal(err)
	}
	if err := r.End(); err != nil {
		t.Fatal(err)
	}
	if err := r.Save(path); err != nil {
		t.Fatal(err)
	}

	if err := r.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := r.Load(path); err == nil {
		t.Fatal("Load() accepted during recording")
	}
	if err := r.End(); err != nil {
		t.Fatal(err)
	}
	if err := r.Load(path); err != nil {
		t.Fatalf("Load() after End error = %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() after load = %d, want 1", r.Len())
	}
}

func TestRecorder_LoadMalformedKeepsCurrent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte(`[{"Type":"MOVEMENT","Value":[1,2],"Motion Type":"JOINT","Valid":true}]`), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(4)
	if err := r.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := r.Append(step(t, []float64{0, 0, 1, 0}), true); err != nil {
		t.Fatal(err)
	}
	if err := r.End(); err != nil {
		t.Fatal(err)
	}

	err := r.Load(path)
	if !errors.Is(err, motion.ErrMalformedFile) {
		t.Fatalf("Load() error = %v, want ErrMalformedFile", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() after failed load = %d, want 1 (current trajectory must survive)", r.Len())
	}
}

func TestRecorder_OnChange(t *testing.T) {
	r := New(4)
	var lastN int
	var calls int
	r.OnChange(func(id string, n int) {
		lastN = n
		calls++
	})

	if err := r.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := r.Append(step(t, []float64{1, 0, 0, 0}), true); err != nil {
		t.Fatal(err)
	}
	if err := r.Append(step(t, []float64{1, 0, 0, 0}), true); err != nil {
		t.Fatal(err)
	}

	if calls != 3 { // Begin + two Appends
		t.Errorf("onChange called %d times, want 3", calls)
	}
	if lastN != 2 {
		t.Errorf("last reported waypoint count = %d, want 2", lastN)
	}
}
