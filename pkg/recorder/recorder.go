// Package recorder owns the trajectory being built. It appends
// validated waypoints during RECORD, freezes the buffer afterwards,
// and persists/loads trajectory files.
package recorder

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/telemotion/armrec/internal/log"
	"github.com/telemotion/armrec/pkg/motion"
)

// ErrNotRecording is returned by Append outside of a recording.
var ErrNotRecording = errors.New("not recording")

// Recorder builds one trajectory at a time. The active trajectory is
// owned exclusively by the recorder while recording; Trajectory()
// hands out clones so playback never shares the live buffer.
type Recorder struct {
	dof int

	mu        sync.Mutex
	traj      *motion.Trajectory
	recording bool

	// onChange reports the trajectory summary after every mutation.
	onChange func(id string, waypoints int)
}

// New creates a recorder for a dof-joint arm with an empty trajectory.
func New(dof int) *Recorder {
	return &Recorder{
		dof:  dof,
		traj: &motion.Trajectory{ID: uuid.NewString()},
	}
}

// OnChange registers the summary callback.
func (r *Recorder) OnChange(fn func(id string, waypoints int)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Begin discards the previous trajectory and starts a fresh recording.
func (r *Recorder) Begin() error {
	r.mu.Lock()
	r.traj = &motion.Trajectory{ID: uuid.NewString()}
	r.recording = true
	r.notifyLocked()
	r.mu.Unlock()
	log.Info("recording begun", "trajectory", r.traj.ID)
	return nil
}

// End freezes the trajectory. Further Appends fail until the next
// Begin.
func (r *Recorder) End() error {
	r.mu.Lock()
	r.recording = false
	n := r.traj.Len()
	r.mu.Unlock()
	log.Info("recording ended", "waypoints", n)
	return nil
}

// Recording reports whether a recording is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Append converts one issued command into a waypoint. accepted=false
// keeps the entry for audit but marks it skipped on replay.
func (r *Recorder) Append(cmd motion.Command, accepted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return ErrNotRecording
	}
	r.traj.Waypoints = append(r.traj.Waypoints, motion.FromCommand(cmd, accepted))
	r.notifyLocked()
	return nil
}

// InvalidateLast soft-deletes the most recent still-valid waypoint.
// Entries are never removed during a recording, only marked invalid.
func (r *Recorder) InvalidateLast() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := r.traj.Len() - 1; i >= 0; i-- {
		if r.traj.Waypoints[i].Valid {
			r.traj.Waypoints[i].Valid = false
			r.notifyLocked()
			return true
		}
	}
	return false
}

// Trajectory returns a clone of the current trajectory.
func (r *Recorder) Trajectory() *motion.Trajectory {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.traj.Clone()
}

// Len returns the waypoint count.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.traj.Len()
}

// MergeLinear collapses consecutive same-direction linear movements
// in the frozen trajectory. Rejected while recording.
func (r *Recorder) MergeLinear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return fmt.Errorf("cannot optimize while recording")
	}
	before := r.traj.Len()
	r.traj.MergeLinear()
	r.notifyLocked()
	log.Info("linear movements merged", "before", before, "after", r.traj.Len())
	return nil
}

// Save writes the trajectory to path.
func (r *Recorder) Save(path string) error {
	r.mu.Lock()
	traj := r.traj.Clone()
	r.mu.Unlock()
	if err := traj.Save(path); err != nil {
		return err
	}
	log.Info("trajectory saved", "path", path, "waypoints", traj.Len())
	return nil
}

// Load replaces the trajectory with the contents of path. Validation
// is atomic: a malformed file leaves the current trajectory in place.
func (r *Recorder) Load(path string) error {
	traj, err := motion.Load(path, r.dof)
	if err != nil {
		return err
	}
	traj.ID = uuid.NewString()
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return fmt.Errorf("cannot load while recording")
	}
	r.traj = traj
	r.notifyLocked()
	r.mu.Unlock()
	log.Info("trajectory loaded", "path", path, "waypoints", traj.Len())
	return nil
}

func (r *Recorder) notifyLocked() {
	if r.onChange != nil {
		r.onChange(r.traj.ID, r.traj.Len())
	}
}
