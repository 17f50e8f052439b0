// Package state owns the single authoritative view of the
// teleoperation session: controller mode, observed robot state,
// trajectory summary, and playback progress. Every mutation of shared
// state passes through the Core, which pushes a snapshot to
// subscribers on each change.
package state

import (
	"encoding/json"
	"time"

	"github.com/telemotion/armrec/pkg/motion"
)

// Operation is the session's exclusive top-level mode. RECORD and
// PLAYBACK never overlap.
type Operation string

const (
	Idle     Operation = "IDLE"
	Record   Operation = "RECORD"
	Playback Operation = "PLAYBACK"
)

// PlaybackState is the playback engine's machine state.
type PlaybackState string

const (
	Stopped PlaybackState = "STOPPED"
	Running PlaybackState = "RUNNING"
	Paused  PlaybackState = "PAUSED"
)

// Mode is the live controller mode. Mutated only by button edges and
// UI requests, always through the Core.
type Mode struct {
	ActiveJoint int               `json:"active_joint"`
	MotionType  motion.MotionType `json:"motion_type"`
	Operation   Operation         `json:"operation"`
}

// PlaybackProgress reports where a replay is, including which steps
// were skipped as failed.
type PlaybackProgress struct {
	State       PlaybackState `json:"state"`
	Cursor      int           `json:"cursor"`
	Total       int           `json:"total"`
	FailedSteps []int         `json:"failed_steps,omitempty"`
}

// TrajectorySummary is the lightweight trajectory view pushed to the
// UI; the full waypoint list is fetched over the REST API instead.
type TrajectorySummary struct {
	ID        string `json:"id"`
	Waypoints int    `json:"waypoints"`
}

// Snapshot is one full consistent view of the session, produced on
// every state change.
type Snapshot struct {
	Mode       Mode              `json:"mode"`
	Robot      motion.RobotState `json:"robot"`
	Trajectory TrajectorySummary `json:"trajectory"`
	Playback   PlaybackProgress  `json:"playback"`
	Controller bool              `json:"controller_connected"`
	Status     string            `json:"status,omitempty"`
}

// feedTimeFormat matches the recorder's historical feed file format.
const feedTimeFormat = "15:04:05T02.01.2006"

// FeedEntry is one line of the human-readable activity feed.
type FeedEntry struct {
	Timestamp time.Time
	Message   string
	Source    string
}

// MarshalJSON keeps the feed wire format compatible with earlier feed
// dumps.
func (e FeedEntry) MarshalJSON() ([]byte, error) {
	type wire struct {
		Timestamp string `json:"Timestamp"`
		Message   string `json:"Message"`
		Source    string `json:"Source"`
	}
	return json.Marshal(wire{
		Timestamp: e.Timestamp.Format(feedTimeFormat),
		Message:   e.Message,
		Source:    e.Source,
	})
}
