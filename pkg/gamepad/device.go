// Package gamepad samples a game controller at a fixed rate and turns
// raw axis/button state into discrete events for the teleoperation
// pipeline.
package gamepad

// Device is the controller hardware boundary. Axis values are
// normalized to [-1, 1]; button and axis ids follow the device's own
// numbering.
type Device interface {
	ReadAxes() (map[int]float64, error)
	ReadButtons() (map[int]bool, error)
	IsConnected() bool
	Close() error
}

// EventKind tags a sampler event.
type EventKind int

const (
	// AxisChange reports a normalized axis value that moved beyond
	// the dead zone since the last emitted value.
	AxisChange EventKind = iota
	// ButtonEdge reports a press or release transition. Repeat
	// buttons also re-emit pressed edges at a slower rate while held.
	ButtonEdge
	// DeviceLost reports that the controller disconnected. Sampling
	// suspends until the device reports connected again.
	DeviceLost
	// DeviceFound reports reconnection after a DeviceLost.
	DeviceFound
)

// Event is one discrete controller event. Produced once per sample,
// never retained by the sampler.
type Event struct {
	Kind    EventKind
	Axis    int
	Value   float64
	Button  int
	Pressed bool
}
