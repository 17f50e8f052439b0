// Package driver is the boundary to the physical arm. It defines the
// vendor-neutral Driver contract, a Dobot-style TCP implementation,
// a simulator for development, and the Adapter that serializes
// command dispatch and owns the observed robot state.
package driver

import (
	"context"
	"errors"

	"github.com/telemotion/armrec/pkg/motion"
)

// Command dispatch and state errors. Callers branch with errors.Is;
// none of these is fatal to the control loops.
var (
	// ErrBusy means the arm has not finished the previous command.
	// Send fails fast instead of queueing.
	ErrBusy = errors.New("robot busy")
	// ErrRejected means the arm declined the command, typically a
	// joint or workspace limit.
	ErrRejected = errors.New("command rejected")
	// ErrTimeout means the arm did not report completion in time.
	ErrTimeout = errors.New("command timed out")
	// ErrDisconnected means the arm connection is down.
	ErrDisconnected = errors.New("robot disconnected")
)

// Driver is the native protocol boundary. Implementations translate
// validated motion commands into vendor moves and report pose and
// busy state. The core never assumes anything beyond this contract.
type Driver interface {
	Connect(ctx context.Context) error
	Disconnect() error
	// SendMotion issues one motion command. A limit violation returns
	// an error wrapping ErrRejected; it never blocks on completion.
	SendMotion(cmd motion.Command) error
	// ReadPose returns the cartesian pose, one value per DOF.
	ReadPose() ([]float64, error)
	// ReadAngles returns the joint angles, one value per DOF.
	ReadAngles() ([]float64, error)
	IsBusy() (bool, error)
	// ClearError clears a latched fault and re-enables the arm.
	ClearError() error
}
