package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/telemotion/armrec/pkg/motion"
)

// Sim is an in-process arm for development and tests. Moves take
// MoveDuration to "execute"; the arm reports busy until then and
// rejects targets outside its bounds.
type Sim struct {
	dof          int
	MoveDuration time.Duration
	// Bounds are optional per-joint [min, max] limits for rejection
	// tests. Nil accepts everything.
	Bounds [][2]float64

	mu        sync.Mutex
	connected bool
	angles    []float64
	busyUntil time.Time

	// Sent records every accepted command in order, for tests.
	Sent []motion.Command
}

// NewSim creates a simulator for a dof-joint arm.
func NewSim(dof int) *Sim {
	return &Sim{
		dof:          dof,
		MoveDuration: 10 * time.Millisecond,
		angles:       make([]float64, dof),
	}
}

func (s *Sim) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *Sim) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *Sim) SendMotion(cmd motion.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrDisconnected
	}
	if time.Now().Before(s.busyUntil) {
		return ErrBusy
	}

	target := make([]float64, s.dof)
	copy(target, s.angles)
	if cmd.Kind == motion.RelativeStep {
		for i, v := range cmd.Values {
			target[i] += v
		}
	} else {
		copy(target, cmd.Values)
	}
	if s.Bounds != nil {
		for i, v := range target {
			if v < s.Bounds[i][0] || v > s.Bounds[i][1] {
				return fmt.Errorf("%w: joint %d target %v out of range", ErrRejected, i, v)
			}
		}
	}

	s.angles = target
	s.busyUntil = time.Now().Add(s.MoveDuration)
	s.Sent = append(s.Sent, cmd)
	return nil
}

func (s *Sim) ReadPose() ([]float64, error) {
	// The simulator has no kinematics; pose mirrors the angles.
	return s.ReadAngles()
}

func (s *Sim) ReadAngles() ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, ErrDisconnected
	}
	return append([]float64(nil), s.angles...), nil
}

func (s *Sim) IsBusy() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false, ErrDisconnected
	}
	return time.Now().Before(s.busyUntil), nil
}

func (s *Sim) ClearError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrDisconnected
	}
	return nil
}

// SentCommands returns a copy of the accepted command log.
func (s *Sim) SentCommands() []motion.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]motion.Command(nil), s.Sent...)
}

var _ Driver = (*Sim)(nil)
