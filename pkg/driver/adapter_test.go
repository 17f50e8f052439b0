package driver

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/telemotion/armrec/pkg/motion"
)

func testLimits() Limits {
	return Limits{
		Bounds: [][2]float64{
			{-80, 80}, {-125, 125}, {85, 245}, {-355, 355},
		},
		MinStep: 0.5,
	}
}

// connectedAdapter returns an adapter whose state has been primed by
// one poll against a connected simulator.
func connectedAdapter(t *testing.T, sim *Sim) *Adapter {
	t.Helper()
	a := NewAdapter(sim, 4, testLimits(), 10*time.Millisecond)
	if err := sim.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	a.setConnected(true)
	a.poll(context.Background())
	return a
}

func TestAdapter_SendBusyFailsFast(t *testing.T) {
	sim := NewSim(4)
	sim.MoveDuration = time.Second
	a := connectedAdapter(t, sim)

	cmd, _ := motion.NewRelative([]float64{0, 0, 1, 0}, motion.Joint, 4)
	if err := a.Send(cmd); err != nil {
		t.Fatalf("first Send() error = %v", err)
	}

	// Second command while the first is outstanding must not queue.
	start := time.Now()
	err := a.Send(cmd)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("second Send() error = %v, want ErrBusy", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("busy Send() blocked instead of failing fast")
	}
}

func TestAdapter_SendWrongLength(t *testing.T) {
	sim := NewSim(4)
	a := connectedAdapter(t, sim)
	err := a.Send(motion.Command{Kind: motion.RelativeStep, Values: []float64{1, 2}, Motion: motion.Joint})
	if err == nil {
		t.Fatal("short command accepted")
	}
}

func TestAdapter_SendDisconnected(t *testing.T) {
	sim := NewSim(4)
	a := NewAdapter(sim, 4, testLimits(), 10*time.Millisecond)
	cmd, _ := motion.NewRelative([]float64{0, 0, 1, 0}, motion.Joint, 4)
	if err := a.Send(cmd); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("Send() before connect error = %v, want ErrDisconnected", err)
	}
}

func TestAdapter_ClampsJointSteps(t *testing.T) {
	sim := NewSim(4)
	sim.MoveDuration = 0
	a := connectedAdapter(t, sim)

	// Joint 0 sits at 0 with bound [-80, 80]; a +100 step must be
	// clamped to +80.
	cmd, _ := motion.NewRelative([]float64{100, 0, 0, 0}, motion.Joint, 4)
	if err := a.Send(cmd); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	sent := sim.SentCommands()
	if len(sent) != 1 {
		t.Fatalf("driver saw %d commands, want 1", len(sent))
	}
	if got := sent[0].Values[0]; got != 80 {
		t.Errorf("clamped step = %v, want 80", got)
	}
}

// A joint resting outside its configured bound must not receive a
// correction step when the command leaves it alone. With the default
// bounds joint 2's range starts at 85 while the simulator rests at 0;
// jogging joint 0 must reach the driver as exactly the commanded step.
func TestAdapter_ClampOnlyCommandedJoints(t *testing.T) {
	sim := NewSim(4)
	sim.MoveDuration = 0
	a := connectedAdapter(t, sim)

	cmd, _ := motion.NewRelative([]float64{1, 0, 0, 0}, motion.Joint, 4)
	if err := a.Send(cmd); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	sent := sim.SentCommands()
	if len(sent) != 1 {
		t.Fatalf("driver saw %d commands, want 1", len(sent))
	}
	if !reflect.DeepEqual(sent[0].Values, []float64{1, 0, 0, 0}) {
		t.Errorf("driver received %v, want [1 0 0 0]", sent[0].Values)
	}
}

func TestAdapter_ZeroedStepNotSent(t *testing.T) {
	sim := NewSim(4)
	sim.MoveDuration = 0
	a := connectedAdapter(t, sim)

	// Sub-threshold residual after clamping is dropped entirely.
	cmd, _ := motion.NewRelative([]float64{0.1, 0, 0, 0}, motion.Joint, 4)
	if err := a.Send(cmd); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if n := len(sim.SentCommands()); n != 0 {
		t.Errorf("driver saw %d commands, want 0", n)
	}
	// The adapter must not stay marked busy after dropping the step.
	if err := a.WaitIdle(context.Background(), 100*time.Millisecond); err != nil {
		t.Errorf("WaitIdle() after dropped step error = %v", err)
	}
}

func TestAdapter_WaitIdle(t *testing.T) {
	sim := NewSim(4)
	sim.MoveDuration = 30 * time.Millisecond
	a := connectedAdapter(t, sim)

	cmd, _ := motion.NewRelative([]float64{0, 0, 1, 0}, motion.Joint, 4)
	if err := a.Send(cmd); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// Poll in the background the way Run does.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.poll(ctx)
			}
		}
	}()

	if err := a.WaitIdle(ctx, time.Second); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
}

func TestAdapter_WaitIdleTimeout(t *testing.T) {
	sim := NewSim(4)
	sim.MoveDuration = time.Hour // never completes within the test
	a := connectedAdapter(t, sim)

	cmd, _ := motion.NewRelative([]float64{0, 0, 1, 0}, motion.Joint, 4)
	if err := a.Send(cmd); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	err := a.WaitIdle(context.Background(), 30*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("WaitIdle() error = %v, want ErrTimeout", err)
	}
}

func TestAdapter_RejectionPassedThrough(t *testing.T) {
	sim := NewSim(4)
	sim.MoveDuration = 0
	sim.Bounds = [][2]float64{{-80, 80}, {-125, 125}, {85, 245}, {-355, 355}}
	a := connectedAdapter(t, sim)

	// Linear steps are not clamped by the adapter; the simulated
	// controller rejects the out-of-range target itself.
	cmd, _ := motion.NewRelative([]float64{1000, 0, 0, 0}, motion.Linear, 4)
	err := a.Send(cmd)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("Send() error = %v, want ErrRejected", err)
	}
}

// lagDriver acks moves immediately and reports running only when its
// scripted busy sequence says so, like the hardware's mode register.
type lagDriver struct {
	mu   sync.Mutex
	busy []bool
	sent int
}

func (d *lagDriver) setBusySeq(seq ...bool) {
	d.mu.Lock()
	d.busy = seq
	d.mu.Unlock()
}

func (d *lagDriver) Connect(ctx context.Context) error { return nil }
func (d *lagDriver) Disconnect() error                 { return nil }
func (d *lagDriver) ClearError() error                 { return nil }

func (d *lagDriver) SendMotion(cmd motion.Command) error {
	d.mu.Lock()
	d.sent++
	d.mu.Unlock()
	return nil
}

func (d *lagDriver) ReadPose() ([]float64, error)   { return make([]float64, 4), nil }
func (d *lagDriver) ReadAngles() ([]float64, error) { return make([]float64, 4), nil }

func (d *lagDriver) IsBusy() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.busy) == 0 {
		return false, nil
	}
	b := d.busy[0]
	d.busy = d.busy[1:]
	return b, nil
}

// A poll landing between a move's ack and the arm reporting running
// must not release the one-outstanding-command gate.
func TestAdapter_GateHeldUntilBusyObserved(t *testing.T) {
	ctx := context.Background()
	drv := &lagDriver{}
	a := NewAdapter(drv, 4, testLimits(), 10*time.Millisecond)
	a.setConnected(true)
	a.poll(ctx)

	cmd, _ := motion.NewRelative([]float64{0, 0, 1, 0}, motion.Joint, 4)
	drv.setBusySeq(false, true, false)
	if err := a.Send(cmd); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// Arm has not flipped to running yet; the gate must hold.
	a.poll(ctx)
	if err := a.Send(cmd); !errors.Is(err, ErrBusy) {
		t.Fatalf("Send() during ack gap error = %v, want ErrBusy", err)
	}

	a.poll(ctx) // running
	a.poll(ctx) // done
	if err := a.Send(cmd); err != nil {
		t.Fatalf("Send() after completed move error = %v", err)
	}
}

// A move too short for any poll to catch it running still releases the
// gate once the grace window passes.
func TestAdapter_GateClearsAfterGraceWithoutBusy(t *testing.T) {
	ctx := context.Background()
	drv := &lagDriver{} // never reports running
	a := NewAdapter(drv, 4, testLimits(), 5*time.Millisecond)
	a.setConnected(true)
	a.poll(ctx)

	cmd, _ := motion.NewRelative([]float64{0, 0, 1, 0}, motion.Joint, 4)
	if err := a.Send(cmd); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	a.poll(ctx)
	if err := a.Send(cmd); !errors.Is(err, ErrBusy) {
		t.Fatalf("Send() inside grace window error = %v, want ErrBusy", err)
	}

	time.Sleep(15 * time.Millisecond) // past two poll periods
	a.poll(ctx)
	if err := a.Send(cmd); err != nil {
		t.Fatalf("Send() after grace window error = %v", err)
	}
}

func TestAdapter_PollPublishesState(t *testing.T) {
	sim := NewSim(4)
	a := NewAdapter(sim, 4, testLimits(), 10*time.Millisecond)
	if err := sim.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	a.setConnected(true)

	var got motion.RobotState
	a.OnState(func(s motion.RobotState) { got = s })
	a.poll(context.Background())

	if !got.Connected {
		t.Error("published state not connected")
	}
	if len(got.Pose) != 4 || len(got.Angles) != 4 {
		t.Errorf("published state has pose len %d, angles len %d", len(got.Pose), len(got.Angles))
	}
}
