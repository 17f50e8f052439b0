package gamepad

import (
	"context"
	"time"

	"github.com/telemotion/armrec/internal/log"
)

// Sampler polls a Device on a fixed period and emits discrete events:
// axis changes past a dead zone, button edges, and device loss. It
// never blocks on a slow consumer; events that cannot be delivered
// before the next tick are dropped, which matches the system's
// no-queue backpressure model.
type Sampler struct {
	device   Device
	period   time.Duration
	deadZone float64

	// repeat re-emits pressed edges while held; value is the re-emit
	// interval.
	repeat map[int]time.Duration

	reconnectPeriod time.Duration

	events chan Event

	prevAxes    map[int]float64
	prevButtons map[int]bool
	lastRepeat  map[int]time.Time
}

// NewSampler creates a sampler polling device every period. Axis
// changes below deadZone (normalized units) are suppressed.
func NewSampler(device Device, period time.Duration, deadZone float64) *Sampler {
	return &Sampler{
		device:          device,
		period:          period,
		deadZone:        deadZone,
		repeat:          make(map[int]time.Duration),
		reconnectPeriod: time.Second,
		events:          make(chan Event, 64),
		prevAxes:        make(map[int]float64),
		prevButtons:     make(map[int]bool),
		lastRepeat:      make(map[int]time.Time),
	}
}

// SetRepeat marks button as a repeat button: while held it re-emits a
// pressed edge every interval, for continuous jogging.
func (s *Sampler) SetRepeat(button int, interval time.Duration) {
	s.repeat[button] = interval
}

// SetReconnectPeriod sets how often a lost device is probed.
func (s *Sampler) SetReconnectPeriod(d time.Duration) {
	s.reconnectPeriod = d
}

// Events returns the sampler's output channel. Closed when Run
// returns.
func (s *Sampler) Events() <-chan Event {
	return s.events
}

// Run polls until ctx is cancelled. On device loss it emits DeviceLost
// and suspends sampling until the device answers again; it never
// fabricates events from stale state.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	defer close(s.events)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.sample() {
				s.emit(Event{Kind: DeviceLost})
				log.Warn("controller lost, suspending sampling")
				if !s.awaitReconnect(ctx) {
					return
				}
				s.emit(Event{Kind: DeviceFound})
				log.Info("controller reconnected")
			}
		}
	}
}

// sample reads the device once and emits the resulting events.
// Returns false when the device is gone.
func (s *Sampler) sample() bool {
	axes, err := s.device.ReadAxes()
	if err != nil {
		return false
	}
	buttons, err := s.device.ReadButtons()
	if err != nil {
		return false
	}

	for id, v := range axes {
		if abs(v) < s.deadZone {
			v = 0
		}
		prev := s.prevAxes[id]
		if v == prev {
			continue
		}
		// A return to center always gets through so jogging stops.
		if v != 0 && abs(v-prev) < s.deadZone {
			continue
		}
		s.prevAxes[id] = v
		s.emit(Event{Kind: AxisChange, Axis: id, Value: v})
	}

	now := time.Now()
	for id, pressed := range buttons {
		prev := s.prevButtons[id]
		s.prevButtons[id] = pressed
		switch {
		case pressed && !prev:
			s.lastRepeat[id] = now
			s.emit(Event{Kind: ButtonEdge, Button: id, Pressed: true})
		case !pressed && prev:
			s.emit(Event{Kind: ButtonEdge, Button: id, Pressed: false})
		case pressed:
			interval, ok := s.repeat[id]
			if ok && now.Sub(s.lastRepeat[id]) >= interval {
				s.lastRepeat[id] = now
				s.emit(Event{Kind: ButtonEdge, Button: id, Pressed: true})
			}
		}
	}
	return true
}

// awaitReconnect probes the device until it answers or ctx ends.
// Previous sample state is discarded so reconnection starts clean.
func (s *Sampler) awaitReconnect(ctx context.Context) bool {
	ticker := time.NewTicker(s.reconnectPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if s.device.IsConnected() {
				s.prevAxes = make(map[int]float64)
				s.prevButtons = make(map[int]bool)
				return true
			}
		}
	}
}

func (s *Sampler) emit(e Event) {
	select {
	case s.events <- e:
	default:
		log.Warn("event channel full, dropping", "kind", e.Kind)
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
