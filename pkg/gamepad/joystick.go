package gamepad

import (
	"fmt"
	"sync"

	"github.com/0xcafed00d/joystick"
)

// axisScale converts the Linux joystick driver's int16 axis range to
// [-1, 1].
const axisScale = 32767.0

// JoystickDevice adapts a /dev/input/js* controller to the Device
// interface using the kernel joystick driver.
type JoystickDevice struct {
	id string

	mu sync.Mutex
	js joystick.Joystick
}

// OpenJoystick opens joystick number id (e.g. 0 for /dev/input/js0).
func OpenJoystick(id int) (*JoystickDevice, error) {
	js, err := joystick.Open(id)
	if err != nil {
		return nil, fmt.Errorf("open joystick %d: %w", id, err)
	}
	return &JoystickDevice{id: fmt.Sprintf("js%d", id), js: js}, nil
}

// Name returns the device name reported by the driver.
func (d *JoystickDevice) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.js == nil {
		return d.id
	}
	return d.js.Name()
}

// ReadAxes reads the current normalized axis positions.
func (d *JoystickDevice) ReadAxes() (map[int]float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.js == nil {
		return nil, fmt.Errorf("joystick %s closed", d.id)
	}
	state, err := d.js.Read()
	if err != nil {
		return nil, fmt.Errorf("read joystick %s: %w", d.id, err)
	}
	axes := make(map[int]float64, len(state.AxisData))
	for i, raw := range state.AxisData {
		v := float64(raw) / axisScale
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		axes[i] = v
	}
	return axes, nil
}

// ReadButtons reads the current button states.
func (d *JoystickDevice) ReadButtons() (map[int]bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.js == nil {
		return nil, fmt.Errorf("joystick %s closed", d.id)
	}
	state, err := d.js.Read()
	if err != nil {
		return nil, fmt.Errorf("read joystick %s: %w", d.id, err)
	}
	buttons := make(map[int]bool, d.js.ButtonCount())
	for i := 0; i < d.js.ButtonCount(); i++ {
		buttons[i] = state.Buttons&(1<<uint(i)) != 0
	}
	return buttons, nil
}

// IsConnected reports whether the device still answers reads.
func (d *JoystickDevice) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.js == nil {
		return false
	}
	_, err := d.js.Read()
	return err == nil
}

// Close releases the device.
func (d *JoystickDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.js != nil {
		d.js.Close()
		d.js = nil
	}
	return nil
}
