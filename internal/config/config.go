// Package config loads armrec configuration from a YAML file with
// environment variable overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Keymap assigns controller buttons and axes to recorder roles.
// Button and axis numbers follow the Linux joystick driver's layout.
type Keymap struct {
	SavePoint        int `yaml:"save_point"`        // record current pose as POINT
	ToggleMotionType int `yaml:"toggle_motion"`     // JOINT <-> LINEAR
	JointNext        int `yaml:"joint_next"`        // cycle active joint up
	JointPrev        int `yaml:"joint_prev"`        // cycle active joint down
	RecordToggle     int `yaml:"record_toggle"`     // begin/end recording
	PlaybackToggle   int `yaml:"playback_toggle"`   // start/stop playback
	InvalidateLast   int `yaml:"invalidate_last"`   // soft-delete last waypoint
	NudgeXPos        int `yaml:"nudge_x_pos"`       // repeat buttons for cartesian nudges
	NudgeXNeg        int `yaml:"nudge_x_neg"`
	NudgeYPos        int `yaml:"nudge_y_pos"`
	NudgeYNeg        int `yaml:"nudge_y_neg"`
	JogAxis          int `yaml:"jog_axis"`          // jogs the active joint
	CartesianXAxis   int `yaml:"cartesian_x_axis"`  // cartesian drag when motion type is LINEAR
	CartesianYAxis   int `yaml:"cartesian_y_axis"`
}

// Bound is a per-joint travel limit in degrees.
type Bound struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Robot holds the arm's connection and kinematic parameters.
type Robot struct {
	Address       string    `yaml:"address"`
	DashboardPort int       `yaml:"dashboard_port"`
	MovePort      int       `yaml:"move_port"`
	DOF           int       `yaml:"dof"`
	StartPose     []float64 `yaml:"start_pose"`
	JointBounds   []Bound   `yaml:"joint_bounds"`
	// MaxStep is the largest relative step per joint per tick, in
	// degrees. Scales the normalized axis value into a jog step.
	MaxStep []float64 `yaml:"max_step"`
	// LinearStep is the cartesian step scale in millimeters.
	LinearStep float64 `yaml:"linear_step"`
	// MinStep zeroes residual steps below this magnitude so bound
	// clamping cannot leave the arm creeping.
	MinStep float64 `yaml:"min_step"`
}

// Timing holds the periods of the independent control loops.
type Timing struct {
	SamplePeriod    time.Duration `yaml:"sample_period"`
	PollPeriod      time.Duration `yaml:"poll_period"`
	StepPeriod      time.Duration `yaml:"step_period"`
	StepTimeout     time.Duration `yaml:"step_timeout"`
	RepeatPeriod    time.Duration `yaml:"repeat_period"`
	ReconnectPeriod time.Duration `yaml:"reconnect_period"`
}

// Config is the root armrec configuration.
type Config struct {
	Robot    Robot  `yaml:"robot"`
	Timing   Timing `yaml:"timing"`
	Keymap   Keymap `yaml:"keymap"`
	Joystick int    `yaml:"joystick"` // /dev/input/js index
	SavePath string `yaml:"save_path"`
	HTTPPort string `yaml:"http_port"`
	LogLevel string `yaml:"log_level"`
	// AxisDeadZone filters joystick jitter; normalized units.
	AxisDeadZone float64 `yaml:"axis_dead_zone"`
}

// Default returns the configuration for a 4-joint Dobot-style arm.
func Default() Config {
	return Config{
		Robot: Robot{
			Address:       "192.168.1.6",
			DashboardPort: 29999,
			MovePort:      30003,
			DOF:           4,
			StartPose:     []float64{0, 0, 220, 0},
			JointBounds: []Bound{
				{Min: -80, Max: 80},
				{Min: -125, Max: 125},
				{Min: 85, Max: 245},
				{Min: -355, Max: 355},
			},
			MaxStep:    []float64{5, 5, 5, 15},
			LinearStep: 5,
			MinStep:    0.5,
		},
		Timing: Timing{
			SamplePeriod:    20 * time.Millisecond,
			PollPeriod:      100 * time.Millisecond,
			StepPeriod:      50 * time.Millisecond,
			StepTimeout:     5 * time.Second,
			RepeatPeriod:    200 * time.Millisecond,
			ReconnectPeriod: time.Second,
		},
		Keymap: Keymap{
			SavePoint:        0, // cross
			ToggleMotionType: 3, // square
			InvalidateLast:   2, // triangle
			PlaybackToggle:   1, // circle
			JointNext:        5, // R1
			JointPrev:        4, // L1
			RecordToggle:     9, // options
			NudgeXPos:        13,
			NudgeXNeg:        12,
			NudgeYPos:        15,
			NudgeYNeg:        14,
			JogAxis:          1,
			CartesianXAxis:   2,
			CartesianYAxis:   3,
		},
		SavePath:     "memory.json",
		HTTPPort:     "8090",
		LogLevel:     "info",
		AxisDeadZone: 0.04,
	}
}

// Load reads the config file at path and applies env overrides. A
// missing path returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides deployment-specific values from the environment.
func (c *Config) applyEnv() {
	if addr := os.Getenv("ROBOT_IP"); addr != "" {
		c.Robot.Address = addr
	}
	if port := os.Getenv("ARMREC_HTTP_PORT"); port != "" {
		c.HTTPPort = port
	}
	if lvl := os.Getenv("ARMREC_LOG_LEVEL"); lvl != "" {
		c.LogLevel = lvl
	}
}

func (c *Config) validate() error {
	r := c.Robot
	if r.DOF < 1 {
		return fmt.Errorf("robot.dof must be positive, got %d", r.DOF)
	}
	if len(r.JointBounds) != r.DOF {
		return fmt.Errorf("robot.joint_bounds has %d entries, want %d", len(r.JointBounds), r.DOF)
	}
	if len(r.MaxStep) != r.DOF {
		return fmt.Errorf("robot.max_step has %d entries, want %d", len(r.MaxStep), r.DOF)
	}
	if len(r.StartPose) != 0 && len(r.StartPose) != r.DOF {
		return fmt.Errorf("robot.start_pose has %d entries, want %d", len(r.StartPose), r.DOF)
	}
	for i, b := range r.JointBounds {
		if b.Min > b.Max {
			return fmt.Errorf("robot.joint_bounds[%d]: min %v above max %v", i, b.Min, b.Max)
		}
	}
	return nil
}
