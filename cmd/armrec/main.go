package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/telemotion/armrec/internal/config"
	"github.com/telemotion/armrec/internal/log"
	"github.com/telemotion/armrec/pkg/driver"
	"github.com/telemotion/armrec/pkg/gamepad"
	"github.com/telemotion/armrec/pkg/motion"
	"github.com/telemotion/armrec/pkg/playback"
	"github.com/telemotion/armrec/pkg/recorder"
	"github.com/telemotion/armrec/pkg/state"
	"github.com/telemotion/armrec/pkg/teleop"
	"github.com/telemotion/armrec/pkg/web"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	sim := flag.Bool("sim", false, "Use the simulated arm instead of hardware")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)
	if *debug {
		log.SetLevel("debug")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")
		cancel()
	}()

	dof := cfg.Robot.DOF

	// Robot side.
	var drv driver.Driver
	if *sim {
		drv = driver.NewSim(dof)
		log.Info("using simulated arm", "dof", dof)
	} else {
		drv = driver.NewDobot(cfg.Robot.Address, cfg.Robot.DashboardPort, cfg.Robot.MovePort, dof)
	}
	adapter := driver.NewAdapter(drv, dof, limitsFromConfig(cfg.Robot), cfg.Timing.PollPeriod)

	// Shared state and the components around it.
	core := state.NewCore(dof)
	rec := recorder.New(dof)
	engine := playback.New(adapter, dof, cfg.Timing.StepPeriod, cfg.Timing.StepTimeout)

	adapter.OnState(core.SetRobotState)
	rec.OnChange(core.SetTrajectory)
	engine.OnProgress(core.SetPlayback)

	core.SetHooks(state.Hooks{
		RecordStart: func() error {
			if err := rec.Begin(); err != nil {
				return err
			}
			// The first waypoint is the pose recording started from,
			// so a replay returns to a known origin.
			if robot := adapter.State(); robot.Connected {
				if cmd, err := motion.NewAbsolute(robot.Pose, motion.Joint, dof); err == nil {
					rec.Append(cmd, true)
				}
			}
			return nil
		},
		RecordStop: rec.End,
		PlaybackStart: func() error {
			traj := rec.Trajectory()
			if traj.Len() == 0 {
				return fmt.Errorf("nothing to play back")
			}
			return engine.Start(traj)
		},
		PlaybackPause:  engine.Pause,
		PlaybackResume: engine.Resume,
		PlaybackStop:   engine.Stop,
		Save: func(path string) error {
			if path == "" {
				path = cfg.SavePath
			}
			if err := rec.Save(path); err != nil {
				return err
			}
			core.AddFeed("Recorder", "Saved trajectory to "+path)
			return nil
		},
		Load: func(path string) error {
			if path == "" {
				path = cfg.SavePath
			}
			if err := rec.Load(path); err != nil {
				return err
			}
			core.AddFeed("Recorder", "Loaded trajectory from "+path)
			return nil
		},
	})

	go adapter.Run(ctx)
	go moveToStart(ctx, adapter, cfg.Robot, dof)

	// Controller side. A missing controller leaves the dashboard
	// fully functional.
	if events := startSampler(ctx, cfg, core); events != nil {
		tr := teleop.NewTranslator(cfg)
		session := teleop.NewSession(events, tr, core, adapter, rec, cfg.Timing.SamplePeriod, dof)
		go session.Run(ctx)
	}

	server := web.NewServer(cfg.HTTPPort, core, rec, adapter)
	server.StartAsync()

	core.AddFeed("Recorder", "armrec started")

	<-ctx.Done()
	engine.Stop()
	server.Shutdown()
}

// startSampler opens the joystick and starts the sampler loop.
// Returns nil when no controller is present.
func startSampler(ctx context.Context, cfg config.Config, core *state.Core) <-chan gamepad.Event {
	device, err := gamepad.OpenJoystick(cfg.Joystick)
	if err != nil {
		log.Warn("no controller found, teleoperation disabled", "err", err)
		return nil
	}
	log.Info("controller connected", "name", device.Name())
	core.SetControllerConnected(true)

	sampler := gamepad.NewSampler(device, cfg.Timing.SamplePeriod, cfg.AxisDeadZone)
	sampler.SetReconnectPeriod(cfg.Timing.ReconnectPeriod)
	for _, b := range []int{cfg.Keymap.NudgeXPos, cfg.Keymap.NudgeXNeg, cfg.Keymap.NudgeYPos, cfg.Keymap.NudgeYNeg} {
		sampler.SetRepeat(b, cfg.Timing.RepeatPeriod)
	}
	go func() {
		sampler.Run(ctx)
		device.Close()
	}()
	return sampler.Events()
}

// moveToStart sends the configured start pose once the arm is up.
func moveToStart(ctx context.Context, adapter *driver.Adapter, r config.Robot, dof int) {
	if len(r.StartPose) == 0 {
		return
	}
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !adapter.State().Connected {
				continue
			}
			cmd, err := motion.NewAbsolute(r.StartPose, motion.Joint, dof)
			if err != nil {
				log.Error("bad start pose", "err", err)
				return
			}
			if err := adapter.Send(cmd); err == nil {
				log.Info("moved to start pose")
				return
			}
		}
	}
}

func limitsFromConfig(r config.Robot) driver.Limits {
	bounds := make([][2]float64, len(r.JointBounds))
	for i, b := range r.JointBounds {
		bounds[i] = [2]float64{b.Min, b.Max}
	}
	return driver.Limits{Bounds: bounds, MinStep: r.MinStep}
}
