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
	"github.com/telemotion/armrec/pkg/motion"
	"github.com/telemotion/armrec/pkg/playback"
	"github.com/telemotion/armrec/pkg/state"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	file := flag.String("file", "memory.json", "Trajectory file to replay")
	sim := flag.Bool("sim", false, "Replay against the simulated arm")
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

	dof := cfg.Robot.DOF
	traj, err := motion.Load(*file, dof)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *file, err)
		os.Exit(1)
	}
	log.Info("trajectory loaded", "file", *file, "waypoints", traj.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	var drv driver.Driver
	if *sim {
		drv = driver.NewSim(dof)
	} else {
		drv = driver.NewDobot(cfg.Robot.Address, cfg.Robot.DashboardPort, cfg.Robot.MovePort, dof)
	}

	bounds := make([][2]float64, len(cfg.Robot.JointBounds))
	for i, b := range cfg.Robot.JointBounds {
		bounds[i] = [2]float64{b.Min, b.Max}
	}
	adapter := driver.NewAdapter(drv, dof, driver.Limits{Bounds: bounds, MinStep: cfg.Robot.MinStep}, cfg.Timing.PollPeriod)
	go adapter.Run(ctx)

	// Wait until the arm answers polls before stepping.
	for !adapter.State().Connected {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "interrupted before robot connected")
			os.Exit(1)
		case <-time.After(100 * time.Millisecond):
		}
	}

	engine := playback.New(adapter, dof, cfg.Timing.StepPeriod, cfg.Timing.StepTimeout)
	done := make(chan state.PlaybackProgress, 1)
	engine.OnProgress(func(p state.PlaybackProgress) {
		log.Info("progress", "cursor", p.Cursor, "total", p.Total, "state", p.State)
		if p.State == state.Stopped {
			select {
			case done <- p:
			default:
			}
		}
	})

	if err := engine.Start(traj); err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}

	select {
	case p := <-done:
		if len(p.FailedSteps) > 0 {
			log.Warn("replay finished with failed steps", "failed", p.FailedSteps)
			os.Exit(1)
		}
		log.Info("replay finished")
	case <-ctx.Done():
		engine.Stop()
	}
}
