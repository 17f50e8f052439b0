// Package web serves the armrec dashboard: REST endpoints for state
// and control, plus websocket push of live snapshots and the activity
// feed.
package web

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/telemotion/armrec/internal/log"
	"github.com/telemotion/armrec/pkg/hub"
	"github.com/telemotion/armrec/pkg/motion"
	"github.com/telemotion/armrec/pkg/state"
)

// TrajectoryStore is the recorder surface the dashboard needs.
type TrajectoryStore interface {
	Trajectory() *motion.Trajectory
	MergeLinear() error
}

// FaultClearer clears a latched robot fault. Implemented by
// driver.Adapter.
type FaultClearer interface {
	ClearError() error
}

// Server is the dashboard HTTP server.
type Server struct {
	app  *fiber.App
	port string

	core    *state.Core
	store   TrajectoryStore
	clearer FaultClearer

	statusHub *hub.Hub
	feedHub   *hub.Hub
}

// NewServer wires the dashboard against the core and recorder.
func NewServer(port string, core *state.Core, store TrajectoryStore, clearer FaultClearer) *Server {
	s := &Server{
		port:      port,
		core:      core,
		store:     store,
		clearer:   clearer,
		statusHub: hub.New("status"),
		feedHub:   hub.New("feed"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "armrec dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/trajectory", s.handleTrajectory)
	api.Get("/feed", s.handleFeed)
	api.Post("/control", s.handleControl)
	api.Post("/clear-error", s.handleClearError)
	api.Post("/optimize", s.handleOptimize)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/feed", websocket.New(s.handleFeedWS))

	s.app = app
	return s
}

// Start runs the hubs, the snapshot pump, and the HTTP listener.
// Blocks until the server stops.
func (s *Server) Start() error {
	// New status clients get the current snapshot immediately; new
	// feed clients get the backlog.
	s.statusHub.OnConnect(func() [][]byte {
		data, err := json.Marshal(s.core.Snapshot())
		if err != nil {
			return nil
		}
		return [][]byte{data}
	})
	s.feedHub.OnConnect(func() [][]byte {
		entries := s.core.Feed()
		out := make([][]byte, 0, len(entries))
		for _, e := range entries {
			if data, err := json.Marshal(e); err == nil {
				out = append(out, data)
			}
		}
		return out
	})

	go s.statusHub.Run()
	go s.feedHub.Run()

	s.core.OnFeed(func(e state.FeedEntry) {
		s.feedHub.BroadcastJSON(e)
	})
	go s.pumpSnapshots()

	log.Info("dashboard listening", "port", s.port)
	return s.app.Listen(":" + s.port)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			log.Error("web server stopped", "err", err)
		}
	}()
}

// pumpSnapshots forwards every core state change to websocket
// clients.
func (s *Server) pumpSnapshots() {
	ch := s.core.Subscribe()
	for snap := range ch {
		s.statusHub.BroadcastJSON(snap)
	}
}

// Shutdown gracefully stops the web server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
