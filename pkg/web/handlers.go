package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/telemotion/armrec/pkg/hub"
	"github.com/telemotion/armrec/pkg/motion"
	"github.com/telemotion/armrec/pkg/state"
)

// handleStatus returns the current full snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.core.Snapshot())
}

// handleTrajectory returns the active trajectory's waypoints.
func (s *Server) handleTrajectory(c *fiber.Ctx) error {
	traj := s.store.Trajectory()
	return c.JSON(fiber.Map{
		"id":        traj.ID,
		"waypoints": traj.Waypoints,
	})
}

// handleFeed returns the recent activity feed.
func (s *Server) handleFeed(c *fiber.Ctx) error {
	return c.JSON(s.core.Feed())
}

// handleControl applies one transition request from the UI.
// Conflicting requests get 409 so the dashboard can show the refusal
// without treating it as a server fault.
func (s *Server) handleControl(c *fiber.Ctx) error {
	var req state.Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := s.core.RequestTransition(req); err != nil {
		status := fiber.StatusInternalServerError
		switch {
		case errors.Is(err, state.ErrInvalidState):
			status = fiber.StatusConflict
		case errors.Is(err, motion.ErrMalformedFile):
			status = fiber.StatusUnprocessableEntity
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"action": req.Action,
		"result": "ok",
	})
}

// handleClearError forwards a fault reset to the robot.
func (s *Server) handleClearError(c *fiber.Ctx) error {
	if err := s.clearer.ClearError(); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	s.core.AddFeed("Robot", "Error cleared")
	return c.JSON(fiber.Map{"result": "ok"})
}

// handleOptimize merges consecutive linear movements in the frozen
// trajectory.
func (s *Server) handleOptimize(c *fiber.Ctx) error {
	if err := s.store.MergeLinear(); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	s.core.AddFeed("Recorder", "Linear movements merged")
	return c.JSON(fiber.Map{"result": "ok"})
}

// handleStatusWS streams live snapshots.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	hub.NewClient(s.statusHub, c).Run()
}

// handleFeedWS streams the activity feed.
func (s *Server) handleFeedWS(c *websocket.Conn) {
	hub.NewClient(s.feedHub, c).Run()
}
