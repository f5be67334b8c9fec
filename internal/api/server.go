package api

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberws "github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/openblinds/blindctl/internal/health"
	"github.com/openblinds/blindctl/internal/logger"
	"github.com/openblinds/blindctl/internal/metrics"
	"github.com/openblinds/blindctl/internal/motor"
	"github.com/openblinds/blindctl/internal/power"
	"github.com/openblinds/blindctl/internal/protocol"
	"github.com/openblinds/blindctl/internal/websocket"
)

// Version is stamped by the build.
var Version = "0.9.2"

// Server exposes the controller over HTTP for the local network:
// status, metrics, health, a raw command passthrough, and a live
// status stream over WebSocket.
type Server struct {
	app     *fiber.App
	motor   *motor.Controller
	proc    *protocol.Processor
	power   *power.Monitor
	hub     *websocket.Hub
	checker *health.HealthChecker
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
}

// NewServer builds the fiber app and routes.
func NewServer(m *motor.Controller, proc *protocol.Processor, pw *power.Monitor, hub *websocket.Hub, checker *health.HealthChecker, mx *metrics.Metrics) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               "blindctl v" + Version,
			DisableStartupMessage: true,
		}),
		motor:   m,
		proc:    proc,
		power:   pw,
		hub:     hub,
		checker: checker,
		metrics: mx,
		log:     logger.Sugar().With("component", "api"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	s.app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"name":    "blindctl",
			"version": Version,
			"status":  "running",
		})
	})

	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/api/status", s.handleStatus)
	s.app.Get("/api/metrics", s.handleMetrics)
	s.app.Post("/api/command", s.handleCommand)

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", fiberws.New(s.hub.HandleWebSocket))
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()
	checks := s.checker.RunChecks(ctx)
	overall := health.StatusHealthy
	for _, check := range checks {
		switch check.Status {
		case health.StatusUnhealthy:
			overall = health.StatusUnhealthy
		case health.StatusDegraded:
			if overall == health.StatusHealthy {
				overall = health.StatusDegraded
			}
		}
	}
	code := fiber.StatusOK
	if overall == health.StatusUnhealthy {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status": overall,
		"checks": checks,
	})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	snap := s.motor.Snapshot()
	return c.JSON(statusJSON(snap, s.power))
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	snap := s.motor.Snapshot()
	cmds, unknown := s.proc.Stats()
	s.metrics.SetMotionCounters(int64(snap.Stalls), int64(snap.DirErrors))
	s.metrics.SetCommandCounters(int64(cmds), int64(unknown))
	return c.JSON(s.metrics.Snapshot())
}

type commandRequest struct {
	Hex string `json:"hex"`
}

// handleCommand feeds a raw command pair through the protocol processor,
// e.g. {"hex":"ccde"}. The reply frame comes back hex-encoded.
func (s *Server) handleCommand(c *fiber.Ctx) error {
	var req commandRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	raw, err := hex.DecodeString(req.Hex)
	if err != nil || len(raw) != 2 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "hex must encode exactly 2 bytes"})
	}

	reply := s.proc.Process(raw[0], raw[1])
	resp := fiber.Map{"accepted": true}
	if reply != nil {
		resp["reply"] = hex.EncodeToString(reply)
	}
	return c.JSON(resp)
}

// Run serves until ctx is cancelled. It also drives the hub and the
// 1 Hz status broadcast.
func (s *Server) Run(ctx context.Context, host string, port int) error {
	go s.hub.Run()
	go s.broadcastLoop(ctx)

	addr := fmt.Sprintf("%s:%d", host, port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(addr)
	}()
	s.log.Infow("api listening", "addr", addr)

	select {
	case <-ctx.Done():
		return s.app.Shutdown()
	case err := <-errCh:
		return err
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.hub.GetClientCount() == 0 {
				continue
			}
			s.hub.Broadcast(websocket.MessageTypeMotorStatus, statusJSON(s.motor.Snapshot(), s.power))
		}
	}
}

func statusJSON(snap motor.Snapshot, pw *power.Monitor) map[string]interface{} {
	m := map[string]interface{}{
		"status":       snap.Status.String(),
		"direction":    snap.Direction.String(),
		"position":     snap.Position100,
		"location":     snap.Location,
		"target":       snap.TargetLocation,
		"calibrating":  snap.Calibrating,
		"rpm":          snap.RPM,
		"target_speed": snap.TargetSpeed,
		"pwm":          snap.CurrPWM,
		"max_length":   snap.MaxCurtainLength,
		"full_length":  snap.FullCurtainLength,
	}
	if pw != nil {
		m["voltage"] = pw.Voltage()
		m["battery"] = pw.BatteryPercent()
	}
	return m
}
