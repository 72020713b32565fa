package api

import (
	"fmt"

	"github.com/ewancrowle/porter3/internal/config"
	"github.com/ewancrowle/porter3/internal/quicgateway"
	"github.com/ewancrowle/porter3/internal/strategy"
	"github.com/ewancrowle/porter3/internal/sync"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

// GatewayStats is the slice of quicgateway.Gateway this package depends
// on, kept narrow so a future alternate transport core only needs to
// satisfy this interface rather than the whole Gateway type.
type GatewayStats interface {
	Stats() quicgateway.Stats
	ConnectionCountsByState() map[string]int
	SessionCacheSize() int
	TokenCacheSize() int
}

type Server struct {
	app     *fiber.App
	cfg     *config.Config
	simple  *strategy.SimpleStrategy
	agones  *strategy.AgonesStrategy
	sync    *sync.RedisSync
	gateway GatewayStats
}

func NewServer(cfg *config.Config, simple *strategy.SimpleStrategy, agones *strategy.AgonesStrategy, redisSync *sync.RedisSync, gateway GatewayStats) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	if cfg.API.LogRequests {
		app.Use(logger.New())
	}

	s := &Server{
		app:     app,
		cfg:     cfg,
		simple:  simple,
		agones:  agones,
		sync:    redisSync,
		gateway: gateway,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Post("/routes", s.handleUpdateRoute)
	s.app.Post("/allocate", s.handleAgonesAllocation)
	s.app.Get("/stats", s.handleStats)
}

// handleStats reports gateway internals per SPEC_FULL.md §4.L: live
// connection counts by state, cache sizes, and 0-RTT accept/reject
// counters.
func (s *Server) handleStats(c *fiber.Ctx) error {
	if s.gateway == nil {
		return c.Status(503).JSON(fiber.Map{"error": "QUIC gateway not running"})
	}

	stats := s.gateway.Stats()
	return c.JSON(fiber.Map{
		"connections_by_state": s.gateway.ConnectionCountsByState(),
		"session_cache_size":   s.gateway.SessionCacheSize(),
		"token_cache_size":     s.gateway.TokenCacheSize(),
		"zero_rtt": fiber.Map{
			"accepted": stats.ZeroRTTAccepted,
			"rejected": stats.ZeroRTTRejected,
		},
	})
}

func (s *Server) Start() error {
	return s.app.Listen(fmt.Sprintf(":%d", s.cfg.API.Port))
}

func (s *Server) handleUpdateRoute(c *fiber.Ctx) error {
	var route strategy.Route
	if err := c.BodyParser(&route); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if route.Type == strategy.StrategySimple {
		s.simple.UpdateRoute(route.FQDN, route.Target)
	} else if route.Type == strategy.StrategyAgones {
		if !s.cfg.Agones.Enabled {
			return c.Status(400).JSON(fiber.Map{"error": "Agones is disabled"})
		}
		s.agones.UpdateRoute(route.FQDN, route.Target)
	} else {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid strategy type"})
	}

	// Publish to Redis for sync
	if s.sync != nil {
		if err := s.sync.PublishUpdate(c.Context(), route); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "Failed to sync route"})
		}
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleAgonesAllocation(c *fiber.Ctx) error {
	if !s.cfg.Agones.Enabled {
		return c.Status(400).JSON(fiber.Map{"error": "Agones is disabled"})
	}

	type allocationRequest struct {
		FQDN string `json:"fqdn"`
	}
	var req allocationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	target, err := s.agones.Resolve(c.Context(), req.FQDN)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"fqdn":   req.FQDN,
		"target": target,
	})
}
