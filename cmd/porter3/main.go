package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ewancrowle/porter3/internal/api"
	"github.com/ewancrowle/porter3/internal/config"
	"github.com/ewancrowle/porter3/internal/quicgateway"
	"github.com/ewancrowle/porter3/internal/strategy"
	"github.com/ewancrowle/porter3/internal/sync"
)

func main() {
	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize strategies
	manager := strategy.NewStrategyManager()

	simple := strategy.NewSimpleStrategy()
	manager.Register(strategy.StrategySimple, simple)

	agones := strategy.NewAgonesStrategy()
	if cfg.Agones.Enabled {
		if err := agones.Setup(cfg.Agones.Enabled, cfg.Agones.AllocatorHost, cfg.Agones.AllocatorClientCert, cfg.Agones.AllocatorClientKey, cfg.Agones.AllocatorCACert); err != nil {
			log.Fatalf("Failed to setup Agones strategy: %v", err)
		}
		manager.Register(strategy.StrategyAgones, agones)
	}

	// 3. Load initial routes from config
	for _, r := range cfg.Routes {
		switch strategy.StrategyType(r.Type) {
		case strategy.StrategySimple:
			simple.UpdateRoute(r.FQDN, r.Target)
			log.Printf("Loaded route from config: %s -> %s (simple)", r.FQDN, r.Target)
		case strategy.StrategyAgones:
			agones.UpdateRoute(r.FQDN, r.Target)
			log.Printf("Loaded route from config: %s -> %s (agones)", r.FQDN, r.Target)
		default:
			log.Printf("Warning: unknown strategy type %s for FQDN %s", r.Type, r.FQDN)
		}
	}

	// 4. Initialize Redis sync
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisSync := sync.NewRedisSync(cfg, simple, agones)
	if redisSync != nil {
		if err := redisSync.LoadInitialRoutes(ctx); err != nil {
			log.Printf("Warning: Failed to load initial routes from Redis: %v", err)
		}
		go redisSync.Subscribe(ctx)
	}

	// 5. Initialize and start the QUIC/HTTP-3 gateway. onRequest is left
	// nil so the gateway's default answer() resolves each request's SNI
	// against manager itself (simple routes, then Agones allocation) the
	// same way api.handleAgonesAllocation resolves an FQDN, falling back
	// to SPEC_FULL.md §4.I's fixed response only when nothing matches.
	gateway, err := quicgateway.New(cfg, manager, redisSync, nil)
	if err != nil {
		log.Fatalf("Failed to initialize QUIC gateway: %v", err)
	}
	if redisSync != nil {
		// A mirrored event only carries the PSK identity and token, not
		// the resumption secret behind them (publishing that over Redis
		// in the clear would defeat the point of a PSK), so a 0-RTT
		// attempt that lands on a different shard than the one that
		// issued its ticket still falls back to a full handshake. The
		// subscription exists so that limitation is visible in logs
		// rather than silent.
		go redisSync.SubscribeTickets(ctx, func(pskIdentity, token []byte) {
			log.Printf("Observed ticket issued on another shard (psk=%x); 0-RTT for it requires landing back on the issuing shard", pskIdentity)
		})
	}

	go func() {
		if err := gateway.Start(ctx); err != nil {
			log.Fatalf("QUIC gateway error: %v", err)
		}
	}()

	// 6. Initialize and start API Server
	server := api.NewServer(cfg, simple, agones, redisSync, gateway)
	go func() {
		log.Printf("API Server listening on :%d", cfg.API.Port)
		if err := server.Start(); err != nil {
			log.Fatalf("API server error: %v", err)
		}
	}()

	// 7. Live-reload routes on config file change.
	config.WatchForChanges(func(newCfg *config.Config) {
		for _, r := range newCfg.Routes {
			switch strategy.StrategyType(r.Type) {
			case strategy.StrategySimple:
				simple.UpdateRoute(r.FQDN, r.Target)
			case strategy.StrategyAgones:
				agones.UpdateRoute(r.FQDN, r.Target)
			}
		}
	})

	// Wait for interruption
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down porter3...")
	cancel()
}
