package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/jamstermayne/conference-party-microservice-sub017/internal/api"
	"github.com/jamstermayne/conference-party-microservice-sub017/internal/config"
	"github.com/jamstermayne/conference-party-microservice-sub017/internal/graph"
	"github.com/jamstermayne/conference-party-microservice-sub017/internal/identity"
	"github.com/jamstermayne/conference-party-microservice-sub017/internal/match"
	"github.com/jamstermayne/conference-party-microservice-sub017/internal/meeting"
	"github.com/jamstermayne/conference-party-microservice-sub017/internal/scan"
	"github.com/jamstermayne/conference-party-microservice-sub017/internal/storage"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting matchd...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/matchd.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// PostgreSQL backs the attendee directory and meeting table; without it
	// the engine runs on in-memory stores.
	var pool *storage.Pool
	var directory identity.Directory = identity.NewMemoryDirectory()
	var meetingStore meeting.Store = meeting.NewMemoryStore()
	if cfg.Database.Postgres.DSN != "" {
		p, pgErr := storage.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without persistence", zap.Error(pgErr))
		} else {
			if mErr := p.Migrate(context.Background(), "migrations"); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			pool = p
			directory = identity.NewPostgresDirectory(p.DB())
			meetingStore = meeting.NewPostgresStore(p.DB())
		}
	}

	// Neo4j backs the interaction graph.
	var edgeStore graph.EdgeStore = graph.NewMemoryEdgeStore()
	var neoStore *graph.Neo4jEdgeStore
	if cfg.Database.Neo4j.URI != "" {
		ns, neoErr := graph.NewNeo4jEdgeStore(
			cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if neoErr == nil {
			neoErr = ns.Ping(context.Background())
		}
		if neoErr != nil {
			logger.Warn("Neo4j unavailable, using in-memory edge graph", zap.Error(neoErr))
		} else {
			neoStore = ns
			edgeStore = ns
			logger.Info("Neo4j connected")
		}
	}

	// Redis backs the scan dedup set so replays are caught across replicas.
	var deduper scan.Deduper = scan.NewMemoryDeduper(cfg.Engine.DedupRetention())
	var redisDeduper *scan.RedisDeduper
	if cfg.Database.Redis.URL != "" {
		rd, rdErr := scan.NewRedisDeduper(cfg.Database.Redis.URL, cfg.Engine.DedupRetention(), logger)
		if rdErr != nil {
			logger.Warn("Redis unavailable, using in-memory dedup set", zap.Error(rdErr))
		} else {
			redisDeduper = rd
			deduper = rd
			logger.Info("Redis connected")
		}
	}

	hotspots := graph.NewHotspotTracker(edgeStore, cfg.Engine.HotspotInterval(), 10, logger)
	hotspots.Start()

	dedup := scan.NewDeduplicator(deduper, logger)
	aggregator := graph.NewAggregator(edgeStore, hotspots, logger)
	matcher := match.NewEngine(directory, edgeStore, logger)
	scheduler := meeting.NewScheduler(meetingStore, directory, logger)

	handler := api.NewHandler(dedup, aggregator, matcher, scheduler, directory, hotspots, api.Options{
		DefaultMatchLimit: cfg.Engine.MatchLimit(),
		RetryAttempts:     cfg.Engine.RetryAttempts(),
		RetryBaseBackoff:  cfg.Engine.RetryBaseBackoff(),
	}, logger)

	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("matchd listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down matchd...")
	hotspots.Stop()
	ctx := context.Background()
	srv.Shutdown(ctx)
	if neoStore != nil {
		neoStore.Close(ctx)
	}
	if redisDeduper != nil {
		redisDeduper.Close()
	}
	if pool != nil {
		pool.Close()
	}
}
