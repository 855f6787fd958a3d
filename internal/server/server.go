package server

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"

	"rocket/internal/cache"
	"rocket/internal/config"
	"rocket/internal/database"
	"rocket/internal/game"
	"rocket/internal/ledger"
	"rocket/internal/limits"
	"rocket/internal/wallet"
)

// adminWallet is the wallet surface the HTTP layer needs: the player
// operations plus the admin overwrite.
type adminWallet interface {
	wallet.Store
	SetBalance(ctx context.Context, userID string, balance int64) error
}

type FiberServer struct {
	*fiber.App

	db     database.Service
	cache  cache.Service
	pool   *pgxpool.Pool
	wallet adminWallet
	ledger ledger.Store
	hub    *game.Hub
	engine *game.Engine
	cfg    config.Engine
}

func New() *FiberServer {
	db := database.New()

	cacheService, err := cache.New()
	if err != nil {
		log.Fatalf("[SERVER] Redis is required for balances and limits: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), db.URL())
	if err != nil {
		log.Fatalf("[SERVER] Ledger pool: %v", err)
	}

	cfg := config.EngineFromEnv()
	limitsCfg := config.LimitsFromEnv()

	ledgerStore := ledger.NewPostgresStore(pool)
	walletStore := wallet.NewRedisStore(cacheService.GetClient())
	limitChecker := limits.NewRedisChecker(cacheService.GetClient(), limitsCfg.DailyMax, limitsCfg.BetsPerMinute)

	hub := game.NewHub()
	book := game.NewBook(walletStore, limitChecker, ledgerStore, cfg.MinBet, cfg.MaxBet, cfg.StoreTimeout)
	engine := game.NewEngine(cfg, hub, book, ledgerStore, walletStore)

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "rocket",
			AppName:       "rocket",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		db:     db,
		cache:  cacheService,
		pool:   pool,
		wallet: walletStore,
		ledger: ledgerStore,
		hub:    hub,
		engine: engine,
		cfg:    cfg,
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	go hub.Run()
	engine.Start()

	log.Println("[SERVER] Round engine started")

	return server
}

// Shutdown stops the engine before the transports so no settlement is cut
// off mid-round turn.
func (s *FiberServer) Shutdown() error {
	log.Println("[SERVER] Shutting down...")

	if s.engine != nil {
		s.engine.Stop()
	}
	if s.hub != nil {
		s.hub.Stop()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	return nil
}
