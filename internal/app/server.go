package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"gopartsync_api/config"
	"gopartsync_api/internal/app/web"
	"gopartsync_api/internal/app/web/handlers"
	"gopartsync_api/internal/catalogsync"
	"gopartsync_api/internal/pricing"
	"gopartsync_api/internal/quotefeed"
	"gopartsync_api/internal/ratelimit"
	"gopartsync_api/internal/scraper"
	"gopartsync_api/internal/storage"
	"gopartsync_api/internal/storage/memory"
	"gopartsync_api/internal/storage/postgres"
	"gopartsync_api/internal/storefront"
	"gopartsync_api/migrations/inventory"
	"gopartsync_api/pkg/dbconnect"
	"gopartsync_api/pkg/dbconnect/migration"
	pgconnect "gopartsync_api/pkg/dbconnect/postgres"
	"gopartsync_api/pkg/logger"
)

const maxOpenConns = 20

// Server собирает все компоненты синхронизации и HTTP API.
type Server struct {
	cfg *config.AppConfig
	log *logger.BaseLogger

	db    dbconnect.Database
	redis *redis.Client

	limiter      *ratelimit.Limiter
	pricing      *pricing.Service
	coordinator  *scraper.Coordinator
	orchestrator *catalogsync.Orchestrator
	feeds        *quotefeed.Scheduler
	http         *http.Server
}

func NewServer(cfg *config.AppConfig, log *logger.BaseLogger) *Server {
	return &Server{cfg: cfg, log: log}
}

// Init подключает хранилища и создаёт сервисы. Ошибка означает, что запускаться нельзя.
func (s *Server) Init(ctx context.Context) error {
	store, sqlDB, err := s.openStorage()
	if err != nil {
		return err
	}

	s.limiter = ratelimit.NewLimiter(ratelimit.PoliciesFromConfig(s.cfg.RateLimit), s.log.WithPrefix("[ratelimit] "))

	shop := storefront.NewClient(s.cfg.Storefront, s.limiter, s.log.WithPrefix("[storefront] "))
	pusher := catalogsync.NewStorefrontPusher(shop, store.Items)

	margins := pricing.NewMarginSource(store.Margins, decimal.NewFromFloat(*s.cfg.Pricing.DefaultMargin))
	s.pricing = pricing.NewService(store.Items, store.Quotes, margins, s.log.WithPrefix("[pricing] "))
	s.pricing.SetPusher(pusher)

	transport := scraper.NewHTTPTransport(s.limiter, s.cfg.Scraper.RequestTimeout, s.cfg.Scraper.RequestsPerMin)
	s.coordinator = scraper.NewCoordinator(store.Items, store.Quotes, s.pricing, transport,
		s.cfg.Scraper.LivenessWindow, s.cfg.Scraper.RequestTimeout, s.log.WithPrefix("[scraper] "))

	s.orchestrator = catalogsync.NewOrchestrator(s.cfg.Sync, shop, store.Items, pusher, s.log.WithPrefix("[sync] "))
	s.orchestrator.SetQuoteRefresher(s.coordinator)

	if s.cfg.Redis.Enabled() {
		client, err := s.cfg.Redis.New(ctx)
		if err != nil {
			// прогресс остаётся в памяти процесса
			s.log.Error("redis unavailable, sync progress will not outlive the process: %v", err)
		} else {
			s.redis = client
			s.orchestrator.SetProgressStore(catalogsync.NewRedisProgressStore(client))
		}
	}

	s.feeds, err = quotefeed.NewSchedulerFromConfig(s.cfg.Feeds, quotefeed.NewHTTPFetcher(s.cfg.Storefront.Timeout),
		store, s.pricing, s.log.WithPrefix("[quotes] "))
	if err != nil {
		return fmt.Errorf("quote feeds: %w", err)
	}

	var pinger handlers.Pinger
	if sqlDB != nil {
		pinger = sqlDB
	}
	router := web.SetupRoutes(s.cfg, s.limiter, web.Handlers{
		Sync:      handlers.NewSyncHandler(s.orchestrator, s.log),
		Pricing:   handlers.NewPricingHandler(s.pricing),
		Scraper:   handlers.NewScraperHandler(s.coordinator),
		RateLimit: handlers.NewRateLimitHandler(s.limiter),
		Quotes:    handlers.NewQuotesHandler(s.feeds),
		Health:    handlers.NewHealthHandler(pinger),
	}, s.log.WithPrefix("[http] "))

	s.http = &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

func (s *Server) openStorage() (storage.Store, *sql.DB, error) {
	switch s.cfg.Storage {
	case "memory":
		s.log.Log("using in-memory storage")
		return memory.NewStore().Repositories(), nil, nil
	case "postgres":
		s.db = pgconnect.NewPgConnector(&s.cfg.Postgres, maxOpenConns, s.log.WithPrefix("[postgres] "))
		db, err := s.db.Connect()
		if err != nil {
			return storage.Store{}, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := migration.Apply(db, inventory.All()...); err != nil {
			return storage.Store{}, nil, fmt.Errorf("apply migrations: %w", err)
		}
		s.log.Log("inventory migrations applied")
		return postgres.NewStore(db), db, nil
	default:
		return storage.Store{}, nil, fmt.Errorf("unknown storage %q", s.cfg.Storage)
	}
}

// Run обслуживает HTTP и фоновые задачи до отмены ctx, затем останавливается.
func (s *Server) Run(ctx context.Context) error {
	bgCtx, stopBackground := context.WithCancel(ctx)
	var bg sync.WaitGroup
	bg.Add(2)
	go func() {
		defer bg.Done()
		s.limiter.RunPurger(bgCtx, s.cfg.RateLimit.PurgeInterval)
	}()
	go func() {
		defer bg.Done()
		s.feeds.Run(bgCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		s.log.Log("listening on %s", s.cfg.Server.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.log.Error("http shutdown: %v", err)
	}
	if err := s.orchestrator.Shutdown(shutdownCtx); err != nil {
		s.log.Error("sync runs did not stop in time: %v", err)
	}
	stopBackground()
	bg.Wait()
	s.close()
	return serveErr
}

func (s *Server) close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.log.Error("close redis: %v", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Error("close postgres: %v", err)
		}
	}
}
