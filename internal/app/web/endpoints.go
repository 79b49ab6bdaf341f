package web

import (
	"fmt"
	"net/http"

	scalargo "github.com/bdpiprava/scalar-go"

	"gopartsync_api/config"
	"gopartsync_api/internal/app/web/handlers"
	"gopartsync_api/internal/auth"
	"gopartsync_api/internal/ratelimit"
	"gopartsync_api/metrics"
	"gopartsync_api/pkg/api"
	"gopartsync_api/pkg/logger"
	"gopartsync_api/pkg/middleware"
)

// access - кто может вызывать маршрут.
type access int

const (
	// accessWorker - воркеры скрейпинга, без токена, но с лимитом.
	accessWorker access = iota
	// accessOperator - админ-панель: любой аутентифицированный пользователь.
	accessOperator
	// accessAdmin - изменение настроек.
	accessAdmin
)

// routeConfig хранит конфигурацию маршрута.
type routeConfig struct {
	routePath string
	handler   http.HandlerFunc
	access    access
}

// Handlers - обработчики всех маршрутов API.
type Handlers struct {
	Sync      *handlers.SyncHandler
	Pricing   *handlers.PricingHandler
	Scraper   *handlers.ScraperHandler
	RateLimit *handlers.RateLimitHandler
	Quotes    *handlers.QuotesHandler
	Health    *handlers.HealthHandler
}

// storefrontRoutes обращаются к витрине или воркерам и идут в класс storefront.
var storefrontRoutes = []string{"/api/sync/start", "/api/scraper/request-update"}

func routes(h Handlers) []routeConfig {
	return []routeConfig{
		{routePath: "POST /api/sync/start", handler: h.Sync.Start, access: accessOperator},
		{routePath: "GET /api/sync", handler: h.Sync.List, access: accessOperator},
		{routePath: "GET /api/sync/{id}", handler: h.Sync.Progress, access: accessOperator},
		{routePath: "POST /api/sync/{id}/pause", handler: h.Sync.Pause, access: accessOperator},
		{routePath: "POST /api/sync/{id}/resume", handler: h.Sync.Resume, access: accessOperator},
		{routePath: "POST /api/sync/{id}/cancel", handler: h.Sync.Cancel, access: accessOperator},

		{routePath: "GET /api/margins", handler: h.Pricing.GetMargins, access: accessOperator},
		{routePath: "PUT /api/margins", handler: h.Pricing.UpdateMargins, access: accessAdmin},
		{routePath: "POST /api/items/{id}/select-best", handler: h.Pricing.SelectBest, access: accessOperator},
		{routePath: "POST /api/items/{id}/update-tags", handler: h.Pricing.UpdateTags, access: accessOperator},
		{routePath: "POST /api/items/{id}/override-price", handler: h.Pricing.OverridePrice, access: accessOperator},

		{routePath: "GET /api/ratelimit/status", handler: h.RateLimit.Status, access: accessOperator},

		{routePath: "POST /api/scraper/request-update", handler: h.Scraper.RequestUpdate, access: accessOperator},
		{routePath: "GET /api/scraper/workers", handler: h.Scraper.Workers, access: accessOperator},
		{routePath: "GET /api/scraper/captcha/{supplier}", handler: h.Scraper.CaptchaStatus, access: accessOperator},
		{routePath: "POST /api/scraper/captcha/{supplier}/resolve", handler: h.Scraper.ResolveCaptcha, access: accessOperator},
		{routePath: "POST /api/scraper/register", handler: h.Scraper.Register, access: accessWorker},
		{routePath: "POST /api/scraper/heartbeat/{id}", handler: h.Scraper.Heartbeat, access: accessWorker},

		{routePath: "POST /api/quotes/refresh", handler: h.Quotes.Refresh, access: accessOperator},
	}
}

// SetupRoutes собирает mux: лимитер на всех маршрутах API, токен на маршрутах админ-панели.
func SetupRoutes(cfg *config.AppConfig, limiter *ratelimit.Limiter, h Handlers, log logger.Logger) http.Handler {
	limit := limiter.HTTPMiddleware(ratelimit.PrefixClassifier(storefrontRoutes...), auth.RateLimitKey)

	mux := http.NewServeMux()
	for _, rCfg := range routes(h) {
		mws := []func(http.Handler) http.Handler{middleware.PrometheusMiddleware}
		if rCfg.access != accessWorker && !cfg.Auth.Disabled {
			mws = append(mws, auth.AuthMiddleware(cfg.Auth.JWTSecret))
			if rCfg.access == accessAdmin {
				mws = append(mws, auth.RoleMiddleware(auth.RoleAdmin))
			} else {
				mws = append(mws, auth.RoleMiddleware(auth.RoleAdmin, auth.RoleOperator))
			}
		}
		mws = append(mws, limit)
		mux.Handle(rCfg.routePath, middleware.Chain(rCfg.handler, mws...))
	}

	mux.Handle("GET /health", h.Health)
	mux.Handle("GET /metrics", metrics.MetricsHandler())
	mux.HandleFunc("GET /docs", docsHandler(cfg.Server.SpecDir, log))

	return middleware.Chain(mux, middleware.LoggingMiddleware(log), middleware.CORSMiddleware)
}

// docsHandler отдаёт Scalar UI по спецификации из specDir.
func docsHandler(specDir string, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		html, err := scalargo.NewV2(
			scalargo.WithSpecDir(specDir),
			scalargo.WithMetaDataOpts(
				scalargo.WithTitle("Parts Sync API"),
			),
		)
		if err != nil {
			log.Error("render api docs: %v", err)
			api.WriteInternalServerError(w, err, r.URL.Path)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, html)
	}
}
