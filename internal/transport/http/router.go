// http собирает HTTP-роутер сервиса: служебные пробы, /metrics и админ-API.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/go-news-digest/internal/transport/http/handlers"
	"github.com/pribylovaa/go-news-digest/internal/transport/http/middleware"
)

// Options - параметры сборки роутера.
type Options struct {
	Logger *slog.Logger
	// Timeout - дедлайн админ-запросов; POST /admin/cycles ограничен таймаутом цикла.
	Timeout time.Duration
	// JWTSecret/Issuer - проверка токена администратора; пустой секрет отключает её.
	JWTSecret string
	Issuer    string
	// Metrics - обработчик /metrics (promhttp); nil - маршрут не регистрируется.
	Metrics http.Handler
}

// NewRouter собирает http.Handler на chi.
func NewRouter(h *handlers.Handlers, opts Options) http.Handler {
	root := chi.NewRouter()

	// Порядок: внешний -> внутренний. RequestID до Logging, чтобы id попал в лог.
	root.Use(
		middleware.Recover(),
		middleware.RequestID(),
		middleware.Logging(opts.Logger),
	)

	root.Get("/livez", h.Livez)
	root.Get("/healthz", h.Healthz)
	if opts.Metrics != nil {
		root.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	root.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AdminAuth(opts.JWTSecret, opts.Issuer))

		r.Post("/cycles", h.TriggerCycle)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(opts.Timeout))
			registerAdminRoutes(r, h)
		})
	})

	return root
}

// registerAdminRoutes - админ-маршруты с общим дедлайном запроса.
func registerAdminRoutes(r chi.Router, h *handlers.Handlers) {
	// dedup
	r.Get("/known/count", h.KnownCount)
	r.Post("/known/evict", h.EvictKnown)

	// rotation
	r.Get("/promotions", h.ListPromotions)
	r.Get("/promotions/current", h.CurrentPromotion)
	r.Post("/promotions/advance", h.AdvancePromotion)
	r.Post("/promotions/select", h.SelectPromotion)
	r.Post("/promotions/{name}/activate", h.ActivatePromotion)
	r.Post("/promotions/{name}/deactivate", h.DeactivatePromotion)
	r.Get("/rotation/stats", h.RotationStats)
	r.Get("/rotation/history", h.RotationHistory)

	// cycles
	r.Get("/cycles/last", h.LastCycle)
	r.Get("/runs", h.RecentRuns)
	r.Get("/archive", h.RecentArchive)
}
