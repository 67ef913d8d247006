package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voltcart/voltcart-backend/api/controllers"
	webhookcontrollers "github.com/voltcart/voltcart-backend/api/controllers/webhooks"
	"github.com/voltcart/voltcart-backend/api/middleware"
	"github.com/voltcart/voltcart-backend/internal/payments"
	lightningwebhook "github.com/voltcart/voltcart-backend/internal/webhooks/lightning"
	"github.com/voltcart/voltcart-backend/pkg/config"
	"github.com/voltcart/voltcart-backend/pkg/db"
	"github.com/voltcart/voltcart-backend/pkg/logger"
	"github.com/voltcart/voltcart-backend/pkg/redis"
)

// RouterParams carry everything the HTTP surface needs.
type RouterParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               db.Pinger
	Redis            redis.Pinger
	Payments         payments.Service
	WebhookService   webhookcontrollers.LightningWebhookService
	WebhookGuard     *lightningwebhook.IdempotencyGuard
	IdempotencyStore redis.IdempotencyStore
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, params.Redis))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/lightning", webhookcontrollers.LightningWebhook(params.WebhookService, cfg.Lightning.WebhookSecret, params.WebhookGuard, logg))
	})

	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.Use(
			middleware.Identity(logg),
			middleware.Idempotency(params.IdempotencyStore, logg),
		)
		r.Post("/", controllers.CreateCheckout(params.Payments, logg))
		r.Route("/{transactionID}", func(r chi.Router) {
			r.Get("/", controllers.GetCheckout(params.Payments, logg))
			r.Post("/invoice", controllers.IssueInvoice(params.Payments, logg))
			r.Get("/payment", controllers.CheckPayment(params.Payments, logg))
			r.Post("/cancel", controllers.CancelCheckout(params.Payments, logg))
		})
	})

	return r
}
