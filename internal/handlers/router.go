package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(webhook *WebhookHandler, operator *OperatorHandler, verifier TokenVerifier, log *zap.Logger) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(RequestLogger(log))
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Post("/webhooks/stripe", webhook.HandleStripe)

	router.Route("/api/sync", func(r chi.Router) {
		r.Use(RequireOperator(verifier))
		r.Get("/history", operator.ListHistory)
		r.Post("/events/{eventID}/replay", operator.ReplayEvent)
		r.Post("/tax-rates/refresh", operator.RefreshTaxRates)
		r.Post("/deposit-accounts/refresh", operator.RefreshDepositAccounts)
		r.Post("/tokens/sweep", operator.SweepTokens)
		r.Get("/queue", operator.QueueStatus)
		r.Post("/queue/dead/requeue", operator.RequeueDead)
	})

	return router
}
