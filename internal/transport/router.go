package transport

import (
	"net/http"

	"shopcore-be/internal/logger"
	"shopcore-be/internal/middleware"
	"shopcore-be/internal/payment/webhook"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the HTTP surface. Webhooks skip auth: providers sign
// their payloads and the handler verifies them itself.
func NewRouter(
	checkoutHandler *CheckoutHandler,
	paymentHandler *PaymentHandler,
	webhookHandler *webhook.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(logger.RequestIDMiddleware)
	r.Use(logger.LoggingMiddleware)
	r.Use(middleware.RateLimitMiddleware)

	r.Post("/payments/webhook/{provider}", webhookHandler.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)

		r.Post("/checkout/orders", checkoutHandler.PlaceOrder)
		r.Post("/payments/intents", paymentHandler.CreateIntent)
		r.Get("/orders/{id}", checkoutHandler.GetOrder)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
