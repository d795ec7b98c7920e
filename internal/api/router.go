/**
 * @description
 * This file sets up the HTTP router for the onboarding-service using the
 * go-chi/chi router. It defines the API routes, applies middleware for
 * logging, CORS, and authentication, and maps the routes to their
 * corresponding handler functions.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: The routing library.
 * - github.com/go-chi/cors: CORS middleware.
 * - The service's internal packages for handlers and middleware.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/transferhub/onboarding-service/internal/app"
	"github.com/transferhub/onboarding-service/internal/config"
	"github.com/transferhub/onboarding-service/pkg/middleware"
)

// RouterDeps bundles the services the router's handlers depend on.
type RouterDeps struct {
	Submissions  *app.SubmissionService
	Orchestrator *app.Orchestrator
	Synchronizer *app.Synchronizer
	Publisher    app.EventPublisher
}

// NewRouter creates and configures a new HTTP router.
func NewRouter(cfg *config.Config, deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	submissionHandler := NewSubmissionHandler(deps.Submissions)
	customerHandler := NewCustomerHandler(deps.Orchestrator, deps.Synchronizer)
	webhookHandler := NewWebhookHandler(deps.Publisher, cfg.ProviderWebhookSecret)

	// Webhook endpoint is authenticated by HMAC signature, not JWT.
	r.Post("/webhooks/provider", webhookHandler.ServeHTTP)

	// User-facing routes require a valid JWT.
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(cfg.JWTSecret))

		r.Route("/submissions", func(r chi.Router) {
			r.Post("/", submissionHandler.CreateSubmission)
			r.Get("/", submissionHandler.ListSubmissions)
		})

		r.Route("/customers", func(r chi.Router) {
			r.Post("/", customerHandler.CreateCustomer)
			r.Post("/terms-link", customerHandler.RequestTermsLink)
			r.Post("/agreement", customerHandler.ConfirmAgreement)
		})

		r.Get("/status", customerHandler.GetStatus)
	})

	// Server-to-server routes are protected by the internal API secret.
	r.Route("/internal", func(r chi.Router) {
		r.Use(middleware.InternalAuthMiddleware(cfg.InternalAPISecret))

		r.Post("/submissions/{id}/review", submissionHandler.ReviewSubmission)
		r.Delete("/submissions/{id}", submissionHandler.PurgeSubmission)
		r.Post("/customers", customerHandler.CreateInternalCustomer)
		r.Post("/sync/{userID}", customerHandler.TriggerSync)
	})

	return r
}
