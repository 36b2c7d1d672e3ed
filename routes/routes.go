package routes

import (
	"github.com/Dosada05/result-integrity/handlers"
	"github.com/Dosada05/result-integrity/middleware"
	"github.com/Dosada05/result-integrity/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes собирает HTTP-поверхность пайплайна. Чтение — публичное,
// подача требует аутентификации, решения по результатам — роли reviewer
// или admin, принудительный пересчёт таблицы — только admin.
func SetupRoutes(
	router *chi.Mux,
	auth *middleware.Authenticator,
	authHandler *handlers.AuthHandler,
	resultHandler *handlers.ResultHandler,
	leaderboardHandler *handlers.LeaderboardHandler,
	auditHandler *handlers.AuditHandler,
	webSocketHandler *handlers.WebSocketHandler,
	healthHandler *handlers.HealthHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/health", healthHandler.Check)

	router.Post("/auth/register", authHandler.Register)
	router.Post("/auth/login", authHandler.Login)

	router.Route("/tournaments/{tournamentID}", func(r chi.Router) {
		// Публичные маршруты чтения
		r.Get("/results", resultHandler.List)
		r.Get("/leaderboard", leaderboardHandler.Get)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Use(middleware.Authorize(models.RoleAdmin))
			r.Get("/audit", auditHandler.ListByTournament)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Post("/results", resultHandler.Submit)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Use(middleware.Authorize(models.RoleReviewer, models.RoleAdmin))
			r.Post("/results/batch-approve", resultHandler.BatchApprove)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Use(middleware.Authorize(models.RoleAdmin))
			r.Post("/leaderboard/recompute", leaderboardHandler.Recompute)
		})
	})

	router.Route("/results/{resultID}", func(r chi.Router) {
		r.Get("/", resultHandler.Get)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Use(middleware.Authorize(models.RoleAdmin))
			r.Get("/audit", auditHandler.ListByResult)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Post("/dispute", resultHandler.Dispute)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Use(middleware.Authorize(models.RoleReviewer, models.RoleAdmin))
			r.Post("/approve", resultHandler.Approve)
			r.Post("/reject", resultHandler.Reject)
			r.Post("/request-info", resultHandler.RequestInfo)
			r.Post("/reopen", resultHandler.Reopen)
		})
	})

	router.Get("/ws/tournaments/{tournamentID}", webSocketHandler.ServeWs)
}
