package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"classview-backend/internal/handlers"
	"classview-backend/internal/middleware"
	"classview-backend/internal/models"
	"classview-backend/internal/realtime"
)

func New(
	jwtAuth *middleware.JWTAuth,
	authLimiter *middleware.RateLimiter,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	courseHandler *handlers.CourseHandler,
	sessionHandler *handlers.SessionHandler,
	materialHandler *handlers.MaterialHandler,
	questionHandler *handlers.QuestionHandler,
	reportHandler *handlers.ReportHandler,
	jobHandler *handlers.JobHandler,
	hub *realtime.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	instructorOnly := middleware.RequireRole(models.RoleInstructor)
	studentOnly := middleware.RequireRole(models.RoleStudent)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
			r.Get("/verify-email", authHandler.VerifyEmail)
			r.Post("/resend-verification", authHandler.ResendVerification)

			// Logout requires auth
			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", authHandler.Logout)
			})
		})

		// ──── User & Settings Routes ────
		r.Route("/user", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/me", userHandler.Me)
			r.Put("/me", userHandler.UpdateProfile)
			r.Put("/password", userHandler.ChangePassword)
			r.Delete("/me", userHandler.Deactivate)
			r.Get("/notifications", userHandler.GetNotificationSettings)
			r.Put("/notifications", userHandler.UpdateNotificationSettings)
		})

		// ──── Course Routes ────
		r.Route("/courses", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", courseHandler.List)
			r.Get("/{id}", courseHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(instructorOnly)
				r.Post("/", courseHandler.Create)
				r.Put("/{id}", courseHandler.Update)
				r.Delete("/{id}", courseHandler.Archive)
				r.Get("/{id}/roster", courseHandler.Roster)
				r.Get("/{id}/materials", materialHandler.ListByCourse)
				r.Post("/{id}/questions", questionHandler.Create)
				r.Get("/{id}/questions", questionHandler.ListByCourse)
				r.Get("/{id}/analytics", reportHandler.CourseAnalytics)
			})

			r.Group(func(r chi.Router) {
				r.Use(studentOnly)
				r.Post("/enroll", courseHandler.Enroll)
			})

			r.Get("/{id}/sessions", sessionHandler.ListByCourse)
		})

		// ──── Live Session Routes ────
		r.Route("/sessions", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}", sessionHandler.Get)
			r.Get("/{id}/participants", sessionHandler.Participants)

			r.Group(func(r chi.Router) {
				r.Use(instructorOnly)
				r.Post("/", sessionHandler.Create)
				r.Post("/{id}/start", sessionHandler.Start)
				r.Post("/{id}/end", sessionHandler.End)
				r.Post("/{id}/questions/launch", sessionHandler.LaunchQuestion)
				r.Get("/{id}/answers/counts", sessionHandler.AnswerCounts)
				r.Get("/{id}/report", reportHandler.SessionReport)
				r.Get("/{id}/report/export", reportHandler.ExportSessionCSV)
			})

			r.Group(func(r chi.Router) {
				r.Use(studentOnly)
				r.Post("/{id}/answers", sessionHandler.SubmitAnswer)
			})
		})

		// ──── Material Routes ────
		r.Route("/materials", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Use(instructorOnly)
			r.Post("/upload", materialHandler.Upload)
			r.Post("/youtube", materialHandler.AttachYouTube)
			r.Get("/{id}", materialHandler.Get)
			r.Delete("/{id}", materialHandler.Delete)
		})

		// ──── Question Generation ────
		r.Route("/questions", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Use(instructorOnly)
			r.Post("/generate", questionHandler.Generate)
			r.Delete("/{id}", questionHandler.Delete)
		})

		// ──── Job Routes ────
		r.Route("/jobs", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}", jobHandler.Get)
			r.Post("/{id}/cancel", jobHandler.Cancel)
		})

		// ──── WebSocket ────
		r.Get("/ws/sessions", hub.HandleWebSocket)
	})

	return r
}
