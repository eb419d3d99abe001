package api

import (
	"net/http"
	"time"

	"codeduel/internal/api/handler"
	"codeduel/internal/api/middleware"
	"codeduel/internal/api/ws"
	"codeduel/internal/app/service"
	"codeduel/internal/common/security"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
)

func NewRouter(
	authService *service.AuthService,
	roomService *service.RoomService,
	leaderboardService *service.LeaderboardService,
	statusHandler *handler.StatusHandler,
	gameHandler *ws.GameHandler,
) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger) // Chi's logger
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Public health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Websocket endpoint. The token rides a query parameter because browser
	// websocket clients cannot set an Authorization header.
	r.Group(func(wsRouter chi.Router) {
		wsRouter.Use(jwtauth.Verify(security.TokenAuth, jwtauth.TokenFromQuery, jwtauth.TokenFromHeader))
		wsRouter.Use(middleware.Authenticator)
		wsRouter.Get("/ws", gameHandler.ServeWS)
	})

	// API v1 Routes
	r.Group(func(apiRouter chi.Router) {
		apiRouter.Use(jwtauth.Verifier(security.TokenAuth)) // Verifies token, puts claims in context

		apiRouter.Route("/api", func(api chi.Router) {
			// Auth routes (register/login public, /me authenticated)
			authHandler := handler.NewAuthHandler(authService)
			api.Route("/auth", authHandler.RegisterRoutes)

			api.Route("/v1", func(v1 chi.Router) {
				// Match state and history (authenticated)
				roomHandler := handler.NewRoomHandler(roomService)
				v1.Route("/rooms", roomHandler.RegisterRoutes)

				// Leaderboard routes (public)
				leaderboardHandler := handler.NewLeaderboardHandler(leaderboardService)
				v1.Route("/leaderboard", leaderboardHandler.RegisterRoutes)

				// Operational status (public)
				v1.Route("/status", statusHandler.RegisterRoutes)
			})
		})
	})

	return r
}
