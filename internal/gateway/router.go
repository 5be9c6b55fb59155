package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/inspire-tradequest/trade-quest/internal/auth"
)

func NewRouter(h *Handlers, hub *Hub, jwtSvc *auth.JWTService, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/api/auth/register", h.Register)
	r.Post("/api/auth/login", h.Login)
	r.Get("/api/assets", h.GetAssets)
	r.Get("/api/assets/{symbol}/history", h.GetHistory)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(jwtSvc))
		r.Get("/api/account", h.GetAccount)
		r.Get("/api/positions", h.GetPositions)
		r.Post("/api/orders", h.CreateOrder)
		r.Post("/api/positions/{id}/close", h.ClosePosition)
	})

	r.Get("/ws", ServeWS(hub, jwtSvc, h.logger))

	return r
}
