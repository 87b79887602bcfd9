package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/pointdeck/pointdeck/internal/hub"
	"github.com/pointdeck/pointdeck/internal/ws"
)

// SetupRoutes builds the router with the hub injected. The HTTP handlers and
// the socket layer share the same hub, so REST and protocol views of a
// session can never disagree.
func SetupRoutes(h *hub.Hub, wsOpts ws.Options, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post("/sessions", CreateSession(h, log))
	r.Get("/sessions/{roomID}", SessionExists(h))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, wsOpts, log))

	c := cors.New(cors.Options{
		AllowedOrigins: wsOpts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}
