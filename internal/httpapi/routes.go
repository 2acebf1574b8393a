package httpapi

import (
	"net/http"

	"github.com/DoyleJ11/reflector-lobby/internal/hub"
	"github.com/DoyleJ11/reflector-lobby/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func SetupRoutes(h *hub.Hub, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)

	r.Post("/sessions", CreateSession(h))
	r.Route("/sessions/{user}", func(r chi.Router) {
		r.Delete("/", DeleteSession(h))
		r.Get("/messages", ListMessages(h))
		r.Get("/presence/{peer}", GetPresence(h))
		r.Post("/events", PostEvent(h))
		r.Put("/away", SetAway(h))
		r.Post("/chat", SendChat(h))

		r.Get("/challenges", ListChallenges(h))
		r.Post("/challenges", RequestChallenge(h))
		r.Post("/challenges/{offer}/accept", AcceptChallenge(h))
		r.Post("/challenges/{offer}/decline", DeclineChallenge(h))
	})

	r.Get("/ws/ui", ws.UIHandler(h, log.Named("ws.ui")))
	r.Get("/ws/signal", ws.SignalHandler(h, log.Named("ws.signal")))
	return r
}
