package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/soulbot/soulbot/backend/internal/handler/room"
	"github.com/soulbot/soulbot/backend/internal/handler/speech"
	"github.com/soulbot/soulbot/backend/internal/handler/transcript"
	middlewarePkg "github.com/soulbot/soulbot/backend/internal/middleware"
	"github.com/soulbot/soulbot/backend/pkg/utils"
)

// NewRouter wires HTTP routes to the room, transcript and speech handlers.
func NewRouter(logger logrus.FieldLogger, roomHandler *room.Handler, transcriptHandler *transcript.Handler, speechHandler *speech.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			if err := utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"}); err != nil {
				logger.WithError(err).Warn("write health response")
			}
		})

		roomHandler.RegisterRoutes(api)
		transcriptHandler.RegisterRoutes(api)
		speechHandler.RegisterRoutes(api)
	})

	return r
}
