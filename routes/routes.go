// Package routes declares the full HTTP surface of the server.
package routes

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bracketops/tournament-core/handlers"
	"github.com/bracketops/tournament-core/middleware"
)

// Handlers bundles the boundary objects SetupRoutes mounts.
type Handlers struct {
	Auth         *handlers.AuthHandler
	Tournaments  *handlers.TournamentHandler
	Matches      *handlers.MatchHandler
	Participants *handlers.ParticipantHandler
	Stations     *handlers.StationHandler
	Signup       *handlers.SignupHandler
	Deploy       *handlers.DeployHandler
	WebSocket    *handlers.WebSocketHandler
	Health       *handlers.HealthHandler
}

// SetupRoutes wires every route onto the router. The tournament-scoped
// groups share a {tournament} parameter accepting either a numeric id or a
// url slug; signup routes are public and the POSTs among them are rate
// limited.
func SetupRoutes(
	router *chi.Mux,
	logger *slog.Logger,
	h Handlers,
	authenticate func(http.Handler) http.Handler,
	signupLimit func(http.Handler) http.Handler,
	allowedOrigins []string,
) {
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(logger))
	router.Use(chimw.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id", "X-Impersonate-User"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/healthz", h.Health.Healthz)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/ws", h.WebSocket.ServeWS)

	router.Route("/api", func(api chi.Router) {
		api.Post("/auth/register", h.Auth.Register)
		api.Post("/auth/login", h.Auth.Login)

		api.Route("/signup/{slug}", func(r chi.Router) {
			r.Get("/lookup", h.Signup.Lookup)
			r.Get("/waitlist/status", h.Signup.WaitlistStatus)
			r.Delete("/waitlist", h.Signup.WaitlistLeave)
			r.With(signupLimit).Post("/", h.Signup.Signup)
			r.With(signupLimit).Post("/waitlist", h.Signup.WaitlistJoin)
		})

		api.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Route("/tournaments", func(r chi.Router) {
				r.Get("/", h.Tournaments.List)
				r.Post("/create", h.Tournaments.Create)

				r.Route("/{tournament}", func(r chi.Router) {
					r.Get("/", h.Tournaments.Get)
					r.Put("/", h.Tournaments.Update)
					r.Delete("/", h.Tournaments.Delete)
					r.Post("/start", h.Tournaments.Start)
					r.Post("/reset", h.Tournaments.Reset)
					r.Post("/complete", h.Tournaments.Complete)
					r.Post("/check-in/open", h.Tournaments.OpenCheckIn)
					r.Post("/check-in/close", h.Tournaments.CloseCheckIn)
					r.Get("/bracket", h.Tournaments.Bracket)
					r.Get("/standings", h.Tournaments.Standings)
					r.Get("/stats", h.Tournaments.Stats)
					r.Post("/swiss/next-round", h.Tournaments.NextSwissRound)
				})
			})

			r.Route("/matches/{tournament}", func(r chi.Router) {
				r.Get("/", h.Matches.List)
				r.Get("/stats", h.Matches.Stats)
				r.Get("/next", h.Matches.Next)
				r.Post("/batch-scores", h.Matches.BatchScores)
				r.Post("/auto-assign", h.Matches.AutoAssign)
				r.Post("/undo", h.Matches.Undo)

				r.Route("/{matchID}", func(r chi.Router) {
					r.Get("/", h.Matches.Get)
					r.Post("/underway", h.Matches.MarkUnderway)
					r.Post("/unmark-underway", h.Matches.UnmarkUnderway)
					r.Post("/score", h.Matches.Score)
					r.Post("/winner", h.Matches.Winner)
					r.Post("/reopen", h.Matches.Reopen)
					r.Post("/clear-scores", h.Matches.ClearScores)
					r.Post("/dq", h.Matches.Disqualify)
					r.Post("/station", h.Matches.SetStation)
				})
			})

			r.Route("/participants/{tournament}", func(r chi.Router) {
				r.Get("/", h.Participants.List)
				r.Post("/", h.Participants.Add)
				r.Post("/bulk", h.Participants.BulkAdd)
				r.Post("/randomize", h.Participants.Randomize)

				r.Route("/{participantID}", func(r chi.Router) {
					r.Put("/", h.Participants.Update)
					r.Delete("/", h.Participants.Remove)
					r.Post("/check-in", h.Participants.CheckIn)
					r.Post("/undo-check-in", h.Participants.UndoCheckIn)
				})
			})

			r.Route("/stations/{tournament}", func(r chi.Router) {
				r.Get("/", h.Stations.List)
				r.Post("/", h.Stations.Create)
				r.Delete("/{stationID}", h.Stations.Delete)
			})

			r.Get("/deploy", h.Deploy.Current)
			r.Post("/deploy", h.Deploy.Deploy)
			r.Delete("/deploy", h.Deploy.Clear)
			r.Post("/emergency", h.Deploy.Emergency)
		})
	})
}
