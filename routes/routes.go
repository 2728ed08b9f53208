package routes

import (
	"net/http"

	"github.com/Dosada05/quiz-duel/docs"
	"github.com/Dosada05/quiz-duel/handlers"
	"github.com/Dosada05/quiz-duel/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Options struct {
	JWTSecretKey       string
	CORSAllowedOrigins []string
	// MetricsHandler отдаёт /metrics; nil отключает маршрут.
	MetricsHandler http.Handler
}

func SetupRoutes(
	router *chi.Mux,
	opts Options,
	matchHandler *handlers.MatchHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if opts.MetricsHandler != nil {
		router.Handle("/metrics", opts.MetricsHandler)
	}

	router.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(docs.OpenAPI)
	})
	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	router.Route("/api/match", func(r chi.Router) {
		// Результаты матча публичны.
		r.Get("/{matchID}/results", matchHandler.GetMatchResults)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(opts.JWTSecretKey))

			r.Post("/", matchHandler.CreateMatch)
			r.Post("/request", matchHandler.RequestMatch)
			r.Post("/cancel", matchHandler.CancelMatch)
			r.Get("/status", matchHandler.GetMatchStatus)
			r.Post("/join", matchHandler.JoinMatch)

			r.Route("/{matchID}", func(r chi.Router) {
				r.Post("/choose-strategy/{round}", matchHandler.ChooseStrategy)
				r.Get("/questions", matchHandler.GetQuestions)
				r.Post("/lock-questions", matchHandler.LockQuestions)
				r.Post("/submit", matchHandler.SubmitAnswers)
				r.Get("/progress", matchHandler.GetOpponentProgress)
			})
		})
	})

	router.Get("/ws/matches/{matchID}", webSocketHandler.ServeWs)
}
