package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.metricsMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.HTTP.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// The websocket upgrade authenticates via its own token handshake and
	// must stay outside the request timeout, which would cancel the
	// connection's context mid-stream.
	r.Get("/v1/ws", s.gateway.HandleWS)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(middleware.Timeout(60 * time.Second))
		// Apply JWT authentication to all v1 routes
		v1.Use(s.authMw.Middleware)

		v1.Get("/sync", s.handleSync)

		v1.Get("/levels", s.handleListLevels)
		v1.Delete("/levels/{levelID}", s.handleDeleteLevel)

		v1.Get("/incidents", s.handleListIncidents)
		v1.Post("/incidents", s.handleCreateIncident)
		v1.Get("/incidents/{incidentID}", s.handleGetIncident)
		v1.Patch("/incidents/{incidentID}", s.handleUpdateIncident)
		v1.Delete("/incidents/{incidentID}", s.handleDeleteIncident)
		v1.Patch("/incidents/{incidentID}/status", s.handleSetIncidentStatus)
		v1.Patch("/incidents/{incidentID}/level", s.handleChangeIncidentLevel)
		v1.Get("/incidents/{incidentID}/vehicles", s.handleListIncidentVehicles)
		v1.Get("/incidents/{incidentID}/history", s.handleIncidentHistory)
		v1.Get("/incidents/{incidentID}/reports", s.handleListReports)
		v1.Post("/incidents/{incidentID}/reports", s.handleCreateReport)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		duration := time.Since(start)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", duration).
			Msg("http request")
	})
}
