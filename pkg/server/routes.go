package server

import (
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// handler builds the HTTP handler stack for the status API.
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api", s.handleAPI)
	mux.HandleFunc("/api/hosts/{hostname}", s.handleHostAPI)
	mux.HandleFunc("/api/summary", s.handleSummaryAPI)
	mux.HandleFunc("/metrics", s.handlePrometheus)

	rl := newRateLimitMiddleware(rate.NewLimiter(rate.Limit(s.cfg.API.Rate), s.cfg.API.Burst))
	return requireGET(rl(noCacheMiddleware(securityHeadersMiddleware(mux))))
}

// startAPI starts the API server in a goroutine.
func (s *Server) startAPI() {
	s.httpServer = &http.Server{
		Addr:              s.cfg.API.Listen,
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Infof("Starting API server on %v...", s.cfg.API.Listen)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("API server failed: %v", err)
		}
	}()
}
