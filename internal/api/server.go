// Package api is the HTTP control surface over the call manager. Every
// route under /api/v1/ except login requires a bearer token.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"callcore/internal/auth"
	"callcore/internal/callmanager"
	"callcore/internal/config"
	"callcore/internal/database"
	"callcore/internal/logging"
)

// commandTimeout bounds how long a request waits on the trackers.
const commandTimeout = 10 * time.Second

// HistoryStore serves call history. *database.Repository implements it.
type HistoryStore interface {
	ListCallLogs(ctx context.Context, f database.HistoryFilter) ([]database.CallLog, error)
}

// Server is the REST API server.
type Server struct {
	config  config.APIConfig
	calls   *callmanager.CallManager
	auth    *auth.Authenticator
	events  http.Handler
	history HistoryStore
	log     *logrus.Entry
}

// NewServer creates the server. events serves /ws and history serves
// /api/v1/history; either may be nil when the feature is disabled.
func NewServer(cfg config.APIConfig, calls *callmanager.CallManager, authn *auth.Authenticator, events http.Handler, history HistoryStore) *Server {
	return &Server{
		config:  cfg,
		calls:   calls,
		auth:    authn,
		events:  events,
		history: history,
		log:     logging.For("api"),
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/login", s.handleLogin)
	mux.HandleFunc("GET /health", s.handleHealth)

	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/v1/phones", s.handlePhones)
	protected.HandleFunc("GET /api/v1/calls", s.handleCalls)
	protected.HandleFunc("POST /api/v1/phones/{id}/dial", s.handleDial)
	protected.HandleFunc("POST /api/v1/phones/{id}/postdial", s.handlePostDial)
	protected.HandleFunc("POST /api/v1/calls/accept", s.handleAccept)
	protected.HandleFunc("POST /api/v1/calls/reject", s.handleReject)
	protected.HandleFunc("POST /api/v1/calls/hangup", s.handleHangup)
	protected.HandleFunc("POST /api/v1/calls/switch", s.handleSwitch)
	protected.HandleFunc("POST /api/v1/calls/hangup-resume", s.handleHangupResume)
	protected.HandleFunc("POST /api/v1/calls/dtmf", s.handleDTMF)
	protected.HandleFunc("GET /api/v1/history", s.handleHistory)
	if s.events != nil {
		protected.Handle("GET /ws", s.events)
	}

	authed := s.auth.Middleware(protected)
	mux.Handle("/api/v1/", authed)
	mux.Handle("/ws", authed)

	return s.corsMiddleware(mux)
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("Listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// corsMiddleware adds CORS headers when enabled and recovers panics.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.EnableCORS {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		defer func() {
			if rec := recover(); rec != nil {
				s.log.Errorf("Panic recovered: %v", rec)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"phones": len(s.calls.Phones()),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	token, err := s.auth.Login(creds.Username, creds.Password)
	if err != nil {
		s.log.Warnf("Failed login for user %q", creds.Username)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":    token,
		"username": creds.Username,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
