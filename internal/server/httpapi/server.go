// Package httpapi exposes the service over HTTP: token endpoints, account
// management, and the chat routes. Handlers stay thin; every consistency and
// authorization decision lives in the services layer, and this package only
// translates between HTTP and service sentinel errors.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/akimychev/converse/internal/common"
	"github.com/akimychev/converse/internal/logging"
	"github.com/akimychev/converse/internal/server/config"
	"github.com/akimychev/converse/internal/server/services"
)

// Server serves the public HTTP API.
type Server struct {
	address        string
	logger         logging.Logger
	users          *services.UserService
	sessions       *services.SessionService
	chat           *services.ChatService
	jwtSecret      []byte
	tokenLeeway    time.Duration
	maxUploadBytes int64
}

// NewServer wires the HTTP surface over the service layer.
func NewServer(cfg *config.Config, l logging.Logger,
	us *services.UserService, ss *services.SessionService, cs *services.ChatService) *Server {
	return &Server{
		address:        cfg.EndpointAddrHTTP,
		logger:         l.With("module", "http_server"),
		users:          us,
		sessions:       ss,
		chat:           cs,
		jwtSecret:      []byte(cfg.SecretKey),
		tokenLeeway:    cfg.TokenLeeway,
		maxUploadBytes: cfg.MaxUploadBytes,
	}
}

// Handler builds the full route table. Exposed separately from Run so tests
// can drive it with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /token", s.handleToken)
	mux.HandleFunc("POST /token/refresh", s.handleTokenRefresh)

	protected := Chain(BearerAuth(s.jwtSecret, s.tokenLeeway))

	mux.Handle("GET /user", protected(http.HandlerFunc(s.handleGetUser)))
	mux.Handle("DELETE /user", protected(http.HandlerFunc(s.handleDeleteUser)))
	mux.Handle("GET /user/chats", protected(http.HandlerFunc(s.handleListChats)))
	mux.Handle("GET /user/chats/{id}", protected(http.HandlerFunc(s.handleGetChat)))
	mux.Handle("DELETE /user/chats/{id}", protected(http.HandlerFunc(s.handleDeleteChat)))
	mux.Handle("POST /user/chats/{id}/text", protected(http.HandlerFunc(s.handleTextTurn)))
	mux.Handle("POST /user/chats/{id}/document", protected(http.HandlerFunc(s.handleDocumentTurn)))
	mux.Handle("POST /user/chats/{id}/image", protected(http.HandlerFunc(s.handleImageTurn)))

	return CORS()(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// writeServiceError maps service sentinel errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, common.ErrorForbidden):
		writeError(w, http.StatusForbidden, "not the owner of this session")
	case errors.Is(err, common.ErrorUnauthorized):
		writeUnauthorized(w)
	case errors.Is(err, common.ErrInvalidUpload):
		writeError(w, http.StatusUnprocessableEntity, "invalid file type or size")
	case errors.Is(err, common.ErrResponderTimeout), errors.Is(err, common.ErrResponderFailure):
		writeError(w, http.StatusBadGateway, "assistant unavailable")
	default:
		s.writeInternalError(w, r, err)
	}
}

func (s *Server) writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err.Error())
	writeError(w, http.StatusInternalServerError, "internal server error")
}
