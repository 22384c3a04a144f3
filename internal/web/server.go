// Package web serves the engine's JSON API and streams run events over
// WebSocket.
package web

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"macro-go-engine/internal/backend"
	"macro-go-engine/internal/engine"
	"macro-go-engine/internal/macro"
	"macro-go-engine/internal/permission"
)

// MacroStore is the macro persistence the API needs.
type MacroStore interface {
	SaveMacro(m *macro.Macro) error
	GetMacro(id string) (*macro.Macro, error)
	DeleteMacro(id string) error
	ListMacros() ([]*macro.Macro, error)
}

// NotificationSink receives notification permission decisions reported by
// web clients.
type NotificationSink interface {
	SetNotificationPermission(perm backend.NotificationPermission)
}

// ServerOption configures the web server.
type ServerOption func(*Server)

// WithAPIKey enables API key authentication.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithAllowedOrigins sets allowed WebSocket origin patterns.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithPermissions enables the permission endpoints and macro checks.
func WithPermissions(m *permission.Manager) ServerOption {
	return func(s *Server) {
		s.perms = m
	}
}

// WithHub broadcasts through an existing hub. The caller runs and stops it.
func WithHub(hub *WSHub) ServerOption {
	return func(s *Server) {
		s.wsHub = hub
	}
}

// WithNotificationSink forwards client permission reports to sink.
func WithNotificationSink(sink NotificationSink) ServerOption {
	return func(s *Server) {
		s.notify = sink
	}
}

// WithMacrosChanged registers fn to run after a macro is created, updated or
// deleted.
func WithMacrosChanged(fn func()) ServerOption {
	return func(s *Server) {
		s.macrosChanged = fn
	}
}

// WithVersion sets the application version string.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// Server is the HTTP API server.
type Server struct {
	engine         *engine.Engine
	macros         MacroStore
	perms          *permission.Manager
	notify         NotificationSink
	wsHub          *WSHub
	ownHub         bool
	logger         *slog.Logger
	mux            *http.ServeMux
	apiKey         string
	allowedOrigins []string
	version        string
	macrosChanged  func()
	wg             sync.WaitGroup
	unsubEvents    func()
}

// NewServer creates a new API server.
func NewServer(eng *engine.Engine, macros MacroStore, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		engine: eng,
		macros: macros,
		logger: logger.With("component", "web"),
		mux:    http.NewServeMux(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.wsHub == nil {
		s.wsHub = NewWSHub(logger)
		s.ownHub = true
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.wsHub.Run()
		}()
	}

	// Stream every engine event to connected clients.
	s.unsubEvents = eng.Events().OnAll(func(event engine.Event) {
		s.wsHub.Broadcast(event)
	})

	s.routes()
	return s
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *WSHub { return s.wsHub }

// Stop unsubscribes from engine events and shuts down an owned hub.
func (s *Server) Stop() {
	if s.unsubEvents != nil {
		s.unsubEvents()
	}
	if s.ownHub {
		s.wsHub.Stop()
	}
	s.wg.Wait()
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/version", s.handleAPIVersion)

	// Mode
	s.mux.HandleFunc("GET /api/mode", s.handleAPIGetMode)
	s.mux.HandleFunc("PUT /api/mode", s.handleAPISetMode)

	// Macros
	s.mux.HandleFunc("GET /api/macros", s.handleAPIListMacros)
	s.mux.HandleFunc("POST /api/macros", s.handleAPICreateMacro)
	s.mux.HandleFunc("GET /api/macros/{id}", s.handleAPIGetMacro)
	s.mux.HandleFunc("PUT /api/macros/{id}", s.handleAPIUpdateMacro)
	s.mux.HandleFunc("DELETE /api/macros/{id}", s.handleAPIDeleteMacro)
	s.mux.HandleFunc("GET /api/macros/{id}/check", s.handleAPICheckMacro)
	s.mux.HandleFunc("POST /api/macros/{id}/run", s.handleAPIRunMacro)

	// Runs
	s.mux.HandleFunc("GET /api/runs", s.handleAPIListRuns)
	s.mux.HandleFunc("POST /api/runs", s.handleAPIRunAdHoc)
	s.mux.HandleFunc("GET /api/runs/{id}", s.handleAPIGetRun)
	s.mux.HandleFunc("POST /api/runs/{id}/cancel", s.handleAPICancelRun)

	// Actions
	s.mux.HandleFunc("GET /api/capabilities", s.handleAPICapabilities)
	s.mux.HandleFunc("POST /api/actions/execute", s.handleAPIExecuteAction)

	// Permissions
	s.mux.HandleFunc("GET /api/permissions", s.handleAPIListPermissions)
	s.mux.HandleFunc("POST /api/permissions/{name}/request", s.handleAPIRequestPermission)

	// WebSocket
	s.mux.HandleFunc("GET /ws", s.handleWS)
}

// ServeHTTP implements http.Handler, applying auth and CORS middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// CORS: check Origin on mutating requests to prevent CSRF.
	if len(s.allowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if r.Method == http.MethodOptions {
				// Preflight request.
				if s.isOriginAllowed(origin) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "3600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			if r.Method != http.MethodGet {
				if !s.isOriginAllowed(origin) {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
		}
	}

	if s.apiKey != "" {
		// The WebSocket upgrade cannot carry custom headers, so only /api/
		// is key-protected.
		if strings.HasPrefix(r.URL.Path, "/api/") {
			key := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
	}
	s.mux.ServeHTTP(w, r)
}

// isOriginAllowed checks if the origin matches any allowed origin pattern.
func (s *Server) isOriginAllowed(origin string) bool {
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) notifyMacrosChanged() {
	if s.macrosChanged != nil {
		s.macrosChanged()
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody reads a JSON request body of at most 1 MB.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	return json.NewDecoder(r.Body).Decode(dst)
}
