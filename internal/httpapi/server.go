package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/antoniostano/audiohook-bridge/internal/audiohook"
	"github.com/antoniostano/audiohook-bridge/internal/observability"
)

const (
	healthPath  = "/health"
	metricsPath = "/metrics"
	maxFrame    = 1 << 20
)

// Gate authenticates an upgrade request before any session exists.
type Gate interface {
	Middleware(bypassPath string, metrics *observability.Metrics, log *zap.Logger) func(http.Handler) http.Handler
}

type Server struct {
	gate     Gate
	deps     audiohook.Deps
	metrics  *observability.Metrics
	log      *zap.Logger
	upgrader websocket.Upgrader

	// base is the parent of every call context; cancelling it ends all calls.
	base context.Context
}

func New(base context.Context, gate Gate, deps audiohook.Deps) *Server {
	if base == nil {
		base = context.Background()
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		gate:    gate,
		deps:    deps,
		metrics: deps.Metrics,
		log:     log,
		base:    base,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Telephony platforms are server-side clients without a browser Origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get(healthPath, s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.gate != nil {
			r.Use(s.gate.Middleware(healthPath, s.metrics, s.log))
		}
		r.Get(metricsPath, s.metrics.Handler().ServeHTTP)
		r.HandleFunc("/*", s.handleAudioHook)
	})
	return r
}

// MetricsRouter serves metrics without authentication. It is meant for a
// listener that is only reachable from inside the deployment.
func (s *Server) MetricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(healthPath, s.handleHealth)
	r.Get(metricsPath, s.metrics.Handler().ServeHTTP)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK\n"))
}

func (s *Server) handleAudioHook(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.String("path", r.URL.Path), zap.Error(err))
		return
	}
	ws.SetReadLimit(maxFrame)

	deps := s.deps
	deps.Logger = s.log.With(zap.String("request_id", middleware.GetReqID(r.Context())))
	sess := audiohook.NewSession(ws, r.RemoteAddr, deps)
	if err := sess.Run(s.base); err != nil {
		deps.Logger.Warn("call ended with error", zap.String("call_id", sess.ID()), zap.Error(err))
	}
}
