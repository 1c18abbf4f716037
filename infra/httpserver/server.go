// Package httpserver exposes the process's two external HTTP surfaces
// (SPEC_FULL.md §4.I): the websocket upgrade endpoint clients connect
// through, and an admin JSON snapshot of live instances for dashboards
// such as cmd/lobbytop.
package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/relayforge/hostess/internal/lobby"
	"github.com/relayforge/hostess/internal/session"
	"github.com/relayforge/hostess/internal/simulation"
	transportws "github.com/relayforge/hostess/transport/ws"
)

// Server owns the chi router and the stdlib http.Server wrapping it.
type Server struct {
	httpSrv *http.Server
	logger  *slog.Logger
}

// Options configures the server's listener and simulation factory.
type Options struct {
	Addr        string
	Lobby       *lobby.Lobby
	Constructor simulation.Constructor
	Logger      *slog.Logger
}

// New builds a Server. It does not start listening until ListenAndServe
// is called (typically via fx.Lifecycle hooks — see cmd/fx.go).
func New(opts Options) *Server {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			opts.Logger.Warn("ws upgrade failed", "error", err)
			return
		}
		conn := transportws.New(wsConn)
		defer conn.Close()

		sess := session.New(conn, opts.Lobby, opts.Logger)
		if err := sess.Run(r.Context()); err != nil {
			opts.Logger.Debug("session ended", "error", err)
		}
	})

	r.Get("/admin/instances", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(opts.Lobby.List()); err != nil {
			opts.Logger.Warn("admin instances encode failed", "error", err)
		}
	})

	r.Post("/admin/instances", func(w http.ResponseWriter, r *http.Request) {
		inst := opts.Lobby.CreateInstance(opts.Constructor)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(inst.Info.Snapshot())
	})

	return &Server{
		httpSrv: &http.Server{
			Addr:              opts.Addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: opts.Logger,
	}
}

// ListenAndServe runs until the listener errors or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully drains in-flight requests (not long-lived websocket
// sessions, which are torn down by lobby/instance shutdown instead).
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
