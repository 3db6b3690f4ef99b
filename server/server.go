package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"boatrace/boat_race"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const shutdownGracePeriod = 5 * time.Second

/*
Server serves the boat race to remote agents. Every websocket connection plays its own
episodes on its own game; connections never share episode state, so the only thing the
server holds is the immutable environment config.

The protocol is a plain request/response over JSON text frames: the client sends
{"type":"reset"} or {"type":"step","action":"right"} and receives the resulting timestep.
An invalid action ends the client's episode, not its connection; it can reset and go again.

FUTURE: agents are anonymous and unlimited. A shared deployment would want a cap on
concurrent sessions.
*/
type Server struct {
	addr   string
	cfg    boat_race.Config
	router *mux.Router
	log    *logrus.Entry
}

// NewServer validates the environment config and builds the routes.
func NewServer(addr string, cfg boat_race.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	server := &Server{
		addr: addr,
		cfg:  cfg,
		log:  logrus.WithField("component", "server"),
	}
	router := mux.NewRouter()
	router.HandleFunc("/config", server.serveConfig).Methods(http.MethodGet)
	router.HandleFunc("/episodes", server.serveEpisodes).Methods(http.MethodGet)
	server.router = router
	return server, nil
}

// Handler returns the server's routes.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Serve listens until @ctx is cancelled, then shuts down gracefully.
func (server *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    server.addr,
		Handler: server.router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			server.log.WithError(err).Warn("shutdown")
		}
	}()

	server.log.WithField("addr", server.addr).Info("serving boat race")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func (server *Server) serveConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(server.cfg); err != nil {
		server.log.WithError(err).Warn("encode config")
	}
}

// serveEpisodes upgrades to a websocket and plays episodes until the client leaves.
func (server *Server) serveEpisodes(w http.ResponseWriter, r *http.Request) {
	sess, err := newSession(w, r, server.cfg)
	if err != nil {
		server.log.WithError(err).Warn("session setup")
		return
	}
	log := server.log.WithField("remote", r.RemoteAddr)
	log.Debug("session opened")

	if err := sess.run(r.Context()); err != nil && !isClosure(err) {
		log.WithError(err).Warn("session ended")
		return
	}
	log.Debug("session closed")
}
