// Package statsrv serves live scheduler statistics over HTTP.
package statsrv

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/webriots/ioq"
)

// Source is the part of the scheduler the server reports on.
type Source interface {
	Stats() ioq.Stats
	StreamStats(id ioq.StreamID) (ioq.StreamStats, error)
}

// Server routes stats requests to a Source.
type Server struct {
	router    chi.Router
	src       Source
	log       *zap.Logger
	startTime time.Time
}

// New creates a Server with all routes registered.
func New(src Source, log *zap.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		src:       src,
		log:       log.Named("statsrv"),
		startTime: time.Now(),
	}
	s.routes()
	return s
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/streams/{id}", s.handleStream)
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	})
	defer stop()

	s.log.Info("listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type envelope struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

type healthResponse struct {
	State  string `json:"state"`
	Uptime string `json:"uptime"`
}

type streamResponse struct {
	ID       uint32 `json:"id"`
	Priority uint32 `json:"priority"`
	Ready    int    `json:"ready"`
	InFlight int    `json:"in_flight"`
	Acquired uint64 `json:"acquired"`
	Issued   uint64 `json:"issued"`
	Released uint64 `json:"released"`
}

type statsResponse struct {
	State       string           `json:"state"`
	Workers     int              `json:"workers"`
	Ready       int              `json:"ready"`
	Outstanding int              `json:"outstanding"`
	Violations  uint64           `json:"violations"`
	Streams     []streamResponse `json:"streams"`
}

func toStream(st ioq.StreamStats) streamResponse {
	return streamResponse{
		ID:       uint32(st.ID),
		Priority: st.Priority,
		Ready:    st.Ready,
		InFlight: st.InFlight,
		Acquired: st.Acquired,
		Issued:   st.Issued,
		Released: st.Released,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, healthResponse{
		State:  s.src.Stats().State.String(),
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	}, "")
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := s.src.Stats()
	resp := statsResponse{
		State:       st.State.String(),
		Workers:     st.Workers,
		Ready:       st.Ready,
		Outstanding: st.Outstanding,
		Violations:  st.Violations,
		Streams:     make([]streamResponse, 0, len(st.Streams)),
	}
	for _, ss := range st.Streams {
		resp.Streams = append(resp.Streams, toStream(ss))
	}
	respond(w, http.StatusOK, resp, "")
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		respond(w, http.StatusBadRequest, nil, "stream id must be an unsigned 32-bit integer")
		return
	}
	st, err := s.src.StreamStats(ioq.StreamID(id))
	if errors.Is(err, ioq.ErrNotFound) {
		respond(w, http.StatusNotFound, nil, err.Error())
		return
	} else if err != nil {
		respond(w, http.StatusInternalServerError, nil, err.Error())
		return
	}
	respond(w, http.StatusOK, toStream(st), "")
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func respond(w http.ResponseWriter, status int, data any, msg string) {
	resp := envelope{
		RequestID: "req_" + uuid.New().String()[:8],
		Status:    "ok",
		Data:      data,
	}
	if msg != "" {
		resp.Status = "error"
		resp.Error = msg
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
