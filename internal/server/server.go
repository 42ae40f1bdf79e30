// Package server wires the room engine, websocket transport and journal
// into one HTTP server, and exposes the small operator API.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mruberto/lupus/internal/config"
	"github.com/mruberto/lupus/internal/game"
	"github.com/mruberto/lupus/internal/journal"
	"github.com/mruberto/lupus/internal/ratelimit"
	"github.com/mruberto/lupus/internal/ws"
)

// Server hosts the game websocket endpoint and the operator API.
type Server struct {
	addr    string
	mux     *http.ServeMux
	rooms   *game.Store
	idents  *game.Registry
	hub     *ws.Hub
	engine  *game.Engine
	journal journal.Store

	journalSize int
}

// Option customizes a Server.
type Option func(*Server, *config.Config)

// WithRedis backs the room journal with Redis.
func WithRedis(client redis.Cmdable) Option {
	return func(s *Server, cfg *config.Config) {
		s.journal = journal.NewRedisStore(client, cfg.JournalSize)
	}
}

// New builds a fully wired Server from the given configuration.
func New(cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		addr:        cfg.Listen,
		mux:         http.NewServeMux(),
		rooms:       game.NewStore(),
		idents:      game.NewRegistry(),
		journalSize: cfg.JournalSize,
	}
	for _, opt := range opts {
		opt(s, cfg)
	}
	if s.journal == nil {
		s.journal = journal.NewMemoryStore(cfg.JournalSize)
	}

	conns := ws.NewConnManager(
		ws.WithMaxConns(cfg.MaxConns),
		ws.WithIdleTimeout(cfg.IdleTimeout.Std()),
	)
	s.hub = ws.NewHub(conns)
	s.hub.SetJournal(s.journal)
	s.engine = game.NewEngine(s.rooms, s.idents, s.hub)

	limiter := ratelimit.New(cfg.RoomsPerMinute, time.Minute)
	handler := ws.NewHandler(s.hub, s.engine, s.journal, limiter, cfg.ReplayLimit)

	s.routes(handler)
	return s
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	return http.ListenAndServe(s.addr, s.mux)
}

// Shutdown closes all live connections.
func (s *Server) Shutdown() {
	s.hub.ConnMgr().Shutdown()
}

func (s *Server) routes(wsHandler http.Handler) {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /ws", wsHandler)
	s.mux.HandleFunc("GET /api/rooms", s.handleListRooms)
	s.mux.HandleFunc("GET /api/rooms/{code}/events", s.handleRoomEvents)
	s.mux.HandleFunc("DELETE /api/rooms/{code}", s.handleDeleteRoom)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":      "ok",
		"rooms":       s.rooms.Count(),
		"connections": s.hub.ConnMgr().Count(),
	})
}

// handleListRooms returns summaries of all active rooms. Summaries never
// contain host secrets.
func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms := s.rooms.List()
	summaries := make([]game.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, room.Summary())
	}
	writeJSON(w, summaries)
}

// handleRoomEvents returns the room's recent journal entries.
func (s *Server) handleRoomEvents(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if s.rooms.Get(code) == nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	entries := s.journal.Recent(code, s.journalSize)
	if entries == nil {
		entries = []*journal.Entry{}
	}
	writeJSON(w, entries)
}

// handleDeleteRoom is the operator's sweep hook: rooms are never deleted
// automatically, so abandoned ones are cleaned up here.
func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if s.rooms.Get(code) == nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	s.hub.CloseRoom(code)
	s.rooms.Delete(code)
	s.journal.DeleteRoom(code)
	w.WriteHeader(http.StatusNoContent)
}
