package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sessamekesh/snowplowderby-client/pkg/session"
	"github.com/sessamekesh/snowplowderby-client/pkg/world"
)

type stateResponse struct {
	SessionId     string         `json:"session_id"`
	State         string         `json:"state"`
	LocalPlayerId *uint16        `json:"local_player_id,omitempty"`
	Players       []world.Player `json:"players"`
	Scoreboard    []uint16       `json:"scoreboard"`
	WallCount     int            `json:"wall_count"`
}

func statusRouter(s *session.Session, registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		state := s.State()
		if state == session.State_Closed {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		w.Write([]byte(state.String()))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
		rsp := stateResponse{
			SessionId: s.Id(),
			State:     s.State().String(),
		}
		if id, has := s.LocalPlayerId(); has {
			rsp.LocalPlayerId = &id
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		err := s.View(ctx, func(store *world.Store) {
			rsp.Players = store.Players()
			rsp.WallCount = len(store.Walls())
			for _, p := range store.Scoreboard() {
				rsp.Scoreboard = append(rsp.Scoreboard, p.Id)
			}
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rsp)
	})

	return r
}
