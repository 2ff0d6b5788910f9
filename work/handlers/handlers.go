package handlers

import (
	"encoding/json"
	"net/http"

	"m3u-server/work/cache"
	"m3u-server/work/catalog"
	"m3u-server/work/config"
	"m3u-server/work/logger"
	"m3u-server/work/metrics"
	"m3u-server/work/scheduler"

	"github.com/gorilla/mux"
)

// Server holds the dependencies the HTTP handlers serve from: the published
// catalog, the rendered-playlist cache, and the refresh scheduler.
type Server struct {
	Config *config.Config
	Store  *catalog.Store
	Cache  *cache.PlaylistCache
	Sched  *scheduler.Scheduler
}

// ServePlaylist renders and serves the current catalog as M3U text, filtered
// to a group when one is given. Renderings are cached per generation, so a
// newly published catalog is never served from stale text.
func (s *Server) ServePlaylist(w http.ResponseWriter, r *http.Request, groupFilter string) {
	cat := s.Store.Read()

	if cat.Generation == 0 {
		http.Error(w, "catalog not ready", http.StatusServiceUnavailable)
		return
	}

	cacheKey := cache.Key(cat.Generation, groupFilter)

	if cached, ok := s.Cache.Get(cacheKey); ok {
		metrics.PlaylistRequests.WithLabelValues("hit").Inc()
		logger.Debug("{handlers/handlers - ServePlaylist} Serving cached playlist (key: %s)", cacheKey)
		writePlaylist(w, cached)
		return
	}

	rendered, count := RenderM3U(cat.Entries, groupFilter)

	if groupFilter != "" && count == 0 {
		http.Error(w, "unknown group", http.StatusNotFound)
		return
	}

	s.Cache.Set(cacheKey, rendered)
	metrics.PlaylistRequests.WithLabelValues("miss").Inc()

	logger.Debug("{handlers/handlers - ServePlaylist} Rendered playlist generation %d: %d of %d entries (group: %q)",
		cat.Generation, count, len(cat.Entries), groupFilter)
	writePlaylist(w, rendered)
}

func writePlaylist(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/x-mpegURL")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(body))
}

// HandlePlaylist serves the full merged playlist.
func HandlePlaylist(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.ServePlaylist(w, r, "")
	}
}

// HandleGroupPlaylist serves the playlist restricted to one channel group.
func HandleGroupPlaylist(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		s.ServePlaylist(w, r, vars["group"])
	}
}

// HandleHealth reports scheduler and catalog state. Returns 503 until the
// first catalog has been published so load balancers hold traffic during a
// cold start.
func HandleHealth(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := s.Sched.Status()

		w.Header().Set("Content-Type", "application/json")
		if status.Generation == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(status)
	}
}

// HandleRefresh triggers an on-demand refresh cycle. The refresh runs in the
// background; when a cycle is already in flight the trigger is a no-op and
// the response says so.
func HandleRefresh(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		triggered := s.Sched.TriggerAsync("manual")

		w.Header().Set("Content-Type", "application/json")
		if triggered {
			w.WriteHeader(http.StatusAccepted)
		} else {
			w.WriteHeader(http.StatusConflict)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"triggered": triggered,
		})
	}
}
