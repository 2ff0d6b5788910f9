package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"m3u-server/work/catalog"
	"m3u-server/work/config"
	"m3u-server/work/database"
	"m3u-server/work/handlers"
	"m3u-server/work/logger"

	"github.com/gorilla/mux"
)

// StatsResponse carries the operational snapshot exposed through the admin
// API: catalog state, per-source refresh outcomes, and process-level numbers
// for monitoring and capacity planning.
type StatsResponse struct {
	Generation     uint64                          `json:"generation"`
	TotalEntries   int                             `json:"totalEntries"`
	BuiltAt        time.Time                       `json:"builtAt,omitzero"`
	Sources        int                             `json:"sources"`
	SourceStatuses map[string]catalog.SourceStatus `json:"sourceStatuses"`
	LastOutcome    string                          `json:"lastOutcome,omitempty"`
	LastRefresh    time.Time                       `json:"lastRefresh,omitzero"`
	RefreshRunning bool                            `json:"refreshRunning"`
	CachedRenders  int                             `json:"cachedRenders"`
	Uptime         string                          `json:"uptime"`
	MemoryUsage    string                          `json:"memoryUsage"`
	Goroutines     int                             `json:"goroutines"`
}

// SourceRequest is the admin API payload for creating or updating a source.
// Duration fields arrive as strings ("30s") like in the config file.
type SourceRequest struct {
	Name         string `json:"name"`
	Locator      string `json:"locator"`
	Rank         int    `json:"rank"`
	Timeout      string `json:"timeout"`
	RateLimit    int    `json:"rateLimit"`
	UserAgent    string `json:"userAgent"`
	ReqOrigin    string `json:"reqOrigin"`
	ReqReferrer  string `json:"reqReferrer"`
	IncludeRegex string `json:"includeRegex"`
	ExcludeRegex string `json:"excludeRegex"`
	Enabled      *bool  `json:"enabled"`
}

// adminStartTime records process start for uptime reporting.
var adminStartTime = time.Now()

// setupAdminRoutes registers the admin API endpoints on the router. The
// source registry endpoints require a database; when db is nil they answer
// 503 so a registry-less deployment still gets stats and history stubs.
func setupAdminRoutes(router *mux.Router, srv *handlers.Server, db *database.DB) {
	router.HandleFunc("/api/stats", corsMiddleware(handleGetStats(srv))).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/sources", corsMiddleware(handleGetSources(srv, db))).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/sources", corsMiddleware(handleCreateSource(srv, db))).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/sources/{id}", corsMiddleware(handleDeleteSource(db))).Methods("DELETE", "OPTIONS")
	router.HandleFunc("/api/sources/{id}/toggle", corsMiddleware(handleToggleSource(db))).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/history", corsMiddleware(handleGetHistory(db))).Methods("GET", "OPTIONS")

	logger.Debug("{admin_handlers - setupAdminRoutes} Admin API routes registered")
}

// corsMiddleware adds CORS headers and answers preflight requests so a
// web-based admin frontend can call the API from another origin.
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func handleGetStats(srv *handlers.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cat := srv.Store.Read()
		status := srv.Sched.Status()

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)

		resp := StatsResponse{
			Generation:     cat.Generation,
			TotalEntries:   len(cat.Entries),
			BuiltAt:        cat.BuiltAt,
			Sources:        len(cat.SourceStatuses),
			SourceStatuses: cat.SourceStatuses,
			LastOutcome:    status.LastOutcome,
			LastRefresh:    status.LastRefresh,
			RefreshRunning: status.InProgress,
			CachedRenders:  srv.Cache.Size(),
			Uptime:         time.Since(adminStartTime).Round(time.Second).String(),
			MemoryUsage:    fmt.Sprintf("%.1f MB", float64(mem.Alloc)/1024/1024),
			Goroutines:     runtime.NumGoroutine(),
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func handleGetSources(srv *handlers.Server, db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			http.Error(w, "source registry unavailable", http.StatusServiceUnavailable)
			return
		}

		rows, err := db.LoadAllSources()
		if err != nil {
			logger.Error("{admin_handlers - handleGetSources} Failed to load sources: %v", err)
			http.Error(w, "failed to load sources", http.StatusInternalServerError)
			return
		}

		// obfuscate locators when configured, same policy as the logs
		if srv.Config.ObfuscateUrls {
			for i := range rows {
				rows[i].Locator = config.ObfuscateURL(rows[i].Locator)
			}
		}

		writeJSON(w, http.StatusOK, rows)
	}
}

func handleCreateSource(srv *handlers.Server, db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			http.Error(w, "source registry unavailable", http.StatusServiceUnavailable)
			return
		}

		var req SourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Name == "" || req.Locator == "" {
			http.Error(w, "name and locator are required", http.StatusBadRequest)
			return
		}

		timeout, err := time.ParseDuration(req.Timeout)
		if err != nil || timeout <= 0 {
			timeout = 30 * time.Second
		}

		src := config.SourceConfig{
			Name:         req.Name,
			Locator:      req.Locator,
			Rank:         req.Rank,
			Timeout:      timeout,
			RateLimit:    req.RateLimit,
			UserAgent:    req.UserAgent,
			ReqOrigin:    req.ReqOrigin,
			ReqReferrer:  req.ReqReferrer,
			IncludeRegex: req.IncludeRegex,
			ExcludeRegex: req.ExcludeRegex,
			Enabled:      req.Enabled == nil || *req.Enabled,
		}
		if src.Rank <= 0 {
			src.Rank = 1
		}
		if src.RateLimit <= 0 {
			src.RateLimit = 5
		}

		id, err := db.UpsertSource(&src)
		if err != nil {
			logger.Error("{admin_handlers - handleCreateSource} Failed to save source %s: %v", src.Name, err)
			http.Error(w, "failed to save source", http.StatusInternalServerError)
			return
		}

		logger.Info("{admin_handlers - handleCreateSource} Source %s saved (id %d), takes effect next refresh", src.Name, id)
		writeJSON(w, http.StatusOK, map[string]any{"id": id})
	}
}

func handleDeleteSource(db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			http.Error(w, "source registry unavailable", http.StatusServiceUnavailable)
			return
		}

		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			http.Error(w, "invalid source id", http.StatusBadRequest)
			return
		}

		existed, err := db.DeleteSource(id)
		if err != nil {
			logger.Error("{admin_handlers - handleDeleteSource} Failed to delete source %d: %v", id, err)
			http.Error(w, "failed to delete source", http.StatusInternalServerError)
			return
		}
		if !existed {
			http.Error(w, "source not found", http.StatusNotFound)
			return
		}

		logger.Info("{admin_handlers - handleDeleteSource} Source %d deleted, takes effect next refresh", id)
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	}
}

func handleToggleSource(db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			http.Error(w, "source registry unavailable", http.StatusServiceUnavailable)
			return
		}

		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			http.Error(w, "invalid source id", http.StatusBadRequest)
			return
		}

		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		existed, err := db.SetSourceEnabled(id, req.Enabled)
		if err != nil {
			logger.Error("{admin_handlers - handleToggleSource} Failed to toggle source %d: %v", id, err)
			http.Error(w, "failed to update source", http.StatusInternalServerError)
			return
		}
		if !existed {
			http.Error(w, "source not found", http.StatusNotFound)
			return
		}

		logger.Info("{admin_handlers - handleToggleSource} Source %d enabled=%v, takes effect next refresh", id, req.Enabled)
		writeJSON(w, http.StatusOK, map[string]any{"enabled": req.Enabled})
	}
}

func handleGetHistory(db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			writeJSON(w, http.StatusOK, []database.CycleRecord{})
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		records, err := db.RecentHistory(limit)
		if err != nil {
			logger.Error("{admin_handlers - handleGetHistory} Failed to load history: %v", err)
			http.Error(w, "failed to load history", http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []database.CycleRecord{}
		}

		writeJSON(w, http.StatusOK, records)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
