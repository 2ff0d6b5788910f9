package main

import (
	"context"
	"net/http"
	"runtime"

	"github.com/gorilla/mux"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"m3u-server/work/cache"
	"m3u-server/work/catalog"
	"m3u-server/work/client"
	"m3u-server/work/config"
	"m3u-server/work/database"
	"m3u-server/work/fetcher"
	"m3u-server/work/filter"
	"m3u-server/work/handlers"
	"m3u-server/work/logger"
	"m3u-server/work/middleware"
	"m3u-server/work/scheduler"
)

var (
	Version = "v0.1.0" // default version
)

// registrySources adapts the database source registry to the scheduler's
// provider interface so registry edits apply on the next refresh.
type registrySources struct {
	db *database.DB
}

func (r registrySources) EnabledSources() ([]config.SourceConfig, error) {
	return r.db.LoadEnabledSources()
}

// our main app worker
func main() {

	// load our config
	cfg := config.LoadConfig()
	logger.SetLogLevel(cfg.LogLevel)

	// open the source registry and refresh history database; the server can
	// still run on config-file sources alone if the database fails to open
	var db *database.DB
	if cfg.DatabasePath != "" {
		var err error
		db, err = database.Open(cfg.DatabasePath)
		if err != nil {
			logger.Warn("{main - main} Database unavailable, running on config sources only: %v", err)
			db = nil
		} else {
			defer db.Close()
			if err := db.SeedSources(cfg.Sources); err != nil {
				logger.Warn("{main - main} Failed to seed config sources into registry: %v", err)
			}
		}
	}

	// worker pool for parallel source fetches
	workerPool, err := ants.NewPool(runtime.NumCPU()*2, ants.WithPreAlloc(true))
	if err != nil {
		logger.Error("{main - main} Failed to create worker pool: %v", err)
		return
	}
	defer workerPool.Release()

	// core pipeline pieces
	httpClient := client.NewHeaderSettingClient()
	fetch := fetcher.New(cfg, httpClient)
	filters := filter.NewManager(cfg.DisableFilters)
	store := catalog.NewStore()
	playlistCache := cache.NewPlaylistCache(cfg.CacheDuration)

	// sources come from the registry when available, else from the config file
	var provider scheduler.SourceProvider
	if db != nil {
		provider = registrySources{db: db}
	} else {
		provider = scheduler.StaticSources(cfg.Sources)
	}

	sched := scheduler.New(cfg, fetch, store, filters, provider, workerPool, db)

	// synchronous startup refresh so the first playlist request has a catalog
	if err := sched.Refresh(context.Background(), "startup"); err != nil {
		logger.Warn("{main - main} Startup refresh failed, serving 503 until a cycle succeeds: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	srv := &handlers.Server{
		Config: cfg,
		Store:  store,
		Cache:  playlistCache,
		Sched:  sched,
	}

	// Setup HTTP routes
	router := mux.NewRouter()

	router.HandleFunc("/playlist.m3u", handlers.HandlePlaylist(srv)).Methods("GET")
	router.HandleFunc("/{group}/playlist.m3u", handlers.HandleGroupPlaylist(srv)).Methods("GET")
	router.HandleFunc("/health", handlers.HandleHealth(srv)).Methods("GET")
	router.HandleFunc("/refresh", handlers.HandleRefresh(srv)).Methods("POST")

	// Metrics handler
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// add the admin routes
	setupAdminRoutes(router, srv, db)

	// show info
	logger.Info("Starting M3U Server %s", Version)
	logger.Info("Server configuration:")
	logger.Info("  - Listen Address: %s", cfg.ListenAddr)
	logger.Info("  - Base URL: %s", cfg.BaseURL)
	logger.Info("  - Sources: %d", len(cfg.Sources))
	logger.Info("  - Refresh Interval: %s", cfg.RefreshInterval)
	logger.Info("  - Cycle Deadline: %s", cfg.CycleDeadline)
	logger.Info("  - Cache Duration: %s", cfg.CacheDuration)
	logger.Info("  - Dedup Identity: %s", cfg.DedupIdentity)
	logger.Info("  - Max. Playlist Size: %d MB", cfg.MaxPlaylistSize)
	logger.Info("  - URL Obfuscation: %v", cfg.ObfuscateUrls)

	// fire us up
	if err := http.ListenAndServe(cfg.ListenAddr, middleware.Gzip(router)); err != nil {
		logger.Error("Server failed to start: %v", err)
	}
}
