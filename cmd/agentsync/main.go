package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentsync/pkg/config"
	"agentsync/pkg/logger"
	"agentsync/pkg/models"
	"agentsync/pkg/persist"
	"agentsync/pkg/restapi"
	"agentsync/pkg/routing"
	"agentsync/pkg/rtm"
	"agentsync/pkg/session"
	"agentsync/pkg/store"
	"agentsync/pkg/telemetry"
)

var version = "dev"

func main() {
	// load .env first so env overrides see it
	_ = godotenv.Load(".env")

	dbFlag, cfgFlag, debugFlag, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgFlag, setFlags["config"])
	cfg, envUsed, err := config.LoadEffective(cfgPath)
	if err != nil {
		logger.Init()
		logger.Error("failed to load config", "path", cfgPath, "err", err)
		os.Exit(2)
	}

	logger.InitWithLevel(cfg.Logging.Level)

	// explicit flags win over config file and env
	dbPath := cfg.Storage.DBPath
	if setFlags["db"] || dbPath == "" {
		dbPath = dbFlag
	}
	debugAddr := cfg.Debug.Addr
	if setFlags["debug-addr"] {
		debugAddr = debugFlag
	}

	logger.Info("starting agentsync",
		"version", version, "config", cfgPath, "env_overrides", envUsed, "db", dbPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ps, err := persist.Open(dbPath)
	if err != nil {
		logger.Error("failed to open state database", "path", dbPath, "err", err)
		os.Exit(1)
	}
	defer ps.Close()

	// one session per database; a second process waits here until the
	// first releases or its claim expires
	lockCtx, cancelLock := context.WithTimeout(ctx, 10*time.Second)
	lock, err := ps.AcquireLock(lockCtx, "session", time.Minute)
	cancelLock()
	if err != nil {
		logger.Error("another session holds the state database", "path", dbPath, "err", err)
		os.Exit(1)
	}
	defer lock.Release()
	go refreshLock(ctx, lock)

	initial := store.NewState()
	seedFromDisk(ps, cfg, &initial)
	if initial.Credentials == nil {
		logger.Error("no access token; set auth.access_token or AGENTSYNC_ACCESS_TOKEN")
		os.Exit(2)
	}

	st := store.New(initial, cfg.Timing.StoreDigestEvery)
	go st.Run(ctx)

	router := routing.NewRouter(routing.RouterConfig{
		MaxTicks:    cfg.Timing.RouterMaxTicks,
		SettleAfter: cfg.Timing.RouterSettleAfter,
		DigestEvery: cfg.Timing.RouterDigestEvery,
	})
	go router.Run(ctx)

	rest := restapi.New(restapi.Config{
		BaseURL:     cfg.API.RESTURL,
		AccountsURL: cfg.API.AccountsURL,
		RPS:         cfg.RateLimit.RPS,
		Burst:       cfg.RateLimit.Burst,
	}, func() string {
		if c := st.GetState().Credentials; c != nil {
			return c.AccessToken
		}
		return ""
	})

	wsURL := cfg.API.WSURL
	rtmCfg := rtm.Config{
		PingInterval: cfg.Timing.PingInterval,
		PongTimeout:  cfg.Timing.PongTimeout,
	}
	sess := session.New(session.Options{
		Store:  st,
		Router: router,
		REST:   rest,
		Dial: func(ctx context.Context) (session.RTMConn, error) {
			return rtm.Dial(ctx, wsURL, rtmCfg)
		},
		Backoff: &session.Backoff{
			Base:  cfg.Timing.BackoffBase,
			Cap:   cfg.Timing.BackoffCap,
			Floor: cfg.Timing.BackoffFloor,
		},
		Timezone:   localTimezone(),
		AppName:    "agentsync",
		AppVersion: version,
	})

	if debugAddr != "" {
		go serveDebug(ctx, debugAddr, st)
	}
	if cfg.Auth.ClientID != "" {
		go refreshCredentials(ctx, cfg, ps, st, rest)
	}

	// persist session artifacts as they change
	defer persistOnExit(ps, st)
	unsub := watchProfile(ps, st)
	defer unsub()
	unsubChats := store.Connect(st,
		func(s store.State) int { return len(s.Chats) },
		func(n int) { telemetry.OpenChats.Set(float64(n)) })
	defer unsubChats()

	err = sess.Run(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logger.Info("session stopped")
	default:
		logger.Error("session failed", "err", err)
		persistOnExit(ps, st)
		os.Exit(1)
	}
}

// seedFromDisk builds the initial snapshot from the persisted state plus
// the configured credentials. Config wins for the token; everything else
// carries over from the previous run.
func seedFromDisk(ps *persist.Store, cfg *config.Config, st *store.State) {
	if c, ok, err := ps.LoadCredentials(); err == nil && ok {
		st.Credentials = &c
	}
	if cfg.Auth.AccessToken != "" {
		st.Credentials = &models.Credentials{
			AccessToken:  cfg.Auth.AccessToken,
			RefreshToken: cfg.Auth.RefreshToken,
			EntityID:     cfg.Auth.EntityID,
			Scopes:       cfg.Auth.Scopes,
		}
	}
	if st.Credentials != nil {
		if err := ps.SaveCredentials(*st.Credentials); err != nil {
			logger.Warn("failed to persist credentials", "err", err)
		}
	}
	if p, ok, err := ps.LoadProfile(); err == nil && ok {
		st.MyProfile = &p
	}
	if q, err := ps.LoadRecentQueries(); err == nil && len(q) > 0 {
		st.SearchRecentQueries = q
	}
	if id, err := ps.LoadSelectedChat(); err == nil && id != "" {
		st.SelectedChatID = id
	}
	if p, ok, err := ps.LoadUIPrefs(); err == nil && ok {
		st.ColorMode = p.ColorMode
		st.ShowDetailsSection = p.ShowDetailsSection
	}
	if at, ok, err := ps.LastCleanShutdown(); err == nil && ok {
		logger.Info("previous session shut down cleanly", "at", at.Format(time.RFC3339))
	}
}

// watchProfile mirrors the agent profile to disk once login fills it in.
func watchProfile(ps *persist.Store, st *store.Store) func() {
	return store.Connect(st, func(s store.State) string {
		if s.MyProfile == nil {
			return ""
		}
		return s.MyProfile.ID
	}, func(id string) {
		if id == "" {
			return
		}
		if p := st.GetState().MyProfile; p != nil {
			if err := ps.SaveProfile(*p); err != nil {
				logger.Warn("failed to persist profile", "err", err)
			}
		}
	})
}

func persistOnExit(ps *persist.Store, st *store.Store) {
	s := st.GetState()
	if err := ps.SaveRecentQueries(s.SearchRecentQueries); err != nil {
		logger.Warn("failed to persist recent queries", "err", err)
	}
	if err := ps.SaveSelectedChat(s.SelectedChatID); err != nil {
		logger.Warn("failed to persist selected chat", "err", err)
	}
	prefs := persist.UIPrefs{ColorMode: s.ColorMode, ShowDetailsSection: s.ShowDetailsSection}
	if err := ps.SaveUIPrefs(prefs); err != nil {
		logger.Warn("failed to persist display preferences", "err", err)
	}
	if err := ps.MarkCleanShutdown(time.Now()); err != nil {
		logger.Warn("failed to mark clean shutdown", "err", err)
	}
}

// refreshCredentials renews the access token before it expires. The
// advisory lock serializes renewal across processes sharing the
// database; the persisted record is re-read under the lock in case
// another process already renewed.
func refreshCredentials(ctx context.Context, cfg *config.Config, ps *persist.Store, st *store.Store, rest *restapi.Client) {
	threshold := cfg.Auth.RefreshThreshold
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cur := st.GetState().Credentials
		if cur == nil || cur.RefreshToken == "" || cur.ExpiresAt.IsZero() {
			continue
		}
		if !cur.ExpiresWithin(time.Now(), threshold) {
			continue
		}

		lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lock, err := ps.AcquireLock(lockCtx, "token_refresh", 30*time.Second)
		cancel()
		if err != nil {
			continue
		}

		if saved, ok, err := ps.LoadCredentials(); err == nil && ok &&
			!saved.ExpiresWithin(time.Now(), threshold) {
			st.Dispatch(func(s *store.State) { s.Credentials = &saved })
			lock.Release()
			continue
		}

		fresh, err := rest.RefreshToken(ctx, cfg.Auth.ClientID, cur.RefreshToken)
		if err != nil {
			logger.Warn("token refresh failed", "err", err)
			lock.Release()
			continue
		}
		if err := ps.SaveCredentials(fresh); err != nil {
			logger.Warn("failed to persist refreshed credentials", "err", err)
		}
		st.Dispatch(func(s *store.State) { s.Credentials = &fresh })
		logger.Info("access token refreshed", "expires_at", fresh.ExpiresAt.Format(time.RFC3339))
		lock.Release()
	}
}

// refreshLock keeps the session claim alive at half its ttl.
func refreshLock(ctx context.Context, lock *persist.Lock) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lock.Refresh(time.Minute); err != nil {
				logger.Warn("failed to refresh session lock", "err", err)
			}
		}
	}
}

// serveDebug exposes health and metrics on the debug listener.
func serveDebug(ctx context.Context, addr string, st *store.Store) {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s := st.GetState()
		w.Header().Set("Content-Type", "application/json")
		if s.NetworkStatus != store.NetworkOnline {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"network": s.NetworkStatus,
			"chats":   len(s.Chats),
			"version": version,
		})
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shCtx)
	}()

	logger.Info("debug server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("debug server failed", "err", err)
	}
}

// localTimezone is the IANA zone name sent with login.
func localTimezone() string {
	if tz := os.Getenv("TZ"); tz != "" {
		return tz
	}
	if name, _ := time.Now().Zone(); name != "" && name != "Local" {
		return name
	}
	return "UTC"
}
