// Package config loads the session configuration from a YAML file and
// applies AGENTSYNC_* environment overrides on top.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	API struct {
		// WSURL is the RTM websocket endpoint.
		WSURL string `yaml:"ws_url"`
		// RESTURL is the base URL of the REST API.
		RESTURL string `yaml:"rest_url"`
		// AccountsURL is the OAuth token service.
		AccountsURL string `yaml:"accounts_url"`
	} `yaml:"api"`

	Auth struct {
		AccessToken string `yaml:"access_token"`
		// RefreshToken and ClientID enable automatic token renewal.
		RefreshToken string   `yaml:"refresh_token"`
		ClientID     string   `yaml:"client_id"`
		EntityID     string   `yaml:"entity_id"`
		Scopes       []string `yaml:"scopes"`
		// RefreshThreshold renews the token when it expires within this
		// window.
		RefreshThreshold time.Duration `yaml:"refresh_threshold"`
	} `yaml:"auth"`

	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`

	Debug struct {
		// Addr serves /healthz and /metrics when non-empty.
		Addr string `yaml:"addr"`
	} `yaml:"debug"`

	Timing struct {
		PingInterval time.Duration `yaml:"ping_interval"`
		PongTimeout  time.Duration `yaml:"pong_timeout"`

		BackoffBase  time.Duration `yaml:"backoff_base"`
		BackoffCap   time.Duration `yaml:"backoff_cap"`
		BackoffFloor time.Duration `yaml:"backoff_floor"`

		RouterMaxTicks    int           `yaml:"router_max_ticks"`
		RouterSettleAfter time.Duration `yaml:"router_settle_after"`
		RouterDigestEvery time.Duration `yaml:"router_digest_every"`

		StoreDigestEvery time.Duration `yaml:"store_digest_every"`
	} `yaml:"timing"`

	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Default returns the configuration matching the platform's documented
// protocol timings.
func Default() *Config {
	var cfg Config
	cfg.API.WSURL = "wss://api.livechatinc.com/v3.5/agent/rtm/ws"
	cfg.API.RESTURL = "https://api.livechatinc.com"
	cfg.API.AccountsURL = "https://accounts.livechat.com"
	cfg.Auth.RefreshThreshold = 5 * time.Minute
	cfg.Storage.DBPath = "./.agentsync"
	cfg.Timing.PingInterval = 10 * time.Second
	cfg.Timing.PongTimeout = 5 * time.Second
	cfg.Timing.BackoffBase = 100 * time.Millisecond
	cfg.Timing.BackoffCap = 5 * time.Second
	cfg.Timing.BackoffFloor = 200 * time.Millisecond
	cfg.Timing.RouterMaxTicks = 10
	cfg.Timing.RouterSettleAfter = time.Second
	cfg.Timing.RouterDigestEvery = 200 * time.Millisecond
	cfg.Timing.StoreDigestEvery = 16 * time.Millisecond
	cfg.RateLimit.RPS = 10
	cfg.RateLimit.Burst = 20
	return &cfg
}

// Load reads the YAML config at path on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvOverrides applies environment overrides onto cfg and reports
// whether any env var was used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false

	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			envUsed = true
			*dst = v
		}
	}

	setStr("AGENTSYNC_WS_URL", &cfg.API.WSURL)
	setStr("AGENTSYNC_REST_URL", &cfg.API.RESTURL)
	setStr("AGENTSYNC_ACCOUNTS_URL", &cfg.API.AccountsURL)
	setStr("AGENTSYNC_ACCESS_TOKEN", &cfg.Auth.AccessToken)
	setStr("AGENTSYNC_REFRESH_TOKEN", &cfg.Auth.RefreshToken)
	setStr("AGENTSYNC_CLIENT_ID", &cfg.Auth.ClientID)
	setStr("AGENTSYNC_ENTITY_ID", &cfg.Auth.EntityID)
	setStr("AGENTSYNC_DB_PATH", &cfg.Storage.DBPath)
	setStr("AGENTSYNC_DEBUG_ADDR", &cfg.Debug.Addr)
	setStr("AGENTSYNC_LOG_LEVEL", &cfg.Logging.Level)

	if v := os.Getenv("AGENTSYNC_SCOPES"); v != "" {
		envUsed = true
		cfg.Auth.Scopes = nil
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.Auth.Scopes = append(cfg.Auth.Scopes, s)
			}
		}
	}
	if v := os.Getenv("AGENTSYNC_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("AGENTSYNC_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.RateLimit.Burst = n
		}
	}

	return envUsed
}

// ParseCommandFlags defines and parses command-line flags and returns
// their values along with a map indicating which flags were explicitly
// set.
func ParseCommandFlags() (dbPath string, cfgPath string, debugAddr string, setFlags map[string]bool) {
	dbPtr := flag.String("db", "./.agentsync", "state database path")
	cfgPtr := flag.String("config", "./config.yaml", "path to config file")
	debugPtr := flag.String("debug-addr", "", "debug HTTP listen address (health + metrics)")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *dbPtr, *cfgPtr, *debugPtr, setFlags
}

// ResolveConfigPath decides the config file path using the flag-provided
// value and AGENTSYNC_CONFIG when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("AGENTSYNC_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

// LoadEffective loads the config file at path (falling back to defaults
// when it is absent) and applies environment overrides.
func LoadEffective(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err != nil {
		cfg = Default()
	}
	envUsed := LoadEnvOverrides(cfg)
	return cfg, envUsed, nil
}
