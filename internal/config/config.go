package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

type Server struct {
	Port              string   `json:"port"`
	RequestTimeoutSec int      `json:"request_timeout_sec"`
	AllowedOrigins    []string `json:"allowed_origins"`
}

type Log struct {
	Level  string `json:"level"`
	Pretty bool   `json:"pretty"`
}

// Upstream configures one upstream API: where it lives, how hard it may be
// hit and how long its listing is kept.
type Upstream struct {
	BaseURL               string `json:"base_url"`
	TimeoutSec            int    `json:"timeout_sec"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec"`
	Burst                 int    `json:"burst"`
	ListingTTLSeconds     int    `json:"listing_ttl_sec"`
}

func (u Upstream) Timeout() time.Duration     { return time.Duration(u.TimeoutSec) * time.Second }
func (u Upstream) MinInterval() time.Duration { return time.Duration(u.MinRequestIntervalSec) * time.Second }
func (u Upstream) ListingTTL() time.Duration  { return time.Duration(u.ListingTTLSeconds) * time.Second }

type Cache struct {
	QuoteTTLSeconds int `json:"quote_ttl_sec"`
	MaxItems        int `json:"max_items"`
	// PurgeSchedule is a cron spec (with seconds) in Asia/Ho_Chi_Minh that
	// drops every cached quote; empty disables it.
	PurgeSchedule string `json:"purge_schedule"`
}

func (c Cache) QuoteTTL() time.Duration { return time.Duration(c.QuoteTTLSeconds) * time.Second }

type Funds struct {
	// RefreshSchedule is a cron spec (with seconds); empty disables it.
	RefreshSchedule string `json:"refresh_schedule"`
}

type Assets struct {
	DatabasePath string `json:"database_path"`
}

type Config struct {
	Server  Server   `json:"server"`
	Log     Log      `json:"log"`
	VCI     Upstream `json:"vci"`
	FMarket Upstream `json:"fmarket"`
	SJC     Upstream `json:"sjc"`
	Cache   Cache    `json:"cache"`
	Funds   Funds    `json:"funds"`
	Assets  Assets   `json:"assets"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 15, AllowedOrigins: []string{"*"}},
		Log:    Log{Level: "info"},
		VCI: Upstream{
			BaseURL:              "https://trading.vietcap.com.vn/api",
			TimeoutSec:           10,
			MaxRequestsPerMinute: 60,
			Burst:                5,
			ListingTTLSeconds:    3600,
		},
		FMarket: Upstream{
			BaseURL:              "https://api.fmarket.vn/res",
			TimeoutSec:           15,
			MaxRequestsPerMinute: 30,
			Burst:                3,
			ListingTTLSeconds:    6 * 3600,
		},
		SJC: Upstream{
			BaseURL:               "https://sjc.com.vn",
			TimeoutSec:            10,
			MinRequestIntervalSec: 1,
		},
		Cache: Cache{QuoteTTLSeconds: 60, MaxItems: 10000, PurgeSchedule: "0 5 15 * * 1-5"},
		Funds: Funds{RefreshSchedule: "0 0 */6 * * *"},
		Assets: Assets{DatabasePath: "./data/vnmarket.db"},
	}
}

// Load reads a .env file if present, then JSON config from path. If path is
// empty it falls back to CONFIG_FILE, then ./config.json; a missing file
// yields defaults. Environment variables override individual fields.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if c.Server.RequestTimeoutSec <= 0 {
		return errors.New("server.request_timeout_sec must be positive")
	}
	for name, u := range map[string]Upstream{"vci": c.VCI, "fmarket": c.FMarket, "sjc": c.SJC} {
		if u.BaseURL == "" {
			return fmt.Errorf("%s.base_url is required", name)
		}
	}
	for name, spec := range map[string]string{"cache.purge_schedule": c.Cache.PurgeSchedule, "funds.refresh_schedule": c.Funds.RefreshSchedule} {
		if spec == "" {
			continue
		}
		if _, err := cronParser.Parse(spec); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	envInt("REQUEST_TIMEOUT_SEC", &cfg.Server.RequestTimeoutSec, 1)
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitCSV(v)
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	envBool("LOG_PRETTY", &cfg.Log.Pretty)

	applyUpstreamEnv("VCI", &cfg.VCI)
	applyUpstreamEnv("FMARKET", &cfg.FMarket)
	applyUpstreamEnv("SJC", &cfg.SJC)

	envInt("QUOTE_CACHE_TTL_SEC", &cfg.Cache.QuoteTTLSeconds, 0)
	envInt("QUOTE_CACHE_MAX_ITEMS", &cfg.Cache.MaxItems, 0)
	if v, ok := os.LookupEnv("QUOTE_CACHE_PURGE_SCHEDULE"); ok {
		cfg.Cache.PurgeSchedule = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv("FUND_REFRESH_SCHEDULE"); ok {
		cfg.Funds.RefreshSchedule = strings.TrimSpace(v)
	}

	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Assets.DatabasePath = v
	}
}

func applyUpstreamEnv(prefix string, u *Upstream) {
	if v := os.Getenv(prefix + "_BASE_URL"); v != "" {
		u.BaseURL = strings.TrimRight(v, "/")
	}
	envInt(prefix+"_TIMEOUT_SEC", &u.TimeoutSec, 1)
	envInt(prefix+"_MAX_RPM", &u.MaxRequestsPerMinute, 0)
	envInt(prefix+"_MIN_INTERVAL_SEC", &u.MinRequestIntervalSec, 0)
	envInt(prefix+"_BURST", &u.Burst, 1)
	envInt(prefix+"_LISTING_TTL_SEC", &u.ListingTTLSeconds, 0)
}

// envInt sets *dst from key when the value parses and is >= floor.
func envInt(key string, dst *int, floor int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var x int
	if _, err := fmt.Sscanf(v, "%d", &x); err == nil && x >= floor {
		*dst = x
	}
}

func envBool(key string, dst *bool) {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		*dst = true
	case "0", "false", "no", "n":
		*dst = false
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
