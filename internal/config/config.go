// Package config loads the façade's configuration from environment
// variables, following the teacher's internal/app/config.go pattern: small
// getEnv* helpers, no config file, no config library, validated once at
// startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/relaydeck/aifacade/internal/journal"
	"github.com/relaydeck/aifacade/internal/router"
)

// ProviderConfig is one provider named by the caller of Load, read from its
// AIFACADE_PROVIDER_<NAME>_* variables: the adapter wiring plus the
// viability limits the router enforces for it.
type ProviderConfig struct {
	Name         string
	Enabled      bool
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	TimeoutSecs  int
	Priority     int
	RequestLimit int
	LimitType    router.LimitType
	CostPerToken float64
	DailyBudget  float64
}

// Config is the façade's fully resolved startup configuration.
type Config struct {
	ListenAddr string
	LogLevel   string

	CORSOrigins []string

	CredentialsFile       string
	CredentialsPassphrase string

	OTelEnabled     bool
	OTelEndpoint    string
	OTelServiceName string

	RouterDailyBudget        float64
	RouterMaxRetries         int
	RouterHealthCheckInterval time.Duration
	RouterEnableCostTracking bool
	RouterEnableRateLimiting bool

	Journal journal.Options
	History journal.Options

	RolloverCron string

	Providers []ProviderConfig
}

// Load reads Config from the environment. providerNames lists the
// providers this deployment wires (there is no environment-discoverable
// provider registry, so the caller supplies the names it compiled adapters
// for — e.g. []string{"openai", "anthropic", "localfallback"}).
func Load(providerNames []string) (Config, error) {
	cfg := Config{
		ListenAddr: getEnv("AIFACADE_LISTEN_ADDR", ":8080"),
		LogLevel:   getEnv("AIFACADE_LOG_LEVEL", "info"),

		CORSOrigins: getEnvStringSlice("AIFACADE_CORS_ORIGINS", nil),

		CredentialsFile:       getEnv("AIFACADE_CREDENTIALS_FILE", ""),
		CredentialsPassphrase: getEnv("AIFACADE_CREDENTIALS_PASSPHRASE", ""),

		OTelEnabled:     getEnvBool("AIFACADE_OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("AIFACADE_OTEL_ENDPOINT", "localhost:4318"),
		OTelServiceName: getEnv("AIFACADE_OTEL_SERVICE_NAME", "aifacade"),

		RouterDailyBudget:         getEnvFloat("AIFACADE_ROUTER_DAILY_BUDGET", 10.0),
		RouterMaxRetries:          getEnvInt("AIFACADE_ROUTER_MAX_RETRIES", 3),
		RouterHealthCheckInterval: getEnvDuration("AIFACADE_ROUTER_HEALTH_CHECK_INTERVAL", 5*time.Minute),
		RouterEnableCostTracking:  getEnvBool("AIFACADE_ROUTER_ENABLE_COST_TRACKING", true),
		RouterEnableRateLimiting:  getEnvBool("AIFACADE_ROUTER_ENABLE_RATE_LIMITING", true),

		RolloverCron: getEnv("AIFACADE_ROLLOVER_CRON", "*/15 * * * *"),
	}

	var err error
	cfg.Journal, err = loadJournalOptions("AIFACADE_JOURNAL", "/data/aifacade/journal.json")
	if err != nil {
		return Config{}, err
	}
	cfg.History, err = loadJournalOptions("AIFACADE_HISTORY", "/data/aifacade/history.json")
	if err != nil {
		return Config{}, err
	}

	for i, name := range providerNames {
		cfg.Providers = append(cfg.Providers, loadProviderConfig(name, i+1))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadJournalOptions(prefix, defaultPath string) (journal.Options, error) {
	opts := journal.Options{
		Enabled:           getEnvBool(prefix+"_ENABLED", false),
		FilePath:          getEnv(prefix+"_FILE_PATH", defaultPath),
		MaxFileSizeBytes:  journal.ParseSizeExpression(getEnv(prefix+"_MAX_FILE_SIZE", "")),
		MaxFileAge:        journal.ParseMaxAgeDays(getEnv(prefix+"_MAX_FILE_AGE_DAYS", "")),
		RolloverDirectory: getEnv(prefix+"_ROLLOVER_DIR", ""),
	}
	return opts, nil
}

func loadProviderConfig(name string, defaultPriority int) ProviderConfig {
	upper := strings.ToUpper(name)
	prefix := "AIFACADE_PROVIDER_" + upper + "_"

	return ProviderConfig{
		Name:         name,
		Enabled:      getEnvBool(prefix+"ENABLED", true),
		APIKey:       getEnv(prefix+"API_KEY", ""),
		BaseURL:      getEnv(prefix+"BASE_URL", ""),
		Model:        getEnv(prefix+"MODEL", ""),
		MaxTokens:    getEnvInt(prefix+"MAX_TOKENS", 1000),
		TimeoutSecs:  getEnvInt(prefix+"TIMEOUT_SECS", 30),
		Priority:     getEnvInt(prefix+"PRIORITY", defaultPriority),
		RequestLimit: getEnvInt(prefix+"REQUEST_LIMIT", 0),
		LimitType:    parseLimitType(getEnv(prefix+"LIMIT_TYPE", "day")),
		CostPerToken: getEnvFloat(prefix+"COST_PER_TOKEN", 0),
		DailyBudget:  getEnvFloat(prefix+"DAILY_BUDGET_LIMIT", 10.0),
	}
}

func parseLimitType(v string) router.LimitType {
	switch strings.ToLower(v) {
	case "hour":
		return router.LimitHour
	case "month":
		return router.LimitMonth
	case "unlimited":
		return router.LimitUnlimited
	default:
		return router.LimitDay
	}
}

// Validate checks for obviously invalid settings. An invalid Config is a
// ConfigurationError: the process must not accept traffic.
func (c Config) Validate() error {
	if c.RouterDailyBudget < 0 {
		return fmt.Errorf("AIFACADE_ROUTER_DAILY_BUDGET must be >= 0, got %f", c.RouterDailyBudget)
	}
	if c.RouterMaxRetries < 1 || c.RouterMaxRetries > 10 {
		return fmt.Errorf("AIFACADE_ROUTER_MAX_RETRIES must be between 1 and 10, got %d", c.RouterMaxRetries)
	}
	if c.RouterHealthCheckInterval <= 0 {
		return fmt.Errorf("AIFACADE_ROUTER_HEALTH_CHECK_INTERVAL must be > 0, got %s", c.RouterHealthCheckInterval)
	}
	for _, p := range c.Providers {
		if p.Enabled && p.TimeoutSecs <= 0 {
			return fmt.Errorf("AIFACADE_PROVIDER_%s_TIMEOUT_SECS must be > 0, got %d", strings.ToUpper(p.Name), p.TimeoutSecs)
		}
		if p.DailyBudget < 0 {
			return fmt.Errorf("AIFACADE_PROVIDER_%s_DAILY_BUDGET_LIMIT must be >= 0, got %f", strings.ToUpper(p.Name), p.DailyBudget)
		}
	}
	return nil
}

// RouterConfig builds a router.Config from the resolved provider list.
func (c Config) RouterConfig() router.Config {
	rc := router.Config{
		DailyBudget:         c.RouterDailyBudget,
		MaxRetries:          c.RouterMaxRetries,
		HealthCheckInterval: c.RouterHealthCheckInterval,
		EnableCostTracking:  c.RouterEnableCostTracking,
		EnableRateLimiting:  c.RouterEnableRateLimiting,
		ProviderLimits:      make(map[string]router.ProviderLimit, len(c.Providers)),
	}
	for _, p := range c.Providers {
		rc.ProviderLimits[strings.ToLower(p.Name)] = router.ProviderLimit{
			RequestLimit:     p.RequestLimit,
			LimitType:        p.LimitType,
			CostPerToken:     p.CostPerToken,
			DailyBudgetLimit: p.DailyBudget,
		}
	}
	return rc
}

// Priorities returns the priority map keyed by provider name, for
// router.New.
func (c Config) Priorities() map[string]int {
	out := make(map[string]int, len(c.Providers))
	for _, p := range c.Providers {
		out[p.Name] = p.Priority
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvStringSlice(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				result = append(result, s)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return def
}
