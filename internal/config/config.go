package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables (APP_ prefix),
// optionally overlaid on a config.yaml in the working directory.
// See .env.example.
type Config struct {
	AdminUser     string
	AdminPassword string

	DatabaseURL string

	// AutoMigrate applies the embedded SQL migrations at startup.
	AutoMigrate bool

	ListenAddr string

	// IngestSecret guards POST /ingest/bulk. If empty, the endpoint
	// rejects every call.
	IngestSecret string

	// JWTSecret signs and verifies end-user bearer tokens.
	JWTSecret string
	TokenTTL  time.Duration

	// IngestBatchSize is the number of rows per raw-row insert and per
	// canonical upsert statement.
	IngestBatchSize int

	GoogleAds GoogleAdsConfig
	Policy    PolicyConfig
}

// GoogleAdsConfig configures the scheduled API pull.
type GoogleAdsConfig struct {
	DeveloperToken  string
	AccessToken     string
	LoginCustomerID string
	APIBaseURL      string
	APIVersion      string
	CacheTTL        time.Duration
}

// PolicyConfig holds the tunable thresholds used by the KPI read side.
type PolicyConfig struct {
	// A campaign spending at least WastedSpendMinCost while converting at
	// most WastedSpendMaxConversions is flagged as wasted budget.
	WastedSpendMinCost        float64
	WastedSpendMaxConversions float64
}

// Load reads configuration from environment variables and applies
// defaults for anything unset.
func Load() *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("admin_user", "admin")
	v.SetDefault("admin_password", "changeme")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("auto_migrate", true)
	v.SetDefault("token_ttl_hours", 12)
	v.SetDefault("ingest_batch_size", 500)
	v.SetDefault("google_ads.api_base_url", "https://googleads.googleapis.com")
	v.SetDefault("google_ads.api_version", "v17")
	v.SetDefault("google_ads.cache_ttl_minutes", 30)
	v.SetDefault("policy.wasted_spend_min_cost", 50.0)
	v.SetDefault("policy.wasted_spend_max_conversions", 0.0)

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{"database_url", "ingest_secret", "jwt_secret",
		"google_ads.developer_token", "google_ads.access_token", "google_ads.login_customer_id"} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err == nil {
		log.Printf("loaded %s", v.ConfigFileUsed())
	}

	cfg := &Config{
		AdminUser:       v.GetString("admin_user"),
		AdminPassword:   v.GetString("admin_password"),
		DatabaseURL:     v.GetString("database_url"),
		AutoMigrate:     v.GetBool("auto_migrate"),
		ListenAddr:      v.GetString("listen_addr"),
		IngestSecret:    v.GetString("ingest_secret"),
		JWTSecret:       v.GetString("jwt_secret"),
		TokenTTL:        time.Duration(v.GetInt("token_ttl_hours")) * time.Hour,
		IngestBatchSize: v.GetInt("ingest_batch_size"),
		GoogleAds: GoogleAdsConfig{
			DeveloperToken:  v.GetString("google_ads.developer_token"),
			AccessToken:     v.GetString("google_ads.access_token"),
			LoginCustomerID: v.GetString("google_ads.login_customer_id"),
			APIBaseURL:      strings.TrimRight(v.GetString("google_ads.api_base_url"), "/"),
			APIVersion:      v.GetString("google_ads.api_version"),
			CacheTTL:        time.Duration(v.GetInt("google_ads.cache_ttl_minutes")) * time.Minute,
		},
		Policy: PolicyConfig{
			WastedSpendMinCost:        v.GetFloat64("policy.wasted_spend_min_cost"),
			WastedSpendMaxConversions: v.GetFloat64("policy.wasted_spend_max_conversions"),
		},
	}

	if cfg.IngestBatchSize <= 0 {
		cfg.IngestBatchSize = 500
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 12 * time.Hour
	}

	return cfg
}
