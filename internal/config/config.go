package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Storage   StorageConfig
	Tracing   TracingConfig `mapstructure:"tracing"`
	Redis     RedisConfig
	Engine    EngineConfig    `mapstructure:"engine"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	BaseURL       string `mapstructure:"base_url"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// TrustFactorConfig is one weighted factor of the trust aggregate.
type TrustFactorConfig struct {
	Name   string  `mapstructure:"name"`
	Weight float64 `mapstructure:"weight"`
}

// TrustLevelThresholds are configuration, not logic: a score below Building
// maps to the building level, below Developing to developing, below
// Established to established, otherwise verified.
type TrustLevelThresholds struct {
	Building    int `mapstructure:"building"`
	Developing  int `mapstructure:"developing"`
	Established int `mapstructure:"established"`
}

type ImprovementPathConfig struct {
	Action          string `mapstructure:"action"`
	ProjectedImpact int    `mapstructure:"projected_impact"`
	Description     string `mapstructure:"description"`
}

type EngineConfig struct {
	MinimumPatternThreshold int                     `mapstructure:"minimum_pattern_threshold"`
	AppealWindowHours       int                     `mapstructure:"appeal_window_hours"`
	ExplanationWindowHours  int                     `mapstructure:"explanation_window_hours"`
	DefenseBudgetMinutes    int                     `mapstructure:"defense_budget_minutes"`
	ReceiptBaseURL          string                  `mapstructure:"receipt_base_url"`
	TrustFactors            []TrustFactorConfig     `mapstructure:"trust_factors"`
	LevelThresholds         TrustLevelThresholds    `mapstructure:"level_thresholds"`
	ImprovementPaths        []ImprovementPathConfig `mapstructure:"improvement_paths"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("PROOFLY")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Storage
	viper.BindEnv("storage.type", "STORAGE_TYPE")
	viper.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	applyEngineDefaults(&cfg.Engine)

	if err := validateEngine(&cfg.Engine); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func applyEngineDefaults(e *EngineConfig) {
	if e.MinimumPatternThreshold == 0 {
		e.MinimumPatternThreshold = 3
	}
	if e.AppealWindowHours == 0 {
		e.AppealWindowHours = 48
	}
	if e.ExplanationWindowHours == 0 {
		e.ExplanationWindowHours = 72
	}
	if e.DefenseBudgetMinutes == 0 {
		e.DefenseBudgetMinutes = 30
	}
	if e.LevelThresholds == (TrustLevelThresholds{}) {
		e.LevelThresholds = TrustLevelThresholds{Building: 40, Developing: 65, Established: 85}
	}
	if len(e.TrustFactors) == 0 {
		e.TrustFactors = []TrustFactorConfig{
			{Name: "code_quality", Weight: 0.30},
			{Name: "consistent_verification", Weight: 0.25},
			{Name: "explanation_clarity", Weight: 0.20},
			{Name: "defense_performance", Weight: 0.15},
			{Name: "peer_reviews", Weight: 0.10},
		}
	}
}

const weightTolerance = 1e-6

func validateEngine(e *EngineConfig) error {
	sum := 0.0
	for _, f := range e.TrustFactors {
		if f.Weight < 0 {
			return fmt.Errorf("trust factor %q has negative weight", f.Name)
		}
		sum += f.Weight
	}
	if sum < 1-weightTolerance || sum > 1+weightTolerance {
		return fmt.Errorf("trust factor weights sum to %.6f, expected 1.0", sum)
	}
	if e.LevelThresholds.Building >= e.LevelThresholds.Developing ||
		e.LevelThresholds.Developing >= e.LevelThresholds.Established {
		return fmt.Errorf("trust level thresholds must be strictly increasing")
	}
	return nil
}
