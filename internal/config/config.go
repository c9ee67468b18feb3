package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Auth      AuthConfig
	OIDC      OIDCConfig
	RateLimit RateLimitConfig
	Paths     PathsConfig
	Render    RenderConfig
	Dispatch  DispatchConfig
	Sampler   SamplerConfig
	R2        R2Config
	Telemetry TelemetryConfig
	Presets   PresetsConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type AuthConfig struct {
	Enabled bool
}

// OIDCConfig points at an issuer whose JWKS signs bearer tokens. JWKSURL
// skips discovery when set.
type OIDCConfig struct {
	Issuer   string
	ClientID string
	JWKSURL  string
}

type RateLimitConfig struct {
	SubmitPerHour int
}

type PathsConfig struct {
	Repo     string // files served by /media must live below this
	Models   string // checkpoints/, motion/, motion_lora/ and lora/ live here
	Projects string
}

// RenderConfig holds the defaults a request may override.
type RenderConfig struct {
	Context            int
	Overlap            int
	Stride             int
	MaxContext         int // 0 disables the ceiling
	MotionV1MaxContext int
	PromptFixedRatio   float64
	ShortSide          int
	HiResShortSide     int
	OutputCRF          int
}

type DispatchConfig struct {
	Mode  string // "local" runs renders in-process, "asynq" hands them to a worker
	Queue string
}

type SamplerConfig struct {
	ServiceURL   string
	Timeout      time.Duration
	PollInterval time.Duration
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
}

type PresetsConfig struct {
	File string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	bind := map[string]string{
		"server.port":                  "SERVER_PORT",
		"server.env":                   "SERVER_ENV",
		"server.log_level":             "LOG_LEVEL",
		"redis.addr":                   "REDIS_ADDR",
		"redis.password":               "REDIS_PASSWORD",
		"redis.db":                     "REDIS_DB",
		"jwt.secret":                   "JWT_SECRET",
		"auth.enabled":                 "AUTH_ENABLED",
		"oidc.issuer":                  "OIDC_ISSUER",
		"oidc.client_id":               "OIDC_CLIENT_ID",
		"oidc.jwks_url":                "OIDC_JWKS_URL",
		"ratelimit.submit_per_hour":    "RATELIMIT_SUBMIT_PER_HOUR",
		"paths.repo":                   "REPO_DIR",
		"paths.models":                 "MODELS_DIR",
		"paths.projects":               "PROJECTS_DIR",
		"render.context":               "RENDER_CONTEXT",
		"render.overlap":               "RENDER_OVERLAP",
		"render.stride":                "RENDER_STRIDE",
		"render.max_context":           "RENDER_MAX_CONTEXT",
		"render.motion_v1_max_context": "RENDER_MOTION_V1_MAX_CONTEXT",
		"render.prompt_fixed_ratio":    "RENDER_PROMPT_FIXED_RATIO",
		"dispatch.mode":                "DISPATCH_MODE",
		"dispatch.queue":               "DISPATCH_QUEUE",
		"sampler.service_url":          "SAMPLER_SERVICE_URL",
		"sampler.timeout":              "SAMPLER_TIMEOUT",
		"sampler.poll_interval":        "SAMPLER_POLL_INTERVAL",
		"r2.account_id":                "R2_ACCOUNT_ID",
		"r2.access_key_id":             "R2_ACCESS_KEY_ID",
		"r2.secret_access_key":         "R2_SECRET_ACCESS_KEY",
		"r2.bucket_name":               "R2_BUCKET_NAME",
		"r2.public_url":                "R2_PUBLIC_URL",
		"telemetry.enabled":            "TELEMETRY_ENABLED",
		"telemetry.exporter":           "TELEMETRY_EXPORTER",
		"telemetry.endpoint":           "TELEMETRY_ENDPOINT",
		"telemetry.sampling_rate":      "TELEMETRY_SAMPLING_RATE",
		"presets.file":                 "PRESETS_FILE",
	}
	for key, env := range bind {
		_ = v.BindEnv(key, env)
	}

	// Defaults
	v.SetDefault("server.port", "7860")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("ratelimit.submit_per_hour", 60)
	v.SetDefault("paths.repo", ".")
	v.SetDefault("paths.models", "./data/models")
	v.SetDefault("paths.projects", "./data/projects")
	v.SetDefault("render.context", 16)
	v.SetDefault("render.overlap", 4)
	v.SetDefault("render.stride", 0)
	v.SetDefault("render.max_context", 0)
	v.SetDefault("render.motion_v1_max_context", 24)
	v.SetDefault("render.prompt_fixed_ratio", 0.5)
	v.SetDefault("render.short_side", 432)
	v.SetDefault("render.hires_short_side", 768)
	v.SetDefault("render.output_crf", 10)
	v.SetDefault("dispatch.mode", "local")
	v.SetDefault("dispatch.queue", "render")
	v.SetDefault("sampler.timeout", 30*time.Second)
	v.SetDefault("sampler.poll_interval", 2*time.Second)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "grpc")
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			Env:      v.GetString("server.env"),
			LogLevel: v.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
		},
		Auth: AuthConfig{
			Enabled: v.GetBool("auth.enabled"),
		},
		OIDC: OIDCConfig{
			Issuer:   v.GetString("oidc.issuer"),
			ClientID: v.GetString("oidc.client_id"),
			JWKSURL:  v.GetString("oidc.jwks_url"),
		},
		RateLimit: RateLimitConfig{
			SubmitPerHour: v.GetInt("ratelimit.submit_per_hour"),
		},
		Paths: PathsConfig{
			Repo:     v.GetString("paths.repo"),
			Models:   v.GetString("paths.models"),
			Projects: v.GetString("paths.projects"),
		},
		Render: RenderConfig{
			Context:            v.GetInt("render.context"),
			Overlap:            v.GetInt("render.overlap"),
			Stride:             v.GetInt("render.stride"),
			MaxContext:         v.GetInt("render.max_context"),
			MotionV1MaxContext: v.GetInt("render.motion_v1_max_context"),
			PromptFixedRatio:   v.GetFloat64("render.prompt_fixed_ratio"),
			ShortSide:          v.GetInt("render.short_side"),
			HiResShortSide:     v.GetInt("render.hires_short_side"),
			OutputCRF:          v.GetInt("render.output_crf"),
		},
		Dispatch: DispatchConfig{
			Mode:  strings.ToLower(v.GetString("dispatch.mode")),
			Queue: v.GetString("dispatch.queue"),
		},
		Sampler: SamplerConfig{
			ServiceURL:   v.GetString("sampler.service_url"),
			Timeout:      v.GetDuration("sampler.timeout"),
			PollInterval: v.GetDuration("sampler.poll_interval"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      v.GetBool("telemetry.enabled"),
			Exporter:     v.GetString("telemetry.exporter"),
			Endpoint:     v.GetString("telemetry.endpoint"),
			SamplingRate: v.GetFloat64("telemetry.sampling_rate"),
		},
		Presets: PresetsConfig{
			File: v.GetString("presets.file"),
		},
	}

	return cfg, nil
}
