package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
// Load returns it by value; callers treat it as immutable.
type Config struct {
	APIURL        string    `json:"apiUrl"`
	Endpoints     Endpoints `json:"endpoints"`
	Auth          Auth      `json:"auth"`
	Upload        Upload    `json:"upload"`
	Polling       Polling   `json:"polling"`
	Features      Features  `json:"features"`
	Telemetry     Telemetry `json:"telemetry"`
	ServerAddress string    `json:"serverAddress"`
	DatabasePath  string    `json:"databasePath"`
	DatabaseURL   string    `json:"databaseUrl"`
}

// Endpoints are the verification service paths, relative to APIURL
type Endpoints struct {
	Login       string `json:"login"`
	VerifyToken string `json:"verifyToken"`
	Submit      string `json:"submit"`
	Status      string `json:"status"`
}

// Auth configuration
type Auth struct {
	TokenKey           string `json:"tokenKey"`
	JWTExpirationHours int    `json:"jwtExpirationHours"`
	SessionSecret      string `json:"sessionSecret"`
	SecureCookies      bool   `json:"secureCookies"`
}

// Upload limits for the image uploader
type Upload struct {
	MaxImages     int   `json:"maxImages"`
	MaxFileSizeMB int64 `json:"maxFileSizeMB"`
}

// Polling configuration for processing status checks
type Polling struct {
	IntervalMS     int `json:"intervalMs"`
	TimeoutSeconds int `json:"timeoutSeconds"`
}

// Features are deployment-time toggles
type Features struct {
	Debug                   bool `json:"debug"`
	ShowImagePreview        bool `json:"showImagePreview"`
	EnableWarningValidation bool `json:"enableWarningValidation"`
}

// Telemetry configures the OTLP exporters of the portal
type Telemetry struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint"`
	Environment string `json:"environment"`
	ServiceName string `json:"serviceName"`
}

// UsePostgres returns true if PostgreSQL should be used
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// TokenLifetime is how long a token without an exp claim stays usable after issue
func (a Auth) TokenLifetime() time.Duration {
	return time.Duration(a.JWTExpirationHours) * time.Hour
}

// MaxFileSizeBytes returns the upload size ceiling in bytes
func (u Upload) MaxFileSizeBytes() int64 {
	return u.MaxFileSizeMB * 1024 * 1024
}

// Interval returns the poll cadence
func (p Polling) Interval() time.Duration {
	return time.Duration(p.IntervalMS) * time.Millisecond
}

// Timeout returns the elapsed-time ceiling for a processing job
func (p Polling) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// URL joins the API base URL with an endpoint path
func (c *Config) URL(path string) string {
	return strings.TrimRight(c.APIURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// StatusURL returns the processing status URL for a job
func (c *Config) StatusURL(jobID string) string {
	return c.URL(c.Endpoints.Status) + "/" + url.PathEscape(jobID)
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		APIURL: "http://localhost:10000",
		Endpoints: Endpoints{
			Login:       "/login",
			VerifyToken: "/verify-token",
			Submit:      "/submit-product",
			Status:      "/processing-status",
		},
		Auth: Auth{
			TokenKey:           "token",
			JWTExpirationHours: 1,
		},
		Upload: Upload{
			MaxImages:     1,
			MaxFileSizeMB: 5,
		},
		Polling: Polling{
			IntervalMS: 1000,
			// the verification service gives up after roughly a minute
			TimeoutSeconds: 65,
		},
		Features: Features{
			ShowImagePreview:        true,
			EnableWarningValidation: true,
		},
		Telemetry: Telemetry{
			Endpoint:    "localhost:4317",
			Environment: "development",
			ServiceName: "labelscan-portal",
		},
		ServerAddress: ":8080",
		DatabasePath:  "labelscan.db",
	}
}

// Load loads configuration from .env, the config file and the environment
func Load() (Config, error) {
	cfg := Default()

	// A missing .env is normal outside development
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", configPath, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.APIURL, "API_URL")
	setString(&cfg.Endpoints.Login, "LOGIN_ENDPOINT")
	setString(&cfg.Endpoints.VerifyToken, "VERIFY_TOKEN_ENDPOINT")
	setString(&cfg.Endpoints.Submit, "SUBMIT_ENDPOINT")
	setString(&cfg.Endpoints.Status, "STATUS_ENDPOINT")
	setString(&cfg.Auth.TokenKey, "TOKEN_STORAGE_KEY")
	setString(&cfg.Auth.SessionSecret, "SESSION_SECRET")
	setString(&cfg.ServerAddress, "SERVER_ADDRESS")
	setString(&cfg.DatabasePath, "DATABASE_PATH")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Telemetry.Environment, "ENVIRONMENT")
	setString(&cfg.Telemetry.ServiceName, "OTEL_SERVICE_NAME")

	setPositiveInt(&cfg.Auth.JWTExpirationHours, "JWT_EXPIRATION_HOURS")
	setPositiveInt(&cfg.Upload.MaxImages, "MAX_IMAGES")
	setPositiveInt(&cfg.Polling.IntervalMS, "POLL_INTERVAL_MS")
	setPositiveInt(&cfg.Polling.TimeoutSeconds, "POLL_TIMEOUT_SECONDS")
	if v := os.Getenv("MAX_IMAGE_SIZE_MB"); v != "" {
		if mb, err := strconv.ParseInt(v, 10, 64); err == nil && mb > 0 {
			cfg.Upload.MaxFileSizeMB = mb
		}
	}

	setBool(&cfg.Auth.SecureCookies, "SECURE_COOKIES")
	setBool(&cfg.Features.Debug, "DEBUG")
	setBool(&cfg.Telemetry.Enabled, "OTEL_ENABLED")
	setBool(&cfg.Features.ShowImagePreview, "SHOW_IMAGE_PREVIEW")
	setBool(&cfg.Features.EnableWarningValidation, "ENABLE_WARNING_VALIDATION")
}

// Validate rejects configurations the client cannot run with
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid API URL %q", c.APIURL)
	}
	if strings.TrimSpace(c.Auth.TokenKey) == "" {
		return fmt.Errorf("token storage key cannot be empty")
	}
	if c.Upload.MaxImages <= 0 {
		return fmt.Errorf("max images must be positive, got %d", c.Upload.MaxImages)
	}
	if c.Upload.MaxFileSizeMB <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", c.Upload.MaxFileSizeMB)
	}
	if c.Polling.IntervalMS <= 0 || c.Polling.TimeoutSeconds <= 0 {
		return fmt.Errorf("polling interval and timeout must be positive")
	}
	for name, path := range map[string]string{
		"login":        c.Endpoints.Login,
		"verify-token": c.Endpoints.VerifyToken,
		"submit":       c.Endpoints.Submit,
		"status":       c.Endpoints.Status,
	} {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("%s endpoint cannot be empty", name)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setPositiveInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}
