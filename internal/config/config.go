package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

const (
	CacheBolt   = "bolt"
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	APIBaseURL       string     `yaml:"apiBaseURL"`
	LogLevel         string     `yaml:"logLevel"`
	DataDir          string     `yaml:"dataDir"`
	RequestTimeout   string     `yaml:"requestTimeout"`
	NotifyTimeout    string     `yaml:"notifyTimeout"`
	CacheBackend     string     `yaml:"cacheBackend"`
	CacheTTL         string     `yaml:"cacheTTL"`
	RedisAddr        string     `yaml:"redisAddr"`
	RedisPassword    string     `yaml:"redisPassword"`
	SessionChannel   string     `yaml:"sessionChannel"`
	JWKSURL          string     `yaml:"jwksURL"`
	ReportDir        string     `yaml:"reportDir"`
	ArchiveEndpoint  string     `yaml:"archiveEndpoint"`
	ArchiveAccessKey string     `yaml:"archiveAccessKey"`
	ArchiveSecretKey string     `yaml:"archiveSecretKey"`
	ArchiveBucket    string     `yaml:"archiveBucket"`
	ArchiveUseSSL    bool       `yaml:"archiveUseSSL"`
	StubPort         string     `yaml:"stubPort"`
	StubLoginLimit   int        `yaml:"stubLoginLimit"`
	StubTokenTTL     string     `yaml:"stubTokenTTL"`
	StubUsers        []StubUser `yaml:"stubUsers"`
}

// StubUser is an account the local stub backend creates at startup.
type StubUser struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load reads config from path (defaults to config.yaml). A missing file is
// not an error: defaults and environment variables still apply.
func Load(path string) (FileConfig, error) {
	cfg, err := read(path)
	if err != nil {
		return cfg, err
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadStub reads the same file for rfpstub. The backend URL is not needed
// there, so only the stub's own settings are validated.
func LoadStub(path string) (FileConfig, error) {
	cfg, err := read(path)
	if err != nil {
		return cfg, err
	}
	if len(cfg.StubUsers) == 0 {
		cfg.StubUsers = []StubUser{
			{Username: "admin", Email: "admin@rfp.local", Password: "admin1234", Role: "admin"},
			{Username: "reviewer", Email: "reviewer@rfp.local", Password: "review1234", Role: "reviewer"},
		}
	}
	if cfg.StubLoginLimit < 0 {
		return cfg, errors.New("config: stubLoginLimit must not be negative")
	}
	if _, err := ParseDuration(cfg.StubTokenTTL); err != nil {
		return cfg, fmt.Errorf("config: stubTokenTTL: %w", err)
	}
	for _, u := range cfg.StubUsers {
		if strings.TrimSpace(u.Email) == "" || u.Password == "" {
			return cfg, errors.New("config: every stub user needs an email and a password")
		}
	}
	return cfg, nil
}

func read(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString("RFP_API_BASE_URL", &cfg.APIBaseURL)
	setString("RFP_LOG_LEVEL", &cfg.LogLevel)
	setString("RFP_DATA_DIR", &cfg.DataDir)
	setString("RFP_REQUEST_TIMEOUT", &cfg.RequestTimeout)
	setString("RFP_NOTIFY_TIMEOUT", &cfg.NotifyTimeout)
	setString("RFP_CACHE_BACKEND", &cfg.CacheBackend)
	setString("RFP_CACHE_TTL", &cfg.CacheTTL)
	setString("REDIS_ADDR", &cfg.RedisAddr)
	setString("REDIS_PASSWORD", &cfg.RedisPassword)
	setString("RFP_SESSION_CHANNEL", &cfg.SessionChannel)
	setString("RFP_JWKS_URL", &cfg.JWKSURL)
	setString("RFP_REPORT_DIR", &cfg.ReportDir)
	setString("RFP_ARCHIVE_ENDPOINT", &cfg.ArchiveEndpoint)
	setString("RFP_ARCHIVE_ACCESS_KEY", &cfg.ArchiveAccessKey)
	setString("RFP_ARCHIVE_SECRET_KEY", &cfg.ArchiveSecretKey)
	setString("RFP_ARCHIVE_BUCKET", &cfg.ArchiveBucket)
	setString("RFP_STUB_PORT", &cfg.StubPort)
	setString("RFP_STUB_TOKEN_TTL", &cfg.StubTokenTTL)
	if v := os.Getenv("RFP_STUB_LOGIN_LIMIT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.StubLoginLimit = n
		}
	}
	if v := os.Getenv("RFP_ARCHIVE_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.ArchiveUseSSL = b
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DataDir == "" {
		if home, err := os.UserConfigDir(); err == nil {
			cfg.DataDir = filepath.Join(home, "rfpdesk")
		} else {
			cfg.DataDir = ".rfpdesk"
		}
	}
	if cfg.ReportDir == "" {
		cfg.ReportDir = filepath.Join(cfg.DataDir, "reports")
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = CacheBolt
	}
	if cfg.RequestTimeout == "" {
		cfg.RequestTimeout = "30s"
	}
	if cfg.NotifyTimeout == "" {
		cfg.NotifyTimeout = "10s"
	}
	if cfg.SessionChannel == "" {
		cfg.SessionChannel = "rfpdesk:session"
	}
	if cfg.StubPort == "" {
		cfg.StubPort = "8090"
	}
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return errors.New("config: apiBaseURL is required (set in config.yaml or RFP_API_BASE_URL)")
	}
	if !strings.HasPrefix(cfg.APIBaseURL, "http://") && !strings.HasPrefix(cfg.APIBaseURL, "https://") {
		return fmt.Errorf("config: apiBaseURL must be an http(s) URL, got %q", cfg.APIBaseURL)
	}
	switch cfg.CacheBackend {
	case CacheBolt, CacheMemory:
	case CacheRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required when cacheBackend is redis")
		}
	default:
		return fmt.Errorf("config: unknown cacheBackend %q", cfg.CacheBackend)
	}
	for name, value := range map[string]string{
		"requestTimeout": cfg.RequestTimeout,
		"notifyTimeout":  cfg.NotifyTimeout,
		"cacheTTL":       cfg.CacheTTL,
	} {
		if _, err := ParseDuration(value); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	if cfg.ArchiveEndpoint != "" && strings.TrimSpace(cfg.ArchiveBucket) == "" {
		return errors.New("config: archiveBucket is required when archiveEndpoint is set")
	}
	return nil
}

// ParseDuration parses an optional duration string; empty means zero.
func ParseDuration(value string) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", value)
	}
	return d, nil
}

// Durations returns the parsed timeouts. Load has already validated them.
func (c FileConfig) Durations() (request, notify, cacheTTL time.Duration) {
	request, _ = ParseDuration(c.RequestTimeout)
	notify, _ = ParseDuration(c.NotifyTimeout)
	cacheTTL, _ = ParseDuration(c.CacheTTL)
	return request, notify, cacheTTL
}

// ArchiveEnabled reports whether uploads and reports are mirrored.
func (c FileConfig) ArchiveEnabled() bool {
	return strings.TrimSpace(c.ArchiveEndpoint) != ""
}
