package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rfpdesk/internal/assignment"
	"rfpdesk/internal/cache"
	"rfpdesk/internal/config"
	"rfpdesk/internal/session"
	"rfpdesk/internal/storage"
	"rfpdesk/internal/submission"
	"rfpdesk/internal/upload"
	"rfpdesk/internal/usertoken"
	"rfpdesk/internal/util"
	"rfpdesk/internal/versions"
	"rfpdesk/pkg/apiclient"
)

// Config holds runtime configuration for the dashboard core.
type Config struct {
	APIBaseURL     string
	DataDir        string
	ReportDir      string
	RequestTimeout time.Duration
	NotifyTimeout  time.Duration
	CacheBackend   string
	CacheTTL       time.Duration
	RedisAddr      string
	RedisPassword  string
	SessionChannel string
	JWKSURL        string
	Archive        *storage.ArchiveConfig

	// KV and Transport replace the configured backends, mainly in tests.
	KV        cache.KV
	Transport http.RoundTripper
}

// FromFile maps the loaded file configuration onto Config.
func FromFile(fc config.FileConfig) Config {
	request, notify, ttl := fc.Durations()
	cfg := Config{
		APIBaseURL:     fc.APIBaseURL,
		DataDir:        fc.DataDir,
		ReportDir:      fc.ReportDir,
		RequestTimeout: request,
		NotifyTimeout:  notify,
		CacheBackend:   fc.CacheBackend,
		CacheTTL:       ttl,
		RedisAddr:      fc.RedisAddr,
		RedisPassword:  fc.RedisPassword,
		SessionChannel: fc.SessionChannel,
		JWKSURL:        fc.JWKSURL,
	}
	if fc.ArchiveEnabled() {
		cfg.Archive = &storage.ArchiveConfig{
			Endpoint:  fc.ArchiveEndpoint,
			AccessKey: fc.ArchiveAccessKey,
			SecretKey: fc.ArchiveSecretKey,
			Bucket:    fc.ArchiveBucket,
			UseSSL:    fc.ArchiveUseSSL,
		}
	}
	return cfg
}

// App wires the session, the backend client and the dashboard components.
type App struct {
	cfg Config

	cache       *cache.Store
	sessions    *session.Store
	broadcaster *session.RedisBroadcaster
	api         *apiclient.Client
	verifier    *usertoken.Verifier

	assignments *assignment.Synchronizer
	tracker     *submission.Tracker
	versions    *versions.Browser
	uploader    *upload.Uploader
	reports     *storage.ReportStore
	archive     storage.Archive
}

// New opens the local cache and builds every component.
func New(ctx context.Context, cfg Config) (*App, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, errors.New("api base URL is required")
	}
	if cfg.DataDir == "" {
		cfg.DataDir = ".rfpdesk"
	}
	if cfg.ReportDir == "" {
		cfg.ReportDir = filepath.Join(cfg.DataDir, "reports")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	kv, err := openKV(cfg)
	if err != nil {
		return nil, err
	}
	store := cache.New(kv)

	sealer, err := session.LoadOrCreateSealer(filepath.Join(cfg.DataDir, "credentials.key"))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init credential sealer: %w", err)
	}
	opts := []session.Option{session.WithSealer(sealer)}
	var broadcaster *session.RedisBroadcaster
	if cfg.RedisAddr != "" && cfg.SessionChannel != "" {
		broadcaster = session.NewRedisBroadcaster(cfg.RedisAddr, cfg.RedisPassword, cfg.SessionChannel)
		opts = append(opts, session.WithBroadcaster(broadcaster))
	}
	sessions := session.NewStore(store, opts...)

	api := apiclient.NewClient(apiclient.Config{
		BaseURL:   cfg.APIBaseURL,
		Timeout:   cfg.RequestTimeout,
		Tokens:    sessions,
		Transport: util.NewLoggingTransport("rfp-api", cfg.Transport),
	})

	reports, err := storage.NewReportStore(cfg.ReportDir)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var archive storage.Archive
	if cfg.Archive != nil {
		a, err := storage.NewMinioArchive(ctx, *cfg.Archive)
		if err != nil {
			util.LoggerFromContext(ctx).Warn("archive unavailable, mirroring disabled", "endpoint", cfg.Archive.Endpoint, "err", err)
		} else {
			archive = a
		}
	}

	var verifier *usertoken.Verifier
	if cfg.JWKSURL != "" {
		verifier, err = usertoken.NewVerifier(usertoken.Config{
			JWKSURL:    cfg.JWKSURL,
			HTTPClient: &http.Client{Timeout: cfg.RequestTimeout, Transport: util.NewLoggingTransport("rfp-jwks", cfg.Transport)},
		})
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("init token verifier: %w", err)
		}
	}

	browser := versions.NewBrowser(api)
	return &App{
		cfg:         cfg,
		cache:       store,
		sessions:    sessions,
		broadcaster: broadcaster,
		api:         api,
		verifier:    verifier,
		assignments: assignment.NewSynchronizer(api, store, cfg.NotifyTimeout),
		tracker:     submission.NewTracker(api, sessions, store, browser),
		versions:    browser,
		uploader:    upload.NewUploader(api, archive),
		reports:     reports,
		archive:     archive,
	}, nil
}

func openKV(cfg Config) (cache.KV, error) {
	if cfg.KV != nil {
		return cfg.KV, nil
	}
	switch cfg.CacheBackend {
	case config.CacheMemory:
		return cache.NewMemoryKV(), nil
	case config.CacheRedis:
		return cache.NewRedisKV(cfg.RedisAddr, cfg.RedisPassword, cfg.CacheTTL), nil
	case config.CacheBolt, "":
		kv, err := cache.OpenBolt(filepath.Join(cfg.DataDir, "cache.db"))
		if err != nil {
			return nil, err
		}
		return kv, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// Close waits for background notifications and releases the cache.
func (a *App) Close() error {
	a.assignments.Wait()
	var errs []error
	if a.broadcaster != nil {
		errs = append(errs, a.broadcaster.Close())
	}
	errs = append(errs, a.cache.Close())
	return errors.Join(errs...)
}

func (a *App) Sessions() *session.Store { return a.sessions }

func (a *App) Tracker() *submission.Tracker { return a.tracker }

func (a *App) Versions() *versions.Browser { return a.versions }
