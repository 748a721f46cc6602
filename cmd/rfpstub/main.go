package main

import (
	"flag"
	"log"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"rfpdesk/internal/config"
	"rfpdesk/internal/fakeapi"
	"rfpdesk/internal/ratelimit"
	"rfpdesk/internal/util"
	"rfpdesk/pkg/domain"
)

func main() {
	configPath := flag.String("config", config.ConfigPath, "path to config file")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatalf("failed to load .env: %v", err)
	}
	cfg, err := config.LoadStub(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	tokenTTL, err := config.ParseDuration(cfg.StubTokenTTL)
	if err != nil {
		log.Fatalf("failed to parse token TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" && cfg.StubLoginLimit > 0 {
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, ratelimit.DefaultPrefix, cfg.StubLoginLimit, time.Minute)
		if err != nil {
			log.Fatalf("failed to init login limiter: %v", err)
		}
		defer limiter.Close()
	}

	seed := make([]fakeapi.SeedUser, 0, len(cfg.StubUsers))
	for _, u := range cfg.StubUsers {
		seed = append(seed, fakeapi.SeedUser{
			Username: u.Username,
			Email:    u.Email,
			Password: u.Password,
			Role:     domain.UserRole(strings.ToLower(strings.TrimSpace(u.Role))),
		})
	}

	stub, err := fakeapi.New(fakeapi.Config{
		TokenTTL:     tokenTTL,
		LoginLimiter: limiter,
		Seed:         seed,
	})
	if err != nil {
		log.Fatalf("failed to init stub: %v", err)
	}

	addr := ":" + cfg.StubPort
	srv := &http.Server{
		Addr:         addr,
		Handler:      stub.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("stub listening", "addr", addr, "users", len(seed), "login_limit", cfg.StubLoginLimit)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
