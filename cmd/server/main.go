// Command server runs the authcore HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"authcore/internal/auth"
	"authcore/internal/config"
	"authcore/internal/httpapi"
	"authcore/internal/logging"
	"authcore/internal/ratelimit"
	"authcore/internal/secrets"
	"authcore/internal/store"
	"authcore/internal/token"
	"authcore/internal/twofactor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	// Best effort: a missing .env file just means the environment is
	// already populated.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	hasher, err := secrets.NewHasher(secrets.DefaultHasherConfig())
	if err != nil {
		return err
	}

	issuer, err := token.NewIssuer(token.Config{
		TTL:        cfg.AccessTokenTTL,
		Method:     token.MethodHS256,
		PrivateKey: []byte(cfg.JWTSigningKey),
		Issuer:     cfg.JWTIssuer,
		Leeway:     30 * time.Second,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var throttle auth.LoginThrottle
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer func() { _ = client.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// The throttle fails open at runtime; treat a dead backend
			// at boot the same way.
			log.Warn("redis unreachable, login throttle degraded", zap.Error(err))
		}
		throttle = ratelimit.New(client, ratelimit.Config{
			Limit:  cfg.LoginThrottleLimit,
			Window: cfg.LoginThrottleWindow,
		})
	} else {
		log.Info("no REDIS_ADDR configured, login throttle disabled")
	}

	audit := auth.NewRecorder(st, log, cfg.AuditBufferSize, nil)
	defer audit.Close()

	policy := auth.LockoutPolicy{
		Threshold:    cfg.LockoutThreshold,
		LockDuration: cfg.LockoutDuration,
	}
	svc, err := auth.NewService(auth.ServiceDeps{
		Log:      log,
		Store:    st,
		Hasher:   hasher,
		Verifier: auth.NewCredentialVerifier(st, hasher, policy, nil),
		Ledger:   auth.NewRefreshTokenLedger(st, cfg.RefreshTokenTTL, nil),
		TwoFactor: auth.NewTwoFactorEngine(
			st,
			twofactor.NewManager(twofactor.DefaultConfig(cfg.TwoFactorIssuer)),
			cfg.TwoFactorLockoutAttempts,
			cfg.TwoFactorLockoutDuration,
			nil,
		),
		Issuer:   issuer,
		Audit:    audit,
		Throttle: throttle,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: httpapi.NewRouter(httpapi.RouterConfig{
			Log:            log,
			Service:        svc,
			AccessTokenTTL: cfg.AccessTokenTTL,
			AllowedOrigins: cfg.AllowedOrigins,
			Production:     cfg.Production(),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.ListenAddr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
