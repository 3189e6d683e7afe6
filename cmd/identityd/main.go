// Command identityd serves the identity API the authflow flows talk to.
//
//	identityd -config identityd.yaml
//	identityd -dev            # in-process Redis, codes logged instead of mailed
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/authflow/internal/httpapi"
	"github.com/MrEthical07/authflow/internal/identity"
	"github.com/MrEthical07/authflow/internal/logging"
	"github.com/MrEthical07/authflow/jwt"
	"github.com/MrEthical07/authflow/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		dev        = flag.Bool("dev", false, "use an in-process redis and a random signing key")
		addr       = flag.String("addr", "", "listen address; overrides http.addr")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "identityd: %v\n", err)
		os.Exit(2)
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "identityd: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, *dev, logger); err != nil {
		logger.Error("identityd stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config, dev bool, logger *zap.Logger) error {
	rdb, cleanup, err := openRedis(cfg, dev, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	secret := []byte(cfg.JWT.Secret)
	if len(secret) == 0 {
		if !dev {
			return errors.New("jwt.secret or IDENTITYD_JWT_SECRET is required outside -dev")
		}
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return err
		}
		logger.Warn("using a random signing key; tokens die with the process")
	}
	tokens, err := jwt.NewManager(jwtConfig(cfg, secret))
	if err != nil {
		return fmt.Errorf("jwt: %w", err)
	}

	hashCfg := password.DefaultConfig()
	hashCfg.Memory = cfg.Argon2.Memory
	hashCfg.Time = cfg.Argon2.Time
	hashCfg.Parallelism = cfg.Argon2.Parallelism
	hashCfg.MinPasswordBytes = cfg.Identity.MinPasswordLength
	hasher, err := password.NewArgon2(hashCfg)
	if err != nil {
		return fmt.Errorf("argon2: %w", err)
	}

	var mailer identity.Mailer
	if cfg.SMTP.Host == "" {
		logger.Warn("smtp.host not set; verification codes are logged")
		mailer = identity.NewLogMailer(logger)
	} else {
		m, err := identity.NewSMTPMailer(cfg.SMTP)
		if err != nil {
			return fmt.Errorf("smtp: %w", err)
		}
		mailer = m
	}

	svc, err := identity.New(identity.Deps{
		Redis:    rdb,
		Tokens:   tokens,
		Mailer:   mailer,
		Hasher:   hasher,
		Logger:   logger,
		Settings: cfg.Identity,
	})
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := httpapi.NewRouter(httpapi.Options{
		Service: svc,
		Tokens:  tokens,
		Logger:  logger.Named("http"),
		Health: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	})
	if err != nil {
		return err
	}
	if err := router.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}

func openRedis(cfg config, dev bool, logger *zap.Logger) (redis.UniversalClient, func(), error) {
	if dev {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		logger.Info("using miniredis", zap.String("addr", mr.Addr()))
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("using redis", zap.Strings("addrs", cfg.Redis.Addrs))
	return client, func() { _ = client.Close() }, nil
}

// jwtConfig names the signing secret when a key id is configured, so tokens
// signed by a retired secret keep verifying.
func jwtConfig(cfg config, secret []byte) jwt.Config {
	out := jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    secret,
		Issuer:        cfg.JWT.Issuer,
		KeyID:         cfg.JWT.KeyID,
	}
	if cfg.JWT.KeyID != "" {
		out.VerifyKeys = map[string][]byte{cfg.JWT.KeyID: secret}
		for kid, old := range cfg.JWT.RetiredSecrets {
			out.VerifyKeys[kid] = []byte(old)
		}
	}
	return out
}
