package main

import (
	"context"
	"crypto/rsa"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/auth-core/internal/api/http"
	"github.com/spec-kit/auth-core/internal/api/http/handlers"
	"github.com/spec-kit/auth-core/internal/auth"
	"github.com/spec-kit/auth-core/internal/config"
	"github.com/spec-kit/auth-core/internal/events"
	"github.com/spec-kit/auth-core/internal/integration"
	"github.com/spec-kit/auth-core/internal/observability"
	"github.com/spec-kit/auth-core/internal/persistence"
	"github.com/spec-kit/auth-core/internal/repository"
	"github.com/spec-kit/auth-core/internal/service"
	"github.com/spec-kit/auth-core/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	signingKey := loadSigningKey(cfg, logger)
	tokenMgr, err := auth.NewTokenManager(auth.TokenConfig{
		PrivateKey: signingKey,
		KeyID:      cfg.Auth.KeyID,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		AccessTTL:  cfg.Auth.AccessTokenTTL(),
	})
	if err != nil {
		logger.Fatal("failed to init token manager", zap.Error(err))
	}

	pool := pg.PoolHandle()
	subjectRepo, err := repository.NewSubjectRepository(pool)
	if err != nil {
		logger.Fatal("failed to init subject repository", zap.Error(err))
	}
	sessionRepo, err := repository.NewSessionRepository(pool)
	if err != nil {
		logger.Fatal("failed to init session repository", zap.Error(err))
	}
	activeIndex := repository.NewActiveSessionIndex(redis.Client, redis.Prefix)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	worker.StartSessionEventWorker(service.NewSessionEventService(dispatcher, logger, metrics))

	roles := service.NewRoleResolver(rolesProvider(cfg, logger), cfg.Integration.RolesFailOpen, logger)
	claims := service.NewClaimsResolver(subjectRepo, roles)
	sessions := service.NewSessionManager(service.SessionDependencies{
		Sessions:   sessionRepo,
		Index:      activeIndex,
		Tokens:     tokenMgr,
		Claims:     claims,
		Dispatcher: dispatcher,
		Logger:     logger,
		RefreshTTL: cfg.Auth.RefreshTokenTTL(),
	})
	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		Subjects:   subjectRepo,
		Sessions:   sessions,
		Claims:     claims,
		Assertions: assertionVerifier(cfg, logger),
		Profiles:   profileService(cfg, subjectRepo, logger),
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	if cfg.Auth.ServiceToken == "" {
		logger.Warn("AUTH_SERVICE_TOKEN not set, internal endpoints will reject every call")
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Admin:          handlers.NewAdminHandler(authService),
		Customer:       handlers.NewCustomerHandler(authService),
		Token:          handlers.NewTokenHandler(sessions, tokenMgr),
		Internal:       handlers.NewInternalHandler(authService, sessions),
		AuthMiddleware: auth.NewAuthMiddleware(tokenMgr, sessions),
		ServiceToken:   cfg.Auth.ServiceToken,
		Metrics:        metrics,
	})

	sweeper := worker.NewSessionSweeper(sessions, cfg.Session.SweepInterval(), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		return app.Listen(cfg.App.Addr())
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
	}
}

func loadSigningKey(cfg *config.Config, logger *zap.Logger) *rsa.PrivateKey {
	key, err := auth.LoadSigningKey(cfg.Auth.PrivateKeyPEM, cfg.Auth.PrivateKeyPath)
	if err != nil {
		logger.Fatal("failed to load signing key", zap.Error(err))
	}
	if key != nil {
		return key
	}
	if !cfg.App.IsDevelopment() {
		logger.Fatal("AUTH_JWT_PRIVATE_KEY or AUTH_JWT_PRIVATE_KEY_PATH required outside development")
	}
	logger.Warn("no signing key configured, generating an ephemeral key; tokens will not survive a restart")
	key, err = auth.GenerateSigningKey()
	if err != nil {
		logger.Fatal("failed to generate signing key", zap.Error(err))
	}
	return key
}

func assertionVerifier(cfg *config.Config, logger *zap.Logger) integration.AssertionVerifier {
	key, err := integration.LoadAssertionKey(cfg.Identity.PublicKeyPEM, cfg.Identity.PublicKeyPath)
	if err != nil {
		logger.Fatal("failed to load identity provider key", zap.Error(err))
	}
	if key == nil {
		logger.Warn("identity provider key not configured, customer login disabled")
		return integration.DisabledAssertionVerifier{}
	}
	verifier, err := integration.NewJWTAssertionVerifier(integration.JWTAssertionConfig{
		Issuer:   cfg.Identity.Issuer,
		Audience: cfg.Identity.Audience,
		Keys:     map[string]*rsa.PublicKey{cfg.Identity.KeyID: key},
	})
	if err != nil {
		logger.Fatal("failed to init identity verifier", zap.Error(err))
	}
	return verifier
}

func rolesProvider(cfg *config.Config, logger *zap.Logger) integration.RolesProvider {
	if !cfg.Integration.RolesEnabled {
		return nil
	}
	if cfg.Integration.RolesServiceURL == "" {
		logger.Warn("ROLES_SERVICE_ENABLED set without ROLES_SERVICE_URL, roles integration disabled")
		return nil
	}
	return integration.NewRolesClient(cfg.Integration.RolesServiceURL, cfg.Integration.ServiceToken, cfg.Integration.Timeout())
}

func profileService(cfg *config.Config, subjects repository.SubjectRepository, logger *zap.Logger) integration.ProfileService {
	if cfg.Integration.ProfileServiceURL == "" {
		logger.Info("PROFILE_SERVICE_URL not set, using local profile records")
		return integration.NewStandaloneProfiles(subjects)
	}
	return integration.NewProfileClient(cfg.Integration.ProfileServiceURL, cfg.Integration.ServiceToken, cfg.Integration.Timeout())
}
