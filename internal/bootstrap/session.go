package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/armbareum-beep/grappl-sub006/config"
	"github.com/armbareum-beep/grappl-sub006/internal/adapters/gotrue"
	"github.com/armbareum-beep/grappl-sub006/internal/adapters/keyvalue"
	"github.com/armbareum-beep/grappl-sub006/internal/adapters/postgres"
	"github.com/armbareum-beep/grappl-sub006/internal/adapters/querycache"
	"github.com/armbareum-beep/grappl-sub006/internal/ports"
	"github.com/armbareum-beep/grappl-sub006/internal/service"
)

// SessionStack bundles the assembled session subsystem.
type SessionStack struct {
	Provider     ports.IdentityProvider
	Manager      *service.Manager
	Bootstrapper *service.Bootstrapper
	Bridge       *service.EventBridge
	Recovery     *service.Recovery
	Resolver     *service.Resolver
}

// StackDeps groups the infrastructure the session stack is built on.
type StackDeps struct {
	Config      *config.AppConfig
	DB          *pgxpool.Pool
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// BuildSessionStack wires adapters and services into a runnable session
// subsystem.
func BuildSessionStack(deps StackDeps) (*SessionStack, error) {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	persistent := keyvalue.NewRedis(deps.RedisClient)
	volatile := keyvalue.NewMemory()
	queries := querycache.NewRedis(deps.RedisClient)

	provider, err := gotrue.NewProvider(gotrue.ProviderConfig{
		BaseURL:      cfg.Identity.BaseURL,
		APIKey:       cfg.Identity.APIKey,
		StorageKey:   cfg.Identity.SessionStorageKey(),
		RedirectURL:  cfg.Identity.RedirectURL,
		Store:        persistent,
		VerifyTokens: cfg.Identity.VerifyTokens,
		IssuerURL:    cfg.Identity.IssuerURL,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build identity provider: %w", err)
	}

	cache := service.NewStatusCache(service.StatusCacheOptions{
		Store:  persistent,
		TTL:    cfg.Session.Resolver.CacheTTL,
		Logger: logger,
	})

	resolver := service.NewResolver(service.ResolverOptions{
		Profiles: postgres.NewProfileStore(deps.DB),
		Cache:    cache,
		Config:   cfg.Session.Resolver,
		Logger:   logger,
	})

	recovery := service.NewRecovery(service.RecoveryOptions{
		Provider:   provider,
		Persistent: persistent,
		Volatile:   volatile,
		Queries:    queries,
		Config:     cfg.Session.Recovery,
		Logger:     logger,
	})

	manager := service.NewManager(service.ManagerOptions{
		Resolver: resolver,
		Provider: provider,
		Queries:  queries,
		Logger:   logger,
	})

	bootstrapper := service.NewBootstrapper(service.BootstrapperOptions{
		Provider: provider,
		Manager:  manager,
		Resolver: resolver,
		Recovery: recovery,
		Config:   cfg.Session.Bootstrap,
		Logger:   logger,
	})

	bridge := service.NewEventBridge(service.EventBridgeOptions{
		Manager:  manager,
		Resolver: resolver,
		Queries:  queries,
		Logger:   logger,
	})

	return &SessionStack{
		Provider:     provider,
		Manager:      manager,
		Bootstrapper: bootstrapper,
		Bridge:       bridge,
		Recovery:     recovery,
		Resolver:     resolver,
	}, nil
}
