package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/armbareum-beep/grappl-sub006/internal/bootstrap"
	"github.com/armbareum-beep/grappl-sub006/internal/domain/auth"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "starting grappl session manager",
		"auth_base_url", cfg.Identity.BaseURL,
		"db_host", cfg.Postgres.Host,
		"redis_addr", cfg.Redis.Addr,
		"cache_ttl", cfg.Session.Resolver.CacheTTL,
	)

	db, err := bootstrap.InitDatabase(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := bootstrap.InitRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := redisClient.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close redis failed", "error", cerr)
		}
	}()

	stack, err := bootstrap.BuildSessionStack(bootstrap.StackDeps{
		Config:      &cfg,
		DB:          db,
		RedisClient: redisClient,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	unsubscribe := stack.Manager.Subscribe(func(v auth.View) {
		attrs := []any{"loading", v.Loading, "is_admin", v.IsAdmin,
			"is_creator", v.IsCreator, "is_subscribed", v.IsSubscribed}
		if v.User != nil {
			attrs = append(attrs, "user_id", v.User.ID)
		}
		logger.InfoContext(ctx, "session view changed", attrs...)
	})
	defer unsubscribe()

	stopBridge := stack.Bridge.Start(stack.Provider)
	defer stopBridge()

	stack.Bootstrapper.Run(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.InfoContext(ctx, "shutting down")
	return nil
}
