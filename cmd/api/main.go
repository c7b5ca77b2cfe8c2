package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ln-gateway/config"
	"ln-gateway/internal/api"
	"ln-gateway/internal/database"
	"ln-gateway/internal/gateway"
	"ln-gateway/internal/lnd"
	"ln-gateway/internal/ratelimit"
	"ln-gateway/internal/reconcile"
	"ln-gateway/internal/session"
	"ln-gateway/pkg/cache"
	"ln-gateway/pkg/logger"
	"ln-gateway/pkg/queue"

	"go.uber.org/zap"
)

func main() {
	if err := logger.Init(logger.GetEnv()); err != nil {
		panic(err)
	}
	defer logger.Sync()

	configPath := flag.String("config", "config.toml", "path to config file")
	flag.Parse()

	var cfg config.ApiConfig
	if _, err := os.Stat(*configPath); err == nil {
		if err := config.Load(config.Path(*configPath), &cfg); err != nil {
			logger.Fatal("Failed to load config", zap.String("path", *configPath), zap.Error(err))
		}
	} else if err := config.LoadEnv(&cfg); err != nil {
		logger.Fatal("Failed to load config from environment", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DB:              cfg.Database.DB,
		SslMode:         cfg.Database.SslMode,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	redisCache, err := cache.New(cache.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisCache.Close()

	node, err := lnd.NewClient(lnd.Config{
		GRPCHost:              cfg.Lnd.GRPCHost,
		GRPCPort:              cfg.Lnd.GRPCPort,
		TLSCertPath:           cfg.Lnd.TLSCertPath,
		MacaroonPath:          cfg.Lnd.MacaroonPath,
		Network:               cfg.Lnd.Network,
		PaymentTimeoutSeconds: cfg.Lnd.PaymentTimeoutSeconds,
	})
	if err != nil {
		logger.Fatal("Failed to connect to LND", zap.Error(err))
	}
	defer node.Close()

	withdraws := database.NewWithdrawRepository(db)
	deposits := database.NewDepositRepository(db)
	sessions := session.NewStore(redisCache)
	streamQueue := queue.NewStreamQueue(redisCache.Client())

	limiter := ratelimit.NewLimiter(
		time.Duration(cfg.Lnurl.RateWindowSeconds)*time.Second,
		time.Duration(cfg.Lnurl.RateWindowSeconds)*time.Second,
	)
	go limiter.Sweep(ctx)

	flow := gateway.NewService(gateway.Config{
		Schema:          cfg.Lnurl.Schema,
		Domain:          cfg.Lnurl.Domain,
		MinWithdrawSats: cfg.Lnurl.MinWithdrawSats,
		FeeLimitSats:    cfg.Lnurl.FeeLimitSats,
		MinSendableSats: cfg.Lnurl.MinSendableSats,
		MaxSendableSats: cfg.Lnurl.MaxSendableSats,
		MinDepositSats:  cfg.Lnurl.MinDepositSats,
		ChallengeTTL:    time.Duration(cfg.Lnurl.ChallengeTTLSeconds) * time.Second,
		PendingWindow:   time.Duration(cfg.Lnurl.PendingWindowSeconds) * time.Second,
	}, withdraws, deposits, sessions, node, streamQueue, limiter)

	supervisor := reconcile.NewSupervisor()
	supervisor.Go(ctx, "payment-reconciler", reconcile.NewPaymentReconciler(node, withdraws).Run)
	supervisor.Go(ctx, "deposit-reconciler", reconcile.NewDepositReconciler(node, deposits).Run)
	supervisor.Go(ctx, "pay-dispatcher", gateway.NewDispatcher(streamQueue, node).Run)

	router := api.NewRouter(api.Config{
		Environment:  logger.GetEnv(),
		JWTSecret:    cfg.Auth.JWTSecret,
		JWTAlgorithm: cfg.Auth.JWTAlgorithm,
	}, api.NewHandler(flow, sessions), db, redisCache)
	server := api.NewServer(api.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, router)

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	supervisor.Wait()
	logger.Info("Shutdown complete")
}
