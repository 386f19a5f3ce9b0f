package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/config"
	"storefront/internal/infra/db"
	"storefront/internal/infra/memory"
	infraRepo "storefront/internal/infra/repository"
	repo "storefront/internal/repository"
	"storefront/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.LoadDotEnv(".env", "../.env"); err != nil {
		logger.Error("load .env", "err", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	//Repository生成（postgres / memory）
	var (
		items repo.CollectionRepository
		tx    repo.TransactionManager
	)
	switch cfg.StoreDriver {
	case config.DriverMemory:
		st := memory.NewStore()
		items, tx = st, st
	default:
		gormDB, err := db.Connect()
		if err != nil {
			logger.Error("connect db", "err", err)
			os.Exit(1)
		}
		if err := db.Migrate(gormDB); err != nil {
			logger.Error("migrate", "err", err)
			os.Exit(1)
		}
		items = infraRepo.NewCollectionGormRepository(gormDB)
		tx = infraRepo.NewTxManagerGorm(gormDB)
	}

	e := server.New(logger)
	server.RegisterRoutes(e, cfg, items, tx)

	addr := cfg.Port
	if addr != "" && addr[0] != ':' {
		addr = ":" + addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("server starting", "addr", addr, "driver", cfg.StoreDriver, "env", cfg.GoEnv)
	if err := server.Start(ctx, e, addr); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
