package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"svcledger/internal/config"
	"svcledger/internal/logging"
	"svcledger/internal/server"
)

var (
	port     = flag.Int("port", 0, "服务端口 (config.toml 优先；仅当未显式配置 port 时生效)")
	devMode  = flag.Bool("dev", false, "开发模式")
	dataDir  = flag.String("dataDir", "", "数据目录 (覆盖配置文件)")
	fileName = flag.String("file", "", "默认表格文件名 (覆盖配置文件)")
)

func main() {
	flag.Parse()

	// 加载配置
	cfg, info, err := config.LoadConfigWithInfo()
	if err != nil {
		log.Printf("加载配置失败，使用默认配置: %v", err)
		cfg = config.DefaultConfig()
		info = config.LoadConfigInfo{}
	}

	// 命令行参数覆盖配置
	if *port > 0 && !info.PortSpecified {
		cfg.Server.Port = *port
	}
	if *devMode {
		cfg.Server.DevMode = true
	}
	if *dataDir != "" {
		cfg.Data.DataDir = *dataDir
	}
	if *fileName != "" {
		cfg.Data.FileName = *fileName
	}

	logger, err := logging.New(cfg.Server.DevMode)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, logger *zap.Logger) error {
	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Data.Watch {
		if err := srv.Watch(ctx); err != nil {
			logger.Warn("file watcher unavailable", zap.Error(err))
		}
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("service listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("dataDir", cfg.Data.DataDir),
			zap.String("file", cfg.Data.FileName))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}

	// 退出前保存
	if err := srv.RetryPending(shutdownCtx); err != nil {
		logger.Error("pending changes could not be saved before exit", zap.Error(err))
	}
	return nil
}
