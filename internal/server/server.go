package server

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"svcledger/internal/api"
	"svcledger/internal/config"
	"svcledger/internal/directory"
	"svcledger/internal/model"
	"svcledger/internal/service/store"
	dbstore "svcledger/internal/store"
)

// Server HTTP服务器
type Server struct {
	router *gin.Engine
	store  *dbstore.Store
	ledger *store.Ledger
	api    *api.Handler
	logger *zap.Logger
}

// NewServer 创建服务器
func NewServer(cfg *config.AppConfig, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Server.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}

	dataDir, err := config.EnsureDataDir(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}

	// 写回日志
	sqliteStore, err := dbstore.New(filepath.Join(dataDir, "svcledger.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	variant, _, err := model.ParseVariant(cfg.Data.Variant)
	if err != nil {
		_ = sqliteStore.Close()
		return nil, err
	}

	ledger := store.NewLedger(store.LedgerOptions{
		DataDir:     dataDir,
		DefaultFile: cfg.Data.FileName,
		Variant:     variant,
		PersistIDs:  cfg.Data.PersistIDs,
		Retry: store.RetryPolicy{
			MaxAttempts: cfg.Save.MaxAttempts,
			BaseDelay:   cfg.Save.BaseDelay(),
			MaxDelay:    cfg.Save.MaxDelay(),
		},
		Logger:  logger,
		SaveLog: sqliteStore,
	})
	if _, err := ledger.ResolveFileName(cfg.Data.FileName); err != nil {
		_ = sqliteStore.Close()
		return nil, err
	}

	// 未配置 Token 时目录接口不可用
	var gw directory.Gateway
	if cfg.Directory.Token != "" {
		gw = directory.NewClient(directory.ClientOptions{
			BaseURL:    cfg.Directory.BaseURL,
			Token:      cfg.Directory.Token,
			HTTPClient: &http.Client{Timeout: cfg.Directory.Timeout()},
			PageSize:   cfg.Directory.PageSize,
			MaxRetries: cfg.Directory.MaxRetries,
			Logger:     logger,
		})
	} else {
		logger.Warn("directory token not configured, directory routes disabled")
	}

	s := &Server{
		router: gin.New(),
		store:  sqliteStore,
		ledger: ledger,
		api:    api.NewHandler(ledger, sqliteStore, gw, logger),
		logger: logger,
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s, nil
}

// requestLogger 请求日志
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()))
	}
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// CORS
	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	api := s.router.Group("/api")
	{
		s.api.RegisterRoutes(api)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
	})
}

// Watch 监听默认表格文件被外部修改，仅记录告警（后写者覆盖）
func (s *Server) Watch(ctx context.Context) error {
	fs := s.ledger.FileStore(s.ledger.DefaultFile())
	return fs.Watch(ctx, func(ev fsnotify.Event) {
		s.logger.Warn("spreadsheet changed outside this process; the next save overwrites it",
			zap.String("file", ev.Name),
			zap.String("op", ev.Op.String()))
	})
}

// Handler 返回 HTTP 处理器
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close 释放资源
func (s *Server) Close() error {
	return s.store.Close()
}

// RetryPending 退出前重试未写回的数据
func (s *Server) RetryPending(ctx context.Context) error {
	_, err := s.ledger.RetryPending(ctx, s.ledger.DefaultFile())
	return err
}
