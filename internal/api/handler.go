package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"svcledger/internal/directory"
	"svcledger/internal/service/store"
	"svcledger/internal/sheet"
	dbstore "svcledger/internal/store"
	"svcledger/internal/workflow"
)

// SaveLogReader 读取写回日志
type SaveLogReader interface {
	LastSaveLog(fileName string) (*dbstore.SaveLogEntry, error)
	ListSaveLogs(limit int) ([]dbstore.SaveLogEntry, error)
}

// Handler API 处理器
type Handler struct {
	ledger    *store.Ledger
	saves     SaveLogReader
	directory directory.Gateway
	logger    *zap.Logger
}

// NewHandler 创建 API 处理器；gw 为 nil 时目录相关接口返回 503
func NewHandler(ledger *store.Ledger, saves SaveLogReader, gw directory.Gateway, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		ledger:    ledger,
		saves:     saves,
		directory: gw,
		logger:    logger.Named("api"),
	}
}

// RegisterRoutes 注册 API 路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	// 系统状态
	router.GET("/status", h.GetStatus)
	router.GET("/saves", h.ListSaves)

	// 记录读写（整表）
	router.GET("/records", h.GetRecords)
	router.POST("/records", h.SaveRecords)
	router.POST("/records/add", h.AddRecord)
	router.POST("/records/retry", h.RetrySave)
	router.PATCH("/records/:id", h.UpdateRecord)
	router.DELETE("/records/:id", h.DeleteRecord)

	// 目录服务
	router.GET("/directory/teams", h.ListTeams)
	router.GET("/directory/services", h.ListServices)
	router.GET("/directory/services/:id", h.GetService)
	router.PUT("/directory/services/:id", h.UpdateService)
	router.GET("/directory/users", h.ListUsers)

	// 引导流程
	router.POST("/onboarding/start", h.StartOnboarding)
	router.POST("/onboarding/preview", h.PreviewOnboarding)
	router.POST("/onboarding/apply", h.ApplyOnboarding)
}

// storageStatus 存储错误对应的 HTTP 状态码
func storageStatus(err error) int {
	switch {
	case errors.Is(err, sheet.ErrNotFound), errors.Is(err, store.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, sheet.ErrEmpty),
		errors.Is(err, store.ErrInvalidFileName),
		errors.Is(err, store.ErrUnknownField),
		errors.Is(err, store.ErrEmptyRecord),
		errors.Is(err, workflow.ErrGuard),
		errors.Is(err, workflow.ErrSelection),
		errors.Is(err, workflow.ErrUnresolved):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// directoryStatus 目录错误对应的 HTTP 状态码
func directoryStatus(err error) int {
	switch {
	case errors.Is(err, directory.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, directory.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, directory.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, directory.ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) failDirectory(c *gin.Context, err error) {
	h.logger.Warn("directory request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(directoryStatus(err), gin.H{"success": false, "error": directory.UserMessage(err)})
}

func (h *Handler) requireDirectory(c *gin.Context) bool {
	if h.directory != nil {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "directory service is not configured"})
	return false
}
