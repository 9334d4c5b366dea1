package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"svcledger/internal/calculator"
	"svcledger/internal/model"
	dbstore "svcledger/internal/store"
)

// StatusResponse 系统状态响应
type StatusResponse struct {
	FileName    string                `json:"fileName"`
	Initialized bool                  `json:"initialized"` // 表格文件存在且可读
	Variant     string                `json:"variant"`
	Pending     bool                  `json:"pending"` // 存在写回失败待重试的数据
	Issues      int                   `json:"issues"`
	Summary     calculator.Summary    `json:"summary"`
	LastSave    *dbstore.SaveLogEntry `json:"lastSave"`
	Error       string                `json:"error,omitempty"`
}

// GetStatus 获取系统状态
// GET /api/status?fileName=
func (h *Handler) GetStatus(c *gin.Context) {
	fileName, err := h.ledger.ResolveFileName(c.Query("fileName"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	resp := StatusResponse{FileName: fileName, Summary: calculator.Summary{Indicators: []calculator.Indicator{}}}
	if h.saves != nil {
		last, err := h.saves.LastSaveLog(fileName)
		if err != nil {
			h.logger.Warn("read save log failed", zap.Error(err))
		}
		resp.LastSave = last
	}

	res, err := h.ledger.Load(fileName)
	if err != nil {
		resp.Error = err.Error()
		c.JSON(http.StatusOK, resp)
		return
	}

	resp.Initialized = true
	resp.Variant = string(res.Schema.Variant)
	resp.Pending = res.Pending
	resp.Summary = calculator.Summarize(res.Records, res.Schema)
	resp.Issues = len(model.Validate(res.Records))
	c.JSON(http.StatusOK, resp)
}

// ListSaves 最近的写回日志
// GET /api/saves?limit=
func (h *Handler) ListSaves(c *gin.Context) {
	if h.saves == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "data": []dbstore.SaveLogEntry{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	entries, err := h.saves.ListSaveLogs(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": entries})
}
