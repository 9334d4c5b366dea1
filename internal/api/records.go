package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"svcledger/internal/model"
	"svcledger/internal/service/store"
	"svcledger/internal/sheet"
)

// GetRecords 读取表格全部记录
// GET /api/records?fileName=
func (h *Handler) GetRecords(c *gin.Context) {
	fileName, err := h.ledger.ResolveFileName(c.Query("fileName"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error(), "data": []any{}})
		return
	}

	res, err := h.ledger.Load(fileName)
	if err != nil {
		status := storageStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("load records failed", zap.String("file", fileName), zap.Error(err))
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error(), "data": []any{}})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"data":      res.Records,
		"totalRows": len(res.Records),
		"variant":   res.Schema.Variant,
		"issues":    model.Validate(res.Records),
		"dropped":   res.Dropped,
		"pending":   res.Pending,
	})
}

// SaveRecordsRequest 整表写回请求
type SaveRecordsRequest struct {
	Data []*model.ServiceRecord `json:"data"`
	// PreserveHeaders 为 true 时按展示表头写成 keyed 形态
	PreserveHeaders bool   `json:"preserveHeaders"`
	FileName        string `json:"fileName"`
}

// SaveRecords 用请求中的记录整表覆盖文件
// POST /api/records
func (h *Handler) SaveRecords(c *gin.Context) {
	var req SaveRecordsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body: " + err.Error()})
		return
	}
	if req.Data == nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "data is required"})
		return
	}
	fileName, err := h.ledger.ResolveFileName(req.FileName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	shape := sheet.ShapePositional
	if req.PreserveHeaders {
		shape = sheet.ShapeKeyed
	}

	n, err := h.ledger.WriteAll(c.Request.Context(), fileName, req.Data, shape)
	if err != nil {
		h.writeFailed(c, fileName, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updatedRows": n})
}

// UpdateRecordRequest 单字段更新
type UpdateRecordRequest struct {
	Field    string `json:"field" binding:"required"`
	Value    string `json:"value"`
	FileName string `json:"fileName"`
}

// UpdateRecord 更新单条记录的一个字段并写回
// PATCH /api/records/:id
func (h *Handler) UpdateRecord(c *gin.Context) {
	var req UpdateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body: " + err.Error()})
		return
	}
	fileName, err := h.ledger.ResolveFileName(req.FileName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	id := c.Param("id")
	var updated *model.ServiceRecord
	_, err = h.ledger.Mutate(c.Request.Context(), fileName, func(ms *store.MemoryStore) error {
		rec, err := ms.UpdateRecord(id, req.Field, req.Value)
		updated = rec
		return err
	})
	if err != nil {
		h.writeFailed(c, fileName, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": updated})
}

// AddRecordRequest 新增记录
type AddRecordRequest struct {
	Fields   map[string]string `json:"fields"`
	FileName string            `json:"fileName"`
}

// AddRecord 追加一条记录并写回
// POST /api/records/add
func (h *Handler) AddRecord(c *gin.Context) {
	var req AddRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body: " + err.Error()})
		return
	}
	fileName, err := h.ledger.ResolveFileName(req.FileName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	var added *model.ServiceRecord
	_, err = h.ledger.Mutate(c.Request.Context(), fileName, func(ms *store.MemoryStore) error {
		rec, err := ms.AddRecord(req.Fields)
		added = rec
		return err
	})
	if err != nil {
		h.writeFailed(c, fileName, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": added})
}

// DeleteRecord 删除记录并写回
// DELETE /api/records/:id?fileName=
func (h *Handler) DeleteRecord(c *gin.Context) {
	fileName, err := h.ledger.ResolveFileName(c.Query("fileName"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	id := c.Param("id")
	ms, err := h.ledger.Mutate(c.Request.Context(), fileName, func(ms *store.MemoryStore) error {
		return ms.DeleteRecord(id)
	})
	if err != nil {
		h.writeFailed(c, fileName, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "totalRows": ms.Count()})
}

// RetrySaveRequest 重试请求
type RetrySaveRequest struct {
	FileName string `json:"fileName"`
}

// RetrySave 重新写回上次失败时保留的数据
// POST /api/records/retry
func (h *Handler) RetrySave(c *gin.Context) {
	var req RetrySaveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body: " + err.Error()})
			return
		}
	}
	fileName, err := h.ledger.ResolveFileName(req.FileName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if !h.ledger.HasPending(fileName) {
		c.JSON(http.StatusOK, gin.H{"success": true, "updatedRows": 0, "pending": false})
		return
	}

	n, err := h.ledger.RetryPending(c.Request.Context(), fileName)
	if err != nil {
		h.writeFailed(c, fileName, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updatedRows": n, "pending": false})
}

// writeFailed 统一的存储错误响应；写回失败时提示可重试
func (h *Handler) writeFailed(c *gin.Context, fileName string, err error) {
	if errors.Is(err, store.ErrWriteFailure) {
		h.logger.Error("save failed, changes kept in memory", zap.String("file", fileName), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":   false,
			"error":     err.Error(),
			"retryable": true,
		})
		return
	}
	status := storageStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("storage request failed", zap.String("file", fileName), zap.Error(err))
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}
