package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"svcledger/internal/directory"
	"svcledger/internal/workflow"
)

// OnboardingRequest 引导流程的全部决策
type OnboardingRequest struct {
	FileName     string                       `json:"fileName"`
	IDs          []string                     `json:"ids"`
	SingleRecord bool                         `json:"singleRecord"`
	Team         workflow.TeamDecision        `json:"team"`
	TechService  workflow.TechServiceDecision `json:"techService"`
	Monitoring   workflow.MonitoringDecision  `json:"monitoring"`
	Confirmed    bool                         `json:"confirmed"`
}

// newSession 初始化目录会话；失败时已写入响应
func (h *Handler) newSession(c *gin.Context) (*workflow.Session, bool) {
	if !h.requireDirectory(c) {
		return nil, false
	}
	session, err := workflow.NewSession(c.Request.Context(), h.directory, h.logger)
	if err != nil {
		var initErr *workflow.InitError
		if errors.As(err, &initErr) {
			c.JSON(directoryStatus(err), gin.H{"success": false, "error": initErr.Message()})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		}
		return nil, false
	}
	return session, true
}

// onboardingStart 解析请求、初始化目录会话并走完流程；失败时已写入响应
func (h *Handler) onboardingStart(c *gin.Context) (*OnboardingRequest, workflow.Flow, *workflow.Session, string, bool) {
	var req OnboardingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body: " + err.Error()})
		return nil, workflow.Flow{}, nil, "", false
	}
	fileName, err := h.ledger.ResolveFileName(req.FileName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return nil, workflow.Flow{}, nil, "", false
	}

	session, ok := h.newSession(c)
	if !ok {
		return nil, workflow.Flow{}, nil, "", false
	}

	flow, err := workflow.Complete(req.SingleRecord, req.Team, req.TechService, req.Monitoring, req.Confirmed)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error(), "step": flow.Step, "flow": flow})
		return nil, flow, nil, "", false
	}
	return &req, flow, session, fileName, true
}

// StartOnboarding 初始化目录会话，返回初始流程与团队、服务列表
// POST /api/onboarding/start
func (h *Handler) StartOnboarding(c *gin.Context) {
	var req struct {
		SingleRecord bool `json:"singleRecord"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body: " + err.Error()})
		return
	}

	session, ok := h.newSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"flow":    workflow.NewFlow(req.SingleRecord),
		"catalog": session.Catalog(),
	})
}

func (h *Handler) onboardingFailed(c *gin.Context, fileName string, err error) {
	var apiErr *directory.APIError
	if errors.As(err, &apiErr) {
		h.failDirectory(c, err)
		return
	}
	h.writeFailed(c, fileName, err)
}

// PreviewOnboarding 计算引导流程将写入的字段，不写回
// POST /api/onboarding/preview
func (h *Handler) PreviewOnboarding(c *gin.Context) {
	req, flow, session, fileName, ok := h.onboardingStart(c)
	if !ok {
		return
	}

	res, err := h.ledger.Load(fileName)
	if err != nil {
		h.writeFailed(c, fileName, err)
		return
	}
	names := workflow.TechServiceNames(res.Records, req.IDs)
	patch, err := session.Preview(c.Request.Context(), flow, res.Schema, names...)
	if err != nil {
		h.onboardingFailed(c, fileName, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "flow": flow, "patch": patch})
}

// ApplyOnboarding 将引导流程结果应用到选中的记录并写回
// POST /api/onboarding/apply
func (h *Handler) ApplyOnboarding(c *gin.Context) {
	req, flow, session, fileName, ok := h.onboardingStart(c)
	if !ok {
		return
	}

	result, err := session.Apply(c.Request.Context(), h.ledger, fileName, req.IDs, flow)
	if err != nil {
		h.onboardingFailed(c, fileName, err)
		return
	}
	h.logger.Info("onboarding saved", zap.String("file", fileName), zap.Int("records", len(result.Records)))
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"patch":       result.Patch,
		"data":        result.Records,
		"updatedRows": len(result.Records),
	})
}
