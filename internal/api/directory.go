package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"svcledger/internal/directory"
)

// ListTeams 目录中的全部团队
// GET /api/directory/teams
func (h *Handler) ListTeams(c *gin.Context) {
	if !h.requireDirectory(c) {
		return
	}
	teams, err := h.directory.Teams(c.Request.Context())
	if err != nil {
		h.failDirectory(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": teams, "total": len(teams)})
}

// ListServices 目录中的全部技术服务
// GET /api/directory/services
func (h *Handler) ListServices(c *gin.Context) {
	if !h.requireDirectory(c) {
		return
	}
	services, err := h.directory.Services(c.Request.Context())
	if err != nil {
		h.failDirectory(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": services, "total": len(services)})
}

// ListUsers 目录中的全部用户
// GET /api/directory/users
func (h *Handler) ListUsers(c *gin.Context) {
	if !h.requireDirectory(c) {
		return
	}
	users, err := h.directory.Users(c.Request.Context())
	if err != nil {
		h.failDirectory(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": users, "total": len(users)})
}

// GetService 单个技术服务
// GET /api/directory/services/:id
func (h *Handler) GetService(c *gin.Context) {
	if !h.requireDirectory(c) {
		return
	}
	svc, err := h.directory.GetService(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.failDirectory(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": svc})
}

// UpdateService 更新技术服务
// PUT /api/directory/services/:id
func (h *Handler) UpdateService(c *gin.Context) {
	if !h.requireDirectory(c) {
		return
	}
	var patch directory.ServicePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body: " + err.Error()})
		return
	}
	svc, err := h.directory.UpdateService(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.failDirectory(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": svc})
}
