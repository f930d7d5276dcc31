package handlers

import (
	"log/slog"
	"net/http"

	"kidchat/internal/core"
	"kidchat/internal/stubapi/middleware"
	"kidchat/internal/stubapi/state"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles login and password recovery
type AuthHandler struct {
	backend *state.Backend
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(backend *state.Backend, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		backend: backend,
		logger:  logger.With("component", "stub-auth"),
	}
}

type childSummary struct {
	ChildID  int64  `json:"child_id"`
	Username string `json:"username"`
	Fullname string `json:"fullname"`
}

// ChildLogin handles child authentication
// POST /child-login
func (h *AuthHandler) ChildLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidField(c, "body", "username", err.Error())
		return
	}

	token, child, err := h.backend.ChildLogin(req.Username, req.Password)
	if err != nil {
		h.logger.Info("Child login rejected", "username", req.Username, "reason", err)
		writeError(c, h.logger, err)
		return
	}

	resp := gin.H{
		"access_token": token,
		"child_id":     child.ID,
		"username":     child.Username,
		"fullname":     child.Fullname,
	}
	if child.ParentID != 0 {
		resp["parent_id"] = child.ParentID
	}
	c.JSON(http.StatusOK, resp)
}

// ParentLogin handles parent authentication
// POST /parent-login
func (h *AuthHandler) ParentLogin(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidField(c, "body", "email", err.Error())
		return
	}

	token, parent, err := h.backend.ParentLogin(req.Email, req.Password)
	if err != nil {
		h.logger.Info("Parent login rejected", "email", req.Email, "reason", err)
		writeError(c, h.logger, err)
		return
	}

	children := make([]childSummary, 0, len(parent.Children))
	for _, ch := range parent.Children {
		children = append(children, childSummary{
			ChildID:  ch.ID,
			Username: ch.Username,
			Fullname: ch.Fullname,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"parent_id":    parent.ID,
		"email":        parent.Email,
		"username":     parent.Username,
		"fullname":     parent.Fullname,
		"children":     children,
	})
}

// ForgotPasswordChild starts child password recovery
// POST /forgot-password-child
func (h *AuthHandler) ForgotPasswordChild(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidField(c, "body", "username", err.Error())
		return
	}
	if err := h.backend.RequestChildReset(req.Username); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "OTP sent to the parent's email"})
}

// ForgotPasswordParent starts parent password recovery
// POST /forgot-password-parent
func (h *AuthHandler) ForgotPasswordParent(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidField(c, "body", "email", err.Error())
		return
	}
	if err := h.backend.RequestParentReset(req.Email); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "OTP sent to your email"})
}

// VerifyForgotPassword completes recovery
// POST /verify-forgot-password
func (h *AuthHandler) VerifyForgotPassword(c *gin.Context) {
	var req struct {
		Username    string `json:"username"`
		Email       string `json:"email"`
		OTP         string `json:"otp" binding:"required"`
		NewPassword string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidField(c, "body", "otp", err.Error())
		return
	}
	if (req.Username == "") == (req.Email == "") {
		invalidField(c, "body", "username", "exactly one of username or email is required")
		return
	}
	if err := h.backend.VerifyReset(req.Username, req.Email, req.OTP, req.NewPassword); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
}

// ChangeParentPassword changes the authenticated parent's password
// POST /change-parent-password (bearer token required)
func (h *AuthHandler) ChangeParentPassword(c *gin.Context) {
	var req struct {
		ParentID    int64  `json:"parent_id" binding:"required"`
		OldPassword string `json:"old_password" binding:"required"`
		NewPassword string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidField(c, "body", "parent_id", err.Error())
		return
	}

	acc, ok := middleware.Account(c)
	if !ok || acc.Role != core.RoleParent || acc.ID != req.ParentID {
		detail(c, http.StatusForbidden, "Not allowed to change this password")
		return
	}
	if err := h.backend.ChangeParentPassword(req.ParentID, req.OldPassword, req.NewPassword); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully"})
}
