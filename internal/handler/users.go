package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/auth"
	"qrattend/internal/identity"
)

type registerRequest struct {
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=6"`
	Role       string `json:"role" binding:"omitempty,oneof=student teacher"`
	StudentID  string `json:"studentId"`
	Department string `json:"department"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func tokenBody(pair auth.TokenPair, u *identity.User) gin.H {
	body := gin.H{
		"token":        pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"expiresAt":    pair.AccessExp.UTC(),
	}
	if u != nil {
		body["user"] = u
	}
	return body
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if !h.bind(c, &req) {
		return
	}
	u, err := h.Users.Register(c.Request.Context(), identity.RegisterInput{
		Name:          req.Name,
		Email:         req.Email,
		Password:      req.Password,
		Role:          req.Role,
		StudentNumber: req.StudentID,
		Department:    req.Department,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	pair, err := h.Tokens.Login(c.Request.Context(), u)
	if err != nil {
		h.respondError(c, err)
		return
	}
	body := tokenBody(pair, u)
	body["message"] = "User registered successfully"
	c.JSON(http.StatusCreated, body)
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if !h.bind(c, &req) {
		return
	}
	u, err := h.Users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	pair, err := h.Tokens.Login(c.Request.Context(), u)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenBody(pair, u))
}

func (h *Handler) refresh(c *gin.Context) {
	var req refreshRequest
	if !h.bind(c, &req) {
		return
	}
	pair, err := h.Tokens.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenBody(pair, nil))
}

func (h *Handler) logout(c *gin.Context) {
	var req refreshRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.Tokens.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *Handler) me(c *gin.Context) {
	u, err := h.Users.Get(c.Request.Context(), actor(c).ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
