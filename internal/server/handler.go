package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"chatrelay/internal/auth"
	"chatrelay/internal/chat"
	"chatrelay/internal/config"
	"chatrelay/internal/models"
	"chatrelay/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type UserStore interface {
	UpsertUser(ctx context.Context, in service.UpsertUserInput) (*models.User, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

type ChatLister interface {
	ChatsFor(ctx context.Context, userID string) []chat.ListItem
}

// Handler 聚合 HTTP handler，依赖注入存储与会话聚合。
// 配置了 JWT 密钥时，upsert 会为用户签发握手用的 access token。
type Handler struct {
	users     UserStore
	chats     ChatLister
	jwtSecret string
	tokenTTL  int
}

func NewHandler(users UserStore, chats ChatLister, cfg config.Config) *Handler {
	return &Handler{users: users, chats: chats, jwtSecret: cfg.JWTSecret, tokenTTL: cfg.AccessTokenTTLMinutes}
}

type userDTO struct {
	ID          string `json:"_id"`
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	Avatar      string `json:"avatar,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

// UpsertUser 按外部 userId 同步用户资料。
func (h *Handler) UpsertUser(c *gin.Context) {
	var req struct {
		Name   string `json:"name"`
		UserID string `json:"userId"`
		Avatar string `json:"avatar"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.Name == "" || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and name are required"})
		return
	}
	if len(req.Name) > 128 || len(req.UserID) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	user, err := h.users.UpsertUser(c.Request.Context(), service.UpsertUserInput{UserID: req.UserID, Name: req.Name, Avatar: req.Avatar})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicate):
			c.JSON(http.StatusConflict, gin.H{"error": "user already exists"})
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": "userId and name are required"})
		default:
			log.Error().Err(err).Str("user_id", req.UserID).Msg("upsert user")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}
	dto := userDTO{ID: user.ID, UserID: user.UserID, Name: user.Name, Avatar: user.Avatar}
	if h.jwtSecret != "" {
		// token 的 subject 是内部 id，与 login 的 userId1 对应
		dto.AccessToken, err = auth.GenerateAccessToken(user.ID, h.jwtSecret, h.tokenTTL)
		if err != nil {
			log.Error().Err(err).Str("user_id", req.UserID).Msg("issue access token")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
	}
	c.JSON(http.StatusOK, dto)
}

// ListChats 返回与 socket 登录时相同的会话列表。
func (h *Handler) ListChats(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if _, err := h.users.FindUserByID(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		log.Error().Err(err).Str("id", id).Msg("find user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": h.chats.ChatsFor(c.Request.Context(), id)})
}
