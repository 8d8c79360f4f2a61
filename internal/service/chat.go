package service

import (
	"context"
	"fmt"

	"chatrelay/internal/models"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// NewChat 描述一次会话创建，成员按给定顺序保存。
type NewChat struct {
	Type      string
	Title     string
	CreatorID string
	Members   []models.ChatMember
}

func orderedMembers(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

// CreateChat 在一个事务内写入会话及其成员。
func (s *Store) CreateChat(ctx context.Context, in NewChat) (*models.Chat, error) {
	if in.Type != models.ChatPrivate && in.Type != models.ChatGroup {
		return nil, fmt.Errorf("create chat: %w: unknown type %q", ErrValidation, in.Type)
	}
	chat := models.Chat{ID: uuid.NewString(), Type: in.Type, Title: in.Title, CreatorID: in.CreatorID}
	for i, m := range in.Members {
		m.ID = 0
		m.ChatID = chat.ID
		m.Position = i
		chat.Members = append(chat.Members, m)
	}
	if err := s.db.WithContext(ctx).Create(&chat).Error; err != nil {
		return nil, translate("create chat", err)
	}
	return &chat, nil
}

func (s *Store) FindChatByID(ctx context.Context, id string) (*models.Chat, error) {
	var chat models.Chat
	err := s.db.WithContext(ctx).Preload("Members", orderedMembers).First(&chat, "id = ?", id).Error
	if err != nil {
		return nil, translate("find chat", err)
	}
	return &chat, nil
}

// FindGroupChatsForMember 返回 userID 所在的全部群聊。
func (s *Store) FindGroupChatsForMember(ctx context.Context, userID string) ([]models.Chat, error) {
	tx := s.db.WithContext(ctx)
	memberOf := tx.Model(&models.ChatMember{}).Select("chat_id").Where("user_id = ?", userID)
	var chats []models.Chat
	err := tx.Preload("Members", orderedMembers).
		Where("type = ? AND id IN (?)", models.ChatGroup, memberOf).
		Order("created_at, id").
		Find(&chats).Error
	if err != nil {
		return nil, translate("find group chats", err)
	}
	return chats, nil
}

// findPrivateChat 查找成员恰好为给定用户的私聊。
func (s *Store) findPrivateChat(ctx context.Context, userIDs []string) (*models.Chat, error) {
	tx := s.db.WithContext(ctx)
	n := len(userIDs)
	exact := tx.Model(&models.ChatMember{}).
		Select("chat_id").
		Group("chat_id").
		Having("COUNT(*) = ? AND SUM(CASE WHEN user_id IN ? THEN 1 ELSE 0 END) = ?", n, userIDs, n)
	var chat models.Chat
	err := tx.Preload("Members", orderedMembers).
		Where("type = ? AND id IN (?)", models.ChatPrivate, exact).
		Order("created_at").
		First(&chat).Error
	if err != nil {
		return nil, translate("find private chat", err)
	}
	return &chat, nil
}

// resolvePrivateChat 返回两人之间的私聊，不存在时创建。
func (s *Store) resolvePrivateChat(ctx context.Context, userID1, userID2 string) (*models.Chat, error) {
	ids := lo.Uniq([]string{userID1, userID2})
	chat, err := s.findPrivateChat(ctx, ids)
	if err == nil {
		return chat, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	members := lo.Map(ids, func(id string, _ int) models.ChatMember {
		return models.ChatMember{UserID: id, Role: models.RoleMember}
	})
	return s.CreateChat(ctx, NewChat{Type: models.ChatPrivate, Members: members})
}
