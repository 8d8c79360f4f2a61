package service

import (
	"context"
	"errors"
	"fmt"

	"chatrelay/internal/models"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// NewMessage 是已加密消息的写入参数，Text 为密文。
type NewMessage struct {
	ChatID      string
	SenderID    string
	SenderName  string
	Text        string
	IV          string
	AuthTag     string
	IsEncrypted bool
	ReplyTo     string
}

// Conversation 是一对会话参与方的会话记录及其全部消息。
type Conversation struct {
	Chat     models.Chat
	Messages []models.Message
}

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// CreateMessage 保存消息；会话必须存在，ReplyTo 必须指向同一会话内的消息。
func (s *Store) CreateMessage(ctx context.Context, in NewMessage) (*models.Message, error) {
	if in.IsEncrypted && (in.IV == "" || in.AuthTag == "") {
		return nil, fmt.Errorf("create message: %w: iv and auth tag are required", ErrValidation)
	}
	tx := s.db.WithContext(ctx)
	var chats int64
	if err := tx.Model(&models.Chat{}).Where("id = ?", in.ChatID).Count(&chats).Error; err != nil {
		return nil, translate("create message", err)
	}
	if chats == 0 {
		return nil, fmt.Errorf("create message: chat %s: %w", in.ChatID, ErrNotFound)
	}
	msg := models.Message{
		ID:          uuid.NewString(),
		ChatID:      in.ChatID,
		SenderID:    in.SenderID,
		SenderName:  in.SenderName,
		Text:        in.Text,
		IV:          in.IV,
		AuthTag:     in.AuthTag,
		IsEncrypted: in.IsEncrypted,
	}
	if in.ReplyTo != "" {
		var n int64
		if err := tx.Model(&models.Message{}).Where("id = ? AND chat_id = ?", in.ReplyTo, in.ChatID).Count(&n).Error; err != nil {
			return nil, translate("create message", err)
		}
		if n == 0 {
			return nil, fmt.Errorf("create message: %w: reply target %s is not in chat %s", ErrValidation, in.ReplyTo, in.ChatID)
		}
		msg.ReplyTo = lo.ToPtr(in.ReplyTo)
	}
	if err := tx.Create(&msg).Error; err != nil {
		return nil, translate("create message", err)
	}
	return &msg, nil
}

// DeleteMessageByID 删除消息，不存在时返回 ErrNotFound。
func (s *Store) DeleteMessageByID(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.Message{}, "id = ?", id)
	if res.Error != nil {
		return translate("delete message", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete message %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListMessages 按创建顺序返回会话消息。
func (s *Store) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("created_at, id").Find(&msgs).Error
	if err != nil {
		return nil, translate("list messages", err)
	}
	return msgs, nil
}

// FetchMessagesForPair 解析 (userID1, userID2, chatType) 对应的会话并返回其消息。
// 私聊时 userID2 为对方用户；群聊时 userID2 为群 id，且 userID1 必须是成员。
func (s *Store) FetchMessagesForPair(ctx context.Context, userID1, userID2, chatType string) (*Conversation, error) {
	var (
		chat *models.Chat
		err  error
	)
	switch chatType {
	case models.ChatPrivate:
		chat, err = s.resolvePrivateChat(ctx, userID1, userID2)
	case models.ChatGroup:
		chat, err = s.FindChatByID(ctx, userID2)
		if err == nil && (chat.Type != models.ChatGroup || !lo.Contains(chat.MemberIDs(), userID1)) {
			err = fmt.Errorf("group %s for member %s: %w", userID2, userID1, ErrNotFound)
		}
	default:
		err = fmt.Errorf("fetch messages: %w: unknown chat type %q", ErrValidation, chatType)
	}
	if err != nil {
		return nil, err
	}
	msgs, err := s.ListMessages(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	return &Conversation{Chat: *chat, Messages: msgs}, nil
}
