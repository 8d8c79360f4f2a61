package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatrelay/internal/crypto"
	"chatrelay/internal/metrics"
	"chatrelay/internal/models"
	"chatrelay/internal/service"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

func (r *Router) login(ctx context.Context, sess *Session, p *Login) ([]Emit, error) {
	if sess.AuthUserID != "" && sess.AuthUserID != p.UserID1 {
		return nil, fmt.Errorf("%w: login as %s does not match token subject", service.ErrValidation, p.UserID1)
	}
	r.presence.SetOnline(p.UserID1, sess.ConnID)
	sess.UserID = p.UserID1
	sess.State = StateIdentified

	emits := []Emit{
		r.onlineBroadcast(),
		ToConn(sess.ConnID, EventChats, r.chats.ChatsFor(ctx, p.UserID1)),
	}
	if p.UserID2 == "" || p.Type == "" {
		return emits, nil
	}
	// 类型非法时只放弃历史记录，在线状态与会话列表照常下发
	if p.Type != models.ChatPrivate && p.Type != models.ChatGroup {
		return emits, fmt.Errorf("%w: unknown chat type %q", service.ErrValidation, p.Type)
	}
	conv, err := r.store.FetchMessagesForPair(ctx, p.UserID1, p.UserID2, p.Type)
	if err != nil {
		return emits, err
	}
	return append(emits, ToConn(sess.ConnID, EventMessages, r.messageViews(conv.Messages))), nil
}

// sendMessage 只接受发往 (userId1, userId2, type) 所解析会话的消息，且发送方必须是会话成员。
func (r *Router) sendMessage(ctx context.Context, sess *Session, p *SendMessage) ([]Emit, error) {
	if p.SenderID != sess.UserID {
		return nil, fmt.Errorf("%w: sender %s is not the session user", service.ErrValidation, p.SenderID)
	}
	target, err := r.store.FindChatByID(ctx, p.ChatID)
	if err != nil {
		return nil, err
	}
	members := target.MemberIDs()
	if !lo.Contains(members, sess.UserID) {
		return nil, fmt.Errorf("%w: %s is not a member of chat %s", service.ErrValidation, sess.UserID, p.ChatID)
	}
	conv, err := r.store.FetchMessagesForPair(ctx, p.UserID1, p.UserID2, p.Type)
	if err != nil {
		return nil, err
	}
	if conv.Chat.ID != target.ID {
		return nil, fmt.Errorf("%w: chat %s does not belong to %s/%s", service.ErrValidation, p.ChatID, p.UserID1, p.UserID2)
	}

	sealed, err := r.cipher.Encrypt(p.Text)
	if err != nil {
		return nil, err
	}
	_, err = r.store.CreateMessage(ctx, service.NewMessage{
		ChatID:      target.ID,
		SenderID:    p.SenderID,
		SenderName:  p.SenderName,
		Text:        sealed.Ciphertext,
		IV:          sealed.IV,
		AuthTag:     sealed.AuthTag,
		IsEncrypted: true,
		ReplyTo:     p.ReplyID,
	})
	if err != nil {
		return nil, err
	}
	metrics.MessagesStored.Inc()

	msgs, err := r.store.ListMessages(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	return r.fanOut(sess, members, EventMessages, r.messageViews(msgs)), nil
}

// deleteMessage 只允许发送方在自己所在的会话中删除自己的消息。
func (r *Router) deleteMessage(ctx context.Context, sess *Session, p *DeleteMessage) ([]Emit, error) {
	conv, err := r.store.FetchMessagesForPair(ctx, p.UserID1, p.UserID2, p.Type)
	if err != nil {
		return nil, err
	}
	if !lo.Contains(conv.Chat.MemberIDs(), sess.UserID) {
		return nil, fmt.Errorf("%w: %s is not a member of chat %s", service.ErrValidation, sess.UserID, conv.Chat.ID)
	}
	msg, ok := lo.Find(conv.Messages, func(m models.Message) bool { return m.ID == p.MessageID })
	if !ok {
		return nil, fmt.Errorf("delete message %s: %w", p.MessageID, service.ErrNotFound)
	}
	if msg.SenderID != sess.UserID {
		return nil, fmt.Errorf("%w: message %s was not sent by %s", service.ErrValidation, msg.ID, sess.UserID)
	}
	if err := r.store.DeleteMessageByID(ctx, msg.ID); err != nil {
		return nil, err
	}
	msgs, err := r.store.ListMessages(ctx, conv.Chat.ID)
	if err != nil {
		return nil, err
	}
	views := r.messageViews(msgs)

	owner, err := r.store.FindChatByID(ctx, p.ChatID)
	if errors.Is(err, service.ErrNotFound) {
		return []Emit{ToConn(sess.ConnID, EventMessages, views)}, nil
	}
	if err != nil {
		return []Emit{ToConn(sess.ConnID, EventMessages, views)}, err
	}
	return r.fanOut(sess, owner.MemberIDs(), EventMessages, views), nil
}

func (r *Router) createGroup(ctx context.Context, sess *Session, p *CreateGroup) ([]Emit, error) {
	if p.CreatorID != sess.UserID {
		return nil, fmt.Errorf("%w: creator %s is not the session user", service.ErrValidation, p.CreatorID)
	}
	group, err := r.store.CreateChat(ctx, service.NewChat{
		Type:      models.ChatGroup,
		Title:     p.Title,
		CreatorID: p.CreatorID,
		Members:   groupMembers(p.CreatorID, p.Members),
	})
	if err != nil {
		return nil, err
	}

	emits := []Emit{ToConn(sess.ConnID, EventChats, r.chats.ChatsFor(ctx, p.CreatorID))}
	for _, id := range group.MemberIDs() {
		if id == p.CreatorID {
			continue
		}
		connID, ok := r.presence.Connection(id)
		if !ok || connID == sess.ConnID {
			continue
		}
		emits = append(emits, ToConn(connID, EventChats, r.chats.ChatsFor(ctx, id)))
	}
	return emits, nil
}

// groupMembers 去重并保持顺序，创建者总在成员中且角色为 creator。
func groupMembers(creatorID string, ids []string) []models.ChatMember {
	if !lo.Contains(ids, creatorID) {
		ids = append([]string{creatorID}, ids...)
	}
	return lo.Map(lo.Uniq(ids), func(id string, _ int) models.ChatMember {
		role := models.RoleMember
		if id == creatorID {
			role = models.RoleCreator
		}
		return models.ChatMember{UserID: id, Role: role}
	})
}

// MessageView 是下发给客户端的已解密消息。
type MessageView struct {
	ID          string    `json:"_id"`
	ChatID      string    `json:"chatId"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName"`
	Text        string    `json:"text"`
	IsEncrypted bool      `json:"isEncrypted"`
	ReplyTo     *string   `json:"replyTo,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// messageViews 解密消息列表；认证失败的消息被丢弃并记录，绝不下发错误明文。
func (r *Router) messageViews(msgs []models.Message) []MessageView {
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		text := m.Text
		if m.IsEncrypted {
			plain, err := r.cipher.Decrypt(crypto.Sealed{Ciphertext: m.Text, IV: m.IV, AuthTag: m.AuthTag})
			if err != nil {
				metrics.EventsTotal.WithLabelValues("decrypt", string(KindCryptoIntegrity)).Inc()
				log.Error().Err(err).Str("message", m.ID).Str("chat", m.ChatID).Msg("drop undecryptable message")
				continue
			}
			text = plain
		}
		out = append(out, MessageView{
			ID:          m.ID,
			ChatID:      m.ChatID,
			SenderID:    m.SenderID,
			SenderName:  m.SenderName,
			Text:        text,
			IsEncrypted: m.IsEncrypted,
			ReplyTo:     m.ReplyTo,
			CreatedAt:   m.CreatedAt,
		})
	}
	return out
}
