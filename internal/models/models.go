package models

import "time"

const (
	ChatPrivate = "private"
	ChatGroup   = "group"

	RoleCreator = "creator"
	RoleMember  = "member"
)

type User struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"uniqueIndex;size:128;not null"`
	Name      string    `gorm:"size:128"`
	Username  string    `gorm:"size:64"`
	Avatar    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName 优先使用 Name，缺省时退回 Username。
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// Chat 的成员与消息都随会话级联删除；消息只能写入已存在的会话。
type Chat struct {
	ID        string       `gorm:"primaryKey;size:36"`
	Type      string       `gorm:"index;size:16;not null"`
	Title     string       `gorm:"size:128"`
	CreatorID string       `gorm:"size:36"`
	Members   []ChatMember `gorm:"constraint:OnDelete:CASCADE"`
	Messages  []Message    `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MemberIDs 按成员顺序返回 userID。
func (c Chat) MemberIDs() []string {
	out := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		out = append(out, m.UserID)
	}
	return out
}

// ChatMember 的 (chat_id, user_id) 唯一，Position 保留成员顺序。
type ChatMember struct {
	ID       uint   `gorm:"primaryKey"`
	ChatID   string `gorm:"uniqueIndex:idx_member_chat_user;size:36;not null"`
	UserID   string `gorm:"uniqueIndex:idx_member_chat_user;index;size:36;not null"`
	Role     string `gorm:"size:16;not null"`
	Position int    `gorm:"not null"`
}

// Message 的 Text/IV/AuthTag 总是成组写入和读取。
type Message struct {
	ID          string    `gorm:"primaryKey;size:36"`
	ChatID      string    `gorm:"index:idx_msg_chat_id;size:36;not null"`
	SenderID    string    `gorm:"index;size:36;not null"`
	SenderName  string    `gorm:"size:128"`
	Text        string    `gorm:"type:text;not null"`
	IV          string    `gorm:"size:64"`
	AuthTag     string    `gorm:"size:64"`
	IsEncrypted bool      `gorm:"not null;default:false"`
	ReplyTo     *string   `gorm:"size:36"`
	CreatedAt   time.Time
}
