package relay

import (
	"encoding/json"
	"fmt"

	"chatrelay/internal/service"

	"github.com/go-playground/validator/v10"
)

// 入站与出站事件名。
const (
	EventLogin         = "login"
	EventSendMessage   = "new message"
	EventDeleteMessage = "delete message"
	EventCreateGroup   = "create group"
	EventDisconnect    = "disconnect"

	EventOnline   = "online"
	EventChats    = "chats"
	EventMessages = "messages"
)

var aliases = map[string]string{
	"logined":        EventLogin,
	"send-message":   EventSendMessage,
	"delete-message": EventDeleteMessage,
	"create-group":   EventCreateGroup,
}

// Canonical 把兼容的旧事件名映射为标准事件名。
func Canonical(event string) string {
	if name, ok := aliases[event]; ok {
		return name
	}
	return event
}

// Inbound 是客户端发来的一帧：事件名加原始 payload。
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Payload 是各事件 payload 的统一标记接口。
type Payload interface {
	EventName() string
}

type Login struct {
	UserID1 string `json:"userId1" validate:"required"`
	UserID2 string `json:"userId2"`
	Type    string `json:"type"`
}

type SendMessage struct {
	Text       string `json:"text" validate:"required"`
	SenderID   string `json:"senderId" validate:"required"`
	SenderName string `json:"senderName"`
	ChatID     string `json:"chatId" validate:"required"`
	ReplyID    string `json:"replyId"`
	UserID1    string `json:"userId1" validate:"required"`
	UserID2    string `json:"userId2" validate:"required"`
	Type       string `json:"type" validate:"required,oneof=private group"`
}

type DeleteMessage struct {
	MessageID string `json:"messageId" validate:"required"`
	ChatID    string `json:"chatId" validate:"required"`
	UserID1   string `json:"userId1" validate:"required"`
	UserID2   string `json:"userId2" validate:"required"`
	Type      string `json:"type" validate:"required,oneof=private group"`
}

type CreateGroup struct {
	Title     string   `json:"title" validate:"required,max=128"`
	Members   []string `json:"members" validate:"required,min=1,dive,required"`
	CreatorID string   `json:"creatorId" validate:"required"`
}

func (*Login) EventName() string { return EventLogin }
func (*SendMessage) EventName() string { return EventSendMessage }
func (*DeleteMessage) EventName() string { return EventDeleteMessage }
func (*CreateGroup) EventName() string { return EventCreateGroup }

var validate = validator.New()

// Decode 解析并校验 payload，格式错误在进入业务逻辑之前即被拒绝。
func Decode(in Inbound) (Payload, error) {
	var p Payload
	switch Canonical(in.Event) {
	case EventLogin:
		p = &Login{}
	case EventSendMessage:
		p = &SendMessage{}
	case EventDeleteMessage:
		p = &DeleteMessage{}
	case EventCreateGroup:
		p = &CreateGroup{}
	default:
		return nil, fmt.Errorf("%w: unknown event %q", service.ErrValidation, in.Event)
	}
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: %s: missing payload", service.ErrValidation, p.EventName())
	}
	if err := json.Unmarshal(in.Data, p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", service.ErrValidation, p.EventName(), err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", service.ErrValidation, p.EventName(), err)
	}
	return p, nil
}
