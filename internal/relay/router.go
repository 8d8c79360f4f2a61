package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"chatrelay/internal/chat"
	"chatrelay/internal/crypto"
	"chatrelay/internal/metrics"
	"chatrelay/internal/models"
	"chatrelay/internal/presence"
	"chatrelay/internal/service"

	"github.com/rs/zerolog/log"
)

// Store 是事件路由消费的 ChatStore 契约。
type Store interface {
	chat.Source
	FindChatByID(ctx context.Context, id string) (*models.Chat, error)
	CreateMessage(ctx context.Context, in service.NewMessage) (*models.Message, error)
	ListMessages(ctx context.Context, chatID string) ([]models.Message, error)
	DeleteMessageByID(ctx context.Context, id string) error
	CreateChat(ctx context.Context, in service.NewChat) (*models.Chat, error)
	FetchMessagesForPair(ctx context.Context, userID1, userID2, chatType string) (*service.Conversation, error)
}

// Sealer 是消息正文的加解密契约，由 crypto.Cipher 实现。
type Sealer interface {
	Encrypt(plaintext string) (crypto.Sealed, error)
	Decrypt(s crypto.Sealed) (string, error)
}

// Router 是协议状态机：每个事件名对应一个 handler，handler 以数据形式返回要投递的 emit。
type Router struct {
	store    Store
	cipher   Sealer
	presence *presence.Registry
	chats    *chat.Aggregator
}

func NewRouter(store Store, cipher Sealer, registry *presence.Registry) *Router {
	return &Router{
		store:    store,
		cipher:   cipher,
		presence: registry,
		chats:    chat.NewAggregator(store),
	}
}

// Handle 处理一个入站事件。每个事件都是独立的失败边界：
// 错误与 panic 都在这里被记录，不会影响连接本身或其他连接。
func (r *Router) Handle(ctx context.Context, sess *Session, in Inbound) (res Result) {
	res.Event = Canonical(in.Event)
	defer func() {
		if p := recover(); p != nil {
			res.Emits = nil
			res.Err = fmt.Errorf("panic in %s handler: %v", res.Event, p)
		}
		r.observe(sess, res)
	}()

	if sess.State == StateClosed {
		res.Err = fmt.Errorf("%w: session closed", service.ErrValidation)
		return res
	}
	payload, err := Decode(in)
	if err != nil {
		res.Err = err
		return res
	}
	if _, isLogin := payload.(*Login); !isLogin && sess.State != StateIdentified {
		res.Err = fmt.Errorf("%w: %s before login", service.ErrValidation, res.Event)
		return res
	}

	switch p := payload.(type) {
	case *Login:
		res.Emits, res.Err = r.login(ctx, sess, p)
	case *SendMessage:
		res.Emits, res.Err = r.sendMessage(ctx, sess, p)
	case *DeleteMessage:
		res.Emits, res.Err = r.deleteMessage(ctx, sess, p)
	case *CreateGroup:
		res.Emits, res.Err = r.createGroup(ctx, sess, p)
	}
	return res
}

// Disconnect 移除该连接的在线记录；只有确实移除时才广播在线列表。
func (r *Router) Disconnect(sess *Session) Result {
	res := Result{Event: EventDisconnect}
	sess.State = StateClosed
	if _, ok := r.presence.RemoveByConnection(sess.ConnID); ok {
		res.Emits = []Emit{r.onlineBroadcast()}
	}
	r.observe(sess, res)
	return res
}

func (r *Router) onlineBroadcast() Emit {
	users := r.presence.OnlineUsers()
	metrics.OnlineUsers.Set(float64(len(users)))
	return ToAll(EventOnline, users)
}

// fanOut 先发给发送方，再发给每个在线成员；发送方自己的连接不会收到第二份。
func (r *Router) fanOut(sess *Session, memberIDs []string, event string, payload any) []Emit {
	emits := []Emit{ToConn(sess.ConnID, event, payload)}
	for _, id := range memberIDs {
		connID, ok := r.presence.Connection(id)
		if !ok || connID == sess.ConnID {
			continue
		}
		emits = append(emits, ToConn(connID, event, payload))
	}
	return emits
}

func (r *Router) observe(sess *Session, res Result) {
	kind := res.Kind()
	metrics.EventsTotal.WithLabelValues(res.Event, string(kind)).Inc()
	if res.Err == nil {
		return
	}
	evt := log.Error()
	if kind == KindValidation || kind == KindNotFound {
		evt = log.Warn()
	}
	evt.Err(res.Err).
		Str("conn", sess.ConnID).
		Str("user", sess.UserID).
		Str("event", res.Event).
		Str("kind", string(kind)).
		Msg("relay event failed")
}

// HandleFrame 解析一帧 JSON 信封后交给 Handle；信封本身损坏也按校验错误记录。
func (r *Router) HandleFrame(ctx context.Context, sess *Session, frame []byte) Result {
	var in Inbound
	if err := json.Unmarshal(frame, &in); err != nil {
		res := Result{Event: "invalid", Err: fmt.Errorf("%w: envelope: %v", service.ErrValidation, err)}
		r.observe(sess, res)
		return res
	}
	return r.Handle(ctx, sess, in)
}
