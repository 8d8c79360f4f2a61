package relay

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"chatrelay/internal/models"
	"chatrelay/internal/service"

	"github.com/samber/lo"
)

// memStore is an in-memory Store used by the relay tests.
type memStore struct {
	mu       sync.Mutex
	seq      int
	users    []models.User
	chats    map[string]*models.Chat
	messages []models.Message

	failFetch error
	panicOn   string
}

func newMemStore(userIDs ...string) *memStore {
	s := &memStore{chats: map[string]*models.Chat{}}
	for _, id := range userIDs {
		s.users = append(s.users, models.User{ID: id, Name: "name-" + id})
	}
	return s
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%d", prefix, s.seq)
}

func (s *memStore) FindUsersExcept(_ context.Context, id string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Filter(s.users, func(u models.User, _ int) bool { return u.ID != id }), nil
}

func (s *memStore) FindGroupChatsForMember(_ context.Context, userID string) ([]models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Chat
	for _, c := range s.chats {
		if c.Type == models.ChatGroup && lo.Contains(c.MemberIDs(), userID) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) FindChatByID(_ context.Context, id string) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, fmt.Errorf("find chat: %w", service.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) CreateMessage(_ context.Context, in service.NewMessage) (*models.Message, error) {
	if s.panicOn == "create message" {
		panic("boom")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[in.ChatID]; !ok {
		return nil, fmt.Errorf("create message: chat %s: %w", in.ChatID, service.ErrNotFound)
	}
	m := models.Message{
		ID:          s.nextID("m"),
		ChatID:      in.ChatID,
		SenderID:    in.SenderID,
		SenderName:  in.SenderName,
		Text:        in.Text,
		IV:          in.IV,
		AuthTag:     in.AuthTag,
		IsEncrypted: in.IsEncrypted,
		CreatedAt:   time.Now(),
	}
	if in.ReplyTo != "" {
		m.ReplyTo = lo.ToPtr(in.ReplyTo)
	}
	s.messages = append(s.messages, m)
	return &m, nil
}

func (s *memStore) ListMessages(_ context.Context, chatID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Filter(s.messages, func(m models.Message, _ int) bool { return m.ChatID == chatID }), nil
}

func (s *memStore) DeleteMessageByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.messages {
		if m.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("delete message %s: %w", id, service.ErrNotFound)
}

func (s *memStore) CreateChat(_ context.Context, in service.NewChat) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &models.Chat{ID: s.nextID("c"), Type: in.Type, Title: in.Title, CreatorID: in.CreatorID}
	for i, m := range in.Members {
		m.ChatID = c.ID
		m.Position = i
		c.Members = append(c.Members, m)
	}
	s.chats[c.ID] = c
	cp := *c
	return &cp, nil
}

func (s *memStore) FetchMessagesForPair(ctx context.Context, userID1, userID2, chatType string) (*service.Conversation, error) {
	if s.failFetch != nil {
		return nil, s.failFetch
	}
	var chat *models.Chat
	switch chatType {
	case models.ChatGroup:
		c, err := s.FindChatByID(ctx, userID2)
		if err != nil {
			return nil, err
		}
		chat = c
	default:
		want := lo.Uniq([]string{userID1, userID2})
		s.mu.Lock()
		for _, c := range s.chats {
			ids := c.MemberIDs()
			if c.Type == models.ChatPrivate && len(ids) == len(want) && len(lo.Intersect(ids, want)) == len(want) {
				cp := *c
				chat = &cp
				break
			}
		}
		s.mu.Unlock()
		if chat == nil {
			members := lo.Map(want, func(id string, _ int) models.ChatMember {
				return models.ChatMember{UserID: id, Role: models.RoleMember}
			})
			c, err := s.CreateChat(ctx, service.NewChat{Type: models.ChatPrivate, Members: members})
			if err != nil {
				return nil, err
			}
			chat = c
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := lo.Filter(s.messages, func(m models.Message, _ int) bool { return m.ChatID == chat.ID })
	return &service.Conversation{Chat: *chat, Messages: msgs}, nil
}

func (s *memStore) storedMessages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages...)
}
