package chat

import (
	"context"

	"chatrelay/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// ListItem 是会话列表中的一项，仅用于展示，不落库。
type ListItem struct {
	ID           string   `json:"_id"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Online       bool     `json:"online"`
	Notification bool     `json:"notification"`
	Members      []string `json:"members,omitempty"`
}

// Source 是聚合会话列表所需的存储读接口。
type Source interface {
	FindUsersExcept(ctx context.Context, id string) ([]models.User, error)
	FindGroupChatsForMember(ctx context.Context, userID string) ([]models.Chat, error)
}

type Aggregator struct {
	src Source
}

func NewAggregator(src Source) *Aggregator {
	return &Aggregator{src: src}
}

// ChatsFor 并发拉取私聊候选与群聊，群聊在前。
// Online 与 Notification 在此视图中恒为 false；存储失败时返回空列表而不是错误。
func (a *Aggregator) ChatsFor(ctx context.Context, userID string) []ListItem {
	var (
		users  []models.User
		groups []models.Chat
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = a.src.FindUsersExcept(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		groups, err = a.src.FindGroupChatsForMember(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Str("user", userID).Msg("load chats")
		return []ListItem{}
	}

	out := make([]ListItem, 0, len(groups)+len(users))
	out = append(out, lo.Map(groups, func(c models.Chat, _ int) ListItem {
		return ListItem{ID: c.ID, Name: c.Title, Type: models.ChatGroup, Members: c.MemberIDs()}
	})...)
	out = append(out, lo.Map(users, func(u models.User, _ int) ListItem {
		return ListItem{ID: u.ID, Name: u.DisplayName(), Type: models.ChatPrivate}
	})...)
	return out
}
