package presence

import (
	"sort"
	"sync"
)

// Registry 维护 userID 与 connID 的双向映射，是“谁在线”的唯一来源。
// 每个方法都在一次加锁内完成，不会在操作中途被其他连接的事件打断。
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]string
	byConn map[string]string
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[string]string), byConn: make(map[string]string)}
}

// SetOnline 记录 userID 的最新连接，覆盖旧连接；若该连接之前登录的是别的用户，也一并移除。
func (r *Registry) SetOnline(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prevConn, ok := r.byUser[userID]; ok {
		delete(r.byConn, prevConn)
	}
	if prevUser, ok := r.byConn[connID]; ok {
		delete(r.byUser, prevUser)
	}
	r.byUser[userID] = connID
	r.byConn[connID] = userID
}

func (r *Registry) Connection(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.byUser[userID]
	return connID, ok
}

// RemoveByConnection 删除该连接对应的在线记录；连接已被新登录顶替时返回 false。
func (r *Registry) RemoveByConnection(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)
	delete(r.byUser, userID)
	return userID, true
}

// OnlineUsers 返回排序后的在线用户列表。
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		out = append(out, userID)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// Clear 用于停服时清空在线表。
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byUser = make(map[string]string)
	r.byConn = make(map[string]string)
}
