package ws

import (
	"encoding/json"
	"sync/atomic"

	"chatrelay/internal/metrics"
	"chatrelay/internal/relay"

	"github.com/rs/zerolog/log"
)

// Outbound 是下发给客户端的一帧。
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub 在单个 goroutine 中持有全部连接，负责按 connID 投递或广播。
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	deliver    chan []relay.Emit
	quit       chan struct{}
	done       chan struct{}
	online     int32
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan []relay.Emit, 256),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
				metrics.WsConnections.Dec()
			}
			h.setOnline()
			return
		case c := <-h.register:
			h.clients[c.session.ConnID] = c
			h.setOnline()
			metrics.WsConnections.Inc()
		case c := <-h.unregister:
			if cur, ok := h.clients[c.session.ConnID]; ok && cur == c {
				h.drop(c)
			}
		case emits := <-h.deliver:
			for _, e := range emits {
				h.emit(e)
			}
		}
	}
}

func (h *Hub) emit(e relay.Emit) {
	b, err := json.Marshal(Outbound{Event: e.Event, Data: e.Payload})
	if err != nil {
		log.Error().Err(err).Str("event", e.Event).Msg("encode emit")
		return
	}
	if e.Broadcast {
		for _, c := range h.clients {
			h.push(c, b)
		}
		return
	}
	c, ok := h.clients[e.ConnID]
	if !ok {
		metrics.EmitsDropped.Inc()
		return
	}
	h.push(c, b)
}

// push 不阻塞；发送缓冲已满的慢连接会被直接断开。
func (h *Hub) push(c *Client, b []byte) {
	select {
	case c.send <- b:
	default:
		metrics.EmitsDropped.Inc()
		log.Warn().Str("conn", c.session.ConnID).Msg("send buffer full, dropping connection")
		h.drop(c)
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c.session.ConnID)
	close(c.send)
	h.setOnline()
	metrics.WsConnections.Dec()
}

func (h *Hub) setOnline() {
	atomic.StoreInt32(&h.online, int32(len(h.clients)))
}

// Dispatch 把一次事件处理产生的 emit 交给 run 循环投递。
func (h *Hub) Dispatch(emits []relay.Emit) {
	if len(emits) == 0 {
		return
	}
	select {
	case h.deliver <- emits:
	case <-h.quit:
	}
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// Connections 返回当前连接数，供健康检查复用。
func (h *Hub) Connections() int { return int(atomic.LoadInt32(&h.online)) }

// Stop 关闭所有连接的发送通道并等待 run 循环退出。
func (h *Hub) Stop() {
	select {
	case <-h.quit:
	default:
		close(h.quit)
	}
	<-h.done
}
