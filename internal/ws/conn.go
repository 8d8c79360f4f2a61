package ws

import (
	"context"
	"net/http"
	"time"

	"chatrelay/internal/auth"
	"chatrelay/internal/config"
	"chatrelay/internal/metrics"
	"chatrelay/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// Dispatcher 是连接读循环依赖的事件路由。
type Dispatcher interface {
	HandleFrame(ctx context.Context, sess *relay.Session, frame []byte) relay.Result
	Disconnect(sess *relay.Session) relay.Result
}

type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	session *relay.Session
	limiter *rate.Limiter
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve 完成握手并为连接启动读写循环。配置了 JWT 密钥时必须携带有效 token。
func Serve(h *Hub, d Dispatcher, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var subject string
		if cfg.JWTSecret != "" {
			token := auth.TokenFromRequest(c)
			if token == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
				return
			}
			claims, err := auth.ParseAccessToken(token, cfg.JWTSecret)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			subject = claims.Subject
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := &Client{
			hub:     h,
			conn:    conn,
			send:    make(chan []byte, 256),
			session: relay.NewSession(uuid.NewString(), subject),
			limiter: rate.NewLimiter(rate.Limit(cfg.WsEventsPerSecond), cfg.WsEventBurst),
		}
		if !h.join(client) {
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(d, cfg.WsMaxMessageBytes)
	}
}

func (c *Client) readPump(d Dispatcher, maxBytes int64) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.hub.leave(c)
		_ = c.conn.Close()
		c.hub.Dispatch(d.Disconnect(c.session).Emits)
	}()
	c.conn.SetReadLimit(maxBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("conn", c.session.ConnID).Msg("read")
			}
			return
		}
		if !c.limiter.Allow() {
			metrics.EventsTotal.WithLabelValues("throttled", "throttled").Inc()
			continue
		}
		c.hub.Dispatch(d.HandleFrame(ctx, c.session, data).Emits)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
