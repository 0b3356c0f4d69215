package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"tudeyarena/scene"
	"tudeyarena/wire"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// ClientConn 一个 WebSocket 客户端连接；作为 scene.Sink 接收场景线程下发的增量
type ClientConn struct {
	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	session ulid.ULID
	log     *zap.SugaredLogger
}

func NewClientConn(ws *websocket.Conn, queue int, log *zap.SugaredLogger) *ClientConn {
	if queue <= 0 {
		queue = 64
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	id := ulid.Make()
	return &ClientConn{
		ws:      ws,
		send:    make(chan []byte, queue),
		done:    make(chan struct{}),
		session: id,
		log:     log.With("session", id.String()),
	}
}

// Session 连接的会话 ID，用于日志关联
func (c *ClientConn) Session() ulid.ULID { return c.session }

// SendDelta 编码并压入发送队列（非阻塞）。队列满或连接已关闭时返回 ErrSendQueueFull，
// 场景不重试，下一次增量会以更早的基准补发。
func (c *ClientConn) SendDelta(d *scene.SceneDelta) error {
	b, err := wire.EncodeDelta(d)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return scene.ErrSendQueueFull
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
		return scene.ErrSendQueueFull
	}
}

// Close 关闭连接并结束写协程；幂等
func (c *ClientConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
		err = c.ws.Close()
	})
	return err
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期发送 ping
func (c *ClientConn) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.Close()
	}()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				c.log.Debugw("write failed", "err", err)
				return
			}
		case <-ping.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端消息并转交场景；退出时请求在场景线程中移除该客户端
func (c *ClientConn) readPump(host *Host, oid int32) {
	defer func() {
		host.RequestLeave(oid)
		_ = c.Close()
	}()
	c.ws.SetReadLimit(1 << 20) // 1MB
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		typ, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Infow("connection lost", "err", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		msg, err := wire.DecodeClient(payload, typ == websocket.TextMessage)
		if err != nil {
			c.log.Debugw("bad client message", "err", err)
			continue
		}
		host.OnMessage(oid, msg)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 演示环境：允许所有来源（生产环境需严格限制）
		return true
	},
}

// HandleWS WebSocket 接入：?scene=arena&player=alice
func (r *Registry) HandleWS(w http.ResponseWriter, req *http.Request) {
	name := req.URL.Query().Get("scene")
	if name == "" {
		name = r.cfg.Server.DefaultScene
	}
	player := req.URL.Query().Get("player")
	if player == "" {
		http.Error(w, "missing player query", http.StatusBadRequest)
		return
	}
	host, err := r.GetOrCreate(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warnw("upgrade error", "err", err)
		return
	}

	client := NewClientConn(ws, r.cfg.Server.SendQueue, host.log)
	oid, err := host.Join(player, client)
	if err != nil {
		client.log.Warnw("join failed", "player", player, "err", err)
		_ = client.Close()
		return
	}
	client.log = client.log.With("client", oid)
	client.log.Infow("websocket connected", "player", player, "remote", req.RemoteAddr)

	go client.writePump()
	go client.readPump(host, oid)
}
