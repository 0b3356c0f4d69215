package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tudeyarena/scene"
	"tudeyarena/space"
	"tudeyarena/wire"
)

// Conn 到场景服务器的 WebSocket 连接
type Conn struct {
	ws  *websocket.Conn
	log *zap.SugaredLogger

	wmu       sync.Mutex // gorilla 连接只允许一个并发写者
	closeOnce sync.Once
}

// Dial 连接 url（形如 ws://host/ws?scene=arena&player=alice）
func Dial(ctx context.Context, url string, log *zap.SugaredLogger) (*Conn, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Conn{ws: ws, log: log}, nil
}

// Run 读取下行增量并逐个交给 handle，直到连接关闭或 ctx 取消
func (c *Conn) Run(ctx context.Context, handle func(*scene.SceneDelta)) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()
	for {
		typ, payload, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if typ != websocket.BinaryMessage {
			c.log.Debugw("ignoring non-binary frame", "type", typ)
			continue
		}
		d, err := wire.DecodeDelta(payload)
		if err != nil {
			c.log.Warnw("bad delta", "err", err)
			continue
		}
		handle(d)
	}
}

// SendBatch 发送输入批次
func (c *Conn) SendBatch(b scene.InputFrameBatch) error {
	return c.send(wire.InputMessage(b))
}

// SendInterest 设置显式兴趣区域
func (c *Conn) SendInterest(r space.Rect) error {
	return c.send(wire.InterestMessage(r))
}

func (c *Conn) send(m *wire.ClientMessage) error {
	b, err := wire.EncodeClient(m)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(websocket.BinaryMessage, b)
}

// Close 发送关闭帧并关闭连接；幂等
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.wmu.Unlock()
		err = c.ws.Close()
	})
	return err
}
