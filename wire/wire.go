// Package wire 定义客户端与服务端之间的消息编码。
// 下行 SceneDelta 固定使用 msgpack 二进制；上行 ClientMessage 接受
// msgpack 二进制帧或 JSON 文本帧。
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"tudeyarena/scene"
	"tudeyarena/space"
)

var (
	ErrUnknownKind = errors.New("wire: unknown client message kind")
	ErrMissingBody = errors.New("wire: client message body missing")
	ErrNonFinite   = errors.New("wire: non-finite coordinate")
)

// Kind 上行消息类型
type Kind uint8

const (
	KindInput    Kind = 1 // 输入帧批次
	KindInterest Kind = 2 // 显式设置兴趣区域
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindInterest:
		return "interest"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ClientMessage 客户端上行消息
type ClientMessage struct {
	_msgpack struct{} `msgpack:",as_array"`

	Kind     Kind                   `json:"kind"`
	Batch    *scene.InputFrameBatch `json:"batch,omitempty"`
	Interest *space.Rect            `json:"interest,omitempty"`
}

// Validate 检查消息类型与对应载荷
func (m *ClientMessage) Validate() error {
	switch m.Kind {
	case KindInput:
		if m.Batch == nil {
			return fmt.Errorf("%s: %w", m.Kind, ErrMissingBody)
		}
		for _, f := range m.Batch.Frames {
			if f.Aim != nil && !f.Aim.Finite() {
				return fmt.Errorf("input frame %d aim: %w", f.Timestamp, ErrNonFinite)
			}
		}
	case KindInterest:
		if m.Interest == nil {
			return fmt.Errorf("%s: %w", m.Kind, ErrMissingBody)
		}
		if !m.Interest.Finite() {
			return fmt.Errorf("interest: %w", ErrNonFinite)
		}
		if m.Interest.Empty() {
			return fmt.Errorf("interest: empty rect %+v", *m.Interest)
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownKind, uint8(m.Kind))
	}
	return nil
}

// InputMessage 包装一个输入批次
func InputMessage(b scene.InputFrameBatch) *ClientMessage {
	return &ClientMessage{Kind: KindInput, Batch: &b}
}

// InterestMessage 包装一个兴趣区域
func InterestMessage(r space.Rect) *ClientMessage {
	return &ClientMessage{Kind: KindInterest, Interest: &r}
}

// EncodeDelta 将增量编码为 msgpack
func EncodeDelta(d *scene.SceneDelta) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.Reset(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encode delta: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeDelta 解码 msgpack 增量
func DecodeDelta(b []byte) (*scene.SceneDelta, error) {
	var d scene.SceneDelta
	if err := msgpack.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decode delta: %w", err)
	}
	return &d, nil
}

// EncodeClient 将上行消息编码为 msgpack
func EncodeClient(m *ClientMessage) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	b, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode client message: %w", err)
	}
	return b, nil
}

// EncodeClientText 将上行消息编码为 JSON 文本
func EncodeClientText(m *ClientMessage) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// DecodeClient 解码上行消息；text 为 true 时按 JSON 解析
func DecodeClient(b []byte, text bool) (*ClientMessage, error) {
	var m ClientMessage
	var err error
	if text {
		err = json.Unmarshal(b, &m)
	} else {
		err = msgpack.Unmarshal(b, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("decode client message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
