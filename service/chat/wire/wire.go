// Package wire 定义网关双向 JSON 帧：{"type": "...", "payload": {...}}。
// 不同 type 之间不保证相对顺序；同一连接上同 type 的事件按接收顺序处理。
package wire

import (
	"encoding/json"
	"time"

	"PPDirect/tools/errs"
)

// ===== 帧类型 =====

const (
	// 入站（客户端 -> 网关）
	TypeAuth          = "auth"
	TypeSendMessage   = "send-message"
	TypeTyping        = "typing"
	TypeMarkRead      = "mark-read"
	TypeQueryPresence = "query-presence"

	// 出站（网关 -> 客户端）
	TypeAuthOK       = "auth-ok"
	TypeNewMessage   = "new-message"
	TypeMessageSent  = "message-sent"
	TypeMessagesRead = "messages-read"
	TypeUserOnline   = "user-online"
	TypeUserOffline  = "user-offline"
	TypePresence     = "presence"
	TypeError        = "error"
)

type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ===== 入站负载 =====

type AuthPayload struct {
	Token string `json:"token"`
}

type SendMessagePayload struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

type TypingPayload struct {
	ReceiverID string `json:"receiverId"`
	IsTyping   bool   `json:"isTyping"`
}

type MarkReadPayload struct {
	SenderID string `json:"senderId"`
}

type QueryPresencePayload struct {
	UserIDs []string `json:"userIds"`
}

// ===== 出站负载 =====

type TypingEvent struct {
	SenderID string `json:"senderId"`
	IsTyping bool   `json:"isTyping"`
}

type MessagesReadEvent struct {
	ReaderID string    `json:"readerId"`
	ReadAt   time.Time `json:"readAt"`
}

type PresenceEvent struct {
	Online []string `json:"online"`
}

type UserPresenceEvent struct {
	UserID string `json:"userId"`
}

type ErrorEvent struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// ===== 编解码 =====

func Parse(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errs.ErrValidation.WrapMsg("unmarshal frame failed", "err", err)
	}
	if f.Type == "" {
		return nil, errs.ErrValidation.WrapMsg("frame type missing")
	}
	return &f, nil
}

func Decode[T any](f *Frame) (*T, error) {
	var p T
	if len(f.Payload) > 0 {
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return nil, errs.ErrValidation.WrapMsg("unmarshal payload failed", "type", f.Type, "err", err)
		}
	}
	return &p, nil
}

// Marshal 构造一帧；payload 序列化失败属于编程错误，返回空帧兜底
func Marshal(typ string, payload any) []byte {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			b, _ = json.Marshal(ErrorEvent{Code: errs.ServerInternalError, Msg: "encode failed"})
			typ = TypeError
		}
		raw = b
	}
	out, _ := json.Marshal(Frame{Type: typ, Payload: raw})
	return out
}

// ErrorFrame 把 CodeError 映射为出站错误帧
func ErrorFrame(err error) []byte {
	code := errs.Code(err)
	msg := "server internal error"
	if ce, ok := errs.Unwrap(err).(*errs.CodeError); ok {
		msg = ce.Msg
	}
	return Marshal(TypeError, ErrorEvent{Code: code, Msg: msg})
}
