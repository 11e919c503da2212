package chat

import (
	"context"
	"net/http"
	"time"

	"PPDirect/logger"
	"PPDirect/module/message"
	"PPDirect/service/chat/wire"
	"PPDirect/tools/errs"
	"PPDirect/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// 单个入站事件的处理预算；不绑定连接生命周期，
// 连接中途断了，已经开始的操作照常跑完。
const opTimeout = 10 * time.Second

// Server 实时网关：认证、注册在线表、逐帧分发。
// 事件在读循环里就地处理，同一连接天然保证按发送顺序执行。
type Server struct {
	mgr         *ConnManager
	msgs        *message.Service
	jwtOpts     security.Options
	authTimeout time.Duration
}

func NewServer(mgr *ConnManager, msgs *message.Service, jwtOpts security.Options, authTimeout time.Duration) *Server {
	if authTimeout <= 0 {
		authTimeout = 30 * time.Second
	}
	return &Server{mgr: mgr, msgs: msgs, jwtOpts: jwtOpts, authTimeout: authTimeout}
}

// HandleWS gin 入口：GET /ws?token=...
func (s *Server) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("ws upgrade failed: %v", err)
		return
	}

	userID, err := s.authenticate(c, conn)
	if err != nil {
		// 认证失败的连接从未进在线表，直接关
		_ = conn.WriteMessage(websocket.TextMessage, wire.ErrorFrame(err))
		_ = conn.Close()
		return
	}

	h := s.mgr.Register(userID, conn)
	defer s.mgr.Unregister(h)
	defer conn.Close()

	_ = h.writeText(wire.Marshal(wire.TypeAuthOK, gin.H{"userId": userID}))
	s.readLoop(h)
}

// authenticate 凭证二选一：URL 的 token 参数，或限时内的首帧 auth 事件
func (s *Server) authenticate(c *gin.Context, conn *websocket.Conn) (string, error) {
	token := c.Query("token")
	if token == "" {
		_ = conn.SetReadDeadline(time.Now().Add(s.authTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return "", errs.ErrTokenInvalid.WrapMsg("auth frame not received", "err", err)
		}
		f, err := wire.Parse(raw)
		if err != nil {
			return "", err
		}
		if f.Type != wire.TypeAuth {
			return "", errs.ErrTokenInvalid.WrapMsg("first frame must be auth", "got", f.Type)
		}
		p, err := wire.Decode[wire.AuthPayload](f)
		if err != nil {
			return "", err
		}
		token = p.Token
	}
	userID, err := security.Resolve(s.jwtOpts, token)
	if err != nil {
		return "", err
	}
	_ = conn.SetReadDeadline(time.Time{})
	return userID, nil
}

func (s *Server) readLoop(h *Handle) {
	for {
		_, raw, err := h.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("ws read loop exit", zap.String("user", h.UserID), zap.Error(err))
			}
			return
		}
		f, err := wire.Parse(raw)
		if err != nil {
			_ = h.writeText(wire.ErrorFrame(err))
			continue
		}
		s.dispatch(h, f)
	}
}

// dispatch 逐帧分发；业务错误只回给发起方，不断连接
func (s *Server) dispatch(h *Handle, f *wire.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch f.Type {
	case wire.TypeSendMessage:
		p, err := wire.Decode[wire.SendMessagePayload](f)
		if err != nil {
			_ = h.writeText(wire.ErrorFrame(err))
			return
		}
		// 成功回执（message-sent）由 Send 内部推给发送方全部在线端
		if _, err := s.msgs.Send(ctx, h.UserID, p.ReceiverID, p.Content); err != nil {
			_ = h.writeText(wire.ErrorFrame(err))
		}

	case wire.TypeTyping:
		p, err := wire.Decode[wire.TypingPayload](f)
		if err != nil {
			return // typing 是尽力而为，坏帧直接丢
		}
		s.msgs.Typing(ctx, h.UserID, p.ReceiverID, p.IsTyping)

	case wire.TypeMarkRead:
		p, err := wire.Decode[wire.MarkReadPayload](f)
		if err != nil {
			_ = h.writeText(wire.ErrorFrame(err))
			return
		}
		if _, err := s.msgs.MarkRead(ctx, p.SenderID, h.UserID); err != nil {
			_ = h.writeText(wire.ErrorFrame(err))
		}

	case wire.TypeQueryPresence:
		p, err := wire.Decode[wire.QueryPresencePayload](f)
		if err != nil {
			_ = h.writeText(wire.ErrorFrame(err))
			return
		}
		online := s.mgr.QueryOnline(p.UserIDs)
		_ = h.writeText(wire.Marshal(wire.TypePresence, wire.PresenceEvent{Online: online}))

	case wire.TypeAuth:
		// 已认证连接重复 auth：忽略

	default:
		_ = h.writeText(wire.ErrorFrame(errs.ErrValidation.WrapMsg("unknown frame type", "type", f.Type)))
	}
}
