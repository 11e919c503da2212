package message

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"time"

	"PPDirect/logger"
	"PPDirect/module/message/model"
	usermodel "PPDirect/module/user/model"
	"PPDirect/service/chat/wire"
	"PPDirect/tools/errs"
	"PPDirect/tools/oid"
	"PPDirect/tools/safe"
)

// ===== 依赖接口（便于单测注入假实现）=====

// Repo 消息存储
type Repo interface {
	Insert(ctx context.Context, m *model.Message) error
	FindBetween(ctx context.Context, a, b string) ([]model.Message, error)
	FindForUser(ctx context.Context, userID string) ([]model.Message, error)
	MarkRead(ctx context.Context, senderID, receiverID string) (int64, error)
	CountUnread(ctx context.Context, receiverID string) (int64, error)
}

// FollowPredicate 互关判定
type FollowPredicate interface {
	IsMutualFollow(ctx context.Context, a, b string) (bool, error)
}

// SummaryResolver 用户展示摘要
type SummaryResolver interface {
	GetDisplaySummary(ctx context.Context, userID string) usermodel.Summary
}

// Sender 在线推送（网关连接管理器实现；离线用户推不到算正常）
type Sender interface {
	BroadcastUser(userID string, data []byte) bool
}

// Notifier 落库成功后的外部通知（NATS，可为 nil）
type Notifier interface {
	Publish(data []byte)
}

// ===== 重试参数 =====

const (
	readAttempts  = 3 // 读路径总尝试次数
	writeAttempts = 2 // 写路径总尝试次数
	backoffBase   = 100 * time.Millisecond
)

// View 对外消息视图，sender/receiver 已水合为展示摘要
type View struct {
	ID        string            `json:"_id"`
	Sender    usermodel.Summary `json:"sender"`
	Receiver  usermodel.Summary `json:"receiver"`
	Content   string            `json:"content"`
	Read      bool              `json:"read"`
	ReadAt    *time.Time        `json:"readAt,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Service 私信核心编排：校验 -> 互关门禁 -> 落库 -> 水合 -> 推送
type Service struct {
	repo     Repo
	follows  FollowPredicate
	users    SummaryResolver
	sender   Sender
	notifier Notifier
}

func NewService(repo Repo, follows FollowPredicate, users SummaryResolver, sender Sender, notifier Notifier) *Service {
	return &Service{repo: repo, follows: follows, users: users, sender: sender, notifier: notifier}
}

// Send 发送一条私信。
// 互关门禁在落库前检查；任何校验失败都不会产生持久化副作用。
func (s *Service) Send(ctx context.Context, senderID, receiverID, content string) (*View, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errs.ErrMessageEmpty.Wrap()
	}
	if len([]rune(content)) > model.MaxContentLength {
		return nil, errs.ErrMessageTooLong.Wrap()
	}
	senderID = oid.Normalize(senderID)
	receiverID = oid.Normalize(receiverID)
	if senderID == "" || receiverID == "" || senderID == receiverID {
		return nil, errs.ErrValidation.WrapMsg("bad sender/receiver pair")
	}

	mutual, err := s.follows.IsMutualFollow(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if !mutual {
		return nil, errs.ErrNotMutualFollow.Wrap()
	}

	m := &model.Message{
		Sender:   senderID,
		Receiver: receiverID,
		Content:  content,
		Read:     false,
	}
	if err := s.withRetry(ctx, writeAttempts, func() error {
		return s.repo.Insert(ctx, m)
	}); err != nil {
		// 写失败必须如实上抛，调用方知道消息没发出去
		return nil, err
	}

	view := s.hydrate(ctx, m)

	if s.sender != nil {
		s.sender.BroadcastUser(receiverID, wire.Marshal(wire.TypeNewMessage, view))
		s.sender.BroadcastUser(senderID, wire.Marshal(wire.TypeMessageSent, view))
	}
	if s.notifier != nil {
		payload, _ := json.Marshal(view)
		safe.SafeGo(func() { s.notifier.Publish(payload) })
	}
	return view, nil
}

// ListBetween 当前用户与 partner 的完整历史（升序）。
// 返回前把对方发给我的未读标记为已读，并给对方推已读回执；
// 标记失败不影响本次读取结果。
func (s *Service) ListBetween(ctx context.Context, currentUserID, partnerID string) ([]*View, error) {
	currentUserID = oid.Normalize(currentUserID)
	partnerID = oid.Normalize(partnerID)

	var msgs []model.Message
	if err := s.withRetry(ctx, readAttempts, func() error {
		var ferr error
		msgs, ferr = s.repo.FindBetween(ctx, currentUserID, partnerID)
		return ferr
	}); err != nil {
		return nil, err
	}

	if _, err := s.MarkRead(ctx, partnerID, currentUserID); err != nil {
		logger.Warnf("[message] mark read on list failed: %v", err)
	}

	views := make([]*View, 0, len(msgs))
	for i := range msgs {
		m := msgs[i]
		// 列表响应里直接反映刚完成的已读标记
		if m.ReceiverID() == currentUserID && !m.Read {
			now := time.Now()
			m.Read = true
			m.ReadAt = &now
		}
		views = append(views, s.hydrate(ctx, &m))
	}
	return views, nil
}

// MarkRead 把 senderID 发给 readerID 的未读全部置已读；幂等。
// 实际更新到数据时给 sender 的在线连接推 messages-read 回执。
func (s *Service) MarkRead(ctx context.Context, senderID, readerID string) (int64, error) {
	senderID = oid.Normalize(senderID)
	readerID = oid.Normalize(readerID)

	n, err := s.repo.MarkRead(ctx, senderID, readerID)
	if err != nil {
		return 0, err
	}
	if n > 0 && s.sender != nil {
		evt := wire.MessagesReadEvent{ReaderID: readerID, ReadAt: time.Now()}
		s.sender.BroadcastUser(senderID, wire.Marshal(wire.TypeMessagesRead, evt))
	}
	return n, nil
}

// UnreadCount 未读总数
func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.withRetry(ctx, readAttempts, func() error {
		var cerr error
		n, cerr = s.repo.CountUnread(ctx, oid.Normalize(userID))
		return cerr
	})
	return n, err
}

// Typing 输入状态转发：实时复核互关，不满足就静默丢弃，不落库
func (s *Service) Typing(ctx context.Context, senderID, receiverID string, isTyping bool) {
	senderID = oid.Normalize(senderID)
	receiverID = oid.Normalize(receiverID)

	mutual, err := s.follows.IsMutualFollow(ctx, senderID, receiverID)
	if err != nil || !mutual {
		return
	}
	if s.sender != nil {
		evt := wire.TypingEvent{SenderID: senderID, IsTyping: isTyping}
		s.sender.BroadcastUser(receiverID, wire.Marshal(wire.TypeTyping, evt))
	}
}

func (s *Service) hydrate(ctx context.Context, m *model.Message) *View {
	return &View{
		ID:        m.ID.Hex(),
		Sender:    s.users.GetDisplaySummary(ctx, m.SenderID()),
		Receiver:  s.users.GetDisplaySummary(ctx, m.ReceiverID()),
		Content:   m.Content,
		Read:      m.Read,
		ReadAt:    m.ReadAt,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// withRetry 指数退避重试，只对存储不可用类错误重试
func (s *Service) withRetry(ctx context.Context, attempts int, fn func() error) error {
	var last error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			d := backoffBase << (i - 1)
			d += time.Duration(rand.Int63n(int64(backoffBase)))
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return errs.WrapMsg(ctx.Err(), "retry canceled")
			}
		}
		last = fn()
		if last == nil {
			return nil
		}
		if errs.Code(last) != errs.StoreUnavailableCode {
			return last
		}
	}
	return last
}
