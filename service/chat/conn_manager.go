package chat

import (
	"context"
	"sync"
	"time"

	"PPDirect/logger"
	"PPDirect/service/chat/wire"
	"PPDirect/tools/ids"
	"PPDirect/tools/safe"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ===== 数据结构 =====

// Handle 一条已认证的 WS 连接。
// gorilla 的 Conn 不允许并发写，所有出站写都要拿 wmu。
type Handle struct {
	SnowID    string
	UserID    string
	Conn      *websocket.Conn
	CreatedAt time.Time

	wmu sync.Mutex
}

const writeDeadline = 5 * time.Second

func (h *Handle) writeText(data []byte) error {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	if err := h.Conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		return err
	}
	return h.Conn.WriteMessage(websocket.TextMessage, data)
}

// MutualResolver 在线状态广播的受众来源：只通知互关好友
type MutualResolver interface {
	MutualFollowsOf(ctx context.Context, userID string) ([]string, error)
}

// ConnManager 进程内在线表：userID -> (snowID -> Handle)。
// 完全易失，进程重启即清零；没有任何持久化副本。
type ConnManager struct {
	mu     sync.RWMutex
	byUser map[string]map[string]*Handle
	bySnow map[string]*Handle

	mutual MutualResolver // 可为 nil（单测/降级时不广播）
}

func NewConnManager(mutual MutualResolver) *ConnManager {
	return &ConnManager{
		byUser: make(map[string]map[string]*Handle),
		bySnow: make(map[string]*Handle),
		mutual: mutual,
	}
}

// ===== 注册/注销 =====

// Register 登记一条已认证连接；同一用户可多端并存。
// 0 -> 1 条连接的跳变触发 user-online 广播（尽力而为）。
func (m *ConnManager) Register(userID string, conn *websocket.Conn) *Handle {
	h := &Handle{
		SnowID:    ids.GenerateString(),
		UserID:    userID,
		Conn:      conn,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	set := m.byUser[userID]
	wasOffline := len(set) == 0
	if set == nil {
		set = make(map[string]*Handle)
		m.byUser[userID] = set
	}
	set[h.SnowID] = h
	m.bySnow[h.SnowID] = h
	total := len(set)
	m.mu.Unlock()

	logger.Info("ws connected", zap.String("user", userID), zap.String("conn", h.SnowID), zap.Int("conns", total))
	if wasOffline {
		m.broadcastTransition(userID, wire.TypeUserOnline)
	}
	return h
}

// Unregister 注销连接，幂等；最后一条连接断开触发 user-offline 广播
func (m *ConnManager) Unregister(h *Handle) {
	if h == nil {
		return
	}
	m.mu.Lock()
	if _, ok := m.bySnow[h.SnowID]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.bySnow, h.SnowID)
	set := m.byUser[h.UserID]
	delete(set, h.SnowID)
	nowOffline := len(set) == 0
	if nowOffline {
		delete(m.byUser, h.UserID)
	}
	m.mu.Unlock()

	logger.Info("ws disconnected", zap.String("user", h.UserID), zap.String("conn", h.SnowID))
	if nowOffline {
		m.broadcastTransition(h.UserID, wire.TypeUserOffline)
	}
}

// broadcastTransition 向互关好友的在线连接推 user-online/user-offline。
// 失败不重试：状态随时可以用 query-presence 重新查。
func (m *ConnManager) broadcastTransition(userID, typ string) {
	if m.mutual == nil {
		return
	}
	safe.SafeGo(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		friends, err := m.mutual.MutualFollowsOf(ctx, userID)
		if err != nil {
			logger.Warnf("presence broadcast skipped: %v", err)
			return
		}
		data := wire.Marshal(typ, wire.UserPresenceEvent{UserID: userID})
		for _, f := range friends {
			m.BroadcastUser(f, data)
		}
	})
}

// ===== 查询/推送 =====

// IsOnline 至少有一条活跃连接即在线
func (m *ConnManager) IsOnline(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser[userID]) > 0
}

// QueryOnline 纯内存快照：入参里当前在线的子集，不产生 I/O
func (m *ConnManager) QueryOnline(userIDs []string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	online := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if len(m.byUser[id]) > 0 {
			online = append(online, id)
		}
	}
	return online
}

// BroadcastUser 推给该用户的所有在线连接；返回是否至少推成一条。
// 用户离线返回 false，调用方不把这当错误。
func (m *ConnManager) BroadcastUser(userID string, data []byte) bool {
	m.mu.RLock()
	hs := make([]*Handle, 0, len(m.byUser[userID]))
	for _, h := range m.byUser[userID] {
		hs = append(hs, h)
	}
	m.mu.RUnlock()

	ok := false
	for _, h := range hs {
		if err := h.writeText(data); err != nil {
			logger.Warnf("ws write failed user=%s conn=%s: %v", userID, h.SnowID, err)
			continue
		}
		ok = true
	}
	return ok
}

// Close 关闭所有连接（进程退出用）
func (m *ConnManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.bySnow {
		_ = h.Conn.Close()
	}
	m.byUser = make(map[string]map[string]*Handle)
	m.bySnow = make(map[string]*Handle)
}
