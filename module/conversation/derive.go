// Package conversation 从消息历史即时推导会话列表，不落库。
// 列表是纯视图：互关关系或消息一变，下次推导自然跟着变。
package conversation

import (
	"context"
	"sort"
	"time"

	"PPDirect/logger"
	msgmodel "PPDirect/module/message/model"
	usermodel "PPDirect/module/user/model"

	"go.uber.org/zap"
)

// ===== 依赖接口 =====

type MessageReader interface {
	FindForUser(ctx context.Context, userID string) ([]msgmodel.Message, error)
}

type MutualSet interface {
	MutualFollowsOf(ctx context.Context, userID string) ([]string, error)
}

type SummaryResolver interface {
	GetDisplaySummaries(ctx context.Context, userIDs []string) map[string]usermodel.Summary
}

// Conversation 会话条目。
// LastMessageTime 为 epoch 零值表示互关但还没聊过。
type Conversation struct {
	User                usermodel.Summary `json:"user"`
	LastMessage         string            `json:"lastMessage"`
	LastMessageTime     time.Time         `json:"lastMessageTime"`
	LastMessageSenderID string            `json:"lastMessageSenderId,omitempty"`
	Unread              int               `json:"unread"`
}

// HasMessages 是否有过历史消息
func (c *Conversation) HasMessages() bool {
	return c.LastMessage != "" || !c.LastMessageTime.Equal(epoch())
}

func epoch() time.Time { return time.Unix(0, 0).UTC() }

// Deriver 会话推导器
type Deriver struct {
	messages MessageReader
	mutual   MutualSet
	users    SummaryResolver
}

func NewDeriver(messages MessageReader, mutual MutualSet, users SummaryResolver) *Deriver {
	return &Deriver{messages: messages, mutual: mutual, users: users}
}

// List 推导 userID 的会话列表。
// 安全过滤：已经不互关的对端不出现在列表里，哪怕有历史消息
// （历史消息本身仍可通过按对端直查拿到，这里只是列表不展示）。
func (d *Deriver) List(ctx context.Context, userID string) ([]*Conversation, error) {
	mutuals, err := d.mutual.MutualFollowsOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	msgs, err := d.messages.FindForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	convs := Derive(userID, msgs, mutuals)
	partners := make([]string, 0, len(convs))
	for _, c := range convs {
		partners = append(partners, c.User.ID)
	}
	sums := d.users.GetDisplaySummaries(ctx, partners)
	for _, c := range convs {
		c.User = sums[c.User.ID]
	}
	logger.Debug("derived conversations", zap.String("user", userID), zap.Int("count", len(convs)))
	return convs, nil
}

// Derive 纯聚合逻辑，便于单测。
// msgs 可乱序；以 createdAt（同刻比 _id）最新者为会话末条。
func Derive(userID string, msgs []msgmodel.Message, mutuals []string) []*Conversation {
	mutualSet := make(map[string]struct{}, len(mutuals))
	for _, id := range mutuals {
		mutualSet[id] = struct{}{}
	}

	type agg struct {
		last   *msgmodel.Message
		unread int
	}
	byPartner := make(map[string]*agg)

	for i := range msgs {
		m := &msgs[i]
		partner := m.PartnerOf(userID)
		if partner == "" {
			continue
		}
		a := byPartner[partner]
		if a == nil {
			a = &agg{}
			byPartner[partner] = a
		}
		if a.last == nil || newer(m, a.last) {
			a.last = m
		}
		// 未读只数"发给我且我没读"的
		if m.ReceiverID() == userID && !m.Read {
			a.unread++
		}
	}

	var out []*Conversation
	for partner, a := range byPartner {
		// 安全过滤：非互关对端不进列表
		if _, ok := mutualSet[partner]; !ok {
			continue
		}
		out = append(out, &Conversation{
			User:                usermodel.Summary{ID: partner},
			LastMessage:         a.last.Content,
			LastMessageTime:     a.last.CreatedAt,
			LastMessageSenderID: a.last.SenderID(),
			Unread:              a.unread,
		})
	}

	// 互关但没聊过的也要出现，时间置 epoch 排在最后
	for _, partner := range mutuals {
		if partner == userID {
			continue
		}
		if _, seen := byPartner[partner]; seen {
			continue
		}
		out = append(out, &Conversation{
			User:            usermodel.Summary{ID: partner},
			LastMessageTime: epoch(),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		hi, hj := out[i].HasMessages(), out[j].HasMessages()
		if hi != hj {
			return hi
		}
		if !out[i].LastMessageTime.Equal(out[j].LastMessageTime) {
			return out[i].LastMessageTime.After(out[j].LastMessageTime)
		}
		return out[i].User.ID < out[j].User.ID
	})
	return out
}

func newer(a, b *msgmodel.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.Hex() > b.ID.Hex()
}
