package model

import (
	"time"

	mgo "PPDirect/service/mgo"
	"PPDirect/tools/oid"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	MsgTableName     = "messages"
	MaxContentLength = 1000 // 单条消息正文上限（trim 后）
)

// Message 单条私信文档。
// sender/receiver 为历史遗留的混合形态（string 与 ObjectId 并存）；
// 新写入一律存规范字符串，读取用 SenderID()/ReceiverID() 收敛。
//
// archived / deleted 为预留字段：永远写 false，任何查询路径都不得
// 以它们过滤 —— 消息历史是永久的。
type Message struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Sender    interface{}        `bson:"sender"`
	Receiver  interface{}        `bson:"receiver"`
	Content   string             `bson:"content"`
	Read      bool               `bson:"read"`
	ReadAt    *time.Time         `bson:"readAt"`
	Archived  bool               `bson:"archived"`
	Deleted   bool               `bson:"deleted"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (Message) TableName() string { return MsgTableName }

func (m Message) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(m.TableName())
}

// SenderID 规范化后的发送者ID
func (m *Message) SenderID() string { return oid.Normalize(m.Sender) }

// ReceiverID 规范化后的接收者ID
func (m *Message) ReceiverID() string { return oid.Normalize(m.Receiver) }

// Between 该消息是否属于 a/b 这对用户（任意方向）
func (m *Message) Between(a, b string) bool {
	s, r := m.SenderID(), m.ReceiverID()
	return (s == a && r == b) || (s == b && r == a)
}

// PartnerOf 相对 userID 的对端；不属于该用户的消息返回空串
func (m *Message) PartnerOf(userID string) string {
	switch userID {
	case m.SenderID():
		return m.ReceiverID()
	case m.ReceiverID():
		return m.SenderID()
	default:
		return ""
	}
}
