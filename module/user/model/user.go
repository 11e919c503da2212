package model

import (
	"time"

	mgo "PPDirect/service/mgo"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const UserTableName = "users"

// User 用户文档。
// following/followers 为历史遗留的混合形态数组（string 与 ObjectId 并存），
// 读取侧统一走 oid.Normalize 收敛，勿直接做类型比较。
type User struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Username       string             `bson:"username"`
	ProfilePicture string             `bson:"profilePicture,omitempty"`
	IsVerified     bool               `bson:"isVerified,omitempty"`
	Following      []interface{}      `bson:"following,omitempty"`
	Followers      []interface{}      `bson:"followers,omitempty"`
	IsOnline       bool               `bson:"isOnline,omitempty"`
	LastSeen       time.Time          `bson:"lastSeen,omitempty"`
}

func (User) TableName() string { return UserTableName }

func (u User) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(u.TableName())
}

// Summary 对外暴露的用户展示摘要（消息/会话负载里携带）
type Summary struct {
	ID             string `json:"_id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture,omitempty"`
	IsVerified     bool   `json:"isVerified"`
}

// UnknownSummary 查询失败时的占位摘要（不让整个响应失败）
func UnknownSummary(id string) Summary {
	return Summary{ID: id, Username: "Unknown"}
}
