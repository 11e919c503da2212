package message

import (
	"context"
	"sort"
	"time"

	"PPDirect/logger"
	"PPDirect/module/message/model"
	"PPDirect/tools/errs"
	"PPDirect/tools/oid"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store 消息存储（追加型，永不删除）。
// 历史数据里 sender/receiver 既有 string 又有 ObjectId，
// 所有查询条件一律用 oid.Variants 展开成 $in，兼容两种形态；
// 容错匹配只存在于这一层，上层拿到的都是规范化字符串。
type Store struct {
	coll *mongo.Collection
}

func NewStore() *Store {
	return &Store{coll: model.Message{}.Collection()}
}

// EnsureIndexes 启动时补索引，失败只告警不阻塞
func (s *Store) EnsureIndexes(ctx context.Context) {
	idx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "receiver", Value: 1}, {Key: "read", Value: 1}}},
		{Keys: bson.D{{Key: "sender", Value: 1}, {Key: "receiver", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "sender", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "receiver", Value: 1}, {Key: "createdAt", Value: -1}}},
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, idx); err != nil {
		logger.Warnf("[message] ensure indexes failed: %v", err)
	}
}

// Insert 落库一条新消息；时间戳与保留字段由这里统一补齐
func (s *Store) Insert(ctx context.Context, m *model.Message) error {
	now := time.Now()
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	m.Archived = false
	m.Deleted = false

	if _, err := s.coll.InsertOne(ctx, m); err != nil {
		return errs.ErrStoreUnavailable.WrapMsg("insert message", "err", err)
	}
	return nil
}

// FindBetween a/b 两人之间的全部消息，双向，createdAt 升序。
// 注意：绝不按 deleted/archived 过滤，历史永久可见。
func (s *Store) FindBetween(ctx context.Context, a, b string) ([]model.Message, error) {
	va, vb := oid.Variants(a), oid.Variants(b)
	filter := bson.M{"$or": []bson.M{
		{"sender": bson.M{"$in": va}, "receiver": bson.M{"$in": vb}},
		{"sender": bson.M{"$in": vb}, "receiver": bson.M{"$in": va}},
	}}
	return s.find(ctx, filter)
}

// FindForUser 该用户收发的全部消息（会话聚合用）
func (s *Store) FindForUser(ctx context.Context, userID string) ([]model.Message, error) {
	v := oid.Variants(userID)
	filter := bson.M{"$or": []bson.M{
		{"sender": bson.M{"$in": v}},
		{"receiver": bson.M{"$in": v}},
	}}
	return s.find(ctx, filter)
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]model.Message, error) {
	cur, err := s.coll.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, errs.ErrStoreUnavailable.WrapMsg("find messages", "err", err)
	}
	defer cur.Close(ctx)

	var msgs []model.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, errs.ErrStoreUnavailable.WrapMsg("decode messages", "err", err)
	}
	// $in 变体查询理论上不会重复命中，但历史脏数据见过 string 与
	// ObjectId 同值并存的文档，这里按 _id 去重保险
	return dedupeByID(msgs), nil
}

// MarkRead 把 sender -> receiver 的未读消息全部置为已读，幂等。
// 返回本次实际更新的条数。
func (s *Store) MarkRead(ctx context.Context, senderID, receiverID string) (int64, error) {
	now := time.Now()
	filter := bson.M{
		"sender":   bson.M{"$in": oid.Variants(senderID)},
		"receiver": bson.M{"$in": oid.Variants(receiverID)},
		"read":     false,
	}
	update := bson.M{"$set": bson.M{"read": true, "readAt": now, "updatedAt": now}}
	res, err := s.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, errs.ErrStoreUnavailable.WrapMsg("mark read", "err", err)
	}
	return res.ModifiedCount, nil
}

// CountUnread 未读总数，走 (receiver, read) 索引，不回放历史
func (s *Store) CountUnread(ctx context.Context, receiverID string) (int64, error) {
	filter := bson.M{
		"receiver": bson.M{"$in": oid.Variants(receiverID)},
		"read":     false,
	}
	n, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, errs.ErrStoreUnavailable.WrapMsg("count unread", "err", err)
	}
	return n, nil
}

func dedupeByID(msgs []model.Message) []model.Message {
	seen := make(map[string]struct{}, len(msgs))
	out := msgs[:0]
	for _, m := range msgs {
		key := m.ID.Hex()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out
}
