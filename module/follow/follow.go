package follow

import (
	"context"
	"sort"

	usermodel "PPDirect/module/user/model"
	"PPDirect/tools/errs"
	"PPDirect/tools/oid"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Service 互关谓词：只读用户文档里的 following/followers。
// 本子系统把它当布尔神谕用，不关心关注关系怎么维护。
type Service struct{}

func NewService() *Service { return &Service{} }

type followEdges struct {
	Following []interface{} `bson:"following"`
	Followers []interface{} `bson:"followers"`
}

func (s *Service) loadEdges(ctx context.Context, userID string) (*followEdges, error) {
	var u followEdges
	err := usermodel.User{}.Collection().FindOne(ctx,
		bson.M{"_id": bson.M{"$in": oid.Variants(userID)}},
		options.FindOne().SetProjection(bson.M{"following": 1, "followers": 1}),
	).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errs.ErrStoreUnavailable.WrapMsg("load follow edges", "user", userID, "err", err)
	}
	return &u, nil
}

// IsMutualFollow a 关注 b 且 b 关注 a 才算互关；任一用户不存在视为 false。
// followers 数组作为历史数据的旁证兜底（两边同时成立亦算互关）。
func (s *Service) IsMutualFollow(ctx context.Context, a, b string) (bool, error) {
	ua, err := s.loadEdges(ctx, a)
	if err != nil {
		return false, err
	}
	ub, err := s.loadEdges(ctx, b)
	if err != nil {
		return false, err
	}
	if ua == nil || ub == nil {
		return false, nil
	}
	return Mutual(
		oid.NormalizeAll(ua.Following), oid.NormalizeAll(ua.Followers),
		oid.NormalizeAll(ub.Following), oid.NormalizeAll(ub.Followers),
		a, b,
	), nil
}

// MutualFollowsOf 当前用户的互关集合：following ∩ followers。
// 单向关注永远不会出现在结果里。
func (s *Service) MutualFollowsOf(ctx context.Context, userID string) ([]string, error) {
	u, err := s.loadEdges(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, nil
	}
	return Intersect(oid.NormalizeAll(u.Following), oid.NormalizeAll(u.Followers)), nil
}

// Mutual 纯判定逻辑，便于单测
func Mutual(aFollowing, aFollowers, bFollowing, bFollowers []string, a, b string) bool {
	aFollowsB := contains(aFollowing, b)
	bFollowsA := contains(bFollowing, a)
	if aFollowsB && bFollowsA {
		return true
	}
	// 旁证：followers 数组里双向都能找到对方
	return contains(bFollowers, a) && contains(aFollowers, b)
}

// Intersect following ∩ followers，去重，升序（保证结果稳定）
func Intersect(following, followers []string) []string {
	set := make(map[string]struct{}, len(followers))
	for _, id := range followers {
		set[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(following))
	var out []string
	for _, id := range following {
		if _, ok := set[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func contains(ids []string, target string) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}
