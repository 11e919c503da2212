package service

import (
	"context"
	"encoding/json"
	"time"

	"PPDirect/logger"
	usermodel "PPDirect/module/user/model"
	redisx "PPDirect/service/storage/redis"
	"PPDirect/tools/oid"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SummaryService 用户展示摘要查询（带 Redis 缓存；Redis 不可用时直接回源）。
// 查询失败一律降级为 Unknown 占位，绝不让消息/会话响应整体失败。
type SummaryService struct {
	cacheTTL time.Duration
}

func NewSummaryService(cacheTTL time.Duration) *SummaryService {
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}
	return &SummaryService{cacheTTL: cacheTTL}
}

func cacheKey(userID string) string { return "usersum:" + userID }

// GetDisplaySummary 取单个用户摘要；任何失败都降级为 Unknown
func (s *SummaryService) GetDisplaySummary(ctx context.Context, userID string) usermodel.Summary {
	if userID == "" {
		return usermodel.UnknownSummary(userID)
	}

	if rdb := redisx.GetRedis(); rdb != nil {
		if raw, err := rdb.Get(ctx, cacheKey(userID)).Bytes(); err == nil {
			var sum usermodel.Summary
			if json.Unmarshal(raw, &sum) == nil {
				return sum
			}
		}
	}

	var u usermodel.User
	err := usermodel.User{}.Collection().FindOne(ctx,
		bson.M{"_id": bson.M{"$in": oid.Variants(userID)}},
		options.FindOne().SetProjection(bson.M{"username": 1, "profilePicture": 1, "isVerified": 1}),
	).Decode(&u)
	if err != nil {
		logger.Debug("[summary] lookup fallback to Unknown")
		return usermodel.UnknownSummary(userID)
	}

	sum := usermodel.Summary{
		ID:             userID,
		Username:       u.Username,
		ProfilePicture: u.ProfilePicture,
		IsVerified:     u.IsVerified,
	}

	if rdb := redisx.GetRedis(); rdb != nil {
		if raw, err := json.Marshal(sum); err == nil {
			// 缓存失败无所谓，下次回源
			_ = rdb.Set(ctx, cacheKey(userID), raw, s.cacheTTL).Err()
		}
	}
	return sum
}

// GetDisplaySummaries 批量取摘要（会话列表用）
func (s *SummaryService) GetDisplaySummaries(ctx context.Context, userIDs []string) map[string]usermodel.Summary {
	out := make(map[string]usermodel.Summary, len(userIDs))
	for _, id := range userIDs {
		if _, ok := out[id]; !ok {
			out[id] = s.GetDisplaySummary(ctx, id)
		}
	}
	return out
}
