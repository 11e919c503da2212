package oid

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 历史数据里 sender/receiver/following 等字段混存了 string 与 ObjectId 两种形态。
// 统一在这里收敛成规范字符串，查询侧再按需展开成全部可能的存储形态。
// 这是迁移期的兜底层，不是长期架构：新写入一律规范成字符串。

// Normalize 把任意存储形态的用户ID收敛为规范字符串
func Normalize(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case primitive.ObjectID:
		return x.Hex()
	case *primitive.ObjectID:
		if x == nil {
			return ""
		}
		return x.Hex()
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// NormalizeAll 批量收敛；空值丢弃
func NormalizeAll(in []interface{}) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if s := Normalize(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Variants 展开一个规范ID的全部可能存储形态（string + ObjectId）
func Variants(id string) []interface{} {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	vs := []interface{}{id}
	if o, err := primitive.ObjectIDFromHex(id); err == nil {
		vs = append(vs, o)
	}
	return vs
}

// IsValidObjectID 是否为合法的 ObjectId hex
func IsValidObjectID(id string) bool {
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}
