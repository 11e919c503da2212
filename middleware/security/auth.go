package security

import (
	"net/http"
	"strings"

	"PPDirect/tools/errs"
	"PPDirect/tools/security"

	"github.com/gin-gonic/gin"
)

// —— context key ——
// 后续 handler 统一用这俩 key 读取
const (
	CtxUserIDKey = "currentUserId" // string，JWT sub
	CtxTokenKey  = "authorization" // string，原始令牌
)

type Options struct {
	HeaderToken               string // 默认 "Authorization"
	EnableAuthorizationBearer bool   // 默认 true
	JWT                       security.Options
}

func DefaultOptions(jwt security.Options) *Options {
	return &Options{
		HeaderToken:               "Authorization",
		EnableAuthorizationBearer: true,
		JWT:                       jwt,
	}
}

// Middleware 解析并校验 JWT，把用户ID写进请求上下文。
// 失败直接 401 带错误码，不进业务 handler。
func Middleware(opts *Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))

		// 兼容 Authorization: Bearer xxx
		if opts.EnableAuthorizationBearer && strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = strings.TrimSpace(token[len("bearer "):])
		}
		if token == "" {
			token = strings.TrimSpace(c.Query("token"))
		}

		userID, err := security.Resolve(opts.JWT, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errs.Code(err),
				"msg":  "authentication required",
			})
			return
		}

		c.Set(CtxUserIDKey, userID)
		c.Set(CtxTokenKey, token)
		c.Next()
	}
}

// CurrentUserID 从上下文取当前用户；只在 IsAuth 路由里调用
func CurrentUserID(c *gin.Context) string {
	v, _ := c.Get(CtxUserIDKey)
	s, _ := v.(string)
	return s
}
