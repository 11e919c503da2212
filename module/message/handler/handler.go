package handler

import (
	"net/http"

	"PPDirect/logger"
	mid "PPDirect/middleware"
	midsec "PPDirect/middleware/security"
	"PPDirect/module/conversation"
	"PPDirect/module/message"
	"PPDirect/tools/errs"

	"github.com/gin-gonic/gin"
)

// Handler 私信 REST 入口（与 WS 事件同语义，同一套 service）
type Handler struct {
	msgs  *message.Service
	convs *conversation.Deriver
	auth  *midsec.Options
}

func NewHandler(msgs *message.Service, convs *conversation.Deriver, auth *midsec.Options) *Handler {
	return &Handler{msgs: msgs, convs: convs, auth: auth}
}

// Register 挂路由
func (h *Handler) Register(r gin.IRoutes) {
	authed := mid.RouteOpt{IsAuth: true}
	mid.GET(r, "/api/messages/conversations", h.GetConversations, h.auth, authed)
	mid.GET(r, "/api/messages/unread/count", h.GetUnreadCount, h.auth, authed)
	mid.POST(r, "/api/messages/send", h.SendMessage, h.auth, authed)
	mid.POST(r, "/api/messages/read", h.MarkAsRead, h.auth, authed)
	mid.GET(r, "/api/messages/:userId", h.GetMessages, h.auth, authed)
	mid.GET(r, "/api/health", h.Health, h.auth, mid.RouteOpt{})
}

// GetConversations 会话列表。
// 聚合出错降级为空列表 200，客户端首页不至于白屏。
func (h *Handler) GetConversations(c *gin.Context) {
	userID := midsec.CurrentUserID(c)
	convs, err := h.convs.List(c.Request.Context(), userID)
	if err != nil {
		logger.Warnf("conversations degraded to empty: %v", err)
		c.JSON(http.StatusOK, []*conversation.Conversation{})
		return
	}
	if convs == nil {
		convs = []*conversation.Conversation{}
	}
	c.JSON(http.StatusOK, convs)
}

// GetUnreadCount 未读总数
func (h *Handler) GetUnreadCount(c *gin.Context) {
	userID := midsec.CurrentUserID(c)
	n, err := h.msgs.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

type sendReq struct {
	ReceiverID string `json:"receiverId" binding:"required"`
	Content    string `json:"content"`
}

// SendMessage 发送私信
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errs.ErrValidation.WrapMsg("bad send body", "err", err))
		return
	}
	userID := midsec.CurrentUserID(c)
	view, err := h.msgs.Send(c.Request.Context(), userID, req.ReceiverID, req.Content)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

type readReq struct {
	SenderID string `json:"senderId" binding:"required"`
}

// MarkAsRead 把某人发来的未读全部置已读（幂等）
func (h *Handler) MarkAsRead(c *gin.Context) {
	var req readReq
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errs.ErrValidation.WrapMsg("bad read body", "err", err))
		return
	}
	userID := midsec.CurrentUserID(c)
	n, err := h.msgs.MarkRead(c.Request.Context(), req.SenderID, userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// GetMessages 与某用户的完整历史；读取同时完成已读标记
func (h *Handler) GetMessages(c *gin.Context) {
	userID := midsec.CurrentUserID(c)
	partnerID := c.Param("userId")
	views, err := h.msgs.ListBetween(c.Request.Context(), userID, partnerID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if views == nil {
		views = []*message.View{}
	}
	c.JSON(http.StatusOK, views)
}

// Health 存活探针
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// abortWithError 错误码 -> HTTP 状态；存储细节不出网
func abortWithError(c *gin.Context, err error) {
	code := errs.Code(err)
	status := http.StatusInternalServerError
	msg := "server internal error"

	switch code {
	case errs.ValidationErrorCode, errs.MessageEmptyCode, errs.MessageTooLongCode:
		status = http.StatusBadRequest
	case errs.NotMutualFollowCode:
		status = http.StatusForbidden
	case errs.TokenInvalidCode, errs.TokenExpiredCode:
		status = http.StatusUnauthorized
	case errs.RecordNotFoundCode:
		status = http.StatusNotFound
	case errs.StoreUnavailableCode:
		status = http.StatusServiceUnavailable
	}
	if ce, ok := errs.Unwrap(err).(*errs.CodeError); ok {
		msg = ce.Msg
	}
	logger.Warnf("request failed code=%d: %v", code, err)
	c.JSON(status, gin.H{"code": code, "msg": msg})
}
