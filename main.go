package main

import (
	"context"
	"time"

	"PPDirect/global"
	"PPDirect/logger"
	midsec "PPDirect/middleware/security"
	"PPDirect/module/conversation"
	"PPDirect/module/follow"
	"PPDirect/module/message"
	msghandler "PPDirect/module/message/handler"
	usersvc "PPDirect/module/user/service"
	"PPDirect/service/chat"
	mgomgr "PPDirect/service/mgo"
	"PPDirect/service/natsx"
	redisx "PPDirect/service/storage/redis"
	"PPDirect/tools/ids"
	"PPDirect/tools/security"

	"PPDirect/data/database/mgo/mongoutil"
	mid "PPDirect/middleware"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := global.Config()
	ids.SetNodeID(cfg.NodeID)

	// ===== 存储 =====
	ctx := context.Background()
	mgomgr.StartAsync(ctx, &mongoutil.Config{
		Uri:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	waitCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	if err := mgomgr.WaitReady(waitCtx); err != nil {
		logger.Errorf("mongo not ready: %v", err)
		return
	}

	// Redis 可选：没配就不开摘要缓存
	if cfg.Redis.Addr != "" {
		if err := redisx.InitRedis(redisx.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}); err != nil {
			logger.Warnf("redis disabled: %v", err)
		}
	}

	// NATS 可选：没配就不外发新消息事件
	notifier, err := natsx.NewPublisher(natsx.NatsxConfig{
		URL:  cfg.Nats.URL,
		Name: "ppdirect",
	}, cfg.Nats.Subject)
	if err != nil {
		logger.Warnf("nats disabled: %v", err)
	}

	// ===== 业务装配 =====
	store := message.NewStore()
	store.EnsureIndexes(ctx)

	follows := follow.NewService()
	users := usersvc.NewSummaryService(cfg.SummaryCacheTTL)
	connMgr := chat.NewConnManager(follows)

	var notify message.Notifier
	if notifier != nil {
		notify = notifier
	}
	msgs := message.NewService(store, follows, users, connMgr, notify)
	convs := conversation.NewDeriver(store, follows, users)

	jwtOpts := security.DefaultOptions([]byte(cfg.JWT.Secret))
	if cfg.JWT.TTL > 0 {
		jwtOpts.TTL = cfg.JWT.TTL
	}

	// ===== HTTP + WS =====
	r := gin.New()
	r.Use(gin.Recovery(), mid.Origin())

	auth := midsec.DefaultOptions(jwtOpts)
	msghandler.NewHandler(msgs, convs, auth).Register(r)

	ws := chat.NewServer(connMgr, msgs, jwtOpts, cfg.WS.AuthTimeout)
	r.GET("/ws", ws.HandleWS)

	logger.Infof("listening on %s", cfg.HTTPAddr)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		logger.Errorf("server exit: %v", err)
	}

	connMgr.Close()
	if notifier != nil {
		notifier.Close()
	}
	redisx.CloseRedis()
}
