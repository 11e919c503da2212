package natsx

import (
	"time"

	"PPDirect/logger"
	"PPDirect/tools/errs"

	"github.com/nats-io/nats.go"
)

// NatsxConfig 客户端配置
type NatsxConfig struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// Publisher 向外部通知服务外发事件（best-effort）。
// 本子系统不做通知投递，只把“新消息已落库”事件丢到约定 subject 上。
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher 连接 NATS；url 为空表示禁用外发，返回 nil Publisher（调用方判空）
func NewPublisher(cfg NatsxConfig, subject string) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	if subject == "" {
		return nil, errs.New("nats subject missing").Wrap()
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errs.WrapMsg(err, "nats connect failed", "url", cfg.URL)
	}
	return &Publisher{nc: nc, subject: subject}, nil
}

// Publish fire-and-forget；失败只打日志，不影响消息主流程
func (p *Publisher) Publish(payload []byte) {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Publish(p.subject, payload); err != nil {
		logger.Warnf("[natsx] publish %s failed: %v", p.subject, err)
	}
}

// Close 优雅关闭
func (p *Publisher) Close() {
	if p != nil && p.nc != nil {
		_ = p.nc.Drain()
	}
}
