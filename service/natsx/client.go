package natsx

import (
	"strings"
	"sync"
	"time"

	"PMarket/logger"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Config is the nats section of the app config.
type Config struct {
	Enabled       bool          `yaml:"enabled"`
	Servers       []string      `yaml:"servers"`
	Name          string        `yaml:"name"`
	User          string        `yaml:"user"`
	Password      string        `yaml:"password"`
	Subject       string        `yaml:"subject"` // push ingress subject, default roompush.>
	Queue         string        `yaml:"queue"`
	Durable       string        `yaml:"durable"` // non-empty switches the ingress to a JetStream push consumer
	AckWait       time.Duration `yaml:"ack_wait"`
	MaxAckPending int           `yaml:"max_ack_pending"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	Timeout       time.Duration `yaml:"timeout"`
}

const DefaultPushSubject = "roompush.>"

func (c *Config) norm() {
	if c.Name == "" {
		c.Name = "pmarket-gateway"
	}
	if c.Subject == "" {
		c.Subject = DefaultPushSubject
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 500 * time.Millisecond
	}
	if c.Timeout == 0 {
		c.Timeout = 3 * time.Second
	}
	if c.AckWait == 0 {
		c.AckWait = 30 * time.Second
	}
	if c.MaxAckPending == 0 {
		c.MaxAckPending = 1024
	}
}

// Client wraps one nats connection and the subscriptions made through it.
type Client struct {
	cfg Config
	nc  *nats.Conn
	log *zap.Logger

	mu   sync.Mutex
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	cfg.norm()
	log := logger.Named("natsx")
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "nats connect")
	}
	return &Client{cfg: cfg, nc: nc, log: log}, nil
}

func (c *Client) Config() Config { return c.cfg }

func (c *Client) jetStream() (nats.JetStreamContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.js != nil {
		return c.js, nil
	}
	js, err := c.nc.JetStream()
	if err != nil {
		return nil, errors.Wrap(err, "init jetstream")
	}
	c.js = js
	return js, nil
}

func (c *Client) track(sub *nats.Subscription) {
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
}

// Close drains every subscription and then the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Drain()
	}
	if c.nc != nil {
		return c.nc.Drain()
	}
	return nil
}
