package global

import (
	"os"
	"strings"
	"time"

	"PMarket/data/database/mgo/mongoutil"
	"PMarket/service/kafka"
	"PMarket/service/natsx"
	"PMarket/service/storage/redis"
	"PMarket/tools"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PMARKET_"

type AppConfig struct {
	NodeID int64        `yaml:"node_id"` // snowflake node, 0~1023
	Log    LogConf      `yaml:"log"`
	HTTP   HTTPConf     `yaml:"http"`
	WS     WSConf       `yaml:"ws"`
	Auth   AuthConf     `yaml:"auth"`
	Redis  RedisConf    `yaml:"redis"`
	Mongo  MongoConf    `yaml:"mongo"`
	NATS   natsx.Config `yaml:"nats"`
	Kafka  kafka.Config `yaml:"kafka"`
	Client ClientConf   `yaml:"client"`
}

type LogConf struct {
	Level string `yaml:"level"`
}

type HTTPConf struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	InternalTokens []string      `yaml:"internal_tokens"` // bearer tokens for /internal routes
	ShutdownWait   time.Duration `yaml:"shutdown_wait"`
}

type WSConf struct {
	SendQueue      int           `yaml:"send_queue"`
	InboundQueue   int           `yaml:"inbound_queue"`
	WriteWait      time.Duration `yaml:"write_wait"`
	PongWait       time.Duration `yaml:"pong_wait"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	UnauthTTL      time.Duration `yaml:"unauth_ttl"`
}

type AuthConf struct {
	JWTSecret string        `yaml:"jwt_secret"` // empty disables token checks
	Alg       string        `yaml:"alg"`
	Leeway    time.Duration `yaml:"leeway"`
}

type RedisConf struct {
	Enabled     bool          `yaml:"enabled"`
	Config      redis.Config  `yaml:",inline"`
	KeyPrefix   string        `yaml:"key_prefix"`
	PresenceTTL time.Duration `yaml:"presence_ttl"`
	MirrorWait  time.Duration `yaml:"mirror_timeout"`
}

type MongoConf struct {
	Enabled     bool             `yaml:"enabled"`
	Config      mongoutil.Config `yaml:",inline"`
	HealthEvery time.Duration    `yaml:"health_every"`
	FailThresh  int              `yaml:"fail_thresh"`
}

// ClientConf drives the roomwatch reconciliation client.
type ClientConf struct {
	BaseURL        string        `yaml:"base_url"`
	WSURL          string        `yaml:"ws_url"`
	Identity       string        `yaml:"identity"`
	DisplayName    string        `yaml:"display_name"`
	Token          string        `yaml:"token"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	OfferCacheSize int           `yaml:"offer_cache_size"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

func Default() AppConfig {
	return AppConfig{
		NodeID: 1,
		Log:    LogConf{Level: "info"},
		HTTP: HTTPConf{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
			ShutdownWait:   10 * time.Second,
		},
		WS: WSConf{
			SendQueue:      256,
			InboundQueue:   64,
			WriteWait:      10 * time.Second,
			PongWait:       75 * time.Second,
			MaxMessageSize: 64 << 10,
			UnauthTTL:      30 * time.Second,
		},
		Auth: AuthConf{Alg: "HS256", Leeway: 30 * time.Second},
		Redis: RedisConf{
			Config:      redis.Config{Addr: "127.0.0.1:6379", PoolSize: 20},
			KeyPrefix:   "pm:presence",
			PresenceTTL: 90 * time.Second,
			MirrorWait:  2 * time.Second,
		},
		Mongo: MongoConf{
			Config:      mongoutil.Config{Uri: "mongodb://localhost:27017", Database: "pmarket", MaxPoolSize: 20, MaxRetry: 3},
			HealthEvery: 10 * time.Second,
			FailThresh:  3,
		},
		NATS:  natsx.Config{Servers: []string{"nats://127.0.0.1:4222"}, Subject: natsx.DefaultPushSubject, Queue: "pmarket-gateway"},
		Kafka: kafka.DefaultConfig(),
		Client: ClientConf{
			BaseURL:        "http://127.0.0.1:8080",
			WSURL:          "ws://127.0.0.1:8080/ws",
			PollInterval:   5 * time.Second,
			OfferCacheSize: 256,
			RequestTimeout: 10 * time.Second,
		},
	}
}

// Load reads .env (if present), then path (if non-empty), then PMARKET_* variables.
// Later sources win.
func Load(path string, envFiles ...string) (AppConfig, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return AppConfig{}, errors.Wrapf(err, "load %s", f)
		}
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return AppConfig{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return AppConfig{}, errors.Wrapf(err, "parse config %s", path)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func env(name string) string { return envPrefix + name }

func applyEnv(c *AppConfig) {
	c.NodeID = int64(tools.GetEnvInt(env("NODE_ID"), int(c.NodeID)))
	c.Log.Level = tools.GetEnv(env("LOG_LEVEL"), c.Log.Level)

	c.HTTP.Addr = tools.GetEnv(env("HTTP_ADDR"), c.HTTP.Addr)
	c.HTTP.AllowedOrigins = tools.GetEnvList(env("HTTP_ALLOWED_ORIGINS"), c.HTTP.AllowedOrigins)
	c.HTTP.InternalTokens = tools.GetEnvList(env("HTTP_INTERNAL_TOKENS"), c.HTTP.InternalTokens)

	c.WS.SendQueue = tools.GetEnvInt(env("WS_SEND_QUEUE"), c.WS.SendQueue)
	c.WS.PongWait = tools.GetEnvDuration(env("WS_PONG_WAIT"), c.WS.PongWait)
	c.WS.UnauthTTL = tools.GetEnvDuration(env("WS_UNAUTH_TTL"), c.WS.UnauthTTL)

	c.Auth.JWTSecret = tools.GetEnv(env("AUTH_JWT_SECRET"), c.Auth.JWTSecret)
	c.Auth.Alg = tools.GetEnv(env("AUTH_ALG"), c.Auth.Alg)

	c.Redis.Enabled = tools.GetEnvBool(env("REDIS_ENABLED"), c.Redis.Enabled)
	c.Redis.Config.Addr = tools.GetEnv(env("REDIS_ADDR"), c.Redis.Config.Addr)
	c.Redis.Config.Password = tools.GetEnv(env("REDIS_PASSWORD"), c.Redis.Config.Password)
	c.Redis.Config.DB = tools.GetEnvInt(env("REDIS_DB"), c.Redis.Config.DB)

	c.Mongo.Enabled = tools.GetEnvBool(env("MONGO_ENABLED"), c.Mongo.Enabled)
	c.Mongo.Config.Uri = tools.GetEnv(env("MONGO_URI"), c.Mongo.Config.Uri)
	c.Mongo.Config.Database = tools.GetEnv(env("MONGO_DATABASE"), c.Mongo.Config.Database)
	c.Mongo.Config.Username = tools.GetEnv(env("MONGO_USERNAME"), c.Mongo.Config.Username)
	c.Mongo.Config.Password = tools.GetEnv(env("MONGO_PASSWORD"), c.Mongo.Config.Password)

	c.NATS.Enabled = tools.GetEnvBool(env("NATS_ENABLED"), c.NATS.Enabled)
	c.NATS.Servers = tools.GetEnvList(env("NATS_SERVERS"), c.NATS.Servers)
	c.NATS.User = tools.GetEnv(env("NATS_USER"), c.NATS.User)
	c.NATS.Password = tools.GetEnv(env("NATS_PASSWORD"), c.NATS.Password)
	c.NATS.Subject = tools.GetEnv(env("NATS_SUBJECT"), c.NATS.Subject)

	c.Kafka.Enabled = tools.GetEnvBool(env("KAFKA_ENABLED"), c.Kafka.Enabled)
	c.Kafka.Brokers = tools.GetEnvList(env("KAFKA_BROKERS"), c.Kafka.Brokers)
	c.Kafka.GroupID = tools.GetEnv(env("KAFKA_GROUP_ID"), c.Kafka.GroupID)
	c.Kafka.Topic = tools.GetEnv(env("KAFKA_TOPIC"), c.Kafka.Topic)

	c.Client.BaseURL = tools.GetEnv(env("CLIENT_BASE_URL"), c.Client.BaseURL)
	c.Client.WSURL = tools.GetEnv(env("CLIENT_WS_URL"), c.Client.WSURL)
	c.Client.Identity = tools.GetEnv(env("CLIENT_IDENTITY"), c.Client.Identity)
	c.Client.DisplayName = tools.GetEnv(env("CLIENT_DISPLAY_NAME"), c.Client.DisplayName)
	c.Client.Token = tools.GetEnv(env("CLIENT_TOKEN"), c.Client.Token)
	c.Client.PollInterval = tools.GetEnvDuration(env("CLIENT_POLL_INTERVAL"), c.Client.PollInterval)
}

func (c *AppConfig) Validate() error {
	if c.NodeID < 0 || c.NodeID > 1023 {
		return errors.Errorf("node_id %d out of range 0~1023", c.NodeID)
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("http.addr is required")
	}
	switch strings.ToUpper(c.Auth.Alg) {
	case "", "HS256", "HS384", "HS512":
	default:
		return errors.Errorf("auth.alg %q not supported", c.Auth.Alg)
	}
	if c.Redis.Enabled && c.Redis.Config.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	if c.Mongo.Enabled {
		if err := c.Mongo.Config.ValidateAndSetDefaults(); err != nil {
			return err
		}
	}
	if c.NATS.Enabled && len(c.NATS.Servers) == 0 {
		return errors.New("nats.servers is required when nats is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}
	if c.Client.PollInterval <= 0 {
		return errors.New("client.poll_interval must be positive")
	}
	return nil
}
