package global

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Second, cfg.Client.PollInterval)
	assert.Equal(t, "room-push", cfg.Kafka.Topic)
	assert.Equal(t, "roompush.>", cfg.NATS.Subject)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, "app.yaml", `
node_id: 7
http:
  addr: ":9090"
  internal_tokens: [a, b]
redis:
  enabled: true
  addr: "redis:6379"
  presence_ttl: 45s
mongo:
  enabled: true
  uri: "mongodb://mongo:27017"
  database: market
kafka:
  brokers: ["k1:9092"]
  topic: pushes
client:
  poll_interval: 2s
`)
	envFile := writeFile(t, "test.env", "PMARKET_AUTH_JWT_SECRET=from-dotenv\n")
	t.Setenv("PMARKET_HTTP_ADDR", ":7070")
	t.Setenv("PMARKET_KAFKA_BROKERS", "k2:9092,k3:9092")
	t.Cleanup(func() { _ = os.Unsetenv("PMARKET_AUTH_JWT_SECRET") })

	cfg, err := Load(path, envFile)
	require.NoError(t, err)

	assert.Equal(t, int64(7), cfg.NodeID)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, []string{"a", "b"}, cfg.HTTP.InternalTokens)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Config.Addr)
	assert.Equal(t, 45*time.Second, cfg.Redis.PresenceTTL)
	assert.Equal(t, "market", cfg.Mongo.Config.Database)
	assert.Equal(t, []string{"k2:9092", "k3:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "pushes", cfg.Kafka.Topic)
	assert.Equal(t, 2*time.Second, cfg.Client.PollInterval)
	assert.Equal(t, "from-dotenv", cfg.Auth.JWTSecret)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{name: "node id", mutate: func(c *AppConfig) { c.NodeID = 2048 }},
		{name: "empty addr", mutate: func(c *AppConfig) { c.HTTP.Addr = " " }},
		{name: "alg", mutate: func(c *AppConfig) { c.Auth.Alg = "RS256" }},
		{name: "mongo without db", mutate: func(c *AppConfig) { c.Mongo.Enabled = true; c.Mongo.Config.Database = "" }},
		{name: "nats without servers", mutate: func(c *AppConfig) { c.NATS.Enabled = true; c.NATS.Servers = nil }},
		{name: "poll interval", mutate: func(c *AppConfig) { c.Client.PollInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "http: [")
	_, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
