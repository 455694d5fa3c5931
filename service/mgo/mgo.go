package mgo

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"PMarket/data/database/mgo/mongoutil"
	"PMarket/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Manager keeps a Mongo connection alive: it reconnects with backoff and drops
// the client after consecutive failed health checks.
type Manager struct {
	cfg *mongoutil.Config

	mu        sync.RWMutex
	client    *mongoutil.Client
	readyCh   chan struct{}
	readyOnce sync.Once
	lastErr   atomic.Value // error

	HealthEvery time.Duration
	FailThresh  int
	log         *zap.Logger
}

func NewManager(cfg *mongoutil.Config) *Manager {
	return &Manager{
		cfg:         cfg,
		readyCh:     make(chan struct{}),
		HealthEvery: 10 * time.Second,
		FailThresh:  3,
		log:         logger.Named("mongo"),
	}
}

// StartAsync runs until ctx is done. Ready is closed on the first successful connect.
func (m *Manager) StartAsync(ctx context.Context) {
	go func() {
		for ctx.Err() == nil {
			if err := m.connect(ctx); err != nil {
				return
			}
			m.watch(ctx)
		}
		m.disconnect()
	}()
}

func (m *Manager) connect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		cli, err := mongoutil.NewMongoDB(ctx, m.cfg)
		if err != nil {
			m.lastErr.Store(err)
			m.log.Warn("mongo connect failed", zap.Error(err))
			return err
		}
		m.mu.Lock()
		m.client = cli
		m.mu.Unlock()
		m.readyOnce.Do(func() { close(m.readyCh) })
		m.log.Info("mongo connected", zap.String("database", m.cfg.Database))
		return nil
	}, backoff.WithContext(b, ctx))
}

func (m *Manager) watch(ctx context.Context) {
	t := time.NewTicker(m.HealthEvery)
	defer t.Stop()
	fail := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			db, ok := m.TryGetDB()
			if !ok {
				return
			}
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := db.Client().Ping(pingCtx, nil)
			cancel()
			if err == nil {
				fail = 0
				continue
			}
			fail++
			m.lastErr.Store(err)
			if fail >= m.FailThresh {
				m.log.Warn("mongo unhealthy, reconnecting", zap.Error(err))
				m.disconnect()
				return
			}
		}
	}
}

func (m *Manager) disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = m.client.Close(ctx)
		cancel()
		m.client = nil
	}
}

func (m *Manager) Ready() <-chan struct{} { return m.readyCh }

func (m *Manager) Err() error {
	if v := m.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (m *Manager) TryGetDB() (*mongo.Database, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, false
	}
	return m.client.GetDB(), true
}

// WaitReady blocks until the first connect succeeds or ctx ends.
func (m *Manager) WaitReady(ctx context.Context) (*mongo.Database, error) {
	select {
	case <-m.readyCh:
	case <-ctx.Done():
		if err := m.Err(); err != nil {
			return nil, errors.Wrap(err, "mongo not ready")
		}
		return nil, ctx.Err()
	}
	db, ok := m.TryGetDB()
	if !ok {
		return nil, errors.New("mongo disconnected")
	}
	return db, nil
}
