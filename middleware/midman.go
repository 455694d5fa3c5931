package middleware

import (
	"sync"
	"time"

	"PMarket/logger"
	"PMarket/tools/apiresp"
	"PMarket/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	globalMgr *MiddlewareManager
	once      sync.Once
)

// MiddlewareManager holds middleware that can be added after the engine is built.
type MiddlewareManager struct {
	mu   sync.RWMutex
	mids []gin.HandlerFunc
}

func NewManager() *MiddlewareManager {
	return &MiddlewareManager{}
}

// Manager returns the process-wide instance.
func Manager() *MiddlewareManager {
	once.Do(func() {
		globalMgr = NewManager()
	})
	return globalMgr
}

func (m *MiddlewareManager) Add(h gin.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mids = append(m.mids, h)
}

func (m *MiddlewareManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mids = nil
}

func (m *MiddlewareManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.mids)
}

// Use mounts the manager on an engine; each request runs a snapshot of the list.
func (m *MiddlewareManager) Use() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.mu.RLock()
		handlers := append([]gin.HandlerFunc{}, m.mids...)
		m.mu.RUnlock()

		for _, h := range handlers {
			h(c)
			if c.IsAborted() {
				return
			}
		}
		c.Next()
	}
}

// AccessLog logs one line per request through zap.
func AccessLog(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Named("http")
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

// Recovery turns a handler panic into a 500 INTERNAL reply.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Named("http")
	}
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		log.Error("handler panic", zap.String("path", c.Request.URL.Path), zap.Any("panic", rec))
		apiresp.Fail(c, errs.ErrInternal.Wrap())
	})
}
