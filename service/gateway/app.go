package gateway

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"PMarket/global"
	"PMarket/logger"
	"PMarket/module/room"
	"PMarket/module/room/store"
	"PMarket/service/chat"
	"PMarket/service/chat/handlers"
	"PMarket/service/kafka"
	"PMarket/service/mgo"
	"PMarket/service/natsx"
	"PMarket/service/storage"
	redisx "PMarket/service/storage/redis"
	"PMarket/tools/ids"
	"PMarket/tools/security"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// App is one gateway process: websocket relay, room routes and push ingress.
type App struct {
	cfg      global.AppConfig
	log      *zap.Logger
	srv      *chat.Server
	engine   http.Handler
	rdb      *redis.Client
	presence *storage.Presence
	mongo    *mgo.Manager
	mstore   *store.MongoStore
}

// New builds the app. Redis is dialled here so a bad address fails fast; Mongo
// connects in the background once Run starts.
func New(ctx context.Context, cfg global.AppConfig) (*App, error) {
	logger.SetLevel(cfg.Log.Level)
	ids.SetNodeID(cfg.NodeID)
	registerErrHandlers()
	a := &App{cfg: cfg, log: logger.Named("gateway")}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := chat.Options{
		Auth: security.Options{
			Secret: []byte(cfg.Auth.JWTSecret),
			Alg:    cfg.Auth.Alg,
			Leeway: cfg.Auth.Leeway,
		},
		Metrics:   chat.NewMetrics(reg),
		UnauthTTL: cfg.WS.UnauthTTL,
	}

	if cfg.Redis.Enabled {
		rdb, err := redisx.NewClient(ctx, cfg.Redis.Config)
		if err != nil {
			return nil, err
		}
		a.rdb = rdb
		a.presence = storage.NewPresence(rdb, storage.PresenceConfig{
			NodeID:    "node-" + strconv.FormatInt(cfg.NodeID, 10),
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.PresenceTTL,
		})
		if n, err := a.presence.Reset(ctx); err != nil {
			a.log.Warn("reset stale presence failed", zap.Error(err))
		} else if n > 0 {
			a.log.Info("cleared stale presence", zap.Int("entries", n))
		}
		opts.Mirror = a.presence
		opts.MirrorTimeout = cfg.Redis.MirrorWait
	}

	a.srv = chat.NewServer(opts)
	handlers.RegisterDefaults(a.srv)

	var st store.Store
	if cfg.Mongo.Enabled {
		mc := cfg.Mongo.Config
		a.mongo = mgo.NewManager(&mc)
		if cfg.Mongo.HealthEvery > 0 {
			a.mongo.HealthEvery = cfg.Mongo.HealthEvery
		}
		if cfg.Mongo.FailThresh > 0 {
			a.mongo.FailThresh = cfg.Mongo.FailThresh
		}
		a.mstore = store.NewMongoStore(a.mongo)
		st = a.mstore
	} else {
		a.log.Info("mongo disabled, using in-memory message store")
		st = store.NewMemory()
	}

	var roomOpts []room.Option
	if a.presence != nil {
		roomOpts = append(roomOpts, room.WithMirror(a.presence))
	}
	rooms := room.NewHandler(st, a.srv, a.srv.Registry(), logger.Named("room"), roomOpts...)

	ws := chat.NewWSServer(a.srv, chat.ClientConf{
		SendQueue:      cfg.WS.SendQueue,
		InboundQueue:   cfg.WS.InboundQueue,
		WriteWait:      cfg.WS.WriteWait,
		PongWait:       cfg.WS.PongWait,
		MaxMessageSize: cfg.WS.MaxMessageSize,
	}, cfg.HTTP.AllowedOrigins)

	a.engine = NewEngine(Deps{
		Server:         a.srv,
		WS:             ws,
		Rooms:          rooms,
		Gatherer:       reg,
		InternalTokens: cfg.HTTP.InternalTokens,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Health:         a.health,
		Log:            logger.Named("http"),
	})
	if len(cfg.HTTP.InternalTokens) == 0 {
		a.log.Warn("no internal tokens configured, /internal routes reject every request")
	}
	return a, nil
}

func (a *App) Server() *chat.Server { return a.srv }

func (a *App) Handler() http.Handler { return a.engine }

func (a *App) health() error {
	if a.mongo != nil {
		if _, ok := a.mongo.TryGetDB(); !ok {
			return errors.New("mongo not connected")
		}
	}
	return nil
}

// Run serves until ctx is done or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	var consumer *kafka.Consumer
	if a.cfg.Kafka.Enabled {
		var err error
		if consumer, err = a.kafkaConsumer(); err != nil {
			return err
		}
	}
	if a.cfg.NATS.Enabled {
		nc, err := natsx.NewClient(a.cfg.NATS)
		if err == nil {
			err = nc.SubscribePush(ctx, a.srv.Pusher())
			if err != nil {
				_ = nc.Close()
			}
		}
		if err != nil {
			if consumer != nil {
				_ = consumer.Close()
			}
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			return nc.Close()
		})
	}
	if consumer != nil {
		g.Go(func() error { return consumer.Run(ctx) })
		g.Go(func() error {
			<-ctx.Done()
			return consumer.Close()
		})
	}

	hs := &http.Server{Addr: a.cfg.HTTP.Addr, Handler: a.engine, ReadHeaderTimeout: 10 * time.Second}
	g.Go(func() error {
		a.log.Info("http listening", zap.String("addr", a.cfg.HTTP.Addr))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http serve")
		}
		return nil
	})

	if a.mongo != nil {
		a.mongo.StartAsync(ctx)
		g.Go(func() error {
			if _, err := a.mongo.WaitReady(ctx); err != nil {
				return nil
			}
			if err := a.mstore.EnsureIndexes(ctx); err != nil {
				a.log.Warn("ensure mongo indexes failed", zap.Error(err))
			}
			return nil
		})
	}
	if a.presence != nil {
		g.Go(func() error {
			a.presence.RunRefresher(ctx)
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		wait := a.cfg.HTTP.ShutdownWait
		if wait <= 0 {
			wait = 10 * time.Second
		}
		sctx, cancel := context.WithTimeout(context.Background(), wait)
		defer cancel()
		a.srv.Close()
		err := hs.Shutdown(sctx)
		if a.rdb != nil {
			_ = a.rdb.Close()
		}
		a.log.Info("gateway stopped")
		return err
	})
	return g.Wait()
}

func (a *App) kafkaConsumer() (*kafka.Consumer, error) {
	kc := a.cfg.Kafka
	if kc.Topic == "" {
		kc.Topic = kafka.DefaultPushTopic
	}
	if kc.AutoCreateTopicsOnStart {
		base, err := kafka.BuildBaseConfig(kc)
		if err != nil {
			return nil, err
		}
		admin, err := sarama.NewClusterAdmin(kc.Brokers, base)
		if err != nil {
			return nil, errors.Wrap(err, "kafka admin")
		}
		err = kafka.EnsureTopics(admin, []string{kc.Topic}, kc)
		_ = admin.Close()
		if err != nil {
			return nil, err
		}
	}
	router := kafka.NewRouter()
	router.Register(kc.Topic, kafka.PushHandler(a.srv.Pusher()))
	return kafka.NewConsumer(kc, router)
}
