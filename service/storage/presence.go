package storage

import (
	"context"
	"strconv"
	"strings"
	"time"

	"PMarket/logger"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PresenceConfig controls key naming and liveness of mirrored connections.
type PresenceConfig struct {
	NodeID    string
	KeyPrefix string
	// TTL bounds how long an entry outlives a crashed node; Refresh renews it.
	TTL time.Duration
}

func (c *PresenceConfig) norm() {
	if c.NodeID == "" {
		c.NodeID = "node-1"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "pm:presence"
	}
	if c.TTL <= 0 {
		c.TTL = 90 * time.Second
	}
}

// Online: add conn member with expireAt score, index it for this node.
// KEYS[1] = identity zset, KEYS[2] = node set
// ARGV[1] = member, ARGV[2] = expireAt (unix), ARGV[3] = key ttl seconds, ARGV[4] = node member
const luaOnline = `
redis.call("ZADD", KEYS[1], ARGV[2], ARGV[1])
redis.call("EXPIRE", KEYS[1], ARGV[3])
redis.call("SADD", KEYS[2], ARGV[4])
return redis.call("ZCARD", KEYS[1])
`

// Offline: drop conn member, stamp last seen, delete the zset when empty.
// KEYS[1] = identity zset, KEYS[2] = node set, KEYS[3] = last seen hash
// ARGV[1] = member, ARGV[2] = node member, ARGV[3] = identity, ARGV[4] = now (ms)
// Returns the number of remaining live members.
const luaOffline = `
redis.call("ZREM", KEYS[1], ARGV[1])
redis.call("SREM", KEYS[2], ARGV[2])
redis.call("HSET", KEYS[3], ARGV[3], ARGV[4])
local left = redis.call("ZCARD", KEYS[1])
if left == 0 then
  redis.call("DEL", KEYS[1])
end
return left
`

// Count live members after sweeping expired ones.
// KEYS[1] = identity zset, ARGV[1] = now (unix)
const luaCountLive = `
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
local n = redis.call("ZCARD", KEYS[1])
if n == 0 then
  redis.call("DEL", KEYS[1])
end
return n
`

// Presence mirrors connection presence into Redis so other services can ask
// whether an identity is online. It implements chat.PresenceMirror.
type Presence struct {
	rdb  redis.UniversalClient
	conf PresenceConfig
	now  func() time.Time
	log  *zap.Logger

	online  *redis.Script
	offline *redis.Script
	count   *redis.Script
}

func NewPresence(rdb redis.UniversalClient, conf PresenceConfig) *Presence {
	conf.norm()
	return &Presence{
		rdb:     rdb,
		conf:    conf,
		now:     time.Now,
		log:     logger.Named("presence"),
		online:  redis.NewScript(luaOnline),
		offline: redis.NewScript(luaOffline),
		count:   redis.NewScript(luaCountLive),
	}
}

// identityKey uses a hash tag so cluster deployments keep one identity on one slot.
func (p *Presence) identityKey(identityID string) string {
	return p.conf.KeyPrefix + ":{" + identityID + "}"
}

func (p *Presence) nodeKey() string { return p.conf.KeyPrefix + ":node:" + p.conf.NodeID }

func (p *Presence) lastSeenKey() string { return p.conf.KeyPrefix + ":last_seen" }

func (p *Presence) member(connID string) string { return p.conf.NodeID + "/" + connID }

func nodeMember(identityID, connID string) string { return identityID + "|" + connID }

func splitNodeMember(s string) (identityID, connID string, ok bool) {
	i := strings.LastIndexByte(s, '|')
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

func (p *Presence) Online(ctx context.Context, identityID, connID string) error {
	now := p.now()
	exp := now.Add(p.conf.TTL)
	keyTTL := int64(p.conf.TTL.Seconds()) * 2
	err := p.online.Run(ctx, p.rdb,
		[]string{p.identityKey(identityID), p.nodeKey()},
		p.member(connID), exp.Unix(), keyTTL, nodeMember(identityID, connID),
	).Err()
	return errors.Wrapf(err, "presence online %s", identityID)
}

func (p *Presence) Offline(ctx context.Context, identityID, connID string) error {
	err := p.offline.Run(ctx, p.rdb,
		[]string{p.identityKey(identityID), p.nodeKey(), p.lastSeenKey()},
		p.member(connID), nodeMember(identityID, connID), identityID, p.now().UnixMilli(),
	).Err()
	return errors.Wrapf(err, "presence offline %s", identityID)
}

// IsOnline counts unexpired connections across all nodes.
func (p *Presence) IsOnline(ctx context.Context, identityID string) (bool, error) {
	n, err := p.count.Run(ctx, p.rdb, []string{p.identityKey(identityID)}, p.now().Unix()).Int64()
	if err != nil {
		return false, errors.Wrapf(err, "presence count %s", identityID)
	}
	return n > 0, nil
}

// LastSeen returns when the identity's last connection went offline.
func (p *Presence) LastSeen(ctx context.Context, identityID string) (time.Time, bool, error) {
	v, err := p.rdb.HGet(ctx, p.lastSeenKey(), identityID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "presence last seen %s", identityID)
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "presence last seen %s", identityID)
	}
	return time.UnixMilli(ms), true, nil
}

// Refresh re-scores every connection this node owns.
func (p *Presence) Refresh(ctx context.Context) (int, error) {
	members, err := p.rdb.SMembers(ctx, p.nodeKey()).Result()
	if err != nil {
		return 0, errors.Wrap(err, "presence refresh")
	}
	if len(members) == 0 {
		return 0, nil
	}
	exp := p.now().Add(p.conf.TTL).Unix()
	keyTTL := 2 * p.conf.TTL
	_, err = p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range members {
			identityID, connID, ok := splitNodeMember(m)
			if !ok {
				continue
			}
			key := p.identityKey(identityID)
			pipe.ZAddXX(ctx, key, redis.Z{Score: float64(exp), Member: p.member(connID)})
			pipe.Expire(ctx, key, keyTTL)
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "presence refresh")
	}
	return len(members), nil
}

// Reset removes every entry this node left behind, e.g. after a crash.
func (p *Presence) Reset(ctx context.Context) (int, error) {
	members, err := p.rdb.SMembers(ctx, p.nodeKey()).Result()
	if err != nil {
		return 0, errors.Wrap(err, "presence reset")
	}
	_, err = p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range members {
			identityID, connID, ok := splitNodeMember(m)
			if !ok {
				continue
			}
			pipe.ZRem(ctx, p.identityKey(identityID), p.member(connID))
		}
		pipe.Del(ctx, p.nodeKey())
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "presence reset")
	}
	if len(members) > 0 {
		p.log.Info("cleared stale presence", zap.String("node", p.conf.NodeID), zap.Int("conns", len(members)))
	}
	return len(members), nil
}

// RunRefresher refreshes every TTL/3 until ctx is done.
func (p *Presence) RunRefresher(ctx context.Context) {
	t := time.NewTicker(p.conf.TTL / 3)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
				p.log.Warn("presence refresh failed", zap.Error(err))
			}
		}
	}
}
