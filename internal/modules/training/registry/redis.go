package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
)

const keyPrefix = "modelforge:models:"

type redisClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *goredis.IntCmd
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
	Ping(ctx context.Context) *goredis.StatusCmd
	Close() error
}

type RedisRegistrar struct {
	log     *logger.Logger
	rdb     redisClient
	channel string
}

func NewRedisRegistrar(ctx context.Context, log *logger.Logger, addr, channel string) (*RedisRegistrar, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = "modelforge.models"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisRegistrar(log, rdb, channel), nil
}

func newRedisRegistrar(log *logger.Logger, rdb redisClient, channel string) *RedisRegistrar {
	return &RedisRegistrar{
		log:     log.With("service", "RedisRegistrar"),
		rdb:     rdb,
		channel: channel,
	}
}

// Register stores the metadata under the tenant's hash and publishes it.
func (r *RedisRegistrar) Register(ctx context.Context, m ModelMetadata) error {
	if r == nil || r.rdb == nil {
		return fmt.Errorf("redis registrar not initialized")
	}
	if m.RegisteredAt.IsZero() {
		m.RegisteredAt = time.Now().UTC()
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	key := keyPrefix + strconv.FormatInt(m.CompanyID, 10)
	if err := r.rdb.HSet(ctx, key, m.Name, raw).Err(); err != nil {
		return fmt.Errorf("registry hset %s: %w", key, err)
	}
	if err := r.rdb.Publish(ctx, r.channel, raw).Err(); err != nil {
		return fmt.Errorf("registry publish %s: %w", r.channel, err)
	}
	r.log.Debug("Registered model", "company_id", m.CompanyID, "name", m.Name, "status", m.Status)
	return nil
}

func (r *RedisRegistrar) Ping(ctx context.Context) error {
	if r == nil || r.rdb == nil {
		return fmt.Errorf("redis registrar not initialized")
	}
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisRegistrar) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}
