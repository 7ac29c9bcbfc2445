package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"OptEdge/internal/domain/models"
	"OptEdge/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

// Key layout maintained by the external market data collector.
const (
	redisQuoteKey = "md:quote:%s"
	redisBarsKey  = "md:bars:%s:%s"
	redisVixKey   = "md:vix"
)

// RedisSource reads market data another process keeps warm in Redis. A
// missing key means the collector is not covering that symbol, which is
// terminal for this source until it self-heals.
type RedisSource struct {
	cli       *redis.Client
	connected atomic.Bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisSource(cfg RedisConfig) *RedisSource {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	return &RedisSource{cli: rdb}
}

func (s *RedisSource) Name() string { return SourceRedis }

func (s *RedisSource) Connect(ctx context.Context) error {
	if err := s.cli.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connect: %w", errors.Join(ErrSourceUnavailable, err))
	}
	s.connected.Store(true)
	return nil
}

func (s *RedisSource) IsConnected() bool { return s.connected.Load() }

func (s *RedisSource) Close() error {
	s.connected.Store(false)
	return s.cli.Close()
}

func (s *RedisSource) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	var q models.Quote
	if err := s.getJSON(ctx, fmt.Sprintf(redisQuoteKey, symbol), &q); err != nil {
		return models.Quote{}, fmt.Errorf("redis quote %s: %w", symbol, err)
	}
	q.Symbol = symbol
	q.Source = SourceRedis
	return q, nil
}

func (s *RedisSource) Bars(ctx context.Context, symbol string, count int, interval repository.Interval) ([]models.Bar, error) {
	var bars []models.Bar
	if err := s.getJSON(ctx, fmt.Sprintf(redisBarsKey, symbol, interval), &bars); err != nil {
		return nil, fmt.Errorf("redis bars %s: %w", symbol, err)
	}
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	return bars, nil
}

func (s *RedisSource) Vix(ctx context.Context) (models.VixSnapshot, error) {
	var v models.VixSnapshot
	if err := s.getJSON(ctx, redisVixKey, &v); err != nil {
		return models.VixSnapshot{}, fmt.Errorf("redis vix: %w", err)
	}
	v.Source = SourceRedis
	return v, nil
}

func (s *RedisSource) getJSON(ctx context.Context, key string, dest interface{}) error {
	b, err := s.cli.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("key %s absent: %w", key, ErrSubscriptionMissing)
		}
		return errors.Join(ErrSourceUnavailable, err)
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
