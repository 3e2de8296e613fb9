package store

import (
	"bytes"
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ajitpratap0/prepdash/pkg/codec"
	"github.com/ajitpratap0/prepdash/pkg/compression"
	"github.com/ajitpratap0/prepdash/pkg/dataset"
	"github.com/ajitpratap0/prepdash/pkg/errors"
)

const defaultKeyPrefix = "prepdash:dataset:"

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr      string        `yaml:"addr" json:"addr" mapstructure:"addr"`
	Password  string        `yaml:"password" json:"-" mapstructure:"password"`
	DB        int           `yaml:"db" json:"db" mapstructure:"db"`
	KeyPrefix string        `yaml:"key_prefix" json:"key_prefix" mapstructure:"key_prefix"`
	TTL       time.Duration `yaml:"ttl" json:"ttl" mapstructure:"ttl"`
	// Compression applies to stored snapshots; empty means none.
	Compression compression.Algorithm `yaml:"compression" json:"compression" mapstructure:"compression"`
}

// RedisStore keeps snapshots in Redis as split documents, optionally
// compressed. Commits and Touch refresh the key's TTL, so only abandoned
// sessions expire.
type RedisStore struct {
	client *redis.Client
	cfg    RedisConfig
	comp   compression.Compressor
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to redis").
			WithDetail("addr", cfg.Addr)
	}
	return newRedisStore(client, cfg, logger)
}

func newRedisStore(client *redis.Client, cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	if cfg.Compression == "" {
		cfg.Compression = compression.None
	}
	comp, err := compression.NewCompressor(&compression.Config{Algorithm: cfg.Compression, Level: compression.Default})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid store compression")
	}
	return &RedisStore{
		client: client,
		cfg:    cfg,
		comp:   comp,
		logger: logger.With(zap.String("component", "redis-store")),
	}, nil
}

func (r *RedisStore) key(h Handle) string { return r.cfg.KeyPrefix + string(h) }

// encode prefixes the payload with the algorithm name so snapshots written
// under another compression setting stay readable.
func (r *RedisStore) encode(ds *dataset.Dataset) ([]byte, error) {
	doc, err := codec.MarshalSplit(ds)
	if err != nil {
		return nil, err
	}
	packed, err := r.comp.Compress(doc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to compress snapshot")
	}
	out := make([]byte, 0, len(packed)+len(r.cfg.Compression)+1)
	out = append(out, string(r.cfg.Compression)...)
	out = append(out, ':')
	return append(out, packed...), nil
}

func decode(payload []byte) (*dataset.Dataset, error) {
	name, body, ok := bytes.Cut(payload, []byte{':'})
	if !ok {
		return nil, errors.New(errors.ErrorTypeParse, "stored snapshot has no header")
	}
	alg, err := compression.ParseAlgorithm(string(name))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeParse, "stored snapshot has unknown compression")
	}
	comp, err := compression.NewCompressor(&compression.Config{Algorithm: alg})
	if err != nil {
		return nil, err
	}
	doc, err := comp.Decompress(body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeParse, "failed to decompress snapshot")
	}
	return codec.UnmarshalSplit(doc)
}

// Create implements Store.
func (r *RedisStore) Create(ctx context.Context, ds *dataset.Dataset) (Handle, error) {
	h := NewHandle()
	payload, err := r.encode(ds)
	if err != nil {
		return "", err
	}
	if err := r.client.Set(ctx, r.key(h), payload, r.cfg.TTL).Err(); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to store dataset")
	}
	r.logger.Debug("dataset created", zap.String("handle", string(h)), zap.Int("bytes", len(payload)))
	return h, nil
}

// Commit implements Store.
func (r *RedisStore) Commit(ctx context.Context, h Handle, ds *dataset.Dataset) error {
	payload, err := r.encode(ds)
	if err != nil {
		return err
	}
	// XX: only replace an existing handle
	ok, err := r.client.SetXX(ctx, r.key(h), payload, r.cfg.TTL).Result()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to commit dataset")
	}
	if !ok {
		return notFound(h)
	}
	r.logger.Debug("dataset committed", zap.String("handle", string(h)), zap.Int("bytes", len(payload)))
	return nil
}

// Current implements Store.
func (r *RedisStore) Current(ctx context.Context, h Handle) (*dataset.Dataset, error) {
	payload, err := r.client.Get(ctx, r.key(h)).Bytes()
	if err == redis.Nil {
		return nil, notFound(h)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to load dataset")
	}
	return decode(payload)
}

// Touch implements Store by resetting the TTL of every handle.
func (r *RedisStore) Touch(ctx context.Context, handles ...Handle) error {
	if r.cfg.TTL <= 0 || len(handles) == 0 {
		return nil
	}
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, h := range handles {
			p.Expire(ctx, r.key(h), r.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to refresh dataset expiry")
	}
	return nil
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, h Handle) error {
	if err := r.client.Del(ctx, r.key(h)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to delete dataset")
	}
	return nil
}

// Close implements Store.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
