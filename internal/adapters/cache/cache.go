// Package cache puts a Redis read-through cache in front of a name store.
// The store stays authoritative: cache faults are logged and skipped.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/PerkOS-xyz/UniPerk/internal/domain"
	"github.com/redis/rueidis"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "uniperk:name:"

var ErrCacheMiss = errors.New("cache miss")

// Backend is the slice of a key/value store the cache needs.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type RueidisBackend struct {
	client rueidis.Client
}

func Dial(ctx context.Context, addr string, db int) (*RueidisBackend, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{addr},
		SelectDB:    db,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, err
	}
	return &RueidisBackend{client: client}, nil
}

func (b *RueidisBackend) Close() {
	b.client.Close()
}

func (b *RueidisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.client.Do(ctx, b.client.B().Get().Key(key).Build()).AsBytes()
	if rueidis.IsRedisNil(err) {
		return nil, ErrCacheMiss
	}
	return v, err
}

func (b *RueidisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	secs := int64(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return b.client.Do(ctx, b.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).ExSeconds(secs).Build()).Error()
}

func (b *RueidisBackend) Del(ctx context.Context, key string) error {
	return b.client.Do(ctx, b.client.B().Del().Key(key).Build()).Error()
}

// NameRepository caches GetName results and drops the entry on every write
// to that name. Owner lookups and listings always reach the store.
type NameRepository struct {
	next    domain.NameRepository
	backend Backend
	ttl     time.Duration
	log     zerolog.Logger
	group   singleflight.Group
}

func NewNameRepository(next domain.NameRepository, backend Backend, ttl time.Duration, log zerolog.Logger) *NameRepository {
	return &NameRepository{next: next, backend: backend, ttl: ttl, log: log}
}

func (r *NameRepository) GetName(ctx context.Context, name string) (domain.NameRecord, error) {
	key := keyPrefix + name
	if raw, err := r.backend.Get(ctx, key); err == nil {
		var rec domain.NameRecord
		if err := json.Unmarshal(raw, &rec); err == nil {
			return rec, nil
		}
		r.log.Warn().Str("key", key).Msg("dropping undecodable cache entry")
	} else if !errors.Is(err, ErrCacheMiss) {
		r.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		rec, err := r.next.GetName(ctx, name)
		if err != nil {
			return domain.NameRecord{}, err
		}
		if raw, err := json.Marshal(rec); err == nil {
			if err := r.backend.Set(ctx, key, raw, r.ttl); err != nil {
				r.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
			}
		}
		return rec, nil
	})
	if err != nil {
		return domain.NameRecord{}, err
	}
	return v.(domain.NameRecord), nil
}

func (r *NameRepository) GetNameByOwner(ctx context.Context, owner string) (string, error) {
	return r.next.GetNameByOwner(ctx, owner)
}

func (r *NameRepository) CreateName(ctx context.Context, value domain.NameRecord) error {
	if err := r.next.CreateName(ctx, value); err != nil {
		return err
	}
	r.invalidate(ctx, value.Name)
	return nil
}

func (r *NameRepository) MergeTexts(ctx context.Context, name, owner string, texts map[string]string) (bool, error) {
	ok, err := r.next.MergeTexts(ctx, name, owner, texts)
	if err != nil {
		return false, err
	}
	if ok {
		r.invalidate(ctx, name)
	}
	return ok, nil
}

func (r *NameRepository) ListNames(ctx context.Context, limit, offset int) ([]domain.NameSummary, error) {
	return r.next.ListNames(ctx, limit, offset)
}

func (r *NameRepository) invalidate(ctx context.Context, name string) {
	if err := r.backend.Del(ctx, keyPrefix+name); err != nil {
		r.log.Warn().Err(err).Str("name", name).Msg("cache invalidation failed")
	}
}
