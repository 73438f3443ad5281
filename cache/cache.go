// Package cache keeps like and bookmark counts in Redis in front of the
// database. Every method is safe on a nil *Counts, which simply reads through
// to the loader.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	KindLikes     = "likes"
	KindBookmarks = "bookmarks"

	prefix   = "noteflow:"
	dirtyKey = prefix + "likes:dirty"
)

type Loader func(ctx context.Context) (int64, error)

type Counts struct {
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

// Connect opens a client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func New(rdb *redis.Client, ttl time.Duration, log *slog.Logger) *Counts {
	if log == nil {
		log = slog.Default()
	}
	return &Counts{rdb: rdb, ttl: ttl, log: log}
}

func countKey(kind, noteID string) string {
	return prefix + kind + ":count:" + noteID
}

func (c *Counts) enabled() bool {
	return c != nil && c.rdb != nil
}

func versionKey(kind, noteID string) string {
	return prefix + kind + ":version:" + noteID
}

var errStale = errors.New("count changed while loading")

// Count returns the cached count or loads and caches it. Redis errors are
// logged and answered from load. A loaded value is only cached when no
// Invalidate ran for the note while it was loading.
func (c *Counts) Count(ctx context.Context, kind, noteID string, load Loader) (int64, error) {
	if !c.enabled() {
		return load(ctx)
	}
	key, ver := countKey(kind, noteID), versionKey(kind, noteID)

	val, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if n, perr := strconv.ParseInt(val, 10, 64); perr == nil {
			return n, nil
		}
	case !errors.Is(err, redis.Nil):
		c.log.Warn("redis get failed", "key", key, "error", err)
		return load(ctx)
	}

	before, err := c.rdb.Get(ctx, ver).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.Warn("redis get failed", "key", ver, "error", err)
		return load(ctx)
	}

	n, err := load(ctx)
	if err != nil {
		return 0, err
	}

	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		now, err := tx.Get(ctx, ver).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if now != before {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, n, c.ttl)
			return nil
		})
		return err
	}, ver)
	if err != nil && !errors.Is(err, errStale) && !errors.Is(err, redis.TxFailedErr) {
		c.log.Warn("redis set failed", "key", key, "error", err)
	}
	return n, nil
}

// Invalidate drops the cached count and bumps its version so loads already
// in flight do not cache their result. Like changes also mark the note for
// the like count sync.
func (c *Counts) Invalidate(ctx context.Context, kind, noteID string) {
	if !c.enabled() {
		return
	}
	ver := versionKey(kind, noteID)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, countKey(kind, noteID))
		pipe.Incr(ctx, ver)
		pipe.Expire(ctx, ver, c.ttl)
		if kind == KindLikes {
			pipe.SAdd(ctx, dirtyKey, noteID)
		}
		return nil
	})
	if err != nil {
		c.log.Warn("redis invalidate failed", "kind", kind, "note_id", noteID, "error", err)
	}
}

// PopDirty removes and returns up to n note ids whose likes changed.
func (c *Counts) PopDirty(ctx context.Context, n int64) ([]string, error) {
	if !c.enabled() {
		return nil, nil
	}
	ids, err := c.rdb.SPopN(ctx, dirtyKey, n).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pop dirty notes: %w", err)
	}
	return ids, nil
}
