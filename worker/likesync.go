package worker

import (
	"context"
	"log/slog"
	"time"
)

const (
	queueSize = 1000
	batchSize = 200
)

// DirtySource hands out note ids whose likes changed since the last call.
type DirtySource interface {
	PopDirty(ctx context.Context, n int64) ([]string, error)
}

type LikeCounter interface {
	Count(ctx context.Context, noteID string) (int64, error)
}

type LikeCountWriter interface {
	SetLikeCount(ctx context.Context, noteID string, count int64) error
}

// LikeSync periodically writes the live like count of changed notes back to
// notes.like_count, which the list endpoint sorts on.
type LikeSync struct {
	dirty    DirtySource
	likes    LikeCounter
	notes    LikeCountWriter
	interval time.Duration
	log      *slog.Logger

	queue chan string
}

func NewLikeSync(dirty DirtySource, likes LikeCounter, notes LikeCountWriter, interval time.Duration, log *slog.Logger) *LikeSync {
	if log == nil {
		log = slog.Default()
	}
	return &LikeSync{
		dirty:    dirty,
		likes:    likes,
		notes:    notes,
		interval: interval,
		log:      log,
		queue:    make(chan string, queueSize),
	}
}

// Notify queues a note for the next sync without blocking. It reports false
// when the queue is full; the note is then picked up through the dirty source
// if one is configured.
func (s *LikeSync) Notify(noteID string) bool {
	select {
	case s.queue <- noteID:
		return true
	default:
		return false
	}
}

// Run syncs on every tick until ctx is done, then flushes once more.
func (s *LikeSync) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.SyncOnce(flushCtx)
			cancel()
			return
		case <-ticker.C:
			s.SyncOnce(ctx)
		}
	}
}

// SyncOnce drains pending note ids and returns how many notes were written.
func (s *LikeSync) SyncOnce(ctx context.Context) int {
	pending := map[string]struct{}{}
drain:
	for {
		select {
		case id := <-s.queue:
			pending[id] = struct{}{}
		default:
			break drain
		}
	}
	if s.dirty != nil {
		for {
			ids, err := s.dirty.PopDirty(ctx, batchSize)
			if err != nil {
				s.log.Error("like sync: pop dirty notes", "error", err)
				break
			}
			for _, id := range ids {
				pending[id] = struct{}{}
			}
			if len(ids) < batchSize {
				break
			}
		}
	}

	synced := 0
	for id := range pending {
		count, err := s.likes.Count(ctx, id)
		if err != nil {
			s.log.Error("like sync: count likes", "note_id", id, "error", err)
			s.retry(id)
			continue
		}
		if err := s.notes.SetLikeCount(ctx, id, count); err != nil {
			s.log.Error("like sync: write like count", "note_id", id, "error", err)
			s.retry(id)
			continue
		}
		synced++
	}
	if synced > 0 {
		s.log.Info("like counts synced", "notes", synced)
	}
	return synced
}

// retry puts a note that failed to sync back for the next tick.
func (s *LikeSync) retry(id string) {
	if !s.Notify(id) {
		s.log.Warn("like sync: queue full, dropping note", "note_id", id)
	}
}
