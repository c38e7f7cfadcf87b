package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"quizo/internal/model"
)

const (
	DefaultRecentLimit = 20
	MaxRecentLimit     = 200
)

var ErrStoreClosed = errors.New("attempt store is closed")

// AttemptStore 作答记录的持久化接口：只追加，主键自动递增
type AttemptStore interface {
	// Append 写入一条记录并回填 ID
	Append(ctx context.Context, attempt *model.Attempt) error
	// Recent 按 ID 倒序返回最近的记录
	Recent(ctx context.Context, limit int) ([]model.Attempt, error)
	Ping(ctx context.Context) error
	Close() error
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		return MaxRecentLimit
	}
	return limit
}

// MemoryAttemptRepository 进程内实现，重启后数据丢失
type MemoryAttemptRepository struct {
	mu       sync.RWMutex
	seq      uint
	attempts []model.Attempt
	closed   bool
}

func NewMemoryAttemptRepository() *MemoryAttemptRepository {
	return &MemoryAttemptRepository{}
}

func (r *MemoryAttemptRepository) Append(ctx context.Context, attempt *model.Attempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrStoreClosed
	}
	r.seq++
	attempt.ID = r.seq
	r.attempts = append(r.attempts, *attempt)
	return nil
}

func (r *MemoryAttemptRepository) Recent(ctx context.Context, limit int) ([]model.Attempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrStoreClosed
	}

	sorted := make([]model.Attempt, len(r.attempts))
	copy(sorted, r.attempts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID > sorted[j].ID
	})

	limit = normalizeLimit(limit)
	if limit > len(sorted) {
		limit = len(sorted)
	}
	return sorted[:limit], nil
}

func (r *MemoryAttemptRepository) Ping(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrStoreClosed
	}
	return ctx.Err()
}

func (r *MemoryAttemptRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	return nil
}
