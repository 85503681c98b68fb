package capacity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/pickup-storefront/internal/model"
)

// Fetcher описывает источник счётчиков заказов.
type Fetcher interface {
	FetchCounts(ctx context.Context) (model.RemoteCounts, error)
}

// Syncer хранит последние полученные счётчики и заменяет их целиком при каждом обновлении.
type Syncer struct {
	fetcher Fetcher
	logger  *zap.Logger

	mu        sync.RWMutex
	counts    model.RemoteCounts
	updatedAt time.Time

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(model.RemoteCounts)
}

// NewSyncer создаёт синхронизатор. Без источника счётчики всегда пусты.
func NewSyncer(fetcher Fetcher, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		fetcher: fetcher,
		logger:  logger,
		counts:  model.RemoteCounts{},
		subs:    make(map[int]func(model.RemoteCounts)),
	}
}

// Counts возвращает копию текущих счётчиков.
func (s *Syncer) Counts() model.RemoteCounts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts.Clone()
}

// UpdatedAt возвращает время последнего обновления.
func (s *Syncer) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Subscribe регистрирует обработчик замены счётчиков и возвращает функцию отписки.
func (s *Syncer) Subscribe(fn func(model.RemoteCounts)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// Refresh запрашивает счётчики и заменяет ими текущие. Ошибка запроса не возвращается:
// она логируется, а счётчики становятся пустыми, и доступность определяется только статическими правилами.
func (s *Syncer) Refresh(ctx context.Context) model.RemoteCounts {
	var counts model.RemoteCounts
	if s.fetcher != nil {
		fetched, err := s.fetcher.FetchCounts(ctx)
		if err != nil {
			s.logger.Warn("fetch counts failed, falling back to static rules", zap.Error(err))
		} else {
			counts = fetched
		}
	}
	if counts == nil {
		counts = model.RemoteCounts{}
	}

	s.mu.Lock()
	s.counts = counts.Clone()
	s.updatedAt = time.Now()
	s.mu.Unlock()

	s.subMu.Lock()
	handlers := make([]func(model.RemoteCounts), 0, len(s.subs))
	for _, fn := range s.subs {
		handlers = append(handlers, fn)
	}
	s.subMu.Unlock()

	for _, fn := range handlers {
		fn(counts.Clone())
	}

	return counts.Clone()
}

// StartRefresh периодически обновляет счётчики до отмены контекста.
func (s *Syncer) StartRefresh(ctx context.Context, interval time.Duration) {
	if s.fetcher == nil || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Refresh(ctx)
			}
		}
	}()
}
