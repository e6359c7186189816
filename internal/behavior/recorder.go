// Package behavior записывает события действий пользователей в фоне.
package behavior

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"filecollector/internal/domain"
	"filecollector/internal/metrics"
)

type Store interface {
	Insert(ctx context.Context, b domain.Behavior) error
}

// Recorder принимает события без ожидания записи в базу
type Recorder struct {
	store   Store
	events  chan domain.Behavior
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewRecorder(store Store, buffer int, m *metrics.Metrics) *Recorder {
	if buffer <= 0 {
		buffer = 1
	}
	return &Recorder{
		store:   store,
		events:  make(chan domain.Behavior, buffer),
		metrics: m,
		now:     time.Now,
	}
}

// Record никогда не блокирует: при переполненном буфере событие теряется
func (r *Recorder) Record(module, msg string, data map[string]interface{}) {
	b := domain.Behavior{Module: module, Msg: msg, Data: data, CreatedAt: r.now()}
	select {
	case r.events <- b:
	default:
		r.metrics.BehaviorsDropped.Inc()
		log.Warn().Str("module", module).Str("msg", msg).Msg("behavior buffer full, event dropped")
	}
}

// Run пишет события до отмены контекста, затем сбрасывает остаток буфера
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case b := <-r.events:
			r.write(ctx, b)
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case b := <-r.events:
			r.write(ctx, b)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, b domain.Behavior) {
	if err := r.store.Insert(ctx, b); err != nil {
		log.Warn().Err(err).Str("module", b.Module).Msg("failed to store behavior")
	}
}
