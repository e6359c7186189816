// Package lock сериализует решения об удалении по ключу содержимого.
package lock

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var ErrLocked = errors.New("key is locked")

// Locker неблокирующая блокировка по строковому ключу
type Locker interface {
	TryLock(ctx context.Context, key string) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// AcquireAll берет все ключи в отсортированном порядке.
// Если хоть один занят, уже взятые отпускаются и возвращается ErrLocked.
func AcquireAll(ctx context.Context, l Locker, keys []string) (func(), error) {
	uniq := make(map[string]struct{}, len(keys))
	sorted := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := uniq[k]; ok {
			continue
		}
		uniq[k] = struct{}{}
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	held := make([]string, 0, len(sorted))
	release := func() {
		// отпускаем даже если исходный контекст уже отменен
		for i := len(held) - 1; i >= 0; i-- {
			_ = l.Unlock(context.WithoutCancel(ctx), held[i])
		}
	}

	for _, k := range sorted {
		ok, err := l.TryLock(ctx, k)
		if err != nil {
			release()
			return nil, err
		}
		if !ok {
			release()
			return nil, ErrLocked
		}
		held = append(held, k)
	}

	return release, nil
}

// LocalLocker блокировка в пределах одного процесса
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) TryLock(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return false, nil
	}
	l.held[key] = struct{}{}
	return true, nil
}

func (l *LocalLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.held, key)
	return nil
}
