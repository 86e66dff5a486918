// Package memo は、一度だけ計算して結果を共有する遅延初期化プリミティブを提供します。
package memo

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// BuildFunc は、値を構築する関数です。
type BuildFunc[T any] func(ctx context.Context) (T, error)

// Lazy は、最初の Get で値を構築し、以降は同じ値を返します。
//
// 構築中は排他区間を保持し、「キャッシュ確認→構築→格納」全体を直列化します。
// 構築に失敗した場合は何も格納せず、次の Get で再試行します。
// 構築完了後の読み取りはロックを取りません。
type Lazy[T any] struct {
	build BuildFunc[T]
	sem   *semaphore.Weighted
	value atomic.Pointer[T]
}

// New は、新しい Lazy を返します。
func New[T any](build BuildFunc[T]) *Lazy[T] {
	return &Lazy[T]{
		build: build,
		sem:   semaphore.NewWeighted(1),
	}
}

// Get は、キャッシュ済みの値を返すか、未構築であれば構築します。
// 排他区間の待機中に ctx がキャンセルされた場合は ctx.Err() を返します。
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	if v := l.value.Load(); v != nil {
		return *v, nil
	}

	var zero T
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	defer l.sem.Release(1)

	// 待機中に他の呼び出し元が構築を終えている場合
	if v := l.value.Load(); v != nil {
		return *v, nil
	}

	v, err := l.build(ctx)
	if err != nil {
		return zero, err
	}
	l.value.Store(&v)
	return v, nil
}

// Peek は、構築済みであれば値と true を返します。構築は行いません。
func (l *Lazy[T]) Peek() (T, bool) {
	if v := l.value.Load(); v != nil {
		return *v, true
	}
	var zero T
	return zero, false
}

// Reset は、キャッシュを破棄して未構築の状態に戻します。
// 構築中の呼び出しがあれば、その完了を待ってから破棄します。
func (l *Lazy[T]) Reset() {
	// Acquire は context.Background では失敗しない
	_ = l.sem.Acquire(context.Background(), 1)
	defer l.sem.Release(1)
	l.value.Store(nil)
}
