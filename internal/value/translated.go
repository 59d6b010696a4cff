package value

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
)

// translatedValue returns f(src.Get(ctx)), propagating src's failure
// unchanged and wrapping f's own failure in a TranslationError.
type translatedValue[S, T any] struct {
	src   Value[S]
	f     func(S) (T, error)
	cache *ristretto.Cache[uint64, T]
	gen   *uint64 // bumped by Invalidate to evict the memoized result
}

// TranslateOption configures Translate.
type TranslateOption[S, T any] func(*translatedValue[S, T])

// WithMemoize enables a small ristretto-backed cache in front of f, so a
// translation that's expensive to recompute (parsing a credential blob,
// deriving a derived key) isn't re-run on every Get while the source value
// hasn't changed generation. The generation changes only when Invalidate is
// called, so a memoized result keeps being returned after the source value
// changes until then. A cache miss or eviction simply recomputes f.
func WithMemoize[S, T any](maxCost int64) TranslateOption[S, T] {
	return func(tv *translatedValue[S, T]) {
		cache, err := ristretto.NewCache(&ristretto.Config[uint64, T]{
			NumCounters: maxCost * 10,
			MaxCost:     maxCost,
			BufferItems: 64,
		})
		if err != nil {
			// A cache that fails to construct just means no memoization;
			// Get still works correctly via f, only slower.
			return
		}
		tv.cache = cache
	}
}

// Translate returns a Value applying f to src's value on every Get (unless
// WithMemoize is supplied, in which case repeat reads against the same
// generation are served from cache).
func Translate[S, T any](src Value[S], f func(S) (T, error), opts ...TranslateOption[S, T]) Value[T] {
	gen := new(uint64)
	tv := &translatedValue[S, T]{src: src, f: f, gen: gen}
	for _, opt := range opts {
		opt(tv)
	}
	return tv
}

// Invalidate bumps the translation's generation, forcing the next Get to
// recompute even if WithMemoize is in effect. Callers invoke this when the
// source value is known to have changed identity (e.g. on re-Inject).
func Invalidate[S, T any](tv Value[T]) {
	if t, ok := tv.(*translatedValue[S, T]); ok {
		*t.gen++
		if t.cache != nil {
			t.cache.Clear()
		}
	}
}

func (tv *translatedValue[S, T]) Get(ctx context.Context) (T, error) {
	var zero T

	s, err := tv.src.Get(ctx)
	if err != nil {
		return zero, err
	}

	if tv.cache != nil {
		key := *tv.gen
		if cached, ok := tv.cache.Get(key); ok {
			return cached, nil
		}
		res := result(tv.f(s))
		if res.IsError() {
			return zero, &TranslationError{Cause: res.Error()}
		}
		out := res.MustGet()
		tv.cache.Set(key, out, 1)
		tv.cache.Wait()
		return out, nil
	}

	res := result(tv.f(s))
	if res.IsError() {
		return zero, &TranslationError{Cause: fmt.Errorf("%w", res.Error())}
	}
	return res.MustGet(), nil
}
