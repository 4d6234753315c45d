// Package workerpool provides the fixed-size worker pool shared by every
// request. It bounds the number of in-flight store calls process-wide and is
// sized once at startup.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"
)

// DefaultSize is used when a non-positive size is configured.
const DefaultSize = 64

// Pool limits concurrent task execution across all callers.
type Pool struct {
	sem         *semaphore.Weighted
	size        int
	callTimeout time.Duration
}

// New creates a pool with size slots. Every task gets its own deadline of
// callTimeout when it is positive.
func New(size int, callTimeout time.Duration) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{
		sem:         semaphore.NewWeighted(int64(size)),
		size:        size,
		callTimeout: callTimeout,
	}
}

func (p *Pool) Size() int {
	return p.size
}

func (p *Pool) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire worker: %w", err)
	}
	defer p.sem.Release(1)

	if p.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.callTimeout)
		defer cancel()
	}
	return fn(ctx)
}

// Each runs fn once per item on the pool and waits for all of them. The
// returned slice is index-aligned with items; a nil entry means success.
func Each[T any](ctx context.Context, p *Pool, items []T, fn func(ctx context.Context, item T) error) []error {
	errs := make([]error, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = p.call(ctx, func(ctx context.Context) error {
				return fn(ctx, item)
			})
		}()
	}
	wg.Wait()

	return errs
}

// Join returns the first non-nil error with all later ones attached to it.
// errors.Is and errors.As see only the first error.
func Join(errs []error) error {
	var first error
	var rest *multierror.Error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if first == nil {
			first = err
			continue
		}
		rest = multierror.Append(rest, err)
	}
	if first == nil {
		return nil
	}
	if rest == nil {
		return first
	}
	rest.ErrorFormat = ListFormat
	return fmt.Errorf("%w (suppressed: %v)", first, rest)
}

// ListFormat renders a multierror on a single line, separated by semicolons.
func ListFormat(es []error) string {
	s := ""
	for i, e := range es {
		if i > 0 {
			s += "; "
		}
		s += e.Error()
	}
	return s
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for len(items) > 0 {
		n := min(size, len(items))
		out = append(out, items[:n:n])
		items = items[n:]
	}
	return out
}
