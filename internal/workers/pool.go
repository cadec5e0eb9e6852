package workers

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool runs per-item work with bounded concurrency.
type Pool struct {
	size int
}

// NewPool returns a Pool running at most size items at once. A size below 1 uses ForCPU(0).
func NewPool(size int) *Pool {
	if size < 1 {
		size = ForCPU(0)
	}
	return &Pool{size: size}
}

// Size returns the concurrency bound.
func (p *Pool) Size() int {
	return p.size
}

// Run calls fn for each item, at most Size at a time. Item failures are fn's concern:
// fn has no error return so one failing item never stops its siblings. Once ctx is
// canceled no new items start; items already running finish. fn receives a context that
// keeps ctx's values but is never canceled. Run returns ctx.Err() if ctx was canceled.
func Run[T any](ctx context.Context, p *Pool, items []T, fn func(ctx context.Context, item T)) error {
	g := &errgroup.Group{}
	g.SetLimit(p.size)

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// Checked again after the slot is acquired; cancellation may have happened while waiting.
			if ctx.Err() != nil {
				return nil
			}
			fn(context.WithoutCancel(ctx), item)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}
