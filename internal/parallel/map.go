package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map is a parallel mapping function, which runs mapFunc for every element of
// input with at most limit calls in flight and waits for completion.
// Unlike a channel fan-in, results are stored at the index of their input, so
// the output order always matches the input order.
// Map is context aware: once ctx is canceled no new calls are started and
// ctx.Err() is returned. The first mapFunc error cancels the rest.
func Map[E, D any](ctx context.Context, limit int, input []E, mapFunc func(context.Context, E) (D, error)) ([]D, error) {
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	out := make([]D, len(input))
	for idx, entry := range input {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			d, err := mapFunc(gctx, entry)
			if err != nil {
				return err
			}
			out[idx] = d
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
