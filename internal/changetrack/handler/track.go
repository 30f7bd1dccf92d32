package handler

import (
	"context"

	"casetrail/pkg/requestcontext"
)

// Track runs mutate between the two captures and publishes afterwards. It
// returns mutate's error and nothing else: audit problems are handled inside
// h. When mutate fails nothing is published. An empty originatorID falls back
// to the originator stored in ctx.
func Track[E any](ctx context.Context, h Handler[E], entity E, originatorID string, mutate func(ctx context.Context) error) error {
	h.CaptureBefore(ctx, entity)
	if err := mutate(ctx); err != nil {
		return err
	}
	h.CaptureAfter(ctx, entity)

	if originatorID == "" {
		originatorID = requestcontext.Originator(ctx)
	}
	h.Publish(ctx, originatorID)
	return nil
}
