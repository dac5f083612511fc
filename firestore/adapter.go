package firestore

import (
	"context"
	"errors"

	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/unkn0wn-root/firequery"
)

// request translates adapter options into a cache request. Fetch is set in
// both modes so observers can Refetch a subscribed entry.
func request[S any](c *firequery.Cache[S], key firequery.Key, opts Options,
	get func(context.Context) (S, error),
	listen func(context.Context) (Iterator[S], error),
) firequery.Request[S] {
	return firequery.Request[S]{
		Fetch:     fetchFn(c, key, opts.Source, get),
		Subscribe: subscribeFn(listen),
		OnlyOnce:  !opts.Subscribe,
	}
}

// subscribeFn forwards every listener snapshot to the cache until ctx ends.
// listen may return a nil iterator with a nil error when ctx ended before the
// listener could be attached.
func subscribeFn[S any](listen func(context.Context) (Iterator[S], error)) firequery.SubscribeFunc[S] {
	return func(ctx context.Context, emit firequery.Emitter[S]) error {
		it, err := listen(ctx)
		if err != nil || it == nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		defer it.Stop()

		for {
			s, err := it.Next()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			}
			emit.Next(s)
		}
	}
}

// fetchFn builds the one-shot read for src.
func fetchFn[S any](c *firequery.Cache[S], key firequery.Key, src Source, get func(context.Context) (S, error)) firequery.FetchFunc[S] {
	// served values keep their stored UpdatedAt and are not persisted again
	stored := c.StoredFetch(key)
	fromStore := func(ctx context.Context) (S, error) {
		v, err := stored(ctx)
		if errors.Is(err, firequery.ErrNotStored) {
			return v, ErrNotCached
		}
		return v, err
	}

	switch src {
	case SourceCache:
		return fromStore
	case SourceServer:
		return get
	default:
		return func(ctx context.Context) (S, error) {
			v, err := get(ctx)
			if err == nil || status.Code(err) != codes.Unavailable {
				return v, err
			}
			if cached, cerr := fromStore(ctx); cerr == nil {
				return cached, nil
			}
			return v, err
		}
	}
}
