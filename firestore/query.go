package firestore

import (
	"context"

	"github.com/unkn0wn-root/firequery"
)

// QueryResolver produces the query to read or listen to. It runs on every
// read and on every listener start, under the context of that read or
// listener; a resolver that blocks should honour ctx.
type QueryResolver[T any] func(ctx context.Context) (QueryReader[T], error)

// Resolved wraps a query that needs no resolution.
func Resolved[T any](q QueryReader[T]) QueryResolver[T] {
	return func(context.Context) (QueryReader[T], error) { return q, nil }
}

// ObserveQuery returns an observer of the query produced by resolve, stored
// under key. Modes match ObserveDocument.
//
// Resolution runs inside the listener's context: closing the last observer
// while the query is still resolving cancels it, no snapshot is delivered
// and the listener is never attached.
func ObserveQuery[T any](
	c *firequery.Cache[QuerySnapshot[T]],
	key firequery.Key,
	resolve QueryResolver[T],
	opts Options,
	qopts firequery.ObserveOptions[QuerySnapshot[T]],
) (*firequery.Observer[QuerySnapshot[T]], error) {
	return c.Observe(key, queryRequest(c, key, resolve, opts), qopts)
}

// FetchQuery resolves and reads the query once through the cache.
func FetchQuery[T any](
	ctx context.Context,
	c *firequery.Cache[QuerySnapshot[T]],
	key firequery.Key,
	resolve QueryResolver[T],
	src Source,
) (QuerySnapshot[T], error) {
	return c.Fetch(ctx, key, fetchFn(c, key, src, resolvedGet(resolve)))
}

func queryRequest[T any](
	c *firequery.Cache[QuerySnapshot[T]],
	key firequery.Key,
	resolve QueryResolver[T],
	opts Options,
) firequery.Request[QuerySnapshot[T]] {
	listen := func(ctx context.Context) (Iterator[QuerySnapshot[T]], error) {
		q, err := resolve(ctx)
		if err != nil {
			return nil, err
		}
		// torn down while resolving
		if ctx.Err() != nil {
			return nil, nil
		}
		return q.Listen(ctx), nil
	}
	return request(c, key, opts, resolvedGet(resolve), listen)
}

func resolvedGet[T any](resolve QueryResolver[T]) func(context.Context) (QuerySnapshot[T], error) {
	return func(ctx context.Context) (QuerySnapshot[T], error) {
		q, err := resolve(ctx)
		if err != nil {
			return QuerySnapshot[T]{}, err
		}
		return q.Get(ctx)
	}
}
