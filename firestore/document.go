package firestore

import (
	"context"

	"github.com/unkn0wn-root/firequery"
)

// ObserveDocument returns an observer of doc stored under key.
//
// With opts.Subscribe the first observer of key attaches a realtime listener
// that every later observer shares; each snapshot is pushed to the cache in
// the order the listener emits it, and closing the last observer detaches the
// listener. Without it the document is read once from opts.Source.
func ObserveDocument[T any](
	c *firequery.Cache[DocumentSnapshot[T]],
	key firequery.Key,
	doc DocumentReader[T],
	opts Options,
	qopts firequery.ObserveOptions[DocumentSnapshot[T]],
) (*firequery.Observer[DocumentSnapshot[T]], error) {
	return c.Observe(key, documentRequest(c, key, doc, opts), qopts)
}

// FetchDocument reads doc once through the cache and waits for the result.
func FetchDocument[T any](
	ctx context.Context,
	c *firequery.Cache[DocumentSnapshot[T]],
	key firequery.Key,
	doc DocumentReader[T],
	src Source,
) (DocumentSnapshot[T], error) {
	return c.Fetch(ctx, key, fetchFn(c, key, src, doc.Get))
}

func documentRequest[T any](
	c *firequery.Cache[DocumentSnapshot[T]],
	key firequery.Key,
	doc DocumentReader[T],
	opts Options,
) firequery.Request[DocumentSnapshot[T]] {
	listen := func(ctx context.Context) (Iterator[DocumentSnapshot[T]], error) {
		return doc.Listen(ctx), nil
	}
	return request(c, key, opts, doc.Get, listen)
}
