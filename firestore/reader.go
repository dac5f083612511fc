package firestore

import (
	"context"
	"errors"
	"time"

	fs "cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Iterator yields listener snapshots. Next blocks until the next snapshot or
// an error; errors are terminal. Stop releases the listener.
type Iterator[S any] interface {
	Next() (S, error)
	Stop()
}

// DocumentReader reads and listens to one document.
type DocumentReader[T any] interface {
	Get(ctx context.Context) (DocumentSnapshot[T], error)
	Listen(ctx context.Context) Iterator[DocumentSnapshot[T]]
}

// QueryReader reads and listens to a query.
type QueryReader[T any] interface {
	Get(ctx context.Context) (QuerySnapshot[T], error)
	Listen(ctx context.Context) Iterator[QuerySnapshot[T]]
}

// Doc returns a DocumentReader decoding ref into T with DataTo.
func Doc[T any](ref *fs.DocumentRef) DocumentReader[T] {
	return docReader[T]{ref: ref}
}

// Query returns a QueryReader decoding every result document into T.
func Query[T any](q fs.Query) QueryReader[T] {
	return queryReader[T]{q: q}
}

type docReader[T any] struct {
	ref *fs.DocumentRef
}

func (r docReader[T]) Get(ctx context.Context) (DocumentSnapshot[T], error) {
	snap, err := r.ref.Get(ctx)
	return documentResult[T](r.ref, snap, err)
}

func (r docReader[T]) Listen(ctx context.Context) Iterator[DocumentSnapshot[T]] {
	return &docIter[T]{ref: r.ref, it: r.ref.Snapshots(ctx)}
}

type docIter[T any] struct {
	ref *fs.DocumentRef
	it  *fs.DocumentSnapshotIterator
}

func (d *docIter[T]) Next() (DocumentSnapshot[T], error) {
	snap, err := d.it.Next()
	if err != nil {
		return DocumentSnapshot[T]{}, err
	}
	return fromDocument[T](d.ref, snap)
}

func (d *docIter[T]) Stop() { d.it.Stop() }

type queryReader[T any] struct {
	q fs.Query
}

func (r queryReader[T]) Get(ctx context.Context) (QuerySnapshot[T], error) {
	it := r.q.Documents(ctx)
	defer it.Stop()

	var snaps []*fs.DocumentSnapshot
	var readTime time.Time
	for {
		s, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return QuerySnapshot[T]{}, err
		}
		if s.ReadTime.After(readTime) {
			readTime = s.ReadTime
		}
		snaps = append(snaps, s)
	}
	docs, err := fromDocuments[T](snaps)
	if err != nil {
		return QuerySnapshot[T]{}, err
	}
	return QuerySnapshot[T]{Docs: docs, Size: len(docs), ReadTime: readTime}, nil
}

func (r queryReader[T]) Listen(ctx context.Context) Iterator[QuerySnapshot[T]] {
	return &queryIter[T]{it: r.q.Snapshots(ctx)}
}

type queryIter[T any] struct {
	it *fs.QuerySnapshotIterator
}

func (q *queryIter[T]) Next() (QuerySnapshot[T], error) {
	snap, err := q.it.Next()
	if err != nil {
		return QuerySnapshot[T]{}, err
	}
	all, err := snap.Documents.GetAll()
	if err != nil {
		return QuerySnapshot[T]{}, err
	}
	docs, err := fromDocuments[T](all)
	if err != nil {
		return QuerySnapshot[T]{}, err
	}
	changes, err := fromChanges[T](snap.Changes)
	if err != nil {
		return QuerySnapshot[T]{}, err
	}
	return QuerySnapshot[T]{Docs: docs, Changes: changes, Size: snap.Size, ReadTime: snap.ReadTime}, nil
}

func (q *queryIter[T]) Stop() { q.it.Stop() }
