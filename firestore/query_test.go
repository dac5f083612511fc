package firestore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/firequery"
)

func querySnap(names ...string) QuerySnapshot[item] {
	qs := QuerySnapshot[item]{Size: len(names)}
	for i, n := range names {
		d := snap(n, i)
		qs.Docs = append(qs.Docs, d)
		qs.Changes = append(qs.Changes, DocumentChange[item]{Kind: Added, Doc: d, OldIndex: -1, NewIndex: i})
	}
	return qs
}

func TestObserveQuerySubscribeForwardsSnapshots(t *testing.T) {
	c := newCache[QuerySnapshot[item]](t, false)
	q := newFakeSource(QuerySnapshot[item]{})

	var sizes []int
	sizesCh := make(chan int, 8)
	o, err := ObserveQuery(c, firequery.Key{"items", "all"}, Resolved[item](q), Options{Subscribe: true},
		firequery.ObserveOptions[QuerySnapshot[item]]{
			OnChange: func(r firequery.Result[QuerySnapshot[item]]) { sizesCh <- r.Data.Size },
		})
	require.NoError(t, err)
	defer o.Close()

	q.snaps <- querySnap("a")
	q.snaps <- querySnap("a", "b")
	q.snaps <- querySnap("a", "b", "c")
	ctx := waitCtx(t)
	for len(sizes) < 3 {
		select {
		case s := <-sizesCh:
			sizes = append(sizes, s)
		case <-ctx.Done():
			t.Fatalf("got %v before timeout", sizes)
		}
	}
	require.Equal(t, []int{1, 2, 3}, sizes)
	require.Len(t, o.Result().Data.Docs, 3)
	require.Zero(t, q.gets.Load())
}

func TestObserveQueryOnceResolvesThenReads(t *testing.T) {
	c := newCache[QuerySnapshot[item]](t, false)
	q := newFakeSource(querySnap("a", "b"))

	var resolves atomic.Int64
	resolve := func(context.Context) (QueryReader[item], error) {
		resolves.Add(1)
		return q, nil
	}
	o, err := ObserveQuery(c, firequery.Key{"items", "once"}, resolve, Options{},
		firequery.ObserveOptions[QuerySnapshot[item]]{})
	require.NoError(t, err)
	defer o.Close()

	r, err := o.Wait(waitCtx(t))
	require.NoError(t, err)
	require.Equal(t, 2, r.Data.Size)
	require.EqualValues(t, 1, resolves.Load())
	require.EqualValues(t, 1, q.gets.Load())
	require.Zero(t, q.listens.Load())
}

func TestObserveQueryCloseDuringResolutionNeverAttaches(t *testing.T) {
	c, err := firequery.New(firequery.Options[QuerySnapshot[item]]{Namespace: "fs-test"})
	require.NoError(t, err)
	q := newFakeSource(QuerySnapshot[item]{})

	// a resolver that ignores ctx and finishes after the observer is gone
	started := make(chan struct{})
	release := make(chan struct{})
	resolve := func(context.Context) (QueryReader[item], error) {
		close(started)
		<-release
		return q, nil
	}

	var deliveries atomic.Int64
	o, err := ObserveQuery(c, firequery.Key{"items", "slow"}, resolve, Options{Subscribe: true},
		firequery.ObserveOptions[QuerySnapshot[item]]{
			OnChange: func(firequery.Result[QuerySnapshot[item]]) { deliveries.Add(1) },
		})
	require.NoError(t, err)

	<-started
	require.NotPanics(t, o.Close)
	close(release)

	// Close waits for the listener goroutine to finish
	require.NoError(t, c.Close(waitCtx(t)))
	require.Zero(t, q.listens.Load(), "listener attached after teardown")
	require.Zero(t, deliveries.Load())
	require.True(t, o.Result().IsLoading())
}

func TestObserveQueryCancelledResolutionIsNotAnError(t *testing.T) {
	c, err := firequery.New(firequery.Options[QuerySnapshot[item]]{Namespace: "fs-test"})
	require.NoError(t, err)

	started := make(chan struct{})
	resolve := func(ctx context.Context) (QueryReader[item], error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	o, err := ObserveQuery(c, firequery.Key{"items", "cancel"}, resolve, Options{Subscribe: true},
		firequery.ObserveOptions[QuerySnapshot[item]]{})
	require.NoError(t, err)

	<-started
	o.Close()
	require.NoError(t, c.Close(waitCtx(t)))
	r, _ := c.Get(firequery.Key{"items", "cancel"})
	require.False(t, r.IsError(), "teardown surfaced as %v", r.Err)
}

func TestObserveQueryResolveErrorPassesThrough(t *testing.T) {
	c := newCache[QuerySnapshot[item]](t, false)
	boom := errors.New("index not ready")
	resolve := func(context.Context) (QueryReader[item], error) { return nil, boom }

	o, err := ObserveQuery(c, firequery.Key{"items", "err"}, resolve, Options{Subscribe: true},
		firequery.ObserveOptions[QuerySnapshot[item]]{})
	require.NoError(t, err)
	defer o.Close()

	r, err := o.Wait(waitCtx(t))
	require.NoError(t, err)
	require.True(t, r.Err == boom)
}

func TestFetchQuery(t *testing.T) {
	c := newCache[QuerySnapshot[item]](t, true)
	q := newFakeSource(querySnap("x", "y", "z"))
	key := firequery.Key{"items", "fetch"}

	got, err := FetchQuery(waitCtx(t), c, key, Resolved[item](q), SourceServer)
	require.NoError(t, err)
	require.Equal(t, 3, got.Size)

	// persisted by the read, so the cache source answers without the server
	cached, err := FetchQuery(waitCtx(t), c, key, Resolved[item](q), SourceCache)
	require.NoError(t, err)
	require.Equal(t, got.Docs, cached.Docs)
	require.EqualValues(t, 1, q.gets.Load())
}

func TestObserveQueryRestartsAfterReobserve(t *testing.T) {
	c := newCache[QuerySnapshot[item]](t, false)
	q := newFakeSource(QuerySnapshot[item]{})
	key := firequery.Key{"items", "again"}
	none := firequery.ObserveOptions[QuerySnapshot[item]]{}

	a, err := ObserveQuery(c, key, Resolved[item](q), Options{Subscribe: true}, none)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return q.listens.Load() == 1 }, 2*time.Second, 2*time.Millisecond)
	a.Close()
	require.Eventually(t, func() bool { return q.stops.Load() == 1 }, 2*time.Second, 2*time.Millisecond)

	b, err := ObserveQuery(c, key, Resolved[item](q), Options{Subscribe: true}, none)
	require.NoError(t, err)
	defer b.Close()
	require.Eventually(t, func() bool { return q.listens.Load() == 2 }, 2*time.Second, 2*time.Millisecond)
}
