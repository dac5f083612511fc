//go:build integration

package firestore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	fs "cloud.google.com/go/firestore"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/firequery"
)

func setupEmulator(t *testing.T) *fs.CollectionRef {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Setenv("FIRESTORE_EMULATOR_HOST", "localhost:8681")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := fs.NewClient(ctx, "firequery-test")
	if err != nil {
		t.Skipf("Firestore emulator not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	coll := client.Collection(fmt.Sprintf("firequery-test-%d", time.Now().UnixNano()))
	if _, err := coll.Doc("probe").Set(ctx, item{Name: "probe"}); err != nil {
		t.Skipf("Firestore emulator not available: %v", err)
	}
	return coll
}

func TestEmulatorDocumentLifecycle(t *testing.T) {
	coll := setupEmulator(t)
	ctx := waitCtx(t)
	ref := coll.Doc("a")

	c := newCache[DocumentSnapshot[item]](t, true)

	missing, err := FetchDocument(ctx, c, firequery.Key{"missing"}, Doc[item](coll.Doc("nope")), SourceServer)
	require.NoError(t, err)
	require.False(t, missing.Exists)

	_, err = ref.Set(ctx, item{Name: "a", Count: 1})
	require.NoError(t, err)

	o, err := ObserveDocument(c, firequery.Key{"a"}, Doc[item](ref), Options{Subscribe: true},
		firequery.ObserveOptions[DocumentSnapshot[item]]{})
	require.NoError(t, err)
	defer o.Close()

	require.Eventually(t, func() bool { return o.Result().Data.Data.Count == 1 }, 5*time.Second, 10*time.Millisecond)

	_, err = ref.Set(ctx, item{Name: "a", Count: 2})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return o.Result().Data.Data.Count == 2 }, 5*time.Second, 10*time.Millisecond)

	_, err = ref.Delete(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !o.Result().Data.Exists }, 5*time.Second, 10*time.Millisecond)
}

func TestEmulatorQuery(t *testing.T) {
	coll := setupEmulator(t)
	ctx := waitCtx(t)

	for i, n := range []string{"x", "y"} {
		_, err := coll.Doc(n).Set(ctx, item{Name: n, Count: 10 + i})
		require.NoError(t, err)
	}
	q := Query[item](coll.Where("count", ">=", 10))
	c := newCache[QuerySnapshot[item]](t, false)

	once, err := FetchQuery(ctx, c, firequery.Key{"q", "once"}, Resolved(q), SourceServer)
	require.NoError(t, err)
	require.Equal(t, 2, once.Size)

	o, err := ObserveQuery(c, firequery.Key{"q", "live"}, Resolved(q), Options{Subscribe: true},
		firequery.ObserveOptions[QuerySnapshot[item]]{})
	require.NoError(t, err)
	defer o.Close()
	require.Eventually(t, func() bool { return o.Result().Data.Size == 2 }, 5*time.Second, 10*time.Millisecond)

	_, err = coll.Doc("z").Set(ctx, item{Name: "z", Count: 12})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		r := o.Result()
		return r.Data.Size == 3 && len(r.Data.Changes) == 1 && r.Data.Changes[0].Kind == Added
	}, 5*time.Second, 10*time.Millisecond)
}
