package breaker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

type flaky struct {
	fail  atomic.Bool
	calls atomic.Int64
}

var errDown = errors.New("connection refused")

func (f *flaky) Get(context.Context, string) ([]byte, bool, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return nil, false, errDown
	}
	return []byte("v"), true, nil
}

func (f *flaky) Set(context.Context, string, []byte, int64, time.Duration) (bool, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return false, errDown
	}
	return true, nil
}

func (f *flaky) Del(context.Context, string) error {
	f.calls.Add(1)
	if f.fail.Load() {
		return errDown
	}
	return nil
}

func (f *flaky) Close(context.Context) error { return nil }

func TestOpenCircuitMissesWithoutCallingStore(t *testing.T) {
	ctx := context.Background()
	inner := &flaky{}
	p := New(inner, Config{Failures: 2, OpenTimeout: time.Hour})

	inner.fail.Store(true)
	for i := 0; i < 2; i++ {
		if _, _, err := p.Get(ctx, "k"); !errors.Is(err, errDown) {
			t.Fatalf("expected store error, got %v", err)
		}
	}
	if p.State() != gobreaker.StateOpen {
		t.Fatalf("expected open circuit, got %v", p.State())
	}

	before := inner.calls.Load()
	if _, ok, err := p.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("open circuit should miss cleanly, ok=%v err=%v", ok, err)
	}
	if ok, err := p.Set(ctx, "k", []byte("v"), 1, 0); ok || err != nil {
		t.Fatalf("open circuit should reject writes, ok=%v err=%v", ok, err)
	}
	if err := p.Del(ctx, "k"); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("Del must report the open circuit, got %v", err)
	}
	if inner.calls.Load() != before {
		t.Fatalf("store called while open")
	}
}

func TestHalfOpenRecovers(t *testing.T) {
	ctx := context.Background()
	inner := &flaky{}
	var transitions atomic.Int64
	p := New(inner, Config{
		Failures:      1,
		OpenTimeout:   20 * time.Millisecond,
		OnStateChange: func(string, gobreaker.State, gobreaker.State) { transitions.Add(1) },
	})

	inner.fail.Store(true)
	_, _, _ = p.Get(ctx, "k")
	inner.fail.Store(false)
	time.Sleep(40 * time.Millisecond)

	b, ok, err := p.Get(ctx, "k")
	if err != nil || !ok || string(b) != "v" {
		t.Fatalf("expected recovery, got %q ok=%v err=%v", b, ok, err)
	}
	if p.State() != gobreaker.StateClosed {
		t.Fatalf("expected closed circuit, got %v", p.State())
	}
	// closed -> open -> half-open -> closed
	if transitions.Load() != 3 {
		t.Fatalf("expected 3 transitions, got %d", transitions.Load())
	}
}

func TestCancelledCallerDoesNotTrip(t *testing.T) {
	inner := &cancelled{}
	p := New(inner, Config{Failures: 1})
	for i := 0; i < 3; i++ {
		_, _, _ = p.Get(context.Background(), "k")
	}
	if p.State() != gobreaker.StateClosed {
		t.Fatalf("cancellation tripped the circuit")
	}
}

type cancelled struct{ flaky }

func (*cancelled) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, context.Canceled
}
