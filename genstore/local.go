package genstore

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	gen       uint64
	updatedAt time.Time
}

// Local keeps generations in process memory. When both cleanupInterval and
// retention are positive a background loop prunes entries that have not been
// bumped for longer than retention; a pruned key reads as generation 0 again.
type Local struct {
	mu   sync.RWMutex
	gens map[string]localEntry

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ GenStore = (*Local)(nil)

func NewLocal(cleanupInterval, retention time.Duration) *Local {
	s := &Local{gens: make(map[string]localEntry)}
	if cleanupInterval > 0 && retention > 0 {
		s.stop = make(chan struct{})
		s.wg.Add(1)
		go s.sweep(cleanupInterval, retention)
	}
	return s
}

func (s *Local) sweep(every, retention time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Cleanup(retention)
		case <-s.stop:
			return
		}
	}
}

func (s *Local) Snapshot(_ context.Context, k string) (uint64, error) {
	s.mu.RLock()
	e := s.gens[k]
	s.mu.RUnlock()
	return e.gen, nil
}

// SnapshotMany takes the read lock once for the whole batch.
func (s *Local) SnapshotMany(_ context.Context, ks []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(ks))
	s.mu.RLock()
	for _, k := range ks {
		out[k] = s.gens[k].gen
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *Local) Bump(_ context.Context, k string) (uint64, error) {
	now := time.Now()
	s.mu.Lock()
	e := s.gens[k]
	e.gen++
	e.updatedAt = now
	s.gens[k] = e
	s.mu.Unlock()
	return e.gen, nil
}

func (s *Local) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)
	s.mu.Lock()
	for k, e := range s.gens {
		if e.updatedAt.Before(cutoff) {
			delete(s.gens, k)
		}
	}
	s.mu.Unlock()
}

// Close stops the sweeper. Safe to call more than once.
func (s *Local) Close(_ context.Context) error {
	s.closeOnce.Do(func() {
		if s.stop != nil {
			close(s.stop)
			s.wg.Wait()
		}
	})
	return nil
}
