package firequery

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/firequery/codec"
	gen "github.com/unkn0wn-root/firequery/genstore"
	"github.com/unkn0wn-root/firequery/internal/util"
	"github.com/unkn0wn-root/firequery/internal/wire"
	pr "github.com/unkn0wn-root/firequery/provider"
)

// stored is a value restored from the provider.
type stored[V any] struct {
	Value     V
	UpdatedAt time.Time
}

// store persists entry values with CAS safety via per-key generations.
// Single reads never return a value written under an older generation;
// bulk batches are validated per member and rejected if any member is stale.
type store[V any] struct {
	ns       string
	provider pr.Provider
	codec    c.Codec[V]
	gen      gen.GenStore
	log      Logger
	hooks    Hooks

	ttl     time.Duration
	bulkTTL time.Duration
	cost    SetCostFunc
	bulk    bool
}

func (s *store[V]) singleKey(k string) string { return "snap:" + s.ns + ":" + k }

// bulkKey expects sorted, de-duplicated keys.
func (s *store[V]) bulkKey(sorted []string) string { return util.BulkKey("bulk:"+s.ns, sorted) }

// observe snapshots the generation of k before a read. ok=false means the
// generation is unknown and the following write must be skipped.
func (s *store[V]) observe(ctx context.Context, k string) (uint64, bool) {
	g, err := s.gen.Snapshot(ctx, s.singleKey(k))
	if err != nil {
		s.hooks.GenSnapshotError(1, err)
		s.log.Warn("gen snapshot error", Fields{"key": k, "err": err})
		return 0, false
	}
	return g, true
}

func (s *store[V]) observeMany(ctx context.Context, keys []string) (map[string]uint64, error) {
	sk := make([]string, len(keys))
	for i, k := range keys {
		sk[i] = s.singleKey(k)
	}
	m, err := s.gen.SnapshotMany(ctx, sk)
	if err != nil {
		s.hooks.GenSnapshotError(len(keys), err)
		return nil, err
	}
	out := make(map[string]uint64, len(keys))
	for i, k := range keys {
		out[k] = m[sk[i]]
	}
	return out, nil
}

func (s *store[V]) load(ctx context.Context, k string) (stored[V], bool, error) {
	var zero stored[V]
	sk := s.singleKey(k)
	raw, ok, err := s.provider.Get(ctx, sk)
	if err != nil || !ok {
		return zero, false, err
	}
	e, err := wire.DecodeSingle(raw)
	if err != nil {
		s.heal(ctx, sk, "corrupt")
		return zero, false, nil
	}
	cur, err := s.gen.Snapshot(ctx, sk)
	if err != nil {
		// unknown generation: treat as a miss but keep the entry
		s.hooks.GenSnapshotError(1, err)
		return zero, false, nil
	}
	if e.Gen != cur {
		s.heal(ctx, sk, "gen_mismatch")
		return zero, false, nil
	}
	v, err := s.codec.Decode(e.Payload)
	if err != nil {
		s.heal(ctx, sk, "value_decode")
		return zero, false, nil
	}
	return stored[V]{Value: v, UpdatedAt: e.UpdatedAt}, true, nil
}

func (s *store[V]) heal(ctx context.Context, storageKey, reason string) {
	_ = s.provider.Del(ctx, storageKey)
	s.hooks.SelfHeal(storageKey, reason)
	s.log.Debug("dropped persisted entry", Fields{"key": storageKey, "reason": reason})
}

// save writes v iff the generation is still the one observed before the read.
func (s *store[V]) save(ctx context.Context, k string, v V, at time.Time, observed uint64) error {
	sk := s.singleKey(k)
	cur, err := s.gen.Snapshot(ctx, sk)
	if err != nil {
		s.hooks.GenSnapshotError(1, err)
		return nil
	}
	if cur != observed {
		s.log.Debug("persist skipped (gen moved)", Fields{"key": k, "obs": observed, "cur": cur})
		return nil
	}
	payload, err := s.codec.Encode(v)
	if err != nil {
		return err
	}
	raw := wire.EncodeSingle(wire.Entry{Gen: observed, UpdatedAt: at, Payload: payload})
	ok, err := s.provider.Set(ctx, sk, raw, s.cost(sk, raw, false, 1), s.ttl)
	if err != nil {
		return err
	}
	if !ok {
		s.hooks.ProviderSetRejected(sk, false)
		s.log.Debug("persist rejected by provider", Fields{"key": k})
	}
	return nil
}

// invalidate bumps the generation first so in-flight reads cannot land,
// then drops the current value.
func (s *store[V]) invalidate(ctx context.Context, k string) error {
	sk := s.singleKey(k)
	newGen, bumpErr := s.gen.Bump(ctx, sk)
	if bumpErr != nil {
		s.hooks.GenBumpError(sk, bumpErr)
	}
	delErr := s.provider.Del(ctx, sk)

	switch {
	case bumpErr != nil && delErr != nil:
		s.hooks.InvalidateOutage(k, bumpErr, delErr)
		s.log.Error("invalidate failed", Fields{"key": k, "bumpErr": bumpErr, "delErr": delErr})
		return &InvalidateError{Key: k, BumpErr: bumpErr, DelErr: delErr}
	case bumpErr != nil:
		// value is gone but a racing write under the old gen may still land
		return &InvalidateError{Key: k, BumpErr: bumpErr}
	case delErr != nil:
		// gen moved, so the leftover value is rejected on read
		s.log.Warn("invalidate delete failed; relying on gen", Fields{"key": k, "err": delErr})
	}
	s.log.Debug("invalidated key", Fields{"key": k, "newGen": newGen})
	return nil
}

// loadMany tries the bulk entry for the exact key set and falls back to singles.
func (s *store[V]) loadMany(ctx context.Context, keys []string) (map[string]stored[V], []string, error) {
	out := make(map[string]stored[V], len(keys))
	uniq := util.UniqSorted(keys)
	if len(uniq) == 0 {
		return out, nil, nil
	}

	if s.bulk {
		if found, ok := s.loadBulk(ctx, uniq); ok {
			var missing []string
			for _, k := range uniq {
				if st, hit := found[k]; hit {
					out[k] = st
				} else {
					missing = append(missing, k)
				}
			}
			return out, missing, nil
		}
	}

	var missing []string
	for _, k := range uniq {
		st, ok, err := s.load(ctx, k)
		if err != nil {
			return out, nil, err
		}
		if ok {
			out[k] = st
		} else {
			missing = append(missing, k)
		}
	}
	return out, missing, nil
}

func (s *store[V]) loadBulk(ctx context.Context, sorted []string) (map[string]stored[V], bool) {
	bk := s.bulkKey(sorted)
	raw, ok, err := s.provider.Get(ctx, bk)
	if err != nil || !ok {
		return nil, false
	}
	items, err := wire.DecodeBulk(raw)
	if err != nil {
		_ = s.provider.Del(ctx, bk)
		s.hooks.BulkRejected(s.ns, len(sorted), "decode_error")
		return nil, false
	}

	ik := make([]string, len(items))
	for i, it := range items {
		ik[i] = it.Key
	}
	gens, err := s.observeMany(ctx, ik)
	if err != nil {
		return nil, false
	}
	for _, it := range items {
		if it.Gen != gens[it.Key] {
			_ = s.provider.Del(ctx, bk)
			s.hooks.BulkRejected(s.ns, len(sorted), "invalid_or_stale")
			return nil, false
		}
	}

	found := make(map[string]stored[V], len(items))
	for _, it := range items {
		v, err := s.codec.Decode(it.Payload)
		if err != nil {
			continue
		}
		found[it.Key] = stored[V]{Value: v, UpdatedAt: it.UpdatedAt}
	}
	return found, true
}

// saveMany writes a bulk entry for the key set plus every single. If any
// member's generation moved since observed, only the still-current singles are written.
func (s *store[V]) saveMany(ctx context.Context, items map[string]stored[V], observed map[string]uint64) error {
	if len(items) == 0 {
		return nil
	}
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	keys = util.UniqSorted(keys)

	current, err := s.observeMany(ctx, keys)
	if err != nil {
		return nil
	}
	allCurrent := true
	for _, k := range keys {
		if obs, ok := observed[k]; !ok || current[k] != obs {
			allCurrent = false
			break
		}
	}

	seedSingles := func() error {
		for _, k := range keys {
			obs, ok := observed[k]
			if !ok {
				continue
			}
			if err := s.save(ctx, k, items[k].Value, items[k].UpdatedAt, obs); err != nil {
				return err
			}
		}
		return nil
	}

	if !s.bulk || !allCurrent {
		if !allCurrent {
			s.log.Debug("bulk persist skipped (gen mismatch)", Fields{"n": len(keys)})
		}
		return seedSingles()
	}

	wireItems := make([]wire.BulkItem, 0, len(keys))
	for _, k := range keys {
		payload, err := s.codec.Encode(items[k].Value)
		if err != nil {
			return err
		}
		wireItems = append(wireItems, wire.BulkItem{
			Key:   k,
			Entry: wire.Entry{Gen: observed[k], UpdatedAt: items[k].UpdatedAt, Payload: payload},
		})
	}
	raw, err := wire.EncodeBulk(wireItems)
	if err != nil {
		return err
	}
	bk := s.bulkKey(keys)
	ok, err := s.provider.Set(ctx, bk, raw, s.cost(bk, raw, true, len(keys)), s.bulkTTL)
	if err != nil {
		return err
	}
	if !ok {
		s.hooks.ProviderSetRejected(bk, true)
	}
	return seedSingles()
}

func (s *store[V]) close(ctx context.Context) error {
	_ = s.gen.Close(ctx)
	return s.provider.Close(ctx)
}
