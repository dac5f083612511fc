// Package otelhooks exports firequery.Hooks events as OpenTelemetry metrics.
package otelhooks

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/unkn0wn-root/firequery"
)

// Hooks counts cache events on the given meter. Keys never become attributes
// since their cardinality is unbounded.
type Hooks struct {
	ns string

	listeners      metric.Int64UpDownCounter
	listenerErrors metric.Int64Counter
	fetchFailures  metric.Int64Counter
	evictions      metric.Int64Counter
	selfHeals      metric.Int64Counter
	bulkRejects    metric.Int64Counter
	setRejects     metric.Int64Counter
	genErrors      metric.Int64Counter
	outages        metric.Int64Counter
}

var _ firequery.Hooks = (*Hooks)(nil)

// New registers the instruments. namespace is attached to every measurement.
func New(meter metric.Meter, namespace string) (*Hooks, error) {
	h := &Hooks{ns: namespace}
	var err, e error

	h.listeners, e = meter.Int64UpDownCounter("firequery.listeners.active",
		metric.WithDescription("Realtime listeners currently attached."))
	err = errors.Join(err, e)
	counter := func(name, desc string) metric.Int64Counter {
		c, e := meter.Int64Counter(name, metric.WithDescription(desc))
		err = errors.Join(err, e)
		return c
	}
	h.listenerErrors = counter("firequery.listener.errors", "Listeners that ended with an error.")
	h.fetchFailures = counter("firequery.fetch.failures", "One-shot reads that failed after retries.")
	h.evictions = counter("firequery.entries.evicted", "Unobserved entries dropped from memory.")
	h.selfHeals = counter("firequery.store.self_heals", "Persisted entries deleted on read.")
	h.bulkRejects = counter("firequery.store.bulk_rejects", "Persisted batches that could not be used.")
	h.setRejects = counter("firequery.store.set_rejects", "Writes refused by the provider.")
	h.genErrors = counter("firequery.gen.errors", "Generation store failures.")
	h.outages = counter("firequery.invalidate.outages", "Invalidations where both bump and delete failed.")
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Hooks) attrs(kv ...attribute.KeyValue) metric.MeasurementOption {
	return metric.WithAttributes(append(kv, attribute.String("namespace", h.ns))...)
}

func (h *Hooks) ListenerStarted(string) {
	h.listeners.Add(context.Background(), 1, h.attrs())
}

func (h *Hooks) ListenerStopped(_ string, err error) {
	ctx := context.Background()
	h.listeners.Add(ctx, -1, h.attrs())
	if err != nil {
		h.listenerErrors.Add(ctx, 1, h.attrs())
	}
}

func (h *Hooks) FetchFailed(string, error) {
	h.fetchFailures.Add(context.Background(), 1, h.attrs())
}

func (h *Hooks) EntryEvicted(string) {
	h.evictions.Add(context.Background(), 1, h.attrs())
}

func (h *Hooks) SelfHeal(_, reason string) {
	h.selfHeals.Add(context.Background(), 1, h.attrs(attribute.String("reason", reason)))
}

func (h *Hooks) BulkRejected(_ string, _ int, reason string) {
	h.bulkRejects.Add(context.Background(), 1, h.attrs(attribute.String("reason", reason)))
}

func (h *Hooks) ProviderSetRejected(_ string, isBulk bool) {
	h.setRejects.Add(context.Background(), 1, h.attrs(attribute.Bool("bulk", isBulk)))
}

func (h *Hooks) GenSnapshotError(count int, _ error) {
	h.genErrors.Add(context.Background(), int64(count), h.attrs(attribute.String("op", "snapshot")))
}

func (h *Hooks) GenBumpError(string, error) {
	h.genErrors.Add(context.Background(), 1, h.attrs(attribute.String("op", "bump")))
}

func (h *Hooks) InvalidateOutage(string, error, error) {
	h.outages.Add(context.Background(), 1, h.attrs())
}

// LocalGenWithBulk is a configuration warning, not a measurement.
func (h *Hooks) LocalGenWithBulk() {}
