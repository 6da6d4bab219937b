// Package metrics exposes an operation client's health as Prometheus
// gauges: how many stores are cached, how many are loading, and the
// cumulative value/error update counts, all labeled by operation kind.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"eve.evalgo.org/operation/client"
	"eve.evalgo.org/operation/opath"
)

// Metrics holds the Prometheus instruments for one observed client.
type Metrics struct {
	StoresCached  *prometheus.GaugeVec
	StoresLoading *prometheus.GaugeVec
	Subscribers   *prometheus.GaugeVec
	ValueUpdates  *prometheus.GaugeVec
	ErrorUpdates  *prometheus.GaugeVec
}

// New creates and registers the instruments on reg (pass
// prometheus.DefaultRegisterer outside tests). namespace defaults to
// "operation_cache".
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "operation_cache"
	}
	factory := promauto.With(reg)
	labels := []string{"kind"}

	return &Metrics{
		StoresCached: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stores_cached",
			Help:      "Number of stores currently held in the client's cache",
		}, labels),
		StoresLoading: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stores_loading",
			Help:      "Number of cached stores with an operation in flight",
		}, labels),
		Subscribers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Total subscribers attached across cached stores",
		}, labels),
		ValueUpdates: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "value_updates_total",
			Help:      "Cumulative successful result updates across cached stores",
		}, labels),
		ErrorUpdates: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "error_updates_total",
			Help:      "Cumulative failed result updates across cached stores",
		}, labels),
	}
}

// Observe refreshes every gauge from the client's current snapshots.
// Call it from the embedding application's scrape handler or on a
// ticker.
func (m *Metrics) Observe(c *client.Client) {
	type agg struct {
		cached, loading, subscribers int
		valueUpdates, errorUpdates   int
	}
	byKind := map[client.Kind]*agg{
		client.KindSingle:    {},
		client.KindPaginated: {},
		client.KindMutation:  {},
	}
	for _, snap := range c.Snapshots(opath.New()) {
		a := byKind[snap.Kind]
		if a == nil {
			a = &agg{}
			byKind[snap.Kind] = a
		}
		a.cached++
		if snap.State.IsLoading {
			a.loading++
		}
		a.subscribers += snap.Subscribers
		a.valueUpdates += snap.State.ValueUpdateCount
		a.errorUpdates += snap.State.ErrorUpdateCount
	}
	for kind, a := range byKind {
		labels := prometheus.Labels{"kind": string(kind)}
		m.StoresCached.With(labels).Set(float64(a.cached))
		m.StoresLoading.With(labels).Set(float64(a.loading))
		m.Subscribers.With(labels).Set(float64(a.subscribers))
		m.ValueUpdates.With(labels).Set(float64(a.valueUpdates))
		m.ErrorUpdates.With(labels).Set(float64(a.errorUpdates))
	}
}
