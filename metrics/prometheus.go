// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stakemesh/stakemesh/log"
)

const namespace = "mesh"

var logger = log.WithContext("pkg", "metrics")

// Enable switches the process to Prometheus meters. Calling it again is a
// no-op.
func Enable() {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := current.(*promBackend); !ok {
		current = newPromBackend()
	}
}

// Gatherer returns the registry behind the Prometheus backend, or nil when
// metrics are disabled.
func Gatherer() prometheus.Gatherer {
	if b, ok := active().(*promBackend); ok {
		return b.registry
	}
	return nil
}

type promBackend struct {
	registry *prometheus.Registry
	meters   sync.Map // name => meter
}

func newPromBackend() *promBackend {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
	)
	return &promBackend{registry: reg}
}

// register returns the meter already known under name, or registers the
// collector built by create.
func (b *promBackend) register(name string, create func() (prometheus.Collector, any)) any {
	if m, ok := b.meters.Load(name); ok {
		return m
	}
	c, m := create()
	if err := b.registry.Register(c); err != nil {
		logger.Warn("unable to register metric", "name", name, "err", err)
	}
	actual, _ := b.meters.LoadOrStore(name, m)
	return actual
}

func (b *promBackend) counter(name, help string) Counter {
	return b.register(name, func() (prometheus.Collector, any) {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
		return c, &promCounter{c}
	}).(Counter)
}

func (b *promBackend) counterVec(name, help string, labels []string) CounterVec {
	return b.register(name, func() (prometheus.Collector, any) {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
		return c, &promCounterVec{c}
	}).(CounterVec)
}

func (b *promBackend) gauge(name, help string) Gauge {
	return b.register(name, func() (prometheus.Collector, any) {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
		return g, &promGauge{g}
	}).(Gauge)
}

func (b *promBackend) histogram(name, help string, buckets []float64) Histogram {
	return b.register(name, func() (prometheus.Collector, any) {
		h := prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: buckets})
		return h, &promHistogram{h}
	}).(Histogram)
}

func (b *promBackend) handler() http.Handler {
	return promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{})
}

type promCounter struct{ c prometheus.Counter }

func (m *promCounter) Add(v int64) { m.c.Add(float64(v)) }

type promCounterVec struct{ c *prometheus.CounterVec }

func (m *promCounterVec) AddWithLabels(v int64, values ...string) {
	m.c.WithLabelValues(values...).Add(float64(v))
}

type promGauge struct{ g prometheus.Gauge }

func (m *promGauge) Set(v int64) { m.g.Set(float64(v)) }
func (m *promGauge) Add(v int64) { m.g.Add(float64(v)) }

type promHistogram struct{ h prometheus.Histogram }

func (m *promHistogram) Observe(v float64) { m.h.Observe(v) }
