// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package metrics holds the node meters. Until Enable is called every meter
// is a no-op, so packages can declare their meters at init time.
package metrics

import (
	"net/http"
	"sync"
)

var (
	mu      sync.RWMutex
	current backend = noop{}
)

type backend interface {
	counter(name, help string) Counter
	counterVec(name, help string, labels []string) CounterVec
	gauge(name, help string) Gauge
	histogram(name, help string, buckets []float64) Histogram
	handler() http.Handler
}

func active() backend {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// BucketApplyMillis are the buckets of the block apply duration histogram.
var BucketApplyMillis = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 6000}

// Counter only goes up.
type Counter interface {
	Add(int64)
}

// CounterVec is a Counter partitioned by label values, in label order.
type CounterVec interface {
	AddWithLabels(int64, ...string)
}

// Gauge is a value that goes up and down.
type Gauge interface {
	Set(int64)
	Add(int64)
}

// Histogram samples observations into buckets.
type Histogram interface {
	Observe(float64)
}

func NewCounter(name, help string) Counter { return active().counter(name, help) }

func NewCounterVec(name, help string, labels ...string) CounterVec {
	return active().counterVec(name, help, labels)
}

func NewGauge(name, help string) Gauge { return active().gauge(name, help) }

func NewHistogram(name, help string, buckets []float64) Histogram {
	return active().histogram(name, help, buckets)
}

// Handler serves the metrics page, or 404 while metrics are disabled.
func Handler() http.Handler { return active().handler() }

// Lazy defers creating a meter to its first use, so a meter declared as a
// package variable binds to whichever backend is active by then.
func Lazy[T any](create func() T) func() T {
	var (
		once sync.Once
		m    T
	)
	return func() T {
		once.Do(func() { m = create() })
		return m
	}
}

func LazyCounter(name, help string) func() Counter {
	return Lazy(func() Counter { return NewCounter(name, help) })
}

func LazyCounterVec(name, help string, labels ...string) func() CounterVec {
	return Lazy(func() CounterVec { return NewCounterVec(name, help, labels...) })
}

func LazyGauge(name, help string) func() Gauge {
	return Lazy(func() Gauge { return NewGauge(name, help) })
}

func LazyHistogram(name, help string, buckets []float64) func() Histogram {
	return Lazy(func() Histogram { return NewHistogram(name, help, buckets) })
}

type noop struct{}

func (noop) counter(string, string) Counter                 { return noopMeter{} }
func (noop) counterVec(string, string, []string) CounterVec { return noopMeter{} }
func (noop) gauge(string, string) Gauge                     { return noopMeter{} }
func (noop) histogram(string, string, []float64) Histogram  { return noopMeter{} }
func (noop) handler() http.Handler                          { return http.NotFoundHandler() }

type noopMeter struct{}

func (noopMeter) Add(int64)                      {}
func (noopMeter) AddWithLabels(int64, ...string) {}
func (noopMeter) Set(int64)                      {}
func (noopMeter) Observe(float64)                {}
