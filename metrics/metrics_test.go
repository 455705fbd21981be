// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reset() {
	mu.Lock()
	current = noop{}
	mu.Unlock()
}

func TestDisabled(t *testing.T) {
	reset()
	t.Cleanup(reset)

	NewCounter("noop_counter", "").Add(1)
	NewCounterVec("noop_vec", "", "call").AddWithLabels(1, "bond")
	NewGauge("noop_gauge", "").Set(3)
	NewHistogram("noop_hist", "", nil).Observe(1)
	assert.Nil(t, Gatherer())

	server := httptest.NewServer(Handler())
	t.Cleanup(server.Close)
	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPrometheus(t *testing.T) {
	reset()
	t.Cleanup(reset)
	Enable()

	NewCounter("blocks", "blocks").Add(2)
	NewCounter("blocks", "blocks").Add(1)
	vec := NewCounterVec("calls", "calls", "call", "result")
	vec.AddWithLabels(1, "bond", "ok")
	vec.AddWithLabels(2, "bond", "failed")
	NewGauge("era", "era").Set(7)
	hist := NewHistogram("apply", "apply", BucketApplyMillis)
	hist.Observe(3)
	hist.Observe(30)

	families, err := Gatherer().Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily)
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	assert.Equal(t, float64(3), byName["mesh_blocks"].Metric[0].GetCounter().GetValue())
	assert.Len(t, byName["mesh_calls"].Metric, 2)
	assert.Equal(t, float64(7), byName["mesh_era"].Metric[0].GetGauge().GetValue())
	assert.Equal(t, uint64(2), byName["mesh_apply"].Metric[0].GetHistogram().GetSampleCount())
	assert.Equal(t, float64(33), byName["mesh_apply"].Metric[0].GetHistogram().GetSampleSum())

	server := httptest.NewServer(Handler())
	t.Cleanup(server.Close)
	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	var parser expfmt.TextParser
	scraped, err := parser.TextToMetricFamilies(resp.Body)
	require.NoError(t, err)
	require.Contains(t, scraped, "mesh_blocks")
	assert.Equal(t, float64(3), scraped["mesh_blocks"].Metric[0].GetCounter().GetValue())
}

func TestLazy(t *testing.T) {
	reset()
	t.Cleanup(reset)

	lazyCounter := LazyCounter("lazy_counter", "")
	lazyGauge := LazyGauge("lazy_gauge", "")
	lazyVec := LazyCounterVec("lazy_vec", "", "a")
	lazyHist := LazyHistogram("lazy_hist", "", nil)

	// meters created after Enable are Prometheus meters
	Enable()

	assert.IsType(t, &promCounter{}, lazyCounter())
	assert.IsType(t, &promGauge{}, lazyGauge())
	assert.IsType(t, &promCounterVec{}, lazyVec())
	assert.IsType(t, &promHistogram{}, lazyHist())
	assert.Same(t, lazyCounter(), lazyCounter())
}
