// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/require"
)

func TestNoopMetrics(t *testing.T) {
	require.Nil(t, HTTPHandler())

	Counter("noop_count").Add(1)
	CounterVec("noop_count_vec", []string{"kind"}).AddWithLabel(1, map[string]string{"kind": "x"})
	Gauge("noop_gauge").Set(3)
	Histogram("noop_hist", BucketMillis).Observe(7)
}

func TestPrometheusMetrics(t *testing.T) {
	InitializePrometheusMetrics()

	lazy := LazyLoadCounter("test_count")
	lazy().Add(2)
	require.Same(t, lazy(), lazy())

	// same name returns the same meter
	require.Same(t, Counter("test_count"), Counter("test_count"))

	CounterVec("test_count_vec", []string{"kind"}).AddWithLabel(1, map[string]string{"kind": "node"})
	Gauge("test_gauge").Set(42)
	Histogram("test_hist", BucketMillis).Observe(12)

	server := httptest.NewServer(HTTPHandler())
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	require.NoError(t, err)

	metric := func(name string) *dto.Metric {
		mf, ok := families[name]
		require.True(t, ok, name)
		require.Len(t, mf.GetMetric(), 1)
		return mf.GetMetric()[0]
	}
	require.Equal(t, float64(2), metric("evmstate_test_count").GetCounter().GetValue())
	require.Equal(t, float64(42), metric("evmstate_test_gauge").GetGauge().GetValue())
	require.Equal(t, uint64(1), metric("evmstate_test_hist").GetHistogram().GetSampleCount())
	require.Equal(t, float64(12), metric("evmstate_test_hist").GetHistogram().GetSampleSum())

	vec := metric("evmstate_test_count_vec")
	require.Equal(t, float64(1), vec.GetCounter().GetValue())
	require.Equal(t, "kind", vec.GetLabel()[0].GetName())
	require.Equal(t, "node", vec.GetLabel()[0].GetValue())
}
