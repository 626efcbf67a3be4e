package resolver

import (
	"net/netip"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semihalev/resolv/config"
	"github.com/semihalev/resolv/hints"
	"github.com/semihalev/resolv/hosts"
	"github.com/semihalev/resolv/wire"
)

func Test_MetricsCount(t *testing.T) {
	var before dto.Metric
	require.NoError(t, metricQueries.Write(&before))

	cfg := config.Default()
	cfg.Lookup = []string{config.LookupFile}

	ht := hosts.New()
	ht.Insert(netip.MustParseAddr("192.0.2.1"), "metric.example.test", false)

	r := New(cfg, ht, hints.New())
	defer r.Close()

	require.NoError(t, r.Submit("metric.example.test", wire.TypeA, wire.ClassINET))
	_, err := r.Fetch()
	require.NoError(t, err)

	var after dto.Metric
	require.NoError(t, metricQueries.Write(&after))
	assert.Equal(t, before.GetCounter().GetValue()+1, after.GetCounter().GetValue())

	assert.Equal(t, uint64(1), r.Stat().Queries)
}
