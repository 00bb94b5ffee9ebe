package prometheus

import (
	"context"
	"testing"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/scrywarden/scrywarden/pkg/store"
)

func TestShipper_IncrementsCounterByProfile(t *testing.T) {
	counter := promclient.NewCounterVec(promclient.CounterOpts{
		Name: "test_findings_total",
	}, []string{"profile"})
	s := New("prom", "ssh", counter)

	require.NoError(t, s.Ship(context.Background(), store.Investigation{}, nil))
	require.NoError(t, s.Ship(context.Background(), store.Investigation{}, nil))

	require.Equal(t, float64(2), testutil.ToFloat64(counter.WithLabelValues("ssh")))
}
