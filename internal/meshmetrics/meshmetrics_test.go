package meshmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectorCountsEvents(t *testing.T) {
	c := New("node-a")
	c.PacketSent()
	c.PacketSent()
	c.PacketDropped()

	require.Equal(t, float64(2), testutil.ToFloat64(c.sent))
	require.Equal(t, float64(1), testutil.ToFloat64(c.dropped))
	require.Equal(t, float64(0), testutil.ToFloat64(c.retransmit))
}

func TestRegistryGatherableAfterEvents(t *testing.T) {
	c := New("node-b")
	c.RouteLearned()
	mfs, err := c.Registry().Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)
}
