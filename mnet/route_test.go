package mnet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRouteLearnAndLookup(t *testing.T) {
	rt := newRouteTable(time.Minute)
	rt.Learn("node-b", "radio0", "addr-b")
	e, ok := rt.Lookup("node-b")
	require.True(t, ok)
	require.Equal(t, "radio0", e.deviceHandle)
}

func TestRouteStaticWinsOverMissingLearned(t *testing.T) {
	rt := newRouteTable(time.Minute)
	rt.AddStatic("node-c", "tunnel0", "addr-c")
	e, ok := rt.Lookup("node-c")
	require.True(t, ok)
	require.Equal(t, "tunnel0", e.deviceHandle)
}

func TestRouteLearnedPrecedesStatic(t *testing.T) {
	rt := newRouteTable(time.Minute)
	rt.AddStatic("node-d", "tunnel0", "addr-d")
	rt.learned.Set("node-d", routeEntry{deviceHandle: "radio0", addr: "addr-d-learned"}, 0)
	e, ok := rt.Lookup("node-d")
	require.True(t, ok)
	require.Equal(t, "radio0", e.deviceHandle, "routeCache entries take precedence over staticRoutes at send time")
}

func TestRouteLearnDoesNotOverwriteStatic(t *testing.T) {
	rt := newRouteTable(time.Minute)
	rt.AddStatic("node-e", "tunnel0", "addr-e")
	rt.Learn("node-e", "radio0", "addr-e-learned")
	_, ok := rt.learned.Get("node-e")
	require.False(t, ok, "Learn must not record a route for a host with a static entry")
}

func TestRouteLookupMiss(t *testing.T) {
	rt := newRouteTable(time.Minute)
	_, ok := rt.Lookup("nowhere")
	require.False(t, ok)
}
