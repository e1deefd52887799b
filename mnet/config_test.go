package mnet

import "testing"

func TestDefaultConfigValues(t *testing.T) {
	c := DefaultConfig()
	if c.Port != 2048 {
		t.Errorf("default Port = %d, want 2048", c.Port)
	}
	if c.Route == nil || !*c.Route {
		t.Error("default Route should be true")
	}
	if c.RouteTime <= 0 || c.RetransmitTime <= 0 || c.DropTime <= 0 {
		t.Error("default durations should be positive")
	}
}

func TestWithDefaultsFillsZeroFields(t *testing.T) {
	c := Config{Hostname: "node-a"}.withDefaults()
	def := DefaultConfig()
	if c.Port != def.Port {
		t.Errorf("Port = %d, want default %d", c.Port, def.Port)
	}
	if c.RouteTime != def.RouteTime || c.RetransmitTime != def.RetransmitTime || c.DropTime != def.DropTime {
		t.Error("zero durations should fall back to defaults")
	}
	if c.Hostname != "node-a" {
		t.Error("withDefaults must not touch an already-set Hostname")
	}
}

func TestWithDefaultsRouteDefaultsToTrueWhenUnset(t *testing.T) {
	c := Config{Hostname: "node-a"}.withDefaults()
	if !c.RouteEnabled() {
		t.Error("a Config that never sets Route should default to forwarding enabled")
	}
}

func TestWithDefaultsPreservesExplicitFalseRoute(t *testing.T) {
	c := Config{Route: boolPtr(false)}.withDefaults()
	if c.RouteEnabled() {
		t.Error("an explicit Route: false must not be overridden by the default")
	}
}

func TestWithDefaultsPreservesExplicitValues(t *testing.T) {
	c := Config{Port: 9999, RouteTime: 1}.withDefaults()
	if c.Port != 9999 {
		t.Errorf("Port = %d, want 9999 preserved", c.Port)
	}
	if c.RouteTime != 1 {
		t.Errorf("RouteTime = %d, want 1 preserved", c.RouteTime)
	}
}
