// Package meshconfig loads the process-wide tunables of §6 from a TOML
// file, mirroring cppla-moto's config/setting.go: a package-level global
// populated on init from an env-overridable path, with a Reload(path) for
// picking up a different file at runtime. TOML (github.com/BurntSushi/toml)
// replaces the teacher's JSON since nothing else in the domain stack needs
// a second structured-config library.
package meshconfig

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/meshnet/mnet/mnet"
)

// envOverride names the environment variable that points at a config file,
// the way the teacher's MOTO_CONFIG does.
const envOverride = "MNET_CONFIG"

const defaultPath = "mnet.toml"

// fileConfig is the on-disk shape; durations are plain seconds so the TOML
// file stays human-editable ("route_time_seconds = 30" rather than a
// Go-duration string).
type fileConfig struct {
	Hostname string `toml:"hostname"`
	Port     uint16 `toml:"port"`
	// Route is a pointer so an absent "route" key in the file decodes to
	// nil (→ mnet's own §6 default of true), distinct from an explicit
	// "route = false" turning forwarding off.
	Route                 *bool `toml:"route"`
	RouteTimeSeconds      int   `toml:"route_time_seconds"`
	RetransmitTimeSeconds int   `toml:"retransmit_time_seconds"`
	DropTimeSeconds       int   `toml:"drop_time_seconds"`
	MTU                   int   `toml:"mtu"`

	Log struct {
		Level string `toml:"level"`
		Path  string `toml:"path"`
	} `toml:"log"`

	Devices []DeviceConfig `toml:"devices"`
}

// DeviceConfig describes one device to register at startup (§6
// registerDevice).
type DeviceConfig struct {
	Handle string `toml:"handle"`
	Kind   string `toml:"kind"` // "radio" or "tunnel"
	Listen string `toml:"listen"`
	Remote string `toml:"remote"` // tunnel only
}

// Global is the loaded configuration, populated by init() from
// os.Getenv(envOverride) (or defaultPath) when that file exists. Until then,
// and when no file is found, Global holds mnet's own DefaultConfig so the
// process runs with sane values instead of a zeroed struct.
var Global = defaultSettings()

// defaultSettings returns a Settings populated from mnet.DefaultConfig with
// no devices and info-level logging.
func defaultSettings() Settings {
	return Settings{Transport: mnet.DefaultConfig(), LogLevel: "info"}
}

// Settings bundles the mnet.Config with the ambient logging/device config
// that §6's table doesn't itself cover.
type Settings struct {
	Transport mnet.Config
	LogLevel  string
	LogPath   string
	Devices   []DeviceConfig
}

func init() {
	path := os.Getenv(envOverride)
	if path == "" {
		path = defaultPath
	}
	if _, err := os.Stat(path); err == nil {
		if err := Reload(path); err != nil {
			// Matches the teacher's init()-time behavior: report and keep
			// running on defaults rather than panicking at import time.
			println("meshconfig: failed to load", path, ":", err.Error())
		}
	}
}

// Reload reads path and replaces Global. Caller-supplied values take
// precedence; zero values fall back to mnet.DefaultConfig (§6).
func Reload(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return err
	}
	Global = fromFile(fc)
	return nil
}

func fromFile(fc fileConfig) Settings {
	def := mnet.DefaultConfig()
	cfg := mnet.Config{
		Hostname: mnet.Host(fc.Hostname),
		Port:     fc.Port,
		// fc.Route is nil when the file never sets "route", which mnet.Config
		// itself resolves to the §6 default of true (see RouteEnabled).
		Route: fc.Route,
		MTU:   fc.MTU,
	}
	cfg.RouteTime = secondsOr(fc.RouteTimeSeconds, def.RouteTime)
	cfg.RetransmitTime = secondsOr(fc.RetransmitTimeSeconds, def.RetransmitTime)
	cfg.DropTime = secondsOr(fc.DropTimeSeconds, def.DropTime)
	if fc.Port == 0 {
		cfg.Port = def.Port
	}

	return Settings{
		Transport: cfg,
		LogLevel:  orDefault(fc.Log.Level, "info"),
		LogPath:   fc.Log.Path,
		Devices:   fc.Devices,
	}
}

func secondsOr(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
