package meshconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReloadAppliesFileValuesAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mnet.toml")
	contents := `
hostname = "node-a"
port = 3000
route = false

[log]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	require.NoError(t, Reload(path))
	require.Equal(t, "node-a", string(Global.Transport.Hostname))
	require.Equal(t, uint16(3000), Global.Transport.Port)
	require.False(t, Global.Transport.RouteEnabled())
	require.Equal(t, "debug", Global.LogLevel)
	// Fields omitted from the file fall back to mnet's own defaults.
	require.NotZero(t, Global.Transport.RouteTime)
	require.NotZero(t, Global.Transport.DropTime)
}

func TestReloadMissingFile(t *testing.T) {
	err := Reload(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.Error(t, err)
}

func TestReloadDefaultsRouteToTrueWhenFileOmitsIt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mnet.toml")
	require.NoError(t, os.WriteFile(path, []byte(`hostname = "node-b"`), 0o644))

	require.NoError(t, Reload(path))
	require.True(t, Global.Transport.RouteEnabled())
}
