package adapters

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/crosspost/app/platform"
)

func TestRegisterAllBuiltins(t *testing.T) {
	reg := platform.NewRegistry()
	Register(reg, Options{})

	assert.Equal(t, []string{DevToName, MediumName, WebflowName, WordPressName}, reg.Names())

	a, err := reg.Get(MediumName)
	require.NoError(t, err)
	assert.False(t, a.Capabilities().SupportsUpdates)
}

func TestRegisterSkipsDisabledPlatforms(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "medium.yml"), []byte("enabled: false\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "webflow.yml"), []byte("enabled: true\nrate_limit: 30\n"), 0644))

	settings := platform.NewSettingsCache(dir)
	require.NoError(t, settings.Run())

	reg := platform.NewRegistry()
	Register(reg, Options{Settings: settings})

	assert.False(t, reg.IsSupported(MediumName))
	assert.True(t, reg.IsSupported(WebflowName))
	assert.True(t, reg.IsSupported(DevToName))
}

func TestRegisterAppliesPlatformTimeout(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "devto.yml"), []byte("enabled: true\ntimeout: 90\n"), 0644))

	settings := platform.NewSettingsCache(dir)
	require.NoError(t, settings.Run())

	reg := platform.NewRegistry()
	Register(reg, Options{Settings: settings})

	a, err := reg.Get(DevToName)
	require.NoError(t, err)
	d, ok := a.(*DevTo)
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, d.client.HTTPClient().Timeout)

	w, err := reg.Get(WebflowName)
	require.NoError(t, err)
	assert.Equal(t, platform.DefaultSettings(WebflowName).TimeoutDuration(), w.(*Webflow).client.HTTPClient().Timeout)
}
