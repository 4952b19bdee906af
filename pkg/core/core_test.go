// Test Type: Integration Test
// Description: Tests for the core package - update and resolve pipeline wiring

package core_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catkin/xylem/pkg/config"
	"github.com/catkin/xylem/pkg/core"
	"github.com/catkin/xylem/pkg/errors"
	"github.com/catkin/xylem/pkg/installers"
)

// newTestSystem builds a System over temp sources and cache dirs with
// the platform pinned by override.
func newTestSystem(t *testing.T, override string, ruleFiles map[string]string) *core.System {
	t.Helper()
	sourcesDir := t.TempDir()
	for name, content := range ruleFiles {
		require.NoError(t, os.WriteFile(
			filepath.Join(sourcesDir, name), []byte(content), 0644))
	}
	cfg := &config.Config{
		OSOverride:              override,
		SourcesDir:              sourcesDir,
		CacheDir:                t.TempDir(),
		UseAdditionalInstallers: true,
	}
	return core.NewSystem(cfg)
}

const baseRules = `
boost:
  ubuntu: libboost-dev
  osx:
    any_version:
      homebrew: boost
zlib:
  ubuntu: zlib1g-dev
foo:
  ubuntu: python-foo
  ubuntu & python3: python3-foo
`

func TestSystem_UpdateAndResolve(t *testing.T) {
	system := newTestSystem(t, "ubuntu:trusty", map[string]string{
		"50-base.yaml": baseRules,
	})

	db, buildErrs, err := system.Update()
	require.NoError(t, err)
	require.Empty(t, buildErrs)
	assert.Equal(t, []string{"boost", "foo", "zlib"}, db.KeyNames())

	// The snapshot written by Update is what lookups read.
	loaded, err := system.LoadDatabase()
	require.NoError(t, err)

	platform, features, err := system.Platform()
	require.NoError(t, err)
	assert.Equal(t, "ubuntu", platform.Name())
	assert.Equal(t, "trusty", platform.Version())

	ictx, err := system.InstallerContext(platform)
	require.NoError(t, err)
	assert.Equal(t, []string{"apt"}, ictx.CoreInstallers())

	resolution, err := system.Resolve(loaded, "boost", platform, features, ictx)
	require.NoError(t, err)
	assert.Equal(t, "apt", resolution.Installer)
	assert.Equal(t, []string{"libboost-dev"}, resolution.Packages)
}

func TestSystem_UpdatePrecedence(t *testing.T) {
	system := newTestSystem(t, "ubuntu:trusty", map[string]string{
		"10-override.yaml": "boost:\n  ubuntu: libboost-custom\n",
		"50-base.yaml":     baseRules,
	})

	db, buildErrs, err := system.Update()
	require.NoError(t, err)
	require.Empty(t, buildErrs)

	platform, features, err := system.Platform()
	require.NoError(t, err)
	ictx, err := system.InstallerContext(platform)
	require.NoError(t, err)

	resolution, err := system.Resolve(db, "boost", platform, features, ictx)
	require.NoError(t, err)
	assert.Equal(t, []string{"libboost-custom"}, resolution.Packages)
}

func TestSystem_UpdateWithoutSources(t *testing.T) {
	system := newTestSystem(t, "ubuntu:trusty", nil)
	_, _, err := system.Update()
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrSourceLoad))
}

func TestSystem_PlatformOverride(t *testing.T) {
	t.Run("override_features_win", func(t *testing.T) {
		system := newTestSystem(t, "ubuntu:trusty&python3", nil)
		_, features, err := system.Platform()
		require.NoError(t, err)
		assert.True(t, features.Active("python3"))
	})

	t.Run("configured_features_apply", func(t *testing.T) {
		system := newTestSystem(t, "ubuntu:trusty", nil)
		system.Config.Features = []string{"ruby3"}
		_, features, err := system.Platform()
		require.NoError(t, err)
		assert.True(t, features.Active("ruby3"))
		assert.False(t, features.Active("python3"))
	})

	t.Run("unknown_os_rejected", func(t *testing.T) {
		system := newTestSystem(t, "gentoo", nil)
		_, _, err := system.Platform()
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrUnsupportedOS))
	})
}

func TestSystem_ResolveFeatureConditioned(t *testing.T) {
	system := newTestSystem(t, "ubuntu:trusty&python3", map[string]string{
		"50-base.yaml": baseRules,
	})
	db, buildErrs, err := system.Update()
	require.NoError(t, err)
	require.Empty(t, buildErrs)

	platform, features, err := system.Platform()
	require.NoError(t, err)
	ictx, err := system.InstallerContext(platform)
	require.NoError(t, err)

	resolution, err := system.Resolve(db, "foo", platform, features, ictx)
	require.NoError(t, err)
	assert.Equal(t, []string{"python3-foo"}, resolution.Packages)
}

func TestSystem_ResolveVersionMiss(t *testing.T) {
	system := newTestSystem(t, "ubuntu:trusty", map[string]string{
		"50-base.yaml": "boost:\n  ubuntu:\n    precise: libboost-precise\n",
	})
	db, buildErrs, err := system.Update()
	require.NoError(t, err)
	require.Empty(t, buildErrs)

	platform, features, err := system.Platform()
	require.NoError(t, err)
	ictx, err := system.InstallerContext(platform)
	require.NoError(t, err)

	_, err = system.Resolve(db, "boost", platform, features, ictx)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrKeyUnresolved))
}

func TestSystem_InstallFromOverride(t *testing.T) {
	system := newTestSystem(t, "osx:yosemite", map[string]string{
		"50-base.yaml": `
boost:
  osx:
    any_version:
      homebrew: boost
      pip: pyboost
`,
	})
	system.Config.InstallFrom = map[string][]string{"pip": {"boost"}}

	db, buildErrs, err := system.Update()
	require.NoError(t, err)
	require.Empty(t, buildErrs)

	platform, features, err := system.Platform()
	require.NoError(t, err)
	ictx, err := system.InstallerContext(platform)
	require.NoError(t, err)

	resolution, err := system.Resolve(db, "boost", platform, features, ictx)
	require.NoError(t, err)
	assert.Equal(t, "pip", resolution.Installer)
	assert.Equal(t, []string{"pyboost"}, resolution.Packages)
}

func TestSystem_Keys(t *testing.T) {
	system := newTestSystem(t, "ubuntu:trusty", map[string]string{
		"50-base.yaml": baseRules,
	})
	db, buildErrs, err := system.Update()
	require.NoError(t, err)
	require.Empty(t, buildErrs)

	ubuntu, _, err := system.Platform()
	require.NoError(t, err)
	assert.Equal(t, []string{"boost", "foo", "zlib"}, system.Keys(db, ubuntu))

	system.Config.OSOverride = "osx:yosemite"
	osx, _, err := system.Platform()
	require.NoError(t, err)
	assert.Equal(t, []string{"boost"}, system.Keys(db, osx))
}

func TestSystem_ResolveAll(t *testing.T) {
	system := newTestSystem(t, "ubuntu:trusty", map[string]string{
		"50-base.yaml": baseRules,
	})
	db, buildErrs, err := system.Update()
	require.NoError(t, err)
	require.Empty(t, buildErrs)

	platform, features, err := system.Platform()
	require.NoError(t, err)
	ictx, err := system.InstallerContext(platform)
	require.NoError(t, err)

	outcomes := system.ResolveAll(db, []string{"zlib", "nope", "boost"},
		platform, features, ictx)
	require.Len(t, outcomes, 3)

	// Outcomes come back sorted by key; one failure does not abort the
	// batch.
	assert.Equal(t, "boost", outcomes[0].Key)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, []string{"libboost-dev"}, outcomes[0].Resolution.Packages)

	assert.Equal(t, "nope", outcomes[1].Key)
	require.Error(t, outcomes[1].Err)
	assert.True(t, errors.IsErrorCode(outcomes[1].Err, errors.ErrKeyUnresolved))

	assert.Equal(t, "zlib", outcomes[2].Key)
	require.NoError(t, outcomes[2].Err)
	assert.Equal(t, []string{"zlib1g-dev"}, outcomes[2].Resolution.Packages)
}

func TestSystem_InstallerOptionsApplied(t *testing.T) {
	sourcesDir := t.TempDir()
	cfg := &config.Config{
		OSOverride: "osx:yosemite",
		SourcesDir: sourcesDir,
		CacheDir:   t.TempDir(),
		InstallerOptions: map[string]map[string]interface{}{
			"homebrew": {"taps": []string{"homebrew/science"}},
			"unknown":  {"whatever": true},
		},
	}
	system := core.NewSystem(cfg)

	plugin, err := system.Installers.Plugin("homebrew")
	require.NoError(t, err)
	consumer, ok := plugin.(installers.OptionConsumer)
	require.True(t, ok)
	assert.Equal(t, []string{"homebrew/science"}, consumer.Options()["taps"])
}
