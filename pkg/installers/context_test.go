// Test Type: Unit Test
// Description: Tests for the installers package - effective installer ordering per platform

package installers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catkin/xylem/pkg/installers"
	"github.com/catkin/xylem/pkg/ossupport"
)

func testPlatform(t *testing.T, name, version string) (ossupport.OSPlugin, ossupport.Platform) {
	t.Helper()
	support := ossupport.NewSupport()
	plugin, err := support.Plugin(name)
	require.NoError(t, err)
	platform, err := support.PlatformFor(name, version)
	require.NoError(t, err)
	return plugin, platform
}

func TestNewContext_EffectiveOrder(t *testing.T) {
	tests := []struct {
		name           string
		os             string
		version        string
		opts           installers.ContextOptions
		wantCore       []string
		wantAdditional []string
	}{
		{
			name:           "ubuntu_with_additional",
			os:             "ubuntu",
			version:        "trusty",
			opts:           installers.ContextOptions{UseAdditionalInstallers: true},
			wantCore:       []string{"apt"},
			wantAdditional: []string{"pip", "gem", "fake"},
		},
		{
			name:     "ubuntu_core_only",
			os:       "ubuntu",
			version:  "trusty",
			opts:     installers.ContextOptions{},
			wantCore: []string{"apt"},
		},
		{
			name:    "osx_core_precedes_additional",
			os:      "osx",
			version: "yosemite",
			opts:    installers.ContextOptions{UseAdditionalInstallers: true},
			// The OS plugin orders the core list; macports joins as an
			// additional installer because its allowlist matches.
			wantCore:       []string{"homebrew", "pip", "gem"},
			wantAdditional: []string{"macports", "fake"},
		},
		{
			name:    "configured_core_overrides_plugin",
			os:      "osx",
			version: "yosemite",
			opts: installers.ContextOptions{
				CoreInstallers:          []string{"macports"},
				UseAdditionalInstallers: true,
			},
			wantCore:       []string{"macports"},
			wantAdditional: []string{"homebrew", "pip", "gem", "fake"},
		},
		{
			name:    "empty_core_list_disables_core",
			os:      "ubuntu",
			version: "trusty",
			opts: installers.ContextOptions{
				CoreInstallers:          []string{},
				UseAdditionalInstallers: true,
			},
			wantAdditional: []string{"pip", "gem", "fake"},
		},
		{
			name:    "core_without_plugin_is_skipped",
			os:      "ubuntu",
			version: "trusty",
			opts: installers.ContextOptions{
				CoreInstallers: []string{"apt", "portage"},
			},
			wantCore: []string{"apt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plugin, platform := testPlatform(t, tt.os, tt.version)
			ctx := installers.NewContext(installers.NewSet(), plugin, platform, tt.opts)

			assert.Equal(t, tt.wantCore, ctx.CoreInstallers())
			assert.Equal(t, tt.wantAdditional, ctx.AdditionalInstallers())

			wantOrder := append(append([]string{}, tt.wantCore...), tt.wantAdditional...)
			assert.Equal(t, wantOrder, ctx.EffectiveOrder())
			assert.Equal(t, platform, ctx.Platform())
		})
	}
}

func TestStaticInstaller_UsableOn(t *testing.T) {
	_, ubuntu := testPlatform(t, "ubuntu", "trusty")
	_, osx := testPlatform(t, "osx", "yosemite")

	set := installers.NewSet()

	macports, err := set.Plugin("macports")
	require.NoError(t, err)
	assert.False(t, macports.UsableOn(ubuntu))
	assert.True(t, macports.UsableOn(osx))

	pip, err := set.Plugin("pip")
	require.NoError(t, err)
	assert.True(t, pip.UsableOn(ubuntu))
	assert.True(t, pip.UsableOn(osx))

	// Core-only installers never volunteer as additional ones.
	apt, err := set.Plugin("apt")
	require.NoError(t, err)
	assert.False(t, apt.UsableOn(ubuntu))
}

func TestSet_RegistrationOrder(t *testing.T) {
	set := installers.NewSet()
	require.NoError(t, set.Register(&installers.StaticInstaller{
		InstallerName: "pacman",
		Additional:    true,
	}))

	names := set.Names()
	assert.Equal(t, "pacman", names[len(names)-1],
		"later registrations rank after builtins")

	err := set.Register(&installers.StaticInstaller{InstallerName: "pacman"})
	require.Error(t, err, "duplicate registration must fail")
}
