// Package ossupport models operating systems for rule resolution: OS
// plugins with ancestor chains, per-OS version ordering, core
// installer lists and feature defaults. Plugins are registered
// statically at process start; the resolution core only consumes the
// resulting registry.
package ossupport

import (
	"fmt"
	"sort"
	"strings"

	"github.com/catkin/xylem/pkg/errors"
)

// AncestorOS is one element of a platform's ancestor chain. An empty
// Version means no explicit version correspondence exists for that
// ancestor, so only version-independent rules apply at that level.
type AncestorOS struct {
	Name    string
	Version string
}

// Platform describes the concrete OS a resolution runs against: its
// ancestor chain ordered most general first, most specific (the
// detected or overridden OS) last.
type Platform struct {
	Ancestors []AncestorOS
}

// Name returns the most specific OS name of the platform.
func (p Platform) Name() string {
	if len(p.Ancestors) == 0 {
		return ""
	}
	return p.Ancestors[len(p.Ancestors)-1].Name
}

// Version returns the most specific OS version of the platform.
func (p Platform) Version() string {
	if len(p.Ancestors) == 0 {
		return ""
	}
	return p.Ancestors[len(p.Ancestors)-1].Version
}

// String renders the platform as "name:version".
func (p Platform) String() string {
	return fmt.Sprintf("%s:%s", p.Name(), p.Version())
}

// FeatureSet is the set of active feature names for a platform.
// Absence implies the feature is off.
type FeatureSet map[string]bool

// NewFeatureSet builds a feature set from a list of names.
func NewFeatureSet(names ...string) FeatureSet {
	fs := make(FeatureSet, len(names))
	for _, name := range names {
		fs[name] = true
	}
	return fs
}

// Active reports whether the named feature is on.
func (fs FeatureSet) Active(name string) bool {
	return fs[name]
}

// Names returns the active feature names in sorted order.
func (fs FeatureSet) Names() []string {
	names := make([]string, 0, len(fs))
	for name, on := range fs {
		if on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// OSPlugin describes one supported operating system.
type OSPlugin interface {
	// Name is the canonical OS name referenced in rule files.
	Name() string

	// Ancestors returns the platform ancestor chain for the given
	// version, most general first, the plugin's own OS last.
	Ancestors(version string) []AncestorOS

	// KnownVersions lists the versions the plugin can order, oldest
	// first. This list defines the OS's version ordering.
	KnownVersions() []string

	// CoreInstallers returns the ordered list of primary installers
	// for the given version.
	CoreInstallers(version string) []string

	// DefaultInstaller names the installer that list and string rule
	// shorthands resolve to on this OS.
	DefaultInstaller() string

	// DefaultFeatures returns the features active by default for the
	// given version. Kept version-dependent as a configuration hook.
	DefaultFeatures(version string) []string
}

// ParseOverride parses an OS override of the form
// "name[:version][&feature1,feature2]".
func ParseOverride(s string) (name, version string, features []string, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", nil, errors.New(errors.ErrInvalidInput, "empty OS override")
	}
	if base, rest, found := strings.Cut(s, "&"); found {
		s = strings.TrimSpace(base)
		for _, f := range strings.Split(rest, ",") {
			f = strings.TrimSpace(f)
			if f != "" {
				features = append(features, f)
			}
		}
	}
	name, version, _ = strings.Cut(s, ":")
	name = strings.TrimSpace(name)
	version = strings.TrimSpace(version)
	if name == "" {
		return "", "", nil, errors.Newf(errors.ErrInvalidInput,
			"OS override %q names no OS", s)
	}
	return name, version, features, nil
}
