// Package installers models package-manager installers for rule
// resolution and arbitrates which installer serves a resolved key.
// Actual package-manager invocation is out of scope; plugins carry
// only the metadata arbitration needs.
package installers

import (
	"sync"

	"github.com/catkin/xylem/pkg/errors"
	"github.com/catkin/xylem/pkg/ossupport"
	"github.com/catkin/xylem/pkg/registry"
	"github.com/catkin/xylem/pkg/rules"
)

// InstallerPlugin describes one installer known to the system.
type InstallerPlugin interface {
	// Name is the installer name referenced in rule files.
	Name() string

	// UsableOn reports whether this installer declares itself usable
	// as an additional installer on the given platform. Core
	// installers are chosen by the OS plugin instead.
	UsableOn(platform ossupport.Platform) bool
}

// RuleValidator is an optional capability: plugins implementing it get
// to validate installer-specific rule options at update time.
type RuleValidator interface {
	ValidateRule(rule *rules.InstallerRule) error
}

// OptionConsumer is an optional capability: plugins implementing it
// accept user configuration from the installer_options config map.
type OptionConsumer interface {
	SetOptions(options map[string]interface{}) error
	Options() map[string]interface{}
}

// Set holds registered installer plugins and remembers their
// registration order, which determines the relative order of
// additional installers.
type Set struct {
	mu    sync.RWMutex
	reg   registry.Registry[InstallerPlugin]
	order []string
}

// NewSet returns a Set with all builtin installer plugins registered.
func NewSet() *Set {
	s := &Set{reg: registry.New[InstallerPlugin]()}
	for _, p := range builtinInstallers() {
		registry.MustRegister(s.reg, p.Name(), p)
		s.order = append(s.order, p.Name())
	}
	return s
}

// Register adds an installer plugin. Later registrations rank after
// earlier ones among additional installers.
func (s *Set) Register(plugin InstallerPlugin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reg.Register(plugin.Name(), plugin); err != nil {
		return err
	}
	s.order = append(s.order, plugin.Name())
	return nil
}

// Plugin returns the plugin with the given name.
func (s *Set) Plugin(name string) (InstallerPlugin, error) {
	plugin, err := s.reg.Get(name)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrNotFound,
			"no installer plugin named %q", name)
	}
	return plugin, nil
}

// Has reports whether a plugin with the given name is registered.
func (s *Set) Has(name string) bool {
	return s.reg.Has(name)
}

// Names returns plugin names in registration order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}
