package installers

import (
	"github.com/catkin/xylem/pkg/errors"
	"github.com/catkin/xylem/pkg/ossupport"
	"github.com/catkin/xylem/pkg/rules"
)

// StaticInstaller is an InstallerPlugin defined by data. Builtin
// plugins are instances of it.
type StaticInstaller struct {
	InstallerName string

	// Additional declares the plugin usable as an additional
	// installer. OSAllowlist narrows that to specific OS names (any
	// ancestor counts); empty means every platform.
	Additional  bool
	OSAllowlist []string

	// KnownOptions are the rule option names this installer accepts.
	KnownOptions []string

	options map[string]interface{}
}

func (p *StaticInstaller) Name() string { return p.InstallerName }

func (p *StaticInstaller) UsableOn(platform ossupport.Platform) bool {
	if !p.Additional {
		return false
	}
	if len(p.OSAllowlist) == 0 {
		return true
	}
	for _, allowed := range p.OSAllowlist {
		for _, ancestor := range platform.Ancestors {
			if ancestor.Name == allowed {
				return true
			}
		}
	}
	return false
}

// ValidateRule rejects rule options this installer does not know.
func (p *StaticInstaller) ValidateRule(rule *rules.InstallerRule) error {
	for option := range rule.Options {
		if !p.knowsOption(option) {
			return errors.Newf(errors.ErrMalformedRule,
				"installer %q does not accept option %q", p.InstallerName, option)
		}
	}
	return nil
}

func (p *StaticInstaller) knowsOption(name string) bool {
	for _, known := range p.KnownOptions {
		if known == name {
			return true
		}
	}
	return false
}

// SetOptions stores user configuration for this installer.
func (p *StaticInstaller) SetOptions(options map[string]interface{}) error {
	for option := range options {
		if !p.knowsOption(option) {
			return errors.Newf(errors.ErrConfigParse,
				"installer %q does not accept option %q", p.InstallerName, option)
		}
	}
	p.options = options
	return nil
}

// Options returns the stored user configuration.
func (p *StaticInstaller) Options() map[string]interface{} {
	return p.options
}

// builtinInstallers returns fresh instances of the builtin plugins so
// per-set options never leak between sets. apt, dnf, homebrew and
// macports are core installers picked by OS plugins; pip and gem opt
// in as additional installers everywhere, matching their
// cross-platform nature.
func builtinInstallers() []InstallerPlugin {
	return []InstallerPlugin{
		&StaticInstaller{
			InstallerName: "apt",
			KnownOptions:  []string{"repositories"},
		},
		&StaticInstaller{
			InstallerName: "dnf",
			KnownOptions:  []string{"repositories"},
		},
		&StaticInstaller{
			InstallerName: "homebrew",
			Additional:    true,
			OSAllowlist:   []string{"osx"},
			KnownOptions:  []string{"taps", "options", "install_options"},
		},
		&StaticInstaller{
			InstallerName: "macports",
			Additional:    true,
			OSAllowlist:   []string{"osx"},
			KnownOptions:  []string{"variants"},
		},
		&StaticInstaller{
			InstallerName: "pip",
			Additional:    true,
		},
		&StaticInstaller{
			InstallerName: "gem",
			Additional:    true,
		},
		// The fake installer never installs anything; it exists for
		// rule file and pipeline testing.
		&StaticInstaller{
			InstallerName: "fake",
			Additional:    true,
			KnownOptions:  []string{"outcome"},
		},
	}
}
