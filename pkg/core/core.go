// Package core wires configuration, OS support, installer plugins and
// the rules engine into the update and resolve entry points the CLI
// uses.
package core

import (
	"github.com/catkin/xylem/pkg/config"
	"github.com/catkin/xylem/pkg/errors"
	"github.com/catkin/xylem/pkg/installers"
	"github.com/catkin/xylem/pkg/logging"
	"github.com/catkin/xylem/pkg/ossupport"
	"github.com/catkin/xylem/pkg/rules"
	"github.com/catkin/xylem/pkg/sources"
)

// System bundles the long-lived collaborators of a xylem run.
type System struct {
	Config     *config.Config
	OS         *ossupport.Support
	Installers *installers.Set
}

// NewSystem builds a System from configuration, registering builtin
// plugins and applying configured installer options.
func NewSystem(cfg *config.Config) *System {
	logger := logging.GetLogger("core")

	s := &System{
		Config:     cfg,
		OS:         ossupport.NewSupport(),
		Installers: installers.NewSet(),
	}

	for name, options := range cfg.InstallerOptions {
		plugin, err := s.Installers.Plugin(name)
		if err != nil {
			logger.Warn().Str("installer", name).
				Msg("Ignoring options for unknown installer")
			continue
		}
		consumer, ok := plugin.(installers.OptionConsumer)
		if !ok {
			logger.Warn().Str("installer", name).
				Msg("Installer does not accept options")
			continue
		}
		if err := consumer.SetOptions(options); err != nil {
			logger.Warn().Err(err).Str("installer", name).
				Msg("Rejected installer options")
		}
	}
	return s
}

// Platform determines the platform and active feature set, honoring
// the configured OS override. Features default to the OS plugin's
// defaults when the configuration does not name any.
func (s *System) Platform() (ossupport.Platform, ossupport.FeatureSet, error) {
	features := s.Config.Features

	var platform ossupport.Platform
	if s.Config.OSOverride != "" {
		name, version, overrideFeatures, err := ossupport.ParseOverride(s.Config.OSOverride)
		if err != nil {
			return ossupport.Platform{}, nil, err
		}
		platform, err = s.OS.PlatformFor(name, version)
		if err != nil {
			return ossupport.Platform{}, nil, err
		}
		// Features in the override string take precedence over the
		// features config entry.
		if overrideFeatures != nil {
			features = overrideFeatures
		}
	} else {
		var err error
		platform, err = s.OS.DetectPlatform()
		if err != nil {
			return ossupport.Platform{}, nil, err
		}
	}

	if features == nil {
		if plugin, err := s.OS.Plugin(platform.Name()); err == nil {
			features = plugin.DefaultFeatures(platform.Version())
		}
	}
	return platform, ossupport.NewFeatureSet(features...), nil
}

// InstallerContext builds the effective installer ordering for a
// platform from configuration and the OS plugin.
func (s *System) InstallerContext(platform ossupport.Platform) (*installers.Context, error) {
	plugin, err := s.OS.Plugin(platform.Name())
	if err != nil {
		return nil, err
	}
	return installers.NewContext(s.Installers, plugin, platform, installers.ContextOptions{
		CoreInstallers:          s.Config.CoreInstallers,
		UseAdditionalInstallers: s.Config.UseAdditionalInstallers,
	}), nil
}

// Update rebuilds the merged database from the sources directory and
// atomically replaces the persisted snapshot. Expansion problems are
// returned alongside the (still usable) database; only a failure to
// persist is fatal.
func (s *System) Update() (*rules.Database, []error, error) {
	paths, err := sources.ListSources(s.Config.SourcesDir)
	if err != nil {
		return nil, nil, err
	}
	if len(paths) == 0 {
		return nil, nil, errors.Newf(errors.ErrSourceLoad,
			"no rule files found in %q", s.Config.SourcesDir)
	}

	db, buildErrs := sources.BuildDatabase(paths, s.OS.DefaultInstallers(), s.Installers)

	snap := sources.NewSnapshot(db, paths)
	if err := snap.Save(s.Config.CacheDir); err != nil {
		return db, buildErrs, err
	}
	return db, buildErrs, nil
}

// LoadDatabase opens the persisted snapshot read-only.
func (s *System) LoadDatabase() (*rules.Database, error) {
	return sources.LoadDatabase(s.Config.CacheDir)
}

// Lookup returns all installer rules applicable to a key on the
// platform, without arbitration.
func (s *System) Lookup(db *rules.Database, key string, platform ossupport.Platform,
	features ossupport.FeatureSet) (rules.InstallerDict, error) {

	return rules.ResolveOS(db, key, platform, features, s.OS, rules.ResolveOptions{
		UnknownVersionError: s.Config.UnknownVersionError,
	})
}

// Resolve produces the final (installer, packages) resolution for one
// key on the platform.
func (s *System) Resolve(db *rules.Database, key string, platform ossupport.Platform,
	features ossupport.FeatureSet, ictx *installers.Context) (installers.Resolution, error) {

	dict, err := s.Lookup(db, key, platform, features)
	if err != nil {
		return installers.Resolution{}, err
	}
	if len(dict) == 0 {
		return installers.Resolution{}, errors.Newf(errors.ErrKeyUnresolved,
			"key %q matches OS %s but no rule covers version %q",
			key, platform.Name(), platform.Version()).
			WithDetail("key", key).
			WithDetail("platform", platform.String())
	}
	return installers.Arbitrate(key, dict, ictx.EffectiveOrder(), installers.Overrides{
		InstallFrom: s.Config.InstallFrom,
	}, platform)
}

// Keys lists the database keys that have a rule for any ancestor of
// the platform.
func (s *System) Keys(db *rules.Database, platform ossupport.Platform) []string {
	var result []string
	for _, key := range db.KeyNames() {
		osDict := db.Keys[key]
		for _, ancestor := range platform.Ancestors {
			if _, ok := osDict[ancestor.Name]; ok {
				result = append(result, key)
				break
			}
		}
	}
	return result
}
