// Package config loads xylem configuration the layered way: embedded
// defaults, then the system config file, then the user config file,
// then XYLEM_ environment variables. Later layers win.
package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/catkin/xylem/pkg/errors"
	"github.com/catkin/xylem/pkg/logging"
)

//go:embed defaults.toml
var defaultConfig []byte

// SystemConfigPath is the system-wide configuration file.
const SystemConfigPath = "/etc/xylem/config.toml"

// Config is the typed view of xylem configuration.
type Config struct {
	// OSOverride overrides OS detection, as
	// "name[:version][&feature1,feature2]".
	OSOverride string `koanf:"os_override" toml:"os_override"`

	// Features are the active OS features. Empty means use the OS
	// plugin's defaults.
	Features []string `koanf:"features" toml:"features"`

	// CoreInstallers overrides the OS plugin's core installer list.
	CoreInstallers []string `koanf:"core_installers" toml:"core_installers"`

	// UseAdditionalInstallers enables installers that declare
	// themselves usable on the platform beyond the core list.
	UseAdditionalInstallers bool `koanf:"use_additional_installers" toml:"use_additional_installers"`

	// InstallFrom maps installer names to keys that must resolve
	// through them, bypassing installer ordering.
	InstallFrom map[string][]string `koanf:"install_from" toml:"install_from"`

	// InstallerOptions passes per-installer options through to
	// installer plugins.
	InstallerOptions map[string]map[string]interface{} `koanf:"installer_options" toml:"installer_options"`

	// SourcesDir holds the rule files, read in lexicographic order
	// with earlier files taking precedence.
	SourcesDir string `koanf:"sources_dir" toml:"sources_dir"`

	// CacheDir holds the merged database snapshot.
	CacheDir string `koanf:"cache_dir" toml:"cache_dir"`

	// UnknownVersionError escalates unordered version comparisons to
	// errors instead of treating the bound as unsatisfied.
	UnknownVersionError bool `koanf:"unknown_version_error" toml:"unknown_version_error"`
}

// Load reads configuration from all layers. A missing config file is
// not an error; a malformed one is.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads configuration, preferring an explicit config file
// path over the default system and user locations.
func LoadFrom(explicitPath string) (*Config, error) {
	logger := logging.GetLogger("config")

	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultConfig), toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load defaults")
	}

	paths := []string{SystemConfigPath, UserConfigPath()}
	if explicitPath != "" {
		paths = []string{explicitPath}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if explicitPath != "" {
				return nil, errors.Wrapf(err, errors.ErrConfigLoad,
					"config file %q not readable", path)
			}
			continue
		}
		if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigParse,
				"failed to parse config file %q", path)
		}
		logger.Debug().Str("path", path).Msg("Loaded config file")
	}

	if err := k.Load(env.Provider("XYLEM_", ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load environment")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "invalid configuration")
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// parserFor picks the config format by file extension. The default
// locations use TOML; an explicit --config path may be YAML.
func parserFor(path string) koanf.Parser {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return kyaml.Parser()
	}
	return toml.Parser()
}

// envKey maps XYLEM_SOURCES_DIR to sources_dir and so on.
func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, "XYLEM_"))
}

// applyDefaults fills in paths that depend on the runtime environment
// and cannot live in the embedded defaults.
func applyDefaults(cfg *Config) {
	if cfg.SourcesDir == "" {
		system := "/etc/xylem/sources.d"
		if _, err := os.Stat(system); err == nil {
			cfg.SourcesDir = system
		} else {
			cfg.SourcesDir = filepath.Join(xdg.ConfigHome, "xylem", "sources.d")
		}
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(xdg.CacheHome, "xylem")
	}
}

// UserConfigPath returns the per-user configuration file location.
func UserConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "xylem", "config.toml")
}
