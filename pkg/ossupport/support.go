package ossupport

import (
	"bufio"
	"os"
	"runtime"
	"strings"

	"github.com/catkin/xylem/pkg/errors"
	"github.com/catkin/xylem/pkg/logging"
	"github.com/catkin/xylem/pkg/registry"
)

// Support manages the OS plugin registry and answers platform and
// version-ordering queries for the resolution core.
type Support struct {
	plugins registry.Registry[OSPlugin]
}

// NewSupport returns a Support with all builtin OS plugins registered.
func NewSupport() *Support {
	s := &Support{plugins: registry.New[OSPlugin]()}
	for _, p := range builtinPlugins {
		registry.MustRegister(s.plugins, p.Name(), OSPlugin(p))
	}
	return s
}

// Register adds an external OS plugin.
func (s *Support) Register(plugin OSPlugin) error {
	return s.plugins.Register(plugin.Name(), plugin)
}

// Plugin returns the plugin for the given OS name.
func (s *Support) Plugin(name string) (OSPlugin, error) {
	plugin, err := s.plugins.Get(name)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrUnsupportedOS,
			"no OS plugin for %q", name)
	}
	return plugin, nil
}

// PluginNames returns all registered OS names in sorted order.
func (s *Support) PluginNames() []string {
	return s.plugins.List()
}

// PlatformFor builds the platform for an OS name and version using
// the plugin's ancestor chain.
func (s *Support) PlatformFor(name, version string) (Platform, error) {
	plugin, err := s.Plugin(name)
	if err != nil {
		return Platform{}, err
	}
	return Platform{Ancestors: plugin.Ancestors(version)}, nil
}

// Compare orders two versions under the named OS's version ordering.
func (s *Support) Compare(osName, a, b string) (int, error) {
	plugin, err := s.Plugin(osName)
	if err != nil {
		return 0, err
	}
	return CompareVersions(plugin, a, b)
}

// DefaultInstallers returns the map from every registered OS name to
// its default installer, as consumed by the rules merger.
func (s *Support) DefaultInstallers() map[string]string {
	result := make(map[string]string)
	for _, name := range s.plugins.List() {
		plugin := registry.MustGet(s.plugins, name)
		if def := plugin.DefaultInstaller(); def != "" {
			result[name] = def
		}
	}
	return result
}

// DetectPlatform identifies the current OS. On Linux it reads
// /etc/os-release; on Darwin it assumes osx. Version detection falls
// back to empty when the codename is unknown.
func (s *Support) DetectPlatform() (Platform, error) {
	logger := logging.GetLogger("ossupport.detect")

	name, version := detectOS()
	if name == "" {
		return Platform{}, errors.Newf(errors.ErrUnsupportedOS,
			"could not detect the current OS; use an OS override")
	}
	logger.Debug().Str("os", name).Str("version", version).Msg("Detected OS")

	platform, err := s.PlatformFor(name, version)
	if err != nil {
		return Platform{}, errors.Wrapf(err, errors.ErrUnsupportedOS,
			"detected OS %q has no plugin", name)
	}
	return platform, nil
}

func detectOS() (name, version string) {
	if runtime.GOOS == "darwin" {
		return "osx", ""
	}
	f, err := os.Open("/etc/os-release")
	if err != nil {
		return "", ""
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		value = strings.Trim(value, `"`)
		switch key {
		case "ID":
			name = value
		case "VERSION_CODENAME":
			version = value
		}
	}
	return name, version
}
