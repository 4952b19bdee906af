package config

import (
	"os"
	"path/filepath"

	gotoml "github.com/pelletier/go-toml/v2"

	"github.com/catkin/xylem/pkg/errors"
)

// WriteDefault writes a starter config file with the effective
// defaults filled in. Refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if path == "" {
		path = UserConfigPath()
	}
	if _, err := os.Stat(path); err == nil {
		return errors.Newf(errors.ErrAlreadyExists,
			"config file %q already exists", path)
	}

	cfg := Config{UseAdditionalInstallers: true}
	applyDefaults(&cfg)

	data, err := gotoml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "cannot encode default config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrConfigLoad,
			"cannot create config directory for %q", path)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrConfigLoad,
			"cannot write config file %q", path)
	}
	return nil
}
