package ossupport

import (
	"github.com/catkin/xylem/pkg/errors"
)

// CompareVersions orders two versions of one OS by their index in the
// plugin's known-version list. Returns -1, 0 or 1. An unrecognized
// version yields an AMBIGUOUS_BOUND error; callers decide whether to
// escalate or treat the comparison as unsatisfied.
func CompareVersions(plugin OSPlugin, a, b string) (int, error) {
	ia, err := versionIndex(plugin, a)
	if err != nil {
		return 0, err
	}
	ib, err := versionIndex(plugin, b)
	if err != nil {
		return 0, err
	}
	switch {
	case ia < ib:
		return -1, nil
	case ia > ib:
		return 1, nil
	}
	return 0, nil
}

func versionIndex(plugin OSPlugin, version string) (int, error) {
	for i, known := range plugin.KnownVersions() {
		if known == version {
			return i, nil
		}
	}
	return 0, errors.Newf(errors.ErrAmbiguousBound,
		"version %q is not ordered for OS %q", version, plugin.Name()).
		WithDetail("os", plugin.Name()).
		WithDetail("version", version)
}
