package rules

import (
	"github.com/catkin/xylem/pkg/errors"
	"github.com/catkin/xylem/pkg/logging"
	"github.com/catkin/xylem/pkg/ossupport"
)

// VersionOrdering orders versions of one OS. Implemented by
// ossupport.Support.
type VersionOrdering interface {
	// Compare returns -1, 0 or 1 for versions a and b under osName's
	// ordering, or an AMBIGUOUS_BOUND error for unordered tokens.
	Compare(osName, a, b string) (int, error)
}

// ResolveOptions tunes resolution edge-case policy.
type ResolveOptions struct {
	// UnknownVersionError escalates comparisons against unordered
	// version tokens to errors instead of treating the bound as
	// unsatisfied. Useful for debugging rule files.
	UnknownVersionError bool
}

// ResolveOS looks up all installer rules applicable to key on the
// given platform. The most specific ancestor OS name with any entry
// wins; OS-name specificity takes full precedence over version
// availability. A KEY_UNRESOLVED error means no ancestor name matched
// at all. An empty dict with a nil error means an ancestor matched but
// no rule covered its version or feature state, which is a valid
// terminal outcome.
func ResolveOS(db *Database, key string, platform ossupport.Platform,
	features ossupport.FeatureSet, ordering VersionOrdering,
	opts ResolveOptions) (InstallerDict, error) {

	logger := logging.GetLogger("rules.resolve")

	osDict, ok := db.Keys[key]
	if !ok {
		return nil, errors.Newf(errors.ErrKeyUnresolved,
			"key %q has no rules for platform %s", key, platform).
			WithDetail("key", key).
			WithDetail("platform", platform.String())
	}

	// Most specific ancestor with any entry wins, ignoring versions.
	var winner *ossupport.AncestorOS
	for i := len(platform.Ancestors) - 1; i >= 0; i-- {
		if _, ok := osDict[platform.Ancestors[i].Name]; ok {
			winner = &platform.Ancestors[i]
			break
		}
	}
	if winner == nil {
		return nil, errors.Newf(errors.ErrKeyUnresolved,
			"key %q has no rules for platform %s", key, platform).
			WithDetail("key", key).
			WithDetail("platform", platform.String()).
			WithDetail("ancestors", ancestorNames(platform))
	}

	leaf := descendFeatureTree(osDict[winner.Name], features)
	if leaf == nil {
		logger.Debug().
			Str("key", key).
			Str("os", winner.Name).
			Strs("features", features.Names()).
			Msg("No rule for feature state")
		return InstallerDict{}, nil
	}

	dict, err := lookupVersion(leaf.Versions, winner, ordering, opts)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrAmbiguousBound,
			"cannot order version %q for key %q", winner.Version, key)
	}
	if dict == nil {
		logger.Debug().
			Str("key", key).
			Str("os", winner.Name).
			Str("version", winner.Version).
			Msg("Ancestor OS matched but no version entry applies")
		return InstallerDict{}, nil
	}
	return dict.Clone(), nil
}

// descendFeatureTree walks decision nodes according to the feature
// set. A nil result means the selected feature state has no rule.
func descendFeatureTree(tree Tree, features ossupport.FeatureSet) *Leaf {
	for tree != nil {
		switch t := tree.(type) {
		case *Leaf:
			return t
		case *Decision:
			if features.Active(t.Feature) {
				tree = t.Active
			} else {
				tree = t.Inactive
			}
		default:
			return nil
		}
	}
	return nil
}

func lookupVersion(versions *VersionDict, ancestor *ossupport.AncestorOS,
	ordering VersionOrdering, opts ResolveOptions) (InstallerDict, error) {

	if versions == nil {
		return nil, nil
	}

	if ancestor.Version != "" {
		if dict, ok := versions.Exact[ancestor.Version]; ok {
			return dict, nil
		}
	}

	if versions.Any == nil {
		return nil, nil
	}
	if versions.Any.MinVersion == "" {
		return versions.Any.Installers, nil
	}

	// A bounded wildcard needs an orderable version on this ancestor.
	if ancestor.Version == "" {
		return nil, nil
	}
	cmp, err := ordering.Compare(ancestor.Name, ancestor.Version, versions.Any.MinVersion)
	if err != nil {
		if opts.UnknownVersionError {
			return nil, err
		}
		// Policy default: an unorderable version fails the bound
		// rather than the whole lookup.
		return nil, nil
	}
	if cmp < 0 {
		return nil, nil
	}
	return versions.Any.Installers, nil
}

func ancestorNames(platform ossupport.Platform) []string {
	names := make([]string, 0, len(platform.Ancestors))
	for _, a := range platform.Ancestors {
		names = append(names, a.Name)
	}
	return names
}
