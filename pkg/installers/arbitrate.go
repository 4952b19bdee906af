package installers

import (
	"sort"

	"github.com/catkin/xylem/pkg/errors"
	"github.com/catkin/xylem/pkg/logging"
	"github.com/catkin/xylem/pkg/ossupport"
	"github.com/catkin/xylem/pkg/rules"
)

// Overrides carries the per-key user overrides consulted during
// arbitration.
type Overrides struct {
	// InstallFrom maps installer names to the keys they exclusively
	// serve. A matching entry bypasses the effective order entirely.
	InstallFrom map[string][]string
}

// Resolution is the final outcome of arbitration for one key.
type Resolution struct {
	Key       string
	Installer string
	Packages  []string
}

// Arbitrate selects the winning installer for a key from the installer
// dict the OS resolver produced. Selection order: the install_from
// override, then explicit rule priority (descending), then position in
// the effective installer order. Disabled rules never win.
func Arbitrate(key string, dict rules.InstallerDict, effectiveOrder []string,
	overrides Overrides, platform ossupport.Platform) (Resolution, error) {

	logger := logging.GetLogger("installers.arbitrate")

	candidates := enabledRules(dict)
	if len(candidates) == 0 {
		return Resolution{}, errors.Newf(errors.ErrNoResolution,
			"all rules for key %q on %s are disabled", key, platform).
			WithDetail("key", key).
			WithDetail("platform", platform.String())
	}

	// install_from is the highest-precedence rule. Installers are
	// checked in sorted name order so overlapping overrides resolve
	// deterministically.
	overrideNames := make([]string, 0, len(overrides.InstallFrom))
	for name := range overrides.InstallFrom {
		overrideNames = append(overrideNames, name)
	}
	sort.Strings(overrideNames)
	for _, name := range overrideNames {
		if !containsString(overrides.InstallFrom[name], key) {
			continue
		}
		rule, ok := candidates[name]
		if !ok {
			continue
		}
		logger.Debug().
			Str("key", key).
			Str("installer", name).
			Msg("install_from override selected installer")
		return Resolution{Key: key, Installer: name, Packages: rule.Packages}, nil
	}

	type ranked struct {
		name     string
		priority int
		position int
	}
	var order []ranked
	for position, name := range effectiveOrder {
		rule, ok := candidates[name]
		if !ok {
			continue
		}
		priority := 0
		if rule.Priority != nil {
			priority = *rule.Priority
		}
		order = append(order, ranked{name: name, priority: priority, position: position})
	}
	if len(order) == 0 {
		return Resolution{}, errors.Newf(errors.ErrNoResolution,
			"key %q has rules for %v, but none of these installers are enabled on %s",
			key, ruleNames(candidates), platform).
			WithDetail("key", key).
			WithDetail("platform", platform.String()).
			WithDetail("installers", ruleNames(candidates))
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].priority != order[j].priority {
			return order[i].priority > order[j].priority
		}
		return order[i].position < order[j].position
	})

	winner := order[0]
	rule := candidates[winner.name]
	logger.Debug().
		Str("key", key).
		Str("installer", winner.name).
		Int("priority", winner.priority).
		Msg("Arbitrated installer")
	return Resolution{Key: key, Installer: winner.name, Packages: rule.Packages}, nil
}

// enabledRules filters out disabled entries and honors a leaf-local
// any_installer blanket disable.
func enabledRules(dict rules.InstallerDict) rules.InstallerDict {
	if blanket, ok := dict[rules.AnyInstaller]; ok && blanket.Disable {
		return rules.InstallerDict{}
	}
	result := make(rules.InstallerDict, len(dict))
	for name, rule := range dict {
		if name == rules.AnyInstaller || rule.Disable {
			continue
		}
		result[name] = rule
	}
	return result
}

func ruleNames(dict rules.InstallerDict) []string {
	return dict.Installers()
}
