package rules

import (
	"sort"
	"strings"

	"github.com/catkin/xylem/pkg/errors"
	"github.com/catkin/xylem/pkg/logging"
)

// DefaultInstaller is the placeholder installer name produced by the
// list and string shorthands. It is replaced with the OS's actual
// default installer at merge time.
const DefaultInstaller = "default_installer"

// installerOptionsKey is the reserved per-key block carrying installer
// options that apply to every rule of that installer under the key.
// Expansion folds the options into the rules, so the canonical form
// has no such block.
const installerOptionsKey = "_installer_options"

// Expand converts one raw rules document (as decoded from YAML) into
// its fully canonical form. Shorthand syntax is expanded:
//
//   - a string or list value becomes a packages list for the default
//     installer under any_version
//   - comma separated version keys are split into one entry each
//   - "any_version>=V" and the any_version_geq sibling key become a
//     bounded wildcard entry
//   - "os & feature1, feature2" keys are reified into a binary feature
//     decision tree
//
// Malformed keys are skipped and reported; expansion of sibling keys
// continues. The caller decides whether collected errors are fatal.
func Expand(raw interface{}, source string) (*Document, []error) {
	logger := logging.GetLogger("rules.expand")

	doc := NewDocument(source)
	var errs []error

	if raw == nil {
		return doc, nil
	}
	top, ok := asStringMap(raw)
	if !ok {
		return doc, []error{errors.Newf(errors.ErrMalformedRule,
			"expected mapping at top level of rules document, got %T", raw).
			WithDetail("source", source)}
	}

	keys := sortedKeys(top)
	for _, key := range keys {
		if !ValidIdentifier(key) {
			errs = append(errs, keyError(source, key, "invalid key %q", key))
			continue
		}
		osDict, err := expandOSDict(top[key])
		if err != nil {
			errs = append(errs, wrapKeyError(source, key, err))
			continue
		}
		doc.Keys[key] = osDict
	}

	logger.Debug().
		Str("source", source).
		Int("keys", len(doc.Keys)).
		Int("errors", len(errs)).
		Msg("Expanded rules document")
	return doc, errs
}

// featureEntry is one raw os-dict entry after splitting the feature
// conjunction off the OS name.
type featureEntry struct {
	features []string // sorted
	sig      string
	versions *VersionDict
}

func expandOSDict(raw interface{}) (OSDict, error) {
	m, ok := asStringMap(raw)
	if !ok {
		return nil, errors.Newf(errors.ErrMalformedRule,
			"expected mapping of OS names, got %T", raw)
	}

	keyOptions, err := parseInstallerOptions(m[installerOptionsKey])
	if err != nil {
		return nil, err
	}

	// Collect sibling entries per OS name. The full set of features
	// mentioned across them determines the decision tree depth.
	entries := make(map[string][]featureEntry)
	explicitTrees := make(map[string]Tree)

	for _, rawName := range sortedKeys(m) {
		if rawName == installerOptionsKey {
			continue
		}
		osName, features, err := splitFeatureKey(rawName)
		if err != nil {
			return nil, err
		}
		if !ValidIdentifier(osName) {
			return nil, errors.Newf(errors.ErrMalformedRule,
				"invalid OS name %q", osName)
		}

		// An already-canonical decision node passes through unchanged,
		// so expansion is idempotent.
		if len(features) == 0 && isDecisionNode(m[rawName]) {
			tree, err := expandDecisionNode(m[rawName])
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrMalformedRule,
					"invalid decision node for OS %q", osName)
			}
			explicitTrees[osName] = tree
			continue
		}

		versions, err := expandVersionDict(m[rawName])
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrMalformedRule,
				"invalid entry for OS %q", rawName)
		}
		sig := strings.Join(features, ",")
		for _, existing := range entries[osName] {
			if existing.sig == sig {
				return nil, errors.Newf(errors.ErrMalformedRule,
					"ambiguous duplicate feature conjunction [%s] for OS %q", sig, osName)
			}
		}
		entries[osName] = append(entries[osName], featureEntry{
			features: features,
			sig:      sig,
			versions: versions,
		})
	}

	result := make(OSDict)
	for osName, tree := range explicitTrees {
		if len(entries[osName]) > 0 {
			return nil, errors.Newf(errors.ErrMalformedRule,
				"OS %q mixes an explicit decision node with feature conjunction entries", osName)
		}
		result[osName] = tree
	}
	for osName, osEntries := range entries {
		tree, err := buildFeatureTree(osEntries)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrMalformedRule,
				"invalid feature entries for OS %q", osName)
		}
		result[osName] = tree
	}
	if keyOptions != nil {
		for _, tree := range result {
			applyInstallerOptions(tree, keyOptions)
		}
	}
	return result, nil
}

// parseInstallerOptions reads the reserved _installer_options block.
func parseInstallerOptions(raw interface{}) (map[string]map[string]interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	m, ok := asStringMap(raw)
	if !ok {
		return nil, errors.Newf(errors.ErrMalformedRule,
			"expected installer options mapping in %s, got %T", installerOptionsKey, raw)
	}
	result := make(map[string]map[string]interface{}, len(m))
	for _, name := range sortedKeys(m) {
		if !ValidIdentifier(name) {
			return nil, errors.Newf(errors.ErrMalformedRule,
				"invalid installer name %q in %s", name, installerOptionsKey)
		}
		options, ok := asStringMap(m[name])
		if !ok {
			return nil, errors.Newf(errors.ErrMalformedRule,
				"expected options mapping for installer %q in %s, got %T",
				name, installerOptionsKey, m[name])
		}
		result[name] = options
	}
	return result, nil
}

// applyInstallerOptions folds per-key installer options into every
// rule for that installer. Options set directly on a rule win.
func applyInstallerOptions(tree Tree, options map[string]map[string]interface{}) {
	walkVersionDicts(tree, func(versions *VersionDict) {
		for _, dict := range versions.Exact {
			applyOptionsToDict(dict, options)
		}
		if versions.Any != nil {
			applyOptionsToDict(versions.Any.Installers, options)
		}
	})
}

func applyOptionsToDict(dict InstallerDict, options map[string]map[string]interface{}) {
	for name, opts := range options {
		rule, ok := dict[name]
		if !ok {
			continue
		}
		for k, v := range opts {
			if rule.Options == nil {
				rule.Options = make(map[string]interface{})
			}
			if _, exists := rule.Options[k]; !exists {
				rule.Options[k] = v
			}
		}
	}
}

// walkVersionDicts visits every version dict leaf of a tree.
func walkVersionDicts(tree Tree, visit func(*VersionDict)) {
	switch t := tree.(type) {
	case *Leaf:
		if t.Versions != nil {
			visit(t.Versions)
		}
	case *Decision:
		if t.Active != nil {
			walkVersionDicts(t.Active, visit)
		}
		if t.Inactive != nil {
			walkVersionDicts(t.Inactive, visit)
		}
	}
}

// splitFeatureKey splits "os & f1, f2" into the OS name and a sorted
// list of feature names. A plain OS name yields no features.
func splitFeatureKey(key string) (string, []string, error) {
	name, rest, found := strings.Cut(key, "&")
	name = strings.TrimSpace(name)
	if !found {
		return name, nil, nil
	}
	var features []string
	seen := make(map[string]bool)
	for _, f := range strings.Split(rest, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			return "", nil, errors.Newf(errors.ErrMalformedRule,
				"empty feature name in %q", key)
		}
		if !ValidIdentifier(f) {
			return "", nil, errors.Newf(errors.ErrMalformedRule,
				"invalid feature name %q in %q", f, key)
		}
		if seen[f] {
			return "", nil, errors.Newf(errors.ErrMalformedRule,
				"duplicate feature %q in %q", f, key)
		}
		seen[f] = true
		features = append(features, f)
	}
	if len(features) == 0 {
		return "", nil, errors.Newf(errors.ErrMalformedRule,
			"feature conjunction in %q names no features", key)
	}
	sort.Strings(features)
	return name, features, nil
}

// buildFeatureTree reifies sibling entries into a binary decision
// tree. Features are consumed in lexicographic order; entries
// indifferent to a feature propagate into both branches.
func buildFeatureTree(entries []featureEntry) (Tree, error) {
	featureSet := make(map[string]bool)
	for _, e := range entries {
		for _, f := range e.features {
			featureSet[f] = true
		}
	}
	if len(featureSet) == 0 {
		// Single unconditional entry; duplicates were rejected during
		// collection.
		return &Leaf{Versions: entries[0].versions}, nil
	}
	features := make([]string, 0, len(featureSet))
	for f := range featureSet {
		features = append(features, f)
	}
	sort.Strings(features)
	return buildFeatureSubtree(features, entries), nil
}

func buildFeatureSubtree(features []string, entries []featureEntry) Tree {
	if len(entries) == 0 {
		return nil
	}
	if len(features) == 0 {
		winner := mostSpecificEntry(entries)
		return &Leaf{Versions: winner.versions.Clone()}
	}
	feature := features[0]
	var active, inactive []featureEntry
	for _, e := range entries {
		if hasFeature(e, feature) {
			active = append(active, e)
		} else {
			// Indifferent entries apply regardless of the feature.
			active = append(active, e)
			inactive = append(inactive, e)
		}
	}
	return &Decision{
		Feature:  feature,
		Active:   buildFeatureSubtree(features[1:], active),
		Inactive: buildFeatureSubtree(features[1:], inactive),
	}
}

// mostSpecificEntry picks the entry with the largest feature
// conjunction among the candidates left at a leaf. Size ties break on
// the lexicographically smallest conjunction for determinism.
func mostSpecificEntry(entries []featureEntry) featureEntry {
	winner := entries[0]
	for _, e := range entries[1:] {
		if len(e.features) > len(winner.features) ||
			(len(e.features) == len(winner.features) && e.sig < winner.sig) {
			winner = e
		}
	}
	return winner
}

func hasFeature(e featureEntry, feature string) bool {
	for _, f := range e.features {
		if f == feature {
			return true
		}
	}
	return false
}

// isDecisionNode reports whether a raw value is a canonical feature
// decision node.
func isDecisionNode(raw interface{}) bool {
	m, ok := asStringMap(raw)
	if !ok {
		return false
	}
	_, has := m["feature"]
	return has
}

func expandDecisionNode(raw interface{}) (Tree, error) {
	m, _ := asStringMap(raw)
	feature, ok := m["feature"].(string)
	if !ok || !ValidIdentifier(feature) {
		return nil, errors.Newf(errors.ErrMalformedRule,
			"decision node needs a valid 'feature' name, got %v", m["feature"])
	}
	for k := range m {
		if k != "feature" && k != "active" && k != "inactive" {
			return nil, errors.Newf(errors.ErrMalformedRule,
				"unexpected entry %q in decision node", k)
		}
	}
	activeRaw, hasActive := m["active"]
	inactiveRaw, hasInactive := m["inactive"]
	if !hasActive && !hasInactive {
		return nil, errors.Newf(errors.ErrMalformedRule,
			"decision node for feature %q has neither branch", feature)
	}
	node := &Decision{Feature: feature}
	if hasActive {
		subtree, err := expandSubtree(activeRaw)
		if err != nil {
			return nil, err
		}
		node.Active = subtree
	}
	if hasInactive {
		subtree, err := expandSubtree(inactiveRaw)
		if err != nil {
			return nil, err
		}
		node.Inactive = subtree
	}
	return node, nil
}

func expandSubtree(raw interface{}) (Tree, error) {
	if isDecisionNode(raw) {
		return expandDecisionNode(raw)
	}
	versions, err := expandVersionDict(raw)
	if err != nil {
		return nil, err
	}
	return &Leaf{Versions: versions}, nil
}

// expandVersionDict canonicalizes one raw version dict. The string and
// list shorthands collapse to an unbounded any_version entry for the
// default installer.
func expandVersionDict(raw interface{}) (*VersionDict, error) {
	result := NewVersionDict()

	switch v := raw.(type) {
	case nil:
		// No action required to resolve on this OS.
		result.Any = &AnyVersionRule{Installers: InstallerDict{
			DefaultInstaller: {Packages: []string{}},
		}}
		return result, nil
	case string:
		result.Any = &AnyVersionRule{Installers: InstallerDict{
			DefaultInstaller: {Packages: []string{v}},
		}}
		return result, nil
	}
	if list, ok := asStringSlice(raw); ok {
		result.Any = &AnyVersionRule{Installers: InstallerDict{
			DefaultInstaller: {Packages: list},
		}}
		return result, nil
	}

	m, ok := asStringMap(raw)
	if !ok {
		return nil, errors.Newf(errors.ErrMalformedRule,
			"expected version mapping, list, string or null, got %T", raw)
	}

	// The any_version_geq sibling key is a side channel for the bound
	// of the any_version entry, handled after the main loop.
	var geqBound string
	haveGeqBound := false

	for _, rawVersion := range sortedKeys(m) {
		if rawVersion == AnyVersionGeq {
			bound, ok := m[rawVersion].(string)
			if !ok || !ValidIdentifier(bound) {
				return nil, errors.Newf(errors.ErrMalformedRule,
					"%s bound must be a version identifier, got %v",
					AnyVersionGeq, m[rawVersion])
			}
			geqBound = bound
			haveGeqBound = true
			continue
		}

		installers, err := expandInstallerDict(m[rawVersion])
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrMalformedRule,
				"invalid entry for version %q", rawVersion)
		}

		if strings.HasPrefix(rawVersion, AnyVersion) {
			bound, err := parseAnyVersionKey(rawVersion)
			if err != nil {
				return nil, err
			}
			if result.Any != nil {
				return nil, errors.Newf(errors.ErrMalformedRule,
					"multiple %s entries in one version dict", AnyVersion)
			}
			result.Any = &AnyVersionRule{MinVersion: bound, Installers: installers}
			continue
		}

		for _, version := range splitVersionList(rawVersion) {
			if version == "" {
				return nil, errors.Newf(errors.ErrMalformedRule,
					"empty version in list %q", rawVersion)
			}
			if !ValidIdentifier(version) {
				return nil, errors.Newf(errors.ErrMalformedRule,
					"invalid version %q", version)
			}
			if _, dup := result.Exact[version]; dup {
				return nil, errors.Newf(errors.ErrMalformedRule,
					"duplicate version entry %q", version)
			}
			result.Exact[version] = installers.Clone()
		}
	}

	if haveGeqBound {
		if result.Any == nil {
			return nil, errors.Newf(errors.ErrMalformedRule,
				"%s given without an %s entry", AnyVersionGeq, AnyVersion)
		}
		if result.Any.MinVersion != "" && result.Any.MinVersion != geqBound {
			return nil, errors.Newf(errors.ErrMalformedRule,
				"conflicting %s bounds %q and %q",
				AnyVersion, result.Any.MinVersion, geqBound)
		}
		result.Any.MinVersion = geqBound
	}
	return result, nil
}

// parseAnyVersionKey handles "any_version" and the "any_version>=V"
// range shorthand.
func parseAnyVersionKey(key string) (string, error) {
	if key == AnyVersion {
		return "", nil
	}
	rest := strings.TrimPrefix(key, AnyVersion)
	if !strings.HasPrefix(rest, ">=") {
		return "", errors.Newf(errors.ErrMalformedRule,
			"malformed version key %q", key)
	}
	bound := strings.TrimSpace(strings.TrimPrefix(rest, ">="))
	if bound == "" || !ValidIdentifier(bound) {
		return "", errors.Newf(errors.ErrMalformedRule,
			"invalid version bound in %q", key)
	}
	return bound, nil
}

func splitVersionList(key string) []string {
	parts := strings.Split(key, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// expandInstallerDict canonicalizes one raw installer dict. String and
// list values collapse to the default installer.
func expandInstallerDict(raw interface{}) (InstallerDict, error) {
	switch v := raw.(type) {
	case nil:
		return InstallerDict{DefaultInstaller: {Packages: []string{}}}, nil
	case string:
		return InstallerDict{DefaultInstaller: {Packages: []string{v}}}, nil
	}
	if list, ok := asStringSlice(raw); ok {
		return InstallerDict{DefaultInstaller: {Packages: list}}, nil
	}

	m, ok := asStringMap(raw)
	if !ok {
		return nil, errors.Newf(errors.ErrMalformedRule,
			"expected installer mapping, list, string or null, got %T", raw)
	}
	result := make(InstallerDict, len(m))
	for _, name := range sortedKeys(m) {
		if name != AnyInstaller && name != DefaultInstaller && !ValidIdentifier(name) {
			return nil, errors.Newf(errors.ErrMalformedRule,
				"invalid installer name %q", name)
		}
		rule, err := expandInstallerRule(m[name])
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrMalformedRule,
				"invalid rule for installer %q", name)
		}
		result[name] = rule
	}
	return result, nil
}

// expandInstallerRule canonicalizes one raw installer rule. Known
// entries (packages, priority, disable) are validated; everything else
// is passed through as installer-specific options.
func expandInstallerRule(raw interface{}) (*InstallerRule, error) {
	switch v := raw.(type) {
	case nil:
		return &InstallerRule{Packages: []string{}}, nil
	case string:
		return &InstallerRule{Packages: []string{v}}, nil
	}
	if list, ok := asStringSlice(raw); ok {
		return &InstallerRule{Packages: list}, nil
	}

	m, ok := asStringMap(raw)
	if !ok {
		return nil, errors.Newf(errors.ErrMalformedRule,
			"expected installer rule mapping, list, string or null, got %T", raw)
	}

	rule := &InstallerRule{Packages: []string{}}
	for _, field := range sortedKeys(m) {
		value := m[field]
		switch field {
		case "packages":
			switch pv := value.(type) {
			case nil:
			case string:
				rule.Packages = []string{pv}
			default:
				packages, ok := asStringSlice(value)
				if !ok {
					return nil, errors.Newf(errors.ErrMalformedRule,
						"expected packages list, got %T", pv)
				}
				rule.Packages = packages
			}
		case "priority":
			p, ok := asInt(value)
			if !ok {
				return nil, errors.Newf(errors.ErrMalformedRule,
					"expected integer priority, got %v", value)
			}
			rule.Priority = &p
		case "disable":
			b, ok := value.(bool)
			if !ok {
				return nil, errors.Newf(errors.ErrMalformedRule,
					"expected boolean disable flag, got %v", value)
			}
			rule.Disable = b
		default:
			if rule.Options == nil {
				rule.Options = make(map[string]interface{})
			}
			rule.Options[field] = value
		}
	}
	return rule, nil
}

// asStringSlice accepts both decoded YAML lists and already-typed
// string slices, so canonical in-memory documents re-expand cleanly.
func asStringSlice(raw interface{}) ([]string, bool) {
	switch v := raw.(type) {
	case []string:
		return append([]string{}, v...), true
	case []interface{}:
		result := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			result = append(result, s)
		}
		return result, true
	}
	return nil, false
}

func asStringMap(raw interface{}) (map[string]interface{}, bool) {
	switch m := raw.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		result := make(map[string]interface{}, len(m))
		for k, v := range m {
			s, ok := k.(string)
			if !ok {
				return nil, false
			}
			result[s] = v
		}
		return result, true
	}
	return nil, false
}

func asInt(raw interface{}) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func keyError(source, key, format string, args ...interface{}) error {
	return errors.Newf(errors.ErrMalformedRule, format, args...).
		WithDetail("source", source).
		WithDetail("key", key)
}

func wrapKeyError(source, key string, err error) error {
	return errors.Wrapf(err, errors.ErrMalformedRule,
		"failed to expand rule for key %q", key).
		WithDetail("source", source).
		WithDetail("key", key)
}
