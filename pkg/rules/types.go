package rules

import (
	"regexp"
	"sort"
)

// Reserved tokens used in rule files.
const (
	// AnyVersion matches every OS version not covered by an explicit entry.
	AnyVersion = "any_version"

	// AnyVersionGeq annotates an AnyVersion entry with an inclusive
	// minimum version bound.
	AnyVersionGeq = "any_version_geq"

	// AnyInstaller applies a rule to all installers at once. Only
	// meaningful for blanket disables.
	AnyInstaller = "any_installer"
)

// identifierPattern restricts keys, OS names, versions and installer
// names to alphanumeric, dash, dot, underscore and plus.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9._+-]+$`)

// ValidIdentifier reports whether s is usable as a key, OS name,
// version or installer name in a rules document.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// InstallerRule describes how one installer resolves a key at a
// specific OS/version leaf.
type InstallerRule struct {
	// Packages are the native package identifiers to install.
	Packages []string

	// Priority overrides this installer's position in the effective
	// installer order during arbitration. Nil means no override.
	Priority *int

	// Disable suppresses rules for this installer from
	// lower-precedence sources at this leaf.
	Disable bool

	// Options carries installer-specific settings, e.g. required
	// repositories. Opaque to the resolution core.
	Options map[string]interface{}
}

// Clone returns a deep copy of the rule.
func (r *InstallerRule) Clone() *InstallerRule {
	if r == nil {
		return nil
	}
	c := &InstallerRule{
		Packages: append([]string(nil), r.Packages...),
		Disable:  r.Disable,
	}
	if r.Priority != nil {
		p := *r.Priority
		c.Priority = &p
	}
	if r.Options != nil {
		c.Options = make(map[string]interface{}, len(r.Options))
		for k, v := range r.Options {
			c.Options[k] = v
		}
	}
	return c
}

// InstallerDict maps installer names to their rules at one
// OS/version leaf.
type InstallerDict map[string]*InstallerRule

// Clone returns a deep copy of the dict.
func (d InstallerDict) Clone() InstallerDict {
	if d == nil {
		return nil
	}
	c := make(InstallerDict, len(d))
	for name, rule := range d {
		c[name] = rule.Clone()
	}
	return c
}

// Installers returns the installer names in sorted order.
func (d InstallerDict) Installers() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AnyVersionRule is the wildcard version entry of a version dict,
// optionally bounded below.
type AnyVersionRule struct {
	// MinVersion is the inclusive lower bound under the OS's version
	// ordering. Empty means unbounded.
	MinVersion string

	Installers InstallerDict
}

// VersionDict maps OS versions to installer dicts, with an optional
// wildcard entry.
type VersionDict struct {
	Exact map[string]InstallerDict
	Any   *AnyVersionRule
}

// NewVersionDict returns an empty version dict.
func NewVersionDict() *VersionDict {
	return &VersionDict{Exact: make(map[string]InstallerDict)}
}

// Clone returns a deep copy of the version dict.
func (v *VersionDict) Clone() *VersionDict {
	if v == nil {
		return nil
	}
	c := NewVersionDict()
	for version, dict := range v.Exact {
		c.Exact[version] = dict.Clone()
	}
	if v.Any != nil {
		c.Any = &AnyVersionRule{
			MinVersion: v.Any.MinVersion,
			Installers: v.Any.Installers.Clone(),
		}
	}
	return c
}

// Empty reports whether the version dict holds no entries.
func (v *VersionDict) Empty() bool {
	return v == nil || (len(v.Exact) == 0 && v.Any == nil)
}

// Tree is a feature decision structure for one (key, OS name) pair.
// It is either a Leaf holding a version dict, or a Decision branching
// on one feature.
type Tree interface {
	isTree()

	// CloneTree returns a deep copy.
	CloneTree() Tree
}

// Leaf is a terminal tree node holding the version rules that apply
// once all feature decisions on the path have been taken.
type Leaf struct {
	Versions *VersionDict
}

func (*Leaf) isTree() {}

// CloneTree returns a deep copy of the leaf.
func (l *Leaf) CloneTree() Tree {
	return &Leaf{Versions: l.Versions.Clone()}
}

// Decision is a binary feature branch. A nil subtree means no rule
// exists for that state of the feature.
type Decision struct {
	Feature  string
	Active   Tree
	Inactive Tree
}

func (*Decision) isTree() {}

// CloneTree returns a deep copy of the decision subtree.
func (d *Decision) CloneTree() Tree {
	c := &Decision{Feature: d.Feature}
	if d.Active != nil {
		c.Active = d.Active.CloneTree()
	}
	if d.Inactive != nil {
		c.Inactive = d.Inactive.CloneTree()
	}
	return c
}

// OSDict maps OS names to their feature/version rule trees for one key.
type OSDict map[string]Tree

// Clone returns a deep copy of the OS dict.
func (o OSDict) Clone() OSDict {
	c := make(OSDict, len(o))
	for name, tree := range o {
		c[name] = tree.CloneTree()
	}
	return c
}

// Document is one fully expanded rules source.
type Document struct {
	// Source identifies where the rules came from, e.g. a file path.
	Source string

	// Keys maps dependency keys to their OS dicts.
	Keys map[string]OSDict
}

// NewDocument returns an empty document for the given source.
func NewDocument(source string) *Document {
	return &Document{Source: source, Keys: make(map[string]OSDict)}
}

// ProvenanceKey identifies one (key, installer) pair in the merged
// database for audit purposes.
type ProvenanceKey struct {
	Key       string
	Installer string
}

// Provenance maps (key, installer) pairs to the identifier of the
// source that contributed the winning rule.
type Provenance map[ProvenanceKey]string

// Database is the merged, read-only rules database that lookups run
// against. It must not be mutated after Merge returns it.
type Database struct {
	Keys       map[string]OSDict
	Provenance Provenance
}

// NewDatabase returns an empty database.
func NewDatabase() *Database {
	return &Database{
		Keys:       make(map[string]OSDict),
		Provenance: make(Provenance),
	}
}

// KeyNames returns all keys in the database in sorted order.
func (db *Database) KeyNames() []string {
	names := make([]string, 0, len(db.Keys))
	for name := range db.Keys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
