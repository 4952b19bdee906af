package rules

import (
	"github.com/rs/zerolog"

	"github.com/catkin/xylem/pkg/errors"
	"github.com/catkin/xylem/pkg/logging"
)

// MergeOptions configures a merge pass.
type MergeOptions struct {
	// DefaultInstallers maps OS names to the installer that replaces
	// the default_installer placeholder. Rules using the placeholder
	// for an OS without an entry here are dropped with a warning.
	DefaultInstallers map[string]string
}

// Merge combines expanded documents into a single database. Documents
// are given in precedence order, highest first. The merge is a single
// pass: the first write for a (key, OS, feature path, version,
// installer) leaf wins, and an explicit disable poisons all writes for
// that installer (or, for any_installer, every installer) from
// lower-precedence documents at that leaf. Rules for different
// installers at the same leaf are unioned regardless of their source.
//
// Errors are local to the (key, source) pair that caused them and are
// collected, mirroring Expand: sibling keys and other sources still
// merge, and the partial database stays usable.
func Merge(docs []*Document, opts MergeOptions) (*Database, []error) {
	logger := logging.GetLogger("rules.merge")

	db := NewDatabase()
	m := &merger{
		db:       db,
		opts:     opts,
		logger:   logger,
		poisoned: make(map[poisonSlot]bool),
	}
	for _, doc := range docs {
		for key, osDict := range doc.Keys {
			m.mergeKey(key, osDict, doc.Source)
		}
	}

	logger.Debug().
		Int("sources", len(docs)).
		Int("keys", len(db.Keys)).
		Int("errors", len(m.errs)).
		Msg("Merged rules database")
	return db, m.errs
}

type merger struct {
	db       *Database
	opts     MergeOptions
	logger   zerolog.Logger
	poisoned map[poisonSlot]bool
	errs     []error
}

// poisonSlot identifies one installer dict position of the accumulated
// database. A slot is marked when a blanket disable arrives below
// already-written rules: it cannot touch them, but everything of even
// lower precedence at that position is still suppressed.
type poisonSlot struct {
	versions *VersionDict
	version  string
}

// anyVersionSlot addresses the any_version dict of a slot. The "*" is
// not a valid version identifier, so it cannot collide with an exact
// version entry.
const anyVersionSlot = "*"

func (m *merger) mergeKey(key string, osDict OSDict, source string) {
	target, ok := m.db.Keys[key]
	if !ok {
		target = make(OSDict)
		m.db.Keys[key] = target
	}
	for osName, tree := range osDict {
		tree, err := m.prepareTree(key, osName, tree)
		if err != nil {
			m.errs = append(m.errs, errors.Wrapf(err, errors.ErrMalformedRule,
				"cannot merge key %q from %q", key, source))
			continue
		}
		if tree == nil {
			continue
		}
		existing, ok := target[osName]
		if !ok {
			target[osName] = tree
			m.recordTree(key, tree, source)
			continue
		}
		target[osName] = m.mergeTree(key, existing, tree, source)
	}
	if len(target) == 0 {
		delete(m.db.Keys, key)
	}
}

// prepareTree clones a source tree and substitutes the
// default_installer placeholder for the OS's actual default installer.
func (m *merger) prepareTree(key, osName string, tree Tree) (Tree, error) {
	clone := tree.CloneTree()
	defaultName := m.opts.DefaultInstallers[osName]
	return clone, m.replaceDefaultInstaller(key, osName, defaultName, clone)
}

func (m *merger) replaceDefaultInstaller(key, osName, defaultName string, tree Tree) error {
	switch t := tree.(type) {
	case *Leaf:
		for _, dict := range t.Versions.Exact {
			if err := replaceDefaultInDict(dict, defaultName); err != nil {
				return errors.Wrapf(err, errors.ErrMalformedRule,
					"key %q has no default installer for OS %q", key, osName)
			}
		}
		if t.Versions.Any != nil {
			if err := replaceDefaultInDict(t.Versions.Any.Installers, defaultName); err != nil {
				return errors.Wrapf(err, errors.ErrMalformedRule,
					"key %q has no default installer for OS %q", key, osName)
			}
		}
	case *Decision:
		if t.Active != nil {
			if err := m.replaceDefaultInstaller(key, osName, defaultName, t.Active); err != nil {
				return err
			}
		}
		if t.Inactive != nil {
			if err := m.replaceDefaultInstaller(key, osName, defaultName, t.Inactive); err != nil {
				return err
			}
		}
	}
	return nil
}

func replaceDefaultInDict(dict InstallerDict, defaultName string) error {
	rule, ok := dict[DefaultInstaller]
	if !ok {
		return nil
	}
	if defaultName == "" {
		return errors.New(errors.ErrMalformedRule,
			"default_installer used where no default installer is known")
	}
	delete(dict, DefaultInstaller)
	if _, exists := dict[defaultName]; !exists {
		dict[defaultName] = rule
	}
	return nil
}

// mergeTree merges a lower-precedence tree into the accumulated one.
// Trees of different shape are reconciled by propagating the flatter
// side into both branches of the decision, mirroring how indifferent
// entries are expanded.
func (m *merger) mergeTree(key string, acc, incoming Tree, source string) Tree {
	accLeaf, accIsLeaf := acc.(*Leaf)
	incLeaf, incIsLeaf := incoming.(*Leaf)

	if accIsLeaf && incIsLeaf {
		m.mergeVersionDict(key, accLeaf.Versions, incLeaf.Versions, source)
		return accLeaf
	}

	if accDec, ok := acc.(*Decision); ok {
		if incDec, ok := incoming.(*Decision); ok && incDec.Feature == accDec.Feature {
			accDec.Active = m.mergeBranch(key, accDec.Active, incDec.Active, source)
			accDec.Inactive = m.mergeBranch(key, accDec.Inactive, incDec.Inactive, source)
			return accDec
		}
		// Incoming tree is indifferent to accDec.Feature.
		accDec.Active = m.mergeBranch(key, accDec.Active, incoming, source)
		accDec.Inactive = m.mergeBranch(key, accDec.Inactive, incoming.CloneTree(), source)
		return accDec
	}

	// Accumulated leaf vs incoming decision: the leaf is higher
	// precedence on every feature path, so it becomes both branches of
	// a new decision before the incoming subtrees merge in.
	incDec := incoming.(*Decision)
	merged := &Decision{
		Feature:  incDec.Feature,
		Active:   acc,
		Inactive: m.cloneBranch(acc),
	}
	merged.Active = m.mergeBranch(key, merged.Active, incDec.Active, source)
	merged.Inactive = m.mergeBranch(key, merged.Inactive, incDec.Inactive, source)
	return merged
}

func (m *merger) mergeBranch(key string, acc, incoming Tree, source string) Tree {
	if incoming == nil {
		return acc
	}
	if acc == nil {
		m.recordTree(key, incoming, source)
		return incoming
	}
	return m.mergeTree(key, acc, incoming, source)
}

func (m *merger) mergeVersionDict(key string, acc, incoming *VersionDict, source string) {
	for version, dict := range incoming.Exact {
		existing, ok := acc.Exact[version]
		if !ok {
			acc.Exact[version] = dict
			m.recordDict(key, dict, source)
			continue
		}
		m.mergeInstallerDict(key, poisonSlot{versions: acc, version: version},
			existing, dict, source)
	}
	if incoming.Any != nil {
		if acc.Any == nil {
			acc.Any = incoming.Any
			m.recordDict(key, incoming.Any.Installers, source)
		} else if acc.Any.MinVersion == incoming.Any.MinVersion {
			m.mergeInstallerDict(key, poisonSlot{versions: acc, version: anyVersionSlot},
				acc.Any.Installers, incoming.Any.Installers, source)
		}
		// A lower-precedence any_version with a different bound is
		// discarded; the higher-precedence bound owns the wildcard.
	}
}

func (m *merger) mergeInstallerDict(key string, slot poisonSlot, acc, incoming InstallerDict, source string) {
	if m.poisoned[slot] {
		return
	}
	if blanket, ok := acc[AnyInstaller]; ok && blanket.Disable {
		// Blanket disable poisons every lower-precedence write here.
		return
	}
	if blanket, ok := incoming[AnyInstaller]; ok && blanket.Disable && len(acc) > 0 {
		// A blanket disable below already-written rules cannot touch
		// them, so it is not stored. It still suppresses everything of
		// lower precedence at this slot, its own siblings included.
		m.poisoned[slot] = true
		return
	}
	for name, rule := range incoming {
		if _, exists := acc[name]; exists {
			// First write wins; an existing disable keeps poisoning.
			continue
		}
		acc[name] = rule
		m.record(key, name, source)
	}
}

// cloneBranch clones an accumulated subtree for propagation into both
// branches of a decision, carrying any poison marks over to the clone.
func (m *merger) cloneBranch(tree Tree) Tree {
	clone := tree.CloneTree()
	m.copyPoison(tree, clone)
	return clone
}

func (m *merger) copyPoison(orig, clone Tree) {
	switch o := orig.(type) {
	case *Leaf:
		c := clone.(*Leaf)
		for version := range o.Versions.Exact {
			if m.poisoned[poisonSlot{versions: o.Versions, version: version}] {
				m.poisoned[poisonSlot{versions: c.Versions, version: version}] = true
			}
		}
		if m.poisoned[poisonSlot{versions: o.Versions, version: anyVersionSlot}] {
			m.poisoned[poisonSlot{versions: c.Versions, version: anyVersionSlot}] = true
		}
	case *Decision:
		c := clone.(*Decision)
		if o.Active != nil {
			m.copyPoison(o.Active, c.Active)
		}
		if o.Inactive != nil {
			m.copyPoison(o.Inactive, c.Inactive)
		}
	}
}

func (m *merger) recordTree(key string, tree Tree, source string) {
	switch t := tree.(type) {
	case *Leaf:
		for _, dict := range t.Versions.Exact {
			m.recordDict(key, dict, source)
		}
		if t.Versions.Any != nil {
			m.recordDict(key, t.Versions.Any.Installers, source)
		}
	case *Decision:
		if t.Active != nil {
			m.recordTree(key, t.Active, source)
		}
		if t.Inactive != nil {
			m.recordTree(key, t.Inactive, source)
		}
	}
}

func (m *merger) recordDict(key string, dict InstallerDict, source string) {
	for name := range dict {
		m.record(key, name, source)
	}
}

func (m *merger) record(key, installer, source string) {
	pk := ProvenanceKey{Key: key, Installer: installer}
	if _, exists := m.db.Provenance[pk]; !exists {
		m.db.Provenance[pk] = source
	}
}
