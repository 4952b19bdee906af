// Package sources loads rule files in precedence order and builds the
// merged rules database from them. The merged database is persisted as
// a snapshot that lookups open read-only; building and swapping the
// snapshot is atomic from a reader's perspective.
package sources

import (
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/catkin/xylem/pkg/errors"
	"github.com/catkin/xylem/pkg/installers"
	"github.com/catkin/xylem/pkg/logging"
	"github.com/catkin/xylem/pkg/rules"
)

// ListSources returns the rule files of a sources directory in
// precedence order. Files sort lexicographically; earlier files take
// precedence over later ones, so ordering prefixes ("10-", "50-")
// control precedence.
func ListSources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrSourceLoad,
			"cannot read sources directory %q", dir)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// LoadRawDocument reads and decodes one rules file.
func LoadRawDocument(path string) (interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrSourceLoad,
			"cannot read rules file %q", path)
	}
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, errors.ErrSourceParse,
			"cannot parse rules file %q", path)
	}
	return raw, nil
}

// BuildDatabase expands the given rule files in precedence order
// (first file highest) and merges them into a database. Expansion and
// merge errors are collected per source and do not abort sibling keys
// or other sources; the partially built database remains usable.
func BuildDatabase(paths []string, defaultInstallers map[string]string,
	set *installers.Set) (*rules.Database, []error) {

	logger := logging.GetLogger("sources.build")
	done := logging.LogOperationStart(logger, "build database")
	defer done()

	var docs []*rules.Document
	var errs []error
	for _, path := range paths {
		raw, err := LoadRawDocument(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		doc, expandErrs := rules.Expand(raw, path)
		errs = append(errs, expandErrs...)
		docs = append(docs, doc)
	}

	db, mergeErrs := rules.Merge(docs, rules.MergeOptions{
		DefaultInstallers: defaultInstallers,
	})
	errs = append(errs, mergeErrs...)

	if set != nil {
		errs = append(errs, validateInstallerOptions(db, set)...)
	}

	logger.Info().
		Int("sources", len(docs)).
		Int("keys", len(db.Keys)).
		Int("errors", len(errs)).
		Msg("Built rules database")
	return db, errs
}

// validateInstallerOptions runs each installer plugin's rule
// validation over the merged database. Problems are reported but do
// not invalidate unrelated keys.
func validateInstallerOptions(db *rules.Database, set *installers.Set) []error {
	var errs []error
	for key, osDict := range db.Keys {
		for osName, tree := range osDict {
			walkInstallerDicts(tree, func(dict rules.InstallerDict) {
				for name, rule := range dict {
					if name == rules.AnyInstaller {
						continue
					}
					plugin, err := set.Plugin(name)
					if err != nil {
						continue
					}
					validator, ok := plugin.(installers.RuleValidator)
					if !ok {
						continue
					}
					if err := validator.ValidateRule(rule); err != nil {
						errs = append(errs, errors.Wrapf(err, errors.ErrMalformedRule,
							"invalid rule for key %q on OS %q", key, osName))
					}
				}
			})
		}
	}
	return errs
}

func walkInstallerDicts(tree rules.Tree, visit func(rules.InstallerDict)) {
	switch t := tree.(type) {
	case *rules.Leaf:
		for _, dict := range t.Versions.Exact {
			visit(dict)
		}
		if t.Versions.Any != nil {
			visit(t.Versions.Any.Installers)
		}
	case *rules.Decision:
		if t.Active != nil {
			walkInstallerDicts(t.Active, visit)
		}
		if t.Inactive != nil {
			walkInstallerDicts(t.Inactive, visit)
		}
	}
}
